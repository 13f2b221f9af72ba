// Package upgrade drives a snapshot upgrade from start to finish.
//
// The Orchestrator is an explicit state machine:
//
//	Init -> ResolveConfig -> FetchMeta -> FetchKernel -> BackupKernel -> InstallKernel
//	     -> FetchSets -> FetchExtendedSets -> VerifyAll -> ExtractSets -> Merge -> Finalize -> Done
//
// Guards derived from the resolved configuration pick the next state once per
// transition: kernel-only stops after InstallKernel, sets-only skips the
// kernel branch, download-only stops after VerifyAll and extract-only skips
// every fetch and verification. Failures end in Abort; failures after the
// kernel was replaced pass through Rollback first.
//
// Run is the CLI entry point. It resolves configuration, runs the preflight
// checks and either performs a standalone mode (integrity check, update
// check) or builds the components and runs the Orchestrator.
package upgrade
