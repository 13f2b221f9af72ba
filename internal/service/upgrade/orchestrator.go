package upgrade

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"go.uber.org/multierr"

	"github.com/oshokin/snapup/internal/config"
	"github.com/oshokin/snapup/internal/domain/release"
	"github.com/oshokin/snapup/internal/logger"
	"github.com/oshokin/snapup/internal/repository/state"
)

var (
	errDeclined   = errors.New("declined by operator")
	errUnverified = errors.New("sets were not verified")
)

// Fetcher retrieves remote files into a directory.
type Fetcher interface {
	Fetch(ctx context.Context, remoteURL, destDir string) (string, error)
	Refresh(ctx context.Context, remoteURL, destDir string) (string, error)
}

// Verifier checks files against the release signature.
type Verifier interface {
	Verify(ctx context.Context, files []string, version string) error
}

// KernelManager backs up, installs and restores kernel images.
type KernelManager interface {
	Backup(ctx context.Context) error
	InstallKernel(ctx context.Context, srcDir string, bundle release.KernelBundle, backupFirst bool) error
	Rollback(ctx context.Context) error
	HasBackup() bool
	InstallBoot(ctx context.Context, device string) error
}

// Archiver unpacks a set onto the root filesystem.
type Archiver interface {
	Extract(ctx context.Context, archivePath string) error
}

// Merger reconciles configuration files with the new sets.
type Merger interface {
	Merge(ctx context.Context) error
}

// Rebooter restarts the machine.
type Rebooter interface {
	Reboot(ctx context.Context) error
}

// Scheduler arranges work for the first boot.
type Scheduler interface {
	ScheduleMerge() (string, error)
	ScheduleAfter(program string) (string, error)
}

// Confirmer asks the operator a yes/no question.
type Confirmer interface {
	Confirm(question string) bool
}

// Components are the capabilities the orchestrator drives.
type Components struct {
	Fetcher   Fetcher
	Verifier  Verifier
	Kernel    KernelManager
	Archiver  Archiver
	Merger    Merger
	Rebooter  Rebooter
	Marker    state.Repository
	Scheduler Scheduler
	// Confirmer is consulted only in interactive mode.
	Confirmer Confirmer
}

// Orchestrator runs one upgrade.
type Orchestrator struct {
	cfg        config.Config
	components Components

	history []State

	build         string
	kernelFiles   []string
	setFiles      []string
	noNewBuild    bool
	verified      bool
	confirmed     bool
	kernelMutated bool
	extracting    bool
	mergeDeferred bool
}

// New creates an orchestrator for cfg.
func New(cfg config.Config, components Components) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		components: components,
	}
}

// History returns the states entered so far, in order.
func (o *Orchestrator) History() []State {
	return slices.Clone(o.history)
}

// Run walks the state machine until Done or Abort.
func (o *Orchestrator) Run(ctx context.Context) error {
	current := StateInit

	for !current.Terminal() {
		o.history = append(o.history, current)

		stageCtx := logger.WithKV(ctx, "stage", current.String())

		if err := o.handle(stageCtx, current); err != nil {
			return o.fail(ctx, current, err)
		}

		current = o.next(current)
	}

	o.history = append(o.history, current)

	logger.Info(ctx, "Upgrade finished")

	return nil
}

// next evaluates the guards leaving from.
//
//nolint:cyclop // One case per state.
func (o *Orchestrator) next(from State) State {
	cfg := o.cfg
	kernelBranch := cfg.Mode != config.ModeSetsOnly

	switch from {
	case StateInit:
		return StateResolveConfig
	case StateResolveConfig:
		switch {
		case !cfg.ExtractOnly:
			return StateFetchMeta
		case kernelBranch:
			return o.kernelEntry()
		default:
			return StateExtractSets
		}
	case StateFetchMeta:
		switch {
		case o.noNewBuild:
			return StateDone
		case kernelBranch:
			return StateFetchKernel
		default:
			return StateFetchSets
		}
	case StateFetchKernel:
		switch {
		case !cfg.DownloadOnly:
			return o.kernelEntry()
		case cfg.Mode == config.ModeKernelOnly:
			return StateDone
		default:
			return StateFetchSets
		}
	case StateBackupKernel:
		return StateInstallKernel
	case StateInstallKernel:
		switch {
		case cfg.Mode == config.ModeKernelOnly:
			return StateDone
		case cfg.ExtractOnly:
			return StateExtractSets
		default:
			return StateFetchSets
		}
	case StateFetchSets:
		if cfg.IncludeExtended && len(cfg.Sets.Extended) > 0 {
			return StateFetchExtendedSets
		}

		return StateVerifyAll
	case StateFetchExtendedSets:
		return StateVerifyAll
	case StateVerifyAll:
		if cfg.DownloadOnly {
			return StateDone
		}

		return StateExtractSets
	case StateExtractSets:
		return StateMerge
	case StateMerge:
		return StateFinalize
	case StateFinalize:
		return StateDone
	default:
		return StateAbort
	}
}

func (o *Orchestrator) kernelEntry() State {
	if o.cfg.BackupKernel {
		return StateBackupKernel
	}

	return StateInstallKernel
}

//nolint:cyclop // One case per state.
func (o *Orchestrator) handle(ctx context.Context, current State) error {
	switch current {
	case StateInit:
		return o.init(ctx)
	case StateResolveConfig:
		return o.resolveConfig(ctx)
	case StateFetchMeta:
		return o.fetchMeta(ctx)
	case StateFetchKernel:
		return o.fetchKernel(ctx)
	case StateBackupKernel:
		return o.backupKernel(ctx)
	case StateInstallKernel:
		return o.installKernel(ctx)
	case StateFetchSets:
		return o.fetchSets(ctx, o.cfg.Sets.Mandatory)
	case StateFetchExtendedSets:
		return o.fetchSets(ctx, o.cfg.Sets.Extended)
	case StateVerifyAll:
		return o.verifyAll(ctx)
	case StateExtractSets:
		return o.extractSets(ctx)
	case StateMerge:
		return o.merge(ctx)
	case StateFinalize:
		return o.finalize(ctx)
	default:
		return nil
	}
}

// fail records the abort, restoring the kernel first when the failure left
// a replaced kernel behind.
func (o *Orchestrator) fail(ctx context.Context, at State, cause error) error {
	if o.needsRollback(at, cause) {
		o.history = append(o.history, StateRollback)
		cause = o.rollback(ctx, cause)
	}

	o.history = append(o.history, StateAbort)

	logger.ErrorKV(ctx, "Upgrade aborted", "stage", at.String(), "error", cause)

	return fmt.Errorf("%s: %w", at, cause)
}

// needsRollback is true for failures after the kernel was replaced and before
// extraction touched the filesystem. A failed extraction leaves everything as is.
func (o *Orchestrator) needsRollback(at State, cause error) bool {
	if !o.kernelMutated {
		return false
	}

	switch at {
	case StateInstallKernel, StateFetchSets, StateFetchExtendedSets, StateVerifyAll:
		return true
	case StateExtractSets:
		return !o.extracting && errors.Is(cause, errDeclined)
	default:
		return false
	}
}

func (o *Orchestrator) rollback(ctx context.Context, cause error) error {
	if !o.components.Kernel.HasBackup() {
		logger.Error(ctx, "The kernel was replaced without a backup; restore it manually")
		return cause
	}

	if err := o.components.Kernel.Rollback(ctx); err != nil {
		logger.ErrorKV(ctx, "Kernel rollback incomplete", "error", err)
		return multierr.Append(cause, fmt.Errorf("rollback: %w", err))
	}

	logger.Warn(ctx, "Previous kernel restored")

	return cause
}

func (o *Orchestrator) init(ctx context.Context) error {
	if err := os.MkdirAll(o.cfg.Dest, 0o755); err != nil { //nolint:mnd // Download directory.
		return fmt.Errorf("create download directory: %w", err)
	}

	logger.DebugKV(ctx, "Download directory ready", "dest", o.cfg.Dest)

	return nil
}

func (o *Orchestrator) resolveConfig(ctx context.Context) error {
	if err := o.cfg.Target.Validate(); err != nil {
		return fmt.Errorf("release target: %w", err)
	}

	logger.InfoKV(ctx, "Upgrading",
		"target", o.cfg.Target.String(),
		"url", o.cfg.Target.BaseURL(),
		"mode", o.cfg.Mode.String(),
		"extended", o.cfg.IncludeExtended,
		"dest", o.cfg.Dest,
	)

	return nil
}

func (o *Orchestrator) fetchMeta(ctx context.Context) error {
	previous, _ := o.readBuild()

	for _, name := range []string{release.SignatureManifest, release.BuildInfoFile} {
		if _, err := o.components.Fetcher.Refresh(ctx, o.cfg.Target.URL(name), o.cfg.Dest); err != nil {
			return err
		}
	}

	build, err := o.readBuild()
	if err != nil {
		return err
	}

	o.build = build

	logger.InfoKV(ctx, "Build published", "build", build)

	if previous != "" && previous != build {
		o.purgeStale(ctx, previous)
	}

	last, err := o.components.Marker.Load(ctx)

	switch {
	case errors.Is(err, state.ErrNotFound):
		return nil
	case err != nil:
		logger.WarnKV(ctx, "Cannot read the last upgrade marker", "error", err)
		return nil
	case last != build:
		return nil
	case o.cfg.WarnExit:
		logger.WarnKV(ctx, "No new build since the last upgrade, exiting", "build", build)

		o.noNewBuild = true
	default:
		logger.InfoKV(ctx, "This build was already applied, continuing", "build", build)
	}

	return nil
}

// purgeStale removes downloads of an older build so they are fetched again.
func (o *Orchestrator) purgeStale(ctx context.Context, previous string) {
	names := slices.Concat(o.cfg.Kernel.Files(), o.cfg.Sets.Archives(o.cfg.Target.Version, true))

	removed := 0

	for _, name := range names {
		err := os.Remove(o.cfg.DestPath(name))

		switch {
		case err == nil:
			removed++
		case !errors.Is(err, os.ErrNotExist):
			logger.WarnKV(ctx, "Cannot remove stale download", "file", name, "error", err)
		}
	}

	logger.InfoKV(ctx, "Removed downloads of the previous build", "previous", previous, "files", removed)
}

func (o *Orchestrator) readBuild() (string, error) {
	data, err := os.ReadFile(filepath.Clean(o.cfg.DestPath(release.BuildInfoFile)))
	if err != nil {
		return "", fmt.Errorf("read build info: %w", err)
	}

	return release.ParseBuildInfo(data)
}

func (o *Orchestrator) fetchKernel(ctx context.Context) error {
	for _, name := range o.cfg.Kernel.Files() {
		path, err := o.components.Fetcher.Fetch(ctx, o.cfg.Target.URL(name), o.cfg.Dest)
		if err != nil {
			return err
		}

		o.kernelFiles = append(o.kernelFiles, path)
	}

	// Kernel-only runs have no VerifyAll, so the kernel is checked here.
	if o.cfg.Mode == config.ModeKernelOnly && o.cfg.VerifySignatures {
		return o.components.Verifier.Verify(ctx, o.kernelFiles, o.cfg.Target.Version)
	}

	return nil
}

func (o *Orchestrator) confirm(question string) error {
	if !o.cfg.Interactive || o.components.Confirmer == nil {
		return nil
	}

	if !o.components.Confirmer.Confirm(question) {
		return errDeclined
	}

	return nil
}

func (o *Orchestrator) confirmKernel() error {
	if o.confirmed {
		return nil
	}

	if err := o.confirm("Install the new kernel?"); err != nil {
		return err
	}

	o.confirmed = true

	return nil
}

func (o *Orchestrator) backupKernel(ctx context.Context) error {
	if err := o.confirmKernel(); err != nil {
		return err
	}

	return o.components.Kernel.Backup(ctx)
}

func (o *Orchestrator) installKernel(ctx context.Context) error {
	if err := o.confirmKernel(); err != nil {
		return err
	}

	if !o.cfg.BackupKernel {
		logger.Warn(ctx, "Kernel backup disabled")
	}

	o.kernelMutated = true

	return o.components.Kernel.InstallKernel(ctx, o.cfg.Dest, o.cfg.Kernel, false)
}

func (o *Orchestrator) fetchSets(ctx context.Context, sets []string) error {
	for _, set := range sets {
		name := release.ArchiveName(set, o.cfg.Target.Version)

		path, err := o.components.Fetcher.Fetch(ctx, o.cfg.Target.URL(name), o.cfg.Dest)
		if err != nil {
			return err
		}

		o.setFiles = append(o.setFiles, path)
	}

	return nil
}

func (o *Orchestrator) verifyAll(ctx context.Context) error {
	if !o.cfg.VerifySignatures {
		logger.Warn(ctx, "Signature verification disabled")
		return nil
	}

	files := slices.Concat(o.kernelFiles, o.setFiles)

	if err := o.components.Verifier.Verify(ctx, files, o.cfg.Target.Version); err != nil {
		return err
	}

	o.verified = true

	logger.InfoKV(ctx, "All downloads verified", "files", len(files))

	return nil
}

func (o *Orchestrator) extractSets(ctx context.Context) error {
	// Extract-only runs use downloads verified by the run that fetched them.
	if o.cfg.VerifySignatures && !o.verified && !o.cfg.ExtractOnly {
		return errUnverified
	}

	if err := o.confirm(fmt.Sprintf("Extract sets onto %s?", o.cfg.Root)); err != nil {
		return err
	}

	o.extracting = true

	for _, archive := range o.cfg.Archives() {
		set, err := release.SetFromArchive(archive, o.cfg.Target.Version)
		if err != nil {
			return err
		}

		logger.DebugKV(ctx, "Next set", "archive", archive, "set", set, "extended", o.cfg.Sets.IsExtended(set))

		if err := o.components.Archiver.Extract(ctx, o.cfg.DestPath(archive)); err != nil {
			return err
		}
	}

	return nil
}

func (o *Orchestrator) merge(ctx context.Context) error {
	if !o.cfg.Merge {
		return nil
	}

	if filepath.Clean(o.cfg.Root) != string(filepath.Separator) {
		logger.WarnKV(ctx, "sysmerge only works on the running system, deferring it to the next boot",
			"root", o.cfg.Root)

		o.mergeDeferred = true

		return nil
	}

	return o.components.Merger.Merge(ctx)
}

func (o *Orchestrator) finalize(ctx context.Context) error {
	build := o.build
	if build == "" {
		build, _ = o.readBuild()
	}

	if build != "" {
		if err := o.components.Marker.Save(ctx, build); err != nil {
			return fmt.Errorf("save last upgrade marker: %w", err)
		}
	}

	if !o.cfg.Merge || o.mergeDeferred {
		path, err := o.components.Scheduler.ScheduleMerge()
		if err != nil {
			return fmt.Errorf("schedule sysmerge: %w", err)
		}

		logger.InfoKV(ctx, "sysmerge will run at the next boot", "script", path)
	}

	if o.cfg.After != "" {
		path, err := o.components.Scheduler.ScheduleAfter(o.cfg.After)
		if err != nil {
			return fmt.Errorf("schedule after program: %w", err)
		}

		logger.InfoKV(ctx, "After program will run at the next boot", "script", path, "program", o.cfg.After)
	}

	if o.cfg.InstallBoot != "" {
		if err := o.components.Kernel.InstallBoot(ctx, o.cfg.InstallBoot); err != nil {
			return err
		}
	}

	if o.cfg.Reboot {
		return o.components.Rebooter.Reboot(ctx)
	}

	logger.Info(ctx, "Reboot to start the new system")

	return nil
}
