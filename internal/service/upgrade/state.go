package upgrade

// State is a step of the upgrade pipeline.
type State int

// Pipeline states in their nominal order.
const (
	StateInit State = iota
	StateResolveConfig
	StateFetchMeta
	StateFetchKernel
	StateBackupKernel
	StateInstallKernel
	StateFetchSets
	StateFetchExtendedSets
	StateVerifyAll
	StateExtractSets
	StateMerge
	StateFinalize
	StateDone
	StateRollback
	StateAbort
)

//nolint:gochecknoglobals // Lookup table for String.
var stateNames = map[State]string{
	StateInit:              "Init",
	StateResolveConfig:     "ResolveConfig",
	StateFetchMeta:         "FetchMeta",
	StateFetchKernel:       "FetchKernel",
	StateBackupKernel:      "BackupKernel",
	StateInstallKernel:     "InstallKernel",
	StateFetchSets:         "FetchSets",
	StateFetchExtendedSets: "FetchExtendedSets",
	StateVerifyAll:         "VerifyAll",
	StateExtractSets:       "ExtractSets",
	StateMerge:             "Merge",
	StateFinalize:          "Finalize",
	StateDone:              "Done",
	StateRollback:          "Rollback",
	StateAbort:             "Abort",
}

// String implements fmt.Stringer.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}

	return "Unknown"
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAbort
}
