package config

import (
	"os"
	"runtime"
)

// System holds the facts about the running machine a run starts from.
type System struct {
	// Release is the running OS release, e.g. "7.5".
	Release string
	// Machine is the hardware platform, e.g. "amd64".
	Machine string
	// Snapshot is true when the running kernel is a -current or -beta build.
	Snapshot bool
	// CPUs is the number of online processors.
	CPUs int
	// Home is the invoking user's home directory.
	Home string
}

// ProbeSystem gathers System from the running kernel.
func ProbeSystem() (System, error) {
	sys, err := probeKernel()
	if err != nil {
		return System{}, err
	}

	if sys.CPUs <= 0 {
		sys.CPUs = runtime.NumCPU()
	}

	home, err := os.UserHomeDir()
	if err != nil {
		home = string(os.PathSeparator) + "root"
	}

	sys.Home = home

	return sys, nil
}
