//go:build openbsd

package config

import (
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

func probeKernel() (System, error) {
	osRelease, err := unix.Sysctl("kern.osrelease")
	if err != nil {
		return System{}, fmt.Errorf("sysctl kern.osrelease: %w", err)
	}

	machine, err := unix.Sysctl("hw.machine")
	if err != nil {
		return System{}, fmt.Errorf("sysctl hw.machine: %w", err)
	}

	kernVersion, err := unix.Sysctl("kern.version")
	if err != nil {
		return System{}, fmt.Errorf("sysctl kern.version: %w", err)
	}

	cpus, err := unix.SysctlUint32("hw.ncpuonline")
	if err != nil {
		cpus, err = unix.SysctlUint32("hw.ncpu")
		if err != nil {
			return System{}, fmt.Errorf("sysctl hw.ncpu: %w", err)
		}
	}

	return System{
		Release:  strings.TrimSpace(osRelease),
		Machine:  strings.TrimSpace(machine),
		Snapshot: strings.Contains(kernVersion, "-current") || strings.Contains(kernVersion, "-beta"),
		CPUs:     int(cpus),
	}, nil
}
