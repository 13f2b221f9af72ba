//go:build !openbsd

package config

import "runtime"

// probeKernel cannot know an OpenBSD release elsewhere; --set-version is required.
func probeKernel() (System, error) {
	return System{
		Machine: runtime.GOARCH,
		CPUs:    runtime.NumCPU(),
	}, nil
}
