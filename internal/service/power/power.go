package power

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/oshokin/snapup/internal/logger"
	"github.com/oshokin/snapup/internal/service/common"
)

// ErrUnsupportedOS indicates the current OS is not supported for reboot.
var ErrUnsupportedOS = errors.New("unsupported operating system")

// Rebooter restarts the machine into the new kernel.
type Rebooter struct {
	runner common.Runner
	goos   string
}

// NewRebooter reboots through runner on the running OS.
func NewRebooter(runner common.Runner) *Rebooter {
	return &Rebooter{runner: runner, goos: runtime.GOOS}
}

// Command returns the reboot command for the OS:
// - OpenBSD:     `reboot`
// - Linux/macOS: `shutdown -r now`
func (r *Rebooter) Command() ([]string, error) {
	switch r.goos {
	case "openbsd":
		return []string{"reboot"}, nil
	case "linux", "darwin":
		return []string{"shutdown", "-r", "now"}, nil
	default:
		return nil, fmt.Errorf("reboot on %s: %w", r.goos, ErrUnsupportedOS)
	}
}

// Reboot runs the reboot command. On success the OS takes over the rest.
func (r *Rebooter) Reboot(ctx context.Context) error {
	command, err := r.Command()
	if err != nil {
		return err
	}

	logger.Warn(ctx, "Rebooting")

	return r.runner.Run(ctx, command[0], command[1:]...)
}
