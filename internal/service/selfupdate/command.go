package selfupdate

import (
	"context"

	"github.com/oshokin/snapup/internal/logger"
	"github.com/oshokin/snapup/internal/service/common"
	"github.com/oshokin/snapup/internal/version"
)

// Options are inputs accepted by the self-update entry point.
type Options struct {
	// Client performs every request; nil means common.NewClient().
	Client *common.Client
	// Feed locates releases.
	Feed Feed
	// Current is the running build; empty means version.Short().
	Current string
	// Install replaces the executable when an update is installable.
	Install bool
	// TargetPath is the executable to replace; empty means the running one.
	TargetPath string
}

// Run checks for an update and installs it when requested.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "selfupdate")

	client := opts.Client
	if client == nil {
		client = common.NewClient()
	}

	current := opts.Current
	if current == "" {
		current = version.Short()
	}

	result, err := NewChecker(client, opts.Feed).CheckForUpdate(ctx, current)
	if err != nil {
		logger.ErrorKV(ctx, "Update check failed", "error", err)
		return err
	}

	switch {
	case result.Available:
		logger.InfoKV(ctx, "A newer snapup is available", "tag", result.Latest)
	case result.Unversioned:
		logger.InfoKV(ctx, "Running a branch build, not comparing versions", "build", current)
	default:
		logger.Info(ctx, "snapup is up to date")
	}

	if !result.Installable(opts.Install) {
		return nil
	}

	return NewInstaller(client, opts.Feed, opts.TargetPath).InstallUpdate(ctx, result.Latest)
}
