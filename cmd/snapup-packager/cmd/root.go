package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/snapup/internal/logger"
	"github.com/oshokin/snapup/internal/service/packager"
	"github.com/oshokin/snapup/internal/service/selfupdate"
	"github.com/oshokin/snapup/internal/version"
)

var (
	// secretKeyPath is the unencrypted signify secret key.
	secretKeyPath string
	// repository is the owner/name the release is published under.
	repository string

	// rootCmd represents the base command for signing release executables.
	rootCmd = &cobra.Command{
		Use:   "snapup-packager [dist-dir] [asset...]",
		Short: "Sign snapup release executables",
		Long: `Writes a detached signify signature next to every snapup-<os>-<arch>
executable of the distribution directory and a signed SHA256.sig manifest.

The secret key must be created without a passphrase (signify -G -n).`,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			feed := selfupdate.DefaultFeed()
			feed.Repository = repository

			return packager.Run(ctx, &packager.Options{
				SecretKeyPath: secretKeyPath,
				Dir:           args[0],
				Assets:        args[1:],
				Feed:          feed,
			})
		},
	}
)

// Execute runs the snapup-packager CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		logger.Sync()
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&secretKeyPath, "secret-key", "s", "snapup.sec", "path to the signify secret key")
	rootCmd.Flags().StringVarP(&repository, "repository", "r", selfupdate.DefaultRepository, "release repository owner/name")
}
