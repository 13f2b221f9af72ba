package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/oshokin/snapup/internal/config"
	"github.com/oshokin/snapup/internal/logger"
	"github.com/oshokin/snapup/internal/service/upgrade"
	"github.com/oshokin/snapup/internal/version"
)

var (
	// flags collects every command-line switch of a run.
	flags config.Flags
	// logLevel is the minimum level written to stdout.
	logLevel string
	// verbose is a shortcut for --log-level debug.
	verbose bool

	// rootCmd represents the base command upgrading the system.
	rootCmd = &cobra.Command{
		Use:   "snapup",
		Short: "Upgrade OpenBSD to the latest snapshot or release.",
		Long: `Downloads the newest kernel and install sets from a mirror, verifies them
with signify, backs up and replaces the kernel, and extracts the sets onto the
root filesystem.

The previous kernel is kept as /obsd and restored automatically when a later
step fails before any set has been extracted. Settings are read from
$HOME/.snapuprc (rc, YAML or TOML) and overridden by flags.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(_ *cobra.Command, _ []string) error {
			return applyLogLevel()
		},
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return upgrade.Run(ctx, &upgrade.Options{Flags: flags})
		},
	}
)

// Execute runs the snapup CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	defer logger.Sync()

	if err := rootCmd.Execute(); err != nil {
		logger.ErrorKV(context.Background(), "snapup failed", "error", err)
		logger.Sync()
		os.Exit(1)
	}
}

func applyLogLevel() error {
	if verbose {
		logger.SetLevel(zapcore.DebugLevel)
		return nil
	}

	level, ok := logger.ParseLogLevel(logLevel)
	if !ok {
		return fmt.Errorf("unknown log level %q", logLevel)
	}

	logger.SetLevel(level)

	return nil
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	f := rootCmd.Flags()

	f.StringVarP(&flags.ConfigPath, "config", "c", "", "path to configuration file (default $HOME/.snapuprc)")
	f.StringVar(&flags.Root, "root", "/", "filesystem root to upgrade")
	f.StringVarP(&flags.Machine, "machine", "m", "", "machine architecture override")
	f.StringVarP(&flags.SetVersion, "set-version", "v", "", "release version override, e.g. 7.6")
	f.StringVarP(&flags.Mirror, "mirror", "r", "", "mirror host name or URL")
	f.StringVar(&flags.IntegritySig, "integrity-sig", "", "local signature for --integrity-check")

	f.BoolVarP(&flags.ForceSnapshot, "force-snapshot", "s", false, "use the snapshots directory")
	f.BoolVarP(&flags.SkipSignature, "skip-signature", "S", false, "do not verify signatures")
	f.BoolVarP(&flags.ExtractOnly, "extract-only", "e", false, "install previously downloaded files")
	f.BoolVarP(&flags.DownloadOnly, "download-only", "d", false, "download and verify, then stop")
	f.BoolVarP(&flags.Merge, "merge", "M", false, "run sysmerge after extraction")
	f.BoolVarP(&flags.NoX11, "no-x11", "x", false, "skip the X11 sets")
	f.BoolVarP(&flags.IntegrityCheck, "integrity-check", "I", false, "verify this executable and exit")
	f.BoolVarP(&flags.Interactive, "interactive", "i", false, "ask before changing the system")
	f.BoolVarP(&flags.ForceMP, "force-mp", "f", false, "install the multiprocessor kernel")
	f.BoolVar(&flags.ForceSP, "force-sp", false, "install the single-processor kernel")
	f.BoolVarP(&flags.KernelOnly, "kernel-only", "k", false, "upgrade only the kernel")
	f.BoolVarP(&flags.SetsOnly, "sets-only", "K", false, "upgrade only the sets")
	f.BoolVarP(&flags.NoKernelBackup, "no-kernel-backup", "B", false, "do not back up the running kernel")
	f.BoolVarP(&flags.CheckUpdate, "check-update", "u", false, "check for a newer snapup and exit")
	f.BoolVarP(&flags.InstallUpdate, "install-update", "U", false, "install a newer snapup and exit")
	f.BoolVarP(&flags.NoBackupDevice, "no-backup-device", "b", false, "do not run installboot")
	f.BoolVarP(&flags.Reboot, "reboot", "R", false, "reboot when done")
	f.BoolVarP(&flags.WarnExit, "warn-exit", "W", false, "exit when the build was already applied")

	f.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
	f.BoolVar(&verbose, "verbose", false, "shortcut for --log-level debug")
}
