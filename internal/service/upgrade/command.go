package upgrade

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oshokin/snapup/internal/config"
	"github.com/oshokin/snapup/internal/logger"
	"github.com/oshokin/snapup/internal/repository/state"
	"github.com/oshokin/snapup/internal/service/common"
	"github.com/oshokin/snapup/internal/service/extract"
	"github.com/oshokin/snapup/internal/service/fetch"
	"github.com/oshokin/snapup/internal/service/integrity"
	"github.com/oshokin/snapup/internal/service/kernel"
	"github.com/oshokin/snapup/internal/service/merge"
	"github.com/oshokin/snapup/internal/service/power"
	"github.com/oshokin/snapup/internal/service/selfupdate"
	"github.com/oshokin/snapup/internal/service/signify"
)

// ProcessName is the executable name other instances are detected by.
const ProcessName = "snapup"

// Options are inputs accepted by the upgrade entry point.
type Options struct {
	// Flags are the parsed command-line flags.
	Flags config.Flags
	// Feed locates snapup releases for the update and integrity checks;
	// the zero value means selfupdate.DefaultFeed().
	Feed selfupdate.Feed
	// System overrides the probed system facts.
	System *config.System
	// Client overrides the HTTP client used for every download.
	Client *common.Client
	// Runner overrides the runner for ftp, sysmerge, installboot and reboot.
	Runner common.Runner
	// Confirmer overrides the terminal prompter in interactive mode.
	Confirmer Confirmer
	// Executable overrides the path of the running executable.
	Executable string
}

// runner holds the state of one invocation.
type runner struct {
	opts   *Options
	cfg    config.Config
	feed   selfupdate.Feed
	client *common.Client
	exec   common.Runner
}

// Run resolves configuration, runs the preflight checks and performs the
// requested operation. It is the public entry point for the CLI.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "snapup")

	r, err := newRunner(ctx, opts)
	if err != nil {
		logger.ErrorKV(ctx, "Cannot start", "error", err)
		return err
	}

	switch {
	case r.cfg.IntegrityCheck:
		err = r.checkIntegrity(ctx)
	case r.cfg.UpdateOnly():
		err = r.selfUpdate(ctx)
	default:
		err = r.upgrade(ctx)
	}

	return err
}

// newRunner resolves configuration. Flag conflicts are rejected before any
// file or network access.
func newRunner(ctx context.Context, opts *Options) (*runner, error) {
	if err := config.CheckConflicts(opts.Flags, nil); err != nil {
		return nil, err
	}

	sys, err := probe(opts)
	if err != nil {
		return nil, err
	}

	configPath, explicit := opts.Flags.ConfigPath, true
	if configPath == "" {
		configPath, explicit = config.DefaultPath(sys.Home), false
	}

	values, err := config.Load(configPath, explicit)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Resolve(ctx, values, opts.Flags, sys)
	if err != nil {
		return nil, err
	}

	r := &runner{
		opts:   opts,
		cfg:    cfg,
		feed:   opts.Feed,
		client: opts.Client,
		exec:   opts.Runner,
	}

	if r.feed.APIURL == "" {
		r.feed = selfupdate.DefaultFeed()
	}

	if r.client == nil {
		r.client = common.NewClient()
	}

	if r.exec == nil {
		r.exec = common.NewExecRunner()
	}

	return r, nil
}

func probe(opts *Options) (config.System, error) {
	if opts.System != nil {
		return *opts.System, nil
	}

	sys, err := config.ProbeSystem()
	if err != nil {
		return config.System{}, fmt.Errorf("probe system: %w", err)
	}

	return sys, nil
}

func (r *runner) executable() (string, error) {
	if r.opts.Executable != "" {
		return r.opts.Executable, nil
	}

	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}

	return filepath.EvalSymlinks(exe)
}

func (r *runner) fetcher() *fetch.Fetcher {
	if len(r.cfg.TransferOptions) > 0 {
		return fetch.New(fetch.NewCommandTransferer(r.exec, r.cfg.TransferOptions))
	}

	return fetch.New(fetch.NewHTTPTransferer(r.client))
}

func (r *runner) checkIntegrity(ctx context.Context) error {
	exe, err := r.executable()
	if err != nil {
		return err
	}

	keyPath := signify.NewVerifier(r.cfg.Root).SelfKeyPath()
	checker := integrity.NewChecker(keyPath, r.fetcher(), r.feed.LatestSignatureURL())

	return checker.CheckSelf(ctx, exe, r.cfg.IntegritySig)
}

func (r *runner) selfUpdate(ctx context.Context) error {
	target := ""

	if r.cfg.InstallUpdate {
		if err := r.requirePrivilege(); err != nil {
			return err
		}

		exe, err := r.executable()
		if err != nil {
			return err
		}

		target = exe
	}

	return selfupdate.Run(ctx, &selfupdate.Options{
		Client:     r.client,
		Feed:       r.feed,
		Install:    r.cfg.InstallUpdate,
		TargetPath: target,
	})
}

// requirePrivilege demands root when the run changes the running system.
// Runs against an alternate root only touch that tree.
func (r *runner) requirePrivilege() error {
	if filepath.Clean(r.cfg.Root) != string(filepath.Separator) {
		return nil
	}

	actor, err := common.DetectActor()
	if err != nil {
		return err
	}

	return common.RequireRoot(actor)
}

func (r *runner) warnOtherInstances(ctx context.Context) {
	pids, err := common.OtherInstances(ProcessName)
	if err != nil {
		logger.DebugKV(ctx, "Cannot list processes", "error", err)
		return
	}

	if len(pids) > 0 {
		logger.WarnKV(ctx, "Another snapup is running; concurrent runs are not supported", "pids", pids)
	}
}

func (r *runner) upgrade(ctx context.Context) error {
	if err := r.requirePrivilege(); err != nil {
		return err
	}

	r.warnOtherInstances(ctx)

	confirmer := r.opts.Confirmer
	if r.cfg.Interactive && confirmer == nil {
		prompter, err := common.NewPrompter()
		if err != nil {
			return fmt.Errorf("interactive mode: %w", err)
		}

		confirmer = prompter
	}

	components := Components{
		Fetcher:  r.fetcher(),
		Verifier: signify.NewVerifier(r.cfg.Root),
		Kernel: kernel.NewManager(r.cfg.Root,
			kernel.WithRunner(r.exec),
			kernel.WithCPUs(r.cfg.CPUs),
			kernel.WithVariant(kernelVariant(r.cfg.KernelVariant)),
		),
		Archiver:  extract.NewExtractor(r.cfg.Root),
		Merger:    merge.NewMerger(r.exec),
		Rebooter:  power.NewRebooter(r.exec),
		Marker:    state.NewFileRepository(r.cfg.MarkerPath()),
		Scheduler: state.NewScriptWriter(r.cfg.Root),
		Confirmer: confirmer,
	}

	return New(r.cfg, components).Run(ctx)
}

func kernelVariant(v config.KernelVariant) kernel.Variant {
	switch v {
	case config.KernelForceMP:
		return kernel.VariantMP
	case config.KernelForceSP:
		return kernel.VariantSP
	default:
		return kernel.VariantAuto
	}
}
