package kernel

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/oshokin/snapup/internal/domain/release"
	"github.com/oshokin/snapup/internal/logger"
	"github.com/oshokin/snapup/internal/service/common"
)

const (
	// ChecksumPath records the SHA256 of the installed kernel.
	ChecksumPath = "/var/db/kernel.SHA256"
	// RebootPath is the reboot binary kept with the kernel backup.
	RebootPath = "/sbin/reboot"
	// InstallBootProgram writes boot blocks.
	InstallBootProgram = "installboot"

	kernelMode os.FileMode = 0o600
)

var (
	errNoBackup  = errors.New("no kernel backup was taken")
	errNoMPImage = errors.New("multiprocessor kernel requested but not published for this machine")
)

// Variant overrides the CPU-count based kernel choice.
type Variant int

const (
	// VariantAuto installs the MP kernel when more than one CPU is online.
	VariantAuto Variant = iota
	// VariantMP always installs the MP kernel.
	VariantMP
	// VariantSP always installs the single-processor kernel.
	VariantSP
)

// mandatoryPairs are always part of a backup.
//
//nolint:gochecknoglobals // Fixed backup layout.
var mandatoryPairs = []PathPair{
	{From: "/" + release.KernelPrimary, To: "/obsd"},
	{From: "/" + release.KernelRamdisk, To: "/obsd.rd"},
	{From: RebootPath, To: "/sbin/oreboot"},
}

// optionalPairs are backed up only when the source exists.
//
//nolint:gochecknoglobals // Fixed backup layout.
var optionalPairs = []PathPair{
	{From: "/" + release.KernelMP, To: "/obsd.mp"},
	{From: "/" + release.KernelSPSaved, To: "/obsd.sp"},
}

// Manager owns the kernel files of one root filesystem.
type Manager struct {
	root    string
	fs      afero.Fs
	src     afero.Fs
	runner  common.Runner
	cpus    int
	variant Variant

	// snapshot holds the pairs copied by the last successful Backup.
	snapshot []PathPair
}

// Option configures a Manager.
type Option func(*Manager)

// WithFs replaces the root filesystem, which must already be rooted.
func WithFs(fs afero.Fs) Option {
	return func(m *Manager) {
		m.fs = fs
	}
}

// WithSourceFs replaces the filesystem new kernel images are read from.
func WithSourceFs(fs afero.Fs) Option {
	return func(m *Manager) {
		m.src = fs
	}
}

// WithRunner replaces the runner used for installboot.
func WithRunner(runner common.Runner) Option {
	return func(m *Manager) {
		m.runner = runner
	}
}

// WithCPUs sets the number of online processors.
func WithCPUs(cpus int) Option {
	return func(m *Manager) {
		m.cpus = cpus
	}
}

// WithVariant forces a kernel variant.
func WithVariant(variant Variant) Option {
	return func(m *Manager) {
		m.variant = variant
	}
}

// NewManager manages the kernel files below root.
func NewManager(root string, opts ...Option) *Manager {
	m := &Manager{
		root:   root,
		fs:     afero.NewBasePathFs(afero.NewOsFs(), root),
		src:    afero.NewOsFs(),
		runner: common.NewExecRunner(),
		cpus:   1,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// UseMP reports whether the multiprocessor kernel is installed from bundle.
func (m *Manager) UseMP(bundle release.KernelBundle) bool {
	if !bundle.HasMP() {
		return false
	}

	switch m.variant {
	case VariantMP:
		return true
	case VariantSP:
		return false
	default:
		return m.cpus > 1
	}
}

// HasBackup reports whether Backup succeeded during this run.
func (m *Manager) HasBackup() bool {
	return len(m.snapshot) > 0
}

// Backup copies the running kernel files to their backup paths.
// Every pair is attempted; any failure fails the whole backup.
func (m *Manager) Backup(ctx context.Context) error {
	pairs := make([]PathPair, 0, len(mandatoryPairs)+len(optionalPairs))
	pairs = append(pairs, mandatoryPairs...)

	for _, pair := range optionalPairs {
		if _, err := m.fs.Stat(pair.From); err == nil {
			pairs = append(pairs, pair)
		}
	}

	logger.InfoKV(ctx, "Backing up kernel", "files", len(pairs))

	m.snapshot = nil

	if err := m.copyAll(ctx, "backup", pairs); err != nil {
		return err
	}

	m.snapshot = pairs

	return nil
}

// Rollback restores the files saved by the last Backup.
// Every pair is attempted; failing restorations are reported together.
func (m *Manager) Rollback(ctx context.Context) error {
	if !m.HasBackup() {
		return errNoBackup
	}

	pairs := make([]PathPair, 0, len(m.snapshot))
	for _, pair := range m.snapshot {
		pairs = append(pairs, pair.Inverse())
	}

	logger.WarnKV(ctx, "Restoring kernel from backup", "files", len(pairs))

	return m.copyAll(ctx, "rollback", pairs)
}

// InstallKernel copies the images of bundle from srcDir onto the root.
// With backupFirst, nothing is replaced unless Backup succeeds; such failures
// match ErrBackup.
func (m *Manager) InstallKernel(ctx context.Context, srcDir string, bundle release.KernelBundle, backupFirst bool) error {
	if m.variant == VariantMP && !bundle.HasMP() {
		return errNoMPImage
	}

	if backupFirst {
		if err := m.Backup(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrBackup, err)
		}
	}

	useMP := m.UseMP(bundle)

	src := func(name string) string {
		return filepath.Join(srcDir, name)
	}

	var steps []PathPair

	if useMP {
		steps = []PathPair{
			{From: src(bundle.Primary), To: "/" + release.KernelSPSaved},
			{From: src(bundle.MP), To: "/" + release.KernelMP},
			{From: src(bundle.MP), To: "/" + release.KernelPrimary},
		}
	} else {
		steps = []PathPair{
			{From: src(bundle.Primary), To: "/" + release.KernelPrimary},
		}
	}

	steps = append(steps, PathPair{From: src(bundle.Ramdisk), To: "/" + release.KernelRamdisk})

	logger.InfoKV(ctx, "Installing kernel", "multiprocessor", useMP, "cpus", m.cpus)

	for _, step := range steps {
		if err := copyFile(m.src, step.From, m.fs, step.To); err != nil {
			return &CopyError{Op: "install", Failed: []PathPair{step}, Err: err}
		}

		if err := m.fs.Chmod(step.To, kernelMode); err != nil {
			return &CopyError{Op: "install", Failed: []PathPair{step}, Err: err}
		}
	}

	return m.writeChecksum(ctx)
}

// InstallBoot writes new boot blocks to device.
func (m *Manager) InstallBoot(ctx context.Context, device string) error {
	args := []string{"-v"}
	if filepath.Clean(m.root) != string(filepath.Separator) {
		args = append(args, "-r", m.root)
	}

	args = append(args, device)

	logger.InfoKV(ctx, "Installing boot blocks", "device", device)

	if err := m.runner.Run(ctx, InstallBootProgram, args...); err != nil {
		return fmt.Errorf("installboot %s: %w", device, err)
	}

	return nil
}

func (m *Manager) writeChecksum(ctx context.Context) error {
	kernel, err := m.fs.Open("/" + release.KernelPrimary)
	if err != nil {
		return fmt.Errorf("open installed kernel: %w", err)
	}

	defer func() {
		_ = kernel.Close()
	}()

	hasher := sha256.New()
	if _, err = io.Copy(hasher, kernel); err != nil {
		return fmt.Errorf("calculate kernel checksum: %w", err)
	}

	line := fmt.Sprintf("SHA256 (/%s) = %s\n", release.KernelPrimary, hex.EncodeToString(hasher.Sum(nil)))

	err = writeFile(m.fs, ChecksumPath, kernelMode, func(w io.Writer) error {
		_, writeErr := io.WriteString(w, line)
		return writeErr
	})
	if err != nil {
		return fmt.Errorf("write kernel checksum: %w", err)
	}

	logger.DebugKV(ctx, "Kernel checksum recorded", "path", ChecksumPath)

	return nil
}

func (m *Manager) copyAll(ctx context.Context, op string, pairs []PathPair) error {
	var (
		failed []PathPair
		errs   error
	)

	for _, pair := range pairs {
		if err := copyFile(m.fs, pair.From, m.fs, pair.To); err != nil {
			logger.ErrorKV(ctx, "Kernel file copy failed", "op", op, "pair", pair.String(), "error", err)

			failed = append(failed, pair)
			errs = multierr.Append(errs, err)

			continue
		}

		logger.DebugKV(ctx, "Copied", "op", op, "pair", pair.String())
	}

	if errs != nil {
		return &CopyError{Op: op, Failed: failed, Err: errs}
	}

	return nil
}
