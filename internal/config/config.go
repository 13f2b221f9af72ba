package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/oshokin/snapup/internal/domain/release"
	"github.com/oshokin/snapup/internal/logger"
)

// Recognised configuration keys.
const (
	KeyInteractive = "INTERACTIVE"
	KeyDest        = "DST"
	KeyMerge       = "MERGE"
	KeyMirror      = "MIRROR"
	KeyNoX11       = "NO_X11"
	KeyFTPOptions  = "FTP_OPTS"
	KeyCheckUpdate = "CHK_UPDATE"
	KeyInsUpdate   = "INS_UPDATE"
	KeyInstallBoot = "INSTBOOT"
	KeyReboot      = "REBOOT"
	KeyAfter       = "AFTER"
	KeyWarnExit    = "WEXIT"
	KeyExtractOnly = "EXTRACT_ONLY"
)

const (
	// DefaultMirror is used when neither configuration nor /etc/installurl names one.
	DefaultMirror = "cdn.openbsd.org"
	// DefaultScheme is used for bare mirror host names.
	DefaultScheme = "https"
	// DefaultDest is the download directory relative to the root.
	DefaultDest = "home/_snapup"
	// InstallURLPath holds the system's preferred mirror.
	InstallURLPath = "etc/installurl"
	// MarkerFilename stores the last applied build in the home directory.
	MarkerFilename = ".snapup_last"
	// RCFilename is the default configuration file in the home directory.
	RCFilename = ".snapuprc"
)

var (
	// ErrConflict reports mutually exclusive options.
	ErrConflict = errors.New("conflicting options")

	errBadBool   = errors.New("not a boolean")
	errBadMirror = errors.New("invalid mirror")
	errNotPath   = errors.New("expected a path or false")
	errNoVersion = errors.New("release version is unknown, pass --set-version")
	errNoMachine = errors.New("machine is unknown, pass --machine")
)

//nolint:gochecknoglobals // Lookup table for key validation.
var knownKeys = map[string]struct{}{
	KeyInteractive: {}, KeyDest: {}, KeyMerge: {}, KeyMirror: {}, KeyNoX11: {},
	KeyFTPOptions: {}, KeyCheckUpdate: {}, KeyInsUpdate: {}, KeyInstallBoot: {},
	KeyReboot: {}, KeyAfter: {}, KeyWarnExit: {}, KeyExtractOnly: {},
}

// Mode selects which branches of the pipeline run.
type Mode int

const (
	// ModeFull upgrades kernel and sets.
	ModeFull Mode = iota
	// ModeKernelOnly stops after the kernel is installed.
	ModeKernelOnly
	// ModeSetsOnly never touches the kernel.
	ModeSetsOnly
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case ModeKernelOnly:
		return "kernel-only"
	case ModeSetsOnly:
		return "sets-only"
	default:
		return "full"
	}
}

// KernelVariant forces or leaves open the kernel choice.
type KernelVariant int

const (
	// KernelAuto picks the MP kernel when more than one CPU is online.
	KernelAuto KernelVariant = iota
	// KernelForceMP always installs the MP kernel.
	KernelForceMP
	// KernelForceSP always installs the single-processor kernel.
	KernelForceSP
)

// Flags are the command-line inputs. Boolean flags can only switch features on.
type Flags struct {
	ConfigPath     string
	Root           string
	Machine        string
	SetVersion     string
	Mirror         string
	IntegritySig   string
	ForceSnapshot  bool
	SkipSignature  bool
	ExtractOnly    bool
	DownloadOnly   bool
	Merge          bool
	NoX11          bool
	IntegrityCheck bool
	Interactive    bool
	ForceMP        bool
	ForceSP        bool
	KernelOnly     bool
	SetsOnly       bool
	NoKernelBackup bool
	CheckUpdate    bool
	InstallUpdate  bool
	NoBackupDevice bool
	Reboot         bool
	WarnExit       bool
}

// Config is the resolved, read-only configuration of one run.
type Config struct {
	// Root is the filesystem root every system path is relative to.
	Root string
	// Home is the invoking user's home directory.
	Home string
	// Dest is the download directory.
	Dest string
	// Target is the mirror directory artifacts come from.
	Target release.Target
	// Sets are the installable archives.
	Sets release.ArtifactSet
	// Kernel names the kernel images of the target machine.
	Kernel release.KernelBundle
	// CPUs is the number of online processors.
	CPUs int

	Mode             Mode
	KernelVariant    KernelVariant
	DownloadOnly     bool
	ExtractOnly      bool
	VerifySignatures bool
	IncludeExtended  bool
	BackupKernel     bool
	Interactive      bool
	Merge            bool
	Reboot           bool
	WarnExit         bool
	CheckUpdate      bool
	InstallUpdate    bool
	IntegrityCheck   bool
	// IntegritySig is an optional local signature for the integrity check.
	IntegritySig string
	// InstallBoot is the boot device for installboot(8); empty disables it.
	InstallBoot string
	// After is a program run once on first boot; empty disables it.
	After string
	// TransferOptions are passed verbatim to ftp(1); empty selects the built-in HTTP client.
	TransferOptions []string
}

// SystemPath re-bases an absolute system path onto Root.
func (c Config) SystemPath(p string) string {
	return filepath.Join(c.Root, filepath.FromSlash(p))
}

// MarkerPath is where the last applied build identifier is stored.
func (c Config) MarkerPath() string {
	return filepath.Join(c.Home, MarkerFilename)
}

// DestPath returns a file inside the download directory.
func (c Config) DestPath(name string) string {
	return filepath.Join(c.Dest, name)
}

// Archives returns the set archives of the run in extraction order.
func (c Config) Archives() []string {
	return c.Sets.Archives(c.Target.Version, c.IncludeExtended)
}

// UpdateOnly reports whether the run only checks or installs a new snapup.
func (c Config) UpdateOnly() bool {
	return c.CheckUpdate || c.InstallUpdate
}

// CheckConflicts rejects mutually exclusive flags. It performs no I/O.
func CheckConflicts(flags Flags, values map[string]string) error {
	extractOnly := flags.ExtractOnly
	if v, ok := values[KeyExtractOnly]; ok {
		b, err := ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", KeyExtractOnly, err)
		}

		extractOnly = extractOnly || b
	}

	switch {
	case flags.KernelOnly && flags.SetsOnly:
		return fmt.Errorf("kernel-only and sets-only: %w", ErrConflict)
	case flags.DownloadOnly && extractOnly:
		return fmt.Errorf("download-only and extract-only: %w", ErrConflict)
	case flags.ForceMP && flags.ForceSP:
		return fmt.Errorf("force-mp and force-sp: %w", ErrConflict)
	default:
		return nil
	}
}

// Resolve builds the run configuration from the configuration file values,
// the command-line flags and the probed system facts.
//
//nolint:cyclop,funlen // One linear pass over every recognised key.
func Resolve(ctx context.Context, values map[string]string, flags Flags, sys System) (Config, error) {
	if err := CheckConflicts(flags, values); err != nil {
		return Config{}, err
	}

	for key := range values {
		if _, ok := knownKeys[key]; !ok {
			logger.WarnKV(ctx, "Ignoring unknown configuration key", "key", key)
		}
	}

	root := flags.Root
	if root == "" {
		root = string(filepath.Separator)
	}

	cfg := Config{
		Root:             root,
		Home:             sys.Home,
		Sets:             release.DefaultArtifactSet(),
		CPUs:             sys.CPUs,
		VerifySignatures: !flags.SkipSignature,
		BackupKernel:     !flags.NoKernelBackup,
		DownloadOnly:     flags.DownloadOnly,
		IntegrityCheck:   flags.IntegrityCheck,
		IntegritySig:     flags.IntegritySig,
	}

	switch {
	case flags.KernelOnly:
		cfg.Mode = ModeKernelOnly
	case flags.SetsOnly:
		cfg.Mode = ModeSetsOnly
	}

	switch {
	case flags.ForceMP:
		cfg.KernelVariant = KernelForceMP
	case flags.ForceSP:
		cfg.KernelVariant = KernelForceSP
	}

	var err error

	bools := []struct {
		key  string
		flag bool
		dst  *bool
	}{
		{KeyInteractive, flags.Interactive, &cfg.Interactive},
		{KeyMerge, flags.Merge, &cfg.Merge},
		{KeyReboot, flags.Reboot, &cfg.Reboot},
		{KeyWarnExit, flags.WarnExit, &cfg.WarnExit},
		{KeyCheckUpdate, flags.CheckUpdate, &cfg.CheckUpdate},
		{KeyInsUpdate, flags.InstallUpdate, &cfg.InstallUpdate},
		{KeyExtractOnly, flags.ExtractOnly, &cfg.ExtractOnly},
	}
	for _, b := range bools {
		if *b.dst, err = boolValue(values, b.key, b.flag); err != nil {
			return Config{}, err
		}
	}

	noX11, err := boolValue(values, KeyNoX11, flags.NoX11)
	if err != nil {
		return Config{}, err
	}

	cfg.IncludeExtended = !noX11
	cfg.CheckUpdate = cfg.CheckUpdate || cfg.InstallUpdate

	cfg.Dest = values[KeyDest]
	if cfg.Dest == "" {
		cfg.Dest = cfg.SystemPath(DefaultDest)
	}

	installBoot, err := pathOrFalse(values, KeyInstallBoot)
	if err != nil {
		return Config{}, err
	}

	if !flags.NoBackupDevice {
		cfg.InstallBoot = installBoot
	}

	if cfg.After, err = pathOrFalse(values, KeyAfter); err != nil {
		return Config{}, err
	}
	cfg.TransferOptions = strings.Fields(values[KeyFTPOptions])

	if cfg.Target, err = resolveTarget(cfg, values, flags, sys); err != nil {
		return Config{}, err
	}

	cfg.Kernel = release.KernelBundleFor(cfg.Target.Machine)

	return cfg, nil
}

func resolveTarget(cfg Config, values map[string]string, flags Flags, sys System) (release.Target, error) {
	mirror := flags.Mirror
	if mirror == "" {
		mirror = values[KeyMirror]
	}

	if mirror == "" {
		mirror = readInstallURL(cfg.SystemPath(InstallURLPath))
	}

	if mirror == "" {
		mirror = DefaultMirror
	}

	scheme, host, err := ParseMirror(mirror)
	if err != nil {
		return release.Target{}, err
	}

	target := release.Target{
		Scheme:  scheme,
		Mirror:  host,
		Machine: firstNonEmpty(flags.Machine, sys.Machine),
		Version: firstNonEmpty(flags.SetVersion, sys.Release),
	}

	if target.Version == "" {
		return release.Target{}, errNoVersion
	}

	if target.Machine == "" {
		return release.Target{}, errNoMachine
	}

	target.Channel = target.Version
	if flags.ForceSnapshot || sys.Snapshot {
		target.Channel = release.ChannelSnapshots
	}

	return target, nil
}

// ParseMirror splits a bare host or a URL into scheme and host.
// Any path of a URL mirror is dropped: the layout below the host is fixed.
func ParseMirror(mirror string) (string, string, error) {
	mirror = strings.TrimSpace(mirror)
	if mirror == "" {
		return "", "", errBadMirror
	}

	if !strings.Contains(mirror, "://") {
		host, _, _ := strings.Cut(mirror, "/")
		if host == "" {
			return "", "", fmt.Errorf("%q: %w", mirror, errBadMirror)
		}

		return DefaultScheme, host, nil
	}

	u, err := url.Parse(mirror)
	if err != nil {
		return "", "", fmt.Errorf("%q: %w: %w", mirror, errBadMirror, err)
	}

	if u.Scheme == "" || u.Host == "" {
		return "", "", fmt.Errorf("%q: %w", mirror, errBadMirror)
	}

	return u.Scheme, u.Host, nil
}

// ParseBool accepts the boolean spellings used in configuration files.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "on", "y":
		return true, nil
	case "no", "off", "n", "":
		return false, nil
	}

	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, fmt.Errorf("%q: %w", s, errBadBool)
	}

	return b, nil
}

func boolValue(values map[string]string, key string, flag bool) (bool, error) {
	if flag {
		return true, nil
	}

	v, ok := values[key]
	if !ok {
		return false, nil
	}

	b, err := ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}

	return b, nil
}

// pathOrFalse maps the "false" spelling of a path-or-false key to "".
// A true spelling names no path and is rejected.
func pathOrFalse(values map[string]string, key string) (string, error) {
	v := strings.TrimSpace(values[key])

	b, err := ParseBool(v)
	switch {
	case err != nil:
		return v, nil
	case b:
		return "", fmt.Errorf("%s=%s: %w", key, v, errNotPath)
	default:
		return "", nil
	}
}

func readInstallURL(path string) string {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return ""
	}

	line, _, _ := strings.Cut(string(data), "\n")

	return strings.TrimSpace(line)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}

	return ""
}
