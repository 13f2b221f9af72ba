package packager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/oshokin/snapup/internal/domain/release"
	"github.com/oshokin/snapup/internal/logger"
	"github.com/oshokin/snapup/internal/service/selfupdate"
	"github.com/oshokin/snapup/internal/service/signify"
)

// signatureMode is the permission of every written signature file.
const signatureMode = 0o644

// SignatureComment is the untrusted comment of the written signatures.
const SignatureComment = "verify with " + signify.SelfKeyName

// Options contains inputs for the packager entry point.
type Options struct {
	// SecretKeyPath is an unencrypted signify secret key.
	SecretKeyPath string
	// Dir holds the executables and receives the signatures.
	Dir string
	// Assets are file names inside Dir; empty means every snapup-* executable.
	Assets []string
	// Feed is where the files will be published.
	Feed selfupdate.Feed
}

// packager signs one distribution directory.
// It is unexported: callers should use Run, which encapsulates setup and validation.
type packager struct {
	opts   *Options
	key    signify.SecretKey
	assets []string
	sums   map[string]string
	// written lists the created files, in creation order.
	written []string
}

var errNoAssets = errors.New("no snapup executables found")

// Run signs the executables of opts.Dir.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "snapup-packager")

	pkg, err := newPackager(opts)
	if err != nil {
		return fmt.Errorf("initialize packager: %w", err)
	}

	if err = pkg.Run(ctx); err != nil {
		return fmt.Errorf("packager failed: %w", err)
	}

	logger.Info(ctx, "Packager completed successfully")

	return nil
}

func newPackager(opts *Options) (*packager, error) {
	data, err := os.ReadFile(filepath.Clean(opts.SecretKeyPath))
	if err != nil {
		return nil, fmt.Errorf("read secret key: %w", err)
	}

	key, err := signify.ParseSecretKey(data)
	if err != nil {
		return nil, err
	}

	assets := slices.Clone(opts.Assets)
	if len(assets) == 0 {
		if assets, err = discoverAssets(opts.Dir); err != nil {
			return nil, err
		}
	}

	if len(assets) == 0 {
		return nil, fmt.Errorf("%s: %w", opts.Dir, errNoAssets)
	}

	slices.Sort(assets)

	return &packager{
		opts:   opts,
		key:    key,
		assets: assets,
		sums:   make(map[string]string, len(assets)),
	}, nil
}

// discoverAssets lists the snapup-<os>-<arch> executables of dir.
func discoverAssets(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read distribution directory: %w", err)
	}

	var assets []string

	for _, entry := range entries {
		name := entry.Name()

		switch {
		case !entry.Type().IsRegular():
		case !strings.HasPrefix(name, selfupdate.AssetPrefix+"-"):
		case strings.HasSuffix(name, selfupdate.SignatureSuffix):
		default:
			assets = append(assets, name)
		}
	}

	return assets, nil
}

// Run writes a detached signature per asset, then the signed manifest.
func (p *packager) Run(ctx context.Context) error {
	logger.InfoKV(ctx, "Signing executables", "files", len(p.assets), "key", p.key.KeyNum.String())

	for _, name := range p.assets {
		if err := p.signAsset(name); err != nil {
			return err
		}
	}

	logger.InfoKV(ctx, "Saving signed manifest", "path", release.SignatureManifest)

	manifest := signify.FormatManifest(p.assets, p.sums)
	if err := p.write(release.SignatureManifest, signify.SignEmbedded(SignatureComment, p.key.KeyNum, p.key.Key, manifest)); err != nil {
		return err
	}

	p.printNextSteps(ctx)

	return nil
}

func (p *packager) signAsset(name string) error {
	path := filepath.Join(p.opts.Dir, name)

	message, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}

	sum, err := signify.FileSHA256(path)
	if err != nil {
		return err
	}

	p.sums[name] = sum

	return p.write(name+selfupdate.SignatureSuffix, signify.SignDetached(SignatureComment, p.key.KeyNum, p.key.Key, message))
}

func (p *packager) write(name string, contents []byte) error {
	if err := os.WriteFile(filepath.Join(p.opts.Dir, name), contents, signatureMode); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}

	p.written = append(p.written, name)

	return nil
}

// printNextSteps logs human-readable guidance for publishing the files.
func (p *packager) printNextSteps(ctx context.Context) {
	var builder strings.Builder

	builder.WriteString("Attach the following files to the release of ")
	builder.WriteString(p.opts.Feed.Repository)
	builder.WriteString(":\n")
	builder.WriteString(strings.Join(slices.Concat(p.assets, p.written), ",\n"))

	public := p.key.Public()

	builder.WriteString("\n\nInstall the public key as /")
	builder.WriteString(signify.KeyDir)
	builder.WriteString("/")
	builder.WriteString(signify.SelfKeyName)
	builder.WriteString(" (key number ")
	builder.WriteString(public.KeyNum.String())
	builder.WriteString(") on every machine running snapup --integrity-check.")

	logger.Info(ctx, builder.String())
}
