package selfupdate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/snapup/internal/logger"
	"github.com/oshokin/snapup/internal/service/common"
)

// ExecutableMode is applied to the replaced executable.
const ExecutableMode os.FileMode = 0o755

var errEmptyTag = errors.New("update tag is empty")

// Installer replaces an executable with a published release asset.
type Installer struct {
	client     *common.Client
	feed       Feed
	targetPath string
}

// NewInstaller replaces targetPath; an empty path means the running executable.
func NewInstaller(client *common.Client, feed Feed, targetPath string) *Installer {
	return &Installer{client: client, feed: feed, targetPath: targetPath}
}

// InstallUpdate downloads the asset of tag to a temporary file and copies it
// over the target.
func (i *Installer) InstallUpdate(ctx context.Context, tag string) error {
	if tag == "" {
		return errEmptyTag
	}

	assetURL := i.feed.AssetURL(tag)

	logger.InfoKV(ctx, "Downloading snapup update", "tag", tag, "url", assetURL)

	tmp, err := os.CreateTemp("", "snapup-update-*")
	if err != nil {
		return fmt.Errorf("create temporary file: %w", err)
	}

	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	if err = i.download(ctx, assetURL, tmp); err != nil {
		return err
	}

	if _, err = tmp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind %s: %w", tmp.Name(), err)
	}

	logger.Debug(ctx, "Applying update")

	options := goupdate.Options{
		TargetPath: i.targetPath,
		TargetMode: ExecutableMode,
	}

	if err = goupdate.Apply(tmp, options); err != nil {
		return fmt.Errorf("apply update: %w", err)
	}

	i.removeOldCopy()

	logger.InfoKV(ctx, "snapup updated", "tag", tag)

	return nil
}

func (i *Installer) download(ctx context.Context, assetURL string, dst io.Writer) error {
	body, err := i.client.Open(ctx, assetURL)
	if err != nil {
		return fmt.Errorf("download update: %w", err)
	}

	defer func() {
		_ = body.Close()
	}()

	if _, err = io.Copy(dst, body); err != nil {
		return fmt.Errorf("download update: %w", err)
	}

	return nil
}

// removeOldCopy deletes the hidden ".<name>.old" copy go-update may leave
// next to the target when it cannot remove it itself.
func (i *Installer) removeOldCopy() {
	target := i.targetPath
	if target == "" {
		exe, err := os.Executable()
		if err != nil {
			return
		}

		target = exe
	}

	oldFileName := filepath.Join(filepath.Dir(target), "."+filepath.Base(target)+".old")
	if _, err := os.Stat(oldFileName); err == nil {
		_ = os.Remove(oldFileName)
	}
}
