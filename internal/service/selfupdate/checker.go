package selfupdate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/oshokin/snapup/internal/logger"
	"github.com/oshokin/snapup/internal/service/common"
	"github.com/oshokin/snapup/internal/version"
)

// maxReleaseDocument caps the release API response.
const maxReleaseDocument = 1 << 20

var errNoTag = errors.New("release feed returned no tag")

// Result is the outcome of a check.
type Result struct {
	// Current is the running build.
	Current string
	// Latest is the newest published tag.
	Latest string
	// Available is true when Latest is newer than Current.
	Available bool
	// Unversioned is true for branch builds, which are never compared.
	Unversioned bool
}

// Installable reports whether an update may be installed. Branch builds are
// eligible whenever installation was explicitly requested.
func (r Result) Installable(requested bool) bool {
	if !requested {
		return false
	}

	return r.Available || r.Unversioned
}

// Checker queries the release feed.
type Checker struct {
	client *common.Client
	feed   Feed
}

// NewChecker creates a checker for feed.
func NewChecker(client *common.Client, feed Feed) *Checker {
	return &Checker{client: client, feed: feed}
}

type releaseDocument struct {
	TagName string `json:"tag_name"`
}

// LatestTag returns the tag of the newest release.
func (c *Checker) LatestTag(ctx context.Context) (string, error) {
	body, err := c.client.Open(ctx, c.feed.LatestURL())
	if err != nil {
		return "", fmt.Errorf("query release feed: %w", err)
	}

	defer func() {
		_ = body.Close()
	}()

	var doc releaseDocument
	if err = json.NewDecoder(io.LimitReader(body, maxReleaseDocument)).Decode(&doc); err != nil {
		return "", fmt.Errorf("decode release feed: %w", err)
	}

	tag := strings.TrimSpace(doc.TagName)
	if tag == "" {
		return "", errNoTag
	}

	return tag, nil
}

// CheckForUpdate compares current with the latest published tag.
func (c *Checker) CheckForUpdate(ctx context.Context, current string) (Result, error) {
	latest, err := c.LatestTag(ctx)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Current:     current,
		Latest:      latest,
		Unversioned: version.IsUnversioned(current),
	}

	if !result.Unversioned {
		result.Available = version.Compare(latest, current) > 0
	}

	logger.InfoKV(ctx, "Checked for snapup update",
		"current", current, "latest", latest, "available", result.Available)

	return result, nil
}
