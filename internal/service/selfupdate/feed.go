package selfupdate

import (
	"net/url"
	"runtime"
	"strings"
)

const (
	// DefaultAPIURL is the release API root.
	DefaultAPIURL = "https://api.github.com"
	// DefaultDownloadURL is the root release assets are served from.
	DefaultDownloadURL = "https://github.com"
	// DefaultRepository is the owner/name of the snapup repository.
	DefaultRepository = "oshokin/snapup"

	// AssetPrefix starts the name of every published executable.
	AssetPrefix = "snapup"
	// SignatureSuffix is appended to an asset name for its detached signature.
	SignatureSuffix = ".sig"
)

// Feed locates releases and their assets.
type Feed struct {
	// APIURL serves /repos/<repository>/releases/latest.
	APIURL string
	// DownloadURL serves /<repository>/releases/download/<tag>/<asset>.
	DownloadURL string
	// Repository is "owner/name".
	Repository string
	// GOOS and GOARCH select the asset; empty means the running platform.
	GOOS   string
	GOARCH string
}

// DefaultFeed returns the public snapup release feed.
func DefaultFeed() Feed {
	return Feed{
		APIURL:      DefaultAPIURL,
		DownloadURL: DefaultDownloadURL,
		Repository:  DefaultRepository,
	}
}

// LatestURL is the API endpoint describing the latest release.
func (f Feed) LatestURL() string {
	return join(f.APIURL, "repos", f.Repository, "releases", "latest")
}

// AssetName is the executable published for the platform, e.g. snapup-openbsd-amd64.
func (f Feed) AssetName() string {
	goos, goarch := f.GOOS, f.GOARCH
	if goos == "" {
		goos = runtime.GOOS
	}

	if goarch == "" {
		goarch = runtime.GOARCH
	}

	return AssetPrefix + "-" + goos + "-" + goarch
}

// AssetURL is where the executable of tag is downloaded from.
func (f Feed) AssetURL(tag string) string {
	return join(f.DownloadURL, f.Repository, "releases", "download", url.PathEscape(tag), f.AssetName())
}

// LatestSignatureURL is the detached signature of the latest executable.
func (f Feed) LatestSignatureURL() string {
	return join(f.DownloadURL, f.Repository, "releases", "latest", "download", f.AssetName()+SignatureSuffix)
}

func join(base string, elems ...string) string {
	return strings.TrimRight(base, "/") + "/" + strings.Join(elems, "/")
}
