package repack

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/phantomjs-arm/phantomjs-alarm/internal/pkgfetcher"
	"github.com/phantomjs-arm/phantomjs-alarm/internal/utils/logger"
)

// ReleaseCache downloads the upstream release archive of each dotted version
// at most once per run, however many architectures share it.
type ReleaseCache struct {
	mu       sync.Mutex
	fetcher  *pkgfetcher.Fetcher
	urlTmpl  string // contains {version}
	dir      string
	archives map[string]string
}

func NewReleaseCache(fetcher *pkgfetcher.Fetcher, urlTmpl, dir string) *ReleaseCache {
	return &ReleaseCache{
		fetcher:  fetcher,
		urlTmpl:  urlTmpl,
		dir:      dir,
		archives: make(map[string]string),
	}
}

// URL is the release archive URL for a dotted version.
func (c *ReleaseCache) URL(base string) string {
	return strings.ReplaceAll(c.urlTmpl, "{version}", base)
}

// Ensure returns the local path of the release archive for base, downloading it
// on first use.
func (c *ReleaseCache) Ensure(ctx context.Context, base string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.archives[base]; ok {
		return p, nil
	}

	url := c.URL(base)
	// keep the version in the local name: GitHub archive URLs end in just "<version>.tar.gz"
	dest := filepath.Join(c.dir, base, path.Base(url))
	logger.Logger().Infof("fetching release files for %s from %s", base, url)
	if err := c.fetcher.Download(ctx, url, dest); err != nil {
		return "", fmt.Errorf("release files %s: %w", base, err)
	}
	c.archives[base] = dest
	return dest, nil
}

// Len is the number of cached release archives.
func (c *ReleaseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.archives)
}
