// Package alarm scrapes the Arch Linux ARM mirror's directory listings for
// packaged versions and builds package URLs.
package alarm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/phantomjs-arm/phantomjs-alarm/internal/utils/logger"
)

// maxListingBytes bounds the directory page read into memory.
const maxListingBytes = 32 << 20

// Mirror describes where a mirror keeps its per-architecture repositories.
type Mirror struct {
	Base       string // e.g. http://mirror.archlinuxarm.org
	RepoPath   string // e.g. {arch}/community/
	Project    string // package name, e.g. phantomjs
	PackageExt string // e.g. .pkg.tar.xz
}

// ListingURL is the directory page holding arch's packages.
func (m Mirror) ListingURL(arch string) string {
	path := strings.ReplaceAll(m.RepoPath, "{arch}", arch)
	return strings.TrimSuffix(m.Base, "/") + "/" + strings.TrimPrefix(path, "/")
}

// PackageFile is the mirror's file name for arch and version.
func (m Mirror) PackageFile(arch, ver string) string {
	return fmt.Sprintf("%s-%s-%s%s", m.Project, ver, arch, m.PackageExt)
}

// PackageURL is the download URL of the package for arch and version.
func (m Mirror) PackageURL(arch, ver string) string {
	listing := m.ListingURL(arch)
	if !strings.HasSuffix(listing, "/") {
		listing += "/"
	}
	return listing + m.PackageFile(arch, ver)
}

// ExtractVersions returns the <VERSION> of every <project>-<VERSION>-<arch><ext>
// referenced from an anchor href in page, in page order. Duplicates are kept and
// the captured strings are not validated.
func ExtractVersions(page, project, arch, pkgExt string) []string {
	re := regexp.MustCompile(`<a\s[^>]*href\s*=\s*["']?(?:[^"'>\s]*/)?` +
		regexp.QuoteMeta(project+"-") + `([^"'>\s/]+)` +
		regexp.QuoteMeta("-"+arch+pkgExt) + `["'>\s]`)

	var versions []string
	for _, m := range re.FindAllStringSubmatch(page, -1) {
		versions = append(versions, m[1])
	}
	return versions
}

// Scraper fetches listings over HTTP.
type Scraper struct {
	client *http.Client
	mirror Mirror
}

func NewScraper(client *http.Client, mirror Mirror) *Scraper {
	return &Scraper{client: client, mirror: mirror}
}

// StatusError is a non-2xx answer from the mirror.
type StatusError struct {
	URL        string
	StatusCode int
}

// HTTPStatus returns the status code the mirror answered with.
func (e *StatusError) HTTPStatus() int { return e.StatusCode }

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// FetchListing downloads the listing page at url.
func (s *Scraper) FetchListing(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxListingBytes))
	if err != nil {
		return "", fmt.Errorf("read listing %s: %w", url, err)
	}
	return string(body), nil
}

// Scrape returns the candidate versions listed for arch. A page without a
// single matching package is an error; there is no cached fallback.
func (s *Scraper) Scrape(ctx context.Context, arch string) ([]string, error) {
	log := logger.Logger()

	url := s.mirror.ListingURL(arch)
	log.Debugf("fetching listing %s", url)
	logger.FetchReport.Add("GET %s", url)

	page, err := s.FetchListing(ctx, url)
	if err != nil {
		return nil, err
	}
	versions := ExtractVersions(page, s.mirror.Project, arch, s.mirror.PackageExt)
	if len(versions) == 0 {
		return nil, fmt.Errorf("no %s packages for %s found at %s", s.mirror.Project, arch, url)
	}
	log.Debugf("found %d candidate versions for %s: %v", len(versions), arch, versions)
	return versions, nil
}
