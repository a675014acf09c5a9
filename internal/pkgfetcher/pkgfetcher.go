package pkgfetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/schollz/progressbar/v3"

	"github.com/phantomjs-arm/phantomjs-alarm/internal/utils/logger"
)

// StatusError is a non-2xx answer to a download request.
type StatusError struct {
	URL        string
	StatusCode int
}

// HTTPStatus returns the status code the server answered with.
func (e *StatusError) HTTPStatus() int { return e.StatusCode }

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: bad status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Fetcher downloads single files, one attempt each.
type Fetcher struct {
	client   *http.Client
	progress io.Writer // nil disables the progress bar
	keyring  openpgp.EntityList
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithProgress draws a byte progress bar on w for every download.
func WithProgress(w io.Writer) Option {
	return func(f *Fetcher) { f.progress = w }
}

// WithKeyring requires a valid detached signature (<url>.sig) for packages
// fetched with FetchVerified.
func WithKeyring(keyring openpgp.EntityList) Option {
	return func(f *Fetcher) { f.keyring = keyring }
}

func NewFetcher(client *http.Client, opts ...Option) *Fetcher {
	f := &Fetcher{client: client}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// VerifiesSignatures reports whether a keyring is configured.
func (f *Fetcher) VerifiesSignatures() bool {
	return len(f.keyring) > 0
}

// Download fetches url to destPath. The body is written to destPath.part and
// renamed on success; no partial file survives a failure.
func (f *Fetcher) Download(ctx context.Context, url, destPath string) error {
	log := logger.Logger()
	logger.FetchReport.Add("GET %s", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}
	tmpPath := destPath + ".part"
	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	committed := false
	defer func() {
		out.Close()
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	var dst io.Writer = out
	var bar *progressbar.ProgressBar
	if f.progress != nil {
		bar = progressbar.NewOptions64(resp.ContentLength,
			progressbar.OptionSetWriter(f.progress),
			progressbar.OptionSetDescription("downloading "+path.Base(req.URL.Path)),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowBytes(true),
			progressbar.OptionThrottle(100*time.Millisecond),
		)
		dst = io.MultiWriter(out, bar)
	}

	start := time.Now()
	n, err := io.Copy(dst, resp.Body)
	if err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(destPath), err)
	}
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(f.progress)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	committed = true

	log.Debugf("downloaded %s (%d bytes) in %s", url, n, time.Since(start).Round(time.Millisecond))
	return nil
}

// Fetch downloads url into destDir under its base name and returns the local path.
func (f *Fetcher) Fetch(ctx context.Context, url, destDir string) (string, error) {
	dest := filepath.Join(destDir, path.Base(url))
	if err := f.Download(ctx, url, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// FetchVerified downloads url into destDir and, when a keyring is configured,
// downloads <url>.sig and checks it against the file.
func (f *Fetcher) FetchVerified(ctx context.Context, url, destDir string) (string, error) {
	dest, err := f.Fetch(ctx, url, destDir)
	if err != nil {
		return "", err
	}
	if !f.VerifiesSignatures() {
		return dest, nil
	}

	sigPath, err := f.Fetch(ctx, url+".sig", destDir)
	if err != nil {
		return "", fmt.Errorf("fetch signature: %w", err)
	}
	signer, err := VerifyDetached(f.keyring, dest, sigPath)
	if err != nil {
		return "", err
	}
	logger.Logger().Infof("verified %s (signed by %s)", filepath.Base(dest), signer)
	return dest, nil
}
