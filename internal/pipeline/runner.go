// Package pipeline drives scrape, fetch, unpack and repackage for every
// configured architecture, or for a single local binary.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"

	"github.com/google/uuid"

	"github.com/phantomjs-arm/phantomjs-alarm/internal/alarm"
	"github.com/phantomjs-arm/phantomjs-alarm/internal/archive"
	"github.com/phantomjs-arm/phantomjs-alarm/internal/config"
	"github.com/phantomjs-arm/phantomjs-alarm/internal/pkgfetcher"
	"github.com/phantomjs-arm/phantomjs-alarm/internal/publish"
	"github.com/phantomjs-arm/phantomjs-alarm/internal/repack"
	"github.com/phantomjs-arm/phantomjs-alarm/internal/stage"
	"github.com/phantomjs-arm/phantomjs-alarm/internal/utils/compression"
	"github.com/phantomjs-arm/phantomjs-alarm/internal/utils/general/slice"
	"github.com/phantomjs-arm/phantomjs-alarm/internal/utils/logger"
	"github.com/phantomjs-arm/phantomjs-alarm/internal/utils/network"
	"github.com/phantomjs-arm/phantomjs-alarm/internal/version"
)

// archPattern restricts architecture names taken from the command line; they
// end up in file names.
var archPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Runner owns everything one run needs, including its temporary work root.
// Call Close when done.
type Runner struct {
	cfg       *config.GlobalConfig
	helpers   *config.ConfigHelpers
	client    *http.Client
	progress  io.Writer
	publisher repack.Publisher

	runID    string
	workRoot string
	fetcher  *pkgfetcher.Fetcher
	store    *archive.Store
	releases *repack.ReleaseCache
	repack   *repack.Repackager
}

// Option configures a Runner.
type Option func(*Runner)

// WithHTTPClient replaces the default client built from the http config section.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Runner) { r.client = c }
}

// WithProgress draws download progress bars on w.
func WithProgress(w io.Writer) Option {
	return func(r *Runner) { r.progress = w }
}

// WithPublisher receives every new artifact and alias.
func WithPublisher(p repack.Publisher) Option {
	return func(r *Runner) { r.publisher = p }
}

// NewRunner prepares the destination directory and a fresh work root.
func NewRunner(cfg *config.GlobalConfig, opts ...Option) (*Runner, error) {
	log := logger.Logger()

	r := &Runner{
		cfg:     cfg,
		helpers: config.NewConfigHelpers(cfg),
		runID:   uuid.NewString(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.client == nil {
		r.client = network.NewSecureHTTPClient(r.helpers.HTTPTimeout(), cfg.HTTP.UserAgent)
	}

	var fetchOpts []pkgfetcher.Option
	if r.progress != nil {
		fetchOpts = append(fetchOpts, pkgfetcher.WithProgress(r.progress))
	}
	if cfg.Keyring != "" {
		keyring, err := pkgfetcher.LoadKeyring(cfg.Keyring)
		if err != nil {
			return nil, fmt.Errorf("loading keyring: %w", err)
		}
		fetchOpts = append(fetchOpts, pkgfetcher.WithKeyring(keyring))
		log.Infof("package signatures will be verified against %d key(s) from %s", len(keyring), cfg.Keyring)
	}
	r.fetcher = pkgfetcher.NewFetcher(r.client, fetchOpts...)

	if r.publisher == nil && cfg.Publish.S3.Enabled {
		s3 := cfg.Publish.S3
		r.publisher = publish.NewS3Publisher(publish.S3Config{
			Endpoint:  s3.Endpoint,
			Bucket:    s3.Bucket,
			Region:    s3.Region,
			Prefix:    s3.Prefix,
			AccessKey: s3.AccessKey,
			SecretKey: s3.SecretKey,
		})
		log.Infof("publishing new artifacts to bucket %s at %s", s3.Bucket, s3.Endpoint)
	}

	destDir, err := r.helpers.CreateDestDir()
	if err != nil {
		return nil, fmt.Errorf("preparing destination: %w", err)
	}
	r.store = archive.NewStore(destDir, cfg.Project, cfg.ArtifactExt())

	workRoot, err := r.helpers.CreateWorkRoot(r.runID)
	if err != nil {
		return nil, err
	}
	r.workRoot = workRoot
	log.Debugf("run %s using work root %s", r.runID, workRoot)

	r.releases = repack.NewReleaseCache(r.fetcher, cfg.ReleaseURL, filepath.Join(workRoot, "release"))
	r.repack = repack.New(r.store, r.releases, repack.Options{
		Project:      cfg.Project,
		Format:       cfg.Format,
		ReleaseFiles: cfg.ReleaseFiles,
		WorkRoot:     workRoot,
		Publisher:    r.publisher,
	})
	return r, nil
}

// RunID identifies this run in logs and in the work root name.
func (r *Runner) RunID() string {
	return r.runID
}

// WorkRoot is the run's temporary directory, removed by Close.
func (r *Runner) WorkRoot() string {
	return r.workRoot
}

// Store is the destination directory the runner writes to.
func (r *Runner) Store() *archive.Store {
	return r.store
}

// Close writes the fetch report when report_dir is set and removes the work root.
func (r *Runner) Close() error {
	log := logger.Logger()

	var errs []error
	if r.cfg.ReportDir != "" && logger.FetchReport.Len() > 0 {
		path, err := logger.FetchReport.WriteToFile(r.cfg.ReportDir)
		if err != nil {
			errs = append(errs, fmt.Errorf("writing report: %w", err))
		} else {
			log.Infof("fetch report written to %s", path)
		}
	}
	if r.workRoot != "" {
		if err := os.RemoveAll(r.workRoot); err != nil {
			errs = append(errs, fmt.Errorf("removing work root %s: %w", r.workRoot, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Runner) mirror(base string) alarm.Mirror {
	if base == "" {
		base = r.cfg.Mirror
	}
	return alarm.Mirror{
		Base:       base,
		RepoPath:   r.cfg.RepoPath,
		Project:    r.cfg.Project,
		PackageExt: r.cfg.PackageExt,
	}
}

// Sweep scrapes the mirror for every configured architecture, in order, and
// packages each valid version that is not archived yet. An empty mirrorURL
// uses the configured mirror. A failing architecture does not stop the others;
// the returned error joins all failures.
func (r *Runner) Sweep(ctx context.Context, mirrorURL string) (*Summary, error) {
	mirror := r.mirror(mirrorURL)
	scraper := alarm.NewScraper(r.client, mirror)
	logger.Logger().Infof("sweeping %s for %v", mirror.Base, r.cfg.Architectures)

	sum := &Summary{}
	for _, arch := range r.cfg.Architectures {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		r.sweepArch(ctx, scraper, mirror, arch, sum)
	}
	return sum, sum.Err()
}

func (r *Runner) sweepArch(ctx context.Context, scraper *alarm.Scraper, mirror alarm.Mirror, arch string, sum *Summary) {
	log := logger.Logger()

	found, err := scraper.Scrape(ctx, arch)
	if err != nil {
		err = stage.Wrap(stage.ScrapeError, "scrape listing", arch, "", err)
		log.Errorf("%v", err)
		sum.fail(arch, "", err)
		return
	}

	for _, ver := range candidates(arch, found) {
		if r.store.AlreadyArchived(arch, ver) {
			log.Infof("%s %s is already archived, skipping", arch, ver)
			sum.Skipped = append(sum.Skipped, Skip{Arch: arch, Version: ver})
			continue
		}
		res, err := r.packageRemote(ctx, mirror, arch, ver)
		if res != nil {
			sum.Packaged = append(sum.Packaged, res)
		}
		if err != nil {
			log.Errorf("%v", err)
			sum.fail(arch, ver, err)
		}
	}
}

// candidates drops invalid and repeated versions, keeping page order.
func candidates(arch string, found []string) []string {
	log := logger.Logger()

	return slice.Filter(slice.Unique(found), func(v string) bool {
		if !version.Validate(v) {
			log.Warnf("ignoring %s package with invalid version %q", arch, v)
			return false
		}
		return true
	})
}

func (r *Runner) packageRemote(ctx context.Context, mirror alarm.Mirror, arch, ver string) (*repack.Result, error) {
	log := logger.Logger()

	dir := filepath.Join(r.workRoot, "packages", arch, ver)
	defer os.RemoveAll(dir)

	url := mirror.PackageURL(arch, ver)
	log.Infof("fetching %s %s from %s", arch, ver, url)
	pkg, err := r.fetcher.FetchVerified(ctx, url, dir)
	if err != nil {
		if errors.Is(err, pkgfetcher.ErrBadSignature) {
			return nil, stage.Wrap(stage.ValidationError, "verify package signature", arch, ver, err)
		}
		return nil, stage.Wrap(stage.DownloadError, "download package", arch, ver, err)
	}

	binary := filepath.Join(dir, r.cfg.Project)
	if err := compression.ExtractEntry(pkg, r.cfg.BinaryEntry, binary, 0755); err != nil {
		return nil, stage.Wrap(stage.ExtractionError, "extract binary", arch, ver, err)
	}
	return r.repack.Package(ctx, arch, ver, binary)
}

// PackageLocal packages a binary already on disk under an explicit version and
// architecture. Nothing is scraped; the version must be valid.
func (r *Runner) PackageLocal(ctx context.Context, binaryPath, ver, arch string) (*Summary, error) {
	log := logger.Logger()
	sum := &Summary{}

	if !version.Validate(ver) {
		err := stage.Wrap(stage.ValidationError, "validate version", arch, ver,
			fmt.Errorf("invalid version %q, expected N.N.N or N.N.N-N", ver))
		sum.fail(arch, ver, err)
		return sum, err
	}
	if !archPattern.MatchString(arch) {
		err := stage.Wrap(stage.ValidationError, "validate architecture", arch, ver,
			fmt.Errorf("invalid architecture %q", arch))
		sum.fail(arch, ver, err)
		return sum, err
	}
	if !r.cfg.HasArchitecture(arch) {
		log.Warnf("%s is not one of the configured architectures %v", arch, r.cfg.Architectures)
	}

	info, err := os.Stat(binaryPath)
	if err == nil && info.IsDir() {
		err = fmt.Errorf("%s is a directory", binaryPath)
	}
	if err != nil {
		err = stage.Wrap(stage.ValidationError, "check binary", arch, ver, err)
		sum.fail(arch, ver, err)
		return sum, err
	}

	if r.store.AlreadyArchived(arch, ver) {
		log.Infof("%s %s is already archived, skipping", arch, ver)
		sum.Skipped = append(sum.Skipped, Skip{Arch: arch, Version: ver})
		return sum, nil
	}

	res, err := r.repack.Package(ctx, arch, ver, binaryPath)
	if res != nil {
		sum.Packaged = append(sum.Packaged, res)
	}
	if err != nil {
		sum.fail(arch, ver, err)
		return sum, err
	}
	return sum, nil
}
