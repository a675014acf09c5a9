// Package repack assembles an upstream-style release tree around an ARM
// binary and stores it as an artifact in the destination directory.
package repack

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/phantomjs-arm/phantomjs-alarm/internal/archive"
	"github.com/phantomjs-arm/phantomjs-alarm/internal/stage"
	"github.com/phantomjs-arm/phantomjs-alarm/internal/utils/compression"
	"github.com/phantomjs-arm/phantomjs-alarm/internal/utils/logger"
	"github.com/phantomjs-arm/phantomjs-alarm/internal/version"
)

// Publisher receives every committed artifact and alias update.
type Publisher interface {
	PublishArtifact(ctx context.Context, localPath, name string) error
	PublishAlias(ctx context.Context, aliasName, targetName string) error
}

// Options configures a Repackager.
type Options struct {
	Project      string
	Format       string   // compression.Bzip2 or compression.Xz
	ReleaseFiles []string // copied from <project>-<dotted>/ in the release archive
	WorkRoot     string
	Publisher    Publisher // optional
}

// Repackager turns a binary into a finished artifact.
type Repackager struct {
	opts     Options
	store    *archive.Store
	releases *ReleaseCache
}

// Result describes one committed artifact.
type Result struct {
	Arch         string
	Version      string
	ArtifactPath string
	AliasUpdated bool
	AliasPath    string
}

func New(store *archive.Store, releases *ReleaseCache, opts Options) *Repackager {
	return &Repackager{opts: opts, store: store, releases: releases}
}

// Package builds <project>-<ver>-linux-<arch>/ around binaryPath, compresses it
// into the destination directory and updates the alias when ver is the newest
// packaging of its dotted version.
func (r *Repackager) Package(ctx context.Context, arch, ver, binaryPath string) (*Result, error) {
	log := logger.Logger()

	v, err := version.Parse(ver)
	if err != nil {
		return nil, stage.Wrap(stage.ValidationError, "validate version", arch, ver, err)
	}

	releaseArchive, err := r.releases.Ensure(ctx, v.Base)
	if err != nil {
		return nil, stage.Wrap(stage.DownloadError, "fetch release files", arch, ver, err)
	}

	dirName := r.store.DirName(arch, ver)
	stagingRoot := filepath.Join(r.opts.WorkRoot, "staging", arch)
	tree := filepath.Join(stagingRoot, dirName)
	if err := os.RemoveAll(tree); err != nil {
		return nil, stage.Wrap(stage.PackagingError, "prepare staging tree", arch, ver, err)
	}
	defer os.RemoveAll(tree)

	binDest := filepath.Join(tree, "bin", r.opts.Project)
	if err := copyExecutable(binaryPath, binDest); err != nil {
		return nil, stage.Wrap(stage.PackagingError, "stage binary", arch, ver, err)
	}

	prefix := r.opts.Project + "-" + v.Base
	if err := compression.ExtractTree(releaseArchive, prefix, r.opts.ReleaseFiles, tree); err != nil {
		return nil, stage.Wrap(stage.ExtractionError, "extract release files", arch, ver, err)
	}

	artifact, err := r.compress(arch, ver, tree, dirName)
	if err != nil {
		return nil, err
	}
	log.Infof("packaged %s", artifact)
	logger.FetchReport.Add("ARTIFACT %s", artifact)

	res := &Result{Arch: arch, Version: ver, ArtifactPath: artifact}

	updated, err := r.store.UpdateAlias(arch, ver)
	if err != nil {
		return res, stage.Wrap(stage.PackagingError, "update alias", arch, ver, err)
	}
	if updated {
		res.AliasUpdated = true
		res.AliasPath = filepath.Join(r.store.Dir, r.store.AliasName(arch, ver))
	} else if v.HasSuffix() {
		log.Infof("keeping existing alias %s: a newer packaging of %s is archived", r.store.AliasName(arch, ver), v.Base)
	}

	if r.opts.Publisher != nil {
		if err := r.publish(ctx, res); err != nil {
			return res, stage.Wrap(stage.PublishError, "publish artifact", arch, ver, err)
		}
	}
	return res, nil
}

// compress writes tree as <dirName>/ into a hidden temp file in the
// destination directory and renames it into place.
func (r *Repackager) compress(arch, ver, tree, dirName string) (string, error) {
	tmp, err := r.store.CreateTemp(arch, ver)
	if err != nil {
		return "", stage.Wrap(stage.PackagingError, "compress artifact", arch, ver, err)
	}
	committed := false
	defer func() {
		tmp.Close()
		if !committed {
			os.Remove(tmp.Name())
		}
	}()

	cw, err := compression.NewWriter(r.opts.Format, tmp)
	if err != nil {
		return "", stage.Wrap(stage.PackagingError, "compress artifact", arch, ver, err)
	}
	if err := compression.WriteTar(cw, tree, dirName); err != nil {
		return "", stage.Wrap(stage.PackagingError, "compress artifact", arch, ver, err)
	}
	if err := cw.Close(); err != nil {
		return "", stage.Wrap(stage.PackagingError, "compress artifact", arch, ver, err)
	}
	if err := tmp.Sync(); err != nil {
		return "", stage.Wrap(stage.PackagingError, "compress artifact", arch, ver, err)
	}
	if err := tmp.Close(); err != nil {
		return "", stage.Wrap(stage.PackagingError, "compress artifact", arch, ver, err)
	}

	final, err := r.store.Commit(tmp.Name(), arch, ver)
	if err != nil {
		return "", stage.Wrap(stage.PackagingError, "move artifact", arch, ver, err)
	}
	committed = true
	return final, nil
}

func (r *Repackager) publish(ctx context.Context, res *Result) error {
	name := filepath.Base(res.ArtifactPath)
	if err := r.opts.Publisher.PublishArtifact(ctx, res.ArtifactPath, name); err != nil {
		return err
	}
	if res.AliasUpdated {
		return r.opts.Publisher.PublishAlias(ctx, filepath.Base(res.AliasPath), name)
	}
	return nil
}

func copyExecutable(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open binary: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create bin dir: %w", err)
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0755)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy binary: %w", err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chmod(dst, 0755)
}
