// Package archive manages the destination directory: artifact naming, the
// presence check that makes runs idempotent, atomic placement of new
// artifacts and the plain-version alias symlinks.
package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/phantomjs-arm/phantomjs-alarm/internal/utils/logger"
	"github.com/phantomjs-arm/phantomjs-alarm/internal/version"
)

// Store is a destination directory holding <project>-<version>-linux-<arch>.<ext> files.
type Store struct {
	Dir     string
	Project string
	Ext     string // "tar.bz2" or "tar.xz"
}

func NewStore(dir, project, ext string) *Store {
	return &Store{Dir: dir, Project: project, Ext: ext}
}

// ArtifactName is the file name of the artifact for arch and version.
func (s *Store) ArtifactName(arch, ver string) string {
	return fmt.Sprintf("%s-%s-linux-%s.%s", s.Project, ver, arch, s.Ext)
}

// AliasName is the symlink name exposing the newest artifact of ver's dotted triple.
func (s *Store) AliasName(arch, ver string) string {
	return s.ArtifactName(arch, version.StripSuffix(ver))
}

// ArtifactPath is the absolute path of the artifact for arch and version.
func (s *Store) ArtifactPath(arch, ver string) string {
	return filepath.Join(s.Dir, s.ArtifactName(arch, ver))
}

// DirName is the top-level directory inside the artifact.
func (s *Store) DirName(arch, ver string) string {
	return fmt.Sprintf("%s-%s-linux-%s", s.Project, ver, arch)
}

// AlreadyArchived reports whether the artifact for arch and version is present.
// Presence alone counts; contents are not inspected.
func (s *Store) AlreadyArchived(arch, ver string) bool {
	_, err := os.Stat(s.ArtifactPath(arch, ver))
	return err == nil
}

// CreateTemp opens a hidden temporary file in the destination directory.
// Assemble the artifact there and hand it to Commit.
func (s *Store) CreateTemp(arch, ver string) (*os.File, error) {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create destination dir: %w", err)
	}
	f, err := os.CreateTemp(s.Dir, "."+s.ArtifactName(arch, ver)+".part-*")
	if err != nil {
		return nil, fmt.Errorf("create temp artifact: %w", err)
	}
	return f, nil
}

// Commit moves a finished temp file to the artifact's final name in one rename.
func (s *Store) Commit(tmpPath, arch, ver string) (string, error) {
	final := s.ArtifactPath(arch, ver)
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return "", fmt.Errorf("chmod temp artifact: %w", err)
	}
	if err := os.Rename(tmpPath, final); err != nil {
		return "", fmt.Errorf("move artifact into place: %w", err)
	}
	return final, nil
}

// ArchivedSuffixes lists the suffixes of artifacts present for arch and the dotted version base.
// Symlinks are ignored.
func (s *Store) ArchivedSuffixes(arch, base string) ([]int, error) {
	re, err := regexp.Compile("^" + regexp.QuoteMeta(s.Project+"-"+base+"-") + `(\d+)` +
		regexp.QuoteMeta("-linux-"+arch+"."+s.Ext) + "$")
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list destination dir: %w", err)
	}

	var suffixes []int
	for _, e := range entries {
		if e.Type()&os.ModeSymlink != 0 {
			continue
		}
		m := re.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		suffixes = append(suffixes, n)
	}
	return suffixes, nil
}

// ShouldAlias reports whether ver is the newest packaging of its dotted triple for arch:
// it must carry a suffix and no archived artifact may have a strictly greater one.
func (s *Store) ShouldAlias(arch, ver string) (bool, error) {
	v, err := version.Parse(ver)
	if err != nil {
		return false, err
	}
	if !v.HasSuffix() {
		return false, nil
	}
	suffixes, err := s.ArchivedSuffixes(arch, v.Base)
	if err != nil {
		return false, err
	}
	for _, n := range suffixes {
		if n > v.Suffix {
			return false, nil
		}
	}
	return true, nil
}

// UpdateAlias points the alias of ver at ver's artifact when ShouldAlias allows it.
// The link is swapped with a rename so readers never see it missing.
func (s *Store) UpdateAlias(arch, ver string) (bool, error) {
	log := logger.Logger()

	ok, err := s.ShouldAlias(arch, ver)
	if err != nil || !ok {
		return false, err
	}

	aliasPath := filepath.Join(s.Dir, s.AliasName(arch, ver))
	target := s.ArtifactName(arch, ver)

	if info, err := os.Lstat(aliasPath); err == nil {
		if info.Mode()&os.ModeSymlink == 0 {
			log.Warnf("%s is a regular file, not replacing it with an alias", aliasPath)
			return false, nil
		}
		if current, err := os.Readlink(aliasPath); err == nil && current == target {
			return true, nil
		}
	}

	tmp := filepath.Join(s.Dir, fmt.Sprintf(".%s.link-%d", s.AliasName(arch, ver), os.Getpid()))
	_ = os.Remove(tmp)
	if err := os.Symlink(target, tmp); err != nil {
		return false, fmt.Errorf("create alias link: %w", err)
	}
	if err := os.Rename(tmp, aliasPath); err != nil {
		os.Remove(tmp)
		return false, fmt.Errorf("move alias into place: %w", err)
	}
	log.Infof("alias %s -> %s", filepath.Base(aliasPath), target)
	return true, nil
}
