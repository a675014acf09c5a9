package compression

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// ErrEntryNotFound is returned when an expected archive member is missing.
var ErrEntryNotFound = errors.New("entry not found in archive")

// cleanName normalises a tar member name ("./usr/bin/x" -> "usr/bin/x").
func cleanName(name string) string {
	name = strings.TrimPrefix(name, "./")
	return strings.TrimSuffix(path.Clean("/" + name)[1:], "/")
}

// ExtractEntry extracts the single regular file named entry from the archive at
// archivePath to destPath with the given mode.
func ExtractEntry(archivePath, entry, destPath string, mode os.FileMode) error {
	r, err := Open(archivePath)
	if err != nil {
		return err
	}
	defer r.Close()

	want := cleanName(entry)
	tr := tar.NewReader(r)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return fmt.Errorf("%s: %w", entry, ErrEntryNotFound)
		}
		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}
		if header.Typeflag != tar.TypeReg || cleanName(header.Name) != want {
			continue
		}

		if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
			return fmt.Errorf("create dest dir: %w", err)
		}
		return writeFile(destPath, tr, mode)
	}
}

// ExtractTree extracts the members of archivePath found below the top-level
// directory prefix whose relative path is one of names or lies inside one of
// them. Every name must match at least one member.
func ExtractTree(archivePath, prefix string, names []string, destDir string) error {
	r, err := Open(archivePath)
	if err != nil {
		return err
	}
	defer r.Close()

	prefix = cleanName(prefix)
	found := make(map[string]bool, len(names))
	for _, n := range names {
		found[cleanName(n)] = false
	}

	cleanDest := filepath.Clean(destDir)
	tr := tar.NewReader(r)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}

		rel, ok := strings.CutPrefix(cleanName(header.Name), prefix+"/")
		if !ok || rel == "" {
			continue
		}
		selected := ""
		for n := range found {
			if rel == n || strings.HasPrefix(rel, n+"/") {
				selected = n
				break
			}
		}
		if selected == "" {
			continue
		}

		target := filepath.Join(cleanDest, filepath.FromSlash(rel))
		if !strings.HasPrefix(target, cleanDest+string(os.PathSeparator)) {
			return fmt.Errorf("illegal file path: %s", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("create directory %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("create parent dir for %s: %w", target, err)
			}
			if err := writeFile(target, tr, os.FileMode(header.Mode).Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("create parent dir for %s: %w", target, err)
			}
			if err := os.Symlink(header.Linkname, target); err != nil {
				return fmt.Errorf("create symlink %s: %w", target, err)
			}
		default:
			continue
		}
		found[selected] = true
	}

	var missing []string
	for n, ok := range found {
		if !ok {
			missing = append(missing, prefix+"/"+n)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%s: %w", strings.Join(missing, ", "), ErrEntryNotFound)
	}
	return nil
}

// WriteTar writes srcDir as a tar stream to w, rooted at the directory name
// base. Entries are written in lexical order.
func WriteTar(w io.Writer, srcDir, base string) error {
	tw := tar.NewWriter(w)

	err := filepath.WalkDir(srcDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		name := base
		if rel != "." {
			name = path.Join(base, filepath.ToSlash(rel))
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		link := ""
		if info.Mode()&os.ModeSymlink != 0 {
			if link, err = os.Readlink(p); err != nil {
				return err
			}
		}
		header, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return fmt.Errorf("tar header for %s: %w", p, err)
		}
		header.Name = name
		if d.IsDir() {
			header.Name += "/"
		}
		header.Uname, header.Gname = "", ""
		header.Uid, header.Gid = 0, 0

		if err := tw.WriteHeader(header); err != nil {
			return fmt.Errorf("write tar header %s: %w", name, err)
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.Copy(tw, f); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return tw.Close()
}

func writeFile(target string, r io.Reader, mode os.FileMode) error {
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("create file %s: %w", target, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("write file %s: %w", target, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close file %s: %w", target, err)
	}
	// OpenFile honours the umask; the mode must survive for executables.
	return os.Chmod(target, mode)
}
