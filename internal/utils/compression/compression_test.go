package compression

import (
	"archive/tar"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

type member struct {
	name string
	body string
	dir  bool
	mode int64
}

func tarBytes(t *testing.T, members []member) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, m := range members {
		h := &tar.Header{Name: m.name, Mode: m.mode, Size: int64(len(m.body)), Typeflag: tar.TypeReg}
		if h.Mode == 0 {
			h.Mode = 0644
		}
		if m.dir {
			h.Typeflag = tar.TypeDir
			h.Size = 0
			h.Mode = 0755
		}
		if err := tw.WriteHeader(h); err != nil {
			t.Fatalf("write header: %v", err)
		}
		if !m.dir {
			if _, err := tw.Write([]byte(m.body)); err != nil {
				t.Fatalf("write body: %v", err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	return buf.Bytes()
}

func writeArchive(t *testing.T, path string, members []member) {
	t.Helper()
	raw := tarBytes(t, members)
	var buf bytes.Buffer

	switch {
	case strings.HasSuffix(path, ".xz"):
		w, err := xz.NewWriter(&buf)
		if err != nil {
			t.Fatalf("xz writer: %v", err)
		}
		w.Write(raw)
		w.Close()
	case strings.HasSuffix(path, ".zst"):
		w, err := zstd.NewWriter(&buf)
		if err != nil {
			t.Fatalf("zstd writer: %v", err)
		}
		w.Write(raw)
		w.Close()
	case strings.HasSuffix(path, ".gz"):
		w := gzip.NewWriter(&buf)
		w.Write(raw)
		w.Close()
	case strings.HasSuffix(path, ".bz2"):
		w, err := NewWriter(Bzip2, &buf)
		if err != nil {
			t.Fatalf("bzip2 writer: %v", err)
		}
		w.Write(raw)
		w.Close()
	default:
		buf.Write(raw)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("write archive: %v", err)
	}
}

var pkgMembers = []member{
	{name: ".PKGINFO", body: "pkgname = phantomjs"},
	{name: "usr/", dir: true},
	{name: "usr/bin/", dir: true},
	{name: "usr/bin/phantomjs", body: "ELF-ARM", mode: 0755},
	{name: "usr/share/licenses/phantomjs/LICENSE", body: "BSD"},
}

func TestExtractEntryAcrossFormats(t *testing.T) {
	for _, ext := range []string{".pkg.tar.xz", ".pkg.tar.zst", ".pkg.tar.gz", ".tar.bz2", ".tar"} {
		t.Run(ext, func(t *testing.T) {
			dir := t.TempDir()
			archive := filepath.Join(dir, "phantomjs-2.1.1-3-armv7h"+ext)
			writeArchive(t, archive, pkgMembers)

			dest := filepath.Join(dir, "out", "phantomjs")
			if err := ExtractEntry(archive, "usr/bin/phantomjs", dest, 0755); err != nil {
				t.Fatalf("ExtractEntry failed: %v", err)
			}
			data, err := os.ReadFile(dest)
			if err != nil {
				t.Fatalf("read extracted: %v", err)
			}
			if string(data) != "ELF-ARM" {
				t.Errorf("extracted content = %q", data)
			}
			info, _ := os.Stat(dest)
			if info.Mode().Perm() != 0755 {
				t.Errorf("extracted mode = %v", info.Mode().Perm())
			}
		})
	}
}

func TestExtractEntryAcceptsDotSlashNames(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "pkg.tar.xz")
	writeArchive(t, archive, []member{{name: "./usr/bin/phantomjs", body: "x"}})

	if err := ExtractEntry(archive, "usr/bin/phantomjs", filepath.Join(dir, "bin"), 0755); err != nil {
		t.Errorf("expected ./-prefixed member to match, got: %v", err)
	}
}

func TestExtractEntryMissing(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "pkg.tar.xz")
	writeArchive(t, archive, pkgMembers)

	err := ExtractEntry(archive, "usr/bin/missing", filepath.Join(dir, "x"), 0755)
	if !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("expected ErrEntryNotFound, got: %v", err)
	}
}

func TestExtractEntryCorruptArchive(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "pkg.tar.xz")
	if err := os.WriteFile(archive, []byte("not xz at all"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := ExtractEntry(archive, "usr/bin/phantomjs", filepath.Join(dir, "x"), 0755); err == nil {
		t.Error("expected error for corrupt archive")
	}
}

var releaseMembers = []member{
	{name: "phantomjs-2.1.1/", dir: true},
	{name: "phantomjs-2.1.1/README.md", body: "readme"},
	{name: "phantomjs-2.1.1/ChangeLog", body: "changes"},
	{name: "phantomjs-2.1.1/LICENSE.BSD", body: "bsd"},
	{name: "phantomjs-2.1.1/third-party.txt", body: "3rd"},
	{name: "phantomjs-2.1.1/examples/", dir: true},
	{name: "phantomjs-2.1.1/examples/hello.js", body: "console.log('hi')"},
	{name: "phantomjs-2.1.1/src/main.cpp", body: "int main(){}"},
}

func TestExtractTreeSelectsNamedFiles(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "2.1.1.tar.gz")
	writeArchive(t, archive, releaseMembers)

	out := filepath.Join(dir, "out")
	names := []string{"examples", "LICENSE.BSD", "third-party.txt", "README.md", "ChangeLog"}
	if err := ExtractTree(archive, "phantomjs-2.1.1", names, out); err != nil {
		t.Fatalf("ExtractTree failed: %v", err)
	}

	for _, want := range []string{"README.md", "ChangeLog", "LICENSE.BSD", "third-party.txt", "examples/hello.js"} {
		if _, err := os.Stat(filepath.Join(out, want)); err != nil {
			t.Errorf("expected %s to be extracted: %v", want, err)
		}
	}
	if _, err := os.Stat(filepath.Join(out, "src")); !os.IsNotExist(err) {
		t.Error("src/ must not be extracted")
	}
}

func TestExtractTreeReportsMissingNames(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "2.1.1.tar.gz")
	writeArchive(t, archive, releaseMembers)

	err := ExtractTree(archive, "phantomjs-2.1.1", []string{"README.md", "NOTICE"}, filepath.Join(dir, "out"))
	if !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got: %v", err)
	}
	if !strings.Contains(err.Error(), "phantomjs-2.1.1/NOTICE") {
		t.Errorf("error should name the missing member: %v", err)
	}
}

func TestWriteTarRoundTrip(t *testing.T) {
	for _, format := range []string{Bzip2, Xz} {
		t.Run(format, func(t *testing.T) {
			dir := t.TempDir()
			src := filepath.Join(dir, "tree")
			if err := os.MkdirAll(filepath.Join(src, "bin"), 0755); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(filepath.Join(src, "bin", "phantomjs"), []byte("bin"), 0755); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(filepath.Join(src, "README.md"), []byte("readme"), 0644); err != nil {
				t.Fatal(err)
			}

			archive := filepath.Join(dir, "out.tar."+format)
			f, err := os.Create(archive)
			if err != nil {
				t.Fatal(err)
			}
			cw, err := NewWriter(format, f)
			if err != nil {
				t.Fatal(err)
			}
			if err := WriteTar(cw, src, "phantomjs-1.9.8-linux-armv7h"); err != nil {
				t.Fatalf("WriteTar failed: %v", err)
			}
			if err := cw.Close(); err != nil {
				t.Fatal(err)
			}
			f.Close()

			names := listMembers(t, archive)
			want := []string{
				"phantomjs-1.9.8-linux-armv7h/",
				"phantomjs-1.9.8-linux-armv7h/README.md",
				"phantomjs-1.9.8-linux-armv7h/bin/",
				"phantomjs-1.9.8-linux-armv7h/bin/phantomjs",
			}
			if strings.Join(names, "\n") != strings.Join(want, "\n") {
				t.Errorf("members:\n%s\nwant:\n%s", strings.Join(names, "\n"), strings.Join(want, "\n"))
			}

			dest := filepath.Join(dir, "phantomjs")
			if err := ExtractEntry(archive, "phantomjs-1.9.8-linux-armv7h/bin/phantomjs", dest, 0755); err != nil {
				t.Fatalf("re-extract failed: %v", err)
			}
		})
	}
}

func listMembers(t *testing.T, archive string) []string {
	t.Helper()
	r, err := Open(archive)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	var names []string
	tr := tar.NewReader(r)
	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		names = append(names, h.Name)
	}
	return names
}

func TestDetectFormat(t *testing.T) {
	if _, err := DetectFormat("file.zip"); err == nil {
		t.Error("expected zip to be rejected")
	}
	if f, _ := DetectFormat("phantomjs-2.1.1-3-armv7h.pkg.tar.xz"); f != "xz" {
		t.Errorf("DetectFormat = %q", f)
	}
}
