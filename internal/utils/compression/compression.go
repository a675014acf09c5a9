// Package compression opens and writes the tarballs handled by the repackager:
// mirror packages (.pkg.tar.xz / .pkg.tar.zst), upstream release archives
// (.tar.gz / .tar.bz2) and the produced artifacts (.tar.bz2 / .tar.xz).
package compression

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Format names accepted by NewWriter.
const (
	Bzip2 = "bz2"
	Xz    = "xz"
)

// DetectFormat returns the compression of a file name from its extension.
func DetectFormat(name string) (string, error) {
	switch {
	case strings.HasSuffix(name, ".xz"), strings.HasSuffix(name, ".txz"):
		return "xz", nil
	case strings.HasSuffix(name, ".zst"):
		return "zst", nil
	case strings.HasSuffix(name, ".gz"), strings.HasSuffix(name, ".tgz"):
		return "gz", nil
	case strings.HasSuffix(name, ".bz2"), strings.HasSuffix(name, ".tbz2"):
		return "bz2", nil
	case strings.HasSuffix(name, ".tar"):
		return "", nil
	default:
		return "", fmt.Errorf("unsupported archive type: %s", name)
	}
}

// NewReader wraps r in the decompressor matching name's extension.
func NewReader(name string, r io.Reader) (io.ReadCloser, error) {
	format, err := DetectFormat(name)
	if err != nil {
		return nil, err
	}

	switch format {
	case "xz":
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("create xz reader: %w", err)
		}
		return io.NopCloser(xr), nil
	case "zst":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("create zstd reader: %w", err)
		}
		return zr.IOReadCloser(), nil
	case "gz":
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		return gr, nil
	case "bz2":
		br, err := bzip2.NewReader(r, nil)
		if err != nil {
			return nil, fmt.Errorf("create bzip2 reader: %w", err)
		}
		return br, nil
	default:
		return io.NopCloser(r), nil
	}
}

// NewWriter wraps w in a compressor for format. Close flushes the stream but
// does not close w.
func NewWriter(format string, w io.Writer) (io.WriteCloser, error) {
	switch format {
	case Bzip2:
		bw, err := bzip2.NewWriter(w, &bzip2.WriterConfig{Level: bzip2.BestCompression})
		if err != nil {
			return nil, fmt.Errorf("create bzip2 writer: %w", err)
		}
		return bw, nil
	case Xz:
		xw, err := xz.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("create xz writer: %w", err)
		}
		return xw, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}

// archiveFile is an opened, decompressing archive.
type archiveFile struct {
	io.Reader
	file *os.File
	dec  io.ReadCloser
}

func (a *archiveFile) Close() error {
	decErr := a.dec.Close()
	if err := a.file.Close(); err != nil {
		return err
	}
	return decErr
}

// Open opens path and returns its decompressed stream.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	dec, err := NewReader(path, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &archiveFile{Reader: dec, file: f, dec: dec}, nil
}
