package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/phantomjs-arm/phantomjs-alarm/internal/repack"
)

// Skip is a candidate left alone because its artifact is already archived.
type Skip struct {
	Arch    string
	Version string
}

// Failure is a step that failed for one architecture, or one package of it.
type Failure struct {
	Arch    string
	Version string // empty when the architecture failed before a version was chosen
	Err     error
}

// Summary is the outcome of one run.
type Summary struct {
	Packaged []*repack.Result
	Skipped  []Skip
	Failed   []Failure
}

// UpToDate reports whether the run found work only in the form of artifacts
// that were already archived.
func (s *Summary) UpToDate() bool {
	return len(s.Packaged) == 0 && len(s.Failed) == 0 && len(s.Skipped) > 0
}

// Err joins every failure, nil when the run was clean.
func (s *Summary) Err() error {
	if len(s.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(s.Failed))
	for _, f := range s.Failed {
		errs = append(errs, f.Err)
	}
	return errors.Join(errs...)
}

func (s *Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d packaged, %d already archived, %d failed", len(s.Packaged), len(s.Skipped), len(s.Failed))
	for _, f := range s.Failed {
		if f.Version != "" {
			fmt.Fprintf(&b, "\n  %s %s: %v", f.Arch, f.Version, f.Err)
		} else {
			fmt.Fprintf(&b, "\n  %s: %v", f.Arch, f.Err)
		}
	}
	return b.String()
}

func (s *Summary) fail(arch, ver string, err error) {
	s.Failed = append(s.Failed, Failure{Arch: arch, Version: ver, Err: err})
}
