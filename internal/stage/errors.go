// Package stage defines the typed errors returned by each pipeline step.
package stage

import (
	"errors"
	"fmt"
)

// Kind classifies a failed step.
type Kind int

const (
	ScrapeError Kind = iota + 1
	ValidationError
	DownloadError
	ExtractionError
	PackagingError
	PublishError
)

func (k Kind) String() string {
	switch k {
	case ScrapeError:
		return "ScrapeError"
	case ValidationError:
		return "ValidationError"
	case DownloadError:
		return "DownloadError"
	case ExtractionError:
		return "ExtractionError"
	case PackagingError:
		return "PackagingError"
	case PublishError:
		return "PublishError"
	default:
		return "Unknown"
	}
}

// Error is a failed pipeline step. Stage is a human-readable step name.
type Error struct {
	Kind       Kind
	Stage      string
	Arch       string
	Version    string
	StatusCode int // HTTP status when the step was a request answered with one
	Err        error
}

func (e *Error) Error() string {
	msg := e.Stage + " failed"
	switch {
	case e.Arch != "" && e.Version != "":
		msg += fmt.Sprintf(" for %s %s", e.Arch, e.Version)
	case e.Arch != "":
		msg += " for " + e.Arch
	case e.Version != "":
		msg += " for " + e.Version
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("%s [%s]: %v", msg, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type httpStatuser interface {
	HTTPStatus() int
}

// Wrap attaches kind and step identity to err. A nil err stays nil, and an
// err that already carries a stage is returned unchanged.
func Wrap(kind Kind, step, arch, ver string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	e := &Error{Kind: kind, Stage: step, Arch: arch, Version: ver, Err: err}
	var hs httpStatuser
	if errors.As(err, &hs) {
		e.StatusCode = hs.HTTPStatus()
	}
	return e
}

// KindOf returns the kind of the first stage error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
