package stage

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

type statusErr struct{ code int }

func (e *statusErr) Error() string   { return fmt.Sprintf("status %d", e.code) }
func (e *statusErr) HTTPStatus() int { return e.code }

func TestWrapCarriesStatusCode(t *testing.T) {
	err := Wrap(DownloadError, "download package", "armv7h", "2.1.1-3", fmt.Errorf("get: %w", &statusErr{404}))

	var se *Error
	if !errors.As(err, &se) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if se.StatusCode != 404 || se.Kind != DownloadError {
		t.Errorf("unexpected error %+v", se)
	}
	msg := err.Error()
	for _, want := range []string{"download package", "armv7h 2.1.1-3", "status 404", "DownloadError"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}

func TestWrapKeepsInnermostStage(t *testing.T) {
	inner := Wrap(ExtractionError, "extract binary", "aarch64", "2.1.1-3", errors.New("missing"))
	outer := Wrap(PackagingError, "package", "aarch64", "2.1.1-3", fmt.Errorf("ctx: %w", inner))

	if k, ok := KindOf(outer); !ok || k != ExtractionError {
		t.Errorf("KindOf = %v, %v", k, ok)
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(ScrapeError, "scrape", "", "", nil) != nil {
		t.Error("Wrap(nil) must be nil")
	}
	if _, ok := KindOf(errors.New("plain")); ok {
		t.Error("plain errors have no kind")
	}
}
