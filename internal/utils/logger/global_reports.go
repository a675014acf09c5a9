package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StringListReport collects lines that are written out as a plain list at the end of a run.
type StringListReport struct {
	mu    sync.Mutex
	Title string
	Items []string
}

// FetchReport records every URL fetched and every artifact produced during a run.
var FetchReport = NewStringListReport("FetchedFiles")

func NewStringListReport(title string) *StringListReport {
	return &StringListReport{Title: title}
}

// Add appends one line to the report.
func (r *StringListReport) Add(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Items = append(r.Items, fmt.Sprintf(format, args...))
}

// Len returns the number of collected lines.
func (r *StringListReport) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Items)
}

// WriteToFile appends the collected items to <dir>/fetchurl-<title>.txt and resets the list.
func (r *StringListReport) WriteToFile(dir string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating report directory: %w", err)
	}

	reportPath := filepath.Join(dir, fmt.Sprintf("fetchurl-%s.txt", safeTitle(r.Title)))
	f, err := os.OpenFile(reportPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", fmt.Errorf("opening report file: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "# %s\n", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return "", fmt.Errorf("writing report header: %w", err)
	}
	for _, item := range r.Items {
		if _, err := fmt.Fprintln(f, item); err != nil {
			return "", fmt.Errorf("writing to report file: %w", err)
		}
	}
	if _, err := fmt.Fprintln(f); err != nil {
		return "", fmt.Errorf("writing new line to report file: %w", err)
	}

	r.Items = nil
	return reportPath, nil
}

// safeTitle replaces anything outside [A-Za-z0-9] with an underscore.
func safeTitle(title string) string {
	if title == "" {
		return "untitled"
	}
	out := make([]rune, 0, len(title))
	for _, c := range title {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			out = append(out, c)
		} else {
			out = append(out, '_')
		}
	}
	return string(out)
}
