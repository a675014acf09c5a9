package logger

import (
	"os"
	"strings"
	"testing"
)

func TestLoggerBeforeInitIsUsable(t *testing.T) {
	if Logger() == nil {
		t.Fatal("Logger() must never return nil")
	}
}

func TestSetLevel(t *testing.T) {
	if err := SetLevel("debug"); err != nil {
		t.Fatalf("SetLevel(debug) failed: %v", err)
	}
	if err := SetLevel(""); err != nil {
		t.Errorf("empty level should be ignored, got: %v", err)
	}
	if err := SetLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
	_ = SetLevel("info")
}

func TestInitRejectsUnknownFormat(t *testing.T) {
	if err := Init("info", "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestStringListReportWriteToFile(t *testing.T) {
	dir := t.TempDir()
	r := NewStringListReport("Fetched Files/armv7h")
	r.Add("GET %s", "http://mirror.example/armv7h/community/")
	r.Add("ARTIFACT %s", "phantomjs-2.1.1-3-linux-armv7h.tar.bz2")

	path, err := r.WriteToFile(dir)
	if err != nil {
		t.Fatalf("WriteToFile failed: %v", err)
	}
	if !strings.HasSuffix(path, "fetchurl-Fetched_Files_armv7h.txt") {
		t.Errorf("unexpected report path %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading report: %v", err)
	}
	if !strings.Contains(string(data), "phantomjs-2.1.1-3-linux-armv7h.tar.bz2") {
		t.Errorf("report missing artifact line:\n%s", data)
	}
	if r.Len() != 0 {
		t.Errorf("report should be reset after write, has %d items", r.Len())
	}
}
