package network

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientFollowsRedirectsAndSetsUserAgent(t *testing.T) {
	var gotAgent string
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusFound)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewSecureHTTPClient(5*time.Second, "phantomjs-alarm/test")
	resp, err := client.Get(srv.URL + "/old")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 after redirect, got %d", resp.StatusCode)
	}
	if gotAgent != "phantomjs-alarm/test" {
		t.Errorf("User-Agent = %q", gotAgent)
	}
}

func TestClientStopsRedirectLoops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.Path, http.StatusFound)
	}))
	defer srv.Close()

	client := NewSecureHTTPClient(5*time.Second, "")
	if _, err := client.Get(srv.URL + "/loop"); err == nil {
		t.Error("expected redirect loop to fail")
	}
}
