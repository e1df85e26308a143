package soundcloud

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/go-resty/resty/v2"

	"github.com/arung-agamani/scarchive-go/internal/gate"
	"github.com/arung-agamani/scarchive-go/internal/scerrors"
)

// fakeCredentialSource always has a seeded value and counts refreshes,
// avoiding any real network scrape in tests.
type fakeCredentialSource struct {
	value    string
	refreshN int32
}

func (f *fakeCredentialSource) Get() (string, bool) { return f.value, f.value != "" }

func (f *fakeCredentialSource) Refresh(ctx context.Context) (string, error) {
	atomic.AddInt32(&f.refreshN, 1)
	f.value = "refreshed"
	return f.value, nil
}

func newTestClient(srvURL string, cred CredentialSource) *Client {
	return &Client{
		http: resty.New().SetBaseURL(srvURL),
		cred: cred,
		gate: gate.New(2),
	}
}

func TestGetTrackRetryBoundOnPersistentFailure(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, &fakeCredentialSource{value: "seed"})

	_, err := c.GetTrack(context.Background(), "123")
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if got := atomic.LoadInt32(&attempts); got != maxAttempts {
		t.Fatalf("expected exactly %d attempts, got %d", maxAttempts, got)
	}
}

func TestGetTrackSucceedsOnFirstAttempt(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","title":"Test Track"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, &fakeCredentialSource{value: "seed"})

	track, err := c.GetTrack(context.Background(), "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if track.Title != "Test Track" {
		t.Fatalf("unexpected track title: %q", track.Title)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("expected exactly 1 attempt, got %d", got)
	}
}

func TestDoWithRetryRefreshesOnUnauthorized(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","title":"Recovered"}`))
	}))
	defer srv.Close()

	cred := &fakeCredentialSource{value: "stale"}
	c := newTestClient(srv.URL, cred)

	track, err := c.GetTrack(context.Background(), "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if track.Title != "Recovered" {
		t.Fatalf("unexpected track title: %q", track.Title)
	}
	if atomic.LoadInt32(&cred.refreshN) != 1 {
		t.Fatalf("expected exactly one credential refresh, got %d", cred.refreshN)
	}
}

func TestResolveRenditionSurfacesAuthRequiredWithoutRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	cred := &fakeCredentialSource{value: "seed"}
	c := newTestClient(srv.URL, cred)

	_, err := c.ResolveRendition(context.Background(), srv.URL+"/rendition/abc")
	if !errors.Is(err, scerrors.ErrAuthRequired) {
		t.Fatalf("expected ErrAuthRequired, got %v", err)
	}
	if atomic.LoadInt32(&cred.refreshN) != 0 {
		t.Fatalf("expected no credential refresh on rendition auth failure, got %d", cred.refreshN)
	}
}

func TestDedupeByID(t *testing.T) {
	tracks := []Track{{ID: "a"}, {ID: "b"}, {ID: "a"}, {ID: "c"}}
	out := dedupeByID(tracks)
	if len(out) != 3 {
		t.Fatalf("expected 3 unique tracks, got %d", len(out))
	}
}
