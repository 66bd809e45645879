package lineup

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alorle/pvr-manager/cache"
	"github.com/alorle/pvr-manager/logging"
)

const testLineup = `#EXTM3U
#EXTINF:-1 tvg-id="101" tvg-chno="7",Channel One
http://stream/one
#EXTINF:-1 tvg-id="102",Channel Two
http://stream/two
`

func quietLogger() *logging.Logger {
	return logging.NewWithWriter(logging.ERROR, io.Discard)
}

func newTestStorage(t *testing.T) cache.Storage {
	t.Helper()

	storage, err := cache.NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create cache storage: %v", err)
	}
	return storage
}

func TestFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte(testLineup)); err != nil {
			t.Errorf("failed to write response: %v", err)
		}
	}))
	defer server.Close()

	client := NewClient(5*time.Second, nil, time.Hour, quietLogger())

	entries, err := client.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Fetch() = %d entries, want 2", len(entries))
	}
	if entries[0].ChannelID != 101 || entries[1].ChannelID != 102 {
		t.Errorf("entries = %+v, want channels 101 and 102", entries)
	}
}

func TestFetchServesFreshCacheWithoutRequest(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if _, err := w.Write([]byte(testLineup)); err != nil {
			t.Errorf("failed to write response: %v", err)
		}
	}))
	defer server.Close()

	client := NewClient(5*time.Second, newTestStorage(t), time.Hour, quietLogger())

	for i := 0; i < 3; i++ {
		if _, err := client.Fetch(context.Background(), server.URL); err != nil {
			t.Fatalf("Fetch() #%d error: %v", i, err)
		}
	}

	if got := hits.Load(); got != 1 {
		t.Errorf("backend hits = %d, want 1 with a fresh cache", got)
	}
}

func TestFetchFallsBackToStaleCache(t *testing.T) {
	var fail atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if _, err := w.Write([]byte(testLineup)); err != nil {
			t.Errorf("failed to write response: %v", err)
		}
	}))
	defer server.Close()

	// Zero TTL: every cached entry is immediately stale, so each Fetch
	// attempts the backend again.
	client := NewClient(5*time.Second, newTestStorage(t), 0, quietLogger())

	if _, err := client.Fetch(context.Background(), server.URL); err != nil {
		t.Fatalf("priming Fetch() error: %v", err)
	}

	fail.Store(true)
	entries, err := client.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch() with failing backend error: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("stale entries = %d, want 2", len(entries))
	}
}

func TestFetchFailsWithoutCache(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(5*time.Second, newTestStorage(t), time.Hour, quietLogger())

	if _, err := client.Fetch(context.Background(), server.URL); err == nil {
		t.Fatal("expected Fetch to fail with no cache to fall back on")
	}
}

func TestFetchRespectsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client := NewClient(5*time.Second, nil, time.Hour, quietLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := client.Fetch(ctx, server.URL); err == nil {
		t.Fatal("expected Fetch to fail when the context expires")
	}
}
