package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/kiosk-updater/internal/domain/update"
	"github.com/oshokin/kiosk-updater/internal/scratch"
)

// TestFetch_StreamsBody downloads a body and checks headers and content.
func TestFetch_StreamsBody(t *testing.T) {
	t.Parallel()

	var userAgent atomic.Value

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent.Store(r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("archive-bytes"))
	}))
	defer ts.Close()

	f := New(ts.Client(), WithUserAgent("kiosk-updater/test"))
	defer f.Close()

	dest := filepath.Join(t.TempDir(), "probe.kpkg")
	require.NoError(t, f.Fetch(context.Background(), ts.URL+"/a.kpkg", dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "archive-bytes", string(data))
	require.Equal(t, "kiosk-updater/test", userAgent.Load())
}

// TestFetch_Failures maps bad statuses, unreachable hosts and bad destinations to ErrDownloadFailed.
func TestFetch_Failures(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer ts.Close()

	f := New(nil)
	dir := t.TempDir()

	err := f.Fetch(context.Background(), ts.URL, filepath.Join(dir, "a.kpkg"))
	require.ErrorIs(t, err, update.ErrDownloadFailed)
	require.NoFileExists(t, filepath.Join(dir, "a.kpkg"))

	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()

	err = f.Fetch(context.Background(), closedURL, filepath.Join(dir, "b.kpkg"))
	require.ErrorIs(t, err, update.ErrDownloadFailed)

	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("x"))
	}))
	defer ok.Close()

	err = f.Fetch(context.Background(), ok.URL, filepath.Join(dir, "missing", "c.kpkg"))
	require.ErrorIs(t, err, update.ErrDownloadFailed)

	err = f.Fetch(context.Background(), "://bad", filepath.Join(dir, "d.kpkg"))
	require.ErrorIs(t, err, update.ErrDownloadFailed)
}

// TestFetch_Cancelled stops when the context is already cancelled.
func TestFetch_Cancelled(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("x"))
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New(ts.Client()).Fetch(ctx, ts.URL, filepath.Join(t.TempDir(), "a.kpkg"))
	require.ErrorIs(t, err, update.ErrDownloadFailed)
	require.ErrorIs(t, err, context.Canceled)
}

// TestFetch_Cache serves the second download of a URL from the cache.
func TestFetch_Cache(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("archive-bytes"))
	}))
	defer ts.Close()

	dir := t.TempDir()
	cache := scratch.NewCache(filepath.Join(dir, "cache"))
	f := New(ts.Client(), WithCache(cache))

	require.NoError(t, f.Fetch(context.Background(), ts.URL+"/a.kpkg", filepath.Join(dir, "probe.kpkg")))
	require.NoError(t, f.Fetch(context.Background(), ts.URL+"/a.kpkg", filepath.Join(dir, "install.kpkg")))
	require.Equal(t, int32(1), hits.Load())

	data, err := os.ReadFile(filepath.Join(dir, "install.kpkg"))
	require.NoError(t, err)
	require.Equal(t, "archive-bytes", string(data))

	require.NoError(t, cache.Reset())
	require.NoError(t, f.Fetch(context.Background(), ts.URL+"/a.kpkg", filepath.Join(dir, "install.kpkg")))
	require.Equal(t, int32(2), hits.Load())
}
