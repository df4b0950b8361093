package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/oshokin/kiosk-updater/internal/domain/update"
	"github.com/oshokin/kiosk-updater/internal/logger"
	"github.com/oshokin/kiosk-updater/internal/scratch"
)

// Fetcher downloads artifacts over HTTP.
type Fetcher struct {
	// client is owned by the fetcher and released by Close.
	client *http.Client
	// userAgent is sent with every request when set.
	userAgent string
	// cache reuses downloads within a run when set.
	cache *scratch.Cache
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithUserAgent sets the User-Agent header of download requests.
func WithUserAgent(userAgent string) Option {
	return func(f *Fetcher) {
		f.userAgent = userAgent
	}
}

// WithCache reuses earlier downloads of the same URL from cache.
func WithCache(cache *scratch.Cache) Option {
	return func(f *Fetcher) {
		f.cache = cache
	}
}

// New returns a fetcher using client. A nil client gets a fresh one with transport defaults.
func New(client *http.Client, opts ...Option) *Fetcher {
	if client == nil {
		client = new(http.Client)
	}

	f := &Fetcher{client: client}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Fetch streams the body at url into destination.
func (f *Fetcher) Fetch(ctx context.Context, url, destination string) error {
	if f.cache != nil {
		hit, err := f.cache.Lookup(url, destination)
		if err != nil {
			logger.WarnKV(ctx, "Ignoring unusable cached download", "url", url, "error", err)
		}

		if hit {
			logger.InfoKV(ctx, "Reused cached download", "url", url, "path", destination)

			return nil
		}
	}

	written, err := f.download(ctx, url, destination)
	if err != nil {
		return update.Wrap(update.ErrDownloadFailed, err)
	}

	logger.InfoKV(ctx, "Downloaded artifact",
		"url", url,
		"path", destination,
		"size", humanize.Bytes(uint64(written))) //nolint:gosec // io.Copy never reports a negative count.

	if f.cache != nil {
		if err = f.cache.Store(url, destination); err != nil {
			logger.WarnKV(ctx, "Unable to cache download", "url", url, "error", err)
		}
	}

	return nil
}

// Close releases idle connections held by the fetcher's client.
func (f *Fetcher) Close() {
	f.client.CloseIdleConnections()
}

// download performs the request and copies the body, returning the byte count.
func (f *Fetcher) download(ctx context.Context, url, destination string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	response, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", url, err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return 0, fmt.Errorf("get %s: unexpected status %s", url, response.Status)
	}

	output, err := os.Create(filepath.Clean(destination))
	if err != nil {
		return 0, fmt.Errorf("create destination: %w", err)
	}

	written, err := io.Copy(output, response.Body)
	if err != nil {
		_ = output.Close()

		return written, fmt.Errorf("write destination: %w", err)
	}

	if err = output.Close(); err != nil {
		return written, fmt.Errorf("close destination: %w", err)
	}

	return written, nil
}
