package release

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v84/github"

	"github.com/oshokin/kiosk-updater/internal/domain/update"
	"github.com/oshokin/kiosk-updater/internal/logger"
	"github.com/oshokin/kiosk-updater/internal/scratch"
	"github.com/oshokin/kiosk-updater/internal/versioncode"
)

var (
	// errRateLimited is returned when the release index throttles the caller.
	errRateLimited = errors.New("release index rate limit exceeded")
	// errNoRelease is returned when the index answers without a release.
	errNoRelease = errors.New("empty release")
)

// Fetcher downloads an artifact into a local file.
type Fetcher interface {
	Fetch(ctx context.Context, url, destination string) error
}

// Inspector reads the version embedded in a local archive.
type Inspector interface {
	Inspect(ctx context.Context, path string) (*update.PackageVersion, error)
}

// Options configures a Resolver.
type Options struct {
	// Owner is the owner of the publishing repository.
	Owner string
	// Repo is the publishing repository.
	Repo string
	// Extension selects installable assets, compared case-insensitively.
	Extension string
	// RequestTimeout bounds the release index query; zero means no extra bound.
	RequestTimeout time.Duration
	// Scratch provides the probe download file.
	Scratch *scratch.Dir
	// Fetcher downloads the probe artifact.
	Fetcher Fetcher
	// Inspector reads the probe artifact.
	Inspector Inspector
	// Codec converts tags when the artifact is unreadable.
	Codec versioncode.Codec
}

// Resolver finds the latest release and its authoritative version.
type Resolver struct {
	client *github.Client
	opts   Options
}

// NewClient returns an unauthenticated release index client rooted at baseURL.
func NewClient(httpClient *http.Client, baseURL string) (*github.Client, error) {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse release index URL: %w", err)
	}

	client := github.NewClient(httpClient)
	client.BaseURL = parsed

	return client, nil
}

// New returns a resolver querying client.
func New(client *github.Client, opts *Options) *Resolver {
	return &Resolver{
		client: client,
		opts:   *opts,
	}
}

// ResolveLatest returns the descriptor of the latest release.
// It fails with update.ErrUnavailable when the index cannot be queried and
// with update.ErrNotFound when the release carries no installable asset.
func (r *Resolver) ResolveLatest(ctx context.Context) (*update.ReleaseDescriptor, error) {
	release, err := r.latestRelease(ctx)
	if err != nil {
		return nil, err
	}

	asset := r.selectAsset(release.Assets)
	if asset == nil {
		return nil, update.Wrap(update.ErrNotFound,
			fmt.Errorf("release %s has no %s asset", release.GetTagName(), r.opts.Extension))
	}

	descriptor := &update.ReleaseDescriptor{
		DownloadURL: asset.GetBrowserDownloadURL(),
		TagName:     release.GetTagName(),
		AssetName:   asset.GetName(),
	}

	ctx = logger.WithFields(ctx, "tag", descriptor.TagName, "asset", descriptor.AssetName)

	embedded, err := r.probe(ctx, descriptor.DownloadURL)
	if err == nil {
		descriptor.VersionCode = embedded.VersionCode
		descriptor.VersionName = embedded.VersionName
		descriptor.Source = update.SourceEmbedded

		logger.InfoKV(ctx, "Release resolved from artifact",
			"version_code", descriptor.VersionCode,
			"version_name", descriptor.VersionName)

		return descriptor, nil
	}

	logger.WarnKV(ctx, "Artifact version unreadable, falling back to tag", "error", err)

	descriptor.VersionCode = r.opts.Codec.ParseTag(descriptor.TagName)
	descriptor.VersionName = release.GetName()
	descriptor.Source = update.SourceTag

	if descriptor.VersionName == "" {
		descriptor.VersionName = descriptor.TagName
	}

	if parts, ok := versioncode.Split(descriptor.TagName); ok && r.opts.Codec.Ambiguous(parts) {
		logger.WarnKV(ctx, "Tag components overflow the version code encoding",
			"encoding", r.opts.Codec.Encoding(),
			"version_code", descriptor.VersionCode)
	}

	logger.InfoKV(ctx, "Release resolved from tag",
		"version_code", descriptor.VersionCode,
		"version_name", descriptor.VersionName)

	return descriptor, nil
}

// latestRelease performs the single release index query.
func (r *Resolver) latestRelease(ctx context.Context) (*github.RepositoryRelease, error) {
	if r.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, r.opts.RequestTimeout)
		defer cancel()
	}

	release, resp, err := r.client.Repositories.GetLatestRelease(ctx, r.opts.Owner, r.opts.Repo)
	if err != nil {
		return nil, update.Wrap(update.ErrUnavailable, r.describeError(ctx, resp, err))
	}

	if release == nil {
		return nil, update.Wrap(update.ErrUnavailable, errNoRelease)
	}

	return release, nil
}

// describeError singles out throttling so operators can tell it from an outage.
func (r *Resolver) describeError(ctx context.Context, resp *github.Response, err error) error {
	var (
		rateErr  *github.RateLimitError
		abuseErr *github.AbuseRateLimitError
	)

	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		logger.ErrorKV(ctx, "Release index rate limit exceeded", "repository", r.opts.Owner+"/"+r.opts.Repo)

		return errors.Join(errRateLimited, err)
	}

	if resp != nil {
		return fmt.Errorf("query latest release: status %d: %w", resp.StatusCode, err)
	}

	return fmt.Errorf("query latest release: %w", err)
}

// selectAsset returns the first asset carrying the archive extension.
func (r *Resolver) selectAsset(assets []*github.ReleaseAsset) *github.ReleaseAsset {
	suffix := strings.ToLower(r.opts.Extension)

	for _, asset := range assets {
		if strings.HasSuffix(strings.ToLower(asset.GetName()), suffix) {
			return asset
		}
	}

	return nil
}

// probe downloads the asset into the probe scratch file and reads its version.
func (r *Resolver) probe(ctx context.Context, downloadURL string) (*update.PackageVersion, error) {
	var embedded *update.PackageVersion

	err := r.opts.Scratch.Use(scratch.PhaseProbe, func(path string) error {
		if err := r.opts.Fetcher.Fetch(ctx, downloadURL, path); err != nil {
			return err
		}

		version, err := r.opts.Inspector.Inspect(ctx, path)
		if err != nil {
			return err
		}

		embedded = version

		return nil
	})
	if err != nil {
		return nil, err
	}

	return embedded, nil
}
