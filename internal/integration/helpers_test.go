package integration

import (
	"context"
	"encoding/json"
	"io/fs"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/kiosk-updater/internal/config"
	"github.com/oshokin/kiosk-updater/internal/platform/local"
	"github.com/oshokin/kiosk-updater/internal/service/installer"
	"github.com/oshokin/kiosk-updater/internal/service/packager"
)

const (
	testPackageID = "com.acme.kiosk"
	testOwner     = "acme"
	testRepo      = "kiosk"
)

// testPermissions are granted after every run.
var testPermissions = []string{"location", "camera"} //nolint:gochecknoglobals // Shared fixture.

// environment is a device, a release index and settings pointing at both.
type environment struct {
	dir     string
	cfgPath string
	cfg     *config.Config
	device  *local.Device
	server  *httptest.Server

	mu      sync.Mutex
	status  int
	release map[string]any
	assets  map[string]string
}

// newEnvironment provisions a device owner device and an empty release index.
func newEnvironment(t *testing.T) *environment {
	t.Helper()

	dir := t.TempDir()
	env := &environment{
		dir:     dir,
		cfgPath: filepath.Join(dir, config.DefaultConfigFilename),
		status:  http.StatusOK,
		assets:  make(map[string]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/"+testOwner+"/"+testRepo+"/releases/latest", env.serveLatest)
	mux.HandleFunc("/assets/", env.serveAsset)

	env.server = httptest.NewServer(mux)
	t.Cleanup(env.server.Close)

	env.cfg = &config.Config{
		PackageID:             testPackageID,
		ReleaseOwner:          testOwner,
		ReleaseRepo:           testRepo,
		APIBaseURL:            env.server.URL,
		Permissions:           slices.Clone(testPermissions),
		DeviceRoot:            filepath.Join(dir, "device"),
		ScratchDir:            filepath.Join(dir, "scratch"),
		ReportFile:            filepath.Join(dir, "report.json"),
		RequestTimeout:        5 * time.Second,
		DownloadTimeout:       10 * time.Second,
		InstallConfirmTimeout: 5 * time.Second,
	}

	env.saveConfig(t)

	env.device = local.New(env.cfg.DeviceRoot, env.cfg.ArchiveExtension, env.cfg.ManifestEntry)
	require.NoError(t, env.device.Provision(&local.DeviceState{DeviceOwner: true}))

	return env
}

// saveConfig writes the current settings and fills their defaults.
func (e *environment) saveConfig(t *testing.T) {
	t.Helper()

	require.NoError(t, config.Save(e.cfgPath, e.cfg))
}

func (e *environment) serveLatest(w http.ResponseWriter, _ *http.Request) {
	e.mu.Lock()
	defer e.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.status)

	if e.release == nil {
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))

		return
	}

	_ = json.NewEncoder(w).Encode(e.release)
}

func (e *environment) serveAsset(w http.ResponseWriter, r *http.Request) {
	e.mu.Lock()
	path, ok := e.assets[strings.TrimPrefix(r.URL.Path, "/assets/")]
	e.mu.Unlock()

	if !ok {
		http.NotFound(w, r)

		return
	}

	http.ServeFile(w, r, path)
}

// failIndex makes the release index answer with status.
func (e *environment) failIndex(status int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.status = status
}

// publish builds an archive for code and publishes it as the latest release.
func (e *environment) publish(t *testing.T, tag string, code int64) {
	t.Helper()

	path := buildArchive(t, tag, code)
	name := filepath.Base(path)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.assets[name] = path
	e.release = map[string]any{
		"tag_name": tag,
		"name":     tag,
		"assets": []map[string]any{
			{"name": "CHANGELOG.txt", "browser_download_url": e.server.URL + "/assets/CHANGELOG.txt"},
			{"name": name, "browser_download_url": e.server.URL + "/assets/" + name},
		},
	}
}

// publishWithoutArchive publishes a release that carries no installable asset.
func (e *environment) publishWithoutArchive(tag string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.release = map[string]any{
		"tag_name": tag,
		"assets": []map[string]any{
			{"name": "CHANGELOG.txt", "browser_download_url": e.server.URL + "/assets/CHANGELOG.txt"},
		},
	}
}

// seedInstalled installs an archive with code on the device.
func (e *environment) seedInstalled(t *testing.T, code int64) {
	t.Helper()

	ctx := context.Background()

	completion, err := installer.New(e.device, testPackageID).Install(ctx, buildArchive(t, "seed", code))
	require.NoError(t, err)

	installed, err := completion.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, code, installed.VersionCode)
}

// record returns the device's registry entry for the kiosk package.
func (e *environment) record(t *testing.T) *local.PackageRecord {
	t.Helper()

	record, err := e.device.Record(context.Background(), testPackageID)
	require.NoError(t, err)

	return record
}

// scratchArchives lists archives left in the scratch folder.
func (e *environment) scratchArchives(t *testing.T) []string {
	t.Helper()

	var found []string

	err := filepath.WalkDir(e.cfg.ScratchDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}

			return err
		}

		if !entry.IsDir() && strings.HasSuffix(path, e.cfg.ArchiveExtension) {
			found = append(found, path)
		}

		return nil
	})
	require.NoError(t, err)

	return found
}

// buildArchive packs a small payload with the packager.
func buildArchive(t *testing.T, tag string, code int64) string {
	t.Helper()

	payload := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(payload, "bin"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(payload, "bin", "kiosk"), []byte("kiosk "+tag), 0o600))

	result, err := packager.Run(context.Background(), &packager.Options{
		PackageID:   testPackageID,
		PayloadDir:  payload,
		Tag:         tag,
		VersionCode: code,
		Output:      filepath.Join(t.TempDir(), testPackageID+"-"+tag+config.DefaultArchiveExtension),
	})
	require.NoError(t, err)

	return result.Path
}

// reservePort returns an address on a free TCP port and closes it.
func reservePort(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := l.Addr().String()
	_ = l.Close()

	return addr
}
