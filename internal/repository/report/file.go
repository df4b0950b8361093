package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/kiosk-updater/internal/config"
	"github.com/oshokin/kiosk-updater/internal/domain/update"
)

// Repository defines persistence operations for run reports.
type Repository interface {
	Load(ctx context.Context) (*update.Report, error)
	Save(ctx context.Context, report *update.Report) error
}

// FileRepository persists the last run report to a JSON file on disk.
type FileRepository struct {
	// path is the filesystem location of the report file.
	path string
	// mu protects concurrent access to the report file.
	mu sync.Mutex
}

var (
	// ErrNotFound is returned when no report was saved yet.
	ErrNotFound = errors.New("report not found")
	// errNilReport is returned when saving a nil report.
	errNilReport = errors.New("report is nil")
)

// runError carries a persisted failure message.
type runError string

func (e runError) Error() string { return string(e) }

// NewFileRepository creates a repository that reads/writes JSON at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Path returns the report file location.
func (r *FileRepository) Path() string {
	return r.path
}

// Load reads the last report from disk.
func (r *FileRepository) Load(_ context.Context) (*update.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read report file: %w", err)
	}

	var document structpb.Struct
	if err = protojson.Unmarshal(contents, &document); err != nil {
		return nil, fmt.Errorf("decode report file: %w", err)
	}

	return fromStruct(&document), nil
}

// Save writes the report to disk, replacing the previous one.
func (r *FileRepository) Save(_ context.Context, report *update.Report) error {
	if report == nil {
		return errNilReport
	}

	document, err := toStruct(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	marshalOptions := protojson.MarshalOptions{
		Multiline:       true,
		EmitUnpopulated: true,
	}

	data, err := marshalOptions.Marshal(document)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err = os.MkdirAll(filepath.Dir(r.path), 0o750); err != nil {
		return fmt.Errorf("create report folder: %w", err)
	}

	if err = os.WriteFile(r.path, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write report file: %w", err)
	}

	return nil
}

// toStruct converts the domain report into a protobuf Struct.
func toStruct(report *update.Report) (*structpb.Struct, error) {
	states := make([]any, 0, len(report.States))
	for _, state := range report.States {
		states = append(states, string(state))
	}

	fields := map[string]any{
		"run_id":     report.RunID,
		"trigger":    report.Trigger,
		"actor":      report.Actor,
		"package_id": report.PackageID,
		"states":     states,
		"installed": map[string]any{
			"is_installed": report.Installed.IsInstalled,
			"version_code": report.Installed.VersionCode,
		},
		"decision":            string(report.Decision),
		"session_id":          report.SessionID,
		"permissions_granted": report.PermissionsGranted,
		"started_at":          formatTime(report.StartedAt),
		"finished_at":         formatTime(report.FinishedAt),
	}

	if report.Release != nil {
		fields["release"] = map[string]any{
			"download_url": report.Release.DownloadURL,
			"version_code": report.Release.VersionCode,
			"version_name": report.Release.VersionName,
			"tag_name":     report.Release.TagName,
			"asset_name":   report.Release.AssetName,
			"source":       string(report.Release.Source),
		}
	}

	if report.InstalledVersion != nil {
		fields["installed_version"] = map[string]any{
			"package_id":   report.InstalledVersion.PackageID,
			"version_code": report.InstalledVersion.VersionCode,
			"version_name": report.InstalledVersion.VersionName,
		}
	}

	if report.Err != nil {
		fields["error"] = report.Err.Error()
	}

	return structpb.NewStruct(fields)
}

// fromStruct converts a protobuf Struct back into the domain report.
func fromStruct(document *structpb.Struct) *update.Report {
	fields := document.GetFields()

	report := &update.Report{
		RunID:              stringField(fields, "run_id"),
		Trigger:            stringField(fields, "trigger"),
		Actor:              stringField(fields, "actor"),
		PackageID:          stringField(fields, "package_id"),
		Decision:           update.Decision(stringField(fields, "decision")),
		SessionID:          stringField(fields, "session_id"),
		PermissionsGranted: int(numberField(fields, "permissions_granted")),
		StartedAt:          parseTime(stringField(fields, "started_at")),
		FinishedAt:         parseTime(stringField(fields, "finished_at")),
		Installed:          update.NotInstalled(),
	}

	for _, value := range fields["states"].GetListValue().GetValues() {
		report.States = append(report.States, update.State(value.GetStringValue()))
	}

	if installed := fields["installed"].GetStructValue(); installed != nil {
		report.Installed = update.InstalledState{
			IsInstalled: installed.GetFields()["is_installed"].GetBoolValue(),
			VersionCode: numberField(installed.GetFields(), "version_code"),
		}
	}

	if release := fields["release"].GetStructValue(); release != nil {
		rf := release.GetFields()
		report.Release = &update.ReleaseDescriptor{
			DownloadURL: stringField(rf, "download_url"),
			VersionCode: numberField(rf, "version_code"),
			VersionName: stringField(rf, "version_name"),
			TagName:     stringField(rf, "tag_name"),
			AssetName:   stringField(rf, "asset_name"),
			Source:      update.VersionSource(stringField(rf, "source")),
		}
	}

	if installedVersion := fields["installed_version"].GetStructValue(); installedVersion != nil {
		vf := installedVersion.GetFields()
		report.InstalledVersion = &update.PackageVersion{
			PackageID:   stringField(vf, "package_id"),
			VersionCode: numberField(vf, "version_code"),
			VersionName: stringField(vf, "version_name"),
		}
	}

	if message := stringField(fields, "error"); message != "" {
		report.Err = runError(message)
	}

	return report
}

func stringField(fields map[string]*structpb.Value, key string) string {
	return fields[key].GetStringValue()
}

// numberField reads a JSON number; version codes stay well inside float64 precision.
func numberField(fields map[string]*structpb.Value, key string) int64 {
	return int64(fields[key].GetNumberValue())
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}

	return t
}
