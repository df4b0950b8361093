package update

// UnknownVersionCode marks an installed version that could not be determined.
// It never takes part in ordering: a device reporting it is always updated.
const UnknownVersionCode int64 = -1

// VersionSource tells where a release's version code came from.
type VersionSource string

const (
	// SourceEmbedded means the code was read from the artifact's own manifest.
	SourceEmbedded VersionSource = "embedded"
	// SourceTag means the code was derived from the release tag.
	SourceTag VersionSource = "tag"
)

// ReleaseDescriptor describes the latest published build.
type ReleaseDescriptor struct {
	// DownloadURL is where the installable asset is fetched from.
	DownloadURL string
	// VersionCode is the sole ordering key for "newer".
	VersionCode int64
	// VersionName is the human-readable version.
	VersionName string
	// TagName is the release tag the descriptor was resolved from.
	TagName string
	// AssetName is the selected asset file name.
	AssetName string
	// Source tells whether VersionCode came from the artifact or the tag.
	Source VersionSource
}

// InstalledState is the device's view of the target package.
type InstalledState struct {
	// IsInstalled reports whether the package is present on the device.
	IsInstalled bool
	// VersionCode is the installed code or UnknownVersionCode.
	VersionCode int64
}

// NotInstalled returns the state of a package that is absent from the device.
func NotInstalled() InstalledState {
	return InstalledState{
		IsInstalled: false,
		VersionCode: UnknownVersionCode,
	}
}

// IsKnown reports whether VersionCode holds a real version.
func (s InstalledState) IsKnown() bool {
	return s.VersionCode != UnknownVersionCode
}

// PackageVersion is what a package archive declares about itself.
type PackageVersion struct {
	// PackageID is the package identifier from the manifest.
	PackageID string
	// VersionCode is the embedded version code.
	VersionCode int64
	// VersionName is the embedded version name.
	VersionName string
}

// ShouldUpdate reports whether remote must be installed over the installed state.
// The update proceeds when the package is absent, when its version is unknown
// or when the remote code is strictly greater.
func ShouldUpdate(installed InstalledState, remoteVersionCode int64) bool {
	if !installed.IsInstalled || !installed.IsKnown() {
		return true
	}

	return remoteVersionCode > installed.VersionCode
}
