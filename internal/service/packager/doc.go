// Package packager builds package archives for publishing.
//
// An archive is a zip of the payload folder plus a YAML manifest entry that
// declares the package identifier, version code and version name. The
// version code is derived from the release tag unless given explicitly, so
// the published asset and its tag agree.
package packager
