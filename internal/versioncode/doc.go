// Package versioncode converts release tags into monotonic integer version
// codes and compares codes.
//
// The legacy encoding packs major, minor and patch as
// major*10000 + minor*100 + patch. Components above 99 make codes
// ambiguous (1.4.100 and 1.5.0 collide), so a wide encoding with larger
// multipliers is available as an explicit opt-in; switching changes the
// ordering of historical tags and is never applied implicitly.
package versioncode
