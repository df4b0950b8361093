// Package installer stages a package archive through a platform install
// session and commits it.
//
// Nothing written to a session is visible until the commit succeeds, so an
// interrupted install never leaves a partially updated package behind. The
// platform confirms a commit asynchronously; Completion lets the caller await
// that confirmation with its own deadline.
package installer
