// Package inspect extracts the authoritative version of a downloaded package
// archive.
//
// The archive must carry the manifest entry; the version itself is read by
// the platform's archive reader. Every failure, including a panicking reader,
// is reported as update.ErrUnreadable.
package inspect
