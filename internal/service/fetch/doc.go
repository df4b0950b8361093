// Package fetch downloads release artifacts into scratch files.
//
// The body is streamed straight to the destination with no retries and no
// resume; any transport error or non-success status is reported as
// update.ErrDownloadFailed and the caller owns the destination file.
package fetch
