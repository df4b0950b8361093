package update

import "errors"

var (
	// ErrUnavailable is returned when the release index is unreachable or answers with a non-success status.
	ErrUnavailable = errors.New("release index unavailable")
	// ErrNotFound is returned when a release has no installable asset.
	ErrNotFound = errors.New("no installable asset in release")
	// ErrDownloadFailed is returned on transport errors or non-success statuses during a download.
	ErrDownloadFailed = errors.New("download failed")
	// ErrUnreadable is returned when an artifact's version metadata cannot be extracted.
	ErrUnreadable = errors.New("artifact metadata unreadable")
	// ErrInstallFailed is returned when an install session cannot be written or committed.
	ErrInstallFailed = errors.New("install failed")
	// ErrPolicyFailed is returned when a device-policy call is rejected.
	ErrPolicyFailed = errors.New("device policy call rejected")
)

// Wrap annotates cause with the taxonomy kind so that errors.Is matches both.
// A nil cause yields kind itself.
func Wrap(kind, cause error) error {
	if cause == nil {
		return kind
	}

	return errors.Join(kind, cause)
}
