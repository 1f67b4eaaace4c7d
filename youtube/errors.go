package youtube

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthorization indicates the OAuth flow did not yield a usable client.
	ErrAuthorization = errors.New("youtube: authorization failed")

	// ErrNoVideoID indicates the API accepted the upload but returned no ID.
	ErrNoVideoID = errors.New("youtube: upload response has no video id")

	// ErrInvalidPrivacy indicates an unsupported privacy status.
	ErrInvalidPrivacy = errors.New("youtube: invalid privacy status")
)

// UploadError represents a failed publish step.
type UploadError struct {
	// Op is the step that failed ("authorize", "open", "insert").
	Op string
	// Path is the video file being uploaded.
	Path string
	// Err is the underlying error that occurred.
	Err error
}

// Error returns a string representation of the upload error.
func (e *UploadError) Error() string {
	return fmt.Sprintf("youtube: %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error for use with errors.Is() and errors.As().
func (e *UploadError) Unwrap() error {
	return e.Err
}
