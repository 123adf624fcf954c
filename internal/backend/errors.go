package backend

import (
	"fmt"

	"github.com/agroscan/leafscan-go/internal/errors"
)

// Sentinel errors for per-image upload failures. The uploader matches
// on these to decide what is worth retrying.
var (
	ErrFileNotFound       = errors.NewStd("evidence file not found")
	ErrUnreadable         = errors.NewStd("evidence file unreadable")
	ErrNetworkUnavailable = errors.NewStd("network unavailable")
	ErrTimeout            = errors.NewStd("request timed out")
)

// ServerRejectedError is a non-2xx response from the backend.
type ServerRejectedError struct {
	Code int
	Body string
}

func (e *ServerRejectedError) Error() string {
	return fmt.Sprintf("server rejected request: status %d: %s", e.Code, e.Body)
}

// IsRetryable reports whether an upload failure is worth another
// attempt. Missing or unreadable files never recover by retrying, and
// neither do 4xx rejections.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrFileNotFound) || errors.Is(err, ErrUnreadable) {
		return false
	}
	var rejected *ServerRejectedError
	if errors.As(err, &rejected) {
		return rejected.Code >= 500
	}
	return true
}
