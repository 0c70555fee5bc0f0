package remote

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrOffline indicates the gateway could not be reached at all.
	ErrOffline = errors.New("gateway unreachable")
	// ErrNotFound indicates the gateway has no such resource.
	ErrNotFound = errors.New("not found on gateway")
)

// StatusError is a non-success response carrying the gateway's error
// envelope.
type StatusError struct {
	Status     int
	Message    string
	RetryAfter int
	Expired    bool
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway returned %d", e.Status)
	}
	return fmt.Sprintf("gateway returned %d: %s", e.Status, e.Message)
}

// RateLimited reports a 429; RetryAfter holds the back-off in seconds.
func (e *StatusError) RateLimited() bool {
	return e.Status == http.StatusTooManyRequests
}

// AuthExpired reports a 401 that needs a new login rather than a retry.
func (e *StatusError) AuthExpired() bool {
	return e.Status == http.StatusUnauthorized && e.Expired
}
