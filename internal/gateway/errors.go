package gateway

import (
	"encoding/json"
	"net/http"
)

// WriteError writes the shared error envelope {"error": msg, ...extra}.
// Handlers use the helpers below rather than calling it with ad hoc status
// codes.
func WriteError(w http.ResponseWriter, status int, msg string, extra map[string]any) {
	body := make(map[string]any, len(extra)+1)
	for k, v := range extra {
		body[k] = v
	}
	body["error"] = msg

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// BadRequest rejects malformed or oversized input.
func BadRequest(w http.ResponseWriter, msg string) {
	WriteError(w, http.StatusBadRequest, msg, nil)
}

// Unauthorized rejects a request without usable credentials. expired tells
// the client to log in again instead of retrying with the same token.
func Unauthorized(w http.ResponseWriter, msg string, expired bool) {
	var extra map[string]any
	if expired {
		extra = map[string]any{"expired": true}
	}
	WriteError(w, http.StatusUnauthorized, msg, extra)
}

// NotFound reports a missing resource.
func NotFound(w http.ResponseWriter, msg string) {
	WriteError(w, http.StatusNotFound, msg, nil)
}

// MethodNotAllowed reports an unsupported method on a known path.
func MethodNotAllowed(w http.ResponseWriter) {
	WriteError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
}

// RateLimited reports an exhausted budget and when to retry, in seconds.
func RateLimited(w http.ResponseWriter, retryAfter int) {
	WriteError(w, http.StatusTooManyRequests, "rate limit exceeded", map[string]any{"retryAfter": retryAfter})
}

// ServerError reports an unexpected failure without leaking its details.
func ServerError(w http.ResponseWriter) {
	WriteError(w, http.StatusInternalServerError, "internal server error", nil)
}

// ServiceUnavailable reports that a dependency such as the database is down.
func ServiceUnavailable(w http.ResponseWriter, msg string) {
	WriteError(w, http.StatusServiceUnavailable, msg, nil)
}
