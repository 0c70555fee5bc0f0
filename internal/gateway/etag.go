package gateway

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

const etagDomain = "skitimer/race/v1"

// ETag returns the quoted content digest of payload.
func ETag(payload []byte) string {
	h := sha256.New()
	h.Write([]byte(etagDomain))
	h.Write([]byte{0x00})
	h.Write(payload)
	return `"` + hex.EncodeToString(h.Sum(nil)) + `"`
}

// WriteCached writes payload as JSON with its ETag, or 304 with no body
// when the request's If-None-Match already names that ETag.
func WriteCached(w http.ResponseWriter, r *http.Request, payload []byte) {
	tag := ETag(payload)
	h := w.Header()
	h.Set("ETag", tag)
	h.Set("Cache-Control", "no-cache")

	if etagMatches(r.Header.Get("If-None-Match"), tag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	h.Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func etagMatches(header, tag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" {
			return true
		}
		if strings.TrimPrefix(candidate, "W/") == tag {
			return true
		}
	}
	return false
}
