package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestETag_Deterministic(t *testing.T) {
	a := ETag([]byte(`{"raceId":"x"}`))
	require.Equal(t, a, ETag([]byte(`{"raceId":"x"}`)))
	require.NotEqual(t, a, ETag([]byte(`{"raceId":"y"}`)))
	require.Len(t, a, 66)
	require.Equal(t, byte('"'), a[0])
}

func TestWriteCached(t *testing.T) {
	payload := []byte(`{"raceId":"x"}`)
	tag := ETag(payload)

	cases := []struct {
		name        string
		ifNoneMatch string
		status      int
	}{
		{"no header", "", http.StatusOK},
		{"match", tag, http.StatusNotModified},
		{"weak match", "W/" + tag, http.StatusNotModified},
		{"list match", `"other", ` + tag, http.StatusNotModified},
		{"wildcard", "*", http.StatusNotModified},
		{"stale", `"deadbeef"`, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.ifNoneMatch != "" {
				r.Header.Set("If-None-Match", tc.ifNoneMatch)
			}
			rec := httptest.NewRecorder()
			WriteCached(rec, r, payload)

			require.Equal(t, tc.status, rec.Code)
			require.Equal(t, tag, rec.Header().Get("ETag"))
			if tc.status == http.StatusNotModified {
				require.Zero(t, rec.Body.Len())
			} else {
				require.Equal(t, string(payload), rec.Body.String())
			}
		})
	}
}
