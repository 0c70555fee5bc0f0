// Package api holds the JSON shapes exchanged between timing stations and
// the sync gateway.
package api

// Entry is one timing event as it travels over the wire.
type Entry struct {
	ID         string `json:"id"`
	Bib        string `json:"bib"`
	Timestamp  int64  `json:"timestamp"`
	Run        int    `json:"run"`
	Point      string `json:"point"`
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName,omitempty"`
	UpdatedAt  int64  `json:"updatedAt"`
	DeletedAt  int64  `json:"deletedAt,omitempty"`
}

// RaceState is the gateway's view of one race. Entries include tombstones
// (DeletedAt != 0) so stations converge on deletions; EntryCount only counts
// live entries.
type RaceState struct {
	RaceID      string  `json:"raceId"`
	Entries     []Entry `json:"entries"`
	EntryCount  int     `json:"entryCount"`
	LastUpdated int64   `json:"lastUpdated"`
}

// SubmitEntriesRequest is the POST body for /races/{raceID}/entries.
type SubmitEntriesRequest struct {
	DeviceID   string  `json:"deviceId"`
	DeviceName string  `json:"deviceName,omitempty"`
	Entries    []Entry `json:"entries"`
}

// SubmitEntriesResponse reports how many submitted entries changed server
// state. Ignored entries were already present with the same or a newer
// updatedAt, which makes re-pushing safe.
type SubmitEntriesResponse struct {
	Accepted    int   `json:"accepted"`
	Ignored     int   `json:"ignored"`
	LastUpdated int64 `json:"lastUpdated"`
}

// ErrorBody is the decoded form of the gateway's error envelope.
type ErrorBody struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter,omitempty"`
	Expired    bool   `json:"expired,omitempty"`
}
