package entry

import (
	"strings"

	"github.com/rpggio/skitimer/internal/api"
)

// Point is the timing point an entry was recorded at.
type Point string

const (
	PointStart  Point = "S"
	PointFinish Point = "F"
)

// ParsePoint accepts "S"/"F" as well as "start"/"finish", in any case.
func ParsePoint(s string) (Point, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "s", "start":
		return PointStart, nil
	case "f", "finish":
		return PointFinish, nil
	}
	return "", ErrInvalidPoint
}

// Valid reports whether p is a known timing point.
func (p Point) Valid() bool {
	return p == PointStart || p == PointFinish
}

// SyncState tracks whether the gateway has the latest version of an entry.
type SyncState string

const (
	SyncPending SyncState = "pending"
	SyncSynced  SyncState = "synced"
)

// Entry is one recorded timing event. ID and Timestamp never change after
// creation; DeletedAt marks a removed entry, kept so removal stays
// distinguishable from an id that never existed.
type Entry struct {
	ID         string    `json:"id"`
	Bib        string    `json:"bib"`
	Timestamp  int64     `json:"timestamp"`
	Run        int       `json:"run"`
	Point      Point     `json:"point"`
	RaceID     string    `json:"raceId,omitempty"`
	DeviceID   string    `json:"deviceId,omitempty"`
	DeviceName string    `json:"deviceName,omitempty"`
	UpdatedAt  int64     `json:"updatedAt"`
	DeletedAt  int64     `json:"deletedAt,omitempty"`
	Sync       SyncState `json:"syncState"`
}

// Deleted reports whether the entry is a tombstone.
func (e Entry) Deleted() bool {
	return e.DeletedAt != 0
}

// ToAPI converts the entry to its wire form.
func (e Entry) ToAPI() api.Entry {
	return api.Entry{
		ID:         e.ID,
		Bib:        e.Bib,
		Timestamp:  e.Timestamp,
		Run:        e.Run,
		Point:      string(e.Point),
		DeviceID:   e.DeviceID,
		DeviceName: e.DeviceName,
		UpdatedAt:  e.UpdatedAt,
		DeletedAt:  e.DeletedAt,
	}
}

func (e Entry) valid() bool {
	return e.ID != "" && e.Run >= 1 && e.Point.Valid() && e.Timestamp > 0
}

// Stats is derived from List on demand and never stored.
type Stats struct {
	Total      int        `json:"total"`
	Starts     int        `json:"starts"`
	Finishes   int        `json:"finishes"`
	Ungrouped  int        `json:"ungrouped"`
	Pending    int        `json:"pending"`
	UniqueBibs int        `json:"uniqueBibs"`
	PerBib     []BibStats `json:"perBib"`
}

// BibStats is the per-bib breakdown. Ungrouped entries are not listed.
type BibStats struct {
	Bib      string `json:"bib"`
	Count    int    `json:"count"`
	Starts   int    `json:"starts"`
	Finishes int    `json:"finishes"`
	Runs     []int  `json:"runs"`
	First    int64  `json:"first"`
	Last     int64  `json:"last"`
}

// AppendRequest describes a record action.
type AppendRequest struct {
	Bib        string
	Run        int
	Point      Point
	RaceID     string
	DeviceName string
}

// MergeResult counts what MergeRemote changed locally.
type MergeResult struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
}
