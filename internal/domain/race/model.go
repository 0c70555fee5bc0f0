package race

// MaxSessions bounds the registry. Touching more races evicts the least
// recently updated ones.
const MaxSessions = 50

// DefaultTodayLimit is the number of sessions GetToday returns by default.
const DefaultTodayLimit = 5

// Session is the device's bookkeeping for one race it has worked. RaceID
// keeps the form first seen; lookups are case-insensitive.
type Session struct {
	RaceID      string `json:"raceId"`
	CreatedAt   int64  `json:"createdAt"`
	LastUpdated int64  `json:"lastUpdated"`
	EntryCount  int    `json:"entryCount"`
}
