package station

import "errors"

var (
	// ErrSyncDisabled indicates cloud sync is switched off in settings.
	ErrSyncDisabled = errors.New("cloud sync disabled")
	// ErrNoRace indicates no race is joined, so there is nothing to sync.
	ErrNoRace = errors.New("no race joined")
	// ErrNoRemote indicates no gateway is configured.
	ErrNoRemote = errors.New("no gateway configured")
)
