package race

import "errors"

var (
	// ErrRaceNotFound indicates the registry has no session for the race id.
	ErrRaceNotFound = errors.New("race not found")
)
