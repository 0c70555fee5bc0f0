package entry

import "errors"

var (
	// ErrEntryNotFound indicates no entry with the id was ever recorded.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrEntryDeleted indicates the entry existed but was removed.
	ErrEntryDeleted = errors.New("entry deleted")
	// ErrForeignEntry indicates the entry was recorded by another device.
	ErrForeignEntry = errors.New("entry belongs to another device")
	// ErrInvalidRun indicates a run number below 1.
	ErrInvalidRun = errors.New("run must be at least 1")
	// ErrInvalidPoint indicates an unknown timing point.
	ErrInvalidPoint = errors.New("invalid timing point")
)
