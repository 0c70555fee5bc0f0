package mcp

import (
	"errors"
	"fmt"

	"github.com/rpggio/skitimer/internal/domain/entry"
	"github.com/rpggio/skitimer/internal/domain/race"
	"github.com/rpggio/skitimer/internal/domain/settings"
	"github.com/rpggio/skitimer/internal/domain/station"
	"github.com/rpggio/skitimer/internal/remote"
	"github.com/rpggio/skitimer/internal/sanitize"
)

// APIError represents an MCP error response.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Details      any    `json:"details,omitempty"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
}

func (e *APIError) Error() string {
	if e.RecoveryHint != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.RecoveryHint)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// MapError maps domain errors to MCP error codes.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}

	var se *remote.StatusError
	switch {
	case errors.Is(err, entry.ErrEntryNotFound):
		return &APIError{Code: "ENTRY_NOT_FOUND", Message: "entry not found", RecoveryHint: "Check the id with list_entries"}
	case errors.Is(err, entry.ErrEntryDeleted):
		return &APIError{Code: "ENTRY_DELETED", Message: "entry was removed"}
	case errors.Is(err, entry.ErrForeignEntry):
		return &APIError{Code: "FOREIGN_ENTRY", Message: "entry was recorded by another device", RecoveryHint: "Edit it on the device that recorded it"}
	case errors.Is(err, sanitize.ErrInvalidBib):
		return &APIError{Code: "INVALID_BIB", Message: "bib must be up to 6 digits"}
	case errors.Is(err, entry.ErrInvalidRun):
		return &APIError{Code: "INVALID_RUN", Message: "run must be at least 1"}
	case errors.Is(err, entry.ErrInvalidPoint):
		return &APIError{Code: "INVALID_POINT", Message: "timing point must be S or F"}
	case errors.Is(err, sanitize.ErrInvalidRaceID):
		return &APIError{Code: "INVALID_RACE_ID", Message: "race id must be 1-50 letters, digits, '-' or '_'"}
	case errors.Is(err, race.ErrRaceNotFound):
		return &APIError{Code: "RACE_NOT_FOUND", Message: "race not found"}
	case errors.Is(err, settings.ErrInvalidSettings):
		return &APIError{Code: "INVALID_SETTINGS", Message: err.Error()}
	case errors.Is(err, station.ErrSyncDisabled):
		return &APIError{Code: "SYNC_DISABLED", Message: "cloud sync is off", RecoveryHint: "Enable cloudSync in settings"}
	case errors.Is(err, station.ErrNoRace):
		return &APIError{Code: "NO_RACE", Message: "no race joined", RecoveryHint: "Call join_race first"}
	case errors.Is(err, station.ErrNoRemote):
		return &APIError{Code: "NO_REMOTE", Message: "no gateway configured"}
	case errors.Is(err, remote.ErrOffline):
		return &APIError{Code: "OFFLINE", Message: "gateway unreachable, entries stay pending", RecoveryHint: "Retry later"}
	case errors.As(err, &se) && se.AuthExpired():
		return &APIError{Code: "AUTH_EXPIRED", Message: "token expired", RecoveryHint: "Issue a new token"}
	case errors.As(err, &se) && se.RateLimited():
		return &APIError{Code: "RATE_LIMITED", Message: "gateway rate limit reached", Details: map[string]int{"retryAfter": se.RetryAfter}, RecoveryHint: fmt.Sprintf("Retry in %ds", se.RetryAfter)}
	case errors.As(err, &se):
		return &APIError{Code: "GATEWAY_ERROR", Message: se.Error()}
	default:
		return nil
	}
}

// toolError returns the mapped error when there is one.
func toolError(err error) error {
	if apiErr := MapError(err); apiErr != nil {
		return apiErr
	}
	return err
}
