// Package settings holds the device-local preferences of a timing station.
// They are never authoritative for race results and are stored apart from
// entries.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/rpggio/skitimer/internal/persist"
	"github.com/rpggio/skitimer/internal/sanitize"
)

var (
	// ErrInvalidSettings indicates an update would store an unusable value.
	ErrInvalidSettings = errors.New("invalid settings")
)

// Settings are the station preferences.
type Settings struct {
	Language      string `json:"language"`
	DefaultRun    int    `json:"defaultRun"`
	DefaultPoint  string `json:"defaultPoint"`
	AutoIncrement bool   `json:"autoIncrement"`
	Haptics       bool   `json:"haptics"`
	Sound         bool   `json:"sound"`
	GPSSync       bool   `json:"gpsSync"`
	CloudSync     bool   `json:"cloudSync"`
	RaceID        string `json:"raceId"`
	DeviceName    string `json:"deviceName"`
}

// Defaults returns the settings of a fresh install.
func Defaults() Settings {
	return Settings{
		Language:      "en",
		DefaultRun:    1,
		DefaultPoint:  "S",
		AutoIncrement: true,
		Haptics:       true,
		Sound:         false,
		GPSSync:       false,
		CloudSync:     false,
	}
}

// Validate checks every field.
func (s Settings) Validate() error {
	switch s.Language {
	case "en", "de":
	default:
		return fmt.Errorf("%w: language %q", ErrInvalidSettings, s.Language)
	}
	if s.DefaultRun < 1 {
		return fmt.Errorf("%w: default run %d", ErrInvalidSettings, s.DefaultRun)
	}
	if s.DefaultPoint != "S" && s.DefaultPoint != "F" {
		return fmt.Errorf("%w: default point %q", ErrInvalidSettings, s.DefaultPoint)
	}
	if s.RaceID != "" {
		if _, err := sanitize.RaceID(s.RaceID); err != nil {
			return fmt.Errorf("%w: race id %q", ErrInvalidSettings, s.RaceID)
		}
	}
	return nil
}

// Service loads and saves Settings.
//
// Thread-safety: all methods are safe for concurrent use.
type Service struct {
	rw     persist.ReadWriter
	logger *slog.Logger

	mu      sync.Mutex
	current Settings
}

// NewService creates a service holding Defaults until Load is called.
func NewService(rw persist.ReadWriter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{rw: rw, logger: logger, current: Defaults()}
}

// Load reads stored settings. Stored fields are layered over Defaults so
// an older or partial object still yields complete settings; anything
// unreadable or invalid falls back to Defaults.
func (s *Service) Load(ctx context.Context) {
	raw, outcome := persist.Load[json.RawMessage](ctx, s.rw, persist.KeySettings, nil)

	loaded := Defaults()
	switch outcome {
	case persist.Loaded:
		if err := json.Unmarshal(raw, &loaded); err != nil {
			s.logger.Warn("settings unreadable, using defaults", "error", err)
			loaded = Defaults()
		} else if err := loaded.Validate(); err != nil {
			s.logger.Warn("stored settings invalid, using defaults", "error", err)
			loaded = Defaults()
		}
	case persist.Corrupt, persist.Unavailable:
		s.logger.Warn("settings storage unreadable, using defaults", "outcome", outcome.String())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = loaded
}

// Get returns the current settings.
func (s *Service) Get() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Update applies fn to a copy of the current settings, validates and
// persists the result. On any failure the current settings are unchanged.
func (s *Service) Update(ctx context.Context, fn func(*Settings)) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current
	fn(&next)
	next.DeviceName = sanitize.Text(next.DeviceName, sanitize.MaxTextLength)
	if err := next.Validate(); err != nil {
		return s.current, err
	}
	if err := persist.Save(ctx, s.rw, persist.KeySettings, next); err != nil {
		return s.current, fmt.Errorf("persisting settings: %w", err)
	}
	s.current = next
	return next, nil
}
