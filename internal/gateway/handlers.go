package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rpggio/skitimer/internal/api"
	"github.com/rpggio/skitimer/internal/clock"
	"github.com/rpggio/skitimer/internal/repository"
	"github.com/rpggio/skitimer/internal/sanitize"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.PingContext(r.Context()); err != nil {
			s.logger.Warn("health check failed", "error", err)
			ServiceUnavailable(w, "database unavailable")
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleGetRace(w http.ResponseWriter, r *http.Request) {
	raceID, err := sanitize.RaceID(chi.URLParam(r, "raceID"))
	if err != nil {
		BadRequest(w, "invalid race id")
		return
	}

	state, err := s.races.GetRace(r.Context(), raceID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		state = &api.RaceState{RaceID: raceID, Entries: []api.Entry{}}
	case err != nil:
		s.logger.Error("loading race", "race_id", raceID, "error", err)
		ServerError(w)
		return
	}

	payload, err := json.Marshal(state)
	if err != nil {
		s.logger.Error("encoding race", "race_id", raceID, "error", err)
		ServerError(w)
		return
	}
	WriteCached(w, r, payload)
}

func (s *Server) handleSubmitEntries(w http.ResponseWriter, r *http.Request) {
	raceID, err := sanitize.RaceID(chi.URLParam(r, "raceID"))
	if err != nil {
		BadRequest(w, "invalid race id")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	var req api.SubmitEntriesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			BadRequest(w, "request body too large")
			return
		}
		BadRequest(w, "invalid JSON body")
		return
	}

	if len(req.Entries) == 0 {
		BadRequest(w, "no entries")
		return
	}
	if len(req.Entries) > s.cfg.MaxEntriesPerRequest {
		BadRequest(w, "too many entries")
		return
	}

	deviceID, _ := DeviceFromContext(r.Context())
	entries, msg := cleanEntries(req, deviceID)
	if msg != "" {
		BadRequest(w, msg)
		return
	}

	res, err := s.races.UpsertEntries(r.Context(), raceID, entries, clock.Millis(s.clock.Now()))
	if err != nil {
		if errors.Is(err, repository.ErrInvalidInput) {
			BadRequest(w, "invalid entry")
			return
		}
		s.logger.Error("storing entries", "race_id", raceID, "error", err)
		ServerError(w)
		return
	}

	s.logger.Info("entries submitted",
		"race_id", raceID,
		"device_id", deviceID,
		"accepted", res.Accepted,
		"ignored", res.Ignored,
	)
	writeJSON(w, http.StatusOK, api.SubmitEntriesResponse{
		Accepted:    res.Accepted,
		Ignored:     res.Ignored,
		LastUpdated: res.LastUpdated,
	})
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	raceID, err := sanitize.RaceID(chi.URLParam(r, "raceID"))
	if err != nil {
		BadRequest(w, "invalid race id")
		return
	}
	entryID, err := sanitize.ID(chi.URLParam(r, "entryID"))
	if err != nil {
		BadRequest(w, "invalid entry id")
		return
	}

	deviceID, _ := DeviceFromContext(r.Context())
	err = s.races.DeleteEntry(r.Context(), raceID, entryID, deviceID, clock.Millis(s.clock.Now()))
	switch {
	case errors.Is(err, repository.ErrNotFound):
		NotFound(w, "entry not found")
		return
	case err != nil:
		s.logger.Error("deleting entry", "race_id", raceID, "entry_id", entryID, "error", err)
		ServerError(w)
		return
	}

	s.logger.Info("entry deleted", "race_id", raceID, "entry_id", entryID)
	w.WriteHeader(http.StatusNoContent)
}

// cleanEntries validates and sanitizes submitted entries. A non-empty
// message means the request must be rejected.
func cleanEntries(req api.SubmitEntriesRequest, authDevice string) ([]api.Entry, string) {
	fallbackDevice := authDevice
	if fallbackDevice == "" {
		fallbackDevice = req.DeviceID
	}
	deviceName := sanitize.Text(req.DeviceName, sanitize.MaxTextLength)

	out := make([]api.Entry, 0, len(req.Entries))
	for _, e := range req.Entries {
		id, err := sanitize.ID(e.ID)
		if err != nil {
			return nil, "invalid entry id"
		}
		bib, err := sanitize.Bib(e.Bib)
		if err != nil {
			return nil, "invalid bib"
		}
		if e.Run < 1 {
			return nil, "invalid run"
		}
		if e.Point != "S" && e.Point != "F" {
			return nil, "invalid timing point"
		}
		if e.Timestamp <= 0 {
			return nil, "invalid timestamp"
		}

		device := e.DeviceID
		if authDevice != "" || device == "" {
			device = fallbackDevice
		}
		if device != "" {
			if device, err = sanitize.ID(device); err != nil {
				return nil, "invalid device id"
			}
		}

		name := deviceName
		if e.DeviceName != "" {
			name = sanitize.Text(e.DeviceName, sanitize.MaxTextLength)
		}

		updatedAt := e.UpdatedAt
		if updatedAt < e.Timestamp {
			updatedAt = e.Timestamp
		}

		out = append(out, api.Entry{
			ID:         id,
			Bib:        bib,
			Timestamp:  e.Timestamp,
			Run:        e.Run,
			Point:      e.Point,
			DeviceID:   device,
			DeviceName: name,
			UpdatedAt:  updatedAt,
			DeletedAt:  max(e.DeletedAt, 0),
		})
	}
	return out, ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
