// Package sanitize cleans and bounds untrusted input before it reaches the
// entry store, the registry or the gateway's backing tables.
package sanitize

import (
	"encoding/json"
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	// MaxTextLength bounds free-text fields such as device names.
	MaxTextLength = 100
	// MaxBibLength bounds bib numbers.
	MaxBibLength = 6
	// MaxRaceIDLength bounds race identifiers.
	MaxRaceIDLength = 50
	// MaxIDLength bounds opaque identifiers (entry and device ids).
	MaxIDLength = 64
	// MaxJSONBytes bounds any persisted or received JSON blob.
	MaxJSONBytes = 5 << 20
)

var (
	// ErrInvalidBib indicates a bib that is not a short run of digits.
	ErrInvalidBib = errors.New("invalid bib")
	// ErrInvalidRaceID indicates a malformed race identifier.
	ErrInvalidRaceID = errors.New("invalid race id")
	// ErrInvalidID indicates a malformed opaque identifier.
	ErrInvalidID = errors.New("invalid id")
)

// Text normalises s to NFC, strips characters that break HTML rendering or
// storage (angle brackets, ampersand, control characters), trims surrounding
// whitespace and truncates to max runes. max <= 0 selects MaxTextLength.
func Text(s string, max int) string {
	if max <= 0 {
		max = MaxTextLength
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	s = norm.NFC.String(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '<', r == '>', r == '&':
			continue
		case unicode.IsControl(r):
			continue
		}
		b.WriteRune(r)
	}

	out := strings.TrimSpace(b.String())
	if utf8.RuneCountInString(out) > max {
		runes := []rune(out)
		out = strings.TrimSpace(string(runes[:max]))
	}
	return out
}

// Bib validates a bib number. Empty is allowed and means "ungrouped".
func Bib(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) > MaxBibLength {
		return "", ErrInvalidBib
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", ErrInvalidBib
		}
	}
	return s, nil
}

// RaceID validates a race identifier. The original case is kept; callers
// compare race ids with NormalizeRaceID.
func RaceID(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > MaxRaceIDLength {
		return "", ErrInvalidRaceID
	}
	for _, r := range s {
		if !isWordRune(r) {
			return "", ErrInvalidRaceID
		}
	}
	return s, nil
}

// NormalizeRaceID returns the case-insensitive lookup key for a race id.
func NormalizeRaceID(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ID validates an opaque identifier such as an entry or device id.
func ID(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > MaxIDLength {
		return "", ErrInvalidID
	}
	for _, r := range s {
		if !isWordRune(r) && r != '.' && r != ':' {
			return "", ErrInvalidID
		}
	}
	return s, nil
}

// JSON decodes data into a T. Empty, oversized or malformed input yields
// fallback and false; it never panics or returns an error.
func JSON[T any](data []byte, fallback T) (T, bool) {
	if len(data) == 0 || len(data) > MaxJSONBytes {
		return fallback, false
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return fallback, false
	}
	return v, true
}

func isWordRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-', r == '_':
		return true
	}
	return false
}
