package domain

import (
	"fmt"
	"strings"
)

// Track is a Play release track. Well-known tracks are listed below; any
// other non-empty name refers to a custom (closed testing) track.
type Track string

const (
	TrackInternal   Track = "internal"
	TrackAlpha      Track = "alpha"
	TrackBeta       Track = "beta"
	TrackProduction Track = "production"
)

// ParseTrack returns the canonical lowercase form of name.
func ParseTrack(name string) (Track, error) {
	t := Track(strings.ToLower(strings.TrimSpace(name)))
	if t == "" {
		return "", fmt.Errorf("%w: track name is required", ErrInvalidInput)
	}
	if strings.ContainsAny(string(t), " \t\r\n/") {
		return "", fmt.Errorf("%w: invalid track name %q", ErrInvalidInput, name)
	}
	return t, nil
}

func (t Track) String() string {
	return string(t)
}

// Equal compares tracks the way the Play backend does, ignoring case.
func (t Track) Equal(other Track) bool {
	return strings.EqualFold(string(t), string(other))
}

func (t Track) IsCustom() bool {
	switch Track(strings.ToLower(string(t))) {
	case TrackInternal, TrackAlpha, TrackBeta, TrackProduction:
		return false
	}
	return true
}
