// Package id generates run identifiers.
package id

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Generator produces identifiers.
type Generator interface {
	NewID() (string, error)
}

// RunIDs creates time-ordered UUIDv7 run IDs, so run summaries sort by start time.
type RunIDs struct{}

// NewRunIDs returns a RunIDs generator.
func NewRunIDs() RunIDs { return RunIDs{} }

// NewID returns a UUIDv7 string.
func (RunIDs) NewID() (string, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return u.String(), nil
}

// StartedAt recovers the creation time embedded in a UUIDv7 run ID.
func StartedAt(runID string) (time.Time, error) {
	u, err := uuid.Parse(runID)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse run id: %w", err)
	}
	if u.Version() != 7 {
		return time.Time{}, fmt.Errorf("run id %s is version %d, want 7", runID, u.Version())
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec).UTC(), nil
}

// Static always returns the same ID. Tests use it for reproducible summaries.
type Static string

// NewID implements Generator.
func (s Static) NewID() (string, error) { return string(s), nil }
