package progress

import (
	"context"
	"time"
)

// Snapshot is the state of a stage at one instant.
type Snapshot struct {
	Stage   string
	Total   int
	Done    int
	Failed  int
	Elapsed time.Duration
	// Final is set on the snapshot published by Close.
	Final bool
}

// Handled returns done plus failed.
func (s Snapshot) Handled() int { return s.Done + s.Failed }

// Percent returns the handled share of the total, or 0 without a total.
func (s Snapshot) Percent() float64 {
	if s.Total <= 0 {
		return 0
	}
	return 100 * float64(s.Handled()) / float64(s.Total)
}

// Rate returns handled items per second.
func (s Snapshot) Rate() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Handled()) / s.Elapsed.Seconds()
}

// Sink consumes snapshots. Implementations must honor ctx deadlines.
type Sink interface {
	Report(ctx context.Context, snap Snapshot) error
}

// Counter is what workers see: a place to record outcomes.
type Counter interface {
	Add(done, failed int)
}
