// Package system provides the wall clock used by the fetcher and stages.
package system

import (
	"context"
	"fmt"
	"time"
)

// Clock reads the wall clock and sleeps on real timers.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Sleep blocks for d or until ctx is done. Non-positive durations return
// immediately unless ctx is already done.
func (Clock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("sleep: %w", err)
		}
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("sleep: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
