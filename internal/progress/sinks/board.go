package sinks

import (
	"context"
	"sort"
	"sync"

	"github.com/JakeFAU/newsroom-builder/internal/progress"
)

// Board keeps the latest snapshot per stage for status queries.
type Board struct {
	mu     sync.RWMutex
	latest map[string]progress.Snapshot
}

// NewBoard returns an empty Board.
func NewBoard() *Board {
	return &Board{latest: make(map[string]progress.Snapshot)}
}

// Report stores snap as the stage's latest snapshot.
func (b *Board) Report(_ context.Context, snap progress.Snapshot) error {
	b.mu.Lock()
	b.latest[snap.Stage] = snap
	b.mu.Unlock()
	return nil
}

// Latest returns the most recent snapshot of stage.
func (b *Board) Latest(stage string) (progress.Snapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	snap, ok := b.latest[stage]
	return snap, ok
}

// All returns the latest snapshot of every stage, ordered by stage name.
func (b *Board) All() []progress.Snapshot {
	b.mu.RLock()
	out := make([]progress.Snapshot, 0, len(b.latest))
	for _, snap := range b.latest {
		out = append(out, snap)
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Stage < out[j].Stage })
	return out
}
