// Package reduce computes what is left to do for a stage by diffing the
// identifiers requested against the identifiers a store already holds. Every
// stage derives its work list this way, which is what makes reruns resume.
package reduce

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/JakeFAU/newsroom-builder/internal/dataset"
	"github.com/JakeFAU/newsroom-builder/internal/jsonl"
	"github.com/JakeFAU/newsroom-builder/internal/metrics"
)

// KeyFunc picks the identifier of a stored record.
type KeyFunc func(dataset.Provenance) string

// ProvenanceKey uses the archive field and falls back to the legacy url field.
func ProvenanceKey(p dataset.Provenance) string {
	return p.Identifier()
}

// Stats describes one reduction.
type Stats struct {
	Requested int
	Unique    int
	Done      int
	Todo      int
	Store     jsonl.ReadStats
}

// Done returns the set of identifiers present in store. Malformed lines are
// skipped and a truncated tail is tolerated; both show up in the ReadStats.
func Done(ctx context.Context, store *jsonl.Store, key KeyFunc) (map[string]struct{}, jsonl.ReadStats, error) {
	if key == nil {
		key = ProvenanceKey
	}
	done := make(map[string]struct{})
	stats, err := jsonl.Decode(ctx, store, func(p dataset.Provenance) error {
		if id := key(p); id != "" {
			done[id] = struct{}{}
		}
		return nil
	})
	metrics.ObserveMalformed(filepath.Base(store.Path()), len(stats.Malformed))
	if err != nil {
		return nil, stats, fmt.Errorf("load identifiers from %s: %w", store.Path(), err)
	}
	return done, stats, nil
}

// Identifiers lists the distinct identifiers of store in first-seen order.
func Identifiers(ctx context.Context, store *jsonl.Store, key KeyFunc) ([]string, jsonl.ReadStats, error) {
	if key == nil {
		key = ProvenanceKey
	}
	seen := make(map[string]struct{})
	var ids []string
	stats, err := jsonl.Decode(ctx, store, func(p dataset.Provenance) error {
		id := key(p)
		if id == "" {
			return nil
		}
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		return nil
	})
	metrics.ObserveMalformed(filepath.Base(store.Path()), len(stats.Malformed))
	if err != nil {
		return nil, stats, fmt.Errorf("list identifiers in %s: %w", store.Path(), err)
	}
	return ids, stats, nil
}

// ComputeTodo returns the requested identifiers absent from store, in request
// order and without duplicates.
func ComputeTodo(ctx context.Context, requested []string, store *jsonl.Store, key KeyFunc) ([]string, Stats, error) {
	done, readStats, err := Done(ctx, store, key)
	if err != nil {
		return nil, Stats{Store: readStats}, err
	}
	todo, stats := Subtract(requested, done)
	stats.Store = readStats
	return todo, stats, nil
}

// Subtract removes done identifiers from requested, keeping request order
// and dropping repeats and blank entries.
func Subtract(requested []string, done map[string]struct{}) ([]string, Stats) {
	stats := Stats{Requested: len(requested)}
	seen := make(map[string]struct{}, len(requested))
	todo := make([]string, 0, len(requested))
	for _, id := range requested {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		stats.Unique++
		if _, ok := done[id]; ok {
			stats.Done++
			continue
		}
		todo = append(todo, id)
	}
	stats.Todo = len(todo)
	return todo, stats
}
