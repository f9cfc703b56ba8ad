package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Config controls a Reporter.
//   - Stage: label carried on every snapshot.
//   - Total: expected number of items (0 when unknown).
//   - Interval: time between periodic snapshots (default 10s).
//   - SinkTimeout: per-sink timeout while reporting (default 5s).
//   - Logger: optional logger used for sink failures.
type Config struct {
	Stage       string
	Total       int
	Interval    time.Duration
	SinkTimeout time.Duration
	Logger      *zap.Logger
}

const (
	defaultInterval    = 10 * time.Second
	defaultSinkTimeout = 5 * time.Second
)

// Reporter counts stage outcomes and fans snapshots out to sinks. Add is
// safe for concurrent use and never blocks. A nil Reporter ignores calls.
type Reporter struct {
	cfg    Config
	sinks  []Sink
	logger *zap.Logger
	start  time.Time

	total  atomic.Int64
	done   atomic.Int64
	failed atomic.Int64

	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

// NewReporter starts the background reporting loop.
func NewReporter(cfg Config, sinks ...Sink) *Reporter {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reporter{
		cfg:    cfg,
		sinks:  append([]Sink(nil), sinks...),
		logger: logger,
		start:  time.Now(),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	r.total.Store(int64(cfg.Total))
	go r.run()
	return r
}

// Add records finished items.
func (r *Reporter) Add(done, failed int) {
	if r == nil {
		return
	}
	if done != 0 {
		r.done.Add(int64(done))
	}
	if failed != 0 {
		r.failed.Add(int64(failed))
	}
}

// SetTotal replaces the expected item count.
func (r *Reporter) SetTotal(total int) {
	if r == nil {
		return
	}
	r.total.Store(int64(total))
}

// Snapshot returns the current counts.
func (r *Reporter) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	return Snapshot{
		Stage:   r.cfg.Stage,
		Total:   int(r.total.Load()),
		Done:    int(r.done.Load()),
		Failed:  int(r.failed.Load()),
		Elapsed: time.Since(r.start),
	}
}

// Close stops the loop, publishes a final snapshot and returns it.
func (r *Reporter) Close(ctx context.Context) (Snapshot, error) {
	if r == nil {
		return Snapshot{}, nil
	}
	r.closeOnce.Do(func() { close(r.stopCh) })
	select {
	case <-r.doneCh:
	case <-ctx.Done():
		return r.Snapshot(), fmt.Errorf("progress reporter close wait: %w", ctx.Err())
	}
	snap := r.Snapshot()
	snap.Final = true
	r.report(snap)
	return snap, nil
}

func (r *Reporter) run() {
	defer close(r.doneCh)
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.report(r.Snapshot())
		case <-r.stopCh:
			return
		}
	}
}

func (r *Reporter) report(snap Snapshot) {
	for _, sink := range r.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.SinkTimeout)
		if err := sink.Report(ctx, snap); err != nil {
			r.logger.Warn("progress sink report failed", zap.Error(err))
		}
		cancel()
	}
}
