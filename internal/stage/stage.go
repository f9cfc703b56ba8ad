// Package stage orchestrates the scrape and extract runs. A stage derives
// its todo list from the stores on disk, drives the fetcher or the
// transform pipeline over it, reports progress and returns a run summary
// that is optionally announced on a Pub/Sub topic.
package stage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/newsroom-builder/internal/dataset"
	"github.com/JakeFAU/newsroom-builder/internal/id"
	"github.com/JakeFAU/newsroom-builder/internal/progress"
)

const publishTimeout = 10 * time.Second

// Runner holds what every stage run shares.
type Runner struct {
	logger    *zap.Logger
	publisher dataset.Publisher
	topic     string
	ids       id.Generator
	sinks     []progress.Sink
	interval  time.Duration
}

// Option customizes a Runner.
type Option func(*Runner)

// WithLogger sets the base logger; each run derives a named child.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithPublisher announces run summaries on topic. An empty topic disables it.
func WithPublisher(p dataset.Publisher, topic string) Option {
	return func(r *Runner) {
		r.publisher = p
		r.topic = topic
	}
}

// WithIDs replaces the run ID generator.
func WithIDs(g id.Generator) Option {
	return func(r *Runner) {
		if g != nil {
			r.ids = g
		}
	}
}

// WithProgressSinks sets the sinks every run reports to, and the interval
// between periodic snapshots.
func WithProgressSinks(interval time.Duration, sinks ...progress.Sink) Option {
	return func(r *Runner) {
		r.interval = interval
		r.sinks = append([]progress.Sink(nil), sinks...)
	}
}

// NewRunner builds a Runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		logger: zap.NewNop(),
		ids:    id.NewRunIDs(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// begin allocates a run ID and a run-scoped logger.
func (r *Runner) begin(stage string) (string, *zap.Logger) {
	runID, err := r.ids.NewID()
	if err != nil {
		r.logger.Warn("Could not allocate run id", zap.Error(err))
		runID = "unknown"
	}
	return runID, r.logger.Named(stage).With(zap.String("run_id", runID))
}

func (r *Runner) reporter(stage string, total int, logger *zap.Logger) *progress.Reporter {
	return progress.NewReporter(progress.Config{
		Stage:    stage,
		Total:    total,
		Interval: r.interval,
		Logger:   logger,
	}, r.sinks...)
}

// finish stops the reporter and returns the final snapshot. It still works
// after the run context was cancelled.
func finish(ctx context.Context, rep *progress.Reporter, logger *zap.Logger) progress.Snapshot {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	snap, err := rep.Close(ctx)
	if err != nil {
		logger.Warn("Progress reporter did not stop cleanly", zap.Error(err))
	}
	return snap
}

// announce publishes summary when a topic is configured. Failures are
// logged; a run never fails because its notification did.
func (r *Runner) announce(ctx context.Context, logger *zap.Logger, summary any) {
	if r.publisher == nil || r.topic == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	msgID, err := r.publisher.Publish(ctx, r.topic, summary)
	if err != nil {
		logger.Warn("Failed to publish run summary", zap.String("topic", r.topic), zap.Error(err))
		return
	}
	logger.Debug("Published run summary", zap.String("topic", r.topic), zap.String("message_id", msgID))
}

// Run is the header every summary carries.
type Run struct {
	RunID     string        `json:"run_id"`
	Stage     string        `json:"stage"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	Aborted   bool          `json:"aborted"`
}

// Attributes tags published summaries with the run ID and stage.
func (r Run) Attributes() map[string]string {
	return map[string]string{"run_id": r.RunID, "stage": r.Stage}
}
