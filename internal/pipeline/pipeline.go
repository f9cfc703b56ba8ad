// Package pipeline runs the extract stage: archive records are buffered into
// chunks, each chunk is transformed by a bounded group of goroutines, and the
// surviving records are appended to the dataset store as one batch before
// the next chunk starts. A chunk is the unit of crash recovery; an
// interrupted run loses at most the chunk in progress.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/newsroom-builder/internal/dataset"
	"github.com/JakeFAU/newsroom-builder/internal/jsonl"
	"github.com/JakeFAU/newsroom-builder/internal/metrics"
	"github.com/JakeFAU/newsroom-builder/internal/progress"
)

const stageName = "extract"

// Config sizes the pipeline.
type Config struct {
	ChunkSize int
	Workers   int
}

// DefaultConfig uses one worker per CPU and twenty records per worker.
func DefaultConfig() Config {
	cpus := runtime.NumCPU()
	return Config{ChunkSize: 20 * cpus, Workers: cpus}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.ChunkSize < 1 {
		return fmt.Errorf("chunk size must be >= 1, got %d", c.ChunkSize)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", c.Workers)
	}
	return nil
}

// Binner assigns categorical bins to a record with metrics.
type Binner interface {
	Apply(r *dataset.Record)
}

// Summary reports what a run did.
type Summary struct {
	Todo    int
	Written int
	Dropped int
	Chunks  int
	Input   jsonl.ReadStats
}

// Pipeline transforms archive records into dataset records.
type Pipeline struct {
	cfg       Config
	extractor dataset.Extractor
	metrics   dataset.Metrics
	binner    Binner
	progress  progress.Counter
	logger    *zap.Logger
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithProgress reports each committed chunk to c.
func WithProgress(c progress.Counter) Option {
	return func(p *Pipeline) { p.progress = c }
}

// New builds a Pipeline.
func New(cfg Config, extractor dataset.Extractor, m dataset.Metrics, binner Binner, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	if extractor == nil || m == nil || binner == nil {
		return nil, errors.New("pipeline: extractor, metrics and binner are required")
	}
	p := &Pipeline{
		cfg:       cfg,
		extractor: extractor,
		metrics:   m,
		binner:    binner,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run streams in, transforms every record whose identifier is in todo and
// appends the results to out chunk by chunk. Each identifier is processed
// at most once per run even if in holds duplicates. On cancellation the
// chunk in progress is discarded and the error wraps ctx.Err().
func (p *Pipeline) Run(ctx context.Context, in, out *jsonl.Store, todo []string) (Summary, error) {
	summary := Summary{Todo: len(todo)}
	pending := make(map[string]struct{}, len(todo))
	for _, id := range todo {
		pending[id] = struct{}{}
	}
	if len(pending) == 0 {
		return summary, nil
	}

	chunk := make([]dataset.ArchiveRecord, 0, p.cfg.ChunkSize)
	stats, err := jsonl.Decode(ctx, in, func(rec dataset.ArchiveRecord) error {
		id := rec.Identifier()
		if _, ok := pending[id]; !ok {
			return nil
		}
		delete(pending, id)
		chunk = append(chunk, rec)
		if len(chunk) < p.cfg.ChunkSize {
			return nil
		}
		if err := p.commit(ctx, out, chunk, &summary); err != nil {
			return err
		}
		chunk = make([]dataset.ArchiveRecord, 0, p.cfg.ChunkSize)
		return nil
	})
	summary.Input = stats
	if err == nil {
		err = p.commit(ctx, out, chunk, &summary)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return summary, fmt.Errorf("extract aborted after %d chunks: %w", summary.Chunks, ctxErr)
		}
		return summary, err
	}
	return summary, nil
}

func (p *Pipeline) commit(ctx context.Context, out *jsonl.Store, chunk []dataset.ArchiveRecord, summary *Summary) error {
	if len(chunk) == 0 {
		return nil
	}
	results, err := p.transform(ctx, chunk)
	if err != nil {
		return err
	}
	records := make([]*dataset.Record, 0, len(results))
	for _, r := range results {
		if r != nil {
			records = append(records, r)
		}
	}
	if err := jsonl.AppendMany(out, records); err != nil {
		return fmt.Errorf("append chunk: %w", err)
	}

	dropped := len(chunk) - len(records)
	summary.Chunks++
	summary.Written += len(records)
	summary.Dropped += dropped
	metrics.ObserveChunk(stageName)
	metrics.ObserveRecords(stageName, "written", len(records))
	metrics.ObserveRecords(stageName, "dropped", dropped)
	if p.progress != nil {
		p.progress.Add(len(records), dropped)
	}
	p.logger.Debug("Chunk committed",
		zap.Int("chunk", summary.Chunks),
		zap.Int("written", len(records)),
		zap.Int("dropped", dropped))
	return nil
}

// transform processes a chunk with at most cfg.Workers goroutines. The
// result slice is index-aligned with chunk. It fails only on cancellation.
func (p *Pipeline) transform(ctx context.Context, chunk []dataset.ArchiveRecord) ([]*dataset.Record, error) {
	results := make([]*dataset.Record, len(chunk))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for i := range chunk {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			metrics.IncActiveWorkers(stageName)
			defer metrics.DecActiveWorkers(stageName)
			results[i] = p.process(chunk[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("transform chunk: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("transform chunk: %w", err)
	}
	return results, nil
}

// process turns one archive record into a dataset record, or nil. A panic
// in the extractor or metrics only loses this record.
func (p *Pipeline) process(page dataset.ArchiveRecord) (rec *dataset.Record) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("Record transform panicked",
				zap.String("archive", page.Identifier()), zap.Any("panic", r))
			rec = nil
		}
	}()
	rec = p.extractor.Process(page)
	if rec == nil || !rec.HasMetricInput() {
		return rec
	}
	density, coverage, compression := p.metrics.Compute(*rec.Summary, *rec.Text)
	if !finite(density, coverage, compression) {
		// JSON has no NaN or Inf; keep the record without metrics or bins.
		p.logger.Warn("Non-finite metrics; storing record unscored",
			zap.String("archive", page.Identifier()),
			zap.Float64("density", density),
			zap.Float64("coverage", coverage),
			zap.Float64("compression", compression))
		return rec
	}
	rec.SetMetrics(density, coverage, compression)
	p.binner.Apply(rec)
	return rec
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
