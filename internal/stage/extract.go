package stage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/newsroom-builder/internal/dataset"
	"github.com/JakeFAU/newsroom-builder/internal/jsonl"
	"github.com/JakeFAU/newsroom-builder/internal/pipeline"
	"github.com/JakeFAU/newsroom-builder/internal/reduce"
)

const extractStage = "extract"

// ExtractOptions configures one extract run.
type ExtractOptions struct {
	Archive   *jsonl.Store
	Dataset   *jsonl.Store
	Pipeline  pipeline.Config
	Extractor dataset.Extractor
	Metrics   dataset.Metrics
	Binner    pipeline.Binner
}

// ExtractSummary reports an extract run.
type ExtractSummary struct {
	Run
	Archived    int `json:"archived"`
	AlreadyDone int `json:"already_done"`
	Todo        int `json:"todo"`
	Written     int `json:"written"`
	Dropped     int `json:"dropped"`
	Chunks      int `json:"chunks"`
	Malformed   int `json:"malformed_lines"`
}

// Extract transforms every archived page missing from the dataset store.
// Cancelling ctx discards only the chunk in progress; the returned error
// wraps ctx.Err() and the summary is marked aborted.
func (r *Runner) Extract(ctx context.Context, opts ExtractOptions) (ExtractSummary, error) {
	runID, logger := r.begin(extractStage)
	summary := ExtractSummary{Run: Run{RunID: runID, Stage: extractStage, StartedAt: time.Now().UTC()}}
	if opts.Archive == nil || opts.Dataset == nil {
		return summary, errors.New("extract: archive and dataset stores are required")
	}
	if !opts.Archive.Exists() {
		return summary, fmt.Errorf("extract: archive %s does not exist", opts.Archive.Path())
	}

	archived, archiveStats, err := reduce.Identifiers(ctx, opts.Archive, nil)
	if err != nil {
		return summary, fmt.Errorf("extract: %w", err)
	}
	todo, stats, err := reduce.ComputeTodo(ctx, archived, opts.Dataset, nil)
	if err != nil {
		return summary, fmt.Errorf("extract: %w", err)
	}
	summary.Archived = stats.Unique
	summary.AlreadyDone = stats.Done
	summary.Todo = stats.Todo
	logger.Info("Computed extract todo",
		zap.Int("archived", stats.Unique),
		zap.Int("finished", stats.Done),
		zap.Int("todo", stats.Todo),
		zap.Int("malformed_archive_lines", len(archiveStats.Malformed)),
		zap.Int("malformed_dataset_lines", len(stats.Store.Malformed)))

	rep := r.reporter(extractStage, len(todo), logger)
	p, err := pipeline.New(opts.Pipeline, opts.Extractor, opts.Metrics, opts.Binner,
		pipeline.WithLogger(logger), pipeline.WithProgress(rep))
	if err != nil {
		finish(ctx, rep, logger)
		return summary, fmt.Errorf("extract: %w", err)
	}
	result, runErr := p.Run(ctx, opts.Archive, opts.Dataset, todo)
	snap := finish(ctx, rep, logger)

	summary.Elapsed = snap.Elapsed
	summary.Written = result.Written
	summary.Dropped = result.Dropped
	summary.Chunks = result.Chunks
	summary.Malformed = len(result.Input.Malformed)
	if runErr != nil {
		if ctx.Err() == nil {
			return summary, fmt.Errorf("extract: %w", runErr)
		}
		summary.Aborted = true
		logger.Warn("Extraction aborted with progress preserved; run again to resume",
			zap.Int("chunks", summary.Chunks), zap.Int("written", summary.Written))
		r.announce(ctx, logger, summary)
		return summary, runErr
	}
	logger.Info("Extraction complete",
		zap.Int("written", summary.Written), zap.Int("dropped", summary.Dropped), zap.Int("chunks", summary.Chunks))
	r.announce(ctx, logger, summary)
	return summary, nil
}

// URLDiff lists identifiers of the URL list at urlsPath that the dataset
// store lacks, in list order.
func (r *Runner) URLDiff(ctx context.Context, urlsPath string, datasetStore *jsonl.Store) ([]string, error) {
	urls, err := LoadURLs(urlsPath)
	if err != nil {
		return nil, fmt.Errorf("urldiff: %w", err)
	}
	missing, stats, err := reduce.ComputeTodo(ctx, urls, datasetStore, nil)
	if err != nil {
		return nil, fmt.Errorf("urldiff: %w", err)
	}
	r.logger.Named("urldiff").Info("Compared URL list to dataset",
		zap.Int("requested", stats.Unique), zap.Int("missing", stats.Todo))
	return missing, nil
}
