package stage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/newsroom-builder/internal/dataset"
	"github.com/JakeFAU/newsroom-builder/internal/fetcher"
	"github.com/JakeFAU/newsroom-builder/internal/jsonl"
	"github.com/JakeFAU/newsroom-builder/internal/metrics"
	"github.com/JakeFAU/newsroom-builder/internal/progress"
	"github.com/JakeFAU/newsroom-builder/internal/reduce"
)

const (
	scrapeStage = "scrape"
	// failureLogEvery controls how often a running failure count is logged.
	failureLogEvery = 10
	// bytesPerPage is the rough compressed size of one archived page.
	bytesPerPage = 20_000
	defaultFlush = 100
)

// Downloader fetches pages in input order.
type Downloader interface {
	Download(ctx context.Context, urls []string) <-chan fetcher.Result
}

// ScrapeOptions configures one scrape run.
type ScrapeOptions struct {
	// URLsPath lists archive identifiers, one per line. Takes precedence over Thin.
	URLsPath string
	// Thin is a template dataset whose archive fields are the identifiers.
	Thin *jsonl.Store
	// Archive receives one line per downloaded page.
	Archive *jsonl.Store
	// Exactness, when set, truncates identifier timestamps to that many
	// digits before fetching.
	Exactness *int
	// Diff only lists the identifiers still to download.
	Diff bool
	// Seed makes the download order reproducible. Zero picks a random order.
	Seed uint64
	// FlushEvery bounds how many appended pages may sit in the writer buffer.
	FlushEvery int
}

// ScrapeSummary reports a scrape run.
type ScrapeSummary struct {
	Run
	Requested   int      `json:"requested"`
	AlreadyDone int      `json:"already_done"`
	Todo        int      `json:"todo"`
	Fetched     int      `json:"fetched"`
	Failed      int      `json:"failed"`
	Exactness   int      `json:"exactness,omitempty"`
	Hints       []string `json:"hints,omitempty"`
	// Remaining lists the todo identifiers of a diff-only run.
	Remaining []string `json:"-"`
}

// EstimatedGB is the rough download size of the todo list.
func (s ScrapeSummary) EstimatedGB() float64 {
	return math.Round(float64(s.Todo)*bytesPerPage/1e8) / 10
}

// Scrape downloads every requested identifier missing from the archive
// store and appends each success as soon as it arrives. Cancelling ctx
// stops dispatching; everything appended so far stays readable and the
// returned error wraps ctx.Err() with the summary marked aborted.
func (r *Runner) Scrape(ctx context.Context, dl Downloader, opts ScrapeOptions) (ScrapeSummary, error) {
	runID, logger := r.begin(scrapeStage)
	summary := ScrapeSummary{Run: Run{RunID: runID, Stage: scrapeStage, StartedAt: time.Now().UTC()}}
	if opts.Archive == nil {
		return summary, errors.New("scrape: archive store is required")
	}
	if dl == nil && !opts.Diff {
		return summary, errors.New("scrape: downloader is required")
	}

	req, err := requested(ctx, opts.URLsPath, opts.Thin)
	if err != nil {
		return summary, fmt.Errorf("scrape: %w", err)
	}
	todo, stats, err := reduce.ComputeTodo(ctx, req, opts.Archive, nil)
	if err != nil {
		return summary, fmt.Errorf("scrape: %w", err)
	}
	summary.Requested = stats.Requested
	summary.AlreadyDone = stats.Done
	summary.Todo = stats.Todo
	logger.Info("Computed scrape todo",
		zap.Int("requested", stats.Requested),
		zap.Int("already_downloaded", stats.Done),
		zap.Int("todo", stats.Todo),
		zap.Int("malformed_archive_lines", len(stats.Store.Malformed)),
		zap.Float64("approx_gb", summary.EstimatedGB()))

	if opts.Diff {
		summary.Remaining = todo
		return summary, nil
	}

	var exact *reduce.ExactnessMap
	if opts.Exactness != nil {
		exact = reduce.BuildExactnessMap(todo, *opts.Exactness)
		todo = exact.Keys()
		summary.Exactness = exact.Digits()
		logger.Info("Truncated identifier timestamps",
			zap.Int("digits", exact.Digits()), zap.Int("fetching", len(todo)))
	}
	shuffle(todo, opts.Seed)

	rep := r.reporter(scrapeStage, len(todo), logger)
	runErr := r.download(ctx, dl, opts, todo, exact, &summary, rep, logger)
	snap := finish(ctx, rep, logger)
	summary.Elapsed = snap.Elapsed

	if runErr == nil && ctx.Err() != nil {
		runErr = fmt.Errorf("scrape aborted: %w", ctx.Err())
	}
	if runErr != nil && ctx.Err() != nil {
		summary.Aborted = true
		logger.Warn("Download aborted with progress preserved; run again to resume",
			zap.Int("fetched", summary.Fetched))
	}
	if runErr == nil || summary.Aborted {
		summary.Hints = scrapeHints(summary)
		r.announce(ctx, logger, summary)
	}
	metrics.ObserveRecords(scrapeStage, metrics.OutcomeSuccess, summary.Fetched)
	metrics.ObserveRecords(scrapeStage, metrics.OutcomeError, summary.Failed)
	return summary, runErr
}

func (r *Runner) download(ctx context.Context, dl Downloader, opts ScrapeOptions, todo []string,
	exact *reduce.ExactnessMap, summary *ScrapeSummary, rep progress.Counter, logger *zap.Logger,
) error {
	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = defaultFlush
	}
	dlCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var storeErr error
	unflushed := 0
	for res := range dl.Download(dlCtx, todo) {
		if storeErr != nil {
			continue
		}
		if res.Page == nil {
			if dlCtx.Err() != nil {
				continue
			}
			summary.Failed++
			rep.Add(0, 1)
			if summary.Failed%failureLogEvery == 0 {
				logger.Warn("Pages need re-downloading later", zap.Int("failed", summary.Failed))
			}
			continue
		}

		if err := opts.Archive.AppendOne(archiveRecord(res.Page, exact)); err != nil {
			storeErr = fmt.Errorf("append to archive: %w", err)
			cancel()
			continue
		}
		summary.Fetched++
		rep.Add(1, 0)
		if unflushed++; unflushed >= flushEvery {
			if err := opts.Archive.Flush(); err != nil {
				storeErr = fmt.Errorf("flush archive: %w", err)
				cancel()
				continue
			}
			unflushed = 0
		}
	}
	if err := opts.Archive.Flush(); err != nil && storeErr == nil {
		storeErr = fmt.Errorf("flush archive: %w", err)
	}
	return storeErr
}

// archiveRecord renames the fetched URL to the archive key and, when the
// identifier was truncated, restores the original while keeping the key
// actually fetched.
func archiveRecord(page *fetcher.Page, exact *reduce.ExactnessMap) dataset.ArchiveRecord {
	rec := dataset.ArchiveRecord{Archive: page.URL, HTML: page.HTML}
	if exact == nil {
		return rec
	}
	if original, ok := exact.Resolve(page.URL); ok {
		rec.Archive = original
	}
	rec.ExactnessFactor = exact.Digits()
	rec.ExactnessArchive = page.URL
	return rec
}

// shuffle spreads slow pages across the run. A non-zero seed is reproducible.
func shuffle(ids []string, seed uint64) {
	swap := func(i, j int) { ids[i], ids[j] = ids[j], ids[i] }
	if seed == 0 {
		rand.Shuffle(len(ids), swap)
		return
	}
	rand.New(rand.NewPCG(seed, seed)).Shuffle(len(ids), swap)
}

func scrapeHints(s ScrapeSummary) []string {
	if s.Aborted {
		return []string{"Run the command again to resume from this point."}
	}
	if s.Failed == 0 {
		return []string{"Download complete. Next, run newsroom extract."}
	}
	return []string{
		fmt.Sprintf("Rerun the command: %d pages failed to download.", s.Failed),
		"Try a lower --workers count (default 16).",
		"Check which URLs are left with the --diff flag.",
		"Last resort: --exactness X truncates dates to X digits (--exactness 4 downloads the closest year).",
	}
}
