// Package app builds and holds the long-lived services a newsroom command
// needs: configuration, logger, metrics endpoint, run notifications and the
// factories for stores, fetchers and blob targets.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/JakeFAU/newsroom-builder/internal/api"
	"github.com/JakeFAU/newsroom-builder/internal/config"
	"github.com/JakeFAU/newsroom-builder/internal/dataset"
	"github.com/JakeFAU/newsroom-builder/internal/fetcher"
	collyfetcher "github.com/JakeFAU/newsroom-builder/internal/fetcher/colly"
	"github.com/JakeFAU/newsroom-builder/internal/jsonl"
	"github.com/JakeFAU/newsroom-builder/internal/logging"
	"github.com/JakeFAU/newsroom-builder/internal/metrics"
	"github.com/JakeFAU/newsroom-builder/internal/policy/ratelimit"
	"github.com/JakeFAU/newsroom-builder/internal/progress/sinks"
	"github.com/JakeFAU/newsroom-builder/internal/publisher/pubsub"
	"github.com/JakeFAU/newsroom-builder/internal/stage"
	"github.com/JakeFAU/newsroom-builder/internal/storage"
	"github.com/JakeFAU/newsroom-builder/internal/storage/gcs"
	"github.com/JakeFAU/newsroom-builder/internal/storage/local"
)

// Options controls how New builds the container.
type Options struct {
	// ConfigPath is an optional config file.
	ConfigPath string
	// Flags carries command flags annotated with config.BindFlag.
	Flags *pflag.FlagSet
	// Logger replaces the configured logger; tests use it.
	Logger *zap.Logger
	// Publisher replaces the Pub/Sub publisher built from the config.
	Publisher dataset.Publisher
}

// App is the dependency container shared by the commands.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	tools     jsonl.Tools
	metrics   *metrics.Server
	board     *sinks.Board
	publisher dataset.Publisher
	closers   []func() error
}

// New loads configuration and starts the shared services. It fails fast if
// any of them cannot be initialized.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath, opts.Flags)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	a := &App{cfg: cfg, logger: opts.Logger}
	if a.logger == nil {
		logger, restore, err := logging.Install(cfg.Logging.Development)
		if err != nil {
			return nil, err
		}
		a.logger = logger
		a.closers = append(a.closers, func() error { restore(); return nil })
	}

	metrics.Init()
	a.board = sinks.NewBoard()
	status := api.NewProgressHandler(a.board, a.logger.Named("api"))
	a.metrics, err = metrics.Start(cfg.Metrics.Addr, a.logger, status.Routes)
	if err != nil {
		_ = a.closeAll(ctx)
		return nil, fmt.Errorf("start metrics server: %w", err)
	}

	a.publisher = opts.Publisher
	if a.publisher == nil && cfg.Publish.Topic != "" {
		p, err := pubsub.Dial(ctx, cfg.Publish.ProjectID)
		if err != nil {
			_ = a.closeAll(ctx)
			return nil, fmt.Errorf("init publisher: %w", err)
		}
		a.publisher = p
		a.closers = append(a.closers, p.Close)
		a.logger.Info("Publishing run summaries", zap.String("topic", cfg.Publish.Topic))
	}

	a.tools = jsonl.DetectTools()
	a.logger.Debug("Application services initialized",
		zap.Strings("decompressors", a.tools.Available()),
		zap.String("metrics_addr", a.metrics.Addr()))
	return a, nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Publisher returns the run summary publisher, or nil when disabled.
func (a *App) Publisher() dataset.Publisher { return a.publisher }

// MetricsAddr returns the bound metrics address, or "" when disabled.
func (a *App) MetricsAddr() string { return a.metrics.Addr() }

// OpenStore opens a record store with the shared decompressor tools.
func (a *App) OpenStore(path string, codec jsonl.Codec) (*jsonl.Store, error) {
	store, err := jsonl.Open(path, codec,
		jsonl.WithTools(a.tools),
		jsonl.WithFastRead(a.cfg.Store.FastRead),
		jsonl.WithLogger(a.logger.Named("store")))
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	return store, nil
}

// Runner builds a stage runner reporting progress to the log, Prometheus and
// the /progress status board.
func (a *App) Runner() *stage.Runner {
	return stage.NewRunner(
		stage.WithLogger(a.logger),
		stage.WithPublisher(a.publisher, a.cfg.Publish.Topic),
		stage.WithProgressSinks(a.cfg.Metrics.ProgressInterval,
			sinks.NewLogSink(a.logger.Named("progress")),
			sinks.NewPrometheusSink(),
			a.board),
	)
}

// Fetcher builds the archive downloader from the fetch config.
func (a *App) Fetcher() (*fetcher.Fetcher, error) {
	fc := a.cfg.Fetch
	transport := collyfetcher.New(collyfetcher.Config{
		UserAgent:   fc.UserAgent,
		Timeout:     fc.Timeout,
		MaxBodySize: fc.MaxBodySize,
	})
	opts := []fetcher.Option{fetcher.WithLogger(a.logger.Named("fetch"))}
	if fc.RateLimitRPS > 0 {
		opts = append(opts, fetcher.WithLimiter(ratelimit.New(ratelimit.Config{
			DefaultRPS:   fc.RateLimitRPS,
			DefaultBurst: fc.RateLimitBurst,
		})))
	}
	f, err := fetcher.New(fetcher.Config{
		Workers:       fc.Workers,
		MaxTries:      fc.Tries,
		BaseSleep:     fc.Sleep,
		Multiplier:    fc.Multiplier,
		SuccessStatus: fc.SuccessStatus,
	}, transport, opts...)
	if err != nil {
		return nil, fmt.Errorf("init fetcher: %w", err)
	}
	return f, nil
}

// BlobStore builds the configured upload target.
func (a *App) BlobStore(ctx context.Context) (storage.BlobStore, error) {
	switch a.cfg.Publish.Backend {
	case "gcs":
		s, err := gcs.Dial(ctx, gcs.Config{Bucket: a.cfg.Publish.Bucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs store: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	case "local":
		s, err := local.New(local.Config{BaseDir: a.cfg.Publish.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("init local store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown publish backend %q", a.cfg.Publish.Backend)
	}
}

// Close shuts the services down in reverse start order.
func (a *App) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	var errs []error
	if err := a.metrics.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, a.closeAll(ctx))
	return errors.Join(errs...)
}

func (a *App) closeAll(_ context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
