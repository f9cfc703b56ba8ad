// Package fetcher downloads archived pages concurrently. Results come back
// in input order, each URL is retried with jittered multiplicative backoff,
// and a URL that never succeeds resolves to a nil page instead of an error.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/newsroom-builder/internal/clock/system"
	"github.com/JakeFAU/newsroom-builder/internal/metrics"
)

// Config tunes the download pool.
type Config struct {
	// Workers is the number of concurrent downloads.
	Workers int
	// MaxTries bounds the attempts per URL.
	MaxTries int
	// BaseSleep seeds the per-URL backoff; before every attempt the worker
	// sleeps a uniform random duration in [0, 2*sleep).
	BaseSleep time.Duration
	// Multiplier scales the sleep after each failed attempt.
	Multiplier float64
	// SuccessStatus is the only HTTP status treated as success.
	SuccessStatus int
}

// DefaultConfig returns the historical crawl settings.
func DefaultConfig() Config {
	return Config{
		Workers:       16,
		MaxTries:      3,
		BaseSleep:     2 * time.Second,
		Multiplier:    1.5,
		SuccessStatus: 200,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var errs []error
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be >= 1, got %d", c.Workers))
	}
	if c.MaxTries < 1 {
		errs = append(errs, fmt.Errorf("max tries must be >= 1, got %d", c.MaxTries))
	}
	if c.BaseSleep < 0 {
		errs = append(errs, fmt.Errorf("base sleep must not be negative, got %s", c.BaseSleep))
	}
	if c.Multiplier <= 0 {
		errs = append(errs, fmt.Errorf("multiplier must be positive, got %g", c.Multiplier))
	}
	if c.SuccessStatus < 100 || c.SuccessStatus > 599 {
		errs = append(errs, fmt.Errorf("success status must be a valid HTTP status, got %d", c.SuccessStatus))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid fetch config: %w", err)
	}
	return nil
}

// Response is what a Transport returns for one attempt.
type Response struct {
	Status int
	Body   []byte
}

// Transport performs a single GET.
type Transport interface {
	Get(ctx context.Context, url string) (Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, url string) (Response, error)

// Get implements Transport.
func (f TransportFunc) Get(ctx context.Context, url string) (Response, error) { return f(ctx, url) }

// Limiter gates attempts per host.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Clock supplies time and cancellable sleeps.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// Page is a successfully fetched document.
type Page struct {
	URL       string
	Status    int
	HTML      string
	FetchedAt time.Time
}

// Result pairs an input position with its page. Page is nil when every
// attempt failed or the run was cancelled while the URL was in flight.
type Result struct {
	Index int
	URL   string
	Page  *Page
}

// Fetcher runs downloads through a Transport.
type Fetcher struct {
	cfg       Config
	transport Transport
	limiter   Limiter
	clock     Clock
	jitter    func(limit time.Duration) time.Duration
	logger    *zap.Logger
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithLimiter waits on l before every attempt.
func WithLimiter(l Limiter) Option {
	return func(f *Fetcher) { f.limiter = l }
}

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.clock = c
		}
	}
}

// WithJitter replaces the random source. fn must return a duration in [0, limit).
func WithJitter(fn func(limit time.Duration) time.Duration) Option {
	return func(f *Fetcher) {
		if fn != nil {
			f.jitter = fn
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// New builds a Fetcher.
func New(cfg Config, transport Transport, opts ...Option) (*Fetcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, errors.New("fetcher: transport is required")
	}
	f := &Fetcher{
		cfg:       cfg,
		transport: transport,
		clock:     system.New(),
		jitter:    Jitter,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

type job struct {
	index int
	url   string
	slot  chan Result
}

// Download fetches every URL and emits one Result per dispatched URL in
// input order. The channel closes once all dispatched URLs are resolved.
// Cancelling ctx stops dispatching; URLs already in flight resolve to a nil
// page. Callers must drain the channel.
func (f *Fetcher) Download(ctx context.Context, urls []string) <-chan Result {
	out := make(chan Result)
	// window holds one slot per dispatched URL in input order; its capacity
	// bounds how far workers may run ahead of the consumer.
	window := make(chan chan Result, 2*f.cfg.Workers)
	jobs := make(chan job)

	go f.dispatch(ctx, urls, window, jobs)
	for range f.cfg.Workers {
		go f.work(ctx, jobs)
	}
	go func() {
		defer close(out)
		for slot := range window {
			out <- <-slot
		}
	}()
	return out
}

func (f *Fetcher) dispatch(ctx context.Context, urls []string, window chan<- chan Result, jobs chan<- job) {
	defer close(window)
	defer close(jobs)
	for i, u := range urls {
		if ctx.Err() != nil {
			return
		}
		slot := make(chan Result, 1)
		select {
		case window <- slot:
		case <-ctx.Done():
			return
		}
		select {
		case jobs <- job{index: i, url: u, slot: slot}:
		case <-ctx.Done():
			slot <- Result{Index: i, URL: u}
			return
		}
	}
}

func (f *Fetcher) work(ctx context.Context, jobs <-chan job) {
	for j := range jobs {
		metrics.IncActiveWorkers("fetch")
		j.slot <- Result{Index: j.index, URL: j.url, Page: f.fetchSafe(ctx, j.url)}
		metrics.DecActiveWorkers("fetch")
	}
}

func (f *Fetcher) fetchSafe(ctx context.Context, url string) (page *Page) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("Transport panicked; treating URL as failed",
				zap.String("url", url), zap.Any("panic", r))
			page = nil
		}
	}()
	return f.fetch(ctx, url)
}

// fetch runs the retry loop for one URL. The escalating sleep is local to
// this call, so URLs never influence each other's backoff.
func (f *Fetcher) fetch(ctx context.Context, url string) *Page {
	sleep := f.cfg.BaseSleep
	for attempt := 1; attempt <= f.cfg.MaxTries; attempt++ {
		if err := f.clock.Sleep(ctx, f.jitter(2*sleep)); err != nil {
			return nil
		}
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, url); err != nil {
				return nil
			}
		}

		resp, err := f.transport.Get(ctx, url)
		switch {
		case err == nil && resp.Status == f.cfg.SuccessStatus:
			metrics.ObserveFetchAttempt(url, metrics.OutcomeSuccess, len(resp.Body))
			return &Page{
				URL:       url,
				Status:    resp.Status,
				HTML:      string(resp.Body),
				FetchedAt: f.clock.Now(),
			}
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			metrics.ObserveFetchAttempt(url, metrics.OutcomeError, 0)
			f.logger.Debug("Fetch attempt failed",
				zap.String("url", url), zap.Int("attempt", attempt), zap.Error(err))
		default:
			metrics.ObserveFetchAttempt(url, metrics.OutcomeStatus, 0)
			f.logger.Debug("Fetch attempt returned unexpected status",
				zap.String("url", url), zap.Int("attempt", attempt), zap.Int("status", resp.Status))
		}
		sleep = time.Duration(float64(sleep) * f.cfg.Multiplier)
	}
	metrics.ObserveFetchFailure(url)
	return nil
}
