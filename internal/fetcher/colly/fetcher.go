// Package collyfetcher implements the fetch transport on top of gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/newsroom-builder/internal/fetcher"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// MaxBodySize caps the bytes read per page; 0 keeps colly's default and
	// a negative value disables the cap.
	MaxBodySize int
}

// Transport implements fetcher.Transport using the Colly collector.
type Transport struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Transport sharing one pooled http.Transport across attempts.
func New(cfg Config) *Transport {
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	return &Transport{cfg: cfg, baseCollector: c}
}

// Get performs one attempt. Every HTTP status is reported as a response;
// only transport failures return an error.
func (t *Transport) Get(ctx context.Context, url string) (fetcher.Response, error) {
	var (
		result   fetcher.Response
		fetchErr error
	)
	collector := t.buildCollector()
	// Requests carry ctx, so cancelling a scrape aborts in-flight connections
	// instead of waiting out the request timeout.
	collector.Context = ctx
	configureHooks(collector, &result, &fetchErr)
	if err := runCollector(ctx, collector, url, &fetchErr); err != nil {
		return fetcher.Response{}, err
	}
	return result, nil
}

func (t *Transport) buildCollector() *colly.Collector {
	collector := t.baseCollector.Clone()
	if t.cfg.UserAgent != "" {
		collector.UserAgent = t.cfg.UserAgent
	}
	// Clones share the visited-URL store, and retries hit the same URL.
	collector.AllowURLRevisit = true
	collector.IgnoreRobotsTxt = true
	collector.ParseHTTPErrorResponse = true
	collector.DetectCharset = true
	switch {
	case t.cfg.MaxBodySize > 0:
		collector.MaxBodySize = t.cfg.MaxBodySize
	case t.cfg.MaxBodySize < 0:
		collector.MaxBodySize = 0
	}
	timeout := t.cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	return collector
}

func configureHooks(hooks collectorHooks, result *fetcher.Response, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		*result = fetcher.Response{
			Status: r.StatusCode,
			Body:   append([]byte(nil), r.Body...),
		}
	})
	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
	}
}
