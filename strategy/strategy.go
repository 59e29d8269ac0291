// Package strategy implements the three request-handling algorithms of
// the caching layer: cache-first, network-first and
// stale-while-revalidate. Every network call is bounded by a timeout;
// only HTTP 200 responses are ever written to a partition.
package strategy

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vidgate/internal/metrics"
	"vidgate/partition"
)

// DefaultTimeout bounds every network fetch made by the strategies.
const DefaultTimeout = 4 * time.Second

// ErrOfflineUnavailable is returned when a failed navigation cannot be
// answered with the offline fallback document either.
var ErrOfflineUnavailable = errors.New("offline fallback document unavailable")

// Options configures an Engine.
type Options struct {
	Client  *http.Client
	Timeout time.Duration
	// Offline returns the offline fallback document, if installed.
	Offline func() (*partition.Entry, bool)
	Log     zerolog.Logger
	Metrics *metrics.Metrics
}

// Engine executes fetch strategies against cache partitions.
type Engine struct {
	client  *http.Client
	timeout time.Duration
	offline func() (*partition.Entry, bool)
	log     zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	revalidations sync.WaitGroup
}

// New creates an Engine. Zero-value options fall back to defaults.
func New(opts Options) *Engine {
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Engine{
		client:  client,
		timeout: timeout,
		offline: opts.Offline,
		log:     opts.Log,
		metrics: opts.Metrics,
		now:     time.Now,
	}
}

// FetchEntry performs one bounded-timeout GET and captures the response
// as a partition entry without storing it. Install uses this for the
// bootstrap asset batch.
func (e *Engine) FetchEntry(ctx context.Context, rawURL, key string) (*partition.Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return e.fetch(ctx, req, key)
}

// CacheFirst serves any cached entry immediately without touching the
// network. On a miss it fetches with a bounded timeout, stores a 200
// response, and returns the live result. Failed navigations resolve to
// the offline document.
func (e *Engine) CacheFirst(ctx context.Context, req *http.Request, part *partition.Partition, key string) (*partition.Entry, error) {
	if cached, ok := part.Match(key); ok {
		e.metrics.Hit(part.Name())
		return cached, nil
	}
	e.metrics.Miss(part.Name())

	entry, err := e.fetchAndStore(ctx, req, part, key)
	if err == nil {
		return entry, nil
	}
	if isNavigation(req) {
		e.metrics.Fallback(part.Name())
		return e.offlineFallback(err)
	}
	return nil, err
}

// NetworkFirst tries the network first, storing a 200 response. On any
// network failure it falls back to the cached entry, then the offline
// document for navigations, then propagates the failure.
func (e *Engine) NetworkFirst(ctx context.Context, req *http.Request, part *partition.Partition, key string) (*partition.Entry, error) {
	entry, err := e.fetchAndStore(ctx, req, part, key)
	if err == nil {
		return entry, nil
	}

	if cached, ok := part.Match(key); ok {
		e.metrics.Fallback(part.Name())
		return cached, nil
	}
	if isNavigation(req) {
		e.metrics.Fallback(part.Name())
		return e.offlineFallback(err)
	}
	return nil, err
}

// StaleWhileRevalidate serves a fresh cached entry immediately while
// updating the partition in the background. A stale or absent entry
// waits for the network; if that fails the stale entry, when present,
// is returned instead. The background update always runs to completion
// regardless of what was returned to the caller.
func (e *Engine) StaleWhileRevalidate(ctx context.Context, req *http.Request, part *partition.Partition, key string, maxAge time.Duration) (*partition.Entry, error) {
	cached, ok := part.Match(key)
	if ok && !cached.IsStale(e.now(), maxAge) {
		e.metrics.Hit(part.Name())
		e.revalidateInBackground(req, part, key)
		return cached, nil
	}
	e.metrics.Miss(part.Name())

	entry, err := e.fetchAndStore(ctx, req, part, key)
	if err == nil {
		return entry, nil
	}
	if ok {
		e.metrics.Fallback(part.Name())
		return cached, nil
	}
	return nil, err
}

// WaitRevalidations blocks until every outstanding background update
// has finished. Shutdown and tests use it.
func (e *Engine) WaitRevalidations() {
	e.revalidations.Wait()
}

func (e *Engine) revalidateInBackground(req *http.Request, part *partition.Partition, key string) {
	// Detach from the caller's context: the update must outlive the
	// response that was already served.
	bg := req.Clone(context.WithoutCancel(req.Context()))
	e.revalidations.Add(1)
	go func() {
		defer e.revalidations.Done()
		if _, err := e.fetchAndStore(bg.Context(), bg, part, key); err != nil {
			e.log.Debug().Err(err).Str("key", key).Msg("background revalidation failed")
		}
	}()
}

func (e *Engine) fetchAndStore(ctx context.Context, req *http.Request, part *partition.Partition, key string) (*partition.Entry, error) {
	entry, err := e.fetch(ctx, req, key)
	if err != nil {
		return nil, err
	}
	if entry.Status == http.StatusOK {
		if err := part.Put(key, entry); err != nil {
			e.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
	}
	return entry, nil
}

func (e *Engine) fetch(ctx context.Context, req *http.Request, key string) (*partition.Entry, error) {
	fctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.Do(req.Clone(fctx))
	if err != nil {
		return nil, err
	}
	return partition.NewEntry(key, resp)
}

func (e *Engine) offlineFallback(cause error) (*partition.Entry, error) {
	if e.offline != nil {
		if entry, ok := e.offline(); ok {
			return entry, nil
		}
	}
	return nil, errors.Join(ErrOfflineUnavailable, cause)
}

func isNavigation(req *http.Request) bool {
	return req.Header.Get("Sec-Fetch-Mode") == "navigate"
}
