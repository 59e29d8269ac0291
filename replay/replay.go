// Package replay delivers queued watch-later mutations when a sync
// trigger fires. A pass walks the queue in FIFO order; one pass runs at
// a time and an overlapping trigger is dropped.
package replay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"vidgate/bridge"
	"vidgate/internal/metrics"
	"vidgate/queue"
)

// WatchLaterPath is the mutation endpoint, relative to the API base.
const WatchLaterPath = "/user/watch-later"

var (
	// ErrNoCredential aborts a pass with the queue untouched; the next
	// trigger retries.
	ErrNoCredential = errors.New("no auth credential for replay")
	// ErrPassInProgress reports a trigger that overlapped a running pass.
	ErrPassInProgress = errors.New("replay pass already in progress")
)

// Options configures a Replayer.
type Options struct {
	Queue  *queue.Queue
	Bridge *bridge.Client
	Client *http.Client
	// Origin resolves a relative API base from the bridge into an
	// absolute mutation URL.
	Origin  string
	Timeout time.Duration
	Log     zerolog.Logger
	Metrics *metrics.Metrics
}

// Replayer replays the mutation queue against the remote service.
type Replayer struct {
	queue   *queue.Queue
	bridge  *bridge.Client
	client  *http.Client
	origin  string
	timeout time.Duration
	log     zerolog.Logger
	metrics *metrics.Metrics
	running atomic.Bool
}

// New creates a Replayer.
func New(opts Options) *Replayer {
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	return &Replayer{
		queue:   opts.Queue,
		bridge:  opts.Bridge,
		client:  client,
		origin:  opts.Origin,
		timeout: timeout,
		log:     opts.Log,
		metrics: opts.Metrics,
	}
}

// Flush runs one replay pass. Without a credential the pass aborts and
// leaves the queue untouched. Each item is attempted in FIFO order; an
// item's failure never stops the pass.
func (r *Replayer) Flush(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrPassInProgress
	}
	defer r.running.Store(false)

	items, err := r.queue.Items(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	token, ok := r.bridge.AuthToken(ctx)
	if !ok {
		r.log.Debug().Int("pending", len(items)).Msg("replay skipped, no auth credential")
		return ErrNoCredential
	}
	endpoint, err := r.endpoint(ctx)
	if err != nil {
		return err
	}

	for _, item := range items {
		r.deliver(ctx, endpoint, token, item)
	}
	return nil
}

// deliver attempts one mutation and applies the outcome policy:
// delivered (2xx) and already-in-desired-state (400) dequeue, a stale
// credential (401) dequeues without retry, everything else stays queued
// for the next trigger.
func (r *Replayer) deliver(ctx context.Context, endpoint, token string, item queue.Item) {
	method := http.MethodPost
	if item.Type == queue.ActionRemove {
		method = http.MethodDelete
	}

	rctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(rctx, method, endpoint, bytes.NewReader(item.Data))
	if err != nil {
		r.log.Error().Err(err).Int64("id", item.ID).Msg("replay request build failed")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := r.client.Do(req)
	if err != nil {
		r.metrics.Replay("retained")
		r.log.Warn().Err(err).Int64("id", item.ID).Msg("replay delivery failed, keeping item")
		return
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		r.dequeue(ctx, item, "delivered")
	case resp.StatusCode == http.StatusBadRequest:
		// Already in the desired state on the remote side.
		r.dequeue(ctx, item, "delivered")
	case resp.StatusCode == http.StatusUnauthorized:
		// Stale credential; re-auth is a user action, so the item is
		// not retryable.
		r.dequeue(ctx, item, "dropped")
	default:
		r.metrics.Replay("retained")
		r.log.Warn().Int64("id", item.ID).Int("status", resp.StatusCode).
			Msg("replay rejected, keeping item")
	}
}

func (r *Replayer) dequeue(ctx context.Context, item queue.Item, outcome string) {
	if err := r.queue.Remove(ctx, item.ID); err != nil {
		r.log.Error().Err(err).Int64("id", item.ID).Msg("dequeue failed")
		return
	}
	r.metrics.Replay(outcome)
	r.log.Info().Int64("id", item.ID).Str("type", string(item.Type)).Str("outcome", outcome).
		Msg("mutation settled")
}

func (r *Replayer) endpoint(ctx context.Context) (string, error) {
	apiBase := r.bridge.APIBase(ctx)
	base, err := url.Parse(apiBase)
	if err != nil {
		return "", fmt.Errorf("bad api base %q: %w", apiBase, err)
	}
	if base.IsAbs() {
		return base.JoinPath(WatchLaterPath).String(), nil
	}
	origin, err := url.Parse(r.origin)
	if err != nil {
		return "", fmt.Errorf("bad origin %q: %w", r.origin, err)
	}
	return origin.JoinPath(base.Path, WatchLaterPath).String(), nil
}

// Run flushes on every tick and on every trigger send until ctx ends.
func (r *Replayer) Run(ctx context.Context, interval time.Duration, trigger <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-trigger:
		}
		if err := r.Flush(ctx); err != nil &&
			!errors.Is(err, ErrNoCredential) && !errors.Is(err, ErrPassInProgress) {
			r.log.Error().Err(err).Msg("replay pass failed")
		}
	}
}
