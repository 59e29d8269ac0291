// Package bridge is the request/reply channel between the caching layer
// and the active host (page) context. The caching layer cannot read the
// auth credential or the configured API base itself; it asks the host
// and falls back to documented defaults when no answer arrives in time.
package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Message types understood by the host context.
const (
	TypeAuthToken = "get-auth-token"
	TypeAPIBase   = "get-api-base"
)

// DefaultAPIBase is resolved when the host does not answer an API base
// request in time, or no host context exists at all.
const DefaultAPIBase = "/api"

// DefaultTimeout bounds one bridge round trip.
const DefaultTimeout = time.Second

// ErrNoPeer means no host context is connected. Lookups resolve to
// defaults immediately rather than waiting for a context that cannot
// exist yet.
var ErrNoPeer = errors.New("no active host context")

// Message is one typed request to the host context.
type Message struct {
	ID   uuid.UUID `json:"id"`
	Type string    `json:"type"`
}

// Reply is the host's answer to a Message.
type Reply struct {
	ID      uuid.UUID `json:"id"`
	Token   string    `json:"token,omitempty"`
	APIBase string    `json:"apiBase,omitempty"`
}

// Transport carries one round trip to the host context. The concrete
// carrier (HTTP, in-process channel) is an implementation detail.
type Transport interface {
	RoundTrip(ctx context.Context, msg Message) (Reply, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, msg Message) (Reply, error)

func (f TransportFunc) RoundTrip(ctx context.Context, msg Message) (Reply, error) {
	return f(ctx, msg)
}

// Client asks the host context for ambient data with a bounded wait.
type Client struct {
	transport Transport
	timeout   time.Duration
	log       zerolog.Logger
}

// NewClient creates a bridge client. A nil transport models the
// no-host-context case; every lookup resolves to its default
// immediately.
func NewClient(transport Transport, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{transport: transport, timeout: timeout, log: log}
}

// AuthToken returns the current auth credential. ok is false when the
// host did not answer in time, answered without a token, or no host
// context exists.
func (c *Client) AuthToken(ctx context.Context) (string, bool) {
	reply, err := c.roundTrip(ctx, TypeAuthToken)
	if err != nil {
		if !errors.Is(err, ErrNoPeer) {
			c.log.Debug().Err(err).Msg("auth token lookup failed, treating as absent")
		}
		return "", false
	}
	return reply.Token, reply.Token != ""
}

// APIBase returns the configured API base URL, or DefaultAPIBase when
// the host does not answer in time.
func (c *Client) APIBase(ctx context.Context) string {
	reply, err := c.roundTrip(ctx, TypeAPIBase)
	if err != nil || reply.APIBase == "" {
		return DefaultAPIBase
	}
	return reply.APIBase
}

func (c *Client) roundTrip(ctx context.Context, msgType string) (Reply, error) {
	if c.transport == nil {
		return Reply{}, ErrNoPeer
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg := Message{ID: uuid.New(), Type: msgType}
	reply, err := c.transport.RoundTrip(ctx, msg)
	if err != nil {
		return Reply{}, err
	}
	if reply.ID != msg.ID && reply.ID != uuid.Nil {
		return Reply{}, errors.New("bridge reply for a different request")
	}
	return reply, nil
}
