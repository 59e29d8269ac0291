package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// HTTPTransport carries bridge messages to the host context over HTTP.
type HTTPTransport struct {
	// URL is the host's bridge endpoint.
	URL    string
	Client *http.Client
}

// RoundTrip posts the message and decodes the reply.
func (t *HTTPTransport) RoundTrip(ctx context.Context, msg Message) (Reply, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return Reply{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(body))
	if err != nil {
		return Reply{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Reply{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Reply{}, fmt.Errorf("bridge endpoint returned %d", resp.StatusCode)
	}

	var reply Reply
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&reply); err != nil {
		return Reply{}, fmt.Errorf("decode bridge reply: %w", err)
	}
	return reply, nil
}

// Handler serves the host side of the bridge: it answers auth-token and
// API-base requests from the caching layer. tokenFn is consulted per
// request so the host can rotate credentials.
func Handler(tokenFn func() string, apiBase string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg Message
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&msg); err != nil {
			http.Error(w, "bad bridge message", http.StatusBadRequest)
			return
		}

		reply := Reply{ID: msg.ID}
		switch msg.Type {
		case TypeAuthToken:
			if tokenFn != nil {
				reply.Token = tokenFn()
			}
		case TypeAPIBase:
			reply.APIBase = apiBase
		default:
			http.Error(w, "unknown bridge message type", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(reply); err != nil {
			// Client likely gave up on its bounded wait.
			return
		}
	})
}
