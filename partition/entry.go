// Package partition implements named, versioned response buckets with
// the install/activate lifecycle of the caching layer.
package partition

import (
	"bytes"
	"io"
	"net/http"
	"time"
)

// Entry is one cached response: status, headers and body bytes.
// Staleness is not stored; it is computed at read time from the
// response Date header against a strategy-supplied max-age.
type Entry struct {
	Key    string      `json:"key"`
	Status int         `json:"status"`
	Header http.Header `json:"header"`
	Body   []byte      `json:"body"`
}

// NewEntry reads resp's body and captures it as an Entry. The response
// body is consumed and closed.
func NewEntry(key string, resp *http.Response) (*Entry, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Entry{
		Key:    key,
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   body,
	}, nil
}

// Age reports how long ago the entry's response was produced, based on
// its Date header. ok is false when the header is missing or unparseable.
func (e *Entry) Age(now time.Time) (time.Duration, bool) {
	date := e.Header.Get("Date")
	if date == "" {
		return 0, false
	}
	t, err := http.ParseTime(date)
	if err != nil {
		return 0, false
	}
	return now.Sub(t), true
}

// IsStale reports whether the entry is older than maxAge. An entry
// without a parseable Date header is always stale.
func (e *Entry) IsStale(now time.Time, maxAge time.Duration) bool {
	if e == nil {
		return true
	}
	age, ok := e.Age(now)
	if !ok {
		return true
	}
	return age > maxAge
}

// WriteTo replays the entry onto an HTTP response writer.
func (e *Entry) WriteTo(w http.ResponseWriter) error {
	for k, vals := range e.Header {
		for _, v := range vals {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(e.Status)
	_, err := io.Copy(w, bytes.NewReader(e.Body))
	return err
}
