// Package store is the durable result store: named result lists plus
// keyed search and detail caches, kept in memory and written through to
// SQLite as one snapshot on every mutation.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vidgate/upstream"
)

// ListKind names one of the fixed result lists.
type ListKind string

const (
	ListPopular    ListKind = "popular"
	ListLatest     ListKind = "latest"
	ListTopWeekly  ListKind = "top-weekly"
	ListTopMonthly ListKind = "top-monthly"
	ListTopRated   ListKind = "top-rated"
)

// ListKinds enumerates every named list.
var ListKinds = []ListKind{ListPopular, ListLatest, ListTopWeekly, ListTopMonthly, ListTopRated}

const (
	snapshotKey = "result-store"

	// DefaultExpiry applies at two layers: a snapshot whose global
	// timestamp exceeds it is discarded entirely on open, and reads
	// skip individual entries older than it inside a fresh snapshot.
	DefaultExpiry = 24 * time.Hour

	// Quota pruning keeps the most recently written entries.
	maxSearchEntries = 50
	maxDetailEntries = 100
)

type cachedList struct {
	Videos   []upstream.Video `json:"videos"`
	LoadedAt time.Time        `json:"loaded_at"`
}

type cachedSearch struct {
	Page      upstream.Page `json:"page"`
	WrittenAt time.Time     `json:"written_at"`
}

type cachedDetail struct {
	Video     upstream.Video `json:"video"`
	WrittenAt time.Time      `json:"written_at"`
}

type snapshot struct {
	WrittenAt time.Time               `json:"written_at"`
	Lists     map[ListKind]cachedList `json:"lists"`
	Searches  map[string]cachedSearch `json:"searches"`
	Details   map[string]cachedDetail `json:"details"`
}

func emptySnapshot() snapshot {
	return snapshot{
		Lists:    make(map[ListKind]cachedList),
		Searches: make(map[string]cachedSearch),
		Details:  make(map[string]cachedDetail),
	}
}

// Options configures a Store.
type Options struct {
	// Expiry for the whole snapshot; DefaultExpiry when zero.
	Expiry time.Duration
	// MaxBytes bounds the serialized snapshot. Exceeding it behaves
	// like a storage quota failure: prune, then retry once. Zero
	// disables the bound.
	MaxBytes int
	Log      zerolog.Logger
}

// Store holds the snapshot in memory and writes it through on mutation.
// Construct with Open and release with Close; there is no implicit
// lazy initialization.
type Store struct {
	db       *sql.DB
	expiry   time.Duration
	maxBytes int
	log      zerolog.Logger
	now      func() time.Time

	mu   sync.Mutex
	snap snapshot
}

// Open loads the snapshot from the database, discarding it entirely
// when its global timestamp is older than the expiry.
func Open(ctx context.Context, db *sql.DB, opts Options) (*Store, error) {
	expiry := opts.Expiry
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	s := &Store{
		db:       db,
		expiry:   expiry,
		maxBytes: opts.MaxBytes,
		log:      opts.Log,
		now:      time.Now,
		snap:     emptySnapshot(),
	}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Close drops the in-memory state. The durable snapshot stays put.
func (s *Store) Close() {
	s.mu.Lock()
	s.snap = emptySnapshot()
	s.mu.Unlock()
}

func (s *Store) load(ctx context.Context) error {
	var body []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM snapshots WHERE key = ?`, snapshotKey).Scan(&body)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		s.log.Warn().Err(err).Msg("corrupt snapshot discarded")
		return s.clearRow(ctx)
	}
	if s.now().Sub(snap.WrittenAt) > s.expiry {
		s.log.Info().Time("written_at", snap.WrittenAt).Msg("expired snapshot discarded")
		return s.clearRow(ctx)
	}

	if snap.Lists == nil {
		snap.Lists = make(map[ListKind]cachedList)
	}
	if snap.Searches == nil {
		snap.Searches = make(map[string]cachedSearch)
	}
	if snap.Details == nil {
		snap.Details = make(map[string]cachedDetail)
	}
	s.snap = snap
	return nil
}

// List returns a named result list when present and unexpired.
func (s *Store) List(kind ListKind) ([]upstream.Video, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.snap.Lists[kind]
	if !ok || !s.valid(entry.LoadedAt) {
		return nil, false
	}
	return entry.Videos, true
}

// SetList stores a named result list and writes the snapshot through.
func (s *Store) SetList(ctx context.Context, kind ListKind, videos []upstream.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Lists[kind] = cachedList{Videos: videos, LoadedAt: s.now()}
	return s.persist(ctx)
}

// NeedsLoad reports whether a named list is absent or expired, letting
// callers decide whether to hit the network.
func (s *Store) NeedsLoad(kind ListKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.snap.Lists[kind]
	return !ok || !s.valid(entry.LoadedAt)
}

// Search returns a cached search result page by composite key.
func (s *Store) Search(key string) (*upstream.Page, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.snap.Searches[key]
	if !ok || !s.valid(entry.WrittenAt) {
		return nil, false
	}
	page := entry.Page
	return &page, true
}

// SetSearch stores a search result page under its composite key.
func (s *Store) SetSearch(ctx context.Context, key string, page upstream.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Searches[key] = cachedSearch{Page: page, WrittenAt: s.now()}
	return s.persist(ctx)
}

// Detail returns a cached per-item lookup.
func (s *Store) Detail(id string) (upstream.Video, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.snap.Details[id]
	if !ok || !s.valid(entry.WrittenAt) {
		return upstream.Video{}, false
	}
	return entry.Video, true
}

// SetDetail stores a per-item lookup result.
func (s *Store) SetDetail(ctx context.Context, id string, video upstream.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Details[id] = cachedDetail{Video: video, WrittenAt: s.now()}
	return s.persist(ctx)
}

// Clear deletes the whole snapshot, memory and disk.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = emptySnapshot()
	return s.clearRow(ctx)
}

func (s *Store) clearRow(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE key = ?`, snapshotKey); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}

func (s *Store) valid(ts time.Time) bool {
	return !ts.IsZero() && s.now().Sub(ts) <= s.expiry
}

// persist serializes the snapshot and writes it through. A write that
// exceeds the size bound behaves like a quota failure: prune the search
// and detail caches to their most recent entries and retry once. Quota
// failures never propagate past a log line.
func (s *Store) persist(ctx context.Context) error {
	s.snap.WrittenAt = s.now()
	body, err := json.Marshal(s.snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if s.maxBytes > 0 && len(body) > s.maxBytes {
		s.prune()
		body, err = json.Marshal(s.snap)
		if err != nil {
			return fmt.Errorf("encode pruned snapshot: %w", err)
		}
		if len(body) > s.maxBytes {
			s.log.Warn().Int("bytes", len(body)).Msg("snapshot still over quota after pruning, write skipped")
			return nil
		}
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO snapshots (key, body, written_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET body = excluded.body, written_at = excluded.written_at`,
		snapshotKey, body, s.snap.WrittenAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// prune keeps the most recently written search and detail entries.
func (s *Store) prune() {
	s.snap.Searches = keepNewest(s.snap.Searches, maxSearchEntries,
		func(e cachedSearch) time.Time { return e.WrittenAt })
	s.snap.Details = keepNewest(s.snap.Details, maxDetailEntries,
		func(e cachedDetail) time.Time { return e.WrittenAt })
	s.log.Info().Int("searches", len(s.snap.Searches)).Int("details", len(s.snap.Details)).
		Msg("result store pruned after quota failure")
}

func keepNewest[E any](entries map[string]E, limit int, writtenAt func(E) time.Time) map[string]E {
	if len(entries) <= limit {
		return entries
	}
	type pair struct {
		key string
		ts  time.Time
	}
	pairs := make([]pair, 0, len(entries))
	for k, e := range entries {
		pairs = append(pairs, pair{k, writtenAt(e)})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].ts.After(pairs[j].ts) })

	kept := make(map[string]E, limit)
	for _, p := range pairs[:limit] {
		kept[p.key] = entries[p.key]
	}
	return kept
}
