package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"vidgate/internal/storage"
	"vidgate/netinfo"
	"vidgate/store"
	"vidgate/upstream"
)

func searchBody(count int) string {
	items := make([]string, count)
	for i := range items {
		items[i] = fmt.Sprintf(`{"id": %d, "title": "video %d", "keywords": "a,b"}`, i+1, i+1)
	}
	return fmt.Sprintf(`{"page": 1, "total_count": %d, "videos": [%s]}`, count, strings.Join(items, ","))
}

func testCatalog(t *testing.T, handler http.Handler) (*Catalog, *int64) {
	t.Helper()
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	db, err := storage.Open(filepath.Join(t.TempDir(), "vidgate.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	st, err := store.Open(context.Background(), db, store.Options{Log: zerolog.Nop()})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	client := upstream.New(upstream.WithBaseURL(srv.URL))
	return New(client, st, netinfo.NewMonitor(), zerolog.Nop()), &calls
}

func TestSearchCachesWithinTTL(t *testing.T) {
	c, calls := testCatalog(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, searchBody(3))
	}))
	ctx := context.Background()

	first, err := c.Search(ctx, upstream.SearchParams{})
	if err != nil {
		t.Fatalf("first search: %v", err)
	}
	if len(first.Videos) != 3 {
		t.Fatalf("first search returned %d videos, want 3", len(first.Videos))
	}

	second, err := c.Search(ctx, upstream.SearchParams{})
	if err != nil {
		t.Fatalf("second search: %v", err)
	}
	if len(second.Videos) != 3 {
		t.Fatalf("second search returned %d videos, want 3", len(second.Videos))
	}
	if got := atomic.LoadInt64(calls); got != 1 {
		t.Fatalf("upstream called %d times, want 1", got)
	}
}

func TestSearchVariantsAreDistinct(t *testing.T) {
	c, calls := testCatalog(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, searchBody(1))
	}))
	ctx := context.Background()

	if _, err := c.Search(ctx, upstream.SearchParams{Query: "alpha"}); err != nil {
		t.Fatalf("search alpha: %v", err)
	}
	if _, err := c.Search(ctx, upstream.SearchParams{Query: "alpha", Page: 2}); err != nil {
		t.Fatalf("search alpha page 2: %v", err)
	}
	if got := atomic.LoadInt64(calls); got != 2 {
		t.Fatalf("upstream called %d times, want 2", got)
	}
}

func TestSearchFallsBackToStoreWhenUpstreamFails(t *testing.T) {
	fail := int64(0)
	c, _ := testCatalog(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt64(&fail) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, searchBody(2))
	}))
	ctx := context.Background()

	if _, err := c.Search(ctx, upstream.SearchParams{Query: "durable"}); err != nil {
		t.Fatalf("seed search: %v", err)
	}

	// Empty the in-memory layer so the next lookup must go past it.
	c.queries.Delete(upstream.SearchParams{Query: "durable", PerPage: 30, ThumbSize: "big"}.CacheKey())
	atomic.StoreInt64(&fail, 1)

	page, err := c.Search(ctx, upstream.SearchParams{Query: "durable"})
	if err != nil {
		t.Fatalf("fallback search: %v", err)
	}
	if len(page.Videos) != 2 {
		t.Fatalf("fallback returned %d videos, want 2", len(page.Videos))
	}
}

func TestListLoadsOnceUntilExpiry(t *testing.T) {
	c, calls := testCatalog(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("order"); got != "most-popular" {
			t.Errorf("order = %q, want most-popular", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, searchBody(4))
	}))
	ctx := context.Background()

	videos, err := c.List(ctx, store.ListPopular)
	if err != nil {
		t.Fatalf("first list load: %v", err)
	}
	if len(videos) != 4 {
		t.Fatalf("list has %d videos, want 4", len(videos))
	}

	if _, err := c.List(ctx, store.ListPopular); err != nil {
		t.Fatalf("second list load: %v", err)
	}
	if got := atomic.LoadInt64(calls); got != 1 {
		t.Fatalf("upstream called %d times, want 1", got)
	}

	if _, err := c.List(ctx, store.ListKind("bogus")); err == nil {
		t.Fatal("unknown list kind accepted")
	}
}

func TestVideoPrefersStoredDetail(t *testing.T) {
	c, calls := testCatalog(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id": 77, "title": "stored once"}`)
	}))
	ctx := context.Background()

	video, found, err := c.Video(ctx, "77")
	if err != nil || !found {
		t.Fatalf("Video = %v, %v, %v", video, found, err)
	}
	if video.Title != "stored once" {
		t.Fatalf("Title = %q", video.Title)
	}

	if _, found, err = c.Video(ctx, "77"); err != nil || !found {
		t.Fatalf("second Video = %v, %v", found, err)
	}
	if got := atomic.LoadInt64(calls); got != 1 {
		t.Fatalf("upstream called %d times, want 1", got)
	}
}

func TestVideoRemovedIsNotAnError(t *testing.T) {
	c, _ := testCatalog(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[]`)
	}))

	_, found, err := c.Video(context.Background(), "gone")
	if err != nil {
		t.Fatalf("removed lookup errored: %v", err)
	}
	if found {
		t.Fatal("removed video reported as found")
	}
}
