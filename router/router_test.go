package router

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"vidgate/internal/config"
	"vidgate/partition"
	"vidgate/strategy"
)

func request(method, target string, hdr map[string]string) *http.Request {
	r := httptest.NewRequest(method, target, nil)
	for k, v := range hdr {
		r.Header.Set(k, v)
	}
	return r
}

func TestClassify(t *testing.T) {
	cls, err := NewClassifier(config.DefaultRules())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		req  *http.Request
		want Class
	}{
		{"navigation", request("GET", "/watch/abc", map[string]string{"Sec-Fetch-Mode": "navigate"}), ClassNavigation},
		{"navigation beats api", request("GET", "/api/movies", map[string]string{"Sec-Fetch-Mode": "navigate"}), ClassNavigation},
		{"api list categories", request("GET", "/api/categories", nil), ClassAPIList},
		{"api list stars", request("GET", "/api/stars?page=2", nil), ClassAPIList},
		{"api list movies", request("GET", "/api/movies?page=1", nil), ClassAPIList},
		{"api item excluded from list", request("GET", "/api/movies/abc123", nil), ClassAPIItem},
		{"json accept header is api", request("GET", "/search", map[string]string{"Accept": "application/json"}), ClassAPIItem},
		{"image by extension", request("GET", "/thumb.jpg?size=big", nil), ClassImage},
		{"image by destination", request("GET", "/media/42", map[string]string{"Sec-Fetch-Dest": "image"}), ClassImage},
		{"font by extension", request("GET", "/fonts/inter.woff2", nil), ClassFont},
		{"script same origin", request("GET", "/assets/app.js", nil), ClassAsset},
		{"stylesheet by destination", request("GET", "/assets/theme", map[string]string{"Sec-Fetch-Dest": "style"}), ClassAsset},
		{"plain document fetch unhandled", request("GET", "/robots.txt", nil), ClassPassthrough},
		{"post passthrough", request("POST", "/api/movies", nil), ClassPassthrough},
		{"delete passthrough", request("DELETE", "/api/user/watch-later", nil), ClassPassthrough},
	}

	for _, tt := range tests {
		if got := cls.Classify(tt.req); got != tt.want {
			t.Errorf("%s: got %s, want %s", tt.name, got, tt.want)
		}
	}
}

func newRouter(t *testing.T, origin string) (*Router, *partition.Manager) {
	t.Helper()
	parts := partition.NewManager(t.TempDir(), "v1", zerolog.Nop())
	engine := strategy.New(strategy.Options{Log: zerolog.Nop()})
	rt, err := New(Options{
		Origin:     origin,
		Rules:      config.DefaultRules(),
		Engine:     engine,
		Partitions: parts,
		Log:        zerolog.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return rt, parts
}

func TestRouter_ImageCacheBustingCollapsesToOneFetch(t *testing.T) {
	var fetches atomic.Int32
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("jpeg bytes"))
	}))
	defer origin.Close()

	rt, _ := newRouter(t, origin.URL)

	for _, target := range []string{"/thumb.jpg?_t=123&size=big", "/thumb.jpg?_t=456&size=big"} {
		rec := httptest.NewRecorder()
		rt.ServeHTTP(rec, request("GET", target, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status %d", target, rec.Code)
		}
		if rec.Body.String() != "jpeg bytes" {
			t.Fatalf("%s: body %q", target, rec.Body.String())
		}
	}

	if fetches.Load() != 1 {
		t.Fatalf("cache-busting variants must share one cache entry, got %d fetches", fetches.Load())
	}
}

func TestRouter_ImageRequestPrefersModernFormats(t *testing.T) {
	var accept atomic.Value
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept.Store(r.Header.Get("Accept"))
		w.Write([]byte("img"))
	}))
	defer origin.Close()

	rt, _ := newRouter(t, origin.URL)
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, request("GET", "/poster.png", nil))

	got, _ := accept.Load().(string)
	if got != imageAccept {
		t.Fatalf("expected injected Accept header, got %q", got)
	}
}

func TestRouter_NonGetMutationsBypassCache(t *testing.T) {
	var method atomic.Value
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method.Store(r.Method)
		w.WriteHeader(http.StatusCreated)
	}))
	defer origin.Close()

	rt, parts := newRouter(t, origin.URL)
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, request("POST", "/api/user/watch-later", nil))

	if rec.Code != http.StatusCreated {
		t.Fatalf("mutation must reach the origin, status %d", rec.Code)
	}
	if got, _ := method.Load().(string); got != http.MethodPost {
		t.Fatalf("expected POST proxied through, got %q", got)
	}
	apiPart, err := parts.Get(partition.API)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := apiPart.Match("/api/user/watch-later"); ok {
		t.Fatal("mutations must never be cached")
	}
}

func TestRouter_APIItemStaysFresh(t *testing.T) {
	var fetches atomic.Int32
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Write([]byte(`{"views":123}`))
	}))
	defer origin.Close()

	rt, _ := newRouter(t, origin.URL)
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		rt.ServeHTTP(rec, request("GET", "/api/movies/abc123", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status %d", rec.Code)
		}
	}

	if fetches.Load() != 2 {
		t.Fatalf("item endpoints are network-first, expected 2 fetches, got %d", fetches.Load())
	}
}

func TestRouter_APIListServedFromCacheWhileFresh(t *testing.T) {
	var fetches atomic.Int32
	blocked := make(chan struct{})
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fetches.Add(1) > 1 {
			// Background revalidations park here; the client
			// response must not depend on them.
			<-blocked
		}
		w.Write([]byte(`{"videos":[]}`))
	}))
	defer origin.Close()
	defer close(blocked)

	rt, _ := newRouter(t, origin.URL)

	// First request populates the api partition. The httptest server
	// stamps a Date header, so the entry is fresh.
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, request("GET", "/api/movies?page=1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}

	// Second request is answered from cache even though the origin
	// now hangs.
	done := make(chan int, 1)
	go func() {
		rec := httptest.NewRecorder()
		rt.ServeHTTP(rec, request("GET", "/api/movies?page=1", nil))
		done <- rec.Code
	}()

	select {
	case code := <-done:
		if code != http.StatusOK {
			t.Fatalf("cached list response status %d", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fresh list entry must be served without waiting on the network")
	}
}
