package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSearchParams_CacheKey(t *testing.T) {
	tests := []struct {
		name   string
		params SearchParams
		want   string
	}{
		{"defaults fill in", SearchParams{Query: "all", Page: 1, Order: "latest"}, "all|1|30|big|latest|0|1"},
		{"empty query is all", SearchParams{}, "all|1|30|big|latest|0|1"},
		{"explicit values", SearchParams{Query: "sunset", Page: 3, PerPage: 60, ThumbSize: "medium", Order: "top-weekly"}, "sunset|3|60|medium|top-weekly|0|1"},
		{"explicit lq zero", SearchParams{Query: "all"}.WithLowQuality(0), "all|1|30|big|latest|0|0"},
	}
	for _, tt := range tests {
		if got := tt.params.CacheKey(); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}
}

func searchPayload(t *testing.T, n, totalCount int) []byte {
	t.Helper()
	videos := make([]map[string]any, n)
	for i := range videos {
		videos[i] = map[string]any{
			"id":         "vid00000" + string(rune('a'+i%26)),
			"title":      "clip",
			"keywords":   "sunset, beach, drone, ocean, travel, extra",
			"views":      100,
			"rate":       "4.53",
			"length_sec": 125,
			"length_min": "2:05",
			"default_thumb": map[string]any{
				"src": "https://cdn.example.com/t.jpg", "width": 640, "height": 360, "size": "big",
			},
		}
	}
	body, err := json.Marshal(map[string]any{
		"count":       n,
		"page":        1,
		"per_page":    30,
		"total_count": totalCount,
		"videos":      videos,
	})
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func TestSearch_NormalizesAndComputesPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("format"); got != "json" {
			t.Errorf("format param %q", got)
		}
		if got := r.URL.Query().Get("query"); got != "all" {
			t.Errorf("query param %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(searchPayload(t, 30, 900))
	}))
	defer srv.Close()

	c := New(WithBaseURL(srv.URL))
	page, err := c.Search(context.Background(), SearchParams{Query: "all", Page: 1, Order: "latest"})
	if err != nil {
		t.Fatal(err)
	}

	if len(page.Videos) != 30 {
		t.Fatalf("expected 30 videos, got %d", len(page.Videos))
	}
	if page.TotalPages != 30 {
		t.Fatalf("900/30 must give 30 pages, got %d", page.TotalPages)
	}
	if page.TotalCount != 900 {
		t.Fatalf("total count %d", page.TotalCount)
	}

	v := page.Videos[0]
	if v.Rating != 4.53 {
		t.Errorf("rate string must parse to float, got %v", v.Rating)
	}
	if len(v.Categories) != 5 {
		t.Errorf("categories capped at 5, got %v", v.Categories)
	}
	if v.Thumbnail != "https://cdn.example.com/t.jpg" {
		t.Errorf("thumbnail %q", v.Thumbnail)
	}
	if v.DurationText != "2:05" || v.Duration != 125 {
		t.Errorf("duration %d %q", v.Duration, v.DurationText)
	}
}

func TestSearch_AcceptsNumericIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"page":1,"total_count":2,"videos":[{"id":12345,"title":"bare number"},{"id":"v-67890","title":"string"}]}`))
	}))
	defer srv.Close()

	c := New(WithBaseURL(srv.URL))
	page, err := c.Search(context.Background(), SearchParams{Query: "all"})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Videos) != 2 {
		t.Fatalf("expected 2 videos, got %d", len(page.Videos))
	}
	if page.Videos[0].ID != "12345" {
		t.Errorf("numeric id must normalize to a string, got %q", page.Videos[0].ID)
	}
	if page.Videos[1].ID != "v-67890" {
		t.Errorf("string id %q", page.Videos[1].ID)
	}
}

func TestVideoByID_NumericID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":54321,"title":"numeric","rate":"2.8"}`))
	}))
	defer srv.Close()

	c := New(WithBaseURL(srv.URL))
	v, found, err := c.VideoByID(context.Background(), "54321", "")
	if err != nil {
		t.Fatal(err)
	}
	if !found || v.ID != "54321" {
		t.Fatalf("found=%v id=%q", found, v.ID)
	}
}

func TestTotalPages(t *testing.T) {
	tests := []struct {
		reported, total, perPage, want int
	}{
		{0, 900, 30, 30},
		{25, 900, 30, 25},
		{999999, 900, 30, 1000},
		{0, 0, 30, 1},
		{0, 31, 30, 2},
	}
	for _, tt := range tests {
		if got := totalPages(tt.reported, tt.total, tt.perPage); got != tt.want {
			t.Errorf("totalPages(%d,%d,%d) = %d, want %d", tt.reported, tt.total, tt.perPage, got, tt.want)
		}
	}
}

func TestVideoByID_Shapes(t *testing.T) {
	object := `{"id":"abcdefghijk","title":"one","rate":"3.2"}`
	wrapped := `[{"id":"abcdefghijk","title":"one","rate":"3.2"}]`
	removed := `[]`
	xmlish := `{"video":{"id":"abcdefghijk","title":"one"}}`

	tests := []struct {
		name  string
		body  string
		found bool
	}{
		{"bare object", object, true},
		{"array wrapped", wrapped, true},
		{"empty array means removed", removed, false},
		{"xml-shaped wrapper", xmlish, true},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(tt.body))
		}))

		c := New(WithBaseURL(srv.URL))
		v, found, err := c.VideoByID(context.Background(), "abcdefghijk", "")
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if found != tt.found {
			t.Errorf("%s: found=%v want %v", tt.name, found, tt.found)
		}
		if found && v.ID != "abcdefghijk" {
			t.Errorf("%s: id %q", tt.name, v.ID)
		}
		srv.Close()
	}
}

func TestVideoByID_HTMLErrorPageIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body>rate limited</body></html>"))
	}))
	defer srv.Close()

	c := New(WithBaseURL(srv.URL))
	if _, _, err := c.VideoByID(context.Background(), "abcdefghijk", ""); err == nil {
		t.Fatal("HTML payload must surface as an error")
	}
}
