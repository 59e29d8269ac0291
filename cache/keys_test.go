package cache

import (
	"net/url"
	"testing"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func TestKeyFor_ImageStripsCacheBusting(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		same bool
	}{
		{"timestamp param ignored", "/thumb.jpg?_t=123&size=big", "/thumb.jpg?_t=456&size=big", true},
		{"cb param ignored", "/thumb.jpg?_cb=1&size=big", "/thumb.jpg?size=big", true},
		{"version param ignored", "/thumb.jpg?v=9", "/thumb.jpg", true},
		{"size variant significant", "/thumb.jpg?size=big", "/thumb.jpg?size=small", false},
		{"format variant significant", "/thumb.jpg?fmt=webp", "/thumb.jpg?fmt=avif", false},
	}

	for _, tt := range tests {
		ka := KeyFor(mustParse(t, tt.a), ResourceImage)
		kb := KeyFor(mustParse(t, tt.b), ResourceImage)
		if (ka == kb) != tt.same {
			t.Errorf("%s: KeyFor(%q)=%q KeyFor(%q)=%q, same=%v want %v",
				tt.name, tt.a, ka, tt.b, kb, ka == kb, tt.same)
		}
	}
}

func TestKeyFor_ImageBustedKeyShape(t *testing.T) {
	key := KeyFor(mustParse(t, "/thumb.jpg?_t=123&size=big"), ResourceImage)
	if key != "/thumb.jpg?size=big" {
		t.Errorf("expected /thumb.jpg?size=big, got %q", key)
	}

	key = KeyFor(mustParse(t, "/thumb.jpg?_t=9"), ResourceImage)
	if key != "/thumb.jpg" {
		t.Errorf("expected bare path once all params are busted, got %q", key)
	}
}

func TestKeyFor_APIKeepsQuery(t *testing.T) {
	a := KeyFor(mustParse(t, "/api/movies?page=1&order=latest"), ResourceAPI)
	b := KeyFor(mustParse(t, "/api/movies?page=2&order=latest"), ResourceAPI)
	if a == b {
		t.Errorf("different API queries must derive different keys, both %q", a)
	}
	if a != "/api/movies?page=1&order=latest" {
		t.Errorf("API key must keep raw query, got %q", a)
	}
}

func TestKeyFor_StaticUsesFullURL(t *testing.T) {
	raw := "https://cdn.example.com/app.js?_t=1"
	key := KeyFor(mustParse(t, raw), ResourceStatic)
	if key != raw {
		t.Errorf("static key must be the full URL, got %q", key)
	}
}

func TestSanitizeKey(t *testing.T) {
	got := SanitizeKey("/thumb.jpg?size=big")
	if got != "_thumb.jpg_size_big" {
		t.Errorf("unexpected sanitized key %q", got)
	}
}
