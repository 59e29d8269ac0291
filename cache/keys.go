package cache

import (
	"net/url"
	"strings"
)

// ResourceType selects the key normalization rule for a request.
type ResourceType string

const (
	ResourceAPI    ResourceType = "api"
	ResourceImage  ResourceType = "image"
	ResourceStatic ResourceType = "static"
)

// DefaultCacheBustParams are query parameters that only defeat caching
// and carry no content meaning for image resources.
var DefaultCacheBustParams = []string{"_t", "_cb", "v"}

// KeyFor derives a stable cache key from a URL for the given resource
// type. API keys keep the full query string since different filters are
// different entries. Image keys drop cache-busting parameters but keep
// legitimate variants such as size. Everything else keys on the full URL.
func KeyFor(u *url.URL, rt ResourceType) string {
	return KeyWithBustParams(u, rt, DefaultCacheBustParams)
}

// KeyWithBustParams is KeyFor with a caller-supplied cache-busting list.
func KeyWithBustParams(u *url.URL, rt ResourceType, bustParams []string) string {
	switch rt {
	case ResourceAPI:
		if u.RawQuery != "" {
			return u.Path + "?" + u.RawQuery
		}
		return u.Path
	case ResourceImage:
		params := u.Query()
		for _, p := range bustParams {
			params.Del(p)
		}
		if clean := params.Encode(); clean != "" {
			return u.Path + "?" + clean
		}
		return u.Path
	default:
		return u.String()
	}
}

// SanitizeKey makes a cache key safe for use as a filename.
func SanitizeKey(key string) string {
	r := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		"#", "_",
		"&", "_",
		"=", "_",
		" ", "_",
	)
	return r.Replace(key)
}
