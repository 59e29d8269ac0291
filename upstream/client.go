package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// DefaultBaseURL is the production search API root.
const DefaultBaseURL = "https://www.eporner.com/api/v2"

// maxTotalPages caps pagination against nonsense API answers.
const maxTotalPages = 1000

// ErrBadPayload reports a response body that is not the JSON the API
// contract promises (e.g. an HTML error page).
var ErrBadPayload = errors.New("upstream returned a non-JSON payload")

// SearchParams are the query parameters of one search. Zero values are
// replaced by the API defaults.
type SearchParams struct {
	Query      string
	Page       int
	PerPage    int
	ThumbSize  string
	Order      string
	Gay        int
	LowQuality int

	// lowQualitySet distinguishes an explicit 0 from the default 1.
	lowQualitySet bool
}

// WithLowQuality sets the low-quality filter explicitly.
func (p SearchParams) WithLowQuality(lq int) SearchParams {
	p.LowQuality = lq
	p.lowQualitySet = true
	return p
}

func (p SearchParams) normalized() SearchParams {
	if p.Query == "" {
		p.Query = "all"
	}
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.PerPage <= 0 {
		p.PerPage = 30
	}
	if p.ThumbSize == "" {
		p.ThumbSize = "big"
	}
	if p.Order == "" {
		p.Order = "latest"
	}
	if !p.lowQualitySet {
		p.LowQuality = 1
	}
	return p
}

// CacheKey is the deterministic composite key for this query, e.g.
// "all|1|30|big|latest|0|1".
func (p SearchParams) CacheKey() string {
	n := p.normalized()
	return strings.Join([]string{
		n.Query,
		strconv.Itoa(n.Page),
		strconv.Itoa(n.PerPage),
		n.ThumbSize,
		n.Order,
		strconv.Itoa(n.Gay),
		strconv.Itoa(n.LowQuality),
	}, "|")
}

// Client talks to the search API. Outbound calls run through a circuit
// breaker so a broken upstream fails fast instead of hammering it.
type Client struct {
	http    *http.Client
	baseURL *url.URL
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithBaseURL points the client at a different API root.
func WithBaseURL(raw string) Option {
	return func(c *Client) {
		if u, err := url.Parse(raw); err == nil {
			c.baseURL = u
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New creates a search API client.
func New(opts ...Option) *Client {
	u, _ := url.Parse(DefaultBaseURL)
	c := &Client{
		http:    http.DefaultClient,
		baseURL: u,
		log:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "video-search-api",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return c
}

type searchResponse struct {
	Count      int        `json:"count"`
	Page       int        `json:"page"`
	PerPage    int        `json:"per_page"`
	TotalCount int        `json:"total_count"`
	TotalPages int        `json:"total_pages"`
	Videos     []rawVideo `json:"videos"`
}

// Search runs one paginated query and normalizes the result page.
func (c *Client) Search(ctx context.Context, params SearchParams) (*Page, error) {
	p := params.normalized()
	q := url.Values{
		"query":     {p.Query},
		"per_page":  {strconv.Itoa(p.PerPage)},
		"page":      {strconv.Itoa(p.Page)},
		"thumbsize": {p.ThumbSize},
		"order":     {p.Order},
		"gay":       {strconv.Itoa(p.Gay)},
		"lq":        {strconv.Itoa(p.LowQuality)},
		"format":    {"json"},
	}

	body, err := c.get(ctx, "/video/search/", q)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	page := &Page{
		Page:       resp.Page,
		PerPage:    p.PerPage,
		TotalCount: resp.TotalCount,
		TotalPages: totalPages(resp.TotalPages, resp.TotalCount, p.PerPage),
	}
	if page.Page == 0 {
		page.Page = p.Page
	}
	for _, raw := range resp.Videos {
		page.Videos = append(page.Videos, normalizeVideo(raw))
	}
	return page, nil
}

// VideoByID looks up one video. found is false when the API reports the
// video as removed (an empty array), which is a normal outcome rather
// than an error.
func (c *Client) VideoByID(ctx context.Context, id, thumbSize string) (Video, bool, error) {
	if id == "" {
		return Video{}, false, errors.New("video id is required")
	}
	if thumbSize == "" {
		thumbSize = "big"
	}

	q := url.Values{
		"id":        {id},
		"thumbsize": {thumbSize},
		"format":    {"json"},
	}
	body, err := c.get(ctx, "/video/id/", q)
	if err != nil {
		return Video{}, false, err
	}
	return decodeItem(body)
}

// decodeItem normalizes the lookup endpoint's duck-typed shapes: a bare
// object, an array wrapping one object, an object with a "video" field,
// or an empty array meaning removed.
func decodeItem(body []byte) (Video, bool, error) {
	trimmed := strings.TrimSpace(string(body))
	switch {
	case strings.HasPrefix(trimmed, "["):
		var arr []rawVideo
		if err := json.Unmarshal(body, &arr); err != nil {
			return Video{}, false, fmt.Errorf("decode video array: %w", err)
		}
		if len(arr) == 0 {
			return Video{}, false, nil
		}
		return normalizeVideo(arr[0]), true, nil

	case strings.HasPrefix(trimmed, "{"):
		var wrapped struct {
			Video *rawVideo `json:"video"`
		}
		if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Video != nil {
			return normalizeVideo(*wrapped.Video), true, nil
		}
		var raw rawVideo
		if err := json.Unmarshal(body, &raw); err != nil {
			return Video{}, false, fmt.Errorf("decode video object: %w", err)
		}
		if raw.ID == "" {
			return Video{}, false, nil
		}
		return normalizeVideo(raw), true, nil

	default:
		return Video{}, false, ErrBadPayload
	}
}

func (c *Client) get(ctx context.Context, apiPath string, q url.Values) ([]byte, error) {
	u := c.baseURL.JoinPath(apiPath)
	u.RawQuery = q.Encode()

	result, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("upstream status %d", resp.StatusCode)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		if err != nil {
			return nil, err
		}
		if looksLikeHTML(resp.Header.Get("Content-Type"), body) {
			return nil, ErrBadPayload
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// looksLikeHTML sniffs for an HTML error page served where JSON was
// promised.
func looksLikeHTML(contentType string, body []byte) bool {
	if strings.Contains(contentType, "text/html") {
		return true
	}
	trimmed := strings.TrimSpace(string(body))
	return strings.HasPrefix(trimmed, "<")
}

// totalPages reconciles the API's reported page count with one computed
// from total_count, capping runaway values.
func totalPages(reported, totalCount, perPage int) int {
	computed := 1
	if totalCount > 0 && perPage > 0 {
		computed = (totalCount + perPage - 1) / perPage
	}
	pages := reported
	if pages <= 0 {
		pages = computed
	}
	if pages > maxTotalPages {
		pages = maxTotalPages
	}
	if pages < 1 {
		pages = 1
	}
	return pages
}
