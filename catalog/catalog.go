// Package catalog composes the upstream client, the in-memory query
// cache, and the durable result store into one lookup surface.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"vidgate/cache"
	"vidgate/netinfo"
	"vidgate/store"
	"vidgate/upstream"
)

// QueryTTL bounds how long a search result answers from memory before
// the upstream is consulted again.
const QueryTTL = 5 * time.Minute

// listOrders maps each named list to its upstream sort order.
var listOrders = map[store.ListKind]string{
	store.ListPopular:    "most-popular",
	store.ListLatest:     "latest",
	store.ListTopWeekly:  "top-weekly",
	store.ListTopMonthly: "top-monthly",
	store.ListTopRated:   "top-rated",
}

// Catalog answers searches and item lookups, caching in memory for the
// query TTL and writing through to the durable store.
type Catalog struct {
	client  *upstream.Client
	store   *store.Store
	queries *cache.TTLMap[upstream.Page]
	net     *netinfo.Monitor
	log     zerolog.Logger
}

func New(client *upstream.Client, st *store.Store, net *netinfo.Monitor, log zerolog.Logger) *Catalog {
	return &Catalog{
		client:  client,
		store:   st,
		queries: cache.NewTTLMap[upstream.Page](QueryTTL),
		net:     net,
		log:     log,
	}
}

// Search answers from the query cache when a fresh entry exists,
// otherwise asks the upstream and writes the result through. An
// upstream failure falls back to the durable store when it holds a
// usable copy.
func (c *Catalog) Search(ctx context.Context, params upstream.SearchParams) (*upstream.Page, error) {
	params = c.adapt(params)
	key := params.CacheKey()

	if page, ok := c.queries.Get(key); ok {
		return &page, nil
	}

	page, err := c.fetchSearch(ctx, params)
	if err == nil {
		c.queries.Set(key, *page)
		if serr := c.store.SetSearch(ctx, key, *page); serr != nil {
			c.log.Warn().Err(serr).Str("key", key).Msg("search write-through failed")
		}
		return page, nil
	}

	if cached, ok := c.store.Search(key); ok {
		c.log.Warn().Err(err).Str("key", key).Msg("upstream search failed, serving stored result")
		return cached, nil
	}
	return nil, err
}

// List returns a named result list, loading it from the upstream only
// when the stored copy is absent or expired.
func (c *Catalog) List(ctx context.Context, kind store.ListKind) ([]upstream.Video, error) {
	order, ok := listOrders[kind]
	if !ok {
		return nil, fmt.Errorf("unknown list kind %q", kind)
	}
	if !c.store.NeedsLoad(kind) {
		if videos, ok := c.store.List(kind); ok {
			return videos, nil
		}
	}

	page, err := c.fetchSearch(ctx, c.adapt(upstream.SearchParams{Order: order}))
	if err != nil {
		// Expired data beats no data when the upstream is down.
		if videos, ok := c.store.List(kind); ok {
			c.log.Warn().Err(err).Str("list", string(kind)).Msg("upstream list load failed, serving stored copy")
			return videos, nil
		}
		return nil, err
	}
	if serr := c.store.SetList(ctx, kind, page.Videos); serr != nil {
		c.log.Warn().Err(serr).Str("list", string(kind)).Msg("list write-through failed")
	}
	return page.Videos, nil
}

// Video looks up one item, preferring the durable store. A removed
// item reports found=false without an error.
func (c *Catalog) Video(ctx context.Context, id string) (upstream.Video, bool, error) {
	if video, ok := c.store.Detail(id); ok {
		return video, true, nil
	}

	start := time.Now()
	video, found, err := c.client.VideoByID(ctx, id, c.net.Snapshot().ThumbSize())
	if err != nil {
		return upstream.Video{}, false, err
	}
	c.net.Observe(time.Since(start))
	if !found {
		return upstream.Video{}, false, nil
	}
	if serr := c.store.SetDetail(ctx, id, video); serr != nil {
		c.log.Warn().Err(serr).Str("id", id).Msg("detail write-through failed")
	}
	return video, true, nil
}

func (c *Catalog) fetchSearch(ctx context.Context, params upstream.SearchParams) (*upstream.Page, error) {
	start := time.Now()
	page, err := c.client.Search(ctx, params)
	if err != nil {
		return nil, err
	}
	c.net.Observe(time.Since(start))
	return page, nil
}

// adapt fills unset sizing knobs from the network quality estimate.
func (c *Catalog) adapt(params upstream.SearchParams) upstream.SearchParams {
	snap := c.net.Snapshot()
	if params.ThumbSize == "" {
		params.ThumbSize = snap.ThumbSize()
	}
	if params.PerPage == 0 {
		params.PerPage = snap.PerPage()
	}
	return params
}
