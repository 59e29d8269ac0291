package router

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"vidgate/cache"
	"vidgate/internal/config"
	"vidgate/partition"
	"vidgate/strategy"
)

const (
	// APIListMaxAge keeps list/metadata responses paint-fast while
	// bounding their staleness.
	APIListMaxAge = 5 * time.Minute
	// AssetMaxAge is the stale-while-revalidate horizon for same-origin
	// styles and scripts.
	AssetMaxAge = 24 * time.Hour

	// imageAccept prefers modern formats when fetching images upstream.
	imageAccept = "image/avif,image/webp,image/apng,image/svg+xml,image/*,*/*;q=0.8"
)

// Options configures a Router.
type Options struct {
	Origin     string
	Rules      config.Rules
	Engine     *strategy.Engine
	Partitions *partition.Manager
	Log        zerolog.Logger

	// Overridable in tests; zero values use the package defaults.
	APIListMaxAge time.Duration
	AssetMaxAge   time.Duration
}

// Router dispatches intercepted requests. Cacheable classes run
// through a fetch strategy bound to a partition; everything else is
// reverse-proxied to the origin untouched.
type Router struct {
	origin     *url.URL
	cls        *Classifier
	engine     *strategy.Engine
	parts      *partition.Manager
	proxy      *httputil.ReverseProxy
	bustParams []string
	listMaxAge time.Duration
	assetMax   time.Duration
	log        zerolog.Logger
}

// New builds a Router from options.
func New(opts Options) (*Router, error) {
	origin, err := url.Parse(opts.Origin)
	if err != nil {
		return nil, err
	}
	cls, err := NewClassifier(opts.Rules)
	if err != nil {
		return nil, err
	}

	listMaxAge := opts.APIListMaxAge
	if listMaxAge <= 0 {
		listMaxAge = APIListMaxAge
	}
	assetMax := opts.AssetMaxAge
	if assetMax <= 0 {
		assetMax = AssetMaxAge
	}

	return &Router{
		origin:     origin,
		cls:        cls,
		engine:     opts.Engine,
		parts:      opts.Partitions,
		proxy:      httputil.NewSingleHostReverseProxy(origin),
		bustParams: opts.Rules.CacheBustParams,
		listMaxAge: listMaxAge,
		assetMax:   assetMax,
		log:        opts.Log,
	}, nil
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	class := rt.cls.Classify(r)
	if class == ClassPassthrough {
		rt.proxy.ServeHTTP(w, r)
		return
	}

	target := *rt.origin
	target.Path = r.URL.Path
	target.RawQuery = r.URL.RawQuery

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	req.Header = r.Header.Clone()

	entry, err := rt.dispatch(req, class, &target)
	if err != nil {
		rt.log.Warn().Err(err).Str("class", class.String()).Str("path", r.URL.Path).
			Msg("request failed with no fallback")
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}
	if err := entry.WriteTo(w); err != nil {
		rt.log.Debug().Err(err).Str("path", r.URL.Path).Msg("response write aborted")
	}
}

func (rt *Router) dispatch(req *http.Request, class Class, target *url.URL) (*partition.Entry, error) {
	ctx := req.Context()

	switch class {
	case ClassNavigation:
		part, err := rt.parts.Get(partition.Static)
		if err != nil {
			return nil, err
		}
		return rt.engine.NetworkFirst(ctx, req, part, target.String())

	case ClassAPIList:
		part, err := rt.parts.Get(partition.API)
		if err != nil {
			return nil, err
		}
		key := cache.KeyFor(target, cache.ResourceAPI)
		return rt.engine.StaleWhileRevalidate(ctx, req, part, key, rt.listMaxAge)

	case ClassAPIItem:
		part, err := rt.parts.Get(partition.API)
		if err != nil {
			return nil, err
		}
		key := cache.KeyFor(target, cache.ResourceAPI)
		return rt.engine.NetworkFirst(ctx, req, part, key)

	case ClassImage:
		part, err := rt.parts.Get(partition.Image)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", imageAccept)
		key := cache.KeyWithBustParams(target, cache.ResourceImage, rt.bustParams)
		return rt.engine.CacheFirst(ctx, req, part, key)

	case ClassFont:
		part, err := rt.parts.Get(partition.Static)
		if err != nil {
			return nil, err
		}
		return rt.engine.CacheFirst(ctx, req, part, target.String())

	default: // ClassAsset
		part, err := rt.parts.Get(partition.Static)
		if err != nil {
			return nil, err
		}
		return rt.engine.StaleWhileRevalidate(ctx, req, part, target.String(), rt.assetMax)
	}
}
