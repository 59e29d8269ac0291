// cmd/gateway/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"vidgate/bridge"
	"vidgate/catalog"
	"vidgate/internal/config"
	"vidgate/internal/http/routes"
	"vidgate/internal/metrics"
	"vidgate/internal/storage"
	"vidgate/netinfo"
	"vidgate/partition"
	"vidgate/queue"
	"vidgate/replay"
	"vidgate/router"
	"vidgate/store"
	"vidgate/strategy"
	"vidgate/upstream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	rules, err := config.LoadRules(cfg.RulesPath)
	if err != nil {
		log.Fatalf("rules error: %v", err)
	}
	origin, err := url.Parse(cfg.Origin)
	if err != nil {
		log.Fatalf("bad origin %q: %v", cfg.Origin, err)
	}

	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	log.Printf("starting gateway on %s (origin %s)", cfg.ListenAddr, cfg.Origin)

	// Durable store
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("db error: %v", err)
	}
	defer db.Close()

	// Metrics
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	// Cache partitions and fetch strategies
	parts := partition.NewManager(cfg.CacheDir, cfg.CacheVersion, logger)
	offlineKey := origin.JoinPath(rules.OfflinePath).String()
	engine := strategy.New(strategy.Options{
		Timeout: cfg.FetchTimeout,
		Log:     logger,
		Metrics: m,
		Offline: func() (*partition.Entry, bool) {
			static, err := parts.Get(partition.Static)
			if err != nil {
				return nil, false
			}
			return static.Match(offlineKey)
		},
	})

	ctx := context.Background()
	assets := make([]string, 0, len(rules.BootstrapAssets))
	for _, asset := range rules.BootstrapAssets {
		assets = append(assets, origin.JoinPath(asset).String())
	}
	fetch := func(ctx context.Context, rawURL string) (*partition.Entry, error) {
		return engine.FetchEntry(ctx, rawURL, rawURL)
	}
	if err := parts.Install(ctx, fetch, assets); err != nil {
		log.Fatalf("install error: %v", err)
	}
	if err := parts.Activate(ctx); err != nil {
		log.Fatalf("activate error: %v", err)
	}

	// Bridge to the host context
	var transport bridge.Transport
	if cfg.BridgeURL != "" {
		transport = &bridge.HTTPTransport{URL: cfg.BridgeURL}
	}
	br := bridge.NewClient(transport, cfg.BridgeTimeout, logger)

	// Mutation queue and background replay
	q := queue.New(db)
	replayer := replay.New(replay.Options{
		Queue:   q,
		Bridge:  br,
		Origin:  cfg.Origin,
		Timeout: cfg.FetchTimeout,
		Log:     logger,
		Metrics: m,
	})
	trigger := make(chan struct{}, 1)
	go replayer.Run(ctx, cfg.SyncInterval, trigger)

	// Catalog over the upstream search API
	st, err := store.Open(ctx, db, store.Options{
		MaxBytes: cfg.SnapshotMaxBytes,
		Log:      logger,
	})
	if err != nil {
		log.Fatalf("store error: %v", err)
	}
	net := netinfo.NewMonitor()
	client := upstream.New(
		upstream.WithBaseURL(cfg.SearchAPIBase),
		upstream.WithLogger(logger),
	)
	cat := catalog.New(client, st, net, logger)

	// Request router behind the control plane
	rt, err := router.New(router.Options{
		Origin:     cfg.Origin,
		Rules:      rules,
		Engine:     engine,
		Partitions: parts,
		Log:        logger,
	})
	if err != nil {
		log.Fatalf("router error: %v", err)
	}

	s := routes.New(routes.ServerOptions{
		Catalog:  cat,
		Queue:    q,
		Net:      net,
		Registry: registry,
		Gateway:  rt,
		Trigger:  trigger,
		Log:      logger,
	})
	h := hlog.NewHandler(logger)(s.Router)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: h}
	log.Fatal(srv.ListenAndServe())
}
