// cmd/host/main.go
//
// The host process stands in for the page context: it answers bridge
// requests (auth token, API base) and forwards watch-later actions to
// the gateway's mutation queue.
package main

import (
	"bytes"
	"io"
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"vidgate/bridge"
	"vidgate/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	log.Printf("starting host on %s", cfg.HostAddr)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("ok")); err != nil {
			log.Printf("Error writing health check response: %v", err)
		}
	})

	// The gateway dials this endpoint for credentials and the API base.
	r.Handle("/bridge", bridge.Handler(func() string { return cfg.HostToken }, bridge.DefaultAPIBase))

	// Watch-later actions go to the gateway queue; the gateway replays
	// them against the origin when a credential is available.
	r.Post("/watch-later", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}

		req, err := http.NewRequestWithContext(r.Context(), http.MethodPost,
			cfg.GatewayURL+"/vidgate/queue", bytes.NewReader(body))
		if err != nil {
			http.Error(w, "gateway unavailable", http.StatusBadGateway)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			logger.Error().Err(err).Msg("forward to gateway failed")
			http.Error(w, "gateway unavailable", http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.StatusCode)
		if _, err := io.Copy(w, resp.Body); err != nil {
			log.Printf("Error writing response: %v", err)
		}
	})

	h := hlog.NewHandler(logger)(r)
	srv := &http.Server{Addr: cfg.HostAddr, Handler: h}
	log.Fatal(srv.ListenAndServe())
}
