package routes

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"vidgate/catalog"
	"vidgate/netinfo"
	"vidgate/push"
	"vidgate/queue"
	"vidgate/store"
	"vidgate/upstream"
)

// Server is the gateway's HTTP surface: a small control plane under
// /vidgate plus the catch-all caching gateway itself.
type Server struct {
	Router  *chi.Mux
	Catalog *catalog.Catalog
	Queue   *queue.Queue
	Net     *netinfo.Monitor
	Log     zerolog.Logger

	// trigger wakes the replayer after an enqueue, the online-again
	// nudge for queued mutations.
	trigger chan<- struct{}
}

type ServerOptions struct {
	Catalog  *catalog.Catalog
	Queue    *queue.Queue
	Net      *netinfo.Monitor
	Registry *prometheus.Registry
	// Gateway answers everything the control plane doesn't.
	Gateway http.Handler
	Trigger chan<- struct{}
	Log     zerolog.Logger
}

func New(opts ServerOptions) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	s := &Server{
		Router:  r,
		Catalog: opts.Catalog,
		Queue:   opts.Queue,
		Net:     opts.Net,
		Log:     opts.Log,
		trigger: opts.Trigger,
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("ok")); err != nil {
			log.Printf("Error writing health check response: %v", err)
		}
	})
	if opts.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/vidgate", func(r chi.Router) {
		r.Get("/search", s.handleSearch)
		r.Get("/videos/{id}", s.handleVideo)
		r.Get("/lists/{kind}", s.handleList)
		r.Post("/queue", s.handleEnqueue)
		r.Post("/push", s.handlePush)
		r.Get("/netinfo", s.handleNetinfo)
	})

	if opts.Gateway != nil {
		r.Handle("/*", opts.Gateway)
	}
	return s
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := upstream.SearchParams{
		Query:     q.Get("query"),
		ThumbSize: q.Get("thumbsize"),
		Order:     q.Get("order"),
	}
	params.Page = intParam(q.Get("page"))
	params.PerPage = intParam(q.Get("per_page"))

	page, err := s.Catalog.Search(r.Context(), params)
	if err != nil {
		s.Log.Error().Err(err).Str("query", params.Query).Msg("search failed")
		http.Error(w, "search unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, page)
}

func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	video, found, err := s.Catalog.Video(r.Context(), id)
	if err != nil {
		s.Log.Error().Err(err).Str("id", id).Msg("video lookup failed")
		http.Error(w, "lookup unavailable", http.StatusBadGateway)
		return
	}
	if !found {
		http.Error(w, "video not found", http.StatusNotFound)
		return
	}
	writeJSON(w, video)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	videos, err := s.Catalog.List(r.Context(), store.ListKind(kind))
	if err != nil {
		s.Log.Error().Err(err).Str("kind", kind).Msg("list load failed")
		http.Error(w, "list unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, videos)
}

// handleEnqueue accepts a deferred mutation from the host context and
// nudges the replayer.
func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type queue.ActionType `json:"type"`
		Data json.RawMessage  `json:"data"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}

	id, err := s.Queue.Enqueue(r.Context(), req.Type, req.Data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.Log.Info().Int64("id", id).Str("type", string(req.Type)).Msg("mutation queued")

	if s.trigger != nil {
		select {
		case s.trigger <- struct{}{}:
		default:
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(map[string]int64{"id": id}); err != nil {
		log.Printf("Error writing response: %v", err)
	}
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	writeJSON(w, push.Parse(raw))
}

func (s *Server) handleNetinfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Net.Snapshot())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error writing response: %v", err)
	}
}

func intParam(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
