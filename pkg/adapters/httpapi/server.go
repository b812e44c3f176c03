// Package httpapi exposes the churning store over HTTP: a paged read path,
// a viewport endpoint feeding the visible-range oracle, health, state and
// Prometheus metrics.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/churn/pkg/core"
)

const (
	// DefaultPageLimit is the page size when the request names none.
	DefaultPageLimit = 50
	// MaxPageLimit caps the page size of a single request.
	MaxPageLimit = 1000
)

type server struct {
	coordinator *core.Coordinator
	store       core.Store
	gatherer    prometheus.Gatherer
	logger      *slog.Logger
}

// Option configures the handler.
type Option func(*server)

// WithGatherer serves gatherer on /metrics. Without it /metrics is not mounted.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *server) { s.gatherer = g }
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewHandler builds the HTTP API over c.
func NewHandler(c *core.Coordinator, opts ...Option) http.Handler {
	s := &server{
		coordinator: c,
		store:       c.Store(),
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.health)
	r.Get("/state", s.state)
	r.Get("/records", s.listRecords)
	r.Route("/visible-range", func(r chi.Router) {
		r.Get("/", s.getVisibleRange)
		r.Put("/", s.putVisibleRange)
		r.Delete("/", s.deleteVisibleRange)
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

type recordView struct {
	core.Record
	ColorHex string `json:"color_hex,omitempty"`
}

type pageView struct {
	Offset  int          `json:"offset"`
	Limit   int          `json:"limit"`
	Total   int          `json:"total"`
	Records []recordView `json:"records"`
}

func (s *server) listRecords(w http.ResponseWriter, r *http.Request) {
	// Optional parameters bind into pointers; nil means absent.
	var offsetParam, limitParam *int
	if err := runtime.BindQueryParameter("form", true, false, "offset", r.URL.Query(), &offsetParam); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limitParam); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	offset, limit := 0, DefaultPageLimit
	if offsetParam != nil {
		offset = *offsetParam
	}
	if limitParam != nil {
		limit = *limitParam
	}
	if offset < 0 || limit <= 0 {
		writeError(w, http.StatusBadRequest, errors.New("offset must be >= 0 and limit > 0"))
		return
	}
	limit = min(limit, MaxPageLimit)

	records, err := s.store.Page(r.Context(), offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	total, err := s.store.Count(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	page := pageView{Offset: offset, Limit: limit, Total: total, Records: make([]recordView, len(records))}
	for i, rec := range records {
		page.Records[i] = recordView{Record: rec, ColorHex: core.ColorHex(rec.Color)}
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *server) getVisibleRange(w http.ResponseWriter, r *http.Request) {
	vr, ok := s.coordinator.VisibleRange()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, vr)
}

// putVisibleRange registers the reported viewport as the oracle, replacing
// whatever provider was registered before.
func (s *server) putVisibleRange(w http.ResponseWriter, r *http.Request) {
	var vr core.Range
	if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !vr.Valid() {
		writeError(w, http.StatusUnprocessableEntity, core.ErrInvalidRange)
		return
	}
	s.coordinator.RegisterVisibleRangeProvider(core.StaticRange(vr))
	writeJSON(w, http.StatusOK, vr)
}

func (s *server) deleteVisibleRange(w http.ResponseWriter, r *http.Request) {
	s.coordinator.RegisterVisibleRangeProvider(nil)
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	if !s.coordinator.IsSeeded() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "seeding"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) state(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		s.coordinator.ComponentType(): s.coordinator.State(),
		"store":                       storeState(s.store),
	})
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(started),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
