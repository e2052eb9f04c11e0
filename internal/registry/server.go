package registry

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kiwi-labs/kiwi/internal/directive"
	"github.com/kiwi-labs/kiwi/internal/search"
)

// maxPublishBytes bounds the size of a publish request body.
const maxPublishBytes = 4 << 20

// Server exposes a Store (and optionally a Publisher) over HTTP.
type Server struct {
	store     Store
	publisher Publisher
	token     string
	log       *zap.Logger
	registry  *prometheus.Registry
	metrics   *metrics
	router    chi.Router
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithPublisher enables the write endpoints. When the Store also implements
// Publisher it is used automatically.
func WithPublisher(p Publisher) ServerOption {
	return func(s *Server) { s.publisher = p }
}

// WithAuthToken requires "Authorization: Bearer <token>" on write
// endpoints. Without a token writes are open.
func WithAuthToken(token string) ServerOption {
	return func(s *Server) { s.token = token }
}

// WithServerLogger sets the request logger.
func WithServerLogger(l *zap.Logger) ServerOption {
	return func(s *Server) { s.log = l }
}

// NewServer builds the HTTP API over store.
func NewServer(store Store, opts ...ServerOption) *Server {
	s := &Server{
		store:    store,
		log:      zap.NewNop(),
		registry: prometheus.NewRegistry(),
	}
	if p, ok := store.(Publisher); ok {
		s.publisher = p
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics = newMetrics(s.registry)
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("registry listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down registry server: %w", err)
		}
		<-errCh
		return nil
	}
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route(apiPrefix, func(r chi.Router) {
		r.Get("/snapshot", s.handleSnapshot)
		r.Get("/directives", s.handleSearch)
		r.Get("/directives/{name}", s.handleGet)
		r.Get("/directives/{name}/versions", s.handleVersions)
		r.Get("/directives/{name}/versions/{version}", s.handleGet)

		r.Group(func(r chi.Router) {
			r.Use(s.requireToken)
			r.Post("/directives", s.handlePublish)
			r.Delete("/directives/{name}", s.handleDelete)
		})
	})
	return r
}

// instrument records request counts and latency by route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		s.metrics.requestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		s.metrics.requestDuration.WithLabelValues(route, r.Method).Observe(elapsed.Seconds())
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("elapsed", elapsed),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.publisher == nil {
			writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "registry is read-only", Code: codeUnsupported})
			return
		}
		if s.token != "" {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing or invalid token", Code: codeUnauthorized})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q := Query{
		Terms:         search.ParseQuery(params.Get("q")),
		Tags:          params["tag"],
		Categories:    params["category"],
		Subcategories: params["subcategory"],
		TechStack:     params["tech_stack"],
	}
	if l := params.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a non-negative integer", Code: codeInvalid})
			return
		}
		q.Limit = n
	}

	results, err := s.store.Search(r.Context(), q)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if results == nil {
		results = []directive.Candidate{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Results: results})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	listings, err := s.store.List(r.Context(), r.URL.Query()["category"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	if listings == nil {
		listings = []Listing{}
	}
	writeJSON(w, http.StatusOK, snapshotResponse{Directives: listings})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	version := chi.URLParam(r, "version")
	if version == "" {
		version = r.URL.Query().Get("version")
	}

	ctx := r.Context()
	download := r.URL.Query().Get("download") == "1"
	if download {
		ctx = AsDownload(ctx)
	}
	rec, err := s.store.Get(ctx, name, version)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if download {
		s.metrics.downloadsTotal.Inc()
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	versions, err := s.store.Versions(r.Context(), name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, versionsResponse{Name: name, Versions: versions})
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req PublishRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPublishBytes))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "decoding request: " + err.Error(), Code: codeInvalid})
		return
	}
	if err := ValidatePublish(req); err != nil {
		s.writeError(w, err)
		return
	}

	res, err := s.publisher.Publish(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.metrics.publishesTotal.Inc()
	s.log.Info("published directive", zap.String("name", res.Name), zap.String("version", res.Version))
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.publisher.Delete(r.Context(), name); err != nil {
		s.writeError(w, err)
		return
	}
	s.log.Info("deleted directive", zap.String("name", name))
	w.WriteHeader(http.StatusNoContent)
}

// writeError maps an error onto a status code and error body.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var semverErr *directive.InvalidSemverError
	switch {
	case errors.Is(err, directive.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error(), Code: codeNotFound})
	case errors.As(err, &semverErr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: codeInvalidSemver, Value: semverErr.Value})
	case errors.Is(err, ErrVersionExists):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Code: codeConflict})
	case errors.Is(err, ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: codeInvalid})
	default:
		s.log.Error("registry request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error", Code: codeInternal})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
