// Package httpapi exposes the retrieval engine and the document store over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"ragkb/internal/domain"
	logpkg "ragkb/internal/logger"
	"ragkb/internal/metrics"
)

const maxBodyBytes = 8 << 20

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Options holds the query defaults applied when a request omits them.
type Options struct {
	TopK      int
	Threshold float64
}

// Server serves the JSON API.
type Server struct {
	retriever     domain.Retriever
	store         domain.DocumentStore
	opts          Options
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(retriever domain.Retriever, store domain.DocumentStore, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		retriever: retriever,
		store:     store,
		opts:      opts,
		logger:    logger.Named("http"),
		errorHandlers: []errorHandler{
			sentinelHandler(domain.ErrNotFound, http.StatusNotFound, "not_found"),
			sentinelHandler(domain.ErrInvalidArgument, http.StatusBadRequest, "invalid_argument"),
			sentinelHandler(domain.ErrInvalidConfig, http.StatusBadRequest, "invalid_config"),
		},
	}
}

// Routes builds the chi router with middleware.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(requestLogMiddleware(s.logger))
	r.Use(metrics.Middleware())

	r.Get("/healthz", s.health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/search", s.search)
		r.Get("/stats", s.stats)
		r.Post("/index/rebuild", s.rebuild)

		r.Get("/documents", s.listDocuments)
		r.Post("/documents", s.addDocument)
		r.Delete("/documents", s.clearDocuments)
		r.Get("/documents/{id}", s.getDocument)
		r.Delete("/documents/{id}", s.removeDocument)
	})
	return r
}

type searchResponse struct {
	Query     string                `json:"query"`
	K         int                   `json:"k"`
	Threshold float64               `json:"threshold"`
	Results   []domain.SearchResult `json:"results"`
}

// search handles GET /v1/search?q=&k=&threshold=.
func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("q"))
	k := s.opts.TopK
	if raw := q.Get("k"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "k must be an integer")
			return
		}
		k = v
	}
	threshold := s.opts.Threshold
	if raw := q.Get("threshold"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "threshold must be a number")
			return
		}
		threshold = v
	}

	results, err := s.retriever.Search(query, k, threshold)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Query: query, K: k, Threshold: threshold, Results: results})
}

// stats handles GET /v1/stats.
func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.retriever.Stats())
}

// rebuild handles POST /v1/index/rebuild.
func (s *Server) rebuild(w http.ResponseWriter, r *http.Request) {
	if err := s.retriever.RebuildIndex(r.Context()); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.retriever.Stats())
}

// listDocuments handles GET /v1/documents.
func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.GetAll(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": docs, "total": len(docs)})
}

// getDocument handles GET /v1/documents/{id}.
func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type addDocumentRequest struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// addDocument handles POST /v1/documents and rebuilds the index.
func (s *Server) addDocument(w http.ResponseWriter, r *http.Request) {
	var req addDocumentRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "text is required")
		return
	}

	doc, err := s.store.Add(r.Context(), domain.Document{ID: req.ID, Title: req.Title, Text: req.Text})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if err := s.retriever.RebuildIndex(r.Context()); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/documents/"+doc.ID)
	writeJSON(w, http.StatusCreated, doc)
}

// removeDocument handles DELETE /v1/documents/{id} and rebuilds the index.
func (s *Server) removeDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if err := s.retriever.RebuildIndex(r.Context()); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// clearDocuments handles DELETE /v1/documents and rebuilds the index.
func (s *Server) clearDocuments(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Clear(r.Context()); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if err := s.retriever.RebuildIndex(r.Context()); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// health handles GET /healthz.
func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	st := s.retriever.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"generation": st.Generation,
		"chunks":     st.ChunkCount,
	})
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, err.Error())
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context())
	for _, h := range s.errorHandlers {
		if h(w, err) {
			log.Warn("domain error", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered", zap.Any("panic", rvr), zap.Stack("stacktrace"))
					writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogMiddleware emits one log line per request and propagates X-Request-ID.
func requestLogMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
