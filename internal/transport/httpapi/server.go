// Package httpapi exposes a thin read-only HTTP API over the corpus library
// for serve mode.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/oneirolab/somnia/internal/corpus"
	"github.com/oneirolab/somnia/internal/domain"
	"github.com/oneirolab/somnia/internal/domain/table"
	"github.com/oneirolab/somnia/internal/fetch"
	logpkg "github.com/oneirolab/somnia/internal/logger"
	"github.com/oneirolab/somnia/internal/metrics"
	"github.com/oneirolab/somnia/internal/registry"
	"github.com/oneirolab/somnia/internal/version"
)

// Server serves registry listings and materialized corpus tables.
type Server struct {
	store   *registry.Store
	fetcher *fetch.Fetcher
	logger  *zap.Logger

	mu     sync.Mutex
	loaded map[string]*corpus.Corpus // keyed by cache key
}

// NewServer creates the HTTP API server.
func NewServer(store *registry.Store, fetcher *fetch.Fetcher, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		store:   store,
		fetcher: fetcher,
		logger:  logger,
		loaded:  make(map[string]*corpus.Corpus),
	}
}

// Router builds the chi router with logging and metrics middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RequestID)
	r.Use(requestLogMiddleware(s.logger))
	r.Use(metrics.Middleware())

	r.Get("/healthz", s.Healthz)
	r.Get("/metrics", s.Metrics)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/collections", s.ListCollections)
		r.Get("/corpora", s.ListCorpora)
		r.Route("/corpora/{name}", func(r chi.Router) {
			r.Get("/", s.GetCorpus)
			r.Get("/versions", s.ListVersions)
			r.Get("/reports", s.GetReports)
			r.Get("/authors", s.GetAuthors)
		})
	})
	return r
}

// Healthz handles GET /healthz.
func (s *Server) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// ListCollections handles GET /v1/collections.
func (s *Server) ListCollections(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.Collections()
	if err != nil {
		s.writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"collections": names})
}

// ListCorpora handles GET /v1/corpora.
func (s *Server) ListCorpora(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.Corpora()
	if err != nil {
		s.writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"corpora": names})
}

// entryResponse is the JSON shape of a resolved registry entry.
type entryResponse struct {
	Name          string            `json:"name"`
	Title         string            `json:"title"`
	Description   string            `json:"description"`
	Citations     []string          `json:"citations"`
	Environment   string            `json:"environment,omitempty"`
	Probe         string            `json:"probe,omitempty"`
	Format        string            `json:"format,omitempty"`
	ColumnMap     map[string]string `json:"column_map"`
	AuthorColumns []string          `json:"author_columns"`
	Version       string            `json:"version"`
	DownloadURL   string            `json:"download_url"`
	Hash          string            `json:"hash"`
	DOI           string            `json:"doi,omitempty"`
}

// GetCorpus handles GET /v1/corpora/{name}.
func (s *Server) GetCorpus(w http.ResponseWriter, r *http.Request) {
	entry, err := s.store.Entry(chi.URLParam(r, "name"), r.URL.Query().Get("version"))
	if err != nil {
		s.writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, entryResponse{
		Name:          entry.Name,
		Title:         entry.Title,
		Description:   entry.Description,
		Citations:     entry.Citations,
		Environment:   entry.Environment,
		Probe:         entry.Probe,
		Format:        entry.Format,
		ColumnMap:     entry.ColumnMap,
		AuthorColumns: entry.AuthorColumns,
		Version:       entry.Version,
		DownloadURL:   entry.DownloadURL,
		Hash:          entry.Hash,
		DOI:           entry.DOI,
	})
}

// ListVersions handles GET /v1/corpora/{name}/versions.
func (s *Server) ListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.store.Versions(chi.URLParam(r, "name"))
	if err != nil {
		s.writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"versions": versions})
}

// GetReports handles GET /v1/corpora/{name}/reports.
func (s *Server) GetReports(w http.ResponseWriter, r *http.Request) {
	c, err := s.loadCorpus(r.Context(), chi.URLParam(r, "name"), r.URL.Query().Get("version"))
	if err != nil {
		s.writeDomainError(r.Context(), w, err)
		return
	}
	reports, err := c.Reports()
	if err != nil {
		s.writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": tableToRows(reports)})
}

// GetAuthors handles GET /v1/corpora/{name}/authors.
func (s *Server) GetAuthors(w http.ResponseWriter, r *http.Request) {
	c, err := s.loadCorpus(r.Context(), chi.URLParam(r, "name"), r.URL.Query().Get("version"))
	if err != nil {
		s.writeDomainError(r.Context(), w, err)
		return
	}
	authors, err := c.Authors()
	if err != nil {
		s.writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authors": tableToRows(authors)})
}

// loadCorpus resolves, fetches, and materializes a corpus, memoizing the
// handle per cache key so a table is read and normalized at most once.
func (s *Server) loadCorpus(ctx context.Context, name, ver string) (*corpus.Corpus, error) {
	entry, err := s.store.Entry(name, ver)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if c, ok := s.loaded[entry.CacheKey()]; ok {
		s.mu.Unlock()
		return c, nil
	}
	s.mu.Unlock()

	path, err := s.fetcher.Fetch(ctx, entry)
	if err != nil {
		return nil, err
	}
	c, err := corpus.New(entry, path, s.logger)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.loaded[entry.CacheKey()]; ok {
		return existing, nil
	}
	s.loaded[entry.CacheKey()] = c
	return c, nil
}

func tableToRows(t *table.Table) []map[string]string {
	columns := t.Columns()
	rows := make([]map[string]string, t.Len())
	for i := 0; i < t.Len(); i++ {
		row := t.Row(i)
		obj := make(map[string]string, len(columns))
		for j, col := range columns {
			obj[col] = row[j]
		}
		rows[i] = obj
	}
	return rows
}

// writeDomainError maps domain sentinels to HTTP statuses.
func (s *Server) writeDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	log := logpkg.FromContext(ctx)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, domain.ErrIntegrity):
		log.Error("integrity failure", zap.Error(err))
		writeError(w, http.StatusBadGateway, "integrity_error", err.Error())
	case errors.Is(err, domain.ErrSchemaViolation), errors.Is(err, domain.ErrEmptyReport),
		errors.Is(err, domain.ErrContract), errors.Is(err, domain.ErrRegistryInvalid):
		log.Error("corpus materialization failure", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "data_error", err.Error())
	default:
		log.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}

// requestLogMiddleware emits a canonical log line per request and propagates
// a request-scoped logger through the context.
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
