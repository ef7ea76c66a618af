// Package api provides the HTTP surface of the file service: a chi router,
// the request middleware stack and a server with graceful shutdown.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/avolokita/fileholder/internal/logger"
	"github.com/avolokita/fileholder/pkg/api/handlers"
	"github.com/avolokita/fileholder/pkg/metrics"
	"github.com/avolokita/fileholder/pkg/uow"
)

// NewRouter builds the chi router with all middleware and routes.
//
// Routes:
//   - GET    /health                 - liveness probe
//   - GET    /metrics                - Prometheus exposition (when enabled)
//   - POST   /files                  - multipart upload
//   - GET    /files                  - list metadata
//   - GET    /files/search           - prefix search on the virtual path
//   - GET    /files/meta/by-path     - metadata lookup by triple
//   - GET    /files/{id}/meta        - metadata lookup by id
//   - GET    /files/{id}             - blob download
//   - DELETE /files/{id}             - delete file and metadata
//   - PUT    /files/{id}             - update metadata
//   - PATCH  /files/{id}             - update metadata
//   - POST   /files/synchronise      - storage reconciliation
func NewRouter(factory *uow.Factory, m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(m))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", handlers.Health)

	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	fileHandler := handlers.NewFileHandler(factory, m)

	r.Route("/files", func(r chi.Router) {
		r.Post("/", fileHandler.Create)
		r.Get("/", fileHandler.List)
		r.Get("/search", fileHandler.Search)
		r.Get("/meta/by-path", fileHandler.GetMetaByTriple)
		r.Post("/synchronise", fileHandler.Synchronise)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/meta", fileHandler.GetMeta)
			r.Get("/", fileHandler.Download)
			r.Delete("/", fileHandler.Delete)
			r.Put("/", fileHandler.Update)
			r.Patch("/", fileHandler.Update)
		})
	})

	return r
}

// requestLogger logs request start at DEBUG and completion at INFO
// (healthchecks at DEBUG to reduce noise) and records the latency
// histogram.
func requestLogger(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := middleware.GetReqID(r.Context())

			logger.Debug("request started",
				"request_id", requestID,
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			elapsed := time.Since(start)
			m.ObserveRequest(r.Method, strconv.Itoa(ww.Status()), elapsed)

			logArgs := []any{
				"request_id", requestID,
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", elapsed.String(),
			}
			if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
				logger.Debug("request completed", logArgs...)
			} else {
				logger.Info("request completed", logArgs...)
			}
		})
	}
}
