package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"sheetsync/internal/config"
	"sheetsync/internal/domain"
	"sheetsync/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const requestIDHeader = "X-Request-ID"

// HTTPServer exposes the sync engine over a small JSON API.
type HTTPServer struct {
	cfg     config.APIConfig
	engine  domain.SyncEngine
	archive domain.OperationArchive
	logger  zerolog.Logger
	server  *http.Server
	auth    *HTTPAuth
}

// NewHTTPServer builds the server. archive may be nil, in which case the
// history endpoint reports 503.
func NewHTTPServer(cfg config.APIConfig, engine domain.SyncEngine, archive domain.OperationArchive, logger *zerolog.Logger) *HTTPServer {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "http").Logger()
	}
	srv := &HTTPServer{cfg: cfg, engine: engine, archive: archive, logger: base}
	srv.auth = NewHTTPAuth(cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", srv.handleHealth)
	mux.HandleFunc("POST /api/v1/operations", srv.handleEnqueue)
	mux.HandleFunc("GET /api/v1/operations", srv.handleListOperations)
	mux.HandleFunc("GET /api/v1/operations/{id}", srv.handleGetOperation)
	mux.HandleFunc("DELETE /api/v1/operations/{id}", srv.handleCancel)
	mux.HandleFunc("POST /api/v1/operations/{id}/resubmit", srv.handleResubmit)
	mux.HandleFunc("POST /api/v1/operations/clear-completed", srv.handleClearCompleted)
	mux.HandleFunc("POST /api/v1/drain", srv.handleDrain)
	mux.HandleFunc("GET /api/v1/status", srv.handleStatus)
	mux.HandleFunc("PUT /api/v1/config", srv.handleConfigure)
	mux.HandleFunc("POST /api/v1/reconcile", srv.handleReconcile)
	mux.HandleFunc("GET /api/v1/history", srv.handleHistory)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.loggingMiddleware(srv.auth.Wrap(mux)),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      2 * time.Minute,
	}

	return srv
}

// Handler returns the fully wrapped handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.IncHTTP(endpoint)

		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
