// Package server exposes the backend over a local HTTP API with a websocket
// notification stream.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/sensei/internal/backend"
	"github.com/ChamsBouzaiene/sensei/internal/logging"
	"github.com/ChamsBouzaiene/sensei/internal/metrics"
)

// Server serves the local API.
type Server struct {
	backend *backend.Backend
	logger  *zap.Logger
	srv     *http.Server
}

// New creates a Server.
func New(b *backend.Backend, logger *zap.Logger) *Server {
	return &Server{backend: b, logger: logging.OrNop(logger)}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("GET /api/projects", s.handleListProjects)
	mux.HandleFunc("POST /api/projects", s.handleCreateProject)
	mux.HandleFunc("GET /api/projects/{id}", s.handleGetProject)
	mux.HandleFunc("DELETE /api/projects/{id}", s.handleDeleteProject)
	mux.HandleFunc("GET /api/projects/{id}/files", s.handleProjectFiles)
	mux.HandleFunc("GET /api/projects/{id}/documents/{kind}", s.handleReadDocument)
	mux.HandleFunc("PUT /api/projects/{id}/documents/{kind}", s.handleWriteDocument)
	mux.HandleFunc("GET /api/projects/{id}/search", s.handleSearch)
	mux.HandleFunc("GET /api/projects/{id}/source", s.handleReadSource)
	mux.HandleFunc("PUT /api/projects/{id}/source", s.handleSaveSource)
	mux.HandleFunc("POST /api/projects/{id}/source", s.handleCreateSource)
	mux.HandleFunc("DELETE /api/projects/{id}/source", s.handleDeleteSource)
	mux.HandleFunc("POST /api/projects/{id}/source/move", s.handleMoveSource)

	mux.HandleFunc("POST /api/projects/{id}/requirement", s.handleRequirement)
	mux.HandleFunc("POST /api/projects/{id}/requirement/{session}/finish", s.handleFinishRequirement)
	mux.HandleFunc("POST /api/projects/{id}/generate", s.handleGenerate)
	mux.HandleFunc("POST /api/projects/{id}/generate/{session}/finish", s.handleFinishCodegen)
	mux.HandleFunc("GET /api/sessions/{id}/messages", s.handleSessionMessages)

	mux.HandleFunc("GET /api/config", s.handleGetConfig)
	mux.HandleFunc("PUT /api/config", s.handleSaveConfig)
	mux.HandleFunc("POST /api/config/test", s.handleTestConnection)
	mux.HandleFunc("GET /api/providers", s.handleProviders)
	mux.HandleFunc("GET /api/runs", s.handleRuns)
	mux.HandleFunc("GET /api/remote/files", s.handleRemoteFiles)
	mux.HandleFunc("GET /api/remote/file", s.handleRemoteFile)

	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.Handle("GET /metrics", metrics.Handler())

	return logging.Middleware(s.logger)(metrics.Middleware(corsMiddleware(mux)))
}

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting API server", zap.String("addr", addr))
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("shutting down API server")
		return s.srv.Shutdown(shutdownCtx)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Debug("failed to write response", zap.Error(err))
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, err error) {
	kind := backend.ErrorKind(err)
	if status == 0 {
		status = statusFor(kind)
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("API error", zap.Error(err))
	}
	s.jsonResponse(w, status, map[string]string{"error": err.Error(), "kind": kind})
}

// statusFor maps an error kind to an HTTP status.
func statusFor(kind string) int {
	switch kind {
	case "not_found":
		return http.StatusNotFound
	case "invalid_request":
		return http.StatusBadRequest
	case "conflict":
		return http.StatusConflict
	case "pending":
		return http.StatusAccepted
	case "network", "protocol", "parse", "empty_response":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
