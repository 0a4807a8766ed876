// Package server exposes the compliance workflow over HTTP: upload a
// regulation set, upload a proposal document, run the check, export the
// report. Workflow state is per session; settings and run history
// persist as JSON files next to the server.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"arccs/internal/assessor"
	"arccs/internal/history"
	"arccs/internal/session"
)

// Server holds the shared state behind the HTTP surface.
type Server struct {
	log          *zap.Logger
	sessions     *session.Store
	history      *history.Store
	settingsPath string
	hub          *hub

	// newAssessor builds the backend for one run. Tests swap it for a
	// double so no handler test touches the network.
	newAssessor func(providerModel string, cfg assessor.ModelConfig) (assessor.Assessor, error)
}

// New wires a Server. historyPath and settingsPath are JSON file paths;
// missing files behave as empty/defaults.
func New(log *zap.Logger, settingsPath, historyPath string) *Server {
	return &Server{
		log:          log,
		sessions:     session.NewStore(),
		history:      history.NewStore(historyPath),
		settingsPath: settingsPath,
		hub:          newHub(),
		newAssessor: func(providerModel string, cfg assessor.ModelConfig) (assessor.Assessor, error) {
			return assessor.New(providerModel, cfg)
		},
	}
}

// Routes returns the chi router for the full API.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/stream-logs", s.handleStreamLogs)

	r.Post("/upload-regulations", s.handleUploadRegulations)
	r.Post("/upload-proposal", s.handleUploadProposal)
	r.Post("/run-compliance-check", s.handleRunCheck)
	r.Get("/export-report", s.handleExportReport)
	r.Post("/reset", s.handleReset)

	r.Route("/api", func(r chi.Router) {
		r.Get("/settings", s.handleGetSettings)
		r.Post("/settings", s.handleUpdateSettings)
		r.Get("/settings/check-api-key", s.handleCheckAPIKey)

		r.Get("/history", s.handleListHistory)
		r.Post("/history/clear", s.handleClearHistory)
		r.Get("/history/{id}", s.handleGetHistory)
		r.Delete("/history/{id}", s.handleDeleteHistory)
	})

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// sessionID extracts the client's session id from the query string or
// form, falling back to empty (a fresh session is created on demand).
func (s *Server) sessionID(r *http.Request) string {
	if id := r.URL.Query().Get("session_id"); id != "" {
		return id
	}
	return r.FormValue("session_id")
}

func (s *Server) respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encoding response", zap.Error(err))
	}
}

// fail writes the error envelope every endpoint shares.
func (s *Server) fail(w http.ResponseWriter, status int, message string) {
	s.respond(w, status, map[string]any{"success": false, "message": message})
}
