package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"arccs/internal/config"
	"arccs/internal/history"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := config.Load(s.settingsPath)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respond(w, http.StatusOK, settings)
}

// handleUpdateSettings merges the posted fields over the stored settings
// and persists the result. Partial updates are the norm.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := config.Load(s.settingsPath)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid settings payload")
		return
	}
	if err := settings.Validate(); err != nil {
		s.fail(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := settings.Save(s.settingsPath); err != nil {
		s.fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"success": true, "settings": settings})
}

// handleCheckAPIKey reports whether the credential for the configured
// provider is present in the environment. The key itself is never
// returned.
func (s *Server) handleCheckAPIKey(w http.ResponseWriter, r *http.Request) {
	settings, err := config.Load(s.settingsPath)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err.Error())
		return
	}

	provider := settings.Model
	if i := strings.IndexByte(provider, ':'); i >= 0 {
		provider = provider[:i]
	}
	envVar := "OPENAI_API_KEY"
	if provider == "anthropic" {
		envVar = "ANTHROPIC_API_KEY"
	}

	s.respond(w, http.StatusOK, map[string]any{
		"provider":   provider,
		"env":        envVar,
		"configured": os.Getenv(envVar) != "",
	})
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.history.List()
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respond(w, http.StatusOK, entries)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, http.StatusBadRequest, "invalid history id")
		return
	}
	entry, err := s.history.Get(id)
	if errors.Is(err, history.ErrNotFound) {
		s.fail(w, http.StatusNotFound, "history entry not found")
		return
	}
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respond(w, http.StatusOK, entry)
}

func (s *Server) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, http.StatusBadRequest, "invalid history id")
		return
	}
	switch err := s.history.Delete(id); {
	case errors.Is(err, history.ErrNotFound):
		s.fail(w, http.StatusNotFound, "history entry not found")
	case err != nil:
		s.fail(w, http.StatusInternalServerError, err.Error())
	default:
		s.respond(w, http.StatusOK, map[string]any{"success": true})
	}
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.history.Clear(); err != nil {
		s.fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"success": true})
}
