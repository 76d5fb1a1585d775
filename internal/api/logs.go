package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	lines := parseQueryInt(r, "lines", 0)
	days := parseQueryInt(r, "days", 0)

	entries, err := s.logs.Get(id, lines, days)
	if err != nil {
		httpErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": entries})
}

func (s *Server) handleClearLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	days := parseQueryInt(r, "days", 0)

	if err := s.logs.Clear(id, days); err != nil {
		httpErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "logs cleared"})
}

func parseQueryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}
