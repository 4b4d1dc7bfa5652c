package apihttp

import (
	"net/http"
	"strconv"
	"strings"

	"voicestream/internal/domain"
)

func (s *Server) handleListenHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history_unavailable", "listen history is not configured")
		return
	}

	limit := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	positions, err := s.history.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "repository_error", err.Error())
		return
	}
	if positions == nil {
		positions = []domain.ListenPosition{}
	}
	writeJSON(w, http.StatusOK, positions)
}

func (s *Server) handleListenHistoryByID(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history_unavailable", "listen history is not configured")
		return
	}
	id := domain.EntryID(strings.TrimPrefix(r.URL.Path, "/listen-history/"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "entry id is required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		p, err := s.history.Get(r.Context(), id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	case http.MethodDelete:
		if err := s.history.Delete(r.Context(), id); err != nil {
			writeEngineError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET or DELETE")
	}
}
