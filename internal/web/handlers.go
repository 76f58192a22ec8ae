package web

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		http.Error(w, "No live session", http.StatusNotFound)
		return
	}
	s.writeJSON(w, s.status.Status())
}

func (s *Server) handleEpisodes(w http.ResponseWriter, r *http.Request) {
	if s.episodeRepo == nil {
		http.Error(w, "Episode storage not configured", http.StatusNotFound)
		return
	}
	episodes, err := s.episodeRepo.ListEpisodes(r.Context(), listLimit(r))
	if err != nil {
		s.logger.Error("Failed to list episodes", zap.Error(err))
		http.Error(w, "Failed to list episodes", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, episodes)
}

func (s *Server) handleCycles(w http.ResponseWriter, r *http.Request) {
	if s.journalRepo == nil {
		http.Error(w, "Journal not configured", http.StatusNotFound)
		return
	}
	cycles, err := s.journalRepo.ListCycles(r.Context(), listLimit(r))
	if err != nil {
		s.logger.Error("Failed to list cycles", zap.Error(err))
		http.Error(w, "Failed to list cycles", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, cycles)
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	if s.journalRepo == nil {
		http.Error(w, "Journal not configured", http.StatusNotFound)
		return
	}
	orders, err := s.journalRepo.ListOrders(r.Context(), listLimit(r))
	if err != nil {
		s.logger.Error("Failed to list orders", zap.Error(err))
		http.Error(w, "Failed to list orders", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, orders)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func listLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
