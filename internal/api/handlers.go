package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	healthStatus := map[string]string{"collector": "healthy"}
	healthy := true

	if s.runStore != nil {
		if err := s.runStore.Ping(ctx); err != nil {
			healthStatus["postgres"] = "unhealthy"
			healthy = false
			s.logger.Error("health check failed for postgres", zap.Error(err))
		} else {
			healthStatus["postgres"] = "healthy"
		}
	}

	if s.redisKV != nil {
		if err := s.redisKV.Ping(ctx); err != nil {
			healthStatus["redis"] = "unhealthy"
			healthy = false
			s.logger.Error("health check failed for redis", zap.Error(err))
		} else {
			healthStatus["redis"] = "healthy"
		}
	}

	if !healthy {
		s.respondWithJSON(w, http.StatusServiceUnavailable, healthStatus)
		return
	}
	s.respondWithJSON(w, http.StatusOK, healthStatus)
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	run := s.latestRun
	s.mu.RUnlock()

	if run != nil {
		summary := run.Summarize()
		s.respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"started_at":  run.StartedAt,
			"finished_at": run.FinishedAt,
			"positive":    summary.Positive,
			"negative":    summary.Negative,
			"unknown":     summary.Unknown,
			"failed":      summary.Failed,
		})
		return
	}

	if s.runStore != nil {
		stored, err := s.runStore.LatestRun(r.Context())
		if err == nil {
			s.respondWithJSON(w, http.StatusOK, stored)
			return
		}
		if err.Error() != "not_found" {
			s.logger.Error("failed to load latest run", zap.Error(err))
			s.respondWithError(w, http.StatusInternalServerError, "Could not retrieve run status")
			return
		}
	}

	s.respondWithError(w, http.StatusNotFound, "No run recorded yet")
}

// --- Helper Functions ---

func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, map[string]string{"error": message})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
