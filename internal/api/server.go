package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/user/seller-collector/internal/config"
	"github.com/user/seller-collector/internal/domain"
	"github.com/user/seller-collector/internal/storage"
)

// Server exposes health, metrics and run-status endpoints while a
// collection job executes.
type Server struct {
	config     *config.Config
	router     http.Handler
	httpServer *http.Server
	runStore   *storage.RunStore
	redisKV    *storage.RedisKV
	logger     *zap.Logger

	mu        sync.RWMutex
	latestRun *domain.CollectionRun
}

// NewServer wires the HTTP surface. runStore and redisKV may be nil when
// the corresponding backend is not configured.
func NewServer(cfg *config.Config, runStore *storage.RunStore, redisKV *storage.RedisKV, logger *zap.Logger) *Server {
	s := &Server{
		config:   cfg,
		runStore: runStore,
		redisKV:  redisKV,
		logger:   logger,
	}
	s.router = s.setupRouter()
	return s
}

// SetLatestRun publishes the most recent in-process run for /api/run.
func (s *Server) SetLatestRun(run *domain.CollectionRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latestRun = run
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%s", s.config.ServerPort),
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
