package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vitos/crypto_trade_rl/internal/domain"
	"github.com/vitos/crypto_trade_rl/internal/usecase"
	"go.uber.org/zap"
)

// StatusProvider is satisfied by the live session.
type StatusProvider interface {
	Status() usecase.SessionStatus
}

type Server struct {
	router      *http.ServeMux
	server      *http.Server
	status      StatusProvider
	episodeRepo domain.EpisodeRepository
	journalRepo domain.JournalRepository
	logger      *zap.Logger
}

// NewServer builds the read-only status server. status may be nil when no live
// session runs in the process.
func NewServer(
	port int,
	status StatusProvider,
	episodeRepo domain.EpisodeRepository,
	journalRepo domain.JournalRepository,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:      http.NewServeMux(),
		status:      status,
		episodeRepo: episodeRepo,
		journalRepo: journalRepo,
		logger:      logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /status", s.handleStatus)
	s.router.HandleFunc("GET /episodes", s.handleEpisodes)
	s.router.HandleFunc("GET /cycles", s.handleCycles)
	s.router.HandleFunc("GET /orders", s.handleOrders)
	s.router.Handle("GET /metrics", promhttp.Handler())
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
