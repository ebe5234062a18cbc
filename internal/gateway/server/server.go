package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/linkflow-ai/notifyhub/internal/gateway/handlers"
	"github.com/linkflow-ai/notifyhub/internal/platform/config"
	"github.com/linkflow-ai/notifyhub/internal/platform/health"
	"github.com/linkflow-ai/notifyhub/internal/platform/logger"
	"github.com/linkflow-ai/notifyhub/internal/platform/metrics"
	"github.com/linkflow-ai/notifyhub/internal/platform/middleware"
)

type Server struct {
	config     *config.Config
	logger     logger.Logger
	metrics    *metrics.Metrics
	hub        *handlers.Hub
	health     *health.Handler
	router     *mux.Router
	httpServer *http.Server
	cancel     context.CancelFunc
}

type Option func(*Server)

func WithConfig(cfg *config.Config) Option {
	return func(s *Server) {
		s.config = cfg
	}
}

func WithLogger(logger logger.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

func New(opts ...Option) (*Server, error) {
	s := &Server{}

	for _, opt := range opts {
		opt(s)
	}

	if s.config == nil {
		return nil, errors.New("config is required")
	}
	if s.logger == nil {
		s.logger = logger.NewNop()
	}

	s.hub = handlers.NewHub(s.logger.Named("hub"))
	s.health = health.NewHandler(s.config.Service.Name, s.config.Version)
	s.health.AddCheck("hub", s.hub.Health)
	s.setupHTTPServer()

	var ctx context.Context
	ctx, s.cancel = context.WithCancel(context.Background())
	go s.hub.Run(ctx)

	return s, nil
}

func (s *Server) setupHTTPServer() {
	router := mux.NewRouter()

	router.Use(logger.HTTPMiddleware(s.logger))
	if s.metrics != nil {
		router.Use(s.metrics.HTTPMetricsMiddleware())
		router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	router.HandleFunc("/health/live", s.health.LivenessHandler()).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", s.health.ReadinessHandler()).Methods(http.MethodGet)
	router.HandleFunc("/gateway/info", handlers.Info(s.hub, s.config.Version)).Methods(http.MethodGet)

	router.Handle("/ws", s.hub)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(
		middleware.SecurityHeaders(),
		middleware.RequestSizeLimit(s.config.Gateway.MaxBodySize),
		middleware.APIKeyAuth("X-API-Key", s.config.Gateway.PushAPIKey),
	)
	api.Handle("/push", handlers.NewPushHandler(s.hub, s.logger)).Methods(http.MethodPost)

	s.router = router
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.HTTP.Port),
		Handler:      router,
		ReadTimeout:  s.config.HTTP.ReadTimeout,
		WriteTimeout: s.config.HTTP.WriteTimeout,
		IdleTimeout:  s.config.HTTP.IdleTimeout,
	}
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", "port", s.config.HTTP.Port)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server")
	s.cancel()
	return s.httpServer.Shutdown(ctx)
}
