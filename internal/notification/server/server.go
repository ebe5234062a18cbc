package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"

	"github.com/linkflow-ai/notifyhub/internal/notification/adapters/http/handlers"
	"github.com/linkflow-ai/notifyhub/internal/notification/adapters/realtime"
	"github.com/linkflow-ai/notifyhub/internal/notification/adapters/repository/kv"
	"github.com/linkflow-ai/notifyhub/internal/notification/adapters/sound"
	"github.com/linkflow-ai/notifyhub/internal/notification/app/service"
	"github.com/linkflow-ai/notifyhub/internal/notification/app/simulator"
	"github.com/linkflow-ai/notifyhub/internal/notification/app/store"
	"github.com/linkflow-ai/notifyhub/internal/notification/app/view"
	"github.com/linkflow-ai/notifyhub/internal/notification/domain/model"
	"github.com/linkflow-ai/notifyhub/internal/platform/config"
	"github.com/linkflow-ai/notifyhub/internal/platform/health"
	"github.com/linkflow-ai/notifyhub/internal/platform/logger"
	"github.com/linkflow-ai/notifyhub/internal/platform/messaging/kafka"
	"github.com/linkflow-ai/notifyhub/internal/platform/metrics"
	"github.com/linkflow-ai/notifyhub/internal/platform/middleware"
	"github.com/linkflow-ai/notifyhub/internal/platform/resilience"
	"github.com/linkflow-ai/notifyhub/internal/platform/response"
	"github.com/linkflow-ai/notifyhub/internal/platform/storage"
	"github.com/linkflow-ai/notifyhub/internal/platform/telemetry"
)

type Server struct {
	config     *config.Config
	logger     logger.Logger
	metrics    *metrics.Metrics
	telemetry  *telemetry.Telemetry
	storage    storage.Store
	player     sound.Player
	publisher  *kafka.EventPublisher
	transport  *realtime.Transport
	service    *service.NotificationService
	store      *store.Store
	toasts     *view.ToastManager
	simulator  *simulator.Simulator
	health     *health.Handler
	router     *mux.Router
	httpServer *http.Server

	unsubscribeToasts func()
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

// WithStorage replaces the configured storage backend
func WithStorage(store storage.Store) Option {
	return func(s *Server) {
		s.storage = store
	}
}

// WithSoundPlayer replaces the configured sound output
func WithSoundPlayer(p sound.Player) Option {
	return func(s *Server) {
		s.player = p
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

	if err := s.initialize(); err != nil {
		s.closeResources()
		return nil, fmt.Errorf("failed to initialize server: %w", err)
	}

	return s, nil
}

func (s *Server) initialize() error {
	cfg := s.config
	ctx := context.Background()

	if cfg.Telemetry.MetricsEnabled {
		s.metrics = metrics.NewMetrics("notifyhub")
	}

	tel, err := telemetry.New(telemetry.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		JaegerEndpoint: cfg.Telemetry.JaegerEndpoint,
		TracingEnabled: cfg.Telemetry.TracingEnabled,
	})
	if err != nil {
		return err
	}
	s.telemetry = tel

	if s.storage == nil {
		st, err := storage.Open(storage.Config{
			Backend:   cfg.Storage.Backend,
			Path:      cfg.Storage.Path,
			KeyPrefix: cfg.Storage.KeyPrefix,
			Redis: storage.RedisConfig{
				Addr:         cfg.Redis.Addr(),
				Password:     cfg.Redis.Password,
				DB:           cfg.Redis.DB,
				PoolSize:     cfg.Redis.PoolSize,
				MinIdleConns: cfg.Redis.MinIdleConns,
				DialTimeout:  cfg.Redis.DialTimeout,
				ReadTimeout:  cfg.Redis.ReadTimeout,
				WriteTimeout: cfg.Redis.WriteTimeout,
			},
		})
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		s.storage = st
		if strings.EqualFold(cfg.Storage.Backend, storage.BackendRedis) {
			s.storage = storage.Guard(st, resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
				Name:        "storage",
				MaxFailures: cfg.Storage.BreakerFailures,
				Timeout:     cfg.Storage.BreakerTimeout,
				OnStateChange: func(name string, from, to resilience.State) {
					s.logger.Warn("Storage circuit breaker changed state", "breaker", name, "from", from.String(), "to", to.String())
				},
			}))
		}
	}

	userID := cfg.Notification.UserID
	prefs := kv.NewPreferenceStore(s.storage, userID, s.logger.Named("preferences"))
	list := kv.NewListStore(s.storage, userID, s.logger.Named("notifications"))
	tooltips := kv.NewTooltipStore(s.storage, userID, s.logger.Named("tooltips"))

	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := kafka.NewEventPublisher(&kafka.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		}, s.logger.Named("kafka"))
		if err != nil {
			s.logger.Warn("Failed to initialize Kafka", "error", err)
		} else {
			s.publisher = publisher
		}
	}

	if s.player == nil && cfg.Sound.Enabled {
		s.player = sound.NewOtoPlayer(sound.Bank{
			sound.SoundDefault:     cfg.Sound.Default,
			sound.SoundAchievement: cfg.Sound.Achievement,
			sound.SoundUrgent:      cfg.Sound.Urgent,
		}, cfg.Sound.Volume)
	}

	svcOpts := []service.Option{
		service.WithTracer(s.telemetry.Tracer()),
		service.WithProduction(cfg.Service.IsProduction()),
	}
	if s.metrics != nil {
		svcOpts = append(svcOpts, service.WithMetrics(s.metrics))
	}
	if s.player != nil {
		svcOpts = append(svcOpts, service.WithSoundPlayer(s.player))
	}
	if s.publisher != nil {
		svcOpts = append(svcOpts, service.WithEventPublisher(s.publisher))
	}
	if cfg.Realtime.URL != "" {
		endpoint, err := pushURL(cfg.Realtime.URL, userID)
		if err != nil {
			return err
		}
		trOpts := []realtime.Option{
			realtime.WithReconnect(cfg.Realtime.ReconnectDelay, cfg.Realtime.MaxAttempts),
			realtime.WithLogger(s.logger.Named("realtime")),
		}
		if s.metrics != nil {
			trOpts = append(trOpts, realtime.WithMetrics(s.metrics))
		}
		s.transport = realtime.New(endpoint, trOpts...)
		svcOpts = append(svcOpts, service.WithTransport(s.transport))
	} else {
		s.logger.Info("No push channel configured, running offline")
	}

	s.service = service.NewNotificationService(ctx, prefs, s.logger.Named("service"), svcOpts...)

	storeOpts := []store.Option{store.WithMaxRetained(cfg.Notification.MaxRetained)}
	if s.metrics != nil {
		storeOpts = append(storeOpts, store.WithMetrics(s.metrics))
	}
	s.store = store.New(s.service, list, s.logger.Named("store"), storeOpts...)
	s.store.Mount(ctx)

	s.toasts = view.NewToastManager(s.service,
		view.WithToastDuration(cfg.Notification.ToastDuration),
		view.WithStackSize(cfg.Notification.ToastStackSize),
	)
	s.unsubscribeToasts = s.service.Subscribe(func(n model.Notification) { s.toasts.Show(n) })

	if cfg.Simulator.Schedule != "" {
		s.simulator = simulator.New(s.service, s.logger.Named("simulator"))
	}

	s.health = health.NewHandler(cfg.Service.Name, cfg.Version)
	s.health.AddCheck("storage", s.storage.Health)
	if s.transport != nil {
		s.health.AddOptionalCheck("push", func(context.Context) error {
			if !s.transport.IsOpen() {
				return realtime.ErrNotConnected
			}
			return nil
		})
	}

	s.setupHTTPServer(tooltips)
	return nil
}

// pushURL scopes the push channel to userID
func pushURL(raw, userID string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid realtime url: %w", err)
	}
	if userID != "" {
		q := u.Query()
		q.Set("userId", userID)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (s *Server) setupHTTPServer(tooltips *kv.TooltipStore) {
	router := mux.NewRouter()

	router.Use(logger.HTTPMiddleware(s.logger))
	router.Use(s.recoveryMiddleware)
	if s.metrics != nil {
		router.Use(s.metrics.HTTPMetricsMiddleware())
		router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	router.HandleFunc("/health/live", s.health.LivenessHandler()).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", s.health.ReadinessHandler()).Methods(http.MethodGet)

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(middleware.SecurityHeaders())
	if !s.config.Auth.Disabled {
		auth := middleware.NewAuthMiddleware([]byte(s.config.Auth.JWTSecret))
		apiRouter.Use(auth.Middleware)
	}

	handlers.NewNotificationHandler(s.service, s.store, s.toasts, tooltips, s.logger).
		RegisterRoutes(apiRouter)

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

// Run connects the push channel and starts the simulator without serving
// HTTP
func (s *Server) Run(ctx context.Context) error {
	s.service.Start(ctx)

	if s.simulator != nil {
		if err := s.simulator.Start(s.config.Simulator.Schedule); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) Start() error {
	if err := s.Run(context.Background()); err != nil {
		return err
	}

	s.logger.Info("Starting HTTP server", "port", s.config.HTTP.Port)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if s.simulator != nil {
		select {
		case <-s.simulator.Stop().Done():
		case <-ctx.Done():
		}
	}

	s.closeResources()
	return nil
}

// closeResources releases everything in reverse construction order
func (s *Server) closeResources() {
	if s.unsubscribeToasts != nil {
		s.unsubscribeToasts()
	}
	if s.toasts != nil {
		s.toasts.Close()
	}
	if s.store != nil {
		s.store.Unmount()
	}
	if s.service != nil {
		if err := s.service.Close(); err != nil {
			s.logger.Warn("Notification service close error", "error", err)
		}
	}
	if s.publisher != nil {
		_ = s.publisher.Close()
	}
	if s.storage != nil {
		_ = s.storage.Close()
	}
	if s.telemetry != nil {
		_ = s.telemetry.Close()
	}
	_ = s.logger.Sync()
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered", "error", err, "path", r.URL.Path)
				response.Error(w, response.ErrInternal)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
