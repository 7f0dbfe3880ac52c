package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meetsignal/internal/core/ports"
	"meetsignal/internal/core/services"
	httphandlers "meetsignal/internal/handlers/http"
	"meetsignal/internal/infrastructure/middleware"
	"meetsignal/internal/infrastructure/monitoring"
	"meetsignal/internal/infrastructure/repositories"
	wsgateway "meetsignal/internal/infrastructure/signal"
	"meetsignal/pkg/config"
	"meetsignal/pkg/logger"
	"meetsignal/pkg/tracing"
	"meetsignal/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

func main() {
	// Try multiple config paths
	configPaths := []string{
		os.Getenv("MEETSIGNAL_CONFIG"),
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/meetsignal/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error
	for _, path := range configPaths {
		if path == "" {
			continue
		}
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level)
	defer func() { _ = zapLogger.Sync() }()
	log := zapLogger.Sugar()
	if err != nil {
		log.Warnw("could not load config, using defaults", "error", err)
	}

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	instanceID := utils.GenerateID("signal")
	if host, err := os.Hostname(); err == nil {
		instanceID = host + "/" + instanceID
	}

	repoFactory := repositories.NewRepositoryFactory(cfg, log)
	participants := repoFactory.CreateParticipantRegistry()
	meetings := repoFactory.CreateSessionDirectory()
	eventPublisher := repoFactory.CreateEventPublisher(instanceID)

	var metrics ports.SignalingMetrics
	var gatherer prometheus.Gatherer
	if cfg.Monitoring.PrometheusEnabled {
		metrics = monitoring.NewPrometheusCollector(prometheus.DefaultRegisterer)
		gatherer = prometheus.DefaultGatherer
		log.Info("Prometheus metrics enabled")
	} else {
		metrics = services.NewMetricsService()
	}

	dispatcher := services.NewDispatcher(cfg.Signal.DispatchQueue, log)
	dispatcher.OnPanic(func(*services.PanicError) { metrics.HandlerPanic() })

	coreCtx, stopCore := context.WithCancel(context.Background())
	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		dispatcher.Run(coreCtx)
	}()

	hub := services.NewSignalingHub(dispatcher, participants, meetings, eventPublisher, metrics,
		services.HubConfig{Presence: services.PresenceConfig{
			MaxDisplayName: cfg.Meetings.MaxDisplayName,
			MaxMeetingID:   cfg.Meetings.MaxMeetingID,
			ICEServers:     cfg.WebRTCICEServers(),
		}},
		zapLogger,
	)
	go hub.RunSweeper(coreCtx, cfg.Meetings.SweepInterval)

	identity := services.NewIdentityService(cfg.Auth.Mode, cfg.Auth.JWTSecret)
	wsServer := wsgateway.NewWebSocketServer(hub, wsgateway.ServerConfigFromConfig(cfg),
		func() *rate.Limiter { return middleware.NewConnectionLimiter(cfg) },
		log,
	)

	checker := monitoring.NewHealthChecker()
	checker.AddDispatcherCheck(func(ctx context.Context) error {
		_, err := hub.Stats(ctx)
		return err
	}, 30*time.Second, 2*time.Second)
	if client := repoFactory.RedisClient(); client != nil {
		checker.AddRedisCheck(client, 30*time.Second, 2*time.Second)
	}
	checker.StartBackgroundChecks(coreCtx)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httphandlers.NewRouter(
		httphandlers.RouterConfig{
			Gatherer:        gatherer,
			TracingEnabled:  cfg.Tracing.Enabled,
			AuthMode:        cfg.Auth.Mode,
			HTTPRateLimiter: middleware.NewHTTPRateLimitMiddleware(cfg),
		},
		httphandlers.NewMeetingHandler(hub, cfg.WebRTCICEServers(), cfg.WebRTC.ICECandidatePoolSize),
		httphandlers.NewHealthHandler(hub, checker),
		log,
		middleware.IdentityMiddleware(identity, log),
		wsServer.Handle,
	)

	srv := &http.Server{
		Addr:              cfg.Signal.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting meetsignal signaling server",
			"address", cfg.Signal.Address,
			"instance_id", instanceID,
			"auth_mode", identity.Mode(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Errorw("server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Signal.ShutdownTimeout)
	defer shutdownCancel()

	// Stop accepting upgrades first, then close live websockets while the dispatcher is still
	// running so every disconnect goes through the normal cleanup path.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
		_ = srv.Close()
	}
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		log.Warnw("websocket connections did not close in time", "error", err)
	}

	stopCore()
	<-dispatcherDone

	if err := eventPublisher.Close(); err != nil {
		log.Errorw("error closing event publisher", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error shutting down tracer provider", "error", err)
	}
	if err := repoFactory.Close(); err != nil {
		log.Errorw("error closing repository factory", "error", err)
	}

	log.Info("meetsignal signaling server stopped")
}
