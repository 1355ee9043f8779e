package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"edgeview/internal/core/domain"
	"edgeview/internal/core/services"
	httphandlers "edgeview/internal/handlers/http"
	"edgeview/internal/infrastructure/backup"
	"edgeview/internal/infrastructure/distributed"
	"edgeview/internal/infrastructure/middleware"
	"edgeview/internal/infrastructure/monitoring"
	"edgeview/internal/infrastructure/overlay"
	repositories "edgeview/internal/infrastructure/repositories"
	wsevents "edgeview/internal/infrastructure/signal"
	webrtcinfra "edgeview/internal/infrastructure/webrtc"
	"edgeview/internal/infrastructure/whep"
	"edgeview/pkg/circuitbreaker"
	"edgeview/pkg/config"
	"edgeview/pkg/logger"
	"edgeview/pkg/retry"
	"edgeview/pkg/tracing"
	"edgeview/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	healthInterval = 30 * time.Second
	healthTimeout  = 2 * time.Second
)

func main() {
	startTime := time.Now()

	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/edgeview/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}

	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.NewWithFormat(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracer, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "edgeview",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := monitoring.NewPrometheusCollector(registry)

	// Source store
	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	sourceRepo := repoFactory.CreateSourceRepository()

	var backupScheduler *backup.Scheduler
	if cfg.Backup.Enabled {
		storage, err := backup.NewFileStorage(cfg.Backup.Directory)
		if err != nil {
			log.Fatalw("failed to create backup storage", "error", err)
		}
		if cfg.Backup.RestoreOnEmpty {
			restored, err := backup.RestoreIfEmpty(ctx, storage, sourceRepo)
			if err != nil {
				log.Warnw("failed to restore sources from backup", "error", err)
			} else if restored {
				log.Infow("sources restored from backup", "directory", cfg.Backup.Directory)
			}
		}
		backupScheduler = backup.NewScheduler(sourceRepo, storage, backup.Config{
			Interval: cfg.Backup.Interval,
			Retain:   cfg.Backup.Retain,
		}, log)
	}

	sourceService := services.NewSourceService(ctx, sourceRepo, log)
	log.Infow("source store ready", "backend", repoFactory.Backend(), "sources", len(sourceService.List(ctx)))

	// Signaling
	var whepOpts []whep.Option
	whepOpts = append(whepOpts, whep.WithMetrics(collector))
	if cfg.WHEP.CircuitBreaker.Enabled {
		breakers := circuitbreaker.NewRegistry(circuitbreaker.Config{
			FailureThreshold:    cfg.WHEP.CircuitBreaker.FailureThreshold,
			SuccessThreshold:    cfg.WHEP.CircuitBreaker.SuccessThreshold,
			Timeout:             cfg.WHEP.CircuitBreaker.OpenTimeout,
			MaxRequestsHalfOpen: 1,
			IsFailure:           whep.CountsAgainstEndpoint,
		})
		breakers.OnStateChange(func(key string, from, to circuitbreaker.State) {
			log.Warnw("whep endpoint breaker changed state", "endpoint", key, "from", from.String(), "to", to.String())
		})
		whepOpts = append(whepOpts, whep.WithCircuitBreakers(breakers))
	}
	whepClient := whep.NewClient(whep.Config{
		Timeout:         cfg.WHEP.SignalingTimeout,
		FallbackEnabled: cfg.WHEP.FallbackEnabled,
		FallbackFrom:    cfg.WHEP.FallbackFrom,
		FallbackTo:      cfg.WHEP.FallbackTo,
	}, log, whepOpts...)

	// WebRTC configuration (including STUN/TURN from config)
	peerConfig := webrtcinfra.PeerConfig{}
	for _, s := range cfg.WebRTC.ICEServers {
		peerConfig.ICEServers = append(peerConfig.ICEServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	peerConfig.PortRange.Min = cfg.WebRTC.PortRange.Min
	peerConfig.PortRange.Max = cfg.WebRTC.PortRange.Max

	peers, err := webrtcinfra.NewPeerFactory(peerConfig, log)
	if err != nil {
		log.Fatalw("failed to create peer factory", "error", err)
	}

	sinks := webrtcinfra.NewSinkFactory(webrtcinfra.SinkConfig{
		RecordingEnabled: cfg.Recording.Enabled,
		RecordingDir:     filepath.Clean(cfg.Recording.Directory),
	}, collector, log)

	// Live events
	instanceID := uuid.NewString()
	eventServer := wsevents.NewEventServer(wsevents.Config{
		PingInterval: cfg.Events.PingInterval,
		SendBuffer:   cfg.Events.SendBuffer,
	}, log)
	relay := &eventRelay{ctx: ctx, server: eventServer, logger: log}
	if client := repoFactory.RedisClient(); client != nil && cfg.Events.RedisFanout {
		relay.bus = distributed.NewEventBus(client, cfg.Store.Namespace, instanceID, log)
	}
	observers := []webrtcinfra.StateObserver{}

	// Sessions
	metricsService := services.NewMetricsService()
	publishStats := func(prev domain.SessionState, snap domain.SessionSnapshot) {
		collector.UpdateSourceStats(metricsService.GetSourceStats(snap.SourceID))
	}
	observers = append(observers, metricsService.ObserveTransition, collector.RecordTransition, publishStats)
	if cfg.Events.Enabled {
		observers = append(observers, relay.sessionChanged)
	}
	sessionFactory := webrtcinfra.NewSessionFactory(
		peers,
		whepClient,
		sinks,
		webrtcinfra.SessionConfig{
			ReconnectDelay: cfg.Viewer.ReconnectDelay,
			MediaTimeout:   webrtcinfra.DefaultSessionConfig().MediaTimeout,
			PLIInterval:    cfg.WebRTC.PLIInterval,
		},
		log,
		observers...,
	)

	pool := services.NewSessionPool(cfg.Viewer.MaxConcurrency, sessionFactory, log)
	pool.OnChange(newPoolReporter(collector, pool).report)
	if cfg.Events.Enabled {
		pool.OnChange(func() { relay.poolChanged(pool.Slots(), pool.Layout()) })
		relay.listen()
	}

	ids, err := pool.Bootstrap(ctx, sourceService, cfg.Viewer.InitialSessions)
	if err != nil {
		log.Warnw("bootstrap incomplete", "error", err)
	}
	log.Infow("session pool bootstrapped", "slots", len(ids), "max_concurrency", cfg.Viewer.MaxConcurrency)

	if cfg.Viewer.AutoConnect && len(ids) > 0 {
		go func() {
			connectCtx, connectCancel := context.WithTimeout(ctx, cfg.Viewer.ConnectTimeout)
			defer connectCancel()
			n := pool.ConnectAll(connectCtx)
			log.Infow("initial sessions connected", "connected", n, "slots", len(ids))
		}()
	}

	// Detection overlay
	var (
		channel     *overlay.Channel
		overlayFeed httphandlers.DetectionFeed
		surface     httphandlers.Surface
	)
	if cfg.Overlay.Enabled {
		renderer := overlay.NewRenderer(cfg.Overlay.Width, cfg.Overlay.Height)
		follow := renderer.FollowActive(pool.Active)
		follow()
		pool.OnChange(follow)
		backoff := retry.DefaultConfig()
		backoff.Enabled = cfg.Overlay.Reconnect.Enabled
		backoff.InitialDelay = cfg.Overlay.Reconnect.InitialDelay
		backoff.MaxDelay = cfg.Overlay.Reconnect.MaxDelay
		backoff.Multiplier = cfg.Overlay.Reconnect.Multiplier

		channel = overlay.NewChannel(overlay.Config{
			Endpoint:       cfg.Overlay.Endpoint,
			Reconnect:      backoff,
			MaxMessageSize: cfg.Overlay.MaxMessageSizeBytes,
		}, overlay.NewDecoder(cfg.Overlay.ClassNames), renderer, collector, log)
		if err := channel.Open(ctx); err != nil {
			log.Fatalw("failed to open overlay channel", "error", err)
		}
		overlayFeed, surface = channel, renderer
	}

	// Health
	healthChecker := monitoring.NewHealthChecker()
	healthChecker.OnResult(collector.SetHealthCheck)
	healthChecker.AddSourceStoreCheck(sourceRepo, healthInterval, healthTimeout)
	healthChecker.AddPoolCheck(pool, healthInterval, healthTimeout)
	if client := repoFactory.RedisClient(); client != nil {
		healthChecker.AddRedisCheck(client, healthInterval, healthTimeout)
	}
	healthChecker.StartBackgroundChecks(ctx)

	if backupScheduler != nil {
		go backupScheduler.Start(ctx)
	}

	var gatherer prometheus.Gatherer
	if cfg.Monitoring.PrometheusEnabled {
		gatherer = registry
		log.Info("Prometheus metrics enabled")
	}

	// Configure Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(log),
		middleware.TracingMiddleware(),
		middleware.RequestLogger(logger.NewContextLogger(zapLogger)),
		middleware.ErrorHandlerMiddleware(log),
		middleware.NewHTTPRateLimitMiddleware(cfg),
	)

	httphandlers.NewSourceHandler(sourceService, pool).SetupRoutes(router)
	httphandlers.NewSessionHandler(pool, sourceService, metricsService, cfg.Viewer.ConnectTimeout, log).SetupRoutes(router)
	httphandlers.NewOverlayHandler(overlayFeed, surface).SetupRoutes(router)
	httphandlers.NewHealthHandler(healthChecker, gatherer).SetupRoutes(router)
	if cfg.Events.Enabled {
		httphandlers.NewEventsHandler(eventServer).SetupRoutes(router)
	}

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("Starting edgeview viewer", "address", cfg.Server.Address, "instance_id", instanceID)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Errorw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down edgeview viewer...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	} else {
		log.Info("Server shutdown gracefully")
	}

	if channel != nil {
		channel.Close()
	}
	pool.Close()
	eventServer.Close()
	if backupScheduler != nil {
		backupScheduler.Stop()
	}
	cancel()

	if err := repoFactory.Close(); err != nil {
		log.Errorw("Error closing repository factory", "error", err)
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error shutting down tracer", "error", err)
	}

	log.Infow("edgeview viewer stopped", "uptime", utils.Uptime(startTime))
}

// poolReporter pushes slot gauges after every pool change and drops the
// per-source series of sources that left the pool.
type poolReporter struct {
	collector *monitoring.PrometheusCollector
	pool      *services.SessionPool

	mu    sync.Mutex
	known map[domain.SourceID]struct{}
}

func newPoolReporter(c *monitoring.PrometheusCollector, p *services.SessionPool) *poolReporter {
	return &poolReporter{collector: c, pool: p, known: make(map[domain.SourceID]struct{})}
}

func (r *poolReporter) report() {
	slots := r.pool.Slots()
	r.collector.UpdatePool(slots)

	r.mu.Lock()
	defer r.mu.Unlock()
	current := make(map[domain.SourceID]struct{}, len(slots))
	for _, s := range slots {
		current[s.Source.ID] = struct{}{}
	}
	for id := range r.known {
		if _, ok := current[id]; !ok {
			r.collector.ForgetSource(id)
		}
	}
	r.known = current
}
