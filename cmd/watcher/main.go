package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpAdapter "github.com/lorrc/service-desk-notifier/internal/adapters/primary/http"
	mw "github.com/lorrc/service-desk-notifier/internal/adapters/primary/http/middleware"
	"github.com/lorrc/service-desk-notifier/internal/adapters/primary/websocket"
	"github.com/lorrc/service-desk-notifier/internal/adapters/secondary/logchannel"
	"github.com/lorrc/service-desk-notifier/internal/adapters/secondary/mongodb"
	"github.com/lorrc/service-desk-notifier/internal/adapters/secondary/postgres"
	"github.com/lorrc/service-desk-notifier/internal/auth"
	"github.com/lorrc/service-desk-notifier/internal/config"
	"github.com/lorrc/service-desk-notifier/internal/core/ports"
	"github.com/lorrc/service-desk-notifier/internal/core/services"
	"github.com/lorrc/service-desk-notifier/internal/infrastructure/logging"
	"github.com/lorrc/service-desk-notifier/internal/infrastructure/metrics"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize Structured Logger
	logger := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      os.Stdout,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
	})

	logger.Info("starting service",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
		"config", cfg.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("service stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// 3. Connect the stores
	mongoClient, err := mongodb.Connect(ctx, cfg.Mongo)
	if err != nil {
		return err
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := mongoClient.Disconnect(disconnectCtx); err != nil {
			logger.Warn("mongo disconnect failed", "error", err)
		}
	}()
	logger.Info("mongo connection established",
		"database", cfg.Mongo.Database,
		"collection", cfg.Mongo.TicketCollection,
	)

	feed, err := mongodb.NewTicketFeed(mongoClient, cfg.Mongo)
	if err != nil {
		return err
	}

	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(cfg.Database.URL); err != nil {
			return err
		}
		logger.Info("directory migrations applied")
	}

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info("database connection established")

	directory := postgres.NewDirectoryRepository(pool, logger)
	recorder := metrics.NewRecorder()

	// 4. Notification channel
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()

	var (
		channel   ports.NotificationChannel
		hub       *websocket.Hub
		wsHandler http.Handler
		limiter   *mw.RateLimiter
	)
	switch cfg.Channel.Kind {
	case config.ChannelWebSocket:
		hub = websocket.NewHub(logger)
		go hub.Run(hubCtx)

		limiterCfg := mw.DefaultRateLimiterConfig()
		limiterCfg.RequestsPerSecond = cfg.WebSocket.ConnectRPS
		limiterCfg.BurstSize = cfg.WebSocket.ConnectBurst
		limiter = mw.NewRateLimiter(hubCtx, limiterCfg)
		tokenManager := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.TokenTTL)
		wsHandler = httpAdapter.NewWebSocketHandler(hub, tokenManager, cfg, logger)
		channel = hub
	default:
		channel = logchannel.New(logger)
	}

	// 5. Dependency Injection (Wiring the Hexagon)
	resolver := services.NewRecipientResolver(directory, directory)
	dispatcher := services.NewFanoutDispatcher(channel, recorder, logger, services.DispatcherConfig{
		Concurrency: cfg.Dispatch.Concurrency,
		SendTimeout: cfg.Dispatch.SendTimeout,
	})
	notifier := services.NewLifecycleNotifier(directory, resolver, dispatcher, logger)
	router := services.NewEventRouter(notifier, dispatcher, recorder, logger)

	// 6. Operational server
	healthHandler := httpAdapter.NewHealthHandler(map[string]httpAdapter.HealthChecker{
		"mongo": httpAdapter.HealthCheckFunc(func(ctx context.Context) error {
			return mongodb.Ping(ctx, mongoClient, 2*time.Second)
		}),
		"postgres": directory,
	}, runtimeStatus{hub: hub, channel: cfg.Channel.Kind}, cfg.App.Version)

	srv := &http.Server{
		Addr: cfg.Server.Port,
		Handler: httpAdapter.NewRouter(httpAdapter.RouterConfig{
			Health:         healthHandler,
			Metrics:        recorder.Handler(),
			WebSocket:      wsHandler,
			ConnectLimiter: limiter,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Logger:         logger,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// 7. Start consuming the ticket change feed
	watcher := services.NewTicketWatcher(ctx, feed, router, recorder, logger, services.WatcherConfig{
		Consumer: services.FeedConsumerConfig{PollWait: cfg.Mongo.PollWait},
	})
	logger.Info("ticket watcher started", "channel", cfg.Channel.Kind)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err, ok := <-serverErr:
		if ok {
			runErr = err
		}
	}

	// 8. Graceful shutdown: stop consuming first so no new notifications start
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := watcher.Stop(shutdownCtx); err != nil {
		logger.Error("ticket watcher did not stop in time", "error", err)
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	stopHub()
	return runErr
}

// runtimeStatus feeds the detailed health page.
type runtimeStatus struct {
	hub     *websocket.Hub
	channel string
}

func (s runtimeStatus) Status() map[string]any {
	status := map[string]any{"channel": s.channel}
	if s.hub != nil {
		status["connected_clients"] = s.hub.GetClientCount()
	}
	return status
}
