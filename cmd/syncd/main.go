package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/MGDev761/layrbase-sync/internal/config"
	"github.com/MGDev761/layrbase-sync/internal/feed"
	healthHandler "github.com/MGDev761/layrbase-sync/internal/handler/health"
	notificationHandler "github.com/MGDev761/layrbase-sync/internal/handler/notification"
	"github.com/MGDev761/layrbase-sync/internal/middleware"
	"github.com/MGDev761/layrbase-sync/internal/repository/postgres"
	"github.com/MGDev761/layrbase-sync/internal/router"
	notificationService "github.com/MGDev761/layrbase-sync/internal/service/notification"
	syncEngine "github.com/MGDev761/layrbase-sync/internal/sync"
	"github.com/MGDev761/layrbase-sync/pkg/logger"
	"github.com/MGDev761/layrbase-sync/pkg/messaging/redis"
	"github.com/MGDev761/layrbase-sync/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to load configuration")
	}

	zlog.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	log := logger.FromZerolog(zlog.Logger).WithFields(map[string]interface{}{"service": "syncd"})

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	broker, err := redis.NewRedisBroker(redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, &zlog.Logger)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to create Redis broker")
	}
	defer broker.Close()

	m := metrics.NewMetrics("layrbase_sync", nil)

	baseRepo := postgres.NewBaseRepository(db)
	notificationRepo := postgres.NewNotificationRepository(baseRepo)

	manager := syncEngine.NewManager(notificationRepo, broker, log, m, feed.Config{
		MinBackoff: cfg.Sync.FeedMinBackoff,
		MaxBackoff: cfg.Sync.FeedMaxBackoff,
	}, cfg.Sync.SessionIdleTTL)
	defer manager.Shutdown()

	notificationSvc := notificationService.NewService(notificationRepo, log)

	r := router.NewRouter(
		notificationHandler.NewHandler(manager, notificationSvc, log),
		healthHandler.NewHandler(db),
		router.Config{
			RateLimit:  rate.Limit(cfg.Server.RateLimit),
			RateBurst:  cfg.Server.RateBurst,
			CORSConfig: middleware.DefaultCORSConfig(),
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		WriteTimeout: 0, // SSE streams stay open indefinitely
	}

	go func() {
		zlog.Info().Int("port", cfg.Server.Port).Msg("starting sync service")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zlog.Info().Msg("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zlog.Error().Err(err).Msg("graceful shutdown failed")
	}
}
