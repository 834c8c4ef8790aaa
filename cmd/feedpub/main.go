package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/MGDev761/layrbase-sync/internal/config"
	"github.com/MGDev761/layrbase-sync/internal/repository/postgres"
	"github.com/MGDev761/layrbase-sync/pkg/logger"
	"github.com/MGDev761/layrbase-sync/pkg/messaging/redis"
	"github.com/MGDev761/layrbase-sync/pkg/metrics"
	"github.com/MGDev761/layrbase-sync/pkg/worker"
)

func setupHealthCheck(log *logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		if err := http.ListenAndServe(":8081", mux); err != nil {
			log.Fatal(err, "health check server failed")
		}
	}()
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to load configuration")
	}

	zlog.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	log := logger.FromZerolog(zlog.Logger).WithFields(map[string]interface{}{"service": "feedpub"})

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

	baseRepo := postgres.NewBaseRepository(db)
	outboxRepo := postgres.NewOutboxRepository(baseRepo)

	publisher := worker.NewFeedPublisher(
		outboxRepo,
		broker,
		worker.FeedPublisherConfig{
			BatchSize:    cfg.Publisher.BatchSize,
			PollInterval: cfg.Publisher.PollInterval,
			MaxRetries:   cfg.Publisher.MaxRetries,
			RetryDelay:   cfg.Publisher.RetryDelay,
			Retention:    cfg.Publisher.Retention,
		},
		log,
		metrics.NewMetrics("layrbase_feedpub", nil),
	)

	setupHealthCheck(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		zlog.Info().Msg("shutting down...")
		cancel()
	}()

	publisher.Start(ctx)
}
