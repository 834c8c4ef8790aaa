package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MGDev761/layrbase-sync/internal/feed"
	"github.com/MGDev761/layrbase-sync/internal/repository"
	"github.com/MGDev761/layrbase-sync/pkg/logger"
	"github.com/MGDev761/layrbase-sync/pkg/messaging"
	"github.com/MGDev761/layrbase-sync/pkg/metrics"
)

const cleanupInterval = time.Hour

type FeedPublisherConfig struct {
	BatchSize    int
	PollInterval time.Duration
	MaxRetries   int
	RetryDelay   time.Duration
	Retention    time.Duration
}

// FeedPublisher drains the notification outbox and publishes each event
// to the owning user's change feed channel. Rows that keep failing past
// MaxRetries are parked as failed rather than wedging the queue.
type FeedPublisher struct {
	repo    repository.OutboxRepository
	broker  messaging.Broker
	config  FeedPublisherConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewFeedPublisher(
	repo repository.OutboxRepository,
	broker messaging.Broker,
	config FeedPublisherConfig,
	log *logger.Logger,
	m *metrics.Metrics,
) *FeedPublisher {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 5 * time.Second
	}
	if config.Retention <= 0 {
		config.Retention = 24 * time.Hour
	}

	return &FeedPublisher{
		repo:    repo,
		broker:  broker,
		config:  config,
		logger:  log,
		metrics: m,
	}
}

func (p *FeedPublisher) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	cleanup := time.NewTicker(cleanupInterval)
	defer cleanup.Stop()

	p.logger.Info("starting feed publisher")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("shutting down feed publisher")
			return
		case <-ticker.C:
			if err := p.processBatch(ctx); err != nil {
				p.logger.Error(err, "failed to process outbox batch")
			}
		case <-cleanup.C:
			deleted, err := p.repo.DeleteProcessedBefore(ctx, time.Now().Add(-p.config.Retention))
			if err != nil {
				p.logger.Error(err, "failed to prune processed outbox events")
				continue
			}
			if deleted > 0 {
				p.logger.Info("pruned processed outbox events", "deleted", deleted)
			}
		}
	}
}

func (p *FeedPublisher) processBatch(ctx context.Context) error {
	timer := prometheus.NewTimer(p.metrics.PublishLatency)
	defer timer.ObserveDuration()

	tx, err := p.repo.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	events, err := p.repo.PendingTx(ctx, tx, p.config.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to claim pending events: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	for _, evt := range events {
		channel := feed.Channel(evt.TenantID, evt.UserID)

		if err := p.broker.Publish(ctx, channel, evt.Payload); err != nil {
			errMsg := err.Error()
			if evt.RetryCount+1 >= p.config.MaxRetries {
				p.metrics.OutboxEventsFailed.Inc()
				p.logger.Error(err, "event exhausted retries", "event_id", evt.ID.String(), "event_type", evt.EventType)
				if markErr := p.repo.MarkFailedTx(ctx, tx, evt.ID, errMsg); markErr != nil {
					return fmt.Errorf("failed to park event %s: %w", evt.ID, markErr)
				}
				continue
			}

			p.metrics.OutboxRetries.WithLabelValues(evt.EventType).Inc()
			retryAt := time.Now().Add(p.config.RetryDelay * time.Duration(evt.RetryCount+1))
			p.logger.Warn("event publish failed, scheduling retry", "event_id", evt.ID.String(), "error", errMsg)
			if markErr := p.repo.MarkRetryTx(ctx, tx, evt.ID, errMsg, retryAt); markErr != nil {
				return fmt.Errorf("failed to schedule retry for event %s: %w", evt.ID, markErr)
			}
			continue
		}

		if err := p.repo.MarkProcessedTx(ctx, tx, evt.ID); err != nil {
			return fmt.Errorf("failed to mark event %s processed: %w", evt.ID, err)
		}
		p.metrics.OutboxEventsProcessed.Inc()
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}
