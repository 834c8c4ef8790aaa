package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MGDev761/layrbase-sync/internal/model"
	"github.com/MGDev761/layrbase-sync/pkg/logger"
	"github.com/MGDev761/layrbase-sync/pkg/messaging"
	"github.com/MGDev761/layrbase-sync/pkg/metrics"
)

// Handler receives decoded feed traffic. HandleEvent is called once per
// delivered event; HandleReconnect is called after the subscription is
// re-established following a loss, never on the first attach. Events
// missed while disconnected are not replayed, so HandleReconnect is the
// consumer's cue to re-fetch a fresh snapshot.
type Handler interface {
	HandleEvent(event model.ChangeEvent)
	HandleReconnect()
}

type Config struct {
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// Client maintains at most one live change feed subscription. Opening a
// new subscription closes the prior one first, so a client can never
// deliver for two identities at once.
type Client struct {
	broker  messaging.Broker
	logger  *logger.Logger
	metrics *metrics.Metrics
	cfg     Config

	mu      sync.Mutex
	current *Subscription
}

func NewClient(broker messaging.Broker, logger *logger.Logger, m *metrics.Metrics, cfg Config) *Client {
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = 250 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 15 * time.Second
	}
	return &Client{
		broker:  broker,
		logger:  logger,
		metrics: m,
		cfg:     cfg,
	}
}

// Channel names the pub/sub channel carrying row-level events for one
// tenant/user pair; the server publishes pre-filtered per pair.
func Channel(tenantID, userID uuid.UUID) string {
	return fmt.Sprintf("notifications:%s:%s", tenantID, userID)
}

// Open establishes the feed for the pair and returns its handle. Any
// previously open subscription on this client is closed first.
func (c *Client) Open(tenantID, userID uuid.UUID, h Handler) *Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	c.mu.Lock()
	prev := c.current
	c.current = sub
	c.mu.Unlock()
	if prev != nil {
		prev.Close()
	}

	go c.run(ctx, tenantID, userID, h, sub)
	return sub
}

// Close releases the client's active subscription, if any.
func (c *Client) Close() {
	c.mu.Lock()
	sub := c.current
	c.current = nil
	c.mu.Unlock()
	if sub != nil {
		sub.Close()
	}
}

func (c *Client) run(ctx context.Context, tenantID, userID uuid.UUID, h Handler, sub *Subscription) {
	defer close(sub.done)

	channel := Channel(tenantID, userID)
	backoff := c.cfg.MinBackoff
	attached := false

	for ctx.Err() == nil {
		ch, err := c.broker.Subscribe(ctx, channel)
		if err != nil {
			c.logger.Warn("feed subscribe failed, retrying", "channel", channel, "error", err.Error())
			if !sleep(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, c.cfg.MaxBackoff)
			continue
		}
		backoff = c.cfg.MinBackoff

		if attached {
			c.metrics.FeedReconnects.Inc()
			h.HandleReconnect()
		}
		attached = true

		for payload := range ch {
			var evt model.ChangeEvent
			if err := json.Unmarshal(payload, &evt); err != nil {
				c.metrics.FeedEventsDropped.WithLabelValues("decode").Inc()
				c.logger.Warn("dropping undecodable feed payload", "channel", channel, "error", err.Error())
				continue
			}
			h.HandleEvent(evt)
		}
		// Channel closed: either our context ended or the transport
		// dropped; the loop condition decides which.
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Subscription is the handle for one open feed.
type Subscription struct {
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Close releases the subscription; safe to call multiple times.
func (s *Subscription) Close() {
	s.closeOnce.Do(s.cancel)
}

// Done is closed once the subscription's delivery loop has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}
