package sync

import (
	"context"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/MGDev761/layrbase-sync/internal/feed"
	"github.com/MGDev761/layrbase-sync/internal/repository"
	"github.com/MGDev761/layrbase-sync/pkg/logger"
	"github.com/MGDev761/layrbase-sync/pkg/messaging"
	"github.com/MGDev761/layrbase-sync/pkg/metrics"
)

// Manager keeps one Syncer per live (tenant, user) pair. Sessions idle
// past the TTL are evicted and torn down, releasing their feed
// subscriptions.
type Manager struct {
	repo    repository.NotificationRepository
	broker  messaging.Broker
	logger  *logger.Logger
	metrics *metrics.Metrics
	feedCfg feed.Config

	sessions *gocache.Cache
}

func NewManager(repo repository.NotificationRepository, broker messaging.Broker, log *logger.Logger, m *metrics.Metrics, feedCfg feed.Config, idleTTL time.Duration) *Manager {
	if idleTTL <= 0 {
		idleTTL = 15 * time.Minute
	}
	sessions := gocache.New(idleTTL, idleTTL/2)

	mgr := &Manager{
		repo:     repo,
		broker:   broker,
		logger:   log,
		metrics:  m,
		feedCfg:  feedCfg,
		sessions: sessions,
	}
	sessions.OnEvicted(func(key string, v interface{}) {
		v.(*Syncer).Teardown()
		m.ActiveSessions.Dec()
		log.Debug("sync session evicted", "key", key)
	})
	return mgr
}

// Acquire returns the live syncer for the pair, initializing one on
// first touch. Each touch extends the idle TTL. A fetch failure is
// returned alongside the syncer: the session stays registered with an
// errored store so callers can retry via Refresh.
func (m *Manager) Acquire(ctx context.Context, tenantID, userID uuid.UUID) (*Syncer, error) {
	key := sessionKey(tenantID, userID)

	for {
		if v, ok := m.sessions.Get(key); ok {
			sy := v.(*Syncer)
			m.sessions.SetDefault(key, sy)
			return sy, nil
		}

		sy := NewSyncer(m.repo, m.broker, m.logger, m.metrics, m.feedCfg)
		if err := m.sessions.Add(key, sy, gocache.DefaultExpiration); err != nil {
			// Lost the race to a concurrent Acquire. The winner may
			// already have been evicted again, so re-read rather than
			// assume it is still there; only a stored syncer may be
			// initialized, anything else would leak its subscription.
			continue
		}
		m.metrics.ActiveSessions.Inc()

		if err := sy.Initialize(ctx, tenantID, userID); err != nil {
			m.logger.Error(err, "initial notification fetch failed", "tenant_id", tenantID.String(), "user_id", userID.String())
			return sy, err
		}
		return sy, nil
	}
}

// Release tears down the pair's session immediately. Used on sign-out
// and tenant switch; a later Acquire starts clean.
func (m *Manager) Release(tenantID, userID uuid.UUID) {
	m.sessions.Delete(sessionKey(tenantID, userID))
}

// Shutdown tears down every live session.
func (m *Manager) Shutdown() {
	for key := range m.sessions.Items() {
		m.sessions.Delete(key)
	}
}

func sessionKey(tenantID, userID uuid.UUID) string {
	return tenantID.String() + ":" + userID.String()
}
