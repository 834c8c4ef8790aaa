package sync

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/MGDev761/layrbase-sync/internal/feed"
	"github.com/MGDev761/layrbase-sync/internal/model"
	"github.com/MGDev761/layrbase-sync/internal/repository"
	"github.com/MGDev761/layrbase-sync/internal/store"
	apperrors "github.com/MGDev761/layrbase-sync/pkg/errors"
	"github.com/MGDev761/layrbase-sync/pkg/logger"
	"github.com/MGDev761/layrbase-sync/pkg/messaging"
	"github.com/MGDev761/layrbase-sync/pkg/metrics"
)

const reconnectFetchTimeout = 30 * time.Second

// session binds one generation of identity to its own store, engine and
// feed subscription. A fetch or event issued under an old generation
// can only ever land in that generation's orphaned store, so a tenant
// switch can never leak state into the successor.
type session struct {
	gen      uint64
	tenantID uuid.UUID
	userID   uuid.UUID
	store    *store.Store
	engine   *Engine
	sub      *feed.Subscription
}

// Syncer is the facade UI-facing code talks to: a snapshot getter, the
// two mark operations and an identity lifecycle. It shields consumers
// from the feed plumbing entirely.
type Syncer struct {
	repo    repository.NotificationRepository
	feed    *feed.Client
	logger  *logger.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	gen     uint64
	current *session
}

func NewSyncer(repo repository.NotificationRepository, broker messaging.Broker, log *logger.Logger, m *metrics.Metrics, feedCfg feed.Config) *Syncer {
	return &Syncer{
		repo:    repo,
		feed:    feed.NewClient(broker, log, m, feedCfg),
		logger:  log,
		metrics: m,
	}
}

// Initialize binds the syncer to a tenant/user pair: bulk fetch first,
// then the live feed. Calling it again (same or different identity)
// supersedes the previous session; a superseded in-flight fetch result
// is discarded, last initialize wins.
func (s *Syncer) Initialize(ctx context.Context, tenantID, userID uuid.UUID) error {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	if prev := s.current; prev != nil && prev.sub != nil {
		prev.sub.Close()
	}
	st := store.New()
	sess := &session{
		gen:      gen,
		tenantID: tenantID,
		userID:   userID,
		store:    st,
		engine:   NewEngine(tenantID, userID, st, s.repo, s.logger, s.metrics),
	}
	s.current = sess
	s.mu.Unlock()

	timer := prometheus.NewTimer(s.metrics.FetchLatency)
	records, err := s.repo.List(ctx, tenantID, userID)
	timer.ObserveDuration()

	if s.superseded(gen) {
		return nil
	}
	if err != nil {
		st.SetStatus(store.StatusError)
		return apperrors.Unavailable("couldn't load notifications", err)
	}
	sess.engine.OnFetchComplete(records)

	sub := s.feed.Open(tenantID, userID, &sessionHandler{syncer: s, sess: sess})
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		sub.Close()
		return nil
	}
	sess.sub = sub
	s.mu.Unlock()
	return nil
}

// Snapshot returns the current consistent view. Before the first
// Initialize it reports an empty loading state.
func (s *Syncer) Snapshot() store.Snapshot {
	s.mu.Lock()
	sess := s.current
	s.mu.Unlock()
	if sess == nil {
		return store.Snapshot{Status: store.StatusLoading}
	}
	return sess.store.Snapshot()
}

// Subscribe registers a change signal against the current session's
// store. The cancel func must be called when the consumer goes away.
func (s *Syncer) Subscribe() (<-chan struct{}, func(), error) {
	s.mu.Lock()
	sess := s.current
	s.mu.Unlock()
	if sess == nil {
		return nil, nil, apperrors.Conflict("sync session not initialized", nil)
	}
	ch, cancel := sess.store.Subscribe()
	return ch, cancel, nil
}

// MarkRead acknowledges a single notification.
func (s *Syncer) MarkRead(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	sess := s.current
	s.mu.Unlock()
	if sess == nil {
		return apperrors.Conflict("sync session not initialized", nil)
	}
	return sess.engine.OnMarkRead(ctx, id)
}

// MarkAllRead acknowledges every unread notification.
func (s *Syncer) MarkAllRead(ctx context.Context) error {
	s.mu.Lock()
	sess := s.current
	s.mu.Unlock()
	if sess == nil {
		return apperrors.Conflict("sync session not initialized", nil)
	}
	return sess.engine.OnMarkAllRead(ctx)
}

// Refresh re-runs the bulk fetch for the current session. Used by the
// facade itself after reconnects and exposed for manual retry after a
// failed load.
func (s *Syncer) Refresh(ctx context.Context) error {
	s.mu.Lock()
	sess := s.current
	s.mu.Unlock()
	if sess == nil {
		return apperrors.Conflict("sync session not initialized", nil)
	}
	return sess.engine.Refetch(ctx)
}

// Teardown closes the feed subscription and clears the store. Called on
// sign-out or tenant switch; safe to call repeatedly.
func (s *Syncer) Teardown() {
	s.mu.Lock()
	s.gen++
	sess := s.current
	s.current = nil
	s.mu.Unlock()

	if sess == nil {
		return
	}
	if sess.sub != nil {
		sess.sub.Close()
	}
	sess.store.Reset()
}

func (s *Syncer) superseded(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen != gen
}

// sessionHandler routes feed traffic into one session, dropping it once
// the session's generation is superseded.
type sessionHandler struct {
	syncer *Syncer
	sess   *session
}

func (h *sessionHandler) HandleEvent(event model.ChangeEvent) {
	if h.syncer.superseded(h.sess.gen) {
		h.syncer.metrics.FeedEventsDropped.WithLabelValues("superseded").Inc()
		return
	}
	h.sess.engine.OnFeedEvent(event)
}

// HandleReconnect re-fetches to close the delivery gap: events missed
// while disconnected are gone, only a fresh snapshot restores
// consistency.
func (h *sessionHandler) HandleReconnect() {
	if h.syncer.superseded(h.sess.gen) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), reconnectFetchTimeout)
	defer cancel()
	if err := h.sess.engine.Refetch(ctx); err != nil {
		h.syncer.logger.Error(err, "re-fetch after feed reconnect")
	}
}
