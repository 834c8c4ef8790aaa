package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/MGDev761/layrbase-sync/internal/model"
	"github.com/MGDev761/layrbase-sync/internal/repository"
	"github.com/MGDev761/layrbase-sync/internal/store"
	"github.com/MGDev761/layrbase-sync/pkg/logger"
	"github.com/MGDev761/layrbase-sync/pkg/metrics"
)

// defaultAckWindow bounds how long a locally applied mark-read
// suppresses read=false feed updates for the same id. Past the window
// an incoming read=false is treated as a genuine external re-open, not
// a stale echo of our own mutation.
const defaultAckWindow = 30 * time.Second

type pendingAck struct {
	prev *model.Notification
	at   time.Time
}

// Engine is the single choke point through which both feed events and
// user actions reach the store. It is bound to one tenant/user identity
// for its lifetime; a new identity gets a new engine and store.
//
// All store mutations run to completion under one mutex, giving a total
// order per session. The two suspending operations (the backing mark
// mutations) run outside the lock, after the optimistic write has
// already committed.
type Engine struct {
	tenantID uuid.UUID
	userID   uuid.UUID
	store    *store.Store
	repo     repository.NotificationRepository
	logger   *logger.Logger
	metrics  *metrics.Metrics

	ackWindow time.Duration

	mu      sync.Mutex
	pending map[uuid.UUID]pendingAck
}

func NewEngine(tenantID, userID uuid.UUID, st *store.Store, repo repository.NotificationRepository, log *logger.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		tenantID:  tenantID,
		userID:    userID,
		store:     st,
		repo:      repo,
		logger:    log,
		metrics:   m,
		ackWindow: defaultAckWindow,
		pending:   make(map[uuid.UUID]pendingAck),
	}
}

// OnFetchComplete installs a bulk fetch result as the new authoritative
// state. Any pending optimistic acks are obsolete once the server truth
// replaces the list.
func (e *Engine) OnFetchComplete(records []*model.Notification) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = make(map[uuid.UUID]pendingAck)
	e.store.ReplaceAll(records)
}

// OnFeedEvent merges one change feed event. Malformed events and events
// for a foreign identity are dropped and logged; nothing here may panic
// out, a bad event must not stop the flow of the ones behind it.
func (e *Engine) OnFeedEvent(event model.ChangeEvent) {
	rec := event.Record
	if rec == nil || rec.ID == uuid.Nil {
		e.drop("malformed", event)
		return
	}
	if rec.TenantID != e.tenantID || rec.UserID != e.userID {
		e.drop("identity_mismatch", event)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch event.Operation {
	case model.OpInsert:
		e.store.ApplyInsert(rec)
	case model.OpUpdate:
		if ack, ok := e.pending[rec.ID]; ok {
			if !rec.Read && time.Since(ack.at) < e.ackWindow {
				// Stale echo of our own optimistic mark-read; applying
				// it would silently revert the user's action.
				e.metrics.FeedEventsDropped.WithLabelValues("stale_echo").Inc()
				return
			}
			// Either the server confirmed our mark-read or the ack has
			// aged out; the event is a plain refresh from here on.
			delete(e.pending, rec.ID)
		}
		e.store.ApplyUpdate(rec)
	case model.OpDelete:
		delete(e.pending, rec.ID)
		e.store.ApplyDelete(rec.ID)
	default:
		e.drop("unknown_operation", event)
		return
	}

	e.metrics.FeedEventsProcessed.WithLabelValues(string(event.Operation)).Inc()
}

// OnMarkRead optimistically flips the record, then issues the backing
// mutation. If the backing store rejects it, the pre-mutation record is
// re-applied (compensating action) unless something newer superseded it
// in the meantime.
func (e *Engine) OnMarkRead(ctx context.Context, id uuid.UUID) error {
	e.mu.Lock()
	prev, ok := e.store.MarkRead(id)
	if !ok {
		// Absent or already read; nothing to do and nothing to send.
		e.mu.Unlock()
		return nil
	}
	e.pending[id] = pendingAck{prev: prev, at: time.Now()}
	e.mu.Unlock()

	timer := prometheus.NewTimer(e.metrics.MutationLatency.WithLabelValues("mark_read"))
	err := e.repo.MarkRead(ctx, id)
	timer.ObserveDuration()
	if err != nil {
		e.mu.Lock()
		if ack, held := e.pending[id]; held && ack.prev == prev {
			e.store.ApplyUpdate(prev)
			delete(e.pending, id)
		}
		e.mu.Unlock()
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil
}

// OnMarkAllRead optimistically flips every unread record, then issues
// the bulk backing mutation. On rejection it re-fetches the full list:
// per-record compensation for a bulk flip is not worth the complexity,
// and the fetch restores the server's true state either way.
func (e *Engine) OnMarkAllRead(ctx context.Context) error {
	e.mu.Lock()
	flipped := e.store.MarkAllRead()
	if len(flipped) == 0 {
		e.mu.Unlock()
		return nil
	}
	now := time.Now()
	for _, prev := range flipped {
		e.pending[prev.ID] = pendingAck{prev: prev, at: now}
	}
	e.mu.Unlock()

	timer := prometheus.NewTimer(e.metrics.MutationLatency.WithLabelValues("mark_all_read"))
	err := e.repo.MarkAllRead(ctx, e.tenantID, e.userID)
	timer.ObserveDuration()
	if err != nil {
		if ferr := e.Refetch(ctx); ferr != nil {
			e.logger.Error(ferr, "resync fetch after failed mark-all-read")
		}
		return fmt.Errorf("failed to mark all notifications read: %w", err)
	}
	return nil
}

// Refetch pulls a fresh snapshot from the backing store and installs
// it. On fetch failure the store is flagged errored but its existing
// contents are left intact.
func (e *Engine) Refetch(ctx context.Context) error {
	timer := prometheus.NewTimer(e.metrics.FetchLatency)
	records, err := e.repo.List(ctx, e.tenantID, e.userID)
	timer.ObserveDuration()
	if err != nil {
		e.store.SetStatus(store.StatusError)
		return fmt.Errorf("failed to fetch notifications: %w", err)
	}
	e.OnFetchComplete(records)
	return nil
}

func (e *Engine) drop(reason string, event model.ChangeEvent) {
	e.metrics.FeedEventsDropped.WithLabelValues(reason).Inc()
	e.logger.Warn("dropping feed event", "reason", reason, "operation", string(event.Operation))
}
