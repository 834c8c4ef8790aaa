package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/MGDev761/layrbase-sync/internal/model"
	"github.com/MGDev761/layrbase-sync/pkg/logger"
	"github.com/MGDev761/layrbase-sync/pkg/metrics"
)

var (
	tenantA  = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001")
	tenantB  = uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000001")
	userOne  = uuid.MustParse("cccccccc-0000-0000-0000-000000000001")
	baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
)

func testLogger() *logger.Logger {
	return logger.FromZerolog(zerolog.Nop())
}

func testMetrics() *metrics.Metrics {
	return metrics.NewMetrics("test", prometheus.NewRegistry())
}

func notif(n int, tenantID uuid.UUID, read bool, createdAt time.Time) *model.Notification {
	return &model.Notification{
		ID:        uuid.MustParse(fmt.Sprintf("00000000-0000-0000-0000-%012d", n)),
		TenantID:  tenantID,
		UserID:    userOne,
		Kind:      model.KindInfo,
		Category:  "system",
		Title:     fmt.Sprintf("notification %d", n),
		Message:   "hello",
		Read:      read,
		CreatedAt: createdAt,
	}
}

// fakeRepo is an in-memory stand-in for the backing store, keyed by
// tenant. Hooks let tests block or fail individual calls.
type fakeRepo struct {
	mu          sync.Mutex
	byTenant    map[uuid.UUID][]*model.Notification
	listCalls   int
	listHook    func(tenantID uuid.UUID)
	listErr     error
	markReadErr error
	markAllErr  error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byTenant: make(map[uuid.UUID][]*model.Notification)}
}

func (r *fakeRepo) seed(tenantID uuid.UUID, records ...*model.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byTenant[tenantID] = nil
	for _, n := range records {
		cp := *n
		r.byTenant[tenantID] = append(r.byTenant[tenantID], &cp)
	}
}

func (r *fakeRepo) List(ctx context.Context, tenantID, userID uuid.UUID) ([]*model.Notification, error) {
	if hook := r.hook(); hook != nil {
		hook(tenantID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := make([]*model.Notification, 0, len(r.byTenant[tenantID]))
	for _, n := range r.byTenant[tenantID] {
		cp := *n
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeRepo) hook() func(uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listHook
}

func (r *fakeRepo) UnreadCount(ctx context.Context, tenantID, userID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, n := range r.byTenant[tenantID] {
		if !n.Read {
			count++
		}
	}
	return count, nil
}

func (r *fakeRepo) MarkRead(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.markReadErr != nil {
		return r.markReadErr
	}
	for _, records := range r.byTenant {
		for _, n := range records {
			if n.ID == id {
				n.Read = true
			}
		}
	}
	return nil
}

func (r *fakeRepo) MarkAllRead(ctx context.Context, tenantID, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.markAllErr != nil {
		return r.markAllErr
	}
	for _, n := range r.byTenant[tenantID] {
		n.Read = true
	}
	return nil
}

func (r *fakeRepo) Create(ctx context.Context, n *model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *n
	r.byTenant[n.TenantID] = append(r.byTenant[n.TenantID], &cp)
	return nil
}

func (r *fakeRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for tid, records := range r.byTenant {
		for i, n := range records {
			if n.ID == id {
				r.byTenant[tid] = append(records[:i], records[i+1:]...)
				return nil
			}
		}
	}
	return nil
}

func (r *fakeRepo) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listCalls
}

// fakeBroker is an in-memory pub/sub transport. Tests can drop a
// subscription's channel to simulate a lost connection.
type fakeBroker struct {
	mu   sync.Mutex
	subs map[string][]*fakeSub
}

type fakeSub struct {
	ch   chan []byte
	once sync.Once
}

func (s *fakeSub) closeOnce() {
	s.once.Do(func() { close(s.ch) })
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{subs: make(map[string][]*fakeSub)}
}

func (b *fakeBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs[channel] {
		select {
		case sub.ch <- payload:
		default:
		}
	}
	return nil
}

func (b *fakeBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	sub := &fakeSub{ch: make(chan []byte, 16)}
	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], sub)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(channel, sub)
		sub.closeOnce()
	}()

	return sub.ch, nil
}

func (b *fakeBroker) remove(channel string, target *fakeSub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[channel]
	for i, sub := range subs {
		if sub == target {
			b.subs[channel] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// drop simulates a lost connection by closing every live subscription
// on the channel; the feed client is expected to re-subscribe.
func (b *fakeBroker) drop(channel string) {
	b.mu.Lock()
	subs := b.subs[channel]
	b.subs[channel] = nil
	b.mu.Unlock()
	for _, sub := range subs {
		sub.closeOnce()
	}
}

func (b *fakeBroker) subscriberCount(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[channel])
}

func (b *fakeBroker) Close() error { return nil }
