package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MGDev761/layrbase-sync/internal/feed"
	"github.com/MGDev761/layrbase-sync/internal/middleware"
	"github.com/MGDev761/layrbase-sync/internal/model"
	notificationService "github.com/MGDev761/layrbase-sync/internal/service/notification"
	"github.com/MGDev761/layrbase-sync/internal/store"
	syncEngine "github.com/MGDev761/layrbase-sync/internal/sync"
	"github.com/MGDev761/layrbase-sync/pkg/logger"
	"github.com/MGDev761/layrbase-sync/pkg/metrics"
)

var (
	testTenant = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001")
	testUser   = uuid.MustParse("cccccccc-0000-0000-0000-000000000001")
)

type fakeRepo struct {
	mu       sync.Mutex
	byTenant map[uuid.UUID][]*model.Notification
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
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Notification, 0, len(r.byTenant[tenantID]))
	for _, n := range r.byTenant[tenantID] {
		cp := *n
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeRepo) UnreadCount(ctx context.Context, tenantID, userID uuid.UUID) (int, error) {
	records, _ := r.List(ctx, tenantID, userID)
	count := 0
	for _, n := range records {
		if !n.Read {
			count++
		}
	}
	return count, nil
}

func (r *fakeRepo) MarkRead(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
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

type nopBroker struct{}

func (nopBroker) Publish(ctx context.Context, channel string, message interface{}) error { return nil }

func (nopBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (nopBroker) Close() error { return nil }

type testEnv struct {
	repo   *fakeRepo
	router *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := newFakeRepo()
	log := logger.FromZerolog(zerolog.Nop())
	m := metrics.NewMetrics("test", prometheus.NewRegistry())

	manager := syncEngine.NewManager(repo, nopBroker{}, log, m, feed.Config{
		MinBackoff: time.Millisecond,
		MaxBackoff: 10 * time.Millisecond,
	}, time.Minute)
	t.Cleanup(manager.Shutdown)

	h := NewHandler(manager, notificationService.NewService(repo, log), log)

	r := gin.New()
	api := r.Group("/api/v1")
	api.Use(middleware.Identity())
	h.RegisterRoutes(api)

	return &testEnv{repo: repo, router: r}
}

func (e *testEnv) request(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(middleware.HeaderXTenantID, testTenant.String())
	req.Header.Set(middleware.HeaderXUserID, testUser.String())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type snapshotEnvelope struct {
	Status string         `json:"status"`
	Data   store.Snapshot `json:"data"`
}

func decodeSnapshot(t *testing.T, w *httptest.ResponseRecorder) store.Snapshot {
	t.Helper()
	var env snapshotEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.Equal(t, "success", env.Status)
	return env.Data
}

func seeded(n int, read bool) *model.Notification {
	return &model.Notification{
		ID:        uuid.MustParse(fmt.Sprintf("00000000-0000-0000-0000-%012d", n)),
		TenantID:  testTenant,
		UserID:    testUser,
		Kind:      model.KindInfo,
		Category:  "system",
		Title:     fmt.Sprintf("notification %d", n),
		Message:   "hello",
		Read:      read,
		CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(n) * time.Minute),
	}
}

func TestIdentityHeadersRequired(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
	req.Header.Set(middleware.HeaderXTenantID, testTenant.String())
	req.Header.Set(middleware.HeaderXUserID, "not-a-uuid")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListReturnsOrderedSnapshot(t *testing.T) {
	env := newTestEnv(t)
	env.repo.seed(testTenant, seeded(1, false), seeded(2, true))

	w := env.request(t, http.MethodGet, "/api/v1/notifications", nil)
	require.Equal(t, http.StatusOK, w.Code)

	snap := decodeSnapshot(t, w)
	assert.Equal(t, store.StatusReady, snap.Status)
	require.Len(t, snap.Records, 2)
	assert.Equal(t, seeded(2, true).ID, snap.Records[0].ID, "newest first")
	assert.Equal(t, 1, snap.UnreadCount)
}

func TestMarkReadEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.repo.seed(testTenant, seeded(1, false))

	w := env.request(t, http.MethodPost, "/api/v1/notifications/"+seeded(1, false).ID.String()+"/read", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, decodeSnapshot(t, w).UnreadCount)

	w = env.request(t, http.MethodPost, "/api/v1/notifications/not-a-uuid/read", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMarkAllReadEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.repo.seed(testTenant, seeded(1, false), seeded(2, false), seeded(3, true))

	w := env.request(t, http.MethodPost, "/api/v1/notifications/read-all", nil)
	require.Equal(t, http.StatusOK, w.Code)

	snap := decodeSnapshot(t, w)
	assert.Equal(t, 0, snap.UnreadCount)
	for _, n := range snap.Records {
		assert.True(t, n.Read)
	}
}

func TestRefreshEndpointPicksUpNewServerState(t *testing.T) {
	env := newTestEnv(t)
	env.repo.seed(testTenant, seeded(1, false))

	w := env.request(t, http.MethodGet, "/api/v1/notifications", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decodeSnapshot(t, w).Records, 1)

	env.repo.seed(testTenant, seeded(1, false), seeded(2, false))

	w = env.request(t, http.MethodPost, "/api/v1/notifications/refresh", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeSnapshot(t, w).Records, 2)
}

func TestCreateEndpointValidatesAndPersists(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodPost, "/api/v1/notifications", CreateNotificationRequest{
		UserID:  testUser.String(),
		Kind:    "warning",
		Title:   "Payroll approval needed",
		Message: "June payroll run awaits sign-off",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	records, err := env.repo.List(context.Background(), testTenant, testUser)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, model.KindWarning, records[0].Kind)
	assert.Equal(t, testTenant, records[0].TenantID)

	w = env.request(t, http.MethodPost, "/api/v1/notifications", CreateNotificationRequest{
		UserID:  testUser.String(),
		Message: "missing title",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.request(t, http.MethodPost, "/api/v1/notifications", CreateNotificationRequest{
		UserID:  testUser.String(),
		Kind:    "urgent",
		Title:   "t",
		Message: "bad kind",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.repo.seed(testTenant, seeded(1, false))

	w := env.request(t, http.MethodDelete, "/api/v1/notifications/"+seeded(1, false).ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)

	records, err := env.repo.List(context.Background(), testTenant, testUser)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestReleaseSessionEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.repo.seed(testTenant, seeded(1, false))

	w := env.request(t, http.MethodGet, "/api/v1/notifications", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.request(t, http.MethodDelete, "/api/v1/session", nil)
	require.Equal(t, http.StatusOK, w.Code)

	// The next list starts a clean session and re-fetches.
	w = env.request(t, http.MethodGet, "/api/v1/notifications", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, store.StatusReady, decodeSnapshot(t, w).Status)
}
