package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MGDev761/layrbase-sync/internal/model"
)

var (
	tenantID = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	userID   = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
)

func notif(n int, read bool, createdAt time.Time) *model.Notification {
	return &model.Notification{
		ID:        uuid.MustParse(fmt.Sprintf("00000000-0000-0000-0000-%012d", n)),
		TenantID:  tenantID,
		UserID:    userID,
		Kind:      model.KindInfo,
		Category:  "system",
		Title:     fmt.Sprintf("notification %d", n),
		Message:   "hello",
		Read:      read,
		CreatedAt: createdAt,
	}
}

func assertInvariant(t *testing.T, s *Store) {
	t.Helper()
	snap := s.Snapshot()
	unread := 0
	for _, n := range snap.Records {
		if !n.Read {
			unread++
		}
	}
	assert.Equal(t, unread, snap.UnreadCount, "unread count must match unread records")
}

func TestReplaceAllRecomputesCount(t *testing.T) {
	s := New()
	assert.Equal(t, StatusLoading, s.Snapshot().Status)

	s.ReplaceAll([]*model.Notification{
		notif(1, false, baseTime),
		notif(2, true, baseTime.Add(time.Minute)),
		notif(3, false, baseTime.Add(2*time.Minute)),
	})

	snap := s.Snapshot()
	assert.Equal(t, StatusReady, snap.Status)
	assert.Equal(t, 2, snap.UnreadCount)
	assert.Len(t, snap.Records, 3)
	assertInvariant(t, s)
}

func TestReplaceAllCollapsesDuplicates(t *testing.T) {
	s := New()
	s.ReplaceAll([]*model.Notification{
		notif(1, false, baseTime),
		notif(1, true, baseTime),
		nil,
	})

	snap := s.Snapshot()
	require.Len(t, snap.Records, 1)
	assert.False(t, snap.Records[0].Read, "first occurrence wins")
	assertInvariant(t, s)
}

func TestOrderNewestFirstTieBrokenByID(t *testing.T) {
	s := New()
	s.ReplaceAll([]*model.Notification{
		notif(2, true, baseTime),
		notif(1, false, baseTime),
		notif(3, false, baseTime.Add(time.Hour)),
	})

	snap := s.Snapshot()
	require.Len(t, snap.Records, 3)
	assert.Equal(t, notif(3, false, baseTime).ID, snap.Records[0].ID, "newest first")
	assert.Equal(t, notif(1, false, baseTime).ID, snap.Records[1].ID, "equal timestamps tie-break by id ascending")
	assert.Equal(t, notif(2, true, baseTime).ID, snap.Records[2].ID)
}

func TestApplyInsertIsIdempotent(t *testing.T) {
	s := New()
	s.ReplaceAll(nil)

	n := notif(1, false, baseTime)
	assert.True(t, s.ApplyInsert(n))
	assert.False(t, s.ApplyInsert(n), "redelivered insert is a no-op")

	snap := s.Snapshot()
	assert.Len(t, snap.Records, 1)
	assert.Equal(t, 1, snap.UnreadCount)
	assertInvariant(t, s)
}

func TestApplyUpdateUnknownIDIsDropped(t *testing.T) {
	s := New()
	s.ReplaceAll([]*model.Notification{notif(1, false, baseTime)})
	before := s.Snapshot()

	assert.False(t, s.ApplyUpdate(notif(9, true, baseTime)))

	after := s.Snapshot()
	assert.Equal(t, before.Records, after.Records, "no phantom record created")
	assert.Equal(t, before.UnreadCount, after.UnreadCount)
}

func TestApplyDeleteIsIdempotent(t *testing.T) {
	s := New()
	s.ReplaceAll([]*model.Notification{notif(1, false, baseTime)})

	assert.True(t, s.ApplyDelete(notif(1, false, baseTime).ID))
	assert.False(t, s.ApplyDelete(notif(1, false, baseTime).ID))

	snap := s.Snapshot()
	assert.Empty(t, snap.Records)
	assert.Equal(t, 0, snap.UnreadCount)
}

func TestMarkRead(t *testing.T) {
	s := New()
	s.ReplaceAll([]*model.Notification{notif(1, false, baseTime)})

	prev, ok := s.MarkRead(notif(1, false, baseTime).ID)
	require.True(t, ok)
	assert.False(t, prev.Read, "returns the pre-mutation record")
	assert.Equal(t, 0, s.Snapshot().UnreadCount)

	_, ok = s.MarkRead(notif(1, false, baseTime).ID)
	assert.False(t, ok, "marking a read record again is a no-op")

	_, ok = s.MarkRead(uuid.New())
	assert.False(t, ok, "marking an absent record is a no-op")
	assertInvariant(t, s)
}

func TestMarkAllRead(t *testing.T) {
	s := New()
	s.ReplaceAll([]*model.Notification{
		notif(1, false, baseTime),
		notif(2, true, baseTime),
		notif(3, false, baseTime),
	})

	flipped := s.MarkAllRead()
	assert.Len(t, flipped, 2)
	assert.Equal(t, 0, s.Snapshot().UnreadCount)
	for _, n := range s.Snapshot().Records {
		assert.True(t, n.Read)
	}

	assert.Nil(t, s.MarkAllRead(), "second pass flips nothing")
	assertInvariant(t, s)
}

func TestSnapshotIsImmutable(t *testing.T) {
	s := New()
	s.ReplaceAll([]*model.Notification{notif(1, false, baseTime)})
	snap := s.Snapshot()

	s.MarkRead(notif(1, false, baseTime).ID)
	s.ApplyInsert(notif(2, false, baseTime))

	require.Len(t, snap.Records, 1)
	assert.False(t, snap.Records[0].Read, "earlier snapshot is untouched by later mutations")
}

func TestSubscribeSignalsOnMutation(t *testing.T) {
	s := New()
	ch, cancel := s.Subscribe()
	defer cancel()

	s.ReplaceAll([]*model.Notification{notif(1, false, baseTime)})

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected a change signal after mutation")
	}

	cancel()
	s.ApplyInsert(notif(2, false, baseTime))
	// Cancelled subscriptions simply stop receiving; nothing to assert
	// beyond the absence of a panic.
}

func TestSetStatusDoesNotAliasSnapshots(t *testing.T) {
	s := New()
	s.ReplaceAll([]*model.Notification{
		notif(1, false, baseTime),
		notif(2, true, baseTime.Add(time.Minute)),
	})
	before := s.Snapshot()

	s.SetStatus(StatusError)

	after := s.Snapshot()
	assert.Equal(t, StatusError, after.Status)
	assert.Equal(t, before.Records, after.Records)
	assert.Greater(t, after.Version, before.Version)
	require.NotEmpty(t, after.Records)
	assert.NotSame(t, &before.Records[0], &after.Records[0], "status change must publish a fresh slice")
}

func TestResetClearsState(t *testing.T) {
	s := New()
	s.ReplaceAll([]*model.Notification{notif(1, false, baseTime)})
	s.Reset()

	snap := s.Snapshot()
	assert.Empty(t, snap.Records)
	assert.Equal(t, 0, snap.UnreadCount)
	assert.Equal(t, StatusLoading, snap.Status)
}
