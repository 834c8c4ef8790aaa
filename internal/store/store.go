package store

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/MGDev761/layrbase-sync/internal/model"
)

// Status is the lifecycle state of a store.
type Status string

const (
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// Snapshot is an immutable view of the store at one version. The
// records slice and the records it points to are never mutated after
// the snapshot is taken, so holders can read it without coordination.
type Snapshot struct {
	Records     []*model.Notification `json:"records"`
	UnreadCount int                   `json:"unread_count"`
	Status      Status                `json:"status"`
	Version     uint64                `json:"version"`
}

// Store holds the authoritative local notification state for one
// tenant/user session: the ordered list and the derived unread count.
//
// The record list is copy-on-write: every mutation publishes a fresh
// slice of fresh record values and recomputes the unread count in the
// same critical section, so the count can never drift from the list and
// Snapshot is an O(1) reference.
type Store struct {
	mu      sync.RWMutex
	records []*model.Notification
	unread  int
	status  Status
	version uint64

	nextSubID int
	subs      map[int]chan struct{}
}

func New() *Store {
	return &Store{
		status: StatusLoading,
		subs:   make(map[int]chan struct{}),
	}
}

// Snapshot returns the current state without copying or I/O.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Records:     s.records,
		UnreadCount: s.unread,
		Status:      s.status,
		Version:     s.version,
	}
}

// Subscribe registers a change signal. The channel receives (at least)
// one signal after every committed mutation; callers re-read via
// Snapshot rather than polling. The returned func cancels the
// subscription and is safe to call more than once.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	ch := make(chan struct{}, 1)
	s.subs[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// ReplaceAll swaps the list wholesale after a bulk fetch. Duplicate ids
// in the input are collapsed (first occurrence wins), the order is
// normalized and the unread count recomputed from scratch. The store
// becomes ready.
func (s *Store) ReplaceAll(records []*model.Notification) {
	next := make([]*model.Notification, 0, len(records))
	seen := make(map[uuid.UUID]struct{}, len(records))
	for _, n := range records {
		if n == nil || n.ID == uuid.Nil {
			continue
		}
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		cp := *n
		next = append(next, &cp)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusReady
	s.commit(next)
}

// Reset clears the store back to its initial loading state. Used on
// teardown so a stale snapshot can never leak across identities.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusLoading
	s.commit(nil)
}

// SetStatus updates the lifecycle status without touching the records.
func (s *Store) SetStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	// commit sorts in place; hand it a copy so slices held by earlier
	// snapshots are never reordered under their holders.
	next := make([]*model.Notification, len(s.records))
	copy(next, s.records)
	s.commit(next)
}

// ApplyInsert adds a record if its id is absent. Redelivered inserts
// are no-ops.
func (s *Store) ApplyInsert(record *model.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(record.ID) >= 0 {
		return false
	}

	cp := *record
	next := make([]*model.Notification, 0, len(s.records)+1)
	next = append(next, s.records...)
	next = append(next, &cp)
	s.commit(next)
	return true
}

// ApplyUpdate replaces the record with a matching id. An update for an
// unknown id is dropped: the record will arrive via a later fetch or
// insert, and inventing a phantom row here would corrupt the order.
func (s *Store) ApplyUpdate(record *model.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(record.ID)
	if i < 0 {
		return false
	}

	cp := *record
	next := make([]*model.Notification, len(s.records))
	copy(next, s.records)
	next[i] = &cp
	s.commit(next)
	return true
}

// ApplyDelete removes the record if present.
func (s *Store) ApplyDelete(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false
	}

	next := make([]*model.Notification, 0, len(s.records)-1)
	next = append(next, s.records[:i]...)
	next = append(next, s.records[i+1:]...)
	s.commit(next)
	return true
}

// MarkRead flips one record to read. It returns the pre-mutation record
// so the caller can compensate if the backing mutation is rejected, and
// false if the record is absent or already read.
func (s *Store) MarkRead(id uuid.UUID) (*model.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 || s.records[i].Read {
		return nil, false
	}

	prev := s.records[i]
	cp := *prev
	cp.Read = true
	next := make([]*model.Notification, len(s.records))
	copy(next, s.records)
	next[i] = &cp
	s.commit(next)
	return prev, true
}

// MarkAllRead flips every unread record in one atomic pass and returns
// the pre-mutation records that were flipped.
func (s *Store) MarkAllRead() []*model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	var flipped []*model.Notification
	next := make([]*model.Notification, len(s.records))
	copy(next, s.records)
	for i, n := range next {
		if n.Read {
			continue
		}
		flipped = append(flipped, n)
		cp := *n
		cp.Read = true
		next[i] = &cp
	}
	if len(flipped) == 0 {
		return nil
	}

	s.commit(next)
	return flipped
}

// commit publishes a new record slice: normalizes order, recomputes the
// unread count, bumps the version and signals subscribers. Callers hold
// the write lock.
func (s *Store) commit(next []*model.Notification) {
	sort.Slice(next, func(i, j int) bool {
		return next[i].Before(next[j])
	})

	unread := 0
	for _, n := range next {
		if !n.Read {
			unread++
		}
	}

	s.records = next
	s.unread = unread
	s.version++

	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *Store) indexOf(id uuid.UUID) int {
	for i, n := range s.records {
		if n.ID == id {
			return i
		}
	}
	return -1
}
