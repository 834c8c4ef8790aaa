package model

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

// Kind is a presentation hint; it has no effect on sync behavior.
type Kind string

const (
	KindSuccess Kind = "success"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
	KindInfo    Kind = "info"
)

// Notification is a single row of the externally-owned notification
// resource. The sync engine mutates only Read; everything else is
// immutable after creation.
type Notification struct {
	ID         uuid.UUID `json:"id" db:"id"`
	TenantID   uuid.UUID `json:"tenant_id" db:"tenant_id"`
	UserID     uuid.UUID `json:"user_id" db:"user_id"`
	Kind       Kind      `json:"kind" db:"kind"`
	Category   string    `json:"category" db:"category"`
	Title      string    `json:"title" db:"title"`
	Message    string    `json:"message" db:"message"`
	Read       bool      `json:"read" db:"read"`
	ActionURL  string    `json:"action_url,omitempty" db:"action_url"`
	ActionText string    `json:"action_text,omitempty" db:"action_text"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Before reports whether n sorts ahead of other in the display order:
// newest first, ties broken by id so the order stays a deterministic
// total order even when timestamps collide.
func (n *Notification) Before(other *Notification) bool {
	if !n.CreatedAt.Equal(other.CreatedAt) {
		return n.CreatedAt.After(other.CreatedAt)
	}
	return bytes.Compare(n.ID[:], other.ID[:]) < 0
}

// Operation identifies the row-level change a feed event describes.
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// ChangeEvent is the wire shape of one change-feed message. Delivery is
// best-effort: events may arrive duplicated or out of order, and the
// record may describe a row the subscriber has never seen.
type ChangeEvent struct {
	Operation Operation     `json:"operation"`
	Record    *Notification `json:"record"`
}
