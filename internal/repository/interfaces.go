package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/MGDev761/layrbase-sync/internal/model"
)

// All repository interfaces in one file
type (
	// NotificationRepository is the backing store the sync engine reads
	// from and acknowledges against. Fetches return newest-first; the
	// mark operations are idempotent and safe to retry.
	NotificationRepository interface {
		List(ctx context.Context, tenantID, userID uuid.UUID) ([]*model.Notification, error)
		UnreadCount(ctx context.Context, tenantID, userID uuid.UUID) (int, error)
		MarkRead(ctx context.Context, id uuid.UUID) error
		MarkAllRead(ctx context.Context, tenantID, userID uuid.UUID) error

		// Create is used by server-side ingest only; the sync client
		// never creates or deletes notifications.
		Create(ctx context.Context, notification *model.Notification) error
		Delete(ctx context.Context, id uuid.UUID) error
	}

	// OutboxRepository drains the transactional outbox feeding the
	// change feed publisher. Claiming happens inside a caller-held
	// transaction so FOR UPDATE SKIP LOCKED keeps concurrent publishers
	// off the same rows.
	OutboxRepository interface {
		BeginTx(ctx context.Context) (*sqlx.Tx, error)
		PendingTx(ctx context.Context, tx *sqlx.Tx, limit int) ([]*model.OutboxEvent, error)
		MarkProcessedTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error
		MarkRetryTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, errMsg string, retryAt time.Time) error
		MarkFailedTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, errMsg string) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
