package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/MGDev761/layrbase-sync/internal/model"
	"github.com/MGDev761/layrbase-sync/internal/repository"
)

type notificationRepository struct {
	*BaseRepository
}

func NewNotificationRepository(base *BaseRepository) repository.NotificationRepository {
	return &notificationRepository{BaseRepository: base}
}

const notificationColumns = `id, tenant_id, user_id, kind, category, title, message, "read", action_url, action_text, created_at`

func (r *notificationRepository) List(ctx context.Context, tenantID, userID uuid.UUID) ([]*model.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE tenant_id = $1 AND user_id = $2
		ORDER BY created_at DESC, id ASC
	`

	notifications := []*model.Notification{}
	if err := r.db.SelectContext(ctx, &notifications, query, tenantID, userID); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, nil
}

func (r *notificationRepository) UnreadCount(ctx context.Context, tenantID, userID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM notifications
		WHERE tenant_id = $1 AND user_id = $2 AND NOT "read"
	`

	var count int
	if err := r.db.GetContext(ctx, &count, query, tenantID, userID); err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead flips a single notification to read and appends the
// corresponding update event to the outbox in the same transaction so
// the user's other devices converge. Marking an already-read or absent
// notification is a no-op.
func (r *notificationRepository) MarkRead(ctx context.Context, id uuid.UUID) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			UPDATE notifications
			SET "read" = true
			WHERE id = $1 AND NOT "read"
			RETURNING ` + notificationColumns + `
		`

		var updated model.Notification
		err := tx.GetContext(ctx, &updated, query, id)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to mark notification read: %w", err)
		}

		return appendOutboxTx(ctx, tx, "notification.update", model.OpUpdate, &updated)
	})
}

// MarkAllRead flips every unread notification for the pair and appends
// one update event per flipped row.
func (r *notificationRepository) MarkAllRead(ctx context.Context, tenantID, userID uuid.UUID) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			UPDATE notifications
			SET "read" = true
			WHERE tenant_id = $1 AND user_id = $2 AND NOT "read"
			RETURNING ` + notificationColumns + `
		`

		updated := []*model.Notification{}
		if err := tx.SelectContext(ctx, &updated, query, tenantID, userID); err != nil {
			return fmt.Errorf("failed to mark all notifications read: %w", err)
		}

		for _, n := range updated {
			if err := appendOutboxTx(ctx, tx, "notification.update", model.OpUpdate, n); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *notificationRepository) Create(ctx context.Context, notification *model.Notification) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO notifications (` + notificationColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`

		_, err := tx.ExecContext(ctx, query,
			notification.ID,
			notification.TenantID,
			notification.UserID,
			notification.Kind,
			notification.Category,
			notification.Title,
			notification.Message,
			notification.Read,
			notification.ActionURL,
			notification.ActionText,
			notification.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create notification: %w", err)
		}

		return appendOutboxTx(ctx, tx, "notification.insert", model.OpInsert, notification)
	})
}

func (r *notificationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			DELETE FROM notifications
			WHERE id = $1
			RETURNING ` + notificationColumns + `
		`

		var deleted model.Notification
		err := tx.GetContext(ctx, &deleted, query, id)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to delete notification: %w", err)
		}

		return appendOutboxTx(ctx, tx, "notification.delete", model.OpDelete, &deleted)
	})
}

func appendOutboxTx(ctx context.Context, tx *sqlx.Tx, eventType string, op model.Operation, rec *model.Notification) error {
	payload, err := json.Marshal(model.ChangeEvent{Operation: op, Record: rec})
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}

	query := `
		INSERT INTO outbox_events (
			id, event_type, tenant_id, user_id, payload, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	now := time.Now()
	_, err = tx.ExecContext(ctx, query,
		uuid.New(),
		eventType,
		rec.TenantID,
		rec.UserID,
		payload,
		model.OutboxStatusPending,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to append outbox event: %w", err)
	}
	return nil
}
