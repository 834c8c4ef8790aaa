package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MGDev761/layrbase-sync/internal/model"
	"github.com/MGDev761/layrbase-sync/internal/repository"
	"github.com/MGDev761/layrbase-sync/pkg/logger"
)

// Service is the server-side ingest path. Platform modules (hr,
// finance, legal, marketing, system) create notifications here; the row
// and its change feed event are written in one transaction.
type Service interface {
	Create(ctx context.Context, notification *model.Notification) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo   repository.NotificationRepository
	logger *logger.Logger
}

func NewService(repo repository.NotificationRepository, log *logger.Logger) Service {
	return &service{
		repo:   repo,
		logger: log,
	}
}

func (s *service) Create(ctx context.Context, notification *model.Notification) error {
	if err := s.validateNotification(notification); err != nil {
		return fmt.Errorf("invalid notification: %w", err)
	}

	notification.ID = uuid.New()
	notification.Read = false
	notification.CreatedAt = time.Now()
	if notification.Kind == "" {
		notification.Kind = model.KindInfo
	}
	if notification.Category == "" {
		notification.Category = "system"
	}

	if err := s.repo.Create(ctx, notification); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	s.logger.Debug("notification created",
		"notification_id", notification.ID.String(),
		"tenant_id", notification.TenantID.String(),
		"category", notification.Category,
	)
	return nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("notification ID is required")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	return nil
}

func (s *service) validateNotification(notification *model.Notification) error {
	if notification.TenantID == uuid.Nil {
		return fmt.Errorf("tenant ID is required")
	}

	if notification.UserID == uuid.Nil {
		return fmt.Errorf("user ID is required")
	}

	if notification.Title == "" {
		return fmt.Errorf("title is required")
	}

	if notification.Message == "" {
		return fmt.Errorf("message is required")
	}

	switch notification.Kind {
	case "", model.KindSuccess, model.KindWarning, model.KindError, model.KindInfo:
	default:
		return fmt.Errorf("unsupported kind: %s", notification.Kind)
	}

	return nil
}
