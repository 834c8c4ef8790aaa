package notification

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/MGDev761/layrbase-sync/internal/handler"
	"github.com/MGDev761/layrbase-sync/internal/middleware"
	"github.com/MGDev761/layrbase-sync/internal/model"
	notificationService "github.com/MGDev761/layrbase-sync/internal/service/notification"
	syncEngine "github.com/MGDev761/layrbase-sync/internal/sync"
	"github.com/MGDev761/layrbase-sync/pkg/logger"
)

const streamHeartbeat = 25 * time.Second

type Handler struct {
	manager *syncEngine.Manager
	service notificationService.Service
	logger  *logger.Logger
}

func NewHandler(manager *syncEngine.Manager, service notificationService.Service, log *logger.Logger) *Handler {
	return &Handler{
		manager: manager,
		service: service,
		logger:  log,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	notifications := r.Group("/notifications")
	{
		notifications.GET("", h.ListNotifications)
		notifications.GET("/stream", h.StreamNotifications)
		notifications.POST("", h.CreateNotification)
		notifications.POST("/:id/read", h.MarkRead)
		notifications.POST("/read-all", h.MarkAllRead)
		notifications.POST("/refresh", h.Refresh)
		notifications.DELETE("/:id", h.DeleteNotification)
	}
	r.DELETE("/session", h.ReleaseSession)
}

// ListNotifications returns the current snapshot for the caller's
// session: ordered records, the derived unread count and the store
// status. A failed initial fetch still answers 200 with an errored
// status so the UI can render its retry state.
func (h *Handler) ListNotifications(c *gin.Context) {
	syncer, err := h.manager.Acquire(c.Request.Context(), middleware.TenantID(c), middleware.UserID(c))
	if err != nil {
		h.logger.Error(err, "session acquire failed")
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(syncer.Snapshot()))
}

// StreamNotifications holds an SSE stream open and emits a fresh
// snapshot after every store change, plus periodic heartbeats.
func (h *Handler) StreamNotifications(c *gin.Context) {
	syncer, err := h.manager.Acquire(c.Request.Context(), middleware.TenantID(c), middleware.UserID(c))
	if err != nil {
		h.logger.Error(err, "session acquire failed")
	}

	changes, cancel, err := syncer.Subscribe()
	if err != nil {
		c.JSON(handler.HTTPStatus(err), handler.NewErrorResponse(err.Error()))
		return
	}
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.SSEvent("snapshot", syncer.Snapshot())
	c.Writer.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-changes:
			c.SSEvent("snapshot", syncer.Snapshot())
			return true
		case <-heartbeat.C:
			c.SSEvent("heartbeat", time.Now().Unix())
			return true
		}
	})
}

func (h *Handler) MarkRead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid notification ID"))
		return
	}

	syncer, err := h.manager.Acquire(c.Request.Context(), middleware.TenantID(c), middleware.UserID(c))
	if err != nil {
		h.logger.Error(err, "session acquire failed")
	}

	if err := syncer.MarkRead(c.Request.Context(), id); err != nil {
		c.JSON(handler.HTTPStatus(err), handler.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(syncer.Snapshot()))
}

func (h *Handler) MarkAllRead(c *gin.Context) {
	syncer, err := h.manager.Acquire(c.Request.Context(), middleware.TenantID(c), middleware.UserID(c))
	if err != nil {
		h.logger.Error(err, "session acquire failed")
	}

	if err := syncer.MarkAllRead(c.Request.Context()); err != nil {
		c.JSON(handler.HTTPStatus(err), handler.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(syncer.Snapshot()))
}

// Refresh forces a bulk re-fetch for the caller's session; the UI's
// manual retry after a "couldn't load notifications" state.
func (h *Handler) Refresh(c *gin.Context) {
	syncer, err := h.manager.Acquire(c.Request.Context(), middleware.TenantID(c), middleware.UserID(c))
	if err != nil {
		h.logger.Error(err, "session acquire failed")
	}

	if err := syncer.Refresh(c.Request.Context()); err != nil {
		c.JSON(handler.HTTPStatus(err), handler.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(syncer.Snapshot()))
}

// ReleaseSession tears the caller's session down; called on sign-out
// and tenant switch so a stale feed can never deliver into the next
// identity's store.
func (h *Handler) ReleaseSession(c *gin.Context) {
	h.manager.Release(middleware.TenantID(c), middleware.UserID(c))
	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

type CreateNotificationRequest struct {
	UserID     string `json:"user_id" binding:"required,uuid"`
	Kind       string `json:"kind" binding:"omitempty,oneof=success warning error info"`
	Category   string `json:"category"`
	Title      string `json:"title" binding:"required"`
	Message    string `json:"message" binding:"required"`
	ActionURL  string `json:"action_url"`
	ActionText string `json:"action_text"`
}

// CreateNotification is the server-side ingest entry point used by
// other platform modules; end-user clients never create notifications.
func (h *Handler) CreateNotification(c *gin.Context) {
	var req CreateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid user ID"))
		return
	}

	notification := &model.Notification{
		TenantID:   middleware.TenantID(c),
		UserID:     userID,
		Kind:       model.Kind(req.Kind),
		Category:   req.Category,
		Title:      req.Title,
		Message:    req.Message,
		ActionURL:  req.ActionURL,
		ActionText: req.ActionText,
	}

	if err := h.service.Create(c.Request.Context(), notification); err != nil {
		c.JSON(handler.HTTPStatus(err), handler.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(notification))
}

func (h *Handler) DeleteNotification(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid notification ID"))
		return
	}

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		c.JSON(handler.HTTPStatus(err), handler.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}
