package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/axeelhrz/fidelya-notify/internal/domain"
	"github.com/axeelhrz/fidelya-notify/internal/repository"
	"github.com/axeelhrz/fidelya-notify/internal/service"
	"github.com/gofiber/fiber/v2"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type QueueService interface {
	Enqueue(ctx context.Context, n *domain.QueuedNotification) error
	EnqueueBatch(ctx context.Context, notifications []*domain.QueuedNotification) error
	GetByID(ctx context.Context, id string) (*domain.QueuedNotification, error)
	Cancel(ctx context.Context, id string) error
	Pause(ctx context.Context, filter repository.QueueFilter) (int64, error)
	Resume(ctx context.Context, filter repository.QueueFilter) (int64, error)
	Stats(ctx context.Context, asociacionID string, timeRange *repository.TimeRange) (*domain.QueueStats, error)
	ChannelPerformance(ctx context.Context, asociacionID string, days int) (map[string]domain.ChannelStats, error)
	RetryFailed(ctx context.Context, asociacionID string, maxAgeHours int) (int64, error)
	ListByStatus(ctx context.Context, status domain.Status, asociacionID string, limit int) ([]domain.QueuedNotification, error)
}

// QueueProcessor triggers one manual dispatch pass.
type QueueProcessor interface {
	ProcessQueue(ctx context.Context, batchSize int) (*service.ProcessResult, error)
}

type QueueHandler struct {
	service   QueueService
	processor QueueProcessor
}

func NewQueueHandler(service QueueService, processor QueueProcessor) (*QueueHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("queue service is required")
	}
	if processor == nil {
		return nil, fmt.Errorf("queue processor is required")
	}
	return &QueueHandler{service: service, processor: processor}, nil
}

func RegisterQueueRoutes(router fiber.Router, service QueueService, processor QueueProcessor) error {
	h, err := NewQueueHandler(service, processor)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/queue", h.Enqueue)
	v1.Post("/queue/batch", h.EnqueueBatch)
	v1.Post("/queue/process", h.Process)
	v1.Post("/queue/pause", h.Pause)
	v1.Post("/queue/resume", h.Resume)
	v1.Post("/queue/retry-failed", h.RetryFailed)
	v1.Get("/queue/stats", h.Stats)
	v1.Get("/queue/performance", h.ChannelPerformance)
	v1.Get("/queue", h.List)
	v1.Get("/queue/:id", h.Get)
	v1.Post("/queue/:id/cancel", h.Cancel)

	return nil
}

type metadataRequest struct {
	TemplateID   string            `json:"templateId"`
	Variables    map[string]string `json:"variables"`
	AsociacionID string            `json:"asociacionId"`
	TestID       string            `json:"testId"`
	VariantID    string            `json:"variantId"`
	ProviderName string            `json:"providerName"`
}

type enqueueRequest struct {
	NotificationID string          `json:"notificationId"`
	RecipientID    string          `json:"recipientId"`
	RecipientType  string          `json:"recipientType"`
	Channel        string          `json:"channel"`
	Priority       string          `json:"priority"`
	Recipient      string          `json:"recipient"`
	Subject        string          `json:"subject"`
	Content        string          `json:"content"`
	HTMLContent    string          `json:"htmlContent"`
	ScheduledFor   *time.Time      `json:"scheduledFor"`
	MaxAttempts    *int            `json:"maxAttempts"`
	Metadata       metadataRequest `json:"metadata"`
}

type enqueueBatchRequest struct {
	Notifications []enqueueRequest `json:"notifications"`
}

type queuedNotificationResponse struct {
	ID             string                 `json:"id"`
	NotificationID string                 `json:"notificationId,omitempty"`
	RecipientID    string                 `json:"recipientId"`
	RecipientType  string                 `json:"recipientType"`
	Channel        string                 `json:"channel"`
	Priority       string                 `json:"priority"`
	Status         string                 `json:"status"`
	Recipient      string                 `json:"recipient"`
	Subject        string                 `json:"subject,omitempty"`
	ScheduledFor   time.Time              `json:"scheduledFor"`
	Attempts       int                    `json:"attempts"`
	MaxAttempts    int                    `json:"maxAttempts"`
	LastAttempt    *time.Time             `json:"lastAttempt,omitempty"`
	ErrorMessage   *string                `json:"errorMessage,omitempty"`
	DeliveryResult *domain.DeliveryResult `json:"deliveryResult,omitempty"`
	CreatedAt      time.Time              `json:"createdAt"`
}

func (h *QueueHandler) Enqueue(c *fiber.Ctx) error {
	var req enqueueRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	notification, err := requestToQueuedNotification(req)
	if err != nil {
		return toHTTPError(err)
	}

	if err := h.service.Enqueue(c.Context(), notification); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(toQueuedResponse(notification))
}

func (h *QueueHandler) EnqueueBatch(c *fiber.Ctx) error {
	var req enqueueBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	notifications := make([]*domain.QueuedNotification, 0, len(req.Notifications))
	for _, item := range req.Notifications {
		n, err := requestToQueuedNotification(item)
		if err != nil {
			return toHTTPError(err)
		}
		notifications = append(notifications, n)
	}

	if err := h.service.EnqueueBatch(c.Context(), notifications); err != nil {
		return toHTTPError(err)
	}

	responses := make([]queuedNotificationResponse, 0, len(notifications))
	for _, n := range notifications {
		responses = append(responses, toQueuedResponse(n))
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"count":         len(responses),
		"notifications": responses,
	})
}

func (h *QueueHandler) Process(c *fiber.Ctx) error {
	batchSize := c.QueryInt("batchSize", 0)

	result, err := h.processor.ProcessQueue(c.Context(), batchSize)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *QueueHandler) Get(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	notification, err := h.service.GetByID(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toQueuedResponse(notification))
}

func (h *QueueHandler) Cancel(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.service.Cancel(c.Context(), id); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"id":     id,
		"status": domain.StatusCancelled.String(),
	})
}

func (h *QueueHandler) Pause(c *fiber.Ctx) error {
	filter, err := parseQueueFilter(c)
	if err != nil {
		return toHTTPError(err)
	}

	count, err := h.service.Pause(c.Context(), filter)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"paused": count})
}

func (h *QueueHandler) Resume(c *fiber.Ctx) error {
	filter, err := parseQueueFilter(c)
	if err != nil {
		return toHTTPError(err)
	}

	count, err := h.service.Resume(c.Context(), filter)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"resumed": count})
}

func (h *QueueHandler) RetryFailed(c *fiber.Ctx) error {
	asociacionID := strings.TrimSpace(c.Query("asociacionId"))
	maxAgeHours := c.QueryInt("maxAgeHours", 0)

	count, err := h.service.RetryFailed(c.Context(), asociacionID, maxAgeHours)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"requeued": count})
}

func (h *QueueHandler) Stats(c *fiber.Ctx) error {
	asociacionID := strings.TrimSpace(c.Query("asociacionId"))

	timeRange, err := parseTimeRange(c)
	if err != nil {
		return toHTTPError(err)
	}

	stats, err := h.service.Stats(c.Context(), asociacionID, timeRange)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(stats)
}

func (h *QueueHandler) ChannelPerformance(c *fiber.Ctx) error {
	asociacionID := strings.TrimSpace(c.Query("asociacionId"))
	days := c.QueryInt("days", 7)

	performance, err := h.service.ChannelPerformance(c.Context(), asociacionID, days)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(performance)
}

func (h *QueueHandler) List(c *fiber.Ctx) error {
	status, err := domain.ParseStatusFromString(c.Query("status", domain.StatusPending.String()))
	if err != nil {
		return toHTTPError(err)
	}

	limit := c.QueryInt("limit", defaultListLimit)
	if limit < 1 || limit > maxListLimit {
		return toHTTPError(fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrValidation, maxListLimit))
	}

	notifications, err := h.service.ListByStatus(c.Context(), status, strings.TrimSpace(c.Query("asociacionId")), limit)
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]queuedNotificationResponse, 0, len(notifications))
	for i := range notifications {
		responses = append(responses, toQueuedResponse(&notifications[i]))
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": responses})
}

func parseQueueFilter(c *fiber.Ctx) (repository.QueueFilter, error) {
	filter := repository.QueueFilter{
		AsociacionID: strings.TrimSpace(c.Query("asociacionId")),
	}

	if rawChannel := strings.TrimSpace(c.Query("channel")); rawChannel != "" {
		channel, err := domain.ParseChannelFromString(rawChannel)
		if err != nil {
			return repository.QueueFilter{}, err
		}
		filter.Channel = &channel
	}

	return filter, nil
}

func parseTimeRange(c *fiber.Ctx) (*repository.TimeRange, error) {
	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return nil, err
	}
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return nil, err
	}

	if from == nil && to == nil {
		return nil, nil
	}
	if from == nil || to == nil {
		return nil, fmt.Errorf("%w: from and to must be provided together", domain.ErrValidation)
	}

	return &repository.TimeRange{Start: *from, End: *to}, nil
}

func parseRFC3339Query(value string, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", domain.ErrValidation, field)
	}
	return &t, nil
}

func requestToQueuedNotification(req enqueueRequest) (*domain.QueuedNotification, error) {
	channel, err := domain.ParseChannelFromString(req.Channel)
	if err != nil {
		return nil, err
	}

	recipientType, err := domain.ParseRecipientTypeFromString(req.RecipientType)
	if err != nil {
		return nil, err
	}

	n := &domain.QueuedNotification{
		NotificationID: strings.TrimSpace(req.NotificationID),
		RecipientID:    strings.TrimSpace(req.RecipientID),
		RecipientType:  recipientType,
		Channel:        channel,
		Recipient:      strings.TrimSpace(req.Recipient),
		Subject:        req.Subject,
		Content:        req.Content,
		HTMLContent:    req.HTMLContent,
		Metadata: domain.Metadata{
			TemplateID:   req.Metadata.TemplateID,
			Variables:    req.Metadata.Variables,
			AsociacionID: req.Metadata.AsociacionID,
			TestID:       req.Metadata.TestID,
			VariantID:    req.Metadata.VariantID,
			ProviderName: req.Metadata.ProviderName,
		},
	}

	if rawPriority := strings.TrimSpace(req.Priority); rawPriority != "" {
		priority, err := domain.ParsePriorityFromString(rawPriority)
		if err != nil {
			return nil, err
		}
		n.Priority = priority
	}
	if req.ScheduledFor != nil {
		n.ScheduledFor = *req.ScheduledFor
	}
	if req.MaxAttempts != nil {
		n.MaxAttempts = *req.MaxAttempts
	}

	return n, nil
}

func toQueuedResponse(n *domain.QueuedNotification) queuedNotificationResponse {
	return queuedNotificationResponse{
		ID:             n.ID,
		NotificationID: n.NotificationID,
		RecipientID:    n.RecipientID,
		RecipientType:  n.RecipientType.String(),
		Channel:        n.Channel.String(),
		Priority:       n.Priority.String(),
		Status:         n.Status.String(),
		Recipient:      n.Recipient,
		Subject:        n.Subject,
		ScheduledFor:   n.ScheduledFor,
		Attempts:       n.Attempts,
		MaxAttempts:    n.MaxAttempts,
		LastAttempt:    n.LastAttempt,
		ErrorMessage:   n.ErrorMessage,
		DeliveryResult: n.DeliveryResult,
		CreatedAt:      n.CreatedAt,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
