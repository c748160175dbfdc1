package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/axeelhrz/fidelya-notify/internal/domain"
	"github.com/axeelhrz/fidelya-notify/internal/service"
	"github.com/gofiber/fiber/v2"
)

type ABTestService interface {
	Create(ctx context.Context, t *domain.ABTest) error
	GetByID(ctx context.Context, id string) (*domain.ABTest, error)
	List(ctx context.Context, asociacionID string, status *domain.TestStatus) ([]domain.ABTest, error)
	Start(ctx context.Context, id string) (*domain.ABTest, error)
	Pause(ctx context.Context, id string) (*domain.ABTest, error)
	Cancel(ctx context.Context, id string) (*domain.ABTest, error)
	Complete(ctx context.Context, id string) (*domain.TestResult, error)
	RecordEvent(ctx context.Context, testID, variantID string, event domain.EventType) error
	AssignVariant(ctx context.Context, testID, userID string) (*domain.Variant, error)
	Export(ctx context.Context, id string, format service.ExportFormat) ([]byte, error)
}

type ABTestHandler struct {
	service ABTestService
}

func NewABTestHandler(service ABTestService) (*ABTestHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("ab test service is required")
	}
	return &ABTestHandler{service: service}, nil
}

func RegisterABTestRoutes(router fiber.Router, service ABTestService) error {
	h, err := NewABTestHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/ab-tests", h.Create)
	v1.Get("/ab-tests", h.List)
	v1.Get("/ab-tests/:id", h.Get)
	v1.Post("/ab-tests/:id/start", h.Start)
	v1.Post("/ab-tests/:id/pause", h.Pause)
	v1.Post("/ab-tests/:id/cancel", h.Cancel)
	v1.Post("/ab-tests/:id/complete", h.Complete)
	v1.Post("/ab-tests/:id/events", h.RecordEvent)
	v1.Get("/ab-tests/:id/assignment", h.Assignment)
	v1.Get("/ab-tests/:id/export", h.Export)

	return nil
}

type variantRequest struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	TemplateID string            `json:"templateId"`
	Subject    string            `json:"subject"`
	Content    string            `json:"content"`
	Variables  map[string]string `json:"variables"`
	IsControl  bool              `json:"isControl"`
}

type createTestRequest struct {
	Name            string           `json:"name"`
	Description     string           `json:"description"`
	AsociacionID    string           `json:"asociacionId"`
	Variants        []variantRequest `json:"variants"`
	TrafficSplit    []float64        `json:"trafficSplit"`
	DurationDays    int              `json:"durationDays"`
	MinSampleSize   int64            `json:"minSampleSize"`
	ConfidenceLevel float64          `json:"confidenceLevel"`
	CreatedBy       string           `json:"createdBy"`
}

type recordEventRequest struct {
	VariantID string `json:"variantId"`
	Event     string `json:"event"`
}

type abTestResponse struct {
	ID              string             `json:"id"`
	Name            string             `json:"name"`
	Description     string             `json:"description,omitempty"`
	AsociacionID    string             `json:"asociacionId"`
	Status          string             `json:"status"`
	Variants        []domain.Variant   `json:"variants"`
	TrafficSplit    []float64          `json:"trafficSplit"`
	Metrics         domain.TestMetrics `json:"metrics"`
	StartDate       *time.Time         `json:"startDate,omitempty"`
	EndDate         *time.Time         `json:"endDate,omitempty"`
	DurationDays    int                `json:"durationDays"`
	MinSampleSize   int64              `json:"minSampleSize"`
	ConfidenceLevel float64            `json:"confidenceLevel"`
	CreatedAt       time.Time          `json:"createdAt"`
}

func (h *ABTestHandler) Create(c *fiber.Ctx) error {
	var req createTestRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	variants := make([]domain.Variant, 0, len(req.Variants))
	for _, v := range req.Variants {
		variants = append(variants, domain.Variant{
			ID:         strings.TrimSpace(v.ID),
			Name:       v.Name,
			TemplateID: v.TemplateID,
			Subject:    v.Subject,
			Content:    v.Content,
			Variables:  v.Variables,
			IsControl:  v.IsControl,
		})
	}

	test := &domain.ABTest{
		Name:            strings.TrimSpace(req.Name),
		Description:     req.Description,
		AsociacionID:    strings.TrimSpace(req.AsociacionID),
		Variants:        variants,
		TrafficSplit:    req.TrafficSplit,
		DurationDays:    req.DurationDays,
		MinSampleSize:   req.MinSampleSize,
		ConfidenceLevel: req.ConfidenceLevel,
		CreatedBy:       strings.TrimSpace(req.CreatedBy),
	}

	if err := h.service.Create(c.Context(), test); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toABTestResponse(test))
}

func (h *ABTestHandler) List(c *fiber.Ctx) error {
	asociacionID := strings.TrimSpace(c.Query("asociacionId"))

	var status *domain.TestStatus
	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		parsed, err := domain.ParseTestStatusFromString(rawStatus)
		if err != nil {
			return toHTTPError(err)
		}
		status = &parsed
	}

	tests, err := h.service.List(c.Context(), asociacionID, status)
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]abTestResponse, 0, len(tests))
	for i := range tests {
		responses = append(responses, toABTestResponse(&tests[i]))
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": responses})
}

func (h *ABTestHandler) Get(c *fiber.Ctx) error {
	test, err := h.service.GetByID(c.Context(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toABTestResponse(test))
}

func (h *ABTestHandler) Start(c *fiber.Ctx) error {
	test, err := h.service.Start(c.Context(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toABTestResponse(test))
}

func (h *ABTestHandler) Pause(c *fiber.Ctx) error {
	test, err := h.service.Pause(c.Context(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toABTestResponse(test))
}

func (h *ABTestHandler) Cancel(c *fiber.Ctx) error {
	test, err := h.service.Cancel(c.Context(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toABTestResponse(test))
}

func (h *ABTestHandler) Complete(c *fiber.Ctx) error {
	result, err := h.service.Complete(c.Context(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *ABTestHandler) RecordEvent(c *fiber.Ctx) error {
	var req recordEventRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	event, err := domain.ParseEventTypeFromString(req.Event)
	if err != nil {
		return toHTTPError(err)
	}

	testID := strings.TrimSpace(c.Params("id"))
	if err := h.service.RecordEvent(c.Context(), testID, strings.TrimSpace(req.VariantID), event); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"testId":    testID,
		"variantId": req.VariantID,
		"event":     event.String(),
	})
}

func (h *ABTestHandler) Assignment(c *fiber.Ctx) error {
	userID := strings.TrimSpace(c.Query("userId"))
	if userID == "" {
		return toHTTPError(fmt.Errorf("%w: userId is required", domain.ErrValidation))
	}

	variant, err := h.service.AssignVariant(c.Context(), strings.TrimSpace(c.Params("id")), userID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(variant)
}

func (h *ABTestHandler) Export(c *fiber.Ctx) error {
	format := service.ExportFormat(strings.ToLower(strings.TrimSpace(c.Query("format", string(service.ExportCSV)))))

	data, err := h.service.Export(c.Context(), strings.TrimSpace(c.Params("id")), format)
	if err != nil {
		return toHTTPError(err)
	}

	if format == service.ExportJSON {
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	} else {
		c.Set(fiber.HeaderContentType, "text/csv")
	}

	return c.Status(fiber.StatusOK).Send(data)
}

func toABTestResponse(t *domain.ABTest) abTestResponse {
	return abTestResponse{
		ID:              t.ID,
		Name:            t.Name,
		Description:     t.Description,
		AsociacionID:    t.AsociacionID,
		Status:          t.Status.String(),
		Variants:        t.Variants,
		TrafficSplit:    t.TrafficSplit,
		Metrics:         t.Metrics,
		StartDate:       t.StartDate,
		EndDate:         t.EndDate,
		DurationDays:    t.DurationDays,
		MinSampleSize:   t.MinSampleSize,
		ConfidenceLevel: t.ConfidenceLevel,
		CreatedAt:       t.CreatedAt,
	}
}
