package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/axeelhrz/fidelya-notify/internal/domain"
	"github.com/axeelhrz/fidelya-notify/internal/provider"
	"github.com/gofiber/fiber/v2"
)

// ProviderValidator checks a provider configuration with a live test send.
type ProviderValidator interface {
	Validate(ctx context.Context, channel domain.Channel, cfg provider.Config) provider.Validation
}

type ProviderHandler struct {
	validator ProviderValidator
	configs   provider.ConfigSet
}

func NewProviderHandler(validator ProviderValidator, configs provider.ConfigSet) (*ProviderHandler, error) {
	if validator == nil {
		return nil, fmt.Errorf("provider validator is required")
	}
	return &ProviderHandler{validator: validator, configs: configs}, nil
}

func RegisterProviderRoutes(router fiber.Router, validator ProviderValidator, configs provider.ConfigSet) error {
	h, err := NewProviderHandler(validator, configs)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/providers/:channel/validate", h.Validate)
	v1.Get("/providers/cost-estimate", h.CostEstimate)

	return nil
}

type validateProviderRequest struct {
	Name string `json:"name"`
}

func (h *ProviderHandler) Validate(c *fiber.Ctx) error {
	channel, err := domain.ParseChannelFromString(c.Params("channel"))
	if err != nil {
		return toHTTPError(err)
	}

	var req validateProviderRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	cfg, err := h.configs.Resolve(channel, req.Name)
	if err != nil {
		return toHTTPError(err)
	}

	validation := h.validator.Validate(c.Context(), channel, cfg)

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"channel":  channel.String(),
		"provider": cfg.Name,
		"isValid":  validation.IsValid,
		"error":    validation.Error,
	})
}

func (h *ProviderHandler) CostEstimate(c *fiber.Ctx) error {
	channel, err := domain.ParseChannelFromString(c.Query("channel"))
	if err != nil {
		return toHTTPError(err)
	}

	providerName := strings.TrimSpace(c.Query("provider"))
	if providerName == "" {
		return toHTTPError(fmt.Errorf("%w: provider is required", domain.ErrValidation))
	}

	recipients := c.QueryInt("recipients", 1)
	if recipients < 1 {
		return toHTTPError(fmt.Errorf("%w: recipients must be >= 1", domain.ErrValidation))
	}

	country := strings.TrimSpace(c.Query("country"))
	cost := provider.EstimateCost(channel, providerName, recipients, country)

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"channel":       channel.String(),
		"provider":      providerName,
		"recipients":    recipients,
		"country":       country,
		"estimatedCost": cost,
	})
}
