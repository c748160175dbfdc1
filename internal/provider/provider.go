package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/axeelhrz/fidelya-notify/internal/domain"
	"go.uber.org/zap"
)

// Payload is the resolved message handed to an adapter. Contact resolution
// and template lookup happen upstream; adapters only ship what they receive.
type Payload struct {
	To          string
	Subject     string
	Content     string
	HTMLContent string
	TemplateID  string
	Variables   map[string]string
}

func (p Payload) Validate() error {
	if strings.TrimSpace(p.To) == "" {
		return fmt.Errorf("%w: payload recipient is required", domain.ErrValidation)
	}
	if strings.TrimSpace(p.Content) == "" {
		return fmt.Errorf("%w: payload content is required", domain.ErrValidation)
	}
	return nil
}

// Config holds the credentials for one provider. It is injected explicitly
// at construction time and never read from ambient globals.
type Config struct {
	Name          string
	APIKey        string
	FromEmail     string
	FromName      string
	PhoneNumberID string
	AccessToken   string
	AccountSID    string
	AuthToken     string
	FromNumber    string
}

// Adapter delivers a payload through one concrete provider.
type Adapter interface {
	// ID identifies the provider in delivery results, e.g. "twilio-sms".
	ID() string
	Send(ctx context.Context, cfg Config, payload Payload) (domain.DeliveryResult, error)
}

// Validation is the outcome of a provider configuration check.
type Validation struct {
	IsValid bool   `json:"isValid"`
	Error   string `json:"error,omitempty"`
}

// Registry dispatches sends to the adapter registered for a channel and
// provider name. One adapter per (channel, name) pair.
type Registry struct {
	adapters map[domain.Channel]map[string]Adapter
	logger   *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		adapters: make(map[domain.Channel]map[string]Adapter),
		logger:   logger,
	}
}

func (r *Registry) Register(channel domain.Channel, name string, adapter Adapter) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if r.adapters[channel] == nil {
		r.adapters[channel] = make(map[string]Adapter)
	}
	r.adapters[channel][normalized] = adapter
}

func (r *Registry) Lookup(channel domain.Channel, name string) (Adapter, error) {
	adapter, ok := r.adapters[channel][strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: no %s provider named %q", domain.ErrValidation, channel, name)
	}
	return adapter, nil
}

// Send delivers the payload through the provider named in cfg and always
// returns a DeliveryResult; adapter errors are normalized into it.
func (r *Registry) Send(ctx context.Context, channel domain.Channel, cfg Config, payload Payload) domain.DeliveryResult {
	adapter, err := r.Lookup(channel, cfg.Name)
	if err != nil {
		return failedResult(strings.ToLower(cfg.Name), err)
	}

	result, err := adapter.Send(ctx, cfg, payload)
	if err != nil {
		r.logger.Warn("provider send failed",
			zap.String("channel", channel.String()),
			zap.String("provider", adapter.ID()),
			zap.Error(err),
		)
		return failedResult(adapter.ID(), err)
	}

	return result
}

// Validate sends a canned test payload and reports whether the provider
// configuration works end to end.
func (r *Registry) Validate(ctx context.Context, channel domain.Channel, cfg Config) Validation {
	to := "+1234567890"
	if channel == domain.ChannelEmail {
		to = "test@example.com"
	}

	result := r.Send(ctx, channel, cfg, Payload{
		To:      to,
		Subject: "Configuration test",
		Content: "This is a test message to validate the provider configuration.",
	})

	return Validation{IsValid: result.Success, Error: result.Error}
}

func failedResult(providerID string, err error) domain.DeliveryResult {
	return domain.DeliveryResult{
		Success:    false,
		Error:      err.Error(),
		ProviderID: providerID,
		Timestamp:  nowUTC(),
	}
}
