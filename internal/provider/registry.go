package provider

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/axeelhrz/fidelya-notify/internal/domain"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const httpTimeout = 10 * time.Second

// NewHTTPClient builds the resty client shared by every outbound adapter.
func NewHTTPClient() *resty.Client {
	return resty.NewWithClient(&http.Client{Timeout: httpTimeout})
}

// NewDefaultRegistry registers every built-in adapter under its configured
// provider name.
func NewDefaultRegistry(client *resty.Client, logger *zap.Logger) *Registry {
	registry := NewRegistry(logger)

	registry.Register(domain.ChannelEmail, "sendgrid", NewSendGridAdapter(client))
	registry.Register(domain.ChannelEmail, "resend", NewResendAdapter(client))

	registry.Register(domain.ChannelWhatsApp, "meta", NewMetaWhatsAppAdapter(client))
	registry.Register(domain.ChannelWhatsApp, "twilio", NewTwilioWhatsAppAdapter(client))
	registry.Register(domain.ChannelWhatsApp, "360dialog", NewDialog360Adapter(client))

	registry.Register(domain.ChannelSMS, "twilio", NewTwilioSMSAdapter(client))

	registry.Register(domain.ChannelPush, SimulatedName, NewSimulatedPushAdapter())
	registry.Register(domain.ChannelApp, SimulatedName, NewSimulatedInAppAdapter())

	return registry
}

// ConfigSet holds the injected provider configurations per channel, in
// preference order: the first entry is the channel default.
type ConfigSet map[domain.Channel][]Config

// Resolve picks the configuration for a channel. An empty overrideName
// selects the channel default; the simulated channels always resolve even
// without configuration.
func (s ConfigSet) Resolve(channel domain.Channel, overrideName string) (Config, error) {
	configs := s[channel]

	name := strings.ToLower(strings.TrimSpace(overrideName))
	if name == "" {
		if len(configs) > 0 {
			return configs[0], nil
		}
	} else {
		for _, cfg := range configs {
			if strings.ToLower(cfg.Name) == name {
				return cfg, nil
			}
		}
	}

	if channel == domain.ChannelPush || channel == domain.ChannelApp {
		return Config{Name: SimulatedName}, nil
	}

	if name != "" {
		return Config{}, fmt.Errorf("%w: no %s provider configured with name %q", domain.ErrValidation, channel, overrideName)
	}
	return Config{}, fmt.Errorf("%w: no provider configured for channel %s", domain.ErrValidation, channel)
}
