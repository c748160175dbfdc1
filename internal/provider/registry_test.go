package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/axeelhrz/fidelya-notify/internal/domain"
)

type fakeAdapter struct {
	id     string
	sendFn func(ctx context.Context, cfg Config, payload Payload) (domain.DeliveryResult, error)
}

func (f *fakeAdapter) ID() string { return f.id }

func (f *fakeAdapter) Send(ctx context.Context, cfg Config, payload Payload) (domain.DeliveryResult, error) {
	return f.sendFn(ctx, cfg, payload)
}

func TestRegistryLookup(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(nil)
	adapter := &fakeAdapter{id: "fake-email"}
	registry.Register(domain.ChannelEmail, "SendGrid", adapter)

	got, err := registry.Lookup(domain.ChannelEmail, "sendgrid")
	if err != nil {
		t.Fatalf("Lookup() unexpected error: %v", err)
	}
	if got != adapter {
		t.Fatal("Lookup() returned a different adapter")
	}

	if _, err := registry.Lookup(domain.ChannelEmail, "mailgun"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Lookup() error = %v, want ErrValidation", err)
	}
	if _, err := registry.Lookup(domain.ChannelSMS, "sendgrid"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Lookup() across channels error = %v, want ErrValidation", err)
	}
}

func TestRegistrySendNormalizesAdapterError(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(nil)
	registry.Register(domain.ChannelEmail, "sendgrid", &fakeAdapter{
		id: "sendgrid",
		sendFn: func(context.Context, Config, Payload) (domain.DeliveryResult, error) {
			return domain.DeliveryResult{}, statusError(500, "upstream down")
		},
	})

	result := registry.Send(context.Background(), domain.ChannelEmail, Config{Name: "sendgrid"}, testPayload())

	if result.Success {
		t.Fatal("result.Success = true, want false")
	}
	if result.Error == "" {
		t.Fatal("result.Error is empty, want the adapter error message")
	}
	if result.ProviderID != "sendgrid" {
		t.Fatalf("ProviderID = %q, want %q", result.ProviderID, "sendgrid")
	}
	if result.Timestamp.IsZero() {
		t.Fatal("Timestamp is zero, want the failure time")
	}
}

func TestRegistrySendUnknownProvider(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(nil)

	result := registry.Send(context.Background(), domain.ChannelEmail, Config{Name: "nope"}, testPayload())
	if result.Success {
		t.Fatal("result.Success = true, want false")
	}
}

func TestRegistryValidate(t *testing.T) {
	t.Parallel()

	var gotTo string
	registry := NewRegistry(nil)
	registry.Register(domain.ChannelEmail, "sendgrid", &fakeAdapter{
		id: "sendgrid",
		sendFn: func(_ context.Context, _ Config, payload Payload) (domain.DeliveryResult, error) {
			gotTo = payload.To
			return domain.DeliveryResult{Success: true, MessageID: "m1", ProviderID: "sendgrid"}, nil
		},
	})

	validation := registry.Validate(context.Background(), domain.ChannelEmail, Config{Name: "sendgrid"})
	if !validation.IsValid {
		t.Fatalf("IsValid = false, error = %q", validation.Error)
	}
	if gotTo != "test@example.com" {
		t.Fatalf("test recipient = %q, want test@example.com", gotTo)
	}
}

func TestNewDefaultRegistryCoversAllChannels(t *testing.T) {
	t.Parallel()

	registry := NewDefaultRegistry(NewHTTPClient(), nil)

	wantAdapters := []struct {
		channel domain.Channel
		name    string
		id      string
	}{
		{domain.ChannelEmail, "sendgrid", "sendgrid"},
		{domain.ChannelEmail, "resend", "resend"},
		{domain.ChannelWhatsApp, "meta", "meta-whatsapp"},
		{domain.ChannelWhatsApp, "twilio", "twilio-whatsapp"},
		{domain.ChannelWhatsApp, "360dialog", "360dialog"},
		{domain.ChannelSMS, "twilio", "twilio-sms"},
		{domain.ChannelPush, SimulatedName, "fcm"},
		{domain.ChannelApp, SimulatedName, "inapp"},
	}

	for _, want := range wantAdapters {
		adapter, err := registry.Lookup(want.channel, want.name)
		if err != nil {
			t.Fatalf("Lookup(%s, %s) error = %v", want.channel, want.name, err)
		}
		if adapter.ID() != want.id {
			t.Fatalf("Lookup(%s, %s).ID() = %q, want %q", want.channel, want.name, adapter.ID(), want.id)
		}
	}
}

func TestConfigSetResolve(t *testing.T) {
	t.Parallel()

	set := ConfigSet{
		domain.ChannelEmail: {
			{Name: "sendgrid", APIKey: "sg"},
			{Name: "resend", APIKey: "re"},
		},
	}

	testCases := []struct {
		name     string
		channel  domain.Channel
		override string
		wantName string
		wantErr  bool
	}{
		{name: "default is first configured", channel: domain.ChannelEmail, wantName: "sendgrid"},
		{name: "override selects by name", channel: domain.ChannelEmail, override: "Resend", wantName: "resend"},
		{name: "unknown override rejected", channel: domain.ChannelEmail, override: "mailgun", wantErr: true},
		{name: "unconfigured channel rejected", channel: domain.ChannelSMS, wantErr: true},
		{name: "push resolves to simulated", channel: domain.ChannelPush, wantName: SimulatedName},
		{name: "app resolves to simulated", channel: domain.ChannelApp, wantName: SimulatedName},
	}

	for _, tt := range testCases {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := set.Resolve(tt.channel, tt.override)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrValidation) {
					t.Fatalf("Resolve() error = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() unexpected error: %v", err)
			}
			if cfg.Name != tt.wantName {
				t.Fatalf("Resolve().Name = %q, want %q", cfg.Name, tt.wantName)
			}
		})
	}
}

func TestEstimateCost(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		channel    domain.Channel
		provider   string
		recipients int
		country    string
		want       float64
	}{
		{name: "sendgrid per recipient", channel: domain.ChannelEmail, provider: "sendgrid", recipients: 1000, want: 0.6},
		{name: "twilio sms us baseline", channel: domain.ChannelSMS, provider: "twilio", recipients: 100, country: "US", want: 0.75},
		{name: "twilio sms mexico discount", channel: domain.ChannelSMS, provider: "twilio", recipients: 100, country: "MX", want: 0.6},
		{name: "unlisted country defaults high", channel: domain.ChannelSMS, provider: "twilio", recipients: 100, country: "JP", want: 0.9},
		{name: "whatsapp 360dialog", channel: domain.ChannelWhatsApp, provider: "360dialog", recipients: 10, want: 0.04},
		{name: "unknown provider is free", channel: domain.ChannelEmail, provider: "pigeon", recipients: 50, want: 0},
		{name: "zero recipients", channel: domain.ChannelEmail, provider: "sendgrid", recipients: 0, want: 0},
	}

	for _, tt := range testCases {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := EstimateCost(tt.channel, tt.provider, tt.recipients, tt.country)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Fatalf("EstimateCost() = %v, want %v", got, tt.want)
			}
		})
	}
}
