package provider

import (
	"context"
	"fmt"

	"github.com/axeelhrz/fidelya-notify/internal/domain"
	"github.com/google/uuid"
)

// SimulatedName is the provider name under which the push and in-app
// placeholder adapters register.
const SimulatedName = "simulated"

// SimulatedAdapter is a placeholder for channels without a real outbound
// integration (push, in-app). It performs no network call and returns a
// synthetic success; it must not be mistaken for a delivery guarantee.
type SimulatedAdapter struct {
	providerID string
	prefix     string
}

func NewSimulatedPushAdapter() *SimulatedAdapter {
	return &SimulatedAdapter{providerID: "fcm", prefix: "push"}
}

func NewSimulatedInAppAdapter() *SimulatedAdapter {
	return &SimulatedAdapter{providerID: "inapp", prefix: "app"}
}

func (a *SimulatedAdapter) ID() string { return a.providerID }

func (a *SimulatedAdapter) Send(ctx context.Context, _ Config, payload Payload) (domain.DeliveryResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.DeliveryResult{}, err
	}
	if err := payload.Validate(); err != nil {
		return domain.DeliveryResult{}, err
	}

	return domain.DeliveryResult{
		Success:    true,
		MessageID:  fmt.Sprintf("%s_%s", a.prefix, uuid.NewString()),
		ProviderID: a.providerID,
		Timestamp:  nowUTC(),
	}, nil
}
