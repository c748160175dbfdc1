package provider

import (
	"context"
	"math"
	"strconv"

	"github.com/axeelhrz/fidelya-notify/internal/domain"
	"github.com/go-resty/resty/v2"
)

const twilioBaseURL = "https://api.twilio.com"

type twilioMessageResponse struct {
	SID     string `json:"sid"`
	Price   string `json:"price"`
	Message string `json:"message"`
}

// sendTwilioMessage posts a form-encoded message to the Twilio API, shared
// by the SMS and WhatsApp adapters.
func sendTwilioMessage(
	ctx context.Context,
	client *resty.Client,
	baseURL string,
	cfg Config,
	providerID string,
	form map[string]string,
) (domain.DeliveryResult, error) {
	var success twilioMessageResponse
	var failure twilioMessageResponse

	response, err := client.R().
		SetContext(ctx).
		SetBasicAuth(cfg.AccountSID, cfg.AuthToken).
		SetFormData(form).
		SetResult(&success).
		SetError(&failure).
		Post(baseURL + "/2010-04-01/Accounts/" + cfg.AccountSID + "/Messages.json")
	if err != nil {
		return domain.DeliveryResult{}, transportError(err)
	}

	if response.IsError() {
		return domain.DeliveryResult{}, statusError(response.StatusCode(), failure.Message)
	}

	result := domain.DeliveryResult{
		Success:    true,
		MessageID:  success.SID,
		ProviderID: providerID,
		Timestamp:  nowUTC(),
	}
	// Twilio reports price as a negative decimal string once known.
	if price, parseErr := strconv.ParseFloat(success.Price, 64); parseErr == nil {
		result.Cost = math.Abs(price)
	}

	return result, nil
}

// TwilioSMSAdapter delivers SMS through the Twilio messaging API.
type TwilioSMSAdapter struct {
	client  *resty.Client
	baseURL string
}

func NewTwilioSMSAdapter(client *resty.Client) *TwilioSMSAdapter {
	return &TwilioSMSAdapter{client: client, baseURL: twilioBaseURL}
}

func (a *TwilioSMSAdapter) ID() string { return "twilio-sms" }

func (a *TwilioSMSAdapter) Send(ctx context.Context, cfg Config, payload Payload) (domain.DeliveryResult, error) {
	if err := payload.Validate(); err != nil {
		return domain.DeliveryResult{}, err
	}

	return sendTwilioMessage(ctx, a.client, a.baseURL, cfg, a.ID(), map[string]string{
		"From": cfg.FromNumber,
		"To":   "+" + cleanPhone(payload.To),
		"Body": payload.Content,
	})
}
