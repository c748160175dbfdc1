package provider

import (
	"context"
	"strings"
	"unicode"

	"github.com/axeelhrz/fidelya-notify/internal/domain"
	"github.com/go-resty/resty/v2"
)

const (
	metaGraphBaseURL  = "https://graph.facebook.com/v18.0"
	dialog360BaseURL  = "https://waba.360dialog.io"
	twilioSandboxFrom = "whatsapp:+14155238886"
)

// cleanPhone strips everything but digits from a phone number.
func cleanPhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MetaWhatsAppAdapter delivers WhatsApp messages via the Meta Graph API.
type MetaWhatsAppAdapter struct {
	client  *resty.Client
	baseURL string
}

func NewMetaWhatsAppAdapter(client *resty.Client) *MetaWhatsAppAdapter {
	return &MetaWhatsAppAdapter{client: client, baseURL: metaGraphBaseURL}
}

func (a *MetaWhatsAppAdapter) ID() string { return "meta-whatsapp" }

type whatsAppTextRequest struct {
	MessagingProduct string          `json:"messaging_product,omitempty"`
	To               string          `json:"to"`
	Type             string          `json:"type"`
	Text             whatsAppMessage `json:"text"`
}

type whatsAppMessage struct {
	Body string `json:"body"`
}

type whatsAppMessagesResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type metaErrorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (a *MetaWhatsAppAdapter) Send(ctx context.Context, cfg Config, payload Payload) (domain.DeliveryResult, error) {
	if err := payload.Validate(); err != nil {
		return domain.DeliveryResult{}, err
	}

	req := whatsAppTextRequest{
		MessagingProduct: "whatsapp",
		To:               cleanPhone(payload.To),
		Type:             "text",
		Text:             whatsAppMessage{Body: payload.Content},
	}

	var success whatsAppMessagesResponse
	var failure metaErrorBody
	response, err := a.client.R().
		SetContext(ctx).
		SetAuthToken(cfg.AccessToken).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetResult(&success).
		SetError(&failure).
		Post(a.baseURL + "/" + cfg.PhoneNumberID + "/messages")
	if err != nil {
		return domain.DeliveryResult{}, transportError(err)
	}

	if response.IsError() {
		return domain.DeliveryResult{}, statusError(response.StatusCode(), failure.Error.Message)
	}

	messageID := ""
	if len(success.Messages) > 0 {
		messageID = success.Messages[0].ID
	}

	return domain.DeliveryResult{
		Success:    true,
		MessageID:  messageID,
		ProviderID: a.ID(),
		Timestamp:  nowUTC(),
	}, nil
}

// TwilioWhatsAppAdapter delivers WhatsApp messages through the Twilio
// messaging API.
type TwilioWhatsAppAdapter struct {
	client  *resty.Client
	baseURL string
}

func NewTwilioWhatsAppAdapter(client *resty.Client) *TwilioWhatsAppAdapter {
	return &TwilioWhatsAppAdapter{client: client, baseURL: twilioBaseURL}
}

func (a *TwilioWhatsAppAdapter) ID() string { return "twilio-whatsapp" }

func (a *TwilioWhatsAppAdapter) Send(ctx context.Context, cfg Config, payload Payload) (domain.DeliveryResult, error) {
	if err := payload.Validate(); err != nil {
		return domain.DeliveryResult{}, err
	}

	from := cfg.FromNumber
	if from == "" {
		from = twilioSandboxFrom
	} else if !strings.HasPrefix(from, "whatsapp:") {
		from = "whatsapp:" + from
	}

	return sendTwilioMessage(ctx, a.client, a.baseURL, cfg, a.ID(), map[string]string{
		"From": from,
		"To":   "whatsapp:+" + cleanPhone(payload.To),
		"Body": payload.Content,
	})
}

// Dialog360Adapter delivers WhatsApp messages via the 360dialog WABA API.
type Dialog360Adapter struct {
	client  *resty.Client
	baseURL string
}

func NewDialog360Adapter(client *resty.Client) *Dialog360Adapter {
	return &Dialog360Adapter{client: client, baseURL: dialog360BaseURL}
}

func (a *Dialog360Adapter) ID() string { return "360dialog" }

type dialog360ErrorBody struct {
	Errors []struct {
		Title string `json:"title"`
	} `json:"errors"`
}

func (a *Dialog360Adapter) Send(ctx context.Context, cfg Config, payload Payload) (domain.DeliveryResult, error) {
	if err := payload.Validate(); err != nil {
		return domain.DeliveryResult{}, err
	}

	req := whatsAppTextRequest{
		To:   cleanPhone(payload.To),
		Type: "text",
		Text: whatsAppMessage{Body: payload.Content},
	}

	var success whatsAppMessagesResponse
	var failure dialog360ErrorBody
	response, err := a.client.R().
		SetContext(ctx).
		SetHeader("D360-API-KEY", cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetResult(&success).
		SetError(&failure).
		Post(a.baseURL + "/v1/messages")
	if err != nil {
		return domain.DeliveryResult{}, transportError(err)
	}

	if response.IsError() {
		message := ""
		if len(failure.Errors) > 0 {
			message = failure.Errors[0].Title
		}
		return domain.DeliveryResult{}, statusError(response.StatusCode(), message)
	}

	messageID := ""
	if len(success.Messages) > 0 {
		messageID = success.Messages[0].ID
	}

	return domain.DeliveryResult{
		Success:    true,
		MessageID:  messageID,
		ProviderID: a.ID(),
		Timestamp:  nowUTC(),
	}, nil
}
