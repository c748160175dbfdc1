package provider

import (
	"context"
	"fmt"

	"github.com/axeelhrz/fidelya-notify/internal/domain"
	"github.com/go-resty/resty/v2"
)

const (
	sendGridBaseURL = "https://api.sendgrid.com"
	resendBaseURL   = "https://api.resend.com"
)

// SendGridAdapter delivers email through the SendGrid v3 mail send API.
type SendGridAdapter struct {
	client  *resty.Client
	baseURL string
}

func NewSendGridAdapter(client *resty.Client) *SendGridAdapter {
	return &SendGridAdapter{client: client, baseURL: sendGridBaseURL}
}

func (a *SendGridAdapter) ID() string { return "sendgrid" }

type sendGridRequest struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject,omitempty"`
	Content          []sendGridContent         `json:"content"`
	TemplateID       string                    `json:"template_id,omitempty"`
}

type sendGridPersonalization struct {
	To                  []sendGridAddress `json:"to"`
	DynamicTemplateData map[string]string `json:"dynamic_template_data,omitempty"`
}

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridErrorBody struct {
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (a *SendGridAdapter) Send(ctx context.Context, cfg Config, payload Payload) (domain.DeliveryResult, error) {
	if err := payload.Validate(); err != nil {
		return domain.DeliveryResult{}, err
	}

	body := payload.Content
	if payload.HTMLContent != "" {
		body = payload.HTMLContent
	}

	req := sendGridRequest{
		Personalizations: []sendGridPersonalization{{
			To:                  []sendGridAddress{{Email: payload.To}},
			DynamicTemplateData: payload.Variables,
		}},
		From:       sendGridAddress{Email: cfg.FromEmail, Name: cfg.FromName},
		Subject:    payload.Subject,
		Content:    []sendGridContent{{Type: "text/html", Value: body}},
		TemplateID: payload.TemplateID,
	}

	var errorBody sendGridErrorBody
	response, err := a.client.R().
		SetContext(ctx).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetError(&errorBody).
		Post(a.baseURL + "/v3/mail/send")
	if err != nil {
		return domain.DeliveryResult{}, transportError(err)
	}

	if response.IsError() {
		message := ""
		if len(errorBody.Errors) > 0 {
			message = errorBody.Errors[0].Message
		}
		return domain.DeliveryResult{}, statusError(response.StatusCode(), message)
	}

	return domain.DeliveryResult{
		Success:    true,
		MessageID:  response.Header().Get("X-Message-Id"),
		ProviderID: a.ID(),
		Timestamp:  nowUTC(),
	}, nil
}

// ResendAdapter delivers email through the Resend API.
type ResendAdapter struct {
	client  *resty.Client
	baseURL string
}

func NewResendAdapter(client *resty.Client) *ResendAdapter {
	return &ResendAdapter{client: client, baseURL: resendBaseURL}
}

func (a *ResendAdapter) ID() string { return "resend" }

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject,omitempty"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text"`
}

type resendResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

func (a *ResendAdapter) Send(ctx context.Context, cfg Config, payload Payload) (domain.DeliveryResult, error) {
	if err := payload.Validate(); err != nil {
		return domain.DeliveryResult{}, err
	}

	req := resendRequest{
		From:    fmt.Sprintf("%s <%s>", cfg.FromName, cfg.FromEmail),
		To:      []string{payload.To},
		Subject: payload.Subject,
		HTML:    payload.HTMLContent,
		Text:    payload.Content,
	}
	if req.HTML == "" {
		req.HTML = payload.Content
	}

	var success resendResponse
	var failure resendResponse
	response, err := a.client.R().
		SetContext(ctx).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetResult(&success).
		SetError(&failure).
		Post(a.baseURL + "/emails")
	if err != nil {
		return domain.DeliveryResult{}, transportError(err)
	}

	if response.IsError() {
		return domain.DeliveryResult{}, statusError(response.StatusCode(), failure.Message)
	}

	return domain.DeliveryResult{
		Success:    true,
		MessageID:  success.ID,
		ProviderID: a.ID(),
		Timestamp:  nowUTC(),
	}, nil
}
