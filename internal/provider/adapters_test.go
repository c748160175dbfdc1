package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-resty/resty/v2"
)

func testPayload() Payload {
	return Payload{
		To:      "user@example.com",
		Subject: "Bienvenido",
		Content: "Hola Ana",
	}
}

func TestSendGridAdapterSendSuccess(t *testing.T) {
	t.Parallel()

	var gotBody sendGridRequest
	var gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/v3/mail/send" {
			t.Errorf("path = %s, want /v3/mail/send", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")

		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}

		w.Header().Set("X-Message-Id", "sg-msg-1")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	adapter := NewSendGridAdapter(resty.New())
	adapter.baseURL = server.URL

	cfg := Config{Name: "sendgrid", APIKey: "sg-key", FromEmail: "noreply@fidelya.app", FromName: "Fidelya"}
	result, err := adapter.Send(context.Background(), cfg, testPayload())
	if err != nil {
		t.Fatalf("Send() unexpected error: %v", err)
	}

	if !result.Success {
		t.Fatal("result.Success = false, want true")
	}
	if result.MessageID != "sg-msg-1" {
		t.Fatalf("MessageID = %q, want %q", result.MessageID, "sg-msg-1")
	}
	if result.ProviderID != "sendgrid" {
		t.Fatalf("ProviderID = %q, want %q", result.ProviderID, "sendgrid")
	}

	if gotAuth != "Bearer sg-key" {
		t.Fatalf("Authorization = %q, want %q", gotAuth, "Bearer sg-key")
	}
	if len(gotBody.Personalizations) != 1 || len(gotBody.Personalizations[0].To) != 1 {
		t.Fatalf("unexpected personalizations: %+v", gotBody.Personalizations)
	}
	if to := gotBody.Personalizations[0].To[0].Email; to != "user@example.com" {
		t.Fatalf("request.to = %q, want %q", to, "user@example.com")
	}
	if gotBody.From.Email != "noreply@fidelya.app" {
		t.Fatalf("request.from = %q, want %q", gotBody.From.Email, "noreply@fidelya.app")
	}
}

func TestSendGridAdapterSendAPIError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"invalid api key"}]}`))
	}))
	defer server.Close()

	adapter := NewSendGridAdapter(resty.New())
	adapter.baseURL = server.URL

	_, err := adapter.Send(context.Background(), Config{Name: "sendgrid"}, testPayload())
	if err == nil {
		t.Fatal("Send() error = nil, want provider error")
	}
	if !strings.Contains(err.Error(), "invalid api key") {
		t.Fatalf("error = %q, want it to contain the API message", err)
	}
	if IsTransient(err) {
		t.Fatal("IsTransient() = true for 401, want false")
	}
}

func TestResendAdapterSend(t *testing.T) {
	t.Parallel()

	var gotBody resendRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/emails" {
			t.Errorf("path = %s, want /emails", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		_, _ = w.Write([]byte(`{"id":"re-msg-7"}`))
	}))
	defer server.Close()

	adapter := NewResendAdapter(resty.New())
	adapter.baseURL = server.URL

	cfg := Config{Name: "resend", APIKey: "re-key", FromEmail: "noreply@fidelya.app", FromName: "Fidelya"}
	result, err := adapter.Send(context.Background(), cfg, testPayload())
	if err != nil {
		t.Fatalf("Send() unexpected error: %v", err)
	}

	if result.MessageID != "re-msg-7" {
		t.Fatalf("MessageID = %q, want %q", result.MessageID, "re-msg-7")
	}
	if gotBody.From != "Fidelya <noreply@fidelya.app>" {
		t.Fatalf("request.from = %q, want %q", gotBody.From, "Fidelya <noreply@fidelya.app>")
	}
	// Plain-text payloads are mirrored into the html field.
	if gotBody.HTML != "Hola Ana" {
		t.Fatalf("request.html = %q, want %q", gotBody.HTML, "Hola Ana")
	}
}

func TestTwilioSMSAdapterSend(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "token" {
			t.Errorf("basic auth = %q/%q ok=%v, want AC123/token", user, pass, ok)
		}
		if r.URL.Path != "/2010-04-01/Accounts/AC123/Messages.json" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("failed to parse form: %v", err)
		}
		if got := r.PostFormValue("To"); got != "+5491155550000" {
			t.Errorf("form To = %q, want %q", got, "+5491155550000")
		}
		_, _ = w.Write([]byte(`{"sid":"SM42","price":"-0.0075"}`))
	}))
	defer server.Close()

	adapter := NewTwilioSMSAdapter(resty.New())
	adapter.baseURL = server.URL

	cfg := Config{Name: "twilio", AccountSID: "AC123", AuthToken: "token", FromNumber: "+10000000000"}
	payload := Payload{To: "+54 9 11 5555-0000", Content: "codigo 1234"}

	result, err := adapter.Send(context.Background(), cfg, payload)
	if err != nil {
		t.Fatalf("Send() unexpected error: %v", err)
	}

	if result.MessageID != "SM42" {
		t.Fatalf("MessageID = %q, want %q", result.MessageID, "SM42")
	}
	if result.Cost != 0.0075 {
		t.Fatalf("Cost = %v, want 0.0075", result.Cost)
	}
	if result.ProviderID != "twilio-sms" {
		t.Fatalf("ProviderID = %q, want %q", result.ProviderID, "twilio-sms")
	}
}

func TestMetaWhatsAppAdapterSend(t *testing.T) {
	t.Parallel()

	var gotBody whatsAppTextRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/555123/messages" {
			t.Errorf("path = %s, want /555123/messages", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	}))
	defer server.Close()

	adapter := NewMetaWhatsAppAdapter(resty.New())
	adapter.baseURL = server.URL

	cfg := Config{Name: "meta", PhoneNumberID: "555123", AccessToken: "meta-token"}
	payload := Payload{To: "+54 11 5555 0000", Content: "hola"}

	result, err := adapter.Send(context.Background(), cfg, payload)
	if err != nil {
		t.Fatalf("Send() unexpected error: %v", err)
	}

	if result.MessageID != "wamid.1" {
		t.Fatalf("MessageID = %q, want %q", result.MessageID, "wamid.1")
	}
	if gotBody.MessagingProduct != "whatsapp" {
		t.Fatalf("messaging_product = %q, want whatsapp", gotBody.MessagingProduct)
	}
	if gotBody.To != "541155550000" {
		t.Fatalf("request.to = %q, want digits only", gotBody.To)
	}
}

func TestTwilioWhatsAppAdapterFromDefaults(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		fromNumber string
		wantFrom   string
	}{
		{name: "empty falls back to sandbox", fromNumber: "", wantFrom: "whatsapp:+14155238886"},
		{name: "bare number gains prefix", fromNumber: "+12025550000", wantFrom: "whatsapp:+12025550000"},
		{name: "prefixed number kept", fromNumber: "whatsapp:+12025550000", wantFrom: "whatsapp:+12025550000"},
	}

	for _, tt := range testCases {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var gotFrom string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := r.ParseForm(); err != nil {
					t.Fatalf("failed to parse form: %v", err)
				}
				gotFrom = r.PostFormValue("From")
				_, _ = w.Write([]byte(`{"sid":"SM1"}`))
			}))
			defer server.Close()

			adapter := NewTwilioWhatsAppAdapter(resty.New())
			adapter.baseURL = server.URL

			cfg := Config{Name: "twilio", AccountSID: "AC1", AuthToken: "t", FromNumber: tt.fromNumber}
			if _, err := adapter.Send(context.Background(), cfg, Payload{To: "+111", Content: "hi"}); err != nil {
				t.Fatalf("Send() unexpected error: %v", err)
			}

			if gotFrom != tt.wantFrom {
				t.Fatalf("form From = %q, want %q", gotFrom, tt.wantFrom)
			}
		})
	}
}

func TestDialog360AdapterSendError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("D360-API-KEY"); got != "d360-key" {
			t.Errorf("D360-API-KEY = %q, want %q", got, "d360-key")
		}
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"errors":[{"title":"rate limited"}]}`))
	}))
	defer server.Close()

	adapter := NewDialog360Adapter(resty.New())
	adapter.baseURL = server.URL

	_, err := adapter.Send(context.Background(), Config{Name: "360dialog", APIKey: "d360-key"}, Payload{To: "+111", Content: "hi"})
	if err == nil {
		t.Fatal("Send() error = nil, want provider error")
	}
	if !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("error = %q, want it to contain the API title", err)
	}
	if !IsTransient(err) {
		t.Fatal("IsTransient() = false for 429, want true")
	}
}

func TestSimulatedAdaptersSend(t *testing.T) {
	t.Parallel()

	push := NewSimulatedPushAdapter()
	app := NewSimulatedInAppAdapter()

	pushResult, err := push.Send(context.Background(), Config{}, Payload{To: "user-1", Content: "hola"})
	if err != nil {
		t.Fatalf("push Send() unexpected error: %v", err)
	}
	if !pushResult.Success {
		t.Fatal("push result.Success = false, want true")
	}
	if !strings.HasPrefix(pushResult.MessageID, "push_") {
		t.Fatalf("push MessageID = %q, want push_ prefix", pushResult.MessageID)
	}
	if pushResult.ProviderID != "fcm" {
		t.Fatalf("push ProviderID = %q, want fcm", pushResult.ProviderID)
	}

	appResult, err := app.Send(context.Background(), Config{}, Payload{To: "user-1", Content: "hola"})
	if err != nil {
		t.Fatalf("app Send() unexpected error: %v", err)
	}
	if appResult.ProviderID != "inapp" {
		t.Fatalf("app ProviderID = %q, want inapp", appResult.ProviderID)
	}
}

func TestAdapterSendRejectsEmptyPayload(t *testing.T) {
	t.Parallel()

	adapter := NewSendGridAdapter(resty.New())

	_, err := adapter.Send(context.Background(), Config{Name: "sendgrid"}, Payload{})
	if err == nil {
		t.Fatal("Send() error = nil, want validation error")
	}
}
