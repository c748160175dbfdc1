package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Status represents the lifecycle state of a queued notification.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusSent       Status = "SENT"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
	StatusPaused     Status = "PAUSED"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusSent, StatusFailed, StatusCancelled, StatusPaused:
		return true
	}
	return false
}

// IsTerminal reports whether a notification in this status can never change again.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSent, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// Channel represents the delivery channel.
type Channel string

const (
	ChannelEmail    Channel = "EMAIL"
	ChannelSMS      Channel = "SMS"
	ChannelWhatsApp Channel = "WHATSAPP"
	ChannelPush     Channel = "PUSH"
	ChannelApp      Channel = "APP"
)

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelWhatsApp, ChannelPush, ChannelApp:
		return true
	}
	return false
}

func ParseChannelFromString(s string) (Channel, error) {
	ch := Channel(strings.ToUpper(strings.TrimSpace(s)))
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, s)
	}
	return ch, nil
}

// Channels lists every supported delivery channel.
func Channels() []Channel {
	return []Channel{ChannelEmail, ChannelSMS, ChannelWhatsApp, ChannelPush, ChannelApp}
}

// Priority represents the dispatch priority level.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

func (p Priority) String() string { return string(p) }

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Weight orders priorities for dequeueing: URGENT > HIGH > NORMAL > LOW.
func (p Priority) Weight() int {
	switch p {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

func ParsePriorityFromString(s string) (Priority, error) {
	pr := Priority(strings.ToUpper(strings.TrimSpace(s)))
	if !pr.IsValid() {
		return "", fmt.Errorf("%w: invalid priority %q", ErrValidation, s)
	}
	return pr, nil
}

// RecipientType identifies the kind of account a notification targets.
type RecipientType string

const (
	RecipientSocio      RecipientType = "SOCIO"
	RecipientComercio   RecipientType = "COMERCIO"
	RecipientAsociacion RecipientType = "ASOCIACION"
)

func (r RecipientType) String() string { return string(r) }

func (r RecipientType) IsValid() bool {
	switch r {
	case RecipientSocio, RecipientComercio, RecipientAsociacion:
		return true
	}
	return false
}

func ParseRecipientTypeFromString(s string) (RecipientType, error) {
	rt := RecipientType(strings.ToUpper(strings.TrimSpace(s)))
	if !rt.IsValid() {
		return "", fmt.Errorf("%w: invalid recipient type %q", ErrValidation, s)
	}
	return rt, nil
}

// DeliveryResult is the normalized outcome of one provider send call.
type DeliveryResult struct {
	Success    bool      `json:"success"`
	MessageID  string    `json:"messageId,omitempty"`
	Error      string    `json:"error,omitempty"`
	ProviderID string    `json:"providerId"`
	Timestamp  time.Time `json:"timestamp"`
	Cost       float64   `json:"cost,omitempty"`
}

// Metadata carries template, targeting and A/B context for a queued notification.
type Metadata struct {
	TemplateID   string            `json:"templateId,omitempty"`
	Variables    map[string]string `json:"variables,omitempty"`
	AsociacionID string            `json:"asociacionId,omitempty"`
	TestID       string            `json:"testId,omitempty"`
	VariantID    string            `json:"variantId,omitempty"`
	// ProviderName overrides the channel's default provider for this job.
	ProviderName string `json:"providerName,omitempty"`
}

// QueuedNotification is one scheduled attempt to deliver a message through a channel.
type QueuedNotification struct {
	ID             string
	NotificationID string
	RecipientID    string
	RecipientType  RecipientType
	Channel        Channel
	Priority       Priority
	Status         Status
	Recipient      string
	Subject        string
	Content        string
	HTMLContent    string
	ScheduledFor   time.Time
	Attempts       int
	MaxAttempts    int
	LastAttempt    *time.Time
	ErrorMessage   *string
	DeliveryResult *DeliveryResult
	Metadata       Metadata
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (n *QueuedNotification) Validate() error {
	if strings.TrimSpace(n.RecipientID) == "" {
		return fmt.Errorf("%w: recipientId is required", ErrValidation)
	}
	if strings.TrimSpace(n.Recipient) == "" {
		return fmt.Errorf("%w: recipient contact is required", ErrValidation)
	}
	if strings.TrimSpace(n.Content) == "" {
		return fmt.Errorf("%w: content is required", ErrValidation)
	}
	if !n.RecipientType.IsValid() {
		return fmt.Errorf("%w: invalid recipient type %q", ErrValidation, n.RecipientType)
	}
	if !n.Channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", ErrValidation, n.Channel)
	}
	if !n.Priority.IsValid() {
		return fmt.Errorf("%w: invalid priority %q", ErrValidation, n.Priority)
	}
	if n.MaxAttempts < 1 {
		return fmt.Errorf("%w: maxAttempts must be >= 1", ErrValidation)
	}
	if n.Attempts > n.MaxAttempts {
		return fmt.Errorf("%w: attempts exceeds maxAttempts", ErrValidation)
	}
	return nil
}

// RetryPolicy controls exponential backoff between delivery attempts.
type RetryPolicy struct {
	MaxAttempts       int
	BackoffMultiplier float64
	InitialDelay      time.Duration
	MaxDelay          time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		BackoffMultiplier: 2,
		InitialDelay:      5 * time.Minute,
		MaxDelay:          60 * time.Minute,
	}
}

// Delay returns the backoff before the next attempt, given how many attempts
// have already failed: min(initialDelay * multiplier^(attempts-1), maxDelay).
func (p RetryPolicy) Delay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}

	delay := time.Duration(float64(p.InitialDelay) * math.Pow(p.BackoffMultiplier, float64(attempts-1)))
	if delay > p.MaxDelay || delay <= 0 {
		delay = p.MaxDelay
	}
	return delay
}

// QueueStats aggregates queue health counters for a time window.
type QueueStats struct {
	Pending           int64   `json:"pending"`
	Processing        int64   `json:"processing"`
	Sent              int64   `json:"sent"`
	Failed            int64   `json:"failed"`
	Cancelled         int64   `json:"cancelled"`
	Paused            int64   `json:"paused"`
	Total             int64   `json:"total"`
	AvgProcessingMins float64 `json:"avgProcessingMinutes"`
	SuccessRate       float64 `json:"successRate"`
}

// ChannelStats summarizes per-channel delivery performance.
type ChannelStats struct {
	Total       int64   `json:"total"`
	Sent        int64   `json:"sent"`
	Failed      int64   `json:"failed"`
	Pending     int64   `json:"pending"`
	Processing  int64   `json:"processing"`
	Cancelled   int64   `json:"cancelled"`
	AvgAttempts float64 `json:"avgAttempts"`
	SuccessRate float64 `json:"successRate"`
}
