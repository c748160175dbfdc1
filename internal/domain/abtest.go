package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// TestStatus represents the lifecycle state of an A/B test.
type TestStatus string

const (
	TestStatusDraft     TestStatus = "DRAFT"
	TestStatusRunning   TestStatus = "RUNNING"
	TestStatusPaused    TestStatus = "PAUSED"
	TestStatusCompleted TestStatus = "COMPLETED"
	TestStatusCancelled TestStatus = "CANCELLED"
)

func (s TestStatus) String() string { return string(s) }

func (s TestStatus) IsValid() bool {
	switch s {
	case TestStatusDraft, TestStatusRunning, TestStatusPaused, TestStatusCompleted, TestStatusCancelled:
		return true
	}
	return false
}

func (s TestStatus) IsTerminal() bool {
	return s == TestStatusCompleted || s == TestStatusCancelled
}

func ParseTestStatusFromString(s string) (TestStatus, error) {
	st := TestStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid test status %q", ErrValidation, s)
	}
	return st, nil
}

// EventType is a funnel event recorded against a test variant.
type EventType string

const (
	EventSent      EventType = "SENT"
	EventDelivered EventType = "DELIVERED"
	EventOpened    EventType = "OPENED"
	EventClicked   EventType = "CLICKED"
	EventConverted EventType = "CONVERTED"
)

func (e EventType) String() string { return string(e) }

func (e EventType) IsValid() bool {
	switch e {
	case EventSent, EventDelivered, EventOpened, EventClicked, EventConverted:
		return true
	}
	return false
}

func ParseEventTypeFromString(s string) (EventType, error) {
	ev := EventType(strings.ToUpper(strings.TrimSpace(s)))
	if !ev.IsValid() {
		return "", fmt.Errorf("%w: invalid event type %q", ErrValidation, s)
	}
	return ev, nil
}

// Variant is one alternative message version under test.
type Variant struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	TemplateID string            `json:"templateId,omitempty"`
	Subject    string            `json:"subject,omitempty"`
	Content    string            `json:"content"`
	Variables  map[string]string `json:"variables,omitempty"`
	IsControl  bool              `json:"isControl"`
}

// VariantMetrics holds per-variant funnel counters and derived percentage rates.
type VariantMetrics struct {
	Sent           int64   `json:"sent"`
	Delivered      int64   `json:"delivered"`
	Opened         int64   `json:"opened"`
	Clicked        int64   `json:"clicked"`
	Converted      int64   `json:"converted"`
	DeliveryRate   float64 `json:"deliveryRate"`
	OpenRate       float64 `json:"openRate"`
	ClickRate      float64 `json:"clickRate"`
	ConversionRate float64 `json:"conversionRate"`
	Confidence     float64 `json:"confidence"`
	IsWinner       bool    `json:"isWinner,omitempty"`
}

// Record increments the counter for one funnel event and refreshes the rates.
func (m *VariantMetrics) Record(event EventType) {
	switch event {
	case EventSent:
		m.Sent++
	case EventDelivered:
		m.Delivered++
	case EventOpened:
		m.Opened++
	case EventClicked:
		m.Clicked++
	case EventConverted:
		m.Converted++
	}
	m.Recalculate()
}

// Recalculate refreshes the four derived rates. A zero denominator yields 0.
func (m *VariantMetrics) Recalculate() {
	m.DeliveryRate = percentage(m.Delivered, m.Sent)
	m.OpenRate = percentage(m.Opened, m.Delivered)
	m.ClickRate = percentage(m.Clicked, m.Opened)
	m.ConversionRate = percentage(m.Converted, m.Sent)
}

func percentage(numerator, denominator int64) float64 {
	if denominator == 0 {
		return 0
	}
	return float64(numerator) / float64(denominator) * 100
}

// TestMetrics aggregates funnel counters across the whole test plus per variant.
type TestMetrics struct {
	TotalSent      int64                      `json:"totalSent"`
	TotalDelivered int64                      `json:"totalDelivered"`
	TotalOpened    int64                      `json:"totalOpened"`
	TotalClicked   int64                      `json:"totalClicked"`
	TotalConverted int64                      `json:"totalConverted"`
	Variants       map[string]*VariantMetrics `json:"variants"`
}

func (m *TestMetrics) Record(event EventType) {
	switch event {
	case EventSent:
		m.TotalSent++
	case EventDelivered:
		m.TotalDelivered++
	case EventOpened:
		m.TotalOpened++
	case EventClicked:
		m.TotalClicked++
	case EventConverted:
		m.TotalConverted++
	}
}

const trafficSplitTolerance = 0.01

// ABTest compares message variants against a control with a fixed traffic split.
type ABTest struct {
	ID              string
	Name            string
	Description     string
	AsociacionID    string
	Status          TestStatus
	Variants        []Variant
	TrafficSplit    []float64
	Metrics         TestMetrics
	StartDate       *time.Time
	EndDate         *time.Time
	DurationDays    int
	MinSampleSize   int64
	ConfidenceLevel float64
	CreatedBy       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (t *ABTest) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: test name is required", ErrValidation)
	}
	if len(t.Variants) < 2 {
		return fmt.Errorf("%w: at least 2 variants are required", ErrValidation)
	}
	if len(t.TrafficSplit) != len(t.Variants) {
		return fmt.Errorf("%w: trafficSplit must have one entry per variant", ErrValidation)
	}

	var sum float64
	for _, split := range t.TrafficSplit {
		if split < 0 {
			return fmt.Errorf("%w: trafficSplit entries must be >= 0", ErrValidation)
		}
		sum += split
	}
	if math.Abs(sum-100) > trafficSplitTolerance {
		return fmt.Errorf("%w: trafficSplit must sum to 100, got %.2f", ErrValidation, sum)
	}

	controls := 0
	seen := make(map[string]struct{}, len(t.Variants))
	for _, v := range t.Variants {
		if strings.TrimSpace(v.ID) == "" {
			return fmt.Errorf("%w: variant id is required", ErrValidation)
		}
		if _, dup := seen[v.ID]; dup {
			return fmt.Errorf("%w: duplicate variant id %q", ErrValidation, v.ID)
		}
		seen[v.ID] = struct{}{}
		if v.IsControl {
			controls++
		}
	}
	if controls != 1 {
		return fmt.Errorf("%w: exactly one control variant is required, got %d", ErrValidation, controls)
	}

	return nil
}

// ControlVariant returns the variant flagged as control.
func (t *ABTest) ControlVariant() (*Variant, error) {
	for i := range t.Variants {
		if t.Variants[i].IsControl {
			return &t.Variants[i], nil
		}
	}
	return nil, fmt.Errorf("%w: control variant", ErrNotFound)
}

// VariantByID returns the variant with the given id.
func (t *ABTest) VariantByID(id string) (*Variant, error) {
	for i := range t.Variants {
		if t.Variants[i].ID == id {
			return &t.Variants[i], nil
		}
	}
	return nil, fmt.Errorf("%w: variant %q", ErrNotFound, id)
}

// InitMetrics zeroes the aggregate and per-variant counters.
func (t *ABTest) InitMetrics() {
	t.Metrics = TestMetrics{Variants: make(map[string]*VariantMetrics, len(t.Variants))}
	for _, v := range t.Variants {
		t.Metrics.Variants[v.ID] = &VariantMetrics{}
	}
}

// TestResult is the outcome of completing an A/B test.
type TestResult struct {
	ID              string      `json:"id"`
	TestID          string      `json:"testId"`
	WinnerVariantID string      `json:"winnerVariantId,omitempty"`
	Confidence      float64     `json:"confidence"`
	Improvement     float64     `json:"improvement"`
	IsSignificant   bool        `json:"isSignificant"`
	Recommendation  string      `json:"recommendation"`
	Metrics         TestMetrics `json:"metrics"`
	CreatedAt       time.Time   `json:"createdAt"`
}
