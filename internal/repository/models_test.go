package repository

import (
	"testing"
	"time"

	"github.com/axeelhrz/fidelya-notify/internal/domain"
)

func TestQueuedModelRoundTrip(t *testing.T) {
	t.Parallel()

	lastAttempt := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	errMsg := "provider returned status 500"

	original := &domain.QueuedNotification{
		ID:             "11111111-1111-1111-1111-111111111111",
		NotificationID: "n-1",
		RecipientID:    "socio-1",
		RecipientType:  domain.RecipientSocio,
		Channel:        domain.ChannelWhatsApp,
		Priority:       domain.PriorityUrgent,
		Status:         domain.StatusPending,
		Recipient:      "+5491155550000",
		Content:        "hola",
		ScheduledFor:   time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC),
		Attempts:       1,
		MaxAttempts:    3,
		LastAttempt:    &lastAttempt,
		ErrorMessage:   &errMsg,
		DeliveryResult: &domain.DeliveryResult{Success: false, Error: errMsg, ProviderID: "meta-whatsapp"},
		Metadata: domain.Metadata{
			AsociacionID: "asoc-1",
			TestID:       "test-1",
			VariantID:    "b",
			Variables:    map[string]string{"nombre": "Ana"},
		},
	}

	model := queuedModelFromDomain(original)
	if model.PriorityWeight != 4 {
		t.Fatalf("PriorityWeight = %d, want 4 for URGENT", model.PriorityWeight)
	}

	restored := queuedModelToDomain(model)

	if restored.ID != original.ID || restored.Channel != original.Channel || restored.Priority != original.Priority {
		t.Fatalf("round trip mismatch: %+v", restored)
	}
	if restored.Metadata.VariantID != "b" || restored.Metadata.Variables["nombre"] != "Ana" {
		t.Fatalf("metadata mismatch: %+v", restored.Metadata)
	}
	if restored.DeliveryResult == nil || restored.DeliveryResult.ProviderID != "meta-whatsapp" {
		t.Fatalf("delivery result mismatch: %+v", restored.DeliveryResult)
	}
	if restored.LastAttempt == nil || !restored.LastAttempt.Equal(lastAttempt) {
		t.Fatalf("last attempt mismatch: %v", restored.LastAttempt)
	}
}

func TestABTestModelRoundTrip(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	original := &domain.ABTest{
		ID:           "22222222-2222-2222-2222-222222222222",
		Name:         "subject test",
		AsociacionID: "asoc-1",
		Status:       domain.TestStatusRunning,
		Variants: []domain.Variant{
			{ID: "control", Name: "Control", Content: "Hola", IsControl: true},
			{ID: "b", Name: "B", Content: "Hola!"},
		},
		TrafficSplit: []float64{50, 50},
		Metrics: domain.TestMetrics{
			TotalSent: 10,
			Variants: map[string]*domain.VariantMetrics{
				"control": {Sent: 5},
				"b":       {Sent: 5, Converted: 2},
			},
		},
		StartDate:       &start,
		DurationDays:    7,
		MinSampleSize:   100,
		ConfidenceLevel: 95,
	}

	restored := abTestModelToDomain(abTestModelFromDomain(original))

	if restored.Status != domain.TestStatusRunning || len(restored.Variants) != 2 {
		t.Fatalf("round trip mismatch: %+v", restored)
	}
	if restored.Metrics.Variants["b"].Converted != 2 {
		t.Fatalf("variant metrics mismatch: %+v", restored.Metrics.Variants["b"])
	}
	if restored.StartDate == nil || !restored.StartDate.Equal(start) {
		t.Fatalf("start date mismatch: %v", restored.StartDate)
	}
}

func TestResultModelFromDomainOmitsEmptyWinner(t *testing.T) {
	t.Parallel()

	withWinner := resultModelFromDomain(&domain.TestResult{TestID: "t-1", WinnerVariantID: "b"})
	if withWinner.WinnerVariantID == nil || *withWinner.WinnerVariantID != "b" {
		t.Fatalf("WinnerVariantID = %v, want b", withWinner.WinnerVariantID)
	}

	noWinner := resultModelFromDomain(&domain.TestResult{TestID: "t-1"})
	if noWinner.WinnerVariantID != nil {
		t.Fatalf("WinnerVariantID = %v, want nil when empty", noWinner.WinnerVariantID)
	}
}
