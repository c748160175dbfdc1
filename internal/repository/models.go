package repository

import (
	"time"

	"github.com/axeelhrz/fidelya-notify/internal/domain"
)

// QueuedNotificationModel is the persistence model for the notification_queue table.
type QueuedNotificationModel struct {
	ID             string                 `gorm:"type:uuid;primaryKey"`
	NotificationID string                 `gorm:"type:varchar(64);not null"`
	RecipientID    string                 `gorm:"type:varchar(64);not null"`
	RecipientType  domain.RecipientType   `gorm:"type:varchar(12);not null"`
	Channel        domain.Channel         `gorm:"type:varchar(10);not null"`
	Priority       domain.Priority        `gorm:"type:varchar(10);not null"`
	PriorityWeight int                    `gorm:"not null"`
	Status         domain.Status          `gorm:"type:varchar(12);not null"`
	Recipient      string                 `gorm:"type:varchar(255);not null"`
	Subject        string                 `gorm:"type:text"`
	Content        string                 `gorm:"type:text;not null"`
	HTMLContent    string                 `gorm:"type:text"`
	ScheduledFor   time.Time              `gorm:"type:timestamptz;not null"`
	Attempts       int                    `gorm:"not null;default:0"`
	MaxAttempts    int                    `gorm:"not null;default:3"`
	LastAttempt    *time.Time             `gorm:"type:timestamptz"`
	ErrorMessage   *string                `gorm:"type:text"`
	DeliveryResult *domain.DeliveryResult `gorm:"type:jsonb;serializer:json"`
	Metadata       domain.Metadata        `gorm:"type:jsonb;serializer:json"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (QueuedNotificationModel) TableName() string {
	return "notification_queue"
}

// ABTestModel is the persistence model for ab_tests.
type ABTestModel struct {
	ID              string             `gorm:"type:uuid;primaryKey"`
	Name            string             `gorm:"type:varchar(255);not null"`
	Description     string             `gorm:"type:text"`
	AsociacionID    string             `gorm:"type:varchar(64);not null"`
	Status          domain.TestStatus  `gorm:"type:varchar(12);not null"`
	Variants        []domain.Variant   `gorm:"type:jsonb;serializer:json"`
	TrafficSplit    []float64          `gorm:"type:jsonb;serializer:json"`
	Metrics         domain.TestMetrics `gorm:"type:jsonb;serializer:json"`
	StartDate       *time.Time         `gorm:"type:timestamptz"`
	EndDate         *time.Time         `gorm:"type:timestamptz"`
	DurationDays    int                `gorm:"not null;default:0"`
	MinSampleSize   int64              `gorm:"not null;default:0"`
	ConfidenceLevel float64            `gorm:"not null;default:95"`
	CreatedBy       string             `gorm:"type:varchar(64)"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (ABTestModel) TableName() string {
	return "ab_tests"
}

// ABTestResultModel is the persistence model for ab_test_results.
type ABTestResultModel struct {
	ID              string             `gorm:"type:uuid;primaryKey"`
	TestID          string             `gorm:"type:uuid;not null"`
	WinnerVariantID *string            `gorm:"type:varchar(64)"`
	Confidence      float64            `gorm:"not null"`
	Improvement     float64            `gorm:"not null"`
	IsSignificant   bool               `gorm:"not null"`
	Recommendation  string             `gorm:"type:text"`
	Metrics         domain.TestMetrics `gorm:"type:jsonb;serializer:json"`
	CreatedAt       time.Time
}

func (ABTestResultModel) TableName() string {
	return "ab_test_results"
}

func queuedModelFromDomain(n *domain.QueuedNotification) *QueuedNotificationModel {
	if n == nil {
		return nil
	}

	return &QueuedNotificationModel{
		ID:             n.ID,
		NotificationID: n.NotificationID,
		RecipientID:    n.RecipientID,
		RecipientType:  n.RecipientType,
		Channel:        n.Channel,
		Priority:       n.Priority,
		PriorityWeight: n.Priority.Weight(),
		Status:         n.Status,
		Recipient:      n.Recipient,
		Subject:        n.Subject,
		Content:        n.Content,
		HTMLContent:    n.HTMLContent,
		ScheduledFor:   n.ScheduledFor,
		Attempts:       n.Attempts,
		MaxAttempts:    n.MaxAttempts,
		LastAttempt:    n.LastAttempt,
		ErrorMessage:   n.ErrorMessage,
		DeliveryResult: n.DeliveryResult,
		Metadata:       n.Metadata,
		CreatedAt:      n.CreatedAt,
		UpdatedAt:      n.UpdatedAt,
	}
}

func queuedModelToDomain(m *QueuedNotificationModel) *domain.QueuedNotification {
	if m == nil {
		return nil
	}

	return &domain.QueuedNotification{
		ID:             m.ID,
		NotificationID: m.NotificationID,
		RecipientID:    m.RecipientID,
		RecipientType:  m.RecipientType,
		Channel:        m.Channel,
		Priority:       m.Priority,
		Status:         m.Status,
		Recipient:      m.Recipient,
		Subject:        m.Subject,
		Content:        m.Content,
		HTMLContent:    m.HTMLContent,
		ScheduledFor:   m.ScheduledFor,
		Attempts:       m.Attempts,
		MaxAttempts:    m.MaxAttempts,
		LastAttempt:    m.LastAttempt,
		ErrorMessage:   m.ErrorMessage,
		DeliveryResult: m.DeliveryResult,
		Metadata:       m.Metadata,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func abTestModelFromDomain(t *domain.ABTest) *ABTestModel {
	if t == nil {
		return nil
	}

	return &ABTestModel{
		ID:              t.ID,
		Name:            t.Name,
		Description:     t.Description,
		AsociacionID:    t.AsociacionID,
		Status:          t.Status,
		Variants:        t.Variants,
		TrafficSplit:    t.TrafficSplit,
		Metrics:         t.Metrics,
		StartDate:       t.StartDate,
		EndDate:         t.EndDate,
		DurationDays:    t.DurationDays,
		MinSampleSize:   t.MinSampleSize,
		ConfidenceLevel: t.ConfidenceLevel,
		CreatedBy:       t.CreatedBy,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

func abTestModelToDomain(m *ABTestModel) *domain.ABTest {
	if m == nil {
		return nil
	}

	return &domain.ABTest{
		ID:              m.ID,
		Name:            m.Name,
		Description:     m.Description,
		AsociacionID:    m.AsociacionID,
		Status:          m.Status,
		Variants:        m.Variants,
		TrafficSplit:    m.TrafficSplit,
		Metrics:         m.Metrics,
		StartDate:       m.StartDate,
		EndDate:         m.EndDate,
		DurationDays:    m.DurationDays,
		MinSampleSize:   m.MinSampleSize,
		ConfidenceLevel: m.ConfidenceLevel,
		CreatedBy:       m.CreatedBy,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func resultModelFromDomain(r *domain.TestResult) *ABTestResultModel {
	if r == nil {
		return nil
	}

	var winner *string
	if r.WinnerVariantID != "" {
		value := r.WinnerVariantID
		winner = &value
	}

	return &ABTestResultModel{
		ID:              r.ID,
		TestID:          r.TestID,
		WinnerVariantID: winner,
		Confidence:      r.Confidence,
		Improvement:     r.Improvement,
		IsSignificant:   r.IsSignificant,
		Recommendation:  r.Recommendation,
		Metrics:         r.Metrics,
		CreatedAt:       r.CreatedAt,
	}
}
