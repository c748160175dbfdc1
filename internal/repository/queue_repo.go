package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/axeelhrz/fidelya-notify/internal/domain"
	"gorm.io/gorm"
)

// QueueFilter narrows bulk queue operations to an association and/or channel.
type QueueFilter struct {
	AsociacionID string
	Channel      *domain.Channel
}

// TimeRange bounds a stats query by creation time.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// QueueRepository is the durable queue store port. The ClaimForProcessing
// conditional update is the sole concurrency guard between pollers.
type QueueRepository interface {
	Enqueue(ctx context.Context, n *domain.QueuedNotification) error
	EnqueueBatch(ctx context.Context, notifications []*domain.QueuedNotification) error
	GetByID(ctx context.Context, id string) (*domain.QueuedNotification, error)
	DequeueDue(ctx context.Context, limit int, channel *domain.Channel) ([]domain.QueuedNotification, error)
	ClaimForProcessing(ctx context.Context, id string) (bool, error)
	MarkSent(ctx context.Context, id string, result domain.DeliveryResult) error
	MarkFailed(ctx context.Context, id string, errorMessage string, policy domain.RetryPolicy) (domain.Status, error)
	Cancel(ctx context.Context, id string) error
	Pause(ctx context.Context, filter QueueFilter) (int64, error)
	Resume(ctx context.Context, filter QueueFilter) (int64, error)
	Stats(ctx context.Context, asociacionID string, timeRange *TimeRange) (*domain.QueueStats, error)
	ChannelPerformance(ctx context.Context, asociacionID string, days int) (map[string]domain.ChannelStats, error)
	RetryFailed(ctx context.Context, asociacionID string, maxAgeHours int) (int64, error)
	SweepOld(ctx context.Context, olderThanDays int) (int64, error)
	ListByStatus(ctx context.Context, status domain.Status, asociacionID string, limit int) ([]domain.QueuedNotification, error)
}

type GormQueueRepo struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormQueueRepo(db *gorm.DB) *GormQueueRepo {
	return &GormQueueRepo{db: db, now: time.Now}
}

func (r *GormQueueRepo) Enqueue(ctx context.Context, n *domain.QueuedNotification) error {
	model := queuedModelFromDomain(n)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if n != nil {
		*n = *queuedModelToDomain(model)
	}
	return nil
}

func (r *GormQueueRepo) EnqueueBatch(ctx context.Context, notifications []*domain.QueuedNotification) error {
	models := make([]QueuedNotificationModel, 0, len(notifications))
	indexes := make([]int, 0, len(notifications))
	for i, n := range notifications {
		if model := queuedModelFromDomain(n); model != nil {
			models = append(models, *model)
			indexes = append(indexes, i)
		}
	}

	if len(models) == 0 {
		return nil
	}

	if err := r.db.WithContext(ctx).CreateInBatches(&models, 100).Error; err != nil {
		return err
	}

	for i := range models {
		idx := indexes[i]
		if idx < len(notifications) && notifications[idx] != nil {
			*notifications[idx] = *queuedModelToDomain(&models[i])
		}
	}

	return nil
}

func (r *GormQueueRepo) GetByID(ctx context.Context, id string) (*domain.QueuedNotification, error) {
	var model QueuedNotificationModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return queuedModelToDomain(&model), nil
}

// DequeueDue returns pending jobs whose schedule has arrived, ordered by
// schedule time ascending then priority weight descending.
func (r *GormQueueRepo) DequeueDue(ctx context.Context, limit int, channel *domain.Channel) ([]domain.QueuedNotification, error) {
	query := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_for <= ?", domain.StatusPending, r.now())
	if channel != nil {
		query = query.Where("channel = ?", *channel)
	}

	var models []QueuedNotificationModel
	err := query.
		Order("scheduled_for ASC").
		Order("priority_weight DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	notifications := make([]domain.QueuedNotification, 0, len(models))
	for i := range models {
		notifications = append(notifications, *queuedModelToDomain(&models[i]))
	}

	return notifications, nil
}

// ClaimForProcessing transitions PENDING -> PROCESSING with a conditional
// update. When two pollers race on the same job, at most one claim succeeds.
func (r *GormQueueRepo) ClaimForProcessing(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&QueuedNotificationModel{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Update("status", domain.StatusProcessing)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *GormQueueRepo) MarkSent(ctx context.Context, id string, deliveryResult domain.DeliveryResult) error {
	result := r.db.WithContext(ctx).
		Model(&QueuedNotificationModel{}).
		Where("id = ? AND status = ?", id, domain.StatusProcessing).
		Updates(map[string]any{
			"status":          domain.StatusSent,
			"last_attempt":    r.now(),
			"delivery_result": &deliveryResult,
			"error_message":   nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

// MarkFailed bumps the attempt counter and either reschedules the job with
// exponential backoff or marks it FAILED once attempts are exhausted.
// It returns the status the job ended up in.
func (r *GormQueueRepo) MarkFailed(ctx context.Context, id string, errorMessage string, policy domain.RetryPolicy) (domain.Status, error) {
	var finalStatus domain.Status

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model QueuedNotificationModel
		if err := tx.First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}

		attempts := model.Attempts + 1
		now := r.now()

		if attempts >= model.MaxAttempts {
			finalStatus = domain.StatusFailed
			return tx.Model(&model).Updates(map[string]any{
				"status":        domain.StatusFailed,
				"attempts":      attempts,
				"last_attempt":  now,
				"error_message": errorMessage,
			}).Error
		}

		finalStatus = domain.StatusPending
		return tx.Model(&model).Updates(map[string]any{
			"status":        domain.StatusPending,
			"attempts":      attempts,
			"last_attempt":  now,
			"scheduled_for": now.Add(policy.Delay(attempts)),
			"error_message": errorMessage,
		}).Error
	})
	if err != nil {
		return "", err
	}

	return finalStatus, nil
}

// Cancel forces the transition to CANCELLED from any non-terminal state.
func (r *GormQueueRepo) Cancel(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&QueuedNotificationModel{}).
		Where("id = ? AND status IN ?", id, []domain.Status{
			domain.StatusPending,
			domain.StatusProcessing,
			domain.StatusPaused,
		}).
		Update("status", domain.StatusCancelled)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormQueueRepo) Pause(ctx context.Context, filter QueueFilter) (int64, error) {
	return r.bulkTransition(ctx, filter, domain.StatusPending, domain.StatusPaused)
}

func (r *GormQueueRepo) Resume(ctx context.Context, filter QueueFilter) (int64, error) {
	return r.bulkTransition(ctx, filter, domain.StatusPaused, domain.StatusPending)
}

func (r *GormQueueRepo) bulkTransition(ctx context.Context, filter QueueFilter, from, to domain.Status) (int64, error) {
	query := r.db.WithContext(ctx).
		Model(&QueuedNotificationModel{}).
		Where("status = ?", from)
	if filter.AsociacionID != "" {
		query = query.Where("metadata->>'asociacionId' = ?", filter.AsociacionID)
	}
	if filter.Channel != nil {
		query = query.Where("channel = ?", *filter.Channel)
	}

	result := query.Update("status", to)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

type statusCountRow struct {
	Status domain.Status `gorm:"column:status"`
	Count  int64         `gorm:"column:count"`
}

func (r *GormQueueRepo) Stats(ctx context.Context, asociacionID string, timeRange *TimeRange) (*domain.QueueStats, error) {
	query := r.db.WithContext(ctx).Model(&QueuedNotificationModel{})
	if asociacionID != "" {
		query = query.Where("metadata->>'asociacionId' = ?", asociacionID)
	}
	if timeRange != nil {
		query = query.Where("created_at >= ? AND created_at <= ?", timeRange.Start, timeRange.End)
	}

	var rows []statusCountRow
	if err := query.Session(&gorm.Session{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	stats := &domain.QueueStats{}
	for _, row := range rows {
		stats.Total += row.Count
		switch row.Status {
		case domain.StatusPending:
			stats.Pending = row.Count
		case domain.StatusProcessing:
			stats.Processing = row.Count
		case domain.StatusSent:
			stats.Sent = row.Count
		case domain.StatusFailed:
			stats.Failed = row.Count
		case domain.StatusCancelled:
			stats.Cancelled = row.Count
		case domain.StatusPaused:
			stats.Paused = row.Count
		}
	}

	var avgSeconds *float64
	if err := query.Session(&gorm.Session{}).
		Where("status = ? AND last_attempt IS NOT NULL", domain.StatusSent).
		Select("AVG(EXTRACT(EPOCH FROM (last_attempt - created_at)))").
		Scan(&avgSeconds).Error; err != nil {
		return nil, err
	}
	if avgSeconds != nil {
		stats.AvgProcessingMins = *avgSeconds / 60
	}

	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Sent) / float64(stats.Total) * 100
	}

	return stats, nil
}

type channelPerformanceRow struct {
	Channel     domain.Channel `gorm:"column:channel"`
	Status      domain.Status  `gorm:"column:status"`
	Count       int64          `gorm:"column:count"`
	SumAttempts int64          `gorm:"column:sum_attempts"`
}

func (r *GormQueueRepo) ChannelPerformance(ctx context.Context, asociacionID string, days int) (map[string]domain.ChannelStats, error) {
	if days <= 0 {
		days = 7
	}
	since := r.now().AddDate(0, 0, -days)

	query := r.db.WithContext(ctx).
		Model(&QueuedNotificationModel{}).
		Where("created_at >= ?", since)
	if asociacionID != "" {
		query = query.Where("metadata->>'asociacionId' = ?", asociacionID)
	}

	var rows []channelPerformanceRow
	if err := query.
		Select("channel, status, COUNT(*) as count, SUM(attempts) as sum_attempts").
		Group("channel, status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	perf := make(map[string]domain.ChannelStats)
	sumAttempts := make(map[string]int64)
	for _, row := range rows {
		key := row.Channel.String()
		stats := perf[key]
		stats.Total += row.Count
		sumAttempts[key] += row.SumAttempts
		switch row.Status {
		case domain.StatusSent:
			stats.Sent = row.Count
		case domain.StatusFailed:
			stats.Failed = row.Count
		case domain.StatusPending:
			stats.Pending = row.Count
		case domain.StatusProcessing:
			stats.Processing = row.Count
		case domain.StatusCancelled:
			stats.Cancelled = row.Count
		}
		perf[key] = stats
	}

	for key, stats := range perf {
		if stats.Total > 0 {
			stats.AvgAttempts = float64(sumAttempts[key]) / float64(stats.Total)
			stats.SuccessRate = float64(stats.Sent) / float64(stats.Total) * 100
		}
		perf[key] = stats
	}

	return perf, nil
}

// RetryFailed moves FAILED jobs that still have attempts left back to PENDING
// with an immediate schedule and a cleared error.
func (r *GormQueueRepo) RetryFailed(ctx context.Context, asociacionID string, maxAgeHours int) (int64, error) {
	query := r.db.WithContext(ctx).
		Model(&QueuedNotificationModel{}).
		Where("status = ? AND attempts < max_attempts", domain.StatusFailed)
	if asociacionID != "" {
		query = query.Where("metadata->>'asociacionId' = ?", asociacionID)
	}
	if maxAgeHours > 0 {
		query = query.Where("created_at >= ?", r.now().Add(-time.Duration(maxAgeHours)*time.Hour))
	}

	result := query.Updates(map[string]any{
		"status":        domain.StatusPending,
		"scheduled_for": r.now(),
		"error_message": nil,
	})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// SweepOld deletes terminal jobs older than the retention window.
func (r *GormQueueRepo) SweepOld(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays <= 0 {
		return 0, fmt.Errorf("%w: retention days must be > 0", domain.ErrValidation)
	}
	cutoff := r.now().AddDate(0, 0, -olderThanDays)

	result := r.db.WithContext(ctx).
		Where("created_at < ? AND status IN ?", cutoff, []domain.Status{
			domain.StatusSent,
			domain.StatusFailed,
			domain.StatusCancelled,
		}).
		Delete(&QueuedNotificationModel{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *GormQueueRepo) ListByStatus(ctx context.Context, status domain.Status, asociacionID string, limit int) ([]domain.QueuedNotification, error) {
	if limit <= 0 {
		limit = 50
	}

	query := r.db.WithContext(ctx).Where("status = ?", status)
	if asociacionID != "" {
		query = query.Where("metadata->>'asociacionId' = ?", asociacionID)
	}

	var models []QueuedNotificationModel
	err := query.
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	notifications := make([]domain.QueuedNotification, 0, len(models))
	for i := range models {
		notifications = append(notifications, *queuedModelToDomain(&models[i]))
	}

	return notifications, nil
}
