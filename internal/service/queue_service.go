package service

import (
	"context"
	"fmt"
	"time"

	"github.com/axeelhrz/fidelya-notify/internal/domain"
	"github.com/axeelhrz/fidelya-notify/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxEnqueueBatch = 1000

// QueueService owns admission into the notification queue and the bulk
// lifecycle operations exposed over the API.
type QueueService struct {
	repo   repository.QueueRepository
	policy domain.RetryPolicy
	logger *zap.Logger
	now    func() time.Time
}

func NewQueueService(repo repository.QueueRepository, policy domain.RetryPolicy, logger *zap.Logger) *QueueService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueService{
		repo:   repo,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}
}

// Enqueue admits one notification: fills defaults, validates, persists.
func (s *QueueService) Enqueue(ctx context.Context, n *domain.QueuedNotification) error {
	if n == nil {
		return fmt.Errorf("%w: notification is required", domain.ErrValidation)
	}

	s.applyDefaults(n)
	if err := n.Validate(); err != nil {
		return err
	}

	if err := s.repo.Enqueue(ctx, n); err != nil {
		return err
	}

	s.logger.Info("notification enqueued",
		zap.String("id", n.ID),
		zap.String("channel", n.Channel.String()),
		zap.String("priority", n.Priority.String()),
		zap.Time("scheduledFor", n.ScheduledFor),
	)
	return nil
}

// EnqueueBatch admits up to maxEnqueueBatch notifications atomically: one
// invalid entry rejects the whole batch.
func (s *QueueService) EnqueueBatch(ctx context.Context, notifications []*domain.QueuedNotification) error {
	if len(notifications) == 0 {
		return fmt.Errorf("%w: batch is empty", domain.ErrValidation)
	}
	if len(notifications) > maxEnqueueBatch {
		return fmt.Errorf("%w: batch size %d exceeds limit %d", domain.ErrValidation, len(notifications), maxEnqueueBatch)
	}

	for i, n := range notifications {
		if n == nil {
			return fmt.Errorf("%w: batch entry %d is nil", domain.ErrValidation, i)
		}
		s.applyDefaults(n)
		if err := n.Validate(); err != nil {
			return fmt.Errorf("batch entry %d: %w", i, err)
		}
	}

	if err := s.repo.EnqueueBatch(ctx, notifications); err != nil {
		return err
	}

	s.logger.Info("notification batch enqueued", zap.Int("count", len(notifications)))
	return nil
}

func (s *QueueService) applyDefaults(n *domain.QueuedNotification) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Status == "" {
		n.Status = domain.StatusPending
	}
	if n.Priority == "" {
		n.Priority = domain.PriorityNormal
	}
	if n.ScheduledFor.IsZero() {
		n.ScheduledFor = s.now()
	}
	if n.MaxAttempts == 0 {
		n.MaxAttempts = s.policy.MaxAttempts
	}
}

func (s *QueueService) GetByID(ctx context.Context, id string) (*domain.QueuedNotification, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", domain.ErrValidation)
	}
	return s.repo.GetByID(ctx, id)
}

func (s *QueueService) Cancel(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: id is required", domain.ErrValidation)
	}
	if err := s.repo.Cancel(ctx, id); err != nil {
		return err
	}
	s.logger.Info("notification cancelled", zap.String("id", id))
	return nil
}

// Pause parks pending notifications matching the filter.
func (s *QueueService) Pause(ctx context.Context, filter repository.QueueFilter) (int64, error) {
	count, err := s.repo.Pause(ctx, filter)
	if err != nil {
		return 0, err
	}
	s.logger.Info("queue paused", zap.Int64("count", count), zap.String("asociacionId", filter.AsociacionID))
	return count, nil
}

// Resume releases paused notifications matching the filter back to pending.
func (s *QueueService) Resume(ctx context.Context, filter repository.QueueFilter) (int64, error) {
	count, err := s.repo.Resume(ctx, filter)
	if err != nil {
		return 0, err
	}
	s.logger.Info("queue resumed", zap.Int64("count", count), zap.String("asociacionId", filter.AsociacionID))
	return count, nil
}

func (s *QueueService) Stats(ctx context.Context, asociacionID string, timeRange *repository.TimeRange) (*domain.QueueStats, error) {
	return s.repo.Stats(ctx, asociacionID, timeRange)
}

func (s *QueueService) ChannelPerformance(ctx context.Context, asociacionID string, days int) (map[string]domain.ChannelStats, error) {
	return s.repo.ChannelPerformance(ctx, asociacionID, days)
}

// RetryFailed requeues failed notifications that still have attempts left.
func (s *QueueService) RetryFailed(ctx context.Context, asociacionID string, maxAgeHours int) (int64, error) {
	count, err := s.repo.RetryFailed(ctx, asociacionID, maxAgeHours)
	if err != nil {
		return 0, err
	}
	s.logger.Info("failed notifications requeued", zap.Int64("count", count))
	return count, nil
}

func (s *QueueService) SweepOld(ctx context.Context, olderThanDays int) (int64, error) {
	return s.repo.SweepOld(ctx, olderThanDays)
}

func (s *QueueService) ListByStatus(ctx context.Context, status domain.Status, asociacionID string, limit int) ([]domain.QueuedNotification, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: invalid status %q", domain.ErrValidation, status)
	}
	return s.repo.ListByStatus(ctx, status, asociacionID, limit)
}
