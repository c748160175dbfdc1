package service

import (
	"context"
	"time"

	"github.com/axeelhrz/fidelya-notify/internal/repository"
	"go.uber.org/zap"
)

// Sweeper deletes terminal queue entries past the retention window.
type Sweeper struct {
	repo          repository.QueueRepository
	retentionDays int
	interval      time.Duration
	logger        *zap.Logger
}

func NewSweeper(repo repository.QueueRepository, retentionDays int, interval time.Duration, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retentionDays <= 0 {
		retentionDays = 30
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Sweeper{
		repo:          repo,
		retentionDays: retentionDays,
		interval:      interval,
		logger:        logger,
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sweeper started",
		zap.Int("retentionDays", s.retentionDays),
		zap.Duration("interval", s.interval),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-ticker.C:
			count, err := s.repo.SweepOld(ctx, s.retentionDays)
			if err != nil {
				s.logger.Error("sweep failed", zap.Error(err))
				continue
			}
			if count > 0 {
				s.logger.Info("old notifications swept", zap.Int64("count", count))
			}
		}
	}
}
