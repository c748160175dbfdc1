package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/axeelhrz/fidelya-notify/internal/domain"
	"github.com/axeelhrz/fidelya-notify/internal/observability"
	"github.com/axeelhrz/fidelya-notify/internal/provider"
	"github.com/axeelhrz/fidelya-notify/internal/ratelimit"
	"github.com/axeelhrz/fidelya-notify/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ProviderGateway delivers a payload through the provider registered for a
// channel, normalizing all failures into the returned result.
type ProviderGateway interface {
	Send(ctx context.Context, channel domain.Channel, cfg provider.Config, payload provider.Payload) domain.DeliveryResult
}

// EventRecorder receives funnel events for notifications that belong to an
// A/B test.
type EventRecorder interface {
	RecordEvent(ctx context.Context, testID, variantID string, event domain.EventType) error
}

// DispatcherConfig tunes one dispatcher poll loop.
type DispatcherConfig struct {
	BatchSize    int
	Concurrency  int
	PollInterval time.Duration
	RetryPolicy  domain.RetryPolicy
}

func (c *DispatcherConfig) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 5
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.RetryPolicy.MaxAttempts == 0 {
		c.RetryPolicy = domain.DefaultRetryPolicy()
	}
}

// JobResult is the outcome of one job inside a ProcessQueue pass.
type JobResult struct {
	ID      string        `json:"id"`
	Channel string        `json:"channel"`
	Success bool          `json:"success"`
	Status  domain.Status `json:"status"`
	Error   string        `json:"error,omitempty"`
}

// ProcessResult summarizes one ProcessQueue pass.
type ProcessResult struct {
	Processed  int         `json:"processed"`
	Successful int         `json:"successful"`
	Failed     int         `json:"failed"`
	Results    []JobResult `json:"results"`
}

// Dispatcher drains due notifications from the queue store and pushes them
// through the provider layer. Multiple dispatchers can poll the same store;
// the claim step keeps them from double-sending.
type Dispatcher struct {
	repo    repository.QueueRepository
	gateway ProviderGateway
	configs provider.ConfigSet
	limiter ratelimit.RateLimiter
	events  EventRecorder
	metrics *observability.Metrics
	logger  *zap.Logger
	cfg     DispatcherConfig
}

func NewDispatcher(
	repo repository.QueueRepository,
	gateway ProviderGateway,
	configs provider.ConfigSet,
	limiter ratelimit.RateLimiter,
	events EventRecorder,
	metrics *observability.Metrics,
	logger *zap.Logger,
	cfg DispatcherConfig,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.applyDefaults()

	return &Dispatcher{
		repo:    repo,
		gateway: gateway,
		configs: configs,
		limiter: limiter,
		events:  events,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
	}
}

// Start polls the queue until the context is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	d.logger.Info("dispatcher started",
		zap.Duration("pollInterval", d.cfg.PollInterval),
		zap.Int("batchSize", d.cfg.BatchSize),
		zap.Int("concurrency", d.cfg.Concurrency),
	)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopped")
			return
		case <-ticker.C:
			result, err := d.ProcessQueue(ctx, d.cfg.BatchSize)
			if err != nil {
				d.logger.Error("queue pass failed", zap.Error(err))
				continue
			}
			if result.Processed > 0 {
				d.logger.Info("queue pass finished",
					zap.Int("processed", result.Processed),
					zap.Int("successful", result.Successful),
					zap.Int("failed", result.Failed),
				)
			}
		}
	}
}

// ProcessQueue runs one pass: dequeue due jobs, claim each, deliver. Jobs
// claimed by a concurrent poller are skipped silently.
func (d *Dispatcher) ProcessQueue(ctx context.Context, batchSize int) (*ProcessResult, error) {
	if batchSize <= 0 {
		batchSize = d.cfg.BatchSize
	}

	jobs, err := d.repo.DequeueDue(ctx, batchSize, nil)
	if err != nil {
		return nil, err
	}

	result := &ProcessResult{Results: make([]JobResult, 0, len(jobs))}
	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(d.cfg.Concurrency)

	for i := range jobs {
		job := jobs[i]
		group.Go(func() error {
			jobResult, claimed := d.processOne(groupCtx, job)
			if !claimed {
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			result.Processed++
			if jobResult.Success {
				result.Successful++
			} else {
				result.Failed++
			}
			result.Results = append(result.Results, jobResult)
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	return result, nil
}

// processOne reports claimed=false when another poller won the claim race.
func (d *Dispatcher) processOne(ctx context.Context, job domain.QueuedNotification) (JobResult, bool) {
	channelLabel := strings.ToLower(job.Channel.String())

	claimed, err := d.repo.ClaimForProcessing(ctx, job.ID)
	if err != nil {
		d.logger.Error("claim failed", zap.String("id", job.ID), zap.Error(err))
		return JobResult{}, false
	}
	if !claimed {
		return JobResult{}, false
	}

	cfg, err := d.configs.Resolve(job.Channel, job.Metadata.ProviderName)
	if err != nil {
		return d.failJob(ctx, job, err.Error()), true
	}

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx, channelLabel); err != nil {
			return d.failJob(ctx, job, "rate limit wait aborted: "+err.Error()), true
		}
	}

	d.metrics.IncWorkerInFlight(channelLabel)
	defer d.metrics.DecWorkerInFlight(channelLabel)

	start := time.Now()
	deliveryResult := d.gateway.Send(ctx, job.Channel, cfg, buildPayload(job))
	d.metrics.ObserveNotificationSendDuration(channelLabel, time.Since(start))

	if !deliveryResult.Success {
		return d.failJob(ctx, job, deliveryResult.Error), true
	}

	if err := d.repo.MarkSent(ctx, job.ID, deliveryResult); err != nil {
		d.logger.Error("mark sent failed", zap.String("id", job.ID), zap.Error(err))
		return JobResult{ID: job.ID, Channel: channelLabel, Status: domain.StatusProcessing, Error: err.Error()}, true
	}

	d.metrics.IncNotificationSent(channelLabel)
	d.recordTestEvent(ctx, job)

	d.logger.Debug("notification delivered",
		zap.String("id", job.ID),
		zap.String("channel", channelLabel),
		zap.String("provider", deliveryResult.ProviderID),
		zap.String("messageId", deliveryResult.MessageID),
	)

	return JobResult{ID: job.ID, Channel: channelLabel, Success: true, Status: domain.StatusSent}, true
}

func (d *Dispatcher) failJob(ctx context.Context, job domain.QueuedNotification, errorMessage string) JobResult {
	channelLabel := strings.ToLower(job.Channel.String())

	status, err := d.repo.MarkFailed(ctx, job.ID, errorMessage, d.cfg.RetryPolicy)
	if err != nil {
		d.logger.Error("mark failed errored", zap.String("id", job.ID), zap.Error(err))
		return JobResult{ID: job.ID, Channel: channelLabel, Status: domain.StatusProcessing, Error: errorMessage}
	}

	if status == domain.StatusPending {
		d.metrics.IncRetryScheduled(channelLabel)
		d.logger.Warn("delivery failed, retry scheduled",
			zap.String("id", job.ID),
			zap.String("channel", channelLabel),
			zap.Int("attempts", job.Attempts+1),
			zap.String("error", errorMessage),
		)
	} else {
		d.metrics.IncNotificationFailed(channelLabel, "attempts_exhausted")
		d.logger.Error("delivery failed permanently",
			zap.String("id", job.ID),
			zap.String("channel", channelLabel),
			zap.String("error", errorMessage),
		)
	}

	return JobResult{ID: job.ID, Channel: channelLabel, Status: status, Error: errorMessage}
}

// recordTestEvent forwards the sent event for A/B tracked notifications.
// Tracking failures never affect the delivery outcome.
func (d *Dispatcher) recordTestEvent(ctx context.Context, job domain.QueuedNotification) {
	if d.events == nil || job.Metadata.TestID == "" || job.Metadata.VariantID == "" {
		return
	}

	if err := d.events.RecordEvent(ctx, job.Metadata.TestID, job.Metadata.VariantID, domain.EventSent); err != nil {
		d.logger.Warn("test event not recorded",
			zap.String("testId", job.Metadata.TestID),
			zap.String("variantId", job.Metadata.VariantID),
			zap.Error(err),
		)
	}
}

func buildPayload(job domain.QueuedNotification) provider.Payload {
	vars := job.Metadata.Variables
	return provider.Payload{
		To:          job.Recipient,
		Subject:     renderTemplate(job.Subject, vars),
		Content:     renderTemplate(job.Content, vars),
		HTMLContent: renderTemplate(job.HTMLContent, vars),
		TemplateID:  job.Metadata.TemplateID,
		Variables:   vars,
	}
}

// renderTemplate substitutes {{name}} placeholders. Unknown placeholders are
// left untouched so downstream systems can spot missing variables.
func renderTemplate(text string, vars map[string]string) string {
	if text == "" || len(vars) == 0 {
		return text
	}
	for name, value := range vars {
		text = strings.ReplaceAll(text, "{{"+name+"}}", value)
	}
	return text
}
