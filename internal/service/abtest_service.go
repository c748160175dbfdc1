package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/axeelhrz/fidelya-notify/internal/domain"
	"github.com/axeelhrz/fidelya-notify/internal/repository"
	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultTestDurationDays = 7
	defaultMinSampleSize    = 100
	defaultConfidenceLevel  = 95.0
	assignmentBucketCount   = 100
)

// ExportFormat selects the serialization of an exported test report.
type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportJSON ExportFormat = "json"
)

// ABTestService manages the A/B test lifecycle: variant assignment, funnel
// tracking, and statistical completion.
type ABTestService struct {
	repo   repository.ABTestRepository
	logger *zap.Logger
	now    func() time.Time
}

func NewABTestService(repo repository.ABTestRepository, logger *zap.Logger) *ABTestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ABTestService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// Create validates and persists a new test in DRAFT with zeroed metrics.
func (s *ABTestService) Create(ctx context.Context, t *domain.ABTest) error {
	if t == nil {
		return fmt.Errorf("%w: test is required", domain.ErrValidation)
	}

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.DurationDays <= 0 {
		t.DurationDays = defaultTestDurationDays
	}
	if t.MinSampleSize <= 0 {
		t.MinSampleSize = defaultMinSampleSize
	}
	if t.ConfidenceLevel <= 0 {
		t.ConfidenceLevel = defaultConfidenceLevel
	}
	t.Status = domain.TestStatusDraft

	if err := t.Validate(); err != nil {
		return err
	}
	t.InitMetrics()

	if err := s.repo.Create(ctx, t); err != nil {
		return err
	}

	s.logger.Info("ab test created",
		zap.String("id", t.ID),
		zap.String("name", t.Name),
		zap.Int("variants", len(t.Variants)),
	)
	return nil
}

// Start moves a DRAFT or PAUSED test to RUNNING. The start date is set on the
// first activation only, so pauses do not extend the test window.
func (s *ABTestService) Start(ctx context.Context, id string) (*domain.ABTest, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if t.Status != domain.TestStatusDraft && t.Status != domain.TestStatusPaused {
		return nil, fmt.Errorf("%w: cannot start test in status %s", domain.ErrConflict, t.Status)
	}

	t.Status = domain.TestStatusRunning
	if t.StartDate == nil {
		now := s.now()
		t.StartDate = &now
	}

	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info("ab test started", zap.String("id", t.ID))
	return t, nil
}

func (s *ABTestService) Pause(ctx context.Context, id string) (*domain.ABTest, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if t.Status != domain.TestStatusRunning {
		return nil, fmt.Errorf("%w: cannot pause test in status %s", domain.ErrConflict, t.Status)
	}

	t.Status = domain.TestStatusPaused
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info("ab test paused", zap.String("id", t.ID))
	return t, nil
}

func (s *ABTestService) Cancel(ctx context.Context, id string) (*domain.ABTest, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if t.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: test already %s", domain.ErrConflict, t.Status)
	}

	t.Status = domain.TestStatusCancelled
	now := s.now()
	t.EndDate = &now

	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info("ab test cancelled", zap.String("id", t.ID))
	return t, nil
}

func (s *ABTestService) GetByID(ctx context.Context, id string) (*domain.ABTest, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *ABTestService) List(ctx context.Context, asociacionID string, status *domain.TestStatus) ([]domain.ABTest, error) {
	return s.repo.List(ctx, asociacionID, status)
}

// AssignVariant deterministically buckets a user into a variant. The same
// user always lands in the same variant for the lifetime of the test.
func (s *ABTestService) AssignVariant(ctx context.Context, testID, userID string) (*domain.Variant, error) {
	t, err := s.repo.GetByID(ctx, testID)
	if err != nil {
		return nil, err
	}

	if t.Status != domain.TestStatusRunning {
		return nil, fmt.Errorf("%w: test is not running", domain.ErrConflict)
	}

	bucket := assignmentBucket(userID, testID)

	var cumulative float64
	for i := range t.Variants {
		cumulative += t.TrafficSplit[i]
		if bucket < cumulative {
			return &t.Variants[i], nil
		}
	}

	// Rounding in the split can leave the last bucket uncovered.
	return &t.Variants[0], nil
}

// assignmentBucket hashes userID+testID into [0, 100). Only the low 32 bits
// feed the modulo so the bucket stays stable across architectures.
func assignmentBucket(userID, testID string) float64 {
	sum := xxhash.Sum64String(userID + testID)
	return float64(uint32(sum) % assignmentBucketCount)
}

// RecordEvent tracks one funnel event against a variant and persists the
// refreshed metrics. Crossing both the sample-size and duration thresholds
// completes the test automatically.
func (s *ABTestService) RecordEvent(ctx context.Context, testID, variantID string, event domain.EventType) error {
	if !event.IsValid() {
		return fmt.Errorf("%w: invalid event type %q", domain.ErrValidation, event)
	}

	t, err := s.repo.GetByID(ctx, testID)
	if err != nil {
		return err
	}

	if t.Status.IsTerminal() {
		return fmt.Errorf("%w: test is %s", domain.ErrConflict, t.Status)
	}

	variantMetrics, ok := t.Metrics.Variants[variantID]
	if !ok {
		return fmt.Errorf("%w: variant %q", domain.ErrNotFound, variantID)
	}

	t.Metrics.Record(event)
	variantMetrics.Record(event)

	if err := s.repo.Update(ctx, t); err != nil {
		return err
	}

	if s.shouldAutoComplete(t) {
		if _, err := s.Complete(ctx, t.ID); err != nil {
			s.logger.Warn("auto completion failed", zap.String("id", t.ID), zap.Error(err))
		}
	}

	return nil
}

// shouldAutoComplete requires both thresholds: enough samples AND the full
// test window elapsed.
func (s *ABTestService) shouldAutoComplete(t *domain.ABTest) bool {
	if t.Status != domain.TestStatusRunning || t.StartDate == nil {
		return false
	}
	if t.Metrics.TotalSent < t.MinSampleSize {
		return false
	}
	elapsedDays := s.now().Sub(*t.StartDate).Hours() / 24
	return elapsedDays >= float64(t.DurationDays)
}

// Complete freezes the test, runs the significance analysis of every
// challenger against the control, and persists the result.
func (s *ABTestService) Complete(ctx context.Context, id string) (*domain.TestResult, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if t.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: test already %s", domain.ErrConflict, t.Status)
	}

	control, err := t.ControlVariant()
	if err != nil {
		return nil, err
	}
	controlMetrics, ok := t.Metrics.Variants[control.ID]
	if !ok {
		return nil, fmt.Errorf("%w: control metrics", domain.ErrNotFound)
	}

	var (
		winner         *domain.Variant
		maxConfidence  float64
		maxImprovement float64
	)

	for i := range t.Variants {
		v := &t.Variants[i]
		if v.IsControl {
			continue
		}
		vm, ok := t.Metrics.Variants[v.ID]
		if !ok {
			continue
		}

		sig := twoProportionZTest(controlMetrics.Converted, controlMetrics.Sent, vm.Converted, vm.Sent)
		vm.Confidence = sig.Confidence

		improvement := 0.0
		if controlMetrics.ConversionRate > 0 {
			improvement = (vm.ConversionRate - controlMetrics.ConversionRate) / controlMetrics.ConversionRate * 100
		}

		if sig.Confidence > maxConfidence && improvement > maxImprovement {
			winner = v
			maxConfidence = sig.Confidence
			maxImprovement = improvement
		}
	}

	isSignificant := winner != nil && maxConfidence >= t.ConfidenceLevel
	if isSignificant {
		t.Metrics.Variants[winner.ID].IsWinner = true
	}

	now := s.now()
	t.Status = domain.TestStatusCompleted
	t.EndDate = &now

	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}

	result := &domain.TestResult{
		ID:             uuid.NewString(),
		TestID:         t.ID,
		Confidence:     maxConfidence,
		Improvement:    maxImprovement,
		IsSignificant:  isSignificant,
		Recommendation: buildRecommendation(winner, maxConfidence, maxImprovement, isSignificant, t.ConfidenceLevel),
		Metrics:        t.Metrics,
		CreatedAt:      now,
	}
	if winner != nil {
		result.WinnerVariantID = winner.ID
	}

	if err := s.repo.SaveResult(ctx, result); err != nil {
		return nil, err
	}

	s.logger.Info("ab test completed",
		zap.String("id", t.ID),
		zap.String("winner", result.WinnerVariantID),
		zap.Float64("confidence", result.Confidence),
		zap.Bool("significant", result.IsSignificant),
	)

	return result, nil
}

func buildRecommendation(winner *domain.Variant, confidence, improvement float64, significant bool, confidenceLevel float64) string {
	if winner == nil {
		return "No variant outperformed the control. Keep the current message."
	}
	if significant {
		return fmt.Sprintf(
			"Variant %q outperforms the control by %.1f%% with %.1f%% confidence. Roll it out.",
			winner.Name, improvement, confidence,
		)
	}
	return fmt.Sprintf(
		"Variant %q leads by %.1f%% but %.1f%% confidence is below the %.0f%% threshold. Collect more data before deciding.",
		winner.Name, improvement, confidence, confidenceLevel,
	)
}

// Export serializes the per-variant funnel report as CSV or JSON.
func (s *ABTestService) Export(ctx context.Context, id string, format ExportFormat) ([]byte, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch format {
	case ExportJSON:
		return json.MarshalIndent(exportReport(t), "", "  ")
	case ExportCSV, "":
		return exportCSV(t)
	default:
		return nil, fmt.Errorf("%w: unsupported export format %q", domain.ErrValidation, format)
	}
}

type variantReport struct {
	VariantID      string  `json:"variantId"`
	Name           string  `json:"name"`
	IsControl      bool    `json:"isControl"`
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
	IsWinner       bool    `json:"isWinner"`
}

type testReport struct {
	TestID   string          `json:"testId"`
	Name     string          `json:"name"`
	Status   string          `json:"status"`
	Variants []variantReport `json:"variants"`
}

func exportReport(t *domain.ABTest) testReport {
	report := testReport{
		TestID:   t.ID,
		Name:     t.Name,
		Status:   t.Status.String(),
		Variants: make([]variantReport, 0, len(t.Variants)),
	}
	for _, v := range t.Variants {
		row := variantReport{VariantID: v.ID, Name: v.Name, IsControl: v.IsControl}
		if m, ok := t.Metrics.Variants[v.ID]; ok {
			row.Sent = m.Sent
			row.Delivered = m.Delivered
			row.Opened = m.Opened
			row.Clicked = m.Clicked
			row.Converted = m.Converted
			row.DeliveryRate = m.DeliveryRate
			row.OpenRate = m.OpenRate
			row.ClickRate = m.ClickRate
			row.ConversionRate = m.ConversionRate
			row.Confidence = m.Confidence
			row.IsWinner = m.IsWinner
		}
		report.Variants = append(report.Variants, row)
	}
	return report
}

func exportCSV(t *domain.ABTest) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{
		"variantId", "name", "isControl",
		"sent", "delivered", "opened", "clicked", "converted",
		"deliveryRate", "openRate", "clickRate", "conversionRate",
		"confidence", "isWinner",
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, row := range exportReport(t).Variants {
		record := []string{
			row.VariantID,
			row.Name,
			strconv.FormatBool(row.IsControl),
			strconv.FormatInt(row.Sent, 10),
			strconv.FormatInt(row.Delivered, 10),
			strconv.FormatInt(row.Opened, 10),
			strconv.FormatInt(row.Clicked, 10),
			strconv.FormatInt(row.Converted, 10),
			fmt.Sprintf("%.2f", row.DeliveryRate),
			fmt.Sprintf("%.2f", row.OpenRate),
			fmt.Sprintf("%.2f", row.ClickRate),
			fmt.Sprintf("%.2f", row.ConversionRate),
			fmt.Sprintf("%.2f", row.Confidence),
			strconv.FormatBool(row.IsWinner),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
