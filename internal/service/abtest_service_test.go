package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/axeelhrz/fidelya-notify/internal/domain"
)

type fakeABTestRepo struct {
	mu      sync.Mutex
	tests   map[string]*domain.ABTest
	results []*domain.TestResult
}

func newFakeABTestRepo() *fakeABTestRepo {
	return &fakeABTestRepo{tests: make(map[string]*domain.ABTest)}
}

func (f *fakeABTestRepo) Create(_ context.Context, t *domain.ABTest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tests[t.ID] = t
	return nil
}

func (f *fakeABTestRepo) GetByID(_ context.Context, id string) (*domain.ABTest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tests[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return t, nil
}

func (f *fakeABTestRepo) List(_ context.Context, asociacionID string, status *domain.TestStatus) ([]domain.ABTest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ABTest
	for _, t := range f.tests {
		if t.AsociacionID != asociacionID {
			continue
		}
		if status != nil && t.Status != *status {
			continue
		}
		out = append(out, *t)
	}
	return out, nil
}

func (f *fakeABTestRepo) Update(_ context.Context, t *domain.ABTest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tests[t.ID]; !ok {
		return domain.ErrNotFound
	}
	f.tests[t.ID] = t
	return nil
}

func (f *fakeABTestRepo) SaveResult(_ context.Context, r *domain.TestResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, r)
	return nil
}

func sampleTest() *domain.ABTest {
	return &domain.ABTest{
		Name:         "subject line test",
		AsociacionID: "asoc-1",
		Variants: []domain.Variant{
			{ID: "control", Name: "Control", Content: "Hola", IsControl: true},
			{ID: "variant-b", Name: "Variante B", Content: "Hola!"},
		},
		TrafficSplit: []float64{50, 50},
	}
}

func TestABTestServiceCreateValidatesSplit(t *testing.T) {
	t.Parallel()

	svc := NewABTestService(newFakeABTestRepo(), nil)

	bad := sampleTest()
	bad.TrafficSplit = []float64{60, 30}
	if err := svc.Create(context.Background(), bad); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Create() with split summing to 90: error = %v, want ErrValidation", err)
	}

	good := sampleTest()
	if err := svc.Create(context.Background(), good); err != nil {
		t.Fatalf("Create() with [50,50] split: unexpected error %v", err)
	}

	if good.Status != domain.TestStatusDraft {
		t.Fatalf("Status = %s, want DRAFT", good.Status)
	}
	if good.DurationDays != defaultTestDurationDays {
		t.Fatalf("DurationDays = %d, want default %d", good.DurationDays, defaultTestDurationDays)
	}
	if good.MinSampleSize != defaultMinSampleSize {
		t.Fatalf("MinSampleSize = %d, want default %d", good.MinSampleSize, defaultMinSampleSize)
	}
	if good.ConfidenceLevel != defaultConfidenceLevel {
		t.Fatalf("ConfidenceLevel = %v, want default %v", good.ConfidenceLevel, defaultConfidenceLevel)
	}
	if len(good.Metrics.Variants) != 2 {
		t.Fatalf("metrics variants = %d, want 2", len(good.Metrics.Variants))
	}
}

func TestABTestServiceLifecycle(t *testing.T) {
	t.Parallel()

	repo := newFakeABTestRepo()
	svc := NewABTestService(repo, nil)

	test := sampleTest()
	if err := svc.Create(context.Background(), test); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	started, err := svc.Start(context.Background(), test.ID)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if started.Status != domain.TestStatusRunning {
		t.Fatalf("Status = %s, want RUNNING", started.Status)
	}
	if started.StartDate == nil {
		t.Fatal("StartDate not set on first start")
	}
	firstStart := *started.StartDate

	if _, err := svc.Start(context.Background(), test.ID); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("Start() on running test: error = %v, want ErrConflict", err)
	}

	paused, err := svc.Pause(context.Background(), test.ID)
	if err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if paused.Status != domain.TestStatusPaused {
		t.Fatalf("Status = %s, want PAUSED", paused.Status)
	}

	resumed, err := svc.Start(context.Background(), test.ID)
	if err != nil {
		t.Fatalf("Start() after pause: error = %v", err)
	}
	if !resumed.StartDate.Equal(firstStart) {
		t.Fatal("StartDate changed on resume, want the original activation time")
	}

	cancelled, err := svc.Cancel(context.Background(), test.ID)
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if cancelled.Status != domain.TestStatusCancelled {
		t.Fatalf("Status = %s, want CANCELLED", cancelled.Status)
	}

	if _, err := svc.Cancel(context.Background(), test.ID); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("Cancel() on terminal test: error = %v, want ErrConflict", err)
	}
}

func startedTest(t *testing.T, svc *ABTestService) *domain.ABTest {
	t.Helper()

	test := sampleTest()
	if err := svc.Create(context.Background(), test); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := svc.Start(context.Background(), test.ID); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return test
}

func TestABTestServiceAssignVariantIsSticky(t *testing.T) {
	t.Parallel()

	svc := NewABTestService(newFakeABTestRepo(), nil)
	test := startedTest(t, svc)

	first, err := svc.AssignVariant(context.Background(), test.ID, "socio-42")
	if err != nil {
		t.Fatalf("AssignVariant() error = %v", err)
	}

	for i := 0; i < 10; i++ {
		again, err := svc.AssignVariant(context.Background(), test.ID, "socio-42")
		if err != nil {
			t.Fatalf("AssignVariant() error = %v", err)
		}
		if again.ID != first.ID {
			t.Fatalf("assignment changed between calls: %q then %q", first.ID, again.ID)
		}
	}
}

func TestABTestServiceAssignVariantDistribution(t *testing.T) {
	t.Parallel()

	svc := NewABTestService(newFakeABTestRepo(), nil)
	test := startedTest(t, svc)

	const users = 10000
	counts := make(map[string]int)
	for i := 0; i < users; i++ {
		v, err := svc.AssignVariant(context.Background(), test.ID, fmt.Sprintf("user-%d", i))
		if err != nil {
			t.Fatalf("AssignVariant() error = %v", err)
		}
		counts[v.ID]++
	}

	// A 50/50 split over 10k users should land within 3 points of even.
	for id, count := range counts {
		share := float64(count) / users * 100
		if share < 47 || share > 53 {
			t.Fatalf("variant %q received %.1f%% of traffic, want 50%% +/- 3", id, share)
		}
	}
}

func TestABTestServiceAssignVariantRequiresRunning(t *testing.T) {
	t.Parallel()

	svc := NewABTestService(newFakeABTestRepo(), nil)
	test := sampleTest()
	if err := svc.Create(context.Background(), test); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err := svc.AssignVariant(context.Background(), test.ID, "socio-1"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("AssignVariant() on draft test: error = %v, want ErrConflict", err)
	}
}

func TestABTestServiceRecordEventUpdatesRates(t *testing.T) {
	t.Parallel()

	svc := NewABTestService(newFakeABTestRepo(), nil)
	test := startedTest(t, svc)

	for i := 0; i < 10; i++ {
		if err := svc.RecordEvent(context.Background(), test.ID, "variant-b", domain.EventSent); err != nil {
			t.Fatalf("RecordEvent(SENT) error = %v", err)
		}
	}
	for i := 0; i < 3; i++ {
		if err := svc.RecordEvent(context.Background(), test.ID, "variant-b", domain.EventConverted); err != nil {
			t.Fatalf("RecordEvent(CONVERTED) error = %v", err)
		}
	}

	stored, err := svc.GetByID(context.Background(), test.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}

	vm := stored.Metrics.Variants["variant-b"]
	if vm.Sent != 10 || vm.Converted != 3 {
		t.Fatalf("variant counters = %d sent / %d converted, want 10/3", vm.Sent, vm.Converted)
	}
	if vm.ConversionRate != 30.0 {
		t.Fatalf("ConversionRate = %v, want 30.0", vm.ConversionRate)
	}
	if stored.Metrics.TotalSent != 10 || stored.Metrics.TotalConverted != 3 {
		t.Fatalf("totals = %d sent / %d converted, want 10/3", stored.Metrics.TotalSent, stored.Metrics.TotalConverted)
	}

	if err := svc.RecordEvent(context.Background(), test.ID, "nope", domain.EventSent); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("RecordEvent() unknown variant: error = %v, want ErrNotFound", err)
	}
}

func TestABTestServiceAutoCompletesAfterThresholds(t *testing.T) {
	t.Parallel()

	repo := newFakeABTestRepo()
	svc := NewABTestService(repo, nil)

	test := sampleTest()
	test.MinSampleSize = 5
	test.DurationDays = 1
	if err := svc.Create(context.Background(), test); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := svc.Start(context.Background(), test.ID); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Pretend the window elapsed two days ago.
	svc.now = func() time.Time { return time.Now().Add(48 * time.Hour) }

	for i := 0; i < 5; i++ {
		if err := svc.RecordEvent(context.Background(), test.ID, "variant-b", domain.EventSent); err != nil {
			t.Fatalf("RecordEvent() error = %v", err)
		}
	}

	stored, err := svc.GetByID(context.Background(), test.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if stored.Status != domain.TestStatusCompleted {
		t.Fatalf("Status = %s, want COMPLETED after both thresholds", stored.Status)
	}
	if len(repo.results) != 1 {
		t.Fatalf("saved results = %d, want 1", len(repo.results))
	}
}

func TestABTestServiceDoesNotAutoCompleteOnSampleSizeAlone(t *testing.T) {
	t.Parallel()

	svc := NewABTestService(newFakeABTestRepo(), nil)

	test := sampleTest()
	test.MinSampleSize = 2
	test.DurationDays = 30
	if err := svc.Create(context.Background(), test); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := svc.Start(context.Background(), test.ID); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := svc.RecordEvent(context.Background(), test.ID, "variant-b", domain.EventSent); err != nil {
			t.Fatalf("RecordEvent() error = %v", err)
		}
	}

	stored, err := svc.GetByID(context.Background(), test.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if stored.Status != domain.TestStatusRunning {
		t.Fatalf("Status = %s, want still RUNNING before the window elapses", stored.Status)
	}
}

func seedMetrics(t *testing.T, repo *fakeABTestRepo, testID, variantID string, sent, converted int64) {
	t.Helper()

	stored, err := repo.GetByID(context.Background(), testID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	vm := stored.Metrics.Variants[variantID]
	vm.Sent = sent
	vm.Converted = converted
	vm.Recalculate()
	stored.Metrics.TotalSent += sent
	stored.Metrics.TotalConverted += converted
}

func TestABTestServiceCompleteDeclaresSignificantWinner(t *testing.T) {
	t.Parallel()

	repo := newFakeABTestRepo()
	svc := NewABTestService(repo, nil)
	test := startedTest(t, svc)

	seedMetrics(t, repo, test.ID, "control", 1000, 100)
	seedMetrics(t, repo, test.ID, "variant-b", 1000, 150)

	result, err := svc.Complete(context.Background(), test.ID)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if result.WinnerVariantID != "variant-b" {
		t.Fatalf("WinnerVariantID = %q, want variant-b", result.WinnerVariantID)
	}
	if !result.IsSignificant {
		t.Fatal("IsSignificant = false, want true for a 10% vs 15% lift at n=1000")
	}
	if result.Confidence != 99.9 {
		t.Fatalf("Confidence = %v, want capped 99.9", result.Confidence)
	}
	if result.Improvement < 49.9 || result.Improvement > 50.1 {
		t.Fatalf("Improvement = %v, want about 50", result.Improvement)
	}
	if !strings.Contains(result.Recommendation, "Variante B") {
		t.Fatalf("Recommendation = %q, want it to name the winner", result.Recommendation)
	}

	stored, err := svc.GetByID(context.Background(), test.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if stored.Status != domain.TestStatusCompleted {
		t.Fatalf("Status = %s, want COMPLETED", stored.Status)
	}
	if !stored.Metrics.Variants["variant-b"].IsWinner {
		t.Fatal("winner variant metrics not flagged IsWinner")
	}
}

func TestABTestServiceCompleteWithoutWinner(t *testing.T) {
	t.Parallel()

	repo := newFakeABTestRepo()
	svc := NewABTestService(repo, nil)
	test := startedTest(t, svc)

	seedMetrics(t, repo, test.ID, "control", 1000, 100)
	seedMetrics(t, repo, test.ID, "variant-b", 1000, 100)

	result, err := svc.Complete(context.Background(), test.ID)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if result.WinnerVariantID != "" {
		t.Fatalf("WinnerVariantID = %q, want empty on identical rates", result.WinnerVariantID)
	}
	if result.IsSignificant {
		t.Fatal("IsSignificant = true, want false")
	}
	if !strings.Contains(result.Recommendation, "control") {
		t.Fatalf("Recommendation = %q, want it to keep the control", result.Recommendation)
	}

	if _, err := svc.Complete(context.Background(), test.ID); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("Complete() twice: error = %v, want ErrConflict", err)
	}
}

func TestABTestServiceExportCSV(t *testing.T) {
	t.Parallel()

	repo := newFakeABTestRepo()
	svc := NewABTestService(repo, nil)
	test := startedTest(t, svc)

	seedMetrics(t, repo, test.ID, "variant-b", 10, 3)

	data, err := svc.Export(context.Background(), test.ID, ExportCSV)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("csv lines = %d, want header + 2 variants", len(lines))
	}
	if !strings.HasPrefix(lines[0], "variantId,name,isControl,sent") {
		t.Fatalf("csv header = %q", lines[0])
	}
	if !strings.Contains(lines[2], "variant-b,Variante B,false,10,") {
		t.Fatalf("variant row = %q, want counters for variant-b", lines[2])
	}
	if !strings.Contains(lines[2], "30.00") {
		t.Fatalf("variant row = %q, want 30.00 conversion rate", lines[2])
	}

	if _, err := svc.Export(context.Background(), test.ID, "xml"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Export() unknown format: error = %v, want ErrValidation", err)
	}
}

func TestABTestServiceExportJSON(t *testing.T) {
	t.Parallel()

	repo := newFakeABTestRepo()
	svc := NewABTestService(repo, nil)
	test := startedTest(t, svc)

	data, err := svc.Export(context.Background(), test.ID, ExportJSON)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if !strings.Contains(string(data), `"testId"`) || !strings.Contains(string(data), `"variant-b"`) {
		t.Fatalf("json export = %s, want test and variant fields", data)
	}
}
