package repository

import (
	"context"
	"errors"

	"github.com/axeelhrz/fidelya-notify/internal/domain"
	"gorm.io/gorm"
)

// ABTestRepository persists A/B tests and their completion results.
type ABTestRepository interface {
	Create(ctx context.Context, t *domain.ABTest) error
	GetByID(ctx context.Context, id string) (*domain.ABTest, error)
	List(ctx context.Context, asociacionID string, status *domain.TestStatus) ([]domain.ABTest, error)
	Update(ctx context.Context, t *domain.ABTest) error
	SaveResult(ctx context.Context, r *domain.TestResult) error
}

type GormABTestRepo struct {
	db *gorm.DB
}

func NewGormABTestRepo(db *gorm.DB) *GormABTestRepo {
	return &GormABTestRepo{db: db}
}

func (r *GormABTestRepo) Create(ctx context.Context, t *domain.ABTest) error {
	model := abTestModelFromDomain(t)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if t != nil {
		*t = *abTestModelToDomain(model)
	}
	return nil
}

func (r *GormABTestRepo) GetByID(ctx context.Context, id string) (*domain.ABTest, error) {
	var model ABTestModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return abTestModelToDomain(&model), nil
}

func (r *GormABTestRepo) List(ctx context.Context, asociacionID string, status *domain.TestStatus) ([]domain.ABTest, error) {
	query := r.db.WithContext(ctx).Where("asociacion_id = ?", asociacionID)
	if status != nil {
		query = query.Where("status = ?", *status)
	}

	var models []ABTestModel
	if err := query.Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}

	tests := make([]domain.ABTest, 0, len(models))
	for i := range models {
		tests = append(tests, *abTestModelToDomain(&models[i]))
	}

	return tests, nil
}

func (r *GormABTestRepo) Update(ctx context.Context, t *domain.ABTest) error {
	model := abTestModelFromDomain(t)
	result := r.db.WithContext(ctx).
		Model(&ABTestModel{}).
		Where("id = ?", model.ID).
		Select("status", "variants", "metrics", "start_date", "end_date").
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormABTestRepo) SaveResult(ctx context.Context, res *domain.TestResult) error {
	return r.db.WithContext(ctx).Create(resultModelFromDomain(res)).Error
}
