package migrations

import (
	"github.com/axeelhrz/fidelya-notify/internal/repository"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_notification_queue",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.QueuedNotificationModel{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_queue_due ON notification_queue (scheduled_for, priority_weight DESC) WHERE status = 'PENDING'`,
					`CREATE INDEX IF NOT EXISTS idx_queue_status_channel_created ON notification_queue (status, channel, created_at)`,
					`CREATE INDEX IF NOT EXISTS idx_queue_asociacion ON notification_queue ((metadata->>'asociacionId'))`,
					`CREATE INDEX IF NOT EXISTS idx_queue_recipient ON notification_queue (recipient_id)`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.QueuedNotificationModel{})
			},
		},
		{
			ID: "000002_create_ab_tests",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.ABTestModel{}); err != nil {
					return err
				}
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_ab_tests_asociacion_status ON ab_tests (asociacion_id, status)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.ABTestModel{})
			},
		},
		{
			ID: "000003_create_ab_test_results",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.ABTestResultModel{}); err != nil {
					return err
				}
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_ab_test_results_test_id ON ab_test_results (test_id)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.ABTestResultModel{})
			},
		},
	})

	return m.Migrate()
}
