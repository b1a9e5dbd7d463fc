package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/subwise/resilience/internal/repository"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_subscription_history",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.HistoryModel{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_history_match ON subscription_history (subscription_id, user_id, change_type, created_at)`,
					`CREATE INDEX IF NOT EXISTS idx_history_user_created ON subscription_history (user_id, created_at)`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.HistoryModel{})
			},
		},
	})

	return m.Migrate()
}
