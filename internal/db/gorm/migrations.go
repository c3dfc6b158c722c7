package gorm

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: patient profiles
		{
			ID: "001_patient",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&Patient{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("patient")
			},
		},

		// Migration 002: mood entries and their activity tags
		{
			ID: "002_mood_entries",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&MoodEntry{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&MoodActivity{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("mood_activities", "mood_entries")
			},
		},

		// Migration 003: feedback
		{
			ID: "003_feedbacks",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&Feedback{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("feedbacks")
			},
		},

		// Migration 004: activity lookups per entry
		{
			ID: "004_mood_activities_entry_name",
			Migrate: func(tx *gorm.DB) error {
				return tx.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_mood_activities_entry_name
					ON mood_activities (mood_entry_id, activity_name)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Exec("DROP INDEX IF EXISTS idx_mood_activities_entry_name").Error
			},
		},
	})

	return m.Migrate()
}
