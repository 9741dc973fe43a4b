// Package gorm provides GORM-based database operations for conductor.
package gorm

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: sessions and their step plans
		{
			ID: "001_sessions_steps",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&Session{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&Step{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("sessions", "steps")
			},
		},

		// Migration 002: append-only event log
		{
			ID: "002_events",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&Event{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("events")
			},
		},

		// Migration 003: artifacts and pause checkpoints
		{
			ID: "003_artifacts_checkpoints",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&Artifact{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&Checkpoint{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("artifacts", "checkpoints")
			},
		},
	})

	return m.Migrate()
}
