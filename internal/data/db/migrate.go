package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/civiclens/civiclens-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		// Planning records
		&types.Proposal{},
		&types.Document{},
		&types.Image{},
		&types.Attribute{},
		&types.Event{},
		&types.EventCase{},
		&types.Parcel{},

		// Jobs / worker
		&types.JobRun{},
	)
}

func EnsurePlanningIndexes(db *gorm.DB) error {
	// uuid-ossp is already enabled in NewPostgresService, but safe to re-run
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		return fmt.Errorf("enable uuid-ossp: %w", err)
	}

	// Parcel containment prefilter: bounding-box scan before the exact
	// polygon test in Go.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_parcel_bbox
		ON parcel (min_lat, max_lat, min_lng, max_lng)
		WHERE deleted_at IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_parcel_bbox: %w", err)
	}

	// Watermark lookup: newest proposal per region.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_proposal_region_updated
		ON proposal (region_name, updated DESC)
		WHERE deleted_at IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_proposal_region_updated: %w", err)
	}

	// Event watermark per region.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_event_region_date
		ON event (region_name, date DESC)
		WHERE deleted_at IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_event_region_date: %w", err)
	}

	// Street view dedup: one image per (proposal, source) for non-document
	// sources.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_image_proposal_source
		ON image (proposal_id, source)
		WHERE deleted_at IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_image_proposal_source: %w", err)
	}

	return nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if err := EnsurePlanningIndexes(s.db); err != nil {
		s.log.Error("Planning index migration failed", "error", err)
		return err
	}
	return nil
}
