package db

import (
	"fmt"

	"github.com/jinzhu/gorm"
	"github.com/rs/zerolog/log"
	"gopkg.in/gormigrate.v1"
)

type MigrationContext struct{}

func (db *DB) Migrate(ctx MigrationContext) error {
	options := &gormigrate.Options{
		TableName:      "migrations",
		IDColumnName:   "id",
		IDColumnSize:   255,
		UseTransaction: false,
	}

	// $ date '+%Y%m%d%H%M'
	migrations := []*gormigrate.Migration{
		construct(ctx, "202311201340", migrateInitSchema),
		construct(ctx, "202401091215", migrateTrackAddedDate),
		construct(ctx, "202402271801", migratePlaylistIcon),
	}

	return gormigrate.
		New(db.DB, options, migrations).
		Migrate()
}

func construct(ctx MigrationContext, id string, f func(*gorm.DB, MigrationContext) error) *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: id,
		Migrate: func(db *gorm.DB) error {
			tx := db.Begin()
			defer tx.Commit()
			if err := f(tx, ctx); err != nil {
				return fmt.Errorf("%q: %w", id, err)
			}
			log.Debug().Str("migration", id).Msg("migration finished")
			return nil
		},
		Rollback: func(*gorm.DB) error {
			return nil
		},
	}
}

func migrateInitSchema(tx *gorm.DB, _ MigrationContext) error {
	return tx.AutoMigrate(
		Track{},
		Album{},
		Artist{},
		TrackExclusion{},
		UsageEvent{},
		Playlist{},
		PlaylistItem{},
	).
		Error
}

func migrateTrackAddedDate(tx *gorm.DB, _ MigrationContext) error {
	return tx.AutoMigrate(Track{}).Error
}

func migratePlaylistIcon(tx *gorm.DB, _ MigrationContext) error {
	return tx.AutoMigrate(Playlist{}).Error
}
