package database

import (
	"errors"
	"time"

	"github.com/sddion/projectzg/internal/social"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationReconcileRepliesCount = "2025-02-10_reconcile_comment_replies_count"
	migrationBackfillStoryType     = "2025-02-24_backfill_story_media_type"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationReconcileRepliesCount, apply: reconcileRepliesCount},
		{name: migrationBackfillStoryType, apply: backfillStoryMediaType},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: time.Now().UTC().Unix()}).Error
		})
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// reconcileRepliesCount recomputes the reply counter of every top-level comment from the stored replies.
func reconcileRepliesCount(db *gorm.DB) error {
	replies := db.Table("comments AS replies").
		Select("COUNT(*)").
		Where("replies.parent_id = comments.id")
	return db.Model(&social.Comment{}).
		Where("parent_id IS NULL OR parent_id = ''").
		UpdateColumn("replies_count", replies).Error
}

func backfillStoryMediaType(db *gorm.DB) error {
	return db.Model(&social.Story{}).
		Where("media_type = '' OR media_type IS NULL").
		UpdateColumn("media_type", "image").Error
}
