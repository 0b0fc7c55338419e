package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/vidlens-backend/internal/domain/videos"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&videos.VideoRecord{},
	)
}

func EnsureVideoIndexes(db *gorm.DB) error {
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_videos_url ON videos(url);`).Error; err != nil {
		return fmt.Errorf("create idx_videos_url: %w", err)
	}
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_videos_platform ON videos(platform);`).Error; err != nil {
		return fmt.Errorf("create idx_videos_platform: %w", err)
	}
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_videos_genre ON videos(genre);`).Error; err != nil {
		return fmt.Errorf("create idx_videos_genre: %w", err)
	}
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_videos_created_at ON videos(created_at);`).Error; err != nil {
		return fmt.Errorf("create idx_videos_created_at: %w", err)
	}
	return nil
}

func (s *SQLiteService) AutoMigrateAll() error {
	s.log.Info("Auto migrating sqlite tables...")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if err := EnsureVideoIndexes(s.db); err != nil {
		s.log.Error("Video index migration failed", "error", err)
		return err
	}
	return nil
}
