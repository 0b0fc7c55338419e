package testutil

import (
	"context"
	"testing"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/vidlens-backend/internal/domain/videos"
)

// SeedVideo inserts a minimal analyzed record for the given URL.
func SeedVideo(tb testing.TB, ctx context.Context, tx *gorm.DB, url string) *videos.VideoRecord {
	tb.Helper()
	rec := &videos.VideoRecord{
		URL:            url,
		Title:          "seed title",
		Platform:       string(videos.PlatformYouTube),
		VideoID:        "seedvid0001",
		Duration:       123.4,
		ViewCount:      1000,
		UploadDate:     "20240101",
		Genre:          "vlog",
		Mood:           "calm",
		Tags:           datatypes.JSON([]byte(`["seed","video"]`)),
		AnalysisResult: datatypes.JSON([]byte(`{}`)),
		ScenesCount:    6,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(rec).Error; err != nil {
		tb.Fatalf("seed video: %v", err)
	}
	return rec
}
