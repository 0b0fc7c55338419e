package videos

import (
	"time"

	"gorm.io/datatypes"
)

// VideoRecord is the durable row for one analyzed video. URL is the identity;
// upserts key on it. Tags and AnalysisResult are JSON columns so the store
// stays a single table.
type VideoRecord struct {
	ID             uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	URL            string         `gorm:"column:url;uniqueIndex;not null" json:"url"`
	Title          string         `gorm:"column:title" json:"title"`
	Platform       string         `gorm:"column:platform;index" json:"platform"`
	VideoID        string         `gorm:"column:video_id" json:"video_id"`
	Duration       float64        `gorm:"column:duration" json:"duration"`
	ViewCount      int64          `gorm:"column:view_count" json:"view_count"`
	UploadDate     string         `gorm:"column:upload_date" json:"upload_date"`
	Genre          string         `gorm:"column:genre;index" json:"genre"`
	Mood           string         `gorm:"column:mood" json:"mood"`
	Tags           datatypes.JSON `gorm:"column:tags" json:"tags"`
	AnalysisResult datatypes.JSON `gorm:"column:analysis_result" json:"analysis_result"`
	ThumbnailPath  string         `gorm:"column:thumbnail_path" json:"thumbnail_path"`
	ScenesCount    int            `gorm:"column:scenes_count;default:0" json:"scenes_count"`
	CreatedAt      time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (VideoRecord) TableName() string { return "videos" }
