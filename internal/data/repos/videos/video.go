package videos

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	types "github.com/yungbote/vidlens-backend/internal/domain/videos"
	"github.com/yungbote/vidlens-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/vidlens-backend/internal/pkg/errors"
	"github.com/yungbote/vidlens-backend/internal/pkg/logger"
)

// acquireTimeout bounds how long any store call may wait on the connection
// pool. Hitting it surfaces as POOL_EXHAUSTED, which callers may retry.
const acquireTimeout = 10 * time.Second

// SearchFilter narrows Search results. Zero values are ignored; Tags values
// are ANDed substring matches against the JSON tags column.
type SearchFilter struct {
	Genre   string
	Keyword string
	Tags    []string
	Limit   int
	Offset  int
}

// Statistics summarizes the whole store.
type Statistics struct {
	TotalVideos   int64            `json:"total_videos"`
	TotalAnalyzed int64            `json:"total_analyzed"`
	ByGenre       map[string]int64 `json:"by_genre"`
	ByPlatform    map[string]int64 `json:"by_platform"`
}

type VideoRepo interface {
	Upsert(dbc dbctx.Context, record *types.VideoRecord) (*types.VideoRecord, error)
	GetByURL(dbc dbctx.Context, url string) (*types.VideoRecord, error)
	GetByID(dbc dbctx.Context, id uint) (*types.VideoRecord, error)
	Search(dbc dbctx.Context, filter SearchFilter) ([]*types.VideoRecord, error)
	Recent(dbc dbctx.Context, limit int) ([]*types.VideoRecord, error)
	Statistics(dbc dbctx.Context) (*Statistics, error)
	DeleteByID(dbc dbctx.Context, id uint) error
}

type videoRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewVideoRepo(db *gorm.DB, baseLog *logger.Logger) VideoRepo {
	return &videoRepo{
		db:  db,
		log: baseLog.With("repo", "VideoRepo"),
	}
}

// acquire wraps the call context with the pool acquisition deadline.
func acquire(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, acquireTimeout)
}

// mapStoreErr turns a pool acquisition timeout into POOL_EXHAUSTED. All
// other store errors pass through unchanged.
func mapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(apperrors.KindPoolExhausted, "store connection not acquired", err)
	}
	return err
}

// Upsert writes the record keyed by URL: INSERT when absent, otherwise
// UPDATE refreshing updated_at. Conflicts on the unique url index are never
// reported as errors. The read-then-write runs in one transaction; two
// concurrent writers on the same URL resolve last-writer-wins.
func (r *videoRepo) Upsert(dbc dbctx.Context, record *types.VideoRecord) (*types.VideoRecord, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if record == nil || strings.TrimSpace(record.URL) == "" {
		return nil, apperrors.ErrInvalidArgument
	}
	ctx, cancel := acquire(dbc.Ctx)
	defer cancel()
	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var existing types.VideoRecord
		findErr := txx.Where("url = ?", record.URL).Limit(1).Find(&existing).Error
		if findErr != nil {
			return findErr
		}
		if existing.ID == 0 {
			return txx.Create(record).Error
		}
		record.ID = existing.ID
		record.CreatedAt = existing.CreatedAt
		return txx.Model(&types.VideoRecord{}).
			Where("id = ?", existing.ID).
			Updates(map[string]interface{}{
				"title":           record.Title,
				"platform":        record.Platform,
				"video_id":        record.VideoID,
				"duration":        record.Duration,
				"view_count":      record.ViewCount,
				"upload_date":     record.UploadDate,
				"genre":           record.Genre,
				"mood":            record.Mood,
				"tags":            record.Tags,
				"analysis_result": record.AnalysisResult,
				"thumbnail_path":  record.ThumbnailPath,
				"scenes_count":    record.ScenesCount,
				"updated_at":      time.Now().UTC(),
			}).Error
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return record, nil
}

func (r *videoRepo) GetByURL(dbc dbctx.Context, url string) (*types.VideoRecord, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if strings.TrimSpace(url) == "" {
		return nil, nil
	}
	ctx, cancel := acquire(dbc.Ctx)
	defer cancel()
	var record types.VideoRecord
	err := transaction.WithContext(ctx).
		Where("url = ?", url).
		Limit(1).
		Find(&record).Error
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

func (r *videoRepo) GetByID(dbc dbctx.Context, id uint) (*types.VideoRecord, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == 0 {
		return nil, nil
	}
	ctx, cancel := acquire(dbc.Ctx)
	defer cancel()
	var record types.VideoRecord
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&record).Error
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

func (r *videoRepo) Search(dbc dbctx.Context, filter SearchFilter) ([]*types.VideoRecord, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	ctx, cancel := acquire(dbc.Ctx)
	defer cancel()
	q := transaction.WithContext(ctx).Model(&types.VideoRecord{})
	if g := strings.TrimSpace(filter.Genre); g != "" {
		q = q.Where("genre = ?", g)
	}
	if kw := strings.TrimSpace(filter.Keyword); kw != "" {
		q = q.Where("title LIKE ?", "%"+kw+"%")
	}
	for _, tag := range filter.Tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		q = q.Where("tags LIKE ?", "%"+tag+"%")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	var out []*types.VideoRecord
	err := q.Order("created_at DESC").
		Limit(limit).
		Offset(filter.Offset).
		Find(&out).Error
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return out, nil
}

func (r *videoRepo) Recent(dbc dbctx.Context, limit int) ([]*types.VideoRecord, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 10
	}
	ctx, cancel := acquire(dbc.Ctx)
	defer cancel()
	var out []*types.VideoRecord
	err := transaction.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return out, nil
}

func (r *videoRepo) Statistics(dbc dbctx.Context) (*Statistics, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	ctx, cancel := acquire(dbc.Ctx)
	defer cancel()

	stats := &Statistics{
		ByGenre:    map[string]int64{},
		ByPlatform: map[string]int64{},
	}
	if err := transaction.WithContext(ctx).
		Model(&types.VideoRecord{}).
		Count(&stats.TotalVideos).Error; err != nil {
		return nil, mapStoreErr(err)
	}
	if err := transaction.WithContext(ctx).
		Model(&types.VideoRecord{}).
		Where("genre <> ''").
		Count(&stats.TotalAnalyzed).Error; err != nil {
		return nil, mapStoreErr(err)
	}

	type bucket struct {
		Key   string
		Count int64
	}
	var genreBuckets []bucket
	if err := transaction.WithContext(ctx).
		Model(&types.VideoRecord{}).
		Select("genre AS key, COUNT(*) AS count").
		Where("genre <> ''").
		Group("genre").
		Scan(&genreBuckets).Error; err != nil {
		return nil, mapStoreErr(err)
	}
	for _, b := range genreBuckets {
		stats.ByGenre[b.Key] = b.Count
	}

	var platformBuckets []bucket
	if err := transaction.WithContext(ctx).
		Model(&types.VideoRecord{}).
		Select("platform AS key, COUNT(*) AS count").
		Where("platform <> ''").
		Group("platform").
		Scan(&platformBuckets).Error; err != nil {
		return nil, mapStoreErr(err)
	}
	for _, b := range platformBuckets {
		stats.ByPlatform[b.Key] = b.Count
	}

	return stats, nil
}

func (r *videoRepo) DeleteByID(dbc dbctx.Context, id uint) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == 0 {
		return nil
	}
	ctx, cancel := acquire(dbc.Ctx)
	defer cancel()
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Delete(&types.VideoRecord{}).Error
	return mapStoreErr(err)
}
