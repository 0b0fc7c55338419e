package videos

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/yungbote/vidlens-backend/internal/data/repos/testutil"
	types "github.com/yungbote/vidlens-backend/internal/domain/videos"
	"github.com/yungbote/vidlens-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/vidlens-backend/internal/pkg/errors"
)

func mustJSON(t *testing.T, v interface{}) datatypes.JSON {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return datatypes.JSON(raw)
}

func TestVideoRepoUpsertInsertThenGet(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)
	repoCtx := dbctx.Context{Ctx: context.Background(), Tx: tx}

	repo := NewVideoRepo(db, log)
	rec := &types.VideoRecord{
		URL:         "https://www.youtube.com/watch?v=abc12345678",
		Title:       "first title",
		Platform:    "youtube",
		VideoID:     "abc12345678",
		Duration:    321.5,
		ViewCount:   42,
		UploadDate:  "20240301",
		Genre:       "vlog",
		Mood:        "upbeat",
		Tags:        mustJSON(t, []string{"cars", "review"}),
		ScenesCount: 6,
	}
	saved, err := repo.Upsert(repoCtx, rec)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if saved.ID == 0 {
		t.Fatalf("expected assigned id")
	}

	got, err := repo.GetByURL(repoCtx, rec.URL)
	if err != nil {
		t.Fatalf("get by url: %v", err)
	}
	if got == nil {
		t.Fatalf("expected record for %s", rec.URL)
	}
	if got.Title != "first title" || got.Genre != "vlog" || got.ScenesCount != 6 {
		t.Fatalf("unexpected record: %+v", got)
	}

	var tags []string
	if err := json.Unmarshal(got.Tags, &tags); err != nil {
		t.Fatalf("unmarshal tags: %v", err)
	}
	if len(tags) != 2 || tags[0] != "cars" {
		t.Fatalf("unexpected tags: %v", tags)
	}
}

func TestVideoRepoUpsertUpdatesExisting(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)
	repoCtx := dbctx.Context{Ctx: context.Background(), Tx: tx}

	repo := NewVideoRepo(db, log)
	first := &types.VideoRecord{
		URL:      "https://vimeo.com/76979871",
		Title:    "before",
		Platform: "vimeo",
		VideoID:  "76979871",
		Genre:    "brand-film",
		Tags:     mustJSON(t, []string{"old"}),
	}
	if _, err := repo.Upsert(repoCtx, first); err != nil {
		t.Fatalf("insert: %v", err)
	}

	second := &types.VideoRecord{
		URL:         first.URL,
		Title:       "after",
		Platform:    "vimeo",
		VideoID:     "76979871",
		Genre:       "motion-graphics",
		Tags:        mustJSON(t, []string{"new", "tags"}),
		ScenesCount: 8,
	}
	updated, err := repo.Upsert(repoCtx, second)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ID != first.ID {
		t.Fatalf("id changed on upsert: %d != %d", updated.ID, first.ID)
	}

	got, err := repo.GetByURL(repoCtx, first.URL)
	if err != nil {
		t.Fatalf("get by url: %v", err)
	}
	if got.Title != "after" || got.Genre != "motion-graphics" || got.ScenesCount != 8 {
		t.Fatalf("update not applied: %+v", got)
	}
	if !got.UpdatedAt.After(got.CreatedAt) && !got.UpdatedAt.Equal(got.CreatedAt) {
		t.Fatalf("updated_at older than created_at: %v < %v", got.UpdatedAt, got.CreatedAt)
	}

	var count int64
	if err := tx.Model(&types.VideoRecord{}).Where("url = ?", first.URL).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected single row per url, got %d", count)
	}
}

func TestVideoRepoGetByIDAndDelete(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)
	repoCtx := dbctx.Context{Ctx: context.Background(), Tx: tx}

	repo := NewVideoRepo(db, log)
	seeded := testutil.SeedVideo(t, repoCtx.Ctx, tx, "https://www.youtube.com/watch?v=deleteme001")

	got, err := repo.GetByID(repoCtx, seeded.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got == nil || got.URL != seeded.URL {
		t.Fatalf("unexpected record: %+v", got)
	}

	if err := repo.DeleteByID(repoCtx, seeded.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	gone, err := repo.GetByID(repoCtx, seeded.ID)
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if gone != nil {
		t.Fatalf("record survived delete: %+v", gone)
	}
}

func TestVideoRepoGetByURLMissingReturnsNil(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)
	repoCtx := dbctx.Context{Ctx: context.Background(), Tx: tx}

	repo := NewVideoRepo(db, log)
	got, err := repo.GetByURL(repoCtx, "https://www.youtube.com/watch?v=nosuchvideo")
	if err != nil {
		t.Fatalf("get by url: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing url, got %+v", got)
	}
}

func TestVideoRepoSearchFilters(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)
	repoCtx := dbctx.Context{Ctx: context.Background(), Tx: tx}

	repo := NewVideoRepo(db, log)
	base := time.Now().UTC().Add(-time.Hour)
	seed := []*types.VideoRecord{
		{
			URL: "https://www.youtube.com/watch?v=search000001", Title: "Sports car review",
			Platform: "youtube", Genre: "youtube-content",
			Tags:      mustJSON(t, []string{"cars", "review"}),
			CreatedAt: base, UpdatedAt: base,
		},
		{
			URL: "https://www.youtube.com/watch?v=search000002", Title: "Cooking pasta at home",
			Platform: "youtube", Genre: "vlog",
			Tags:      mustJSON(t, []string{"food", "home"}),
			CreatedAt: base.Add(time.Minute), UpdatedAt: base.Add(time.Minute),
		},
		{
			URL: "https://vimeo.com/111222333", Title: "Sports brand spot",
			Platform: "vimeo", Genre: "spot-ad",
			Tags:      mustJSON(t, []string{"cars", "brand"}),
			CreatedAt: base.Add(2 * time.Minute), UpdatedAt: base.Add(2 * time.Minute),
		},
	}
	for _, rec := range seed {
		if err := tx.Create(rec).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	byGenre, err := repo.Search(repoCtx, SearchFilter{Genre: "vlog"})
	if err != nil {
		t.Fatalf("search genre: %v", err)
	}
	if len(byGenre) != 1 || byGenre[0].Title != "Cooking pasta at home" {
		t.Fatalf("genre filter wrong: %+v", byGenre)
	}

	byKeyword, err := repo.Search(repoCtx, SearchFilter{Keyword: "Sports"})
	if err != nil {
		t.Fatalf("search keyword: %v", err)
	}
	if len(byKeyword) != 2 {
		t.Fatalf("keyword filter expected 2, got %d", len(byKeyword))
	}

	byTags, err := repo.Search(repoCtx, SearchFilter{Tags: []string{"cars", "brand"}})
	if err != nil {
		t.Fatalf("search tags: %v", err)
	}
	if len(byTags) != 1 || byTags[0].Platform != "vimeo" {
		t.Fatalf("tag filter should AND values: %+v", byTags)
	}

	limited, err := repo.Search(repoCtx, SearchFilter{Limit: 2})
	if err != nil {
		t.Fatalf("search limit: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("limit not applied, got %d", len(limited))
	}
	if limited[0].URL != "https://vimeo.com/111222333" {
		t.Fatalf("expected newest first, got %s", limited[0].URL)
	}
}

func TestVideoRepoRecentOrder(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)
	repoCtx := dbctx.Context{Ctx: context.Background(), Tx: tx}

	repo := NewVideoRepo(db, log)
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		rec := &types.VideoRecord{
			URL:       fmt.Sprintf("https://www.youtube.com/watch?v=recent0000%d", i),
			Title:     "recent",
			Platform:  "youtube",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			UpdatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := tx.Create(rec).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	recent, err := repo.Recent(repoCtx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2, got %d", len(recent))
	}
	if !recent[0].CreatedAt.After(recent[1].CreatedAt) {
		t.Fatalf("recent not ordered desc: %v then %v", recent[0].CreatedAt, recent[1].CreatedAt)
	}
}

func TestVideoRepoExpiredContextMapsPoolExhausted(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)

	expired, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	repoCtx := dbctx.Context{Ctx: expired, Tx: tx}

	repo := NewVideoRepo(db, log)
	_, err := repo.GetByURL(repoCtx, "https://www.youtube.com/watch?v=timeout00001")
	if !apperrors.IsKind(err, apperrors.KindPoolExhausted) {
		t.Fatalf("expected POOL_EXHAUSTED, got %v", err)
	}
	if !apperrors.Retryable(err) {
		t.Fatalf("POOL_EXHAUSTED should be retryable")
	}
}

func TestMapStoreErr(t *testing.T) {
	if mapStoreErr(nil) != nil {
		t.Fatalf("nil error rewritten")
	}
	plain := fmt.Errorf("disk I/O error")
	if got := mapStoreErr(plain); got != plain {
		t.Fatalf("unrelated error rewritten: %v", got)
	}
	wrapped := fmt.Errorf("query: %w", context.DeadlineExceeded)
	if !apperrors.IsKind(mapStoreErr(wrapped), apperrors.KindPoolExhausted) {
		t.Fatalf("wrapped deadline not mapped to POOL_EXHAUSTED")
	}
}

func TestVideoRepoStatistics(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)
	repoCtx := dbctx.Context{Ctx: context.Background(), Tx: tx}

	repo := NewVideoRepo(db, log)
	seed := []*types.VideoRecord{
		{URL: "https://www.youtube.com/watch?v=stats0000001", Platform: "youtube", Genre: "vlog"},
		{URL: "https://www.youtube.com/watch?v=stats0000002", Platform: "youtube", Genre: "vlog"},
		{URL: "https://vimeo.com/900000001", Platform: "vimeo", Genre: "brand-film"},
		{URL: "https://vimeo.com/900000002", Platform: "vimeo", Genre: ""},
	}
	for _, rec := range seed {
		if err := tx.Create(rec).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	stats, err := repo.Statistics(repoCtx)
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	if stats.TotalVideos != 4 {
		t.Fatalf("total videos: %d", stats.TotalVideos)
	}
	if stats.TotalAnalyzed != 3 {
		t.Fatalf("total analyzed: %d", stats.TotalAnalyzed)
	}
	if stats.ByGenre["vlog"] != 2 || stats.ByGenre["brand-film"] != 1 {
		t.Fatalf("genre buckets: %+v", stats.ByGenre)
	}
	if stats.ByPlatform["youtube"] != 2 || stats.ByPlatform["vimeo"] != 2 {
		t.Fatalf("platform buckets: %+v", stats.ByPlatform)
	}
}
