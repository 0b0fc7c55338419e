package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/yungbote/vidlens-backend/internal/cache"
	videorepo "github.com/yungbote/vidlens-backend/internal/data/repos/videos"
	videos "github.com/yungbote/vidlens-backend/internal/domain/videos"
	"github.com/yungbote/vidlens-backend/internal/pkg/dbctx"
	"github.com/yungbote/vidlens-backend/internal/pkg/logger"
	"github.com/yungbote/vidlens-backend/internal/platform/localmedia"
	"github.com/yungbote/vidlens-backend/internal/platform/ytdlp"
	"github.com/yungbote/vidlens-backend/internal/scene"
	"github.com/yungbote/vidlens-backend/internal/utils"
)

// StageContext is the evolving state one video carries through the
// pipeline. Stages mutate it and report progress through Emit.
type StageContext struct {
	SessionID    string
	RawURL       string
	CanonicalURL string
	VideoID      string
	Platform     videos.Platform
	VideoDir     string
	CacheHit     bool
	Video        *videos.Video
	Record       *videos.VideoRecord

	emit func(percent float64, message string)
}

// Emit forwards stage-local progress (0..100) to the pipeline sink. The
// driver folds it into the weighted overall percent.
func (sc *StageContext) Emit(percent float64, message string) {
	if sc.emit != nil {
		sc.emit(percent, message)
	}
}

type pipelineStage struct {
	name   string
	weight float64
	skip   func(*StageContext) bool
	run    func(ctx context.Context, sc *StageContext) error
}

// AnalysisPipeline drives one URL through parse, cache, fetch, extract,
// analyze and persist. Stage order within one video is strict; a cache hit
// short-circuits fetch onward without emitting events for the skipped stages.
type AnalysisPipeline interface {
	Process(ctx context.Context, sessionID, rawURL string, sink ProgressSink) (*videos.Video, error)
}

type analysisPipeline struct {
	log       *logger.Logger
	urls      URLParser
	cache     *cache.Manager
	repo      videorepo.VideoRepo
	fetcher   ytdlp.Fetcher
	media     localmedia.Tools
	extractor scene.Extractor
	thumbs    ThumbnailService
	analysis  AnalysisService
	sessions  SessionManager
	quality   string
	tracer    trace.Tracer
}

func NewAnalysisPipeline(
	log *logger.Logger,
	urls URLParser,
	cacheManager *cache.Manager,
	repo videorepo.VideoRepo,
	fetcher ytdlp.Fetcher,
	media localmedia.Tools,
	extractor scene.Extractor,
	thumbs ThumbnailService,
	analysis AnalysisService,
	sessions SessionManager,
) AnalysisPipeline {
	l := log.With("service", "AnalysisPipeline")
	return &analysisPipeline{
		log:       l,
		urls:      urls,
		cache:     cacheManager,
		repo:      repo,
		fetcher:   fetcher,
		media:     media,
		extractor: extractor,
		thumbs:    thumbs,
		analysis:  analysis,
		sessions:  sessions,
		quality:   utils.GetEnv("VIDEO_QUALITY", "best", l),
		tracer:    otel.Tracer("vidlens/pipeline"),
	}
}

func skipOnCacheHit(sc *StageContext) bool { return sc.CacheHit }

func (p *analysisPipeline) stages() []pipelineStage {
	return []pipelineStage{
		{name: "url_parser", weight: 2, run: p.stageParseURL},
		{name: "cache", weight: 5, run: p.stageCacheCheck},
		{name: "fetch", weight: 30, skip: skipOnCacheHit, run: p.stageFetch},
		{name: "extract", weight: 40, skip: skipOnCacheHit, run: p.stageExtract},
		{name: "analyze", weight: 20, skip: skipOnCacheHit, run: p.stageAnalyze},
		{name: "persist", weight: 3, skip: skipOnCacheHit, run: p.stagePersist},
	}
}

func (p *analysisPipeline) Process(ctx context.Context, sessionID, rawURL string, sink ProgressSink) (*videos.Video, error) {
	if sink == nil {
		sink = func(ProgressEvent) {}
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.process")
	span.SetAttributes(
		attribute.String("video.url", rawURL),
		attribute.String("session.id", sessionID),
	)
	defer span.End()

	sc := &StageContext{
		SessionID: sessionID,
		RawURL:    rawURL,
		Video:     &videos.Video{SessionID: sessionID, URL: rawURL},
	}

	completedWeight := 0.0
	for _, st := range p.stages() {
		if st.skip != nil && st.skip(sc) {
			// Skipped stages stay silent; their weight folds into the
			// aggregate so the completed event still reads 100.
			completedWeight += st.weight
			continue
		}

		stageCtx, stageSpan := p.tracer.Start(ctx, "pipeline.stage."+st.name)
		lastPercent := -1.0
		sc.emit = func(percent float64, message string) {
			if percent < 0 {
				percent = 0
			}
			if percent > 100 {
				percent = 100
			}
			lastPercent = percent
			overall := completedWeight + st.weight*percent/100
			sink(ProgressEvent{
				Stage:   st.name,
				Percent: percent,
				Message: message,
				Detail:  fmt.Sprintf("overall=%.1f", overall),
			})
		}

		if err := st.run(stageCtx, sc); err != nil {
			stageSpan.RecordError(err)
			stageSpan.SetStatus(codes.Error, err.Error())
			stageSpan.End()
			span.SetStatus(codes.Error, err.Error())
			p.log.Error("Pipeline stage failed", "stage", st.name, "url", rawURL, "error", err)
			sink(ProgressEvent{Stage: "error", Percent: 0, Message: err.Error(), Detail: st.name})
			return nil, err
		}
		if lastPercent < 100 {
			sc.emit(100, st.name+" complete")
		}
		sc.emit = nil
		stageSpan.End()
		completedWeight += st.weight
	}

	p.sessions.MarkPipelineCompleted(sessionID)
	sink(ProgressEvent{Stage: "completed", Percent: 100, Message: "pipeline complete", Detail: "overall=100.0"})
	p.log.Info("Pipeline completed",
		"url", sc.CanonicalURL,
		"video_id", sc.VideoID,
		"cache_hit", sc.CacheHit,
	)
	return sc.Video, nil
}

func (p *analysisPipeline) stageParseURL(ctx context.Context, sc *StageContext) error {
	parsed, err := p.urls.Parse(sc.RawURL)
	if err != nil {
		return err
	}
	sc.CanonicalURL = parsed.CanonicalURL
	sc.VideoID = parsed.VideoID
	sc.Platform = parsed.Platform
	sc.Video.URL = parsed.CanonicalURL
	return nil
}

// stageCacheCheck treats the cache as a hint: a hit only counts when the
// persistent store still has the record. Stale or undecodable entries are
// evicted and processed as misses.
func (p *analysisPipeline) stageCacheCheck(ctx context.Context, sc *StageContext) error {
	key := cache.AnalysisKey(sc.CanonicalURL)
	payload, ok := p.cache.Get(ctx, key)
	if !ok {
		sc.Emit(100, "cache miss")
		return nil
	}

	record, err := p.repo.GetByURL(dbctx.Context{Ctx: ctx}, sc.CanonicalURL)
	if err != nil || record == nil {
		if err != nil {
			p.log.Warn("Cache hit but store lookup failed, treating as miss", "url", sc.CanonicalURL, "error", err)
		} else {
			p.log.Warn("Cache hit without persistent record, treating as miss", "url", sc.CanonicalURL)
		}
		p.cache.Delete(ctx, key)
		sc.Emit(100, "cache miss")
		return nil
	}

	var analysis videos.ParsedAnalysis
	if uerr := json.Unmarshal(payload, &analysis); uerr != nil {
		if len(record.AnalysisResult) == 0 || json.Unmarshal(record.AnalysisResult, &analysis) != nil {
			p.log.Warn("Cached analysis undecodable, treating as miss", "url", sc.CanonicalURL, "error", uerr)
			p.cache.Delete(ctx, key)
			sc.Emit(100, "cache miss")
			return nil
		}
	}

	sc.CacheHit = true
	sc.Record = record
	sc.Video.Analysis = &analysis
	sc.Video.ThumbnailPath = record.ThumbnailPath
	sc.Video.Metadata = &videos.VideoMetadata{
		VideoID:         sc.VideoID,
		Platform:        sc.Platform,
		Title:           record.Title,
		UploadDate:      record.UploadDate,
		DurationSeconds: record.Duration,
		ViewCount:       record.ViewCount,
		URL:             sc.CanonicalURL,
	}
	sc.Emit(100, "cache hit")
	return nil
}

func (p *analysisPipeline) stageFetch(ctx context.Context, sc *StageContext) error {
	sessionDir, err := p.sessions.GetWorkspacePath(sc.SessionID, "")
	if err != nil {
		return err
	}
	videoDir, err := p.sessions.GetWorkspacePath(sc.SessionID, filepath.Join("temp", sc.VideoID))
	if err != nil {
		return err
	}
	sc.VideoDir = videoDir
	sc.Video.SessionDir = sessionDir

	sc.Emit(5, "fetching media")
	res, err := p.fetcher.Fetch(ctx, sc.CanonicalURL, sc.Platform, videoDir)
	if err != nil {
		return err
	}
	sc.Emit(60, "media downloaded")

	playable, err := p.media.EnsurePlayable(ctx, res.VideoPath, p.quality)
	if err != nil {
		p.log.Warn("Playability check failed, keeping fetched container", "path", res.VideoPath, "error", err)
		playable = res.VideoPath
	}

	meta := res.Metadata
	if meta == nil {
		p.log.Warn("Media fetched without metadata, proceeding with a minimal record", "url", sc.CanonicalURL)
		meta = &videos.VideoMetadata{}
	}
	if meta.VideoID == "" {
		meta.VideoID = sc.VideoID
	}
	if meta.Platform == "" {
		meta.Platform = sc.Platform
	}
	if meta.URL == "" {
		meta.URL = sc.CanonicalURL
	}

	ext := filepath.Ext(playable)
	if ext == "" {
		ext = ".mp4"
	}
	finalPath := filepath.Join(videoDir, sc.VideoID+"_"+safeTitle(meta.Title)+ext)
	if playable != finalPath {
		if rerr := os.Rename(playable, finalPath); rerr != nil {
			p.log.Warn("Media rename failed, keeping fetched name", "from", playable, "error", rerr)
			finalPath = playable
		}
	}
	sc.Video.LocalPath = finalPath
	sc.Video.Metadata = meta
	sc.Emit(85, "media ready")

	thumbPath, terr := p.thumbs.EnsureThumbnail(ctx, ThumbnailInput{
		VideoID:      sc.VideoID,
		VideoDir:     videoDir,
		FetchedPath:  res.ThumbnailPath,
		ThumbnailURL: meta.ThumbnailURL,
		VideoPath:    finalPath,
	})
	if terr != nil {
		p.log.Warn("Thumbnail unavailable", "video_id", sc.VideoID, "error", terr)
	} else {
		sc.Video.ThumbnailPath = thumbPath
	}

	if payload, merr := json.Marshal(meta); merr == nil {
		p.cache.Set(ctx, cache.MetadataKey(sc.CanonicalURL), payload, cache.MetadataTTL)
	}
	return nil
}

func (p *analysisPipeline) stageExtract(ctx context.Context, sc *StageContext) error {
	res, err := p.extractor.ExtractScenes(ctx, sc.Video.LocalPath, sc.VideoDir, *sc.Video.Metadata, sc.Emit)
	if err != nil {
		return err
	}
	sc.Video.Scenes = res.AllScenes
	sc.Video.GroupedScenes = res.GroupedScenes

	if payload, merr := json.Marshal(res); merr == nil {
		p.cache.Set(ctx, cache.ScenesKey(sc.VideoID), payload, cache.ScenesTTL)
	}
	return nil
}

func (p *analysisPipeline) stageAnalyze(ctx context.Context, sc *StageContext) error {
	sc.Emit(10, "calling model")
	analysis, err := p.analysis.Analyze(ctx, sc.Video, sc.VideoDir)
	if err != nil {
		return err
	}
	sc.Video.Analysis = analysis
	return nil
}

// stagePersist writes the durable record and warms the analysis cache.
// Minimal-parse results are persisted but never cached, so the next request
// re-analyzes instead of replaying a bad answer.
func (p *analysisPipeline) stagePersist(ctx context.Context, sc *StageContext) error {
	analysis := sc.Video.Analysis
	meta := sc.Video.Metadata
	if analysis == nil || meta == nil {
		return fmt.Errorf("persist reached without analysis or metadata")
	}

	tagsJSON, err := json.Marshal(analysis.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	analysisJSON, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}

	record := &videos.VideoRecord{
		URL:            sc.CanonicalURL,
		Title:          meta.Title,
		Platform:       string(meta.Platform),
		VideoID:        sc.VideoID,
		Duration:       meta.DurationSeconds,
		ViewCount:      meta.ViewCount,
		UploadDate:     meta.UploadDate,
		Genre:          analysis.Genre,
		Mood:           analysis.MoodTone,
		Tags:           datatypes.JSON(tagsJSON),
		AnalysisResult: datatypes.JSON(analysisJSON),
		ThumbnailPath:  sc.Video.ThumbnailPath,
		ScenesCount:    len(sc.Video.Scenes),
	}

	stored, err := p.repo.Upsert(dbctx.Context{Ctx: ctx}, record)
	if err != nil {
		return err
	}
	sc.Record = stored
	sc.Emit(80, "record stored")

	if analysis.ParseMethod == videos.ParseMinimal {
		p.log.Warn("Minimal parse persisted but not cached", "url", sc.CanonicalURL)
		return nil
	}
	p.cache.Set(ctx, cache.AnalysisKey(sc.CanonicalURL), analysisJSON, cache.AnalysisTTL)
	return nil
}

var unsafeTitleRe = regexp.MustCompile(`[^\p{L}\p{N}._-]+`)

// safeTitle squeezes a video title into a filename fragment.
func safeTitle(title string) string {
	t := unsafeTitleRe.ReplaceAllString(strings.TrimSpace(title), "_")
	for strings.Contains(t, "__") {
		t = strings.ReplaceAll(t, "__", "_")
	}
	t = strings.Trim(t, "._-")
	if runes := []rune(t); len(runes) > 80 {
		t = string(runes[:80])
	}
	if t == "" {
		return "video"
	}
	return t
}
