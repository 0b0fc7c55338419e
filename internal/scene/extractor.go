package scene

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	videos "github.com/yungbote/vidlens-backend/internal/domain/videos"
	"github.com/yungbote/vidlens-backend/internal/pkg/ctxutil"
	"github.com/yungbote/vidlens-backend/internal/pkg/logger"
	"github.com/yungbote/vidlens-backend/internal/platform/localmedia"
	"github.com/yungbote/vidlens-backend/internal/utils"
)

// Short-form content cuts faster, so the transition detector runs hotter and
// the minimum span shrinks.
const (
	shortFormThreshold   = 0.15
	shortFormMinDuration = 0.2
)

// ProgressFunc receives extraction progress as 0..100 within this component.
// Implementations must not block.
type ProgressFunc func(percent float64, message string)

// Result is what one extraction run produced. GroupedScenes is a subset of
// AllScenes, ordered by timestamp.
type Result struct {
	AllScenes      []videos.Scene `json:"all_scenes"`
	GroupedScenes  []videos.Scene `json:"grouped_scenes"`
	PrecisionLevel int            `json:"precision_level"`
	TargetCount    int            `json:"target_count"`
}

// Extractor turns a local video file into a small representative frame set.
type Extractor interface {
	ExtractScenes(ctx context.Context, videoPath, workDir string, meta videos.VideoMetadata, onProgress ProgressFunc) (*Result, error)
}

type extractor struct {
	log   *logger.Logger
	tools localmedia.Tools

	precisionLevel       int
	sceneThreshold       float64
	minSceneDuration     float64
	similarityThreshold  float64
	minScenesForGrouping int
	featureWorkers       int
}

func NewExtractor(log *logger.Logger, tools localmedia.Tools) Extractor {
	slog := log.With("service", "SceneExtractor")
	return &extractor{
		log:                  slog,
		tools:                tools,
		precisionLevel:       utils.GetEnvAsInt("SCENE_PRECISION_LEVEL", 5, slog),
		sceneThreshold:       utils.GetEnvAsFloat("SCENE_THRESHOLD", 0.3, slog),
		minSceneDuration:     utils.GetEnvAsFloat("MIN_SCENE_DURATION", 0.5, slog),
		similarityThreshold:  utils.GetEnvAsFloat("SCENE_SIMILARITY_THRESHOLD", 0.92, slog),
		minScenesForGrouping: utils.GetEnvAsInt("MIN_SCENES_FOR_GROUPING", 10, slog),
		featureWorkers:       utils.GetEnvAsInt("SCENE_FEATURE_WORKERS", 4, slog),
	}
}

// sceneSpan is one stretch of visually stable content between two
// transitions. Confidence carries the opening transition's score.
type sceneSpan struct {
	start      float64
	end        float64
	confidence float64
}

func (s sceneSpan) midpoint() float64 { return (s.start + s.end) / 2 }

// ExtractScenes runs detection, mid-frame extraction, feature clustering and
// balancing. Single-frame failures are skipped; a missing toolchain degrades
// to an empty result rather than an error.
func (e *extractor) ExtractScenes(ctx context.Context, videoPath, workDir string, meta videos.VideoMetadata, onProgress ProgressFunc) (*Result, error) {
	ctx = ctxutil.Default(ctx)
	emit := func(percent float64, message string) {
		if onProgress != nil {
			onProgress(percent, message)
		}
	}

	profile := ProfileFor(e.precisionLevel)
	result := &Result{
		PrecisionLevel: profile.Level,
		TargetCount:    profile.TargetCount,
	}

	if err := e.tools.AssertReady(ctx); err != nil {
		e.log.Warn("Media toolchain unavailable, skipping scene extraction", "error", err)
		emit(100, "scene extraction skipped: toolchain unavailable")
		return result, nil
	}

	threshold := e.sceneThreshold
	minDuration := e.minSceneDuration
	if meta.ShortForm() {
		threshold = shortFormThreshold
		minDuration = shortFormMinDuration
		e.log.Info("Short-form video, tightening detection",
			"threshold", threshold, "min_scene_duration", minDuration)
	}

	emit(0, "detecting scene transitions")
	transitions, err := e.tools.DetectTransitions(ctx, videoPath, threshold)
	if err != nil {
		e.log.Warn("Transition detection failed, falling back to single frame", "error", err)
		transitions = nil
	}

	duration := meta.DurationSeconds
	if probe, probeErr := e.tools.Probe(ctx, videoPath); probeErr == nil && probe.DurationSeconds > 0 {
		duration = probe.DurationSeconds
	}

	spans := buildSpans(transitions, duration, minDuration)
	emit(10, fmt.Sprintf("found %d scene spans", len(spans)))

	scenesDir := filepath.Join(workDir, "scenes")
	if err := os.MkdirAll(scenesDir, 0o755); err != nil {
		return nil, fmt.Errorf("create scenes dir: %w", err)
	}

	for i, span := range spans {
		outPath := filepath.Join(scenesDir, fmt.Sprintf("scene_%04d.jpg", i))
		opts := localmedia.ExtractOptions{JPEGQuality: profile.JPEGQuality}
		if _, err := e.tools.ExtractFrameAt(ctx, videoPath, span.midpoint(), outPath, opts); err != nil {
			e.log.Warn("Frame extraction failed, skipping",
				"timestamp", span.midpoint(), "error", err)
			continue
		}
		sceneType := videos.SceneMid
		if len(spans) == 1 && span.start == 0 && span.end == 0 {
			sceneType = videos.SceneStart
		}
		result.AllScenes = append(result.AllScenes, videos.Scene{
			TimestampSeconds: span.midpoint(),
			FramePath:        outPath,
			SceneType:        sceneType,
			Confidence:       span.confidence,
			GroupedIndex:     videos.GroupedIndexNone,
		})
		emit(10+50*float64(i+1)/float64(len(spans)),
			fmt.Sprintf("extracted frame %d/%d", i+1, len(spans)))
	}

	if len(result.AllScenes) == 0 {
		e.log.Warn("No frames could be extracted", "video_path", videoPath)
		emit(100, "no frames extracted")
		return result, nil
	}

	selected, err := e.selectRepresentatives(ctx, result.AllScenes, profile, emit)
	if err != nil {
		return nil, err
	}

	if err := e.finalizeGrouped(workDir, result, selected); err != nil {
		return nil, err
	}
	emit(100, fmt.Sprintf("selected %d of %d scenes", len(result.GroupedScenes), len(result.AllScenes)))

	e.log.Info("Scene extraction complete",
		"all_scenes", len(result.AllScenes),
		"grouped_scenes", len(result.GroupedScenes),
		"precision_level", profile.Level)
	return result, nil
}

// buildSpans converts transition timestamps into mid-frame spans. The start
// of the video counts as a boundary when the first cut lands after 1 s; a
// cut-free video collapses to the single frame at t=0.
func buildSpans(transitions []localmedia.Transition, duration, minDuration float64) []sceneSpan {
	if len(transitions) == 0 {
		return []sceneSpan{{start: 0, end: 0, confidence: 1.0}}
	}

	sort.Slice(transitions, func(i, j int) bool {
		return transitions[i].TimestampSeconds < transitions[j].TimestampSeconds
	})

	type boundary struct {
		at    float64
		score float64
	}
	bounds := make([]boundary, 0, len(transitions)+2)
	if transitions[0].TimestampSeconds > 1.0 {
		bounds = append(bounds, boundary{at: 0, score: 1.0})
	}
	for _, t := range transitions {
		bounds = append(bounds, boundary{at: t.TimestampSeconds, score: t.Score})
	}
	if duration > bounds[len(bounds)-1].at {
		bounds = append(bounds, boundary{at: duration, score: 0})
	}

	var spans []sceneSpan
	for i := 0; i+1 < len(bounds); i++ {
		start, end := bounds[i], bounds[i+1]
		if end.at-start.at < minDuration {
			continue
		}
		spans = append(spans, sceneSpan{start: start.at, end: end.at, confidence: start.score})
	}
	if len(spans) == 0 {
		first := bounds[0]
		spans = []sceneSpan{{start: first.at, end: first.at, confidence: first.score}}
	}
	return spans
}

// selectRepresentatives picks which extracted frames survive into the
// grouped set. Small batches skip clustering entirely.
func (e *extractor) selectRepresentatives(ctx context.Context, scenes []videos.Scene, profile Profile, emit ProgressFunc) ([]int, error) {
	n := len(scenes)
	timestamps := make([]float64, n)
	for i, s := range scenes {
		timestamps[i] = s.TimestampSeconds
	}

	if n < e.minScenesForGrouping {
		e.log.Info("Too few scenes to cluster, selecting by time",
			"scenes", n, "min_for_grouping", e.minScenesForGrouping)
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		if n <= profile.TargetCount {
			return all, nil
		}
		picked := pickTimeEven(all, timestamps, profile.TargetCount)
		sort.Slice(picked, func(a, b int) bool { return timestamps[picked[a]] < timestamps[picked[b]] })
		return picked, nil
	}

	emit(60, "computing frame features")
	rows, valid := e.computeFeatureRows(ctx, scenes, profile)
	if len(valid) == 0 {
		e.log.Warn("Feature extraction produced nothing, selecting by time")
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		picked := pickTimeEven(all, timestamps, profile.TargetCount)
		sort.Slice(picked, func(a, b int) bool { return timestamps[picked[a]] < timestamps[picked[b]] })
		return picked, nil
	}

	emit(80, "clustering scenes")
	validTimestamps := make([]float64, len(valid))
	for j, idx := range valid {
		validTimestamps[j] = timestamps[idx]
	}

	perFeature := make(map[Feature][][]float64, len(profile.Features))
	var concatenated [][]float64
	for _, f := range profile.Features {
		matrix := make([][]float64, len(valid))
		for j, idx := range valid {
			matrix[j] = rows[idx][f]
		}
		std := standardizeColumns(matrix)
		perFeature[f] = euclideanMatrix(std)
		if concatenated == nil {
			concatenated = make([][]float64, len(valid))
		}
		for j := range std {
			concatenated[j] = append(concatenated[j], std[j]...)
		}
	}
	combined := combineDistances(perFeature, profile.Weights, len(valid))

	eps := clusterEps(e.similarityThreshold, len(valid), profile.Level)
	minSamples := clusterMinSamples(len(valid))
	labels := dbscan(combined, eps, minSamples)
	reps, noise := clusterRepresentatives(labels, concatenated)

	e.log.Info("Clustering done",
		"frames", len(valid), "eps", eps, "min_samples", minSamples,
		"clusters", len(reps), "noise", len(noise))

	emit(95, "balancing selection")
	balanced := balanceSelection(reps, noise, validTimestamps, profile.TargetCount)

	selected := make([]int, 0, len(balanced))
	for _, j := range balanced {
		selected = append(selected, valid[j])
	}
	return selected, nil
}

// computeFeatureRows loads and measures every frame under a bounded worker
// group. Frames that fail to decode are dropped from clustering but stay in
// the scene list.
func (e *extractor) computeFeatureRows(ctx context.Context, scenes []videos.Scene, profile Profile) ([]map[Feature][]float64, []int) {
	rows := make([]map[Feature][]float64, len(scenes))

	g, gctx := errgroup.WithContext(ctx)
	workers := e.featureWorkers
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)

	for i := range scenes {
		i := i
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			img, err := loadFrameImage(scenes[i].FramePath, profile.AnalysisWidth, profile.HighQualityResample())
			if err != nil {
				e.log.Warn("Frame decode failed, excluding from clustering",
					"frame", scenes[i].FramePath, "error", err)
				return nil
			}
			pixels := newFramePixels(img)
			feats, err := computeFrameFeatures(img, pixels, profile)
			if err != nil {
				e.log.Warn("Feature computation failed, excluding from clustering",
					"frame", scenes[i].FramePath, "error", err)
				return nil
			}
			rows[i] = feats
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.log.Warn("Feature extraction interrupted", "error", err)
	}

	var valid []int
	for i, r := range rows {
		if r != nil {
			valid = append(valid, i)
		}
	}
	return rows, valid
}

// finalizeGrouped copies the chosen frames into grouped/ and stamps their
// indices back onto the scene list. selected must already be
// timestamp-ordered.
func (e *extractor) finalizeGrouped(workDir string, result *Result, selected []int) error {
	groupedDir := filepath.Join(workDir, "grouped")
	if err := os.MkdirAll(groupedDir, 0o755); err != nil {
		return fmt.Errorf("create grouped dir: %w", err)
	}

	k := 0
	for _, idx := range selected {
		groupedPath := filepath.Join(groupedDir, fmt.Sprintf("grouped_%04d.jpg", k))
		if err := copyFile(result.AllScenes[idx].FramePath, groupedPath); err != nil {
			e.log.Warn("Grouped copy failed, skipping",
				"frame", result.AllScenes[idx].FramePath, "error", err)
			continue
		}
		result.AllScenes[idx].GroupedIndex = k
		result.AllScenes[idx].GroupedPath = groupedPath
		result.AllScenes[idx].SceneType = videos.SceneSelected
		result.GroupedScenes = append(result.GroupedScenes, result.AllScenes[idx])
		k++
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
