package localmedia

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "golang.org/x/image/webp"

	"github.com/yungbote/vidlens-backend/internal/pkg/ctxutil"
	"github.com/yungbote/vidlens-backend/internal/pkg/logger"
	"github.com/yungbote/vidlens-backend/internal/utils"
)

// Tools is the glue around system binaries.
//
// REQUIRED BINARIES in the analysis runtime:
// - ffmpeg for transition detection, frame extraction and remuxing
// - ffprobe for container/stream inspection
// - yt-dlp for the download layer (checked here so a broken runtime fails early)
//
// This service is synchronous and deterministic, but should be called from
// pipeline workers, not request handlers.
type Tools interface {
	AssertReady(ctx context.Context) error

	Probe(ctx context.Context, videoPath string) (*ProbeResult, error)
	EnsurePlayable(ctx context.Context, videoPath string, quality string) (string, error)

	DetectTransitions(ctx context.Context, videoPath string, threshold float64) ([]Transition, error)
	ExtractFrameAt(ctx context.Context, videoPath string, timestampSeconds float64, outPath string, opts ExtractOptions) (string, error)
	ExtractThumbnailJPEG(ctx context.Context, srcPath string, outPath string) (string, error)
}

// Transition is one point where the visual content changes above threshold.
// Score is ffmpeg's scene score, 0..1.
type Transition struct {
	TimestampSeconds float64
	Score            float64
}

type ExtractOptions struct {
	Width       int
	JPEGQuality int // ffmpeg -q:v scale, 2 best .. 31 worst
}

type ProbeResult struct {
	FormatName      string
	DurationSeconds float64
	Width           int
	Height          int
	VideoCodec      string
	AudioCodec      string
}

// compatibleVideoCodec is the codec we remux toward. Anything else in an mp4
// container triggers at most one re-encode.
const compatibleVideoCodec = "h264"

type tools struct {
	log *logger.Logger

	ffmpegPath  string
	ffprobePath string
	ytdlpPath   string

	defaultTimeout time.Duration
}

func New(log *logger.Logger) Tools {
	slog := log.With("service", "MediaTools")
	timeoutSeconds := utils.GetEnvAsInt("FFMPEG_TIMEOUT_SECONDS", 600, slog)
	return &tools{
		log:            slog,
		ffmpegPath:     "ffmpeg",
		ffprobePath:    "ffprobe",
		ytdlpPath:      "yt-dlp",
		defaultTimeout: time.Duration(timeoutSeconds) * time.Second,
	}
}

func (m *tools) AssertReady(ctx context.Context) error {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, bin := range []string{m.ffmpegPath, m.ffprobePath, m.ytdlpPath} {
		if err := m.assertBinary(ctx, bin); err != nil {
			return err
		}
	}
	return nil
}

func (m *tools) assertBinary(ctx context.Context, name string) error {
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("missing required binary %q in PATH: %w", name, err)
	}
	return nil
}

func (m *tools) Probe(ctx context.Context, videoPath string) (*ProbeResult, error) {
	ctx = ctxutil.Default(ctx)
	if videoPath == "" {
		return nil, fmt.Errorf("videoPath required")
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, m.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		videoPath,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var raw struct {
		Format struct {
			FormatName string `json:"format_name"`
			Duration   string `json:"duration"`
		} `json:"format"`
		Streams []struct {
			CodecType string `json:"codec_type"`
			CodecName string `json:"codec_name"`
			Width     int    `json:"width"`
			Height    int    `json:"height"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	result := &ProbeResult{FormatName: raw.Format.FormatName}
	if raw.Format.Duration != "" {
		if d, err := strconv.ParseFloat(raw.Format.Duration, 64); err == nil {
			result.DurationSeconds = d
		}
	}
	for _, s := range raw.Streams {
		switch s.CodecType {
		case "video":
			if result.VideoCodec == "" {
				result.VideoCodec = s.CodecName
				result.Width = s.Width
				result.Height = s.Height
			}
		case "audio":
			if result.AudioCodec == "" {
				result.AudioCodec = s.CodecName
			}
		}
	}
	return result, nil
}

// EnsurePlayable is the last-mile compatibility check after a download. The
// happy path (mp4 + h264) is a no-op. A wrong container with a good codec is
// remuxed with -c copy. A wrong codec is re-encoded exactly once, unless
// quality is "fast", which never transcodes.
func (m *tools) EnsurePlayable(ctx context.Context, videoPath string, quality string) (string, error) {
	ctx = ctxutil.Default(ctx)
	if videoPath == "" {
		return "", fmt.Errorf("videoPath required")
	}

	probe, err := m.Probe(ctx, videoPath)
	if err != nil {
		return "", fmt.Errorf("probe before compat check: %w", err)
	}

	mp4Container := strings.Contains(probe.FormatName, "mp4")
	codecOK := probe.VideoCodec == "" || probe.VideoCodec == compatibleVideoCodec
	if mp4Container && codecOK {
		return videoPath, nil
	}

	outPath := strings.TrimSuffix(videoPath, filepath.Ext(videoPath)) + "_compat.mp4"

	if codecOK || quality == "fast" {
		m.log.Debug("Remuxing for compatibility", "path", videoPath, "format", probe.FormatName)
		if err := m.runFFmpeg(ctx, "remux",
			"-y", "-i", videoPath, "-c", "copy", "-movflags", "+faststart", outPath,
		); err != nil {
			return "", err
		}
		return outPath, nil
	}

	m.log.Debug("Re-encoding for compatibility", "path", videoPath, "codec", probe.VideoCodec)
	if err := m.runFFmpeg(ctx, "re-encode",
		"-y", "-i", videoPath,
		"-c:v", "libx264", "-preset", "fast", "-crf", "23",
		"-c:a", "aac",
		"-movflags", "+faststart",
		outPath,
	); err != nil {
		return "", err
	}
	return outPath, nil
}

func (m *tools) DetectTransitions(ctx context.Context, videoPath string, threshold float64) ([]Transition, error) {
	ctx = ctxutil.Default(ctx)
	if videoPath == "" {
		return nil, fmt.Errorf("videoPath required")
	}
	if threshold <= 0 {
		threshold = 0.3
	}

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	vf := fmt.Sprintf("select='gt(scene\\,%0.3f)',metadata=print", threshold)
	cmd := exec.CommandContext(ctx, m.ffmpegPath,
		"-i", videoPath,
		"-vf", vf,
		"-an",
		"-f", "null", "-",
	)

	// metadata=print writes to stderr alongside ffmpeg's own chatter
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg scene detect failed: %w; out=%s", err, tailSnippet(string(out)))
	}

	return parseTransitions(string(out)), nil
}

var (
	ptsTimeRe    = regexp.MustCompile(`pts_time:([0-9]+\.?[0-9]*)`)
	sceneScoreRe = regexp.MustCompile(`lavfi\.scene_score=([0-9]+\.?[0-9]*)`)
)

// parseTransitions pairs each pts_time line with the scene_score line that
// follows it in the metadata=print output.
func parseTransitions(out string) []Transition {
	transitions := []Transition{}
	pending := -1.0
	for _, line := range strings.Split(out, "\n") {
		if match := ptsTimeRe.FindStringSubmatch(line); match != nil {
			if ts, err := strconv.ParseFloat(match[1], 64); err == nil {
				pending = ts
			}
			continue
		}
		if match := sceneScoreRe.FindStringSubmatch(line); match != nil && pending >= 0 {
			score, err := strconv.ParseFloat(match[1], 64)
			if err != nil {
				pending = -1.0
				continue
			}
			transitions = append(transitions, Transition{TimestampSeconds: pending, Score: score})
			pending = -1.0
		}
	}
	return transitions
}

func (m *tools) ExtractFrameAt(ctx context.Context, videoPath string, timestampSeconds float64, outPath string, opts ExtractOptions) (string, error) {
	ctx = ctxutil.Default(ctx)
	if videoPath == "" {
		return "", fmt.Errorf("videoPath required")
	}
	if outPath == "" {
		return "", fmt.Errorf("outPath required")
	}
	if timestampSeconds < 0 {
		timestampSeconds = 0
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", fmt.Errorf("mkdir outPath dir: %w", err)
	}

	q := opts.JPEGQuality
	if q <= 0 {
		q = 3
	}

	// -ss before -i seeks on the demuxer, which is what keeps per-frame
	// extraction cheap on long inputs
	args := []string{
		"-y",
		"-ss", strconv.FormatFloat(timestampSeconds, 'f', 3, 64),
		"-i", videoPath,
		"-frames:v", "1",
		"-q:v", strconv.Itoa(q),
	}
	if opts.Width > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:-1", opts.Width))
	}
	args = append(args, outPath)

	if err := m.runFFmpeg(ctx, "frame extract", args...); err != nil {
		return "", err
	}
	if _, err := os.Stat(outPath); err != nil {
		return "", fmt.Errorf("frame output missing at %s", outPath)
	}
	return outPath, nil
}

// ExtractThumbnailJPEG normalizes a downloaded thumbnail (jpeg, png or webp)
// into a plain JPEG. Formats Go cannot decode fall through to ffmpeg.
func (m *tools) ExtractThumbnailJPEG(ctx context.Context, srcPath string, outPath string) (string, error) {
	ctx = ctxutil.Default(ctx)
	if srcPath == "" {
		return "", fmt.Errorf("srcPath required")
	}
	if outPath == "" {
		return "", fmt.Errorf("outPath required")
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", fmt.Errorf("mkdir outPath dir: %w", err)
	}

	if img, err := decodeImageFile(srcPath); err == nil {
		if err := writeJPEG(outPath, img, 90); err == nil {
			return outPath, nil
		}
	}

	if err := m.runFFmpeg(ctx, "thumbnail convert",
		"-y", "-i", srcPath, "-frames:v", "1", "-q:v", "2", outPath,
	); err != nil {
		return "", err
	}
	if _, err := os.Stat(outPath); err != nil {
		return "", fmt.Errorf("thumbnail output missing at %s", outPath)
	}
	return outPath, nil
}

func (m *tools) runFFmpeg(ctx context.Context, op string, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, m.ffmpegPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg %s failed: %w; out=%s", op, err, tailSnippet(string(out)))
	}
	return nil
}

// ---------- helpers ----------

func decodeImageFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

func writeJPEG(path string, img image.Image, quality int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return jpeg.Encode(f, img, &jpeg.Options{Quality: quality})
}

// tailSnippet keeps error messages readable: ffmpeg stderr runs long and the
// useful part is at the end.
func tailSnippet(s string) string {
	const max = 2000
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}
