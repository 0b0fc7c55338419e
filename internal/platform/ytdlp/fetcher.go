package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/yungbote/vidlens-backend/internal/domain/videos"
	"github.com/yungbote/vidlens-backend/internal/pkg/ctxutil"
	apperrors "github.com/yungbote/vidlens-backend/internal/pkg/errors"
	"github.com/yungbote/vidlens-backend/internal/pkg/logger"
	"github.com/yungbote/vidlens-backend/internal/utils"
)

// Fetcher shells out to yt-dlp, walking a cascade of credential strategies
// until one produces media plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, platform videos.Platform, destDir string) (*Result, error)
}

type Result struct {
	VideoPath     string
	ThumbnailPath string
	Metadata      *videos.VideoMetadata
	Strategy      string
}

// mweb player client pairs with a mobile Safari UA; desktop UAs get the
// strategy flagged immediately.
const aggressiveUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1"

type fetcher struct {
	log            *logger.Logger
	ytdlpPath      string
	cookiesFile    string
	quality        string
	attemptTimeout time.Duration
}

func New(log *logger.Logger) Fetcher {
	slog := log.With("service", "Fetcher")
	timeoutSeconds := utils.GetEnvAsInt("FETCH_TIMEOUT_SECONDS", 120, slog)
	return &fetcher{
		log:            slog,
		ytdlpPath:      "yt-dlp",
		cookiesFile:    "cookies.txt",
		quality:        utils.GetEnv("VIDEO_QUALITY", "best", slog),
		attemptTimeout: time.Duration(timeoutSeconds) * time.Second,
	}
}

func formatSelector(quality string) string {
	switch quality {
	case "fast":
		return "worst[ext=mp4]/worst"
	case "balanced":
		return "best[height<=720][ext=mp4]/best[ext=mp4]/best"
	default:
		return "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"
	}
}

type strategy struct {
	name string
	args []string
}

func (f *fetcher) strategies() []strategy {
	list := []strategy{
		{name: "chrome_cookies", args: []string{"--cookies-from-browser", "chrome"}},
	}
	if _, err := os.Stat(f.cookiesFile); err == nil {
		list = append(list, strategy{name: "cookies_file", args: []string{"--cookies", f.cookiesFile}})
	}
	list = append(list,
		strategy{name: "firefox_cookies", args: []string{"--cookies-from-browser", "firefox"}},
		strategy{name: "anonymous"},
		strategy{name: "aggressive", args: []string{
			"--extractor-args", "youtube:player_client=mweb",
			"--user-agent", aggressiveUserAgent,
		}},
	)
	return list
}

type attempt struct {
	strategy strategy
	url      string
	referer  string
}

// attempts orders the cascade. Vimeo gets an authenticated pass against its
// player URL before the generic cascade runs on the canonical URL; the
// player endpoint checks the Referer header, so those attempts carry one.
func (f *fetcher) attempts(rawURL string, platform videos.Platform) []attempt {
	strategies := f.strategies()
	out := []attempt{}
	if platform == videos.PlatformVimeo {
		if player := vimeoPlayerURL(rawURL); player != "" {
			for _, s := range strategies {
				if len(s.args) == 0 || s.name == "aggressive" {
					continue
				}
				out = append(out, attempt{strategy: s, url: player, referer: "https://vimeo.com/"})
			}
		}
	}
	for _, s := range strategies {
		out = append(out, attempt{strategy: s, url: rawURL})
	}
	return out
}

var vimeoIDRe = regexp.MustCompile(`vimeo\.com/(?:video/)?(\d+)`)

func vimeoPlayerURL(rawURL string) string {
	m := vimeoIDRe.FindStringSubmatch(rawURL)
	if m == nil {
		return ""
	}
	return "https://player.vimeo.com/video/" + m[1]
}

func (f *fetcher) Fetch(ctx context.Context, rawURL string, platform videos.Platform, destDir string) (*Result, error) {
	ctx = ctxutil.Default(ctx)
	if rawURL == "" {
		return nil, fmt.Errorf("url required")
	}
	if destDir == "" {
		return nil, fmt.Errorf("destDir required")
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir destDir: %w", err)
	}

	var lastErr error
	for _, a := range f.attempts(rawURL, platform) {
		result, err := f.fetchOnce(ctx, a, platform, destDir)
		if err == nil {
			f.log.Info("Fetch succeeded", "strategy", a.strategy.name, "url", a.url)
			result.Strategy = a.strategy.name
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetch cancelled: %w", ctx.Err())
		}
		f.log.Warn("Fetch attempt failed", "strategy", a.strategy.name, "url", a.url, "error", err)
		lastErr = err
	}
	return nil, apperrors.Wrap(apperrors.KindFetchFailed, "all fetch strategies exhausted", lastErr)
}

func (f *fetcher) fetchOnce(ctx context.Context, a attempt, platform videos.Platform, destDir string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, f.attemptTimeout)
	defer cancel()

	args := []string{
		"--no-playlist",
		"--no-progress",
		"--dump-json",
		"--no-simulate",
		"-f", formatSelector(f.quality),
		"-o", filepath.Join(destDir, "video.%(ext)s"),
		"--write-thumbnail",
		"--write-subs",
		"--sub-langs", "ko,en",
	}
	if a.referer != "" {
		args = append(args, "--referer", a.referer)
	}
	args = append(args, a.strategy.args...)
	args = append(args, a.url)

	cmd := exec.CommandContext(ctx, f.ytdlpPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("yt-dlp failed: %w; err=%s", err, tailSnippet(stderr.String()))
	}

	info, err := parseInfoJSON(stdout.Bytes())
	if err != nil {
		return nil, err
	}

	videoPath, err := findMediaFile(destDir)
	if err != nil {
		return nil, err
	}

	meta := toVideoMetadata(info, a.url, platform)
	meta.SubtitleFiles = findSubtitleFiles(destDir)

	return &Result{
		VideoPath:     videoPath,
		ThumbnailPath: findThumbnailFile(destDir),
		Metadata:      meta,
	}, nil
}

// ---------- metadata ----------

type ytdlpInfo struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Uploader     string   `json:"uploader"`
	UploadDate   string   `json:"upload_date"`
	Description  string   `json:"description"`
	Language     string   `json:"language"`
	Tags         []string `json:"tags"`
	Categories   []string `json:"categories"`
	Duration     float64  `json:"duration"`
	Width        int      `json:"width"`
	Height       int      `json:"height"`
	ViewCount    int64    `json:"view_count"`
	LikeCount    int64    `json:"like_count"`
	CommentCount int64    `json:"comment_count"`
	WebpageURL   string   `json:"webpage_url"`
	Thumbnail    string   `json:"thumbnail"`
	Extractor    string   `json:"extractor"`
}

// parseInfoJSON decodes the first JSON object on stdout; yt-dlp sometimes
// appends post-download lines after it.
func parseInfoJSON(out []byte) (*ytdlpInfo, error) {
	info := &ytdlpInfo{}
	dec := json.NewDecoder(bytes.NewReader(out))
	if err := dec.Decode(info); err != nil {
		return nil, fmt.Errorf("parse yt-dlp metadata: %w", err)
	}
	if info.ID == "" {
		return nil, fmt.Errorf("yt-dlp metadata missing id")
	}
	return info, nil
}

func toVideoMetadata(info *ytdlpInfo, url string, platform videos.Platform) *videos.VideoMetadata {
	meta := &videos.VideoMetadata{
		VideoID:         info.ID,
		Platform:        platform,
		Title:           info.Title,
		Uploader:        info.Uploader,
		UploadDate:      info.UploadDate,
		Description:     info.Description,
		Language:        info.Language,
		Tags:            info.Tags,
		Categories:      info.Categories,
		DurationSeconds: info.Duration,
		Width:           info.Width,
		Height:          info.Height,
		ViewCount:       info.ViewCount,
		LikeCount:       info.LikeCount,
		CommentCount:    info.CommentCount,
		URL:             url,
		WebpageURL:      info.WebpageURL,
		ThumbnailURL:    info.Thumbnail,
	}
	meta.IsShortForm = meta.ShortForm()
	return meta
}

// ---------- produced-file discovery ----------

var mediaExts = map[string]bool{
	".mp4": true, ".mkv": true, ".webm": true, ".mov": true, ".m4v": true, ".avi": true, ".flv": true,
}

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true,
}

var subtitleFileRe = regexp.MustCompile(`^video\.([A-Za-z0-9_-]+)\.(srt|vtt)$`)

func findMediaFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("scan destDir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if strings.TrimSuffix(name, ext) == "video" && mediaExts[ext] {
			return filepath.Join(dir, name), nil
		}
	}
	return "", fmt.Errorf("no media file produced in %s", dir)
}

func findThumbnailFile(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if strings.TrimSuffix(name, ext) == "video" && imageExts[ext] {
			return filepath.Join(dir, name)
		}
	}
	return ""
}

func findSubtitleFiles(dir string) map[string]string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	subs := map[string]string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if m := subtitleFileRe.FindStringSubmatch(e.Name()); m != nil {
			subs[m[1]] = filepath.Join(dir, e.Name())
		}
	}
	if len(subs) == 0 {
		return nil
	}
	return subs
}

func tailSnippet(s string) string {
	const max = 2000
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}
