package ytdlp

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yungbote/vidlens-backend/internal/domain/videos"
	"github.com/yungbote/vidlens-backend/internal/pkg/logger"
)

func newBareFetcher(cookiesFile string) *fetcher {
	return &fetcher{
		log:            logger.NewNop(),
		ytdlpPath:      "yt-dlp",
		cookiesFile:    cookiesFile,
		quality:        "best",
		attemptTimeout: time.Second,
	}
}

func TestFormatSelectorByQuality(t *testing.T) {
	cases := map[string]string{
		"best":     "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best",
		"balanced": "best[height<=720][ext=mp4]/best[ext=mp4]/best",
		"fast":     "worst[ext=mp4]/worst",
		"":         "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best",
	}
	for quality, want := range cases {
		if got := formatSelector(quality); got != want {
			t.Fatalf("formatSelector(%q) = %q, want %q", quality, got, want)
		}
	}
}

func TestStrategyOrderWithoutCookiesFile(t *testing.T) {
	f := newBareFetcher(filepath.Join(t.TempDir(), "cookies.txt"))
	got := f.strategies()
	want := []string{"chrome_cookies", "firefox_cookies", "anonymous", "aggressive"}
	if len(got) != len(want) {
		t.Fatalf("want %d strategies, got %d", len(want), len(got))
	}
	for i, name := range want {
		if got[i].name != name {
			t.Fatalf("strategy[%d] = %q, want %q", i, got[i].name, name)
		}
	}
}

func TestStrategyOrderWithCookiesFile(t *testing.T) {
	cookies := filepath.Join(t.TempDir(), "cookies.txt")
	if err := os.WriteFile(cookies, []byte("# Netscape HTTP Cookie File\n"), 0o644); err != nil {
		t.Fatalf("write cookies: %v", err)
	}

	f := newBareFetcher(cookies)
	got := f.strategies()
	want := []string{"chrome_cookies", "cookies_file", "firefox_cookies", "anonymous", "aggressive"}
	if len(got) != len(want) {
		t.Fatalf("want %d strategies, got %d", len(want), len(got))
	}
	for i, name := range want {
		if got[i].name != name {
			t.Fatalf("strategy[%d] = %q, want %q", i, got[i].name, name)
		}
	}
}

func TestAttemptsVimeoTriesPlayerURLFirst(t *testing.T) {
	f := newBareFetcher(filepath.Join(t.TempDir(), "cookies.txt"))
	got := f.attempts("https://vimeo.com/76979871", videos.PlatformVimeo)

	// two authenticated player attempts, then the four-strategy generic pass
	if len(got) != 6 {
		t.Fatalf("want 6 attempts, got %d", len(got))
	}
	if got[0].url != "https://player.vimeo.com/video/76979871" {
		t.Fatalf("first attempt url = %q", got[0].url)
	}
	if got[0].strategy.name != "chrome_cookies" || got[1].strategy.name != "firefox_cookies" {
		t.Fatalf("player pass strategies = %q, %q", got[0].strategy.name, got[1].strategy.name)
	}
	if got[0].referer != "https://vimeo.com/" {
		t.Fatalf("player attempt missing referer, got %q", got[0].referer)
	}
	if got[2].url != "https://vimeo.com/76979871" || got[2].referer != "" {
		t.Fatalf("generic pass should hit the canonical url, got %+v", got[2])
	}
	if got[5].strategy.name != "aggressive" {
		t.Fatalf("last attempt = %q", got[5].strategy.name)
	}
}

func TestAttemptsYouTubeSkipsPlayerPass(t *testing.T) {
	f := newBareFetcher(filepath.Join(t.TempDir(), "cookies.txt"))
	got := f.attempts("https://www.youtube.com/watch?v=abc12345678", videos.PlatformYouTube)
	if len(got) != 4 {
		t.Fatalf("want 4 attempts, got %d", len(got))
	}
	for _, a := range got {
		if a.url != "https://www.youtube.com/watch?v=abc12345678" {
			t.Fatalf("unexpected attempt url %q", a.url)
		}
	}
}

func TestVimeoPlayerURL(t *testing.T) {
	if got := vimeoPlayerURL("https://vimeo.com/76979871"); got != "https://player.vimeo.com/video/76979871" {
		t.Fatalf("player url = %q", got)
	}
	if got := vimeoPlayerURL("https://www.youtube.com/watch?v=abc"); got != "" {
		t.Fatalf("non-vimeo url should yield empty, got %q", got)
	}
}

func TestParseInfoJSONMapsMetadata(t *testing.T) {
	raw := []byte(`{
  "id": "dQw4w9WgXcQ",
  "title": "브랜드 필름 2024",
  "uploader": "스튜디오",
  "upload_date": "20240512",
  "description": "제품 소개 영상",
  "language": "ko",
  "tags": ["브랜드", "필름"],
  "categories": ["Film & Animation"],
  "duration": 45.0,
  "width": 1080,
  "height": 1920,
  "view_count": 12345,
  "like_count": null,
  "comment_count": 67,
  "webpage_url": "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
  "thumbnail": "https://i.ytimg.com/vi/dQw4w9WgXcQ/maxresdefault.jpg",
  "extractor": "youtube"
}
[download] 100% of 10.00MiB`)

	info, err := parseInfoJSON(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	meta := toVideoMetadata(info, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", videos.PlatformYouTube)
	if meta.VideoID != "dQw4w9WgXcQ" || meta.Platform != videos.PlatformYouTube {
		t.Fatalf("identity = %q %q", meta.VideoID, meta.Platform)
	}
	if meta.Title != "브랜드 필름 2024" || meta.Uploader != "스튜디오" {
		t.Fatalf("bibliographic fields wrong: %+v", meta)
	}
	if meta.DurationSeconds != 45.0 || meta.Width != 1080 || meta.Height != 1920 {
		t.Fatalf("measured fields wrong: %+v", meta)
	}
	if meta.ViewCount != 12345 || meta.LikeCount != 0 || meta.CommentCount != 67 {
		t.Fatalf("counts wrong: %+v", meta)
	}
	// 45s duration and 1920/1080 aspect both mark it short-form
	if !meta.IsShortForm {
		t.Fatalf("expected short-form")
	}
}

func TestParseInfoJSONRejectsMissingID(t *testing.T) {
	if _, err := parseInfoJSON([]byte(`{"title": "no id"}`)); err == nil {
		t.Fatalf("expected error for metadata without id")
	}
}

func TestProducedFileDiscovery(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"video.mp4", "video.webp", "video.ko.srt", "video.en.vtt", "other.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	media, err := findMediaFile(dir)
	if err != nil {
		t.Fatalf("find media: %v", err)
	}
	if filepath.Base(media) != "video.mp4" {
		t.Fatalf("media = %q", media)
	}

	if thumb := findThumbnailFile(dir); filepath.Base(thumb) != "video.webp" {
		t.Fatalf("thumbnail = %q", thumb)
	}

	subs := findSubtitleFiles(dir)
	if len(subs) != 2 {
		t.Fatalf("want 2 subtitle files, got %v", subs)
	}
	if filepath.Base(subs["ko"]) != "video.ko.srt" || filepath.Base(subs["en"]) != "video.en.vtt" {
		t.Fatalf("subtitle map wrong: %v", subs)
	}
}

func TestFindMediaFileEmptyDir(t *testing.T) {
	if _, err := findMediaFile(t.TempDir()); err == nil {
		t.Fatalf("expected error for empty dir")
	}
}
