package videos

// Platform identifies which supported video host a URL resolved to.
type Platform string

const (
	PlatformYouTube Platform = "youtube"
	PlatformVimeo   Platform = "vimeo"
	PlatformUnknown Platform = "unknown"
)

func (p Platform) String() string { return string(p) }

// VideoMetadata is everything the fetcher learns about a video before any
// frame is extracted. Fields mirror the fetcher's --dump-json output; zero
// values mean the platform did not report that field.
type VideoMetadata struct {
	VideoID  string   `json:"video_id"`
	Platform Platform `json:"platform"`

	Title       string   `json:"title"`
	Uploader    string   `json:"uploader"`
	UploadDate  string   `json:"upload_date"`
	Description string   `json:"description"`
	Language    string   `json:"language,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Categories  []string `json:"categories,omitempty"`

	DurationSeconds float64 `json:"duration_seconds"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	ViewCount       int64   `json:"view_count"`
	LikeCount       int64   `json:"like_count"`
	CommentCount    int64   `json:"comment_count"`
	IsShortForm     bool    `json:"is_short_form"`

	URL           string            `json:"url"`
	WebpageURL    string            `json:"webpage_url,omitempty"`
	ThumbnailURL  string            `json:"thumbnail_url,omitempty"`
	SubtitleFiles map[string]string `json:"subtitle_files,omitempty"`
}

// ShortForm reports whether the video should be treated as short-form
// content: at most a minute long, or clearly portrait (height/width > 1.5).
func (m VideoMetadata) ShortForm() bool {
	if m.DurationSeconds > 0 && m.DurationSeconds <= 60 {
		return true
	}
	if m.Width > 0 && m.Height > 0 && float64(m.Height)/float64(m.Width) > 1.5 {
		return true
	}
	return false
}
