package videos

// Video is the per-request aggregate the pipeline mutates stage by stage.
// It lives in the session workspace and is thrown away with it; VideoRecord
// is the durable projection.
type Video struct {
	SessionID     string          `json:"session_id"`
	URL           string          `json:"url"`
	LocalPath     string          `json:"local_path,omitempty"`
	ThumbnailPath string          `json:"thumbnail_path,omitempty"`
	Metadata      *VideoMetadata  `json:"metadata,omitempty"`
	Scenes        []Scene         `json:"scenes,omitempty"`
	GroupedScenes []Scene         `json:"grouped_scenes,omitempty"`
	Analysis      *ParsedAnalysis `json:"analysis_result,omitempty"`
	SessionDir    string          `json:"session_dir,omitempty"`
}

// VideoID returns the platform-scoped identifier, empty before metadata or
// URL parsing populated it.
func (v *Video) VideoID() string {
	if v.Metadata == nil {
		return ""
	}
	return v.Metadata.VideoID
}
