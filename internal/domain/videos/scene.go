package videos

// SceneType marks where in the video a frame came from.
type SceneType string

const (
	SceneStart    SceneType = "start"
	SceneMid      SceneType = "mid"
	SceneEnd      SceneType = "end"
	SceneSelected SceneType = "selected"
)

// GroupedIndexNone is the GroupedIndex of a scene that was not chosen as a
// representative.
const GroupedIndexNone = -1

// Scene is one extracted frame. Relations to the grouped set are by index,
// never by back-pointer: GroupedIndex is the scene's position in the grouped
// output when it was selected as a representative, GroupedIndexNone otherwise.
type Scene struct {
	TimestampSeconds float64   `json:"timestamp_seconds"`
	FramePath        string    `json:"frame_path"`
	SceneType        SceneType `json:"scene_type"`
	Confidence       float64   `json:"confidence"`
	GroupedIndex     int       `json:"grouped_index"`
	GroupedPath      string    `json:"grouped_path,omitempty"`
}

// Selected reports whether the scene made it into the grouped set.
func (s Scene) Selected() bool { return s.GroupedIndex != GroupedIndexNone }
