package promptstyle

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/vidlens-backend/internal/pkg/logger"
	"github.com/yungbote/vidlens-backend/internal/utils"
)

// StyleSet holds the closed vocabularies offered to the model: the genre
// list for item A1 and the expression styles for item A5. The analysis
// prompt injects both verbatim.
type StyleSet struct {
	Genres           []string `yaml:"genres"`
	ExpressionStyles []string `yaml:"expression_styles"`
}

var defaultGenres = []string{
	"2D-animation", "3D-animation", "motion-graphics", "interview",
	"spot-ad", "vlog", "youtube-content", "documentary", "brand-film",
	"TVC", "music-video", "educational", "product-intro", "event",
	"web-drama", "viral",
}

var defaultExpressionStyles = []string{
	"2D", "3D", "live-action", "hybrid", "stop-motion", "typography",
}

func Defaults() StyleSet {
	return StyleSet{
		Genres:           append([]string(nil), defaultGenres...),
		ExpressionStyles: append([]string(nil), defaultExpressionStyles...),
	}
}

// Load returns the configured style set. A YAML file at PROMPT_STYLE_PATH
// overrides either list; anything missing or unreadable falls back to the
// defaults so a bad override never blocks analysis.
func Load(log *logger.Logger) StyleSet {
	defaults := Defaults()

	path := utils.GetEnv("PROMPT_STYLE_PATH", "", log)
	if path == "" {
		return defaults
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn("Prompt style override unreadable, using defaults", "path", path, "error", err)
		return defaults
	}

	var override StyleSet
	if err := yaml.Unmarshal(data, &override); err != nil {
		log.Warn("Prompt style override invalid, using defaults", "path", path, "error", err)
		return defaults
	}

	if len(override.Genres) == 0 {
		override.Genres = defaults.Genres
	}
	if len(override.ExpressionStyles) == 0 {
		override.ExpressionStyles = defaults.ExpressionStyles
	}
	return override
}
