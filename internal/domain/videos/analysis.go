package videos

import "time"

// ParseMethod records which parsing strategy produced a ParsedAnalysis.
type ParseMethod string

const (
	ParseLabeled   ParseMethod = "labeled"
	ParseSectional ParseMethod = "sectional"
	ParseFreeform  ParseMethod = "freeform"
	ParseMinimal   ParseMethod = "minimal"
)

// ParsedAnalysis is the strict schema distilled from the model's
// semi-structured answer. Genre and ExpressionStyle come from configured
// closed sets; Reasoning and Features are free text.
type ParsedAnalysis struct {
	Genre           string      `json:"genre"`
	Reasoning       string      `json:"reasoning"`
	Features        string      `json:"features"`
	Tags            []string    `json:"tags"`
	ExpressionStyle string      `json:"expression_style"`
	MoodTone        string      `json:"mood_tone"`
	TargetAudience  string      `json:"target_audience"`
	ParseMethod     ParseMethod `json:"parse_method"`
	ModelUsed       string      `json:"model_used"`
	AnalysisDate    time.Time   `json:"analysis_date"`
}

// Valid is the acceptance bar for a parsing strategy: a non-empty genre and
// at least twenty chars of reasoning.
func (a *ParsedAnalysis) Valid() bool {
	if a == nil {
		return false
	}
	return a.Genre != "" && len([]rune(a.Reasoning)) >= 20
}
