package services

import (
	"regexp"
	"sort"
	"strings"

	videos "github.com/yungbote/vidlens-backend/internal/domain/videos"
	"github.com/yungbote/vidlens-backend/internal/pkg/logger"
)

// ResponseParser distills the model's semi-structured answer into a
// ParsedAnalysis. Strategies cascade: labeled, then sectional, then
// freeform; a result is accepted when it validates. When every strategy
// fails the minimal fallback is returned, which callers treat as an
// analysis failure for caching purposes while still persisting it.
type ResponseParser interface {
	Parse(text string) *videos.ParsedAnalysis
}

type responseParser struct {
	log *logger.Logger
}

func NewResponseParser(log *logger.Logger) ResponseParser {
	return &responseParser{log: log.With("service", "ResponseParser")}
}

func (p *responseParser) Parse(text string) *videos.ParsedAnalysis {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return &videos.ParsedAnalysis{ParseMethod: videos.ParseMinimal}
	}

	if a := parseLabeled(trimmed); a.Valid() {
		p.log.Debug("Response parsed", "method", a.ParseMethod)
		return a
	}
	if a := parseSectional(trimmed); a.Valid() {
		p.log.Debug("Response parsed", "method", a.ParseMethod)
		return a
	}
	if a := parseFreeform(trimmed); a.Valid() {
		p.log.Debug("Response parsed", "method", a.ParseMethod)
		return a
	}

	p.log.Warn("All parsing strategies failed, using minimal fallback")
	return parseMinimal(trimmed)
}

// labelRe anchors item labels at line starts, tolerating list bullets and
// markdown emphasis in front of the label.
var labelRe = regexp.MustCompile(`(?m)^[ \t>*#-]*A([1-7])\s*[:.)]\s*`)

func parseLabeled(text string) *videos.ParsedAnalysis {
	matches := labelRe.FindAllStringSubmatchIndex(text, -1)
	sections := make(map[int]string, len(matches))
	for i, m := range matches {
		item := int(text[m[2]] - '0')
		if _, seen := sections[item]; seen {
			continue
		}
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		sections[item] = strings.TrimSpace(text[m[1]:end])
	}

	return &videos.ParsedAnalysis{
		Genre:           cleanShortAnswer(sections[1]),
		Reasoning:       sections[2],
		Features:        sections[3],
		Tags:            splitTags(sections[4]),
		ExpressionStyle: cleanShortAnswer(sections[5]),
		MoodTone:        sections[6],
		TargetAudience:  sections[7],
		ParseMethod:     videos.ParseLabeled,
	}
}

var blankLineRe = regexp.MustCompile(`\n[ \t]*\n+`)

func parseSectional(text string) *videos.ParsedAnalysis {
	var sections []string
	for _, s := range blankLineRe.Split(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			sections = append(sections, s)
		}
	}
	get := func(i int) string {
		if i < len(sections) {
			return sections[i]
		}
		return ""
	}

	return &videos.ParsedAnalysis{
		Genre:           cleanShortAnswer(get(0)),
		Reasoning:       get(1),
		Features:        get(2),
		Tags:            splitTags(get(3)),
		ExpressionStyle: cleanShortAnswer(get(4)),
		MoodTone:        get(5),
		TargetAudience:  get(6),
		ParseMethod:     videos.ParseSectional,
	}
}

// parseFreeform is the keyword heuristic for answers with no usable
// structure: the opening line becomes the genre, the two longest paragraphs
// become reasoning and features in document order, and the most frequent
// Korean words become tags.
func parseFreeform(text string) *videos.ParsedAnalysis {
	var paragraphs []string
	for _, s := range blankLineRe.Split(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			paragraphs = append(paragraphs, s)
		}
	}
	if len(paragraphs) == 0 {
		return &videos.ParsedAnalysis{ParseMethod: videos.ParseFreeform}
	}

	firstLine := paragraphs[0]
	if idx := strings.IndexByte(firstLine, '\n'); idx >= 0 {
		firstLine = firstLine[:idx]
	}

	longest, second := -1, -1
	for i, para := range paragraphs {
		n := len([]rune(para))
		if longest < 0 || n > len([]rune(paragraphs[longest])) {
			second = longest
			longest = i
		} else if second < 0 || n > len([]rune(paragraphs[second])) {
			second = i
		}
	}
	reasoning, features := "", ""
	if longest >= 0 {
		reasoning = paragraphs[longest]
	}
	if second >= 0 {
		features = paragraphs[second]
		if second < longest {
			reasoning, features = features, reasoning
		}
	}

	return &videos.ParsedAnalysis{
		Genre:       cleanShortAnswer(truncateRunes(firstLine, 60)),
		Reasoning:   reasoning,
		Features:    features,
		Tags:        koreanKeywords(text, 10),
		ParseMethod: videos.ParseFreeform,
	}
}

func parseMinimal(text string) *videos.ParsedAnalysis {
	firstLine := text
	if idx := strings.IndexByte(firstLine, '\n'); idx >= 0 {
		firstLine = firstLine[:idx]
	}
	return &videos.ParsedAnalysis{
		Genre:       cleanShortAnswer(truncateRunes(strings.TrimSpace(firstLine), 60)),
		Reasoning:   truncateRunes(text, 500),
		Tags:        koreanKeywords(text, 10),
		ParseMethod: videos.ParseMinimal,
	}
}

// tagDelimiters in preference order; the most frequent one in the raw A4
// answer wins, whitespace splitting is the last resort.
var tagDelimiters = []string{",", "/", "#", "·", "|", "\n"}

func splitTags(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	best, bestCount := "", 0
	for _, d := range tagDelimiters {
		if c := strings.Count(raw, d); c > bestCount {
			best, bestCount = d, c
		}
	}
	var parts []string
	if bestCount == 0 {
		parts = strings.Fields(raw)
	} else {
		parts = strings.Split(raw, best)
	}

	var tags []string
	for _, part := range parts {
		if tag := cleanTag(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func cleanTag(s string) string {
	t := strings.TrimSpace(s)
	t = strings.Trim(t, "#\"'`“”‘’()[]{}")
	t = strings.TrimRight(t, ".,;:!?")
	return strings.TrimSpace(t)
}

func cleanShortAnswer(s string) string {
	line := strings.TrimSpace(s)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = strings.TrimSpace(line[:idx])
	}
	line = strings.Trim(line, "*_\"'`“”‘’")
	return strings.TrimRight(line, ".")
}

var hangulWordRe = regexp.MustCompile(`[\x{AC00}-\x{D7A3}]{2,}`)

// koreanStopwords are boilerplate words every analysis answer contains; they
// carry no signal as tags.
var koreanStopwords = map[string]bool{
	"영상": true, "분석": true, "이미지": true, "장면": true,
	"있습니다": true, "합니다": true, "입니다": true,
}

func koreanKeywords(text string, limit int) []string {
	words := hangulWordRe.FindAllString(text, -1)
	if len(words) == 0 {
		return nil
	}

	counts := make(map[string]int)
	order := make(map[string]int)
	for i, w := range words {
		if koreanStopwords[w] {
			continue
		}
		if _, ok := counts[w]; !ok {
			order[w] = i
		}
		counts[w]++
	}

	unique := make([]string, 0, len(counts))
	for w := range counts {
		unique = append(unique, w)
	}
	sort.Slice(unique, func(i, j int) bool {
		if counts[unique[i]] != counts[unique[j]] {
			return counts[unique[i]] > counts[unique[j]]
		}
		return order[unique[i]] < order[unique[j]]
	})

	if len(unique) > limit {
		unique = unique[:limit]
	}
	return unique
}
