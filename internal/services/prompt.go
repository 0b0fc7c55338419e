package services

import (
	"fmt"
	"strings"

	videos "github.com/yungbote/vidlens-backend/internal/domain/videos"
	"github.com/yungbote/vidlens-backend/internal/pkg/logger"
	"github.com/yungbote/vidlens-backend/internal/platform/promptstyle"
)

const maxPromptTags = 10
const maxDescriptionRunes = 500

const analysisSystemPrompt = `당신은 영상 콘텐츠 분석 전문가입니다. 장르 판별, 연출 기법 분석, 타깃 시청자 추정에 능숙하며 썸네일과 대표 장면만으로 영상의 성격을 정확히 파악합니다.
제공되는 메타데이터(제목, 설명, 태그 등)는 보조 자료일 뿐입니다. 판단의 근거는 항상 이미지에서 실제로 확인되는 내용이어야 하며, 메타데이터와 이미지가 충돌할 때는 이미지를 우선하십시오.`

// PromptBuilder renders the two-part analysis prompt: a fixed system prompt
// and a user prompt folding in the video's context and the image count. The
// closed genre and expression-style vocabularies come from configuration.
type PromptBuilder interface {
	SystemPrompt() string
	UserPrompt(meta *videos.VideoMetadata, imageCount int) string
}

type promptBuilder struct {
	log    *logger.Logger
	styles promptstyle.StyleSet
}

func NewPromptBuilder(log *logger.Logger, styles promptstyle.StyleSet) PromptBuilder {
	return &promptBuilder{
		log:    log.With("service", "PromptBuilder"),
		styles: styles,
	}
}

func (b *promptBuilder) SystemPrompt() string {
	return analysisSystemPrompt
}

func (b *promptBuilder) UserPrompt(meta *videos.VideoMetadata, imageCount int) string {
	var sb strings.Builder

	if header := metadataHeader(meta); header != "" {
		sb.WriteString("[영상 정보]\n")
		sb.WriteString(header)
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "아래 %d장의 이미지는 이 영상에서 추출한 것입니다. 첫 번째는 썸네일이고 나머지는 대표 장면입니다.\n", imageCount)
	sb.WriteString("메타데이터는 참고만 하고, 실제 이미지에서 보이는 내용을 근거로 다음 항목을 분석해 주세요.\n\n")

	fmt.Fprintf(&sb, "A1. 장르: 다음 목록에서 가장 적합한 하나만 고르세요: %s\n", strings.Join(b.styles.Genres, ", "))
	sb.WriteString("A2. 판단 근거: 어떤 시각적 단서로 그렇게 판단했는지 200자 이상으로 설명하세요.\n")
	sb.WriteString("A3. 영상 특징: 연출, 편집, 색감, 구성 등 영상의 특징을 200자 이상으로 설명하세요.\n")
	fmt.Fprintf(&sb, "A4. 태그: 영상을 설명하는 태그를 %d개 이상 쉼표로 구분해 제시하세요. '#' 기호를 붙이지 말고 위의 플랫폼 태그와 중복되지 않게 하세요.\n", maxPromptTags)
	fmt.Fprintf(&sb, "A5. 표현 형식: 다음 중 하나만 고르세요: %s\n", strings.Join(b.styles.ExpressionStyles, ", "))
	sb.WriteString("A6. 분위기와 톤: 영상의 전반적인 분위기와 톤을 설명하세요.\n")
	sb.WriteString("A7. 타깃 시청자: 이 영상이 겨냥하는 시청자층을 설명하세요.\n\n")

	sb.WriteString("[답변 형식]\n")
	sb.WriteString("각 항목은 \"A1:\", \"A2:\"처럼 항목 번호로 시작하고, 항목 사이는 빈 줄로 구분하세요. 답변 본문 안에는 다른 라벨을 넣지 마세요.")

	return sb.String()
}

func metadataHeader(meta *videos.VideoMetadata) string {
	if meta == nil {
		return ""
	}
	var lines []string
	if meta.Title != "" {
		lines = append(lines, "제목: "+meta.Title)
	}
	if meta.Uploader != "" {
		lines = append(lines, "업로더: "+meta.Uploader)
	}
	if meta.DurationSeconds > 0 {
		lines = append(lines, "길이: "+formatDurationKR(meta.DurationSeconds))
	}
	if meta.ViewCount > 0 {
		lines = append(lines, fmt.Sprintf("조회수: %d회", meta.ViewCount))
	}
	if len(meta.Tags) > 0 {
		tags := meta.Tags
		if len(tags) > maxPromptTags {
			tags = tags[:maxPromptTags]
		}
		lines = append(lines, "플랫폼 태그: "+strings.Join(tags, ", "))
	}
	if meta.Description != "" {
		lines = append(lines, "설명: "+truncateRunes(meta.Description, maxDescriptionRunes))
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

func formatDurationKR(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%d분 %d초", total/60, total%60)
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
