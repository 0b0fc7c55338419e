package services

import (
	"fmt"
	"strings"
	"testing"

	videos "github.com/yungbote/vidlens-backend/internal/domain/videos"
	"github.com/yungbote/vidlens-backend/internal/pkg/logger"
	"github.com/yungbote/vidlens-backend/internal/platform/promptstyle"
)

func newTestPromptBuilder() PromptBuilder {
	return NewPromptBuilder(logger.NewNop(), promptstyle.Defaults())
}

func TestUserPromptHeaderFields(t *testing.T) {
	b := newTestPromptBuilder()
	meta := &videos.VideoMetadata{
		Title:           "바다 브이로그",
		Uploader:        "someone",
		DurationSeconds: 125,
		ViewCount:       42000,
		Tags:            []string{"바다", "여행"},
	}

	got := b.UserPrompt(meta, 6)
	for _, want := range []string{
		"[영상 정보]",
		"제목: 바다 브이로그",
		"업로더: someone",
		"길이: 2분 5초",
		"조회수: 42000회",
		"플랫폼 태그: 바다, 여행",
		"아래 6장의 이미지",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("prompt missing %q:\n%s", want, got)
		}
	}
}

func TestUserPromptOmitsZeroViewCount(t *testing.T) {
	b := newTestPromptBuilder()
	got := b.UserPrompt(&videos.VideoMetadata{Title: "t", ViewCount: 0}, 3)
	if strings.Contains(got, "조회수") {
		t.Fatalf("zero view count must be omitted:\n%s", got)
	}
}

func TestUserPromptCapsPlatformTags(t *testing.T) {
	b := newTestPromptBuilder()
	meta := &videos.VideoMetadata{Title: "t"}
	for i := 0; i < 14; i++ {
		meta.Tags = append(meta.Tags, fmt.Sprintf("tag%02d", i))
	}

	got := b.UserPrompt(meta, 3)
	if !strings.Contains(got, "tag09") {
		t.Fatalf("tenth tag missing:\n%s", got)
	}
	if strings.Contains(got, "tag10") {
		t.Fatalf("eleventh tag must be dropped:\n%s", got)
	}
}

func TestUserPromptTruncatesDescription(t *testing.T) {
	b := newTestPromptBuilder()
	long := strings.Repeat("가", 620)
	got := b.UserPrompt(&videos.VideoMetadata{Title: "t", Description: long}, 3)

	if strings.Contains(got, strings.Repeat("가", 501)) {
		t.Fatalf("description not truncated to 500 runes")
	}
	if !strings.Contains(got, "설명: "+strings.Repeat("가", 500)) {
		t.Fatalf("truncated description missing")
	}
}

func TestUserPromptListsClosedVocabularies(t *testing.T) {
	b := newTestPromptBuilder()
	got := b.UserPrompt(nil, 4)

	for _, want := range []string{"music-video", "documentary", "stop-motion", "live-action"} {
		if !strings.Contains(got, want) {
			t.Fatalf("closed vocabulary entry %q missing", want)
		}
	}
	for i := 1; i <= 7; i++ {
		label := fmt.Sprintf("A%d.", i)
		if !strings.Contains(got, label) {
			t.Fatalf("analysis item %s missing", label)
		}
	}
	if strings.Contains(got, "[영상 정보]") {
		t.Fatalf("nil metadata must not render a header")
	}
}

func TestSystemPromptPrioritizesImages(t *testing.T) {
	b := newTestPromptBuilder()
	got := b.SystemPrompt()
	if !strings.Contains(got, "영상 콘텐츠 분석 전문가") {
		t.Fatalf("system prompt role missing:\n%s", got)
	}
	if !strings.Contains(got, "이미지를 우선") {
		t.Fatalf("system prompt image-priority rule missing:\n%s", got)
	}
}
