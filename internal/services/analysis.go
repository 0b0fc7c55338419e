package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	videos "github.com/yungbote/vidlens-backend/internal/domain/videos"
	apperrors "github.com/yungbote/vidlens-backend/internal/pkg/errors"
	"github.com/yungbote/vidlens-backend/internal/pkg/logger"
	"github.com/yungbote/vidlens-backend/internal/providers"
	"github.com/yungbote/vidlens-backend/internal/utils"
)

const maxPersistedTags = 20

// AnalysisService runs one video through the multimodal provider: it
// encodes the thumbnail plus the grouped scenes, renders the prompt, calls
// the model, parses the answer and post-processes tags and provenance.
// Prompt and response are dumped under <videoDir>/debug/ for inspection,
// and the final result is written to <videoDir>/analysis_result.json.
type AnalysisService interface {
	Analyze(ctx context.Context, video *videos.Video, videoDir string) (*videos.ParsedAnalysis, error)
}

type analysisService struct {
	log     *logger.Logger
	prompts PromptBuilder
	parser  ResponseParser
	client  providers.Client
	factory providers.ClientFactory

	maxImages   int
	imageDetail string
	autoSwitch  bool
	now         func() time.Time
}

func NewAnalysisService(log *logger.Logger, prompts PromptBuilder, parser ResponseParser, client providers.Client, factory providers.ClientFactory) AnalysisService {
	l := log.With("service", "AnalysisService")
	return &analysisService{
		log:         l,
		prompts:     prompts,
		parser:      parser,
		client:      client,
		factory:     factory,
		maxImages:   utils.GetEnvAsInt("MAX_ANALYSIS_IMAGES", 10, l),
		imageDetail: utils.GetEnv("ANALYSIS_IMAGE_QUALITY", "low", l),
		autoSwitch:  utils.GetEnvAsBool("AUTO_SWITCH_ON_POLICY_BLOCK", false, l),
		now:         time.Now,
	}
}

func (s *analysisService) Analyze(ctx context.Context, video *videos.Video, videoDir string) (*videos.ParsedAnalysis, error) {
	images := s.collectImages(video)
	if len(images) == 0 {
		return nil, apperrors.E(apperrors.KindAnalysisFailed, "no thumbnail or grouped scenes to analyze")
	}

	systemPrompt := s.prompts.SystemPrompt()
	userPrompt := s.prompts.UserPrompt(video.Metadata, len(images))
	s.dumpDebug(videoDir, "prompt.txt", systemPrompt+"\n\n---\n\n"+userPrompt)

	text, client, err := s.callWithFallback(ctx, images, userPrompt, systemPrompt)
	if err != nil {
		return nil, err
	}
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("provider", client.Name()),
		attribute.String("model", client.Model()),
	)
	s.dumpDebug(videoDir, "response.txt", text)

	if strings.TrimSpace(text) == "" {
		return nil, apperrors.E(apperrors.KindAnalysisFailed, "provider returned an empty response")
	}

	analysis := s.parser.Parse(text)
	var platformTags []string
	if video.Metadata != nil {
		platformTags = video.Metadata.Tags
	}
	analysis.Tags = unionTags(platformTags, analysis.Tags, maxPersistedTags)
	analysis.ModelUsed = client.Name() + ":" + client.Model()
	analysis.AnalysisDate = s.now()

	s.writeResult(videoDir, analysis)
	s.log.Info("Video analyzed",
		"video_id", video.VideoID(),
		"genre", analysis.Genre,
		"parse_method", analysis.ParseMethod,
		"model", analysis.ModelUsed,
		"tags", len(analysis.Tags),
	)
	return analysis, nil
}

// callWithFallback tries the configured provider and, when a content-policy
// block is reported and auto-switch is on, walks the alternatives in order.
// Any other failure is terminal.
func (s *analysisService) callWithFallback(ctx context.Context, images []providers.ImageInput, userPrompt, systemPrompt string) (string, providers.Client, error) {
	text, err := s.client.Call(ctx, images, userPrompt, systemPrompt)
	if err == nil {
		return text, s.client, nil
	}
	if !s.autoSwitch || !apperrors.IsKind(err, apperrors.KindContentPolicyBlocked) {
		return "", nil, err
	}

	current, perr := providers.ParseProvider(s.client.Name())
	if perr != nil {
		return "", nil, err
	}
	s.log.Warn("Provider blocked the content, switching", "provider", current, "error", err)

	for _, alt := range current.Alternatives() {
		client, ferr := s.factory(alt, "")
		if ferr != nil {
			s.log.Warn("Alternative provider unavailable", "provider", alt, "error", ferr)
			continue
		}
		text, cerr := client.Call(ctx, images, userPrompt, systemPrompt)
		if cerr == nil {
			s.log.Info("Alternative provider succeeded", "provider", alt)
			return text, client, nil
		}
		err = cerr
		if !apperrors.IsKind(cerr, apperrors.KindContentPolicyBlocked) {
			return "", nil, cerr
		}
		s.log.Warn("Alternative provider also blocked", "provider", alt, "error", cerr)
	}
	return "", nil, err
}

// collectImages encodes the thumbnail first, then grouped scenes up to the
// image budget. Unreadable files are skipped.
func (s *analysisService) collectImages(video *videos.Video) []providers.ImageInput {
	var images []providers.ImageInput

	appendFile := func(path string) bool {
		if path == "" {
			return false
		}
		data, err := os.ReadFile(path)
		if err != nil {
			s.log.Warn("Analysis image unreadable, skipping", "path", path, "error", err)
			return false
		}
		images = append(images, providers.ImageInput{
			Base64JPEG: base64.StdEncoding.EncodeToString(data),
			Detail:     s.imageDetail,
		})
		return true
	}

	appendFile(video.ThumbnailPath)
	grouped := 0
	for _, scene := range video.GroupedScenes {
		if grouped >= s.maxImages {
			break
		}
		if appendFile(scene.GroupedPath) {
			grouped++
		}
	}
	return images
}

func (s *analysisService) dumpDebug(videoDir, name, content string) {
	if videoDir == "" {
		return
	}
	dir := filepath.Join(videoDir, "debug")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.log.Warn("Debug dir unavailable", "dir", dir, "error", err)
		return
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		s.log.Warn("Debug dump failed", "file", name, "error", err)
	}
}

func (s *analysisService) writeResult(videoDir string, analysis *videos.ParsedAnalysis) {
	if videoDir == "" {
		return
	}
	data, err := json.MarshalIndent(analysis, "", "  ")
	if err != nil {
		s.log.Warn("Analysis result marshal failed", "error", err)
		return
	}
	path := filepath.Join(videoDir, "analysis_result.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		s.log.Warn("Analysis result write failed", "path", path, "error", err)
	}
}

// unionTags keeps platform tags first, appends new parsed tags in order,
// dedups case-insensitively and caps the total.
func unionTags(platformTags, parsedTags []string, limit int) []string {
	var out []string
	seen := make(map[string]bool)

	add := func(tag string) {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			return
		}
		key := strings.ToLower(tag)
		if seen[key] || len(out) >= limit {
			return
		}
		seen[key] = true
		out = append(out, tag)
	}

	for _, t := range platformTags {
		add(t)
	}
	for _, t := range parsedTags {
		add(t)
	}
	return out
}
