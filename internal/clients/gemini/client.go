package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/vidlens-backend/internal/pkg/ctxutil"
	apperrors "github.com/yungbote/vidlens-backend/internal/pkg/errors"
	"github.com/yungbote/vidlens-backend/internal/pkg/httpx"
	"github.com/yungbote/vidlens-backend/internal/pkg/logger"
	"github.com/yungbote/vidlens-backend/internal/providers"
)

const defaultModel = "gemini-2.0-flash"

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient builds the Gemini generateContent client. The key travels in
// the x-goog-api-key header so it never appears in URLs or logs.
func NewClient(log *logger.Logger, model string) (providers.Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	baseURL := strings.TrimSpace(os.Getenv("GEMINI_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model = strings.TrimSpace(model)
	if model == "" {
		model = defaultModel
	}

	timeoutSec := 120
	if v := os.Getenv("GEMINI_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	return &client{
		log:        log.With("service", "GeminiClient"),
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		model:      model,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}, nil
}

func (c *client) Name() string  { return providers.Gemini.String() }
func (c *client) Model() string { return c.model }

func (c *client) ValidateConfig() error {
	if c.apiKey == "" {
		return apperrors.E(apperrors.KindAuthMissing, "GEMINI_API_KEY is not set")
	}
	return nil
}

type generateRequest struct {
	SystemInstruction *generateContent  `json:"system_instruction,omitempty"`
	Contents          []generateContent `json:"contents"`
	GenerationConfig  *generationConfig `json:"generation_config,omitempty"`
}

type generateContent struct {
	Role  string           `json:"role,omitempty"`
	Parts []map[string]any `json:"parts"`
}

type generationConfig struct {
	MaxOutputTokens int     `json:"max_output_tokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// PrepareMessages builds a single user content whose parts carry the prompt
// text followed by inline_data image parts.
func (c *client) PrepareMessages(images []providers.ImageInput, userPrompt, systemPrompt string) (any, error) {
	parts := make([]map[string]any, 0, 1+len(images))
	parts = append(parts, map[string]any{"text": userPrompt})
	for _, img := range images {
		if strings.TrimSpace(img.Base64JPEG) == "" {
			continue
		}
		parts = append(parts, map[string]any{
			"inline_data": map[string]any{
				"mime_type": "image/jpeg",
				"data":      img.Base64JPEG,
			},
		})
	}

	req := generateRequest{
		Contents: []generateContent{{Role: "user", Parts: parts}},
		GenerationConfig: &generationConfig{
			MaxOutputTokens: 4000,
			Temperature:     0.2,
		},
	}
	if strings.TrimSpace(systemPrompt) != "" {
		req.SystemInstruction = &generateContent{
			Parts: []map[string]any{{"text": systemPrompt}},
		}
	}
	return req, nil
}

func (c *client) Call(ctx context.Context, images []providers.ImageInput, userPrompt, systemPrompt string) (string, error) {
	if err := c.ValidateConfig(); err != nil {
		return "", err
	}
	payload, err := c.PrepareMessages(images, userPrompt, systemPrompt)
	if err != nil {
		return "", err
	}

	path := fmt.Sprintf("/v1beta/models/%s:generateContent", c.model)
	var resp generateResponse
	if err := c.post(ctxutil.Default(ctx), path, payload, &resp); err != nil {
		return "", c.mapHTTPError(err)
	}

	if reason := strings.TrimSpace(resp.PromptFeedback.BlockReason); reason != "" {
		return "", apperrors.Ef(apperrors.KindContentPolicyBlocked, "gemini blocked the prompt: %s", reason)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	candidate := resp.Candidates[0]
	if strings.EqualFold(candidate.FinishReason, "SAFETY") {
		return "", apperrors.E(apperrors.KindContentPolicyBlocked, "gemini stopped the response for safety")
	}
	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		sb.WriteString(part.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("gemini returned empty content (finish_reason=%s)", candidate.FinishReason)
	}
	return text, nil
}

type geminiHTTPError struct {
	StatusCode int
	Body       string
}

func (e *geminiHTTPError) Error() string {
	return fmt.Sprintf("gemini http %d: %s", e.StatusCode, e.Body)
}

func (e *geminiHTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (c *client) post(ctx context.Context, path string, body any, out any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := httpx.BodySnippet(resp.Body, 2048)
		_ = resp.Body.Close()
		return &geminiHTTPError{StatusCode: resp.StatusCode, Body: snippet}
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return readErr
	}
	if out == nil {
		return nil
	}
	if uErr := json.Unmarshal(raw, out); uErr != nil {
		return fmt.Errorf("gemini decode error: %w", uErr)
	}
	return nil
}

func (c *client) mapHTTPError(err error) error {
	var httpErr *geminiHTTPError
	if !errors.As(err, &httpErr) {
		return err
	}
	lower := strings.ToLower(httpErr.Body)
	switch {
	case httpErr.StatusCode == http.StatusUnauthorized,
		strings.Contains(lower, "api key not valid"),
		strings.Contains(lower, "api_key_invalid"):
		return apperrors.Wrap(apperrors.KindAuthMissing, "Gemini rejected the API key", err)
	case strings.Contains(lower, "safety") || strings.Contains(lower, "blocked"):
		return apperrors.Wrap(apperrors.KindContentPolicyBlocked, "Gemini refused the content", err)
	case httpErr.StatusCode == http.StatusForbidden:
		return apperrors.Wrap(apperrors.KindAuthMissing, "Gemini denied access for this key", err)
	default:
		return err
	}
}
