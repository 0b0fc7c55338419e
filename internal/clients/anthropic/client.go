package anthropic

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

const (
	defaultModel     = "claude-sonnet-4-5"
	anthropicVersion = "2023-06-01"
)

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient builds the Claude messages-API client. The system prompt rides
// as the top-level system field, never as a message.
func NewClient(log *logger.Logger, model string) (providers.Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	baseURL := strings.TrimSpace(os.Getenv("ANTHROPIC_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	apiKey := strings.TrimSpace(os.Getenv("CLAUDE_API_KEY"))
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	}

	model = strings.TrimSpace(model)
	if model == "" {
		model = defaultModel
	}

	timeoutSec := 120
	if v := os.Getenv("CLAUDE_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	return &client{
		log:        log.With("service", "ClaudeClient"),
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}, nil
}

func (c *client) Name() string  { return providers.Claude.String() }
func (c *client) Model() string { return c.model }

func (c *client) ValidateConfig() error {
	if c.apiKey == "" {
		return apperrors.E(apperrors.KindAuthMissing, "CLAUDE_API_KEY is not set")
	}
	return nil
}

type messagesRequest struct {
	Model     string         `json:"model"`
	MaxTokens int            `json:"max_tokens"`
	System    string         `json:"system,omitempty"`
	Messages  []messagesTurn `json:"messages"`
}

type messagesTurn struct {
	Role    string           `json:"role"`
	Content []map[string]any `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// PrepareMessages builds one user turn: base64 image blocks first, prompt
// text last.
func (c *client) PrepareMessages(images []providers.ImageInput, userPrompt, systemPrompt string) (any, error) {
	content := make([]map[string]any, 0, 1+len(images))
	for _, img := range images {
		if strings.TrimSpace(img.Base64JPEG) == "" {
			continue
		}
		content = append(content, map[string]any{
			"type": "image",
			"source": map[string]any{
				"type":       "base64",
				"media_type": "image/jpeg",
				"data":       img.Base64JPEG,
			},
		})
	}
	content = append(content, map[string]any{
		"type": "text",
		"text": userPrompt,
	})

	return messagesRequest{
		Model:     c.model,
		MaxTokens: 4000,
		System:    systemPrompt,
		Messages:  []messagesTurn{{Role: "user", Content: content}},
	}, nil
}

func (c *client) Call(ctx context.Context, images []providers.ImageInput, userPrompt, systemPrompt string) (string, error) {
	if err := c.ValidateConfig(); err != nil {
		return "", err
	}
	payload, err := c.PrepareMessages(images, userPrompt, systemPrompt)
	if err != nil {
		return "", err
	}

	var resp messagesResponse
	if err := c.post(ctxutil.Default(ctx), "/v1/messages", payload, &resp); err != nil {
		return "", c.mapHTTPError(err)
	}

	if resp.StopReason == "refusal" {
		return "", apperrors.E(apperrors.KindContentPolicyBlocked, "claude refused the content")
	}
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("claude returned no text content (stop_reason=%s)", resp.StopReason)
	}
	return text, nil
}

type anthropicHTTPError struct {
	StatusCode int
	Body       string
}

func (e *anthropicHTTPError) Error() string {
	return fmt.Sprintf("anthropic http %d: %s", e.StatusCode, e.Body)
}

func (e *anthropicHTTPError) HTTPStatusCode() int {
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
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := httpx.BodySnippet(resp.Body, 2048)
		_ = resp.Body.Close()
		return &anthropicHTTPError{StatusCode: resp.StatusCode, Body: snippet}
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
		return fmt.Errorf("anthropic decode error: %w", uErr)
	}
	return nil
}

func (c *client) mapHTTPError(err error) error {
	var httpErr *anthropicHTTPError
	if !errors.As(err, &httpErr) {
		return err
	}
	switch {
	case httpErr.StatusCode == http.StatusUnauthorized:
		return apperrors.Wrap(apperrors.KindAuthMissing, "Claude rejected the API key", err)
	case looksPolicyBlocked(httpErr.Body):
		return apperrors.Wrap(apperrors.KindContentPolicyBlocked, "Claude refused the content", err)
	case httpErr.StatusCode == http.StatusForbidden:
		return apperrors.Wrap(apperrors.KindAuthMissing, "Claude denied access for this key", err)
	default:
		return err
	}
}

func looksPolicyBlocked(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "content filtering") ||
		strings.Contains(lower, "usage policy") ||
		strings.Contains(lower, "safety reasons")
}
