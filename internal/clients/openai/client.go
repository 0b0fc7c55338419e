package openai

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

const defaultModel = "gpt-4o"

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient builds the OpenAI chat-completions client. A missing API key is
// not a construction error; it surfaces as AUTH_MISSING when the client is
// actually used.
func NewClient(log *logger.Logger, model string) (providers.Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	baseURL := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model = strings.TrimSpace(model)
	if model == "" {
		model = defaultModel
	}

	timeoutSec := 120
	if v := os.Getenv("OPENAI_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	return &client{
		log:        log.With("service", "OpenAIClient"),
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		model:      model,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}, nil
}

func (c *client) Name() string  { return providers.OpenAI.String() }
func (c *client) Model() string { return c.model }

func (c *client) ValidateConfig() error {
	if c.apiKey == "" {
		return apperrors.E(apperrors.KindAuthMissing, "OPENAI_API_KEY is not set")
	}
	return nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// PrepareMessages builds the chat-completions payload: one system message
// plus one user message whose content array carries the prompt text followed
// by data-URL image parts with their detail hints.
func (c *client) PrepareMessages(images []providers.ImageInput, userPrompt, systemPrompt string) (any, error) {
	content := make([]map[string]any, 0, 1+len(images))
	content = append(content, map[string]any{
		"type": "text",
		"text": userPrompt,
	})
	for _, img := range images {
		if strings.TrimSpace(img.Base64JPEG) == "" {
			continue
		}
		imageURL := map[string]any{"url": dataURL(img.Base64JPEG)}
		if detail := strings.TrimSpace(img.Detail); detail != "" {
			imageURL["detail"] = detail
		}
		content = append(content, map[string]any{
			"type":      "image_url",
			"image_url": imageURL,
		})
	}

	messages := make([]chatMessage, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: content})

	return chatRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   4000,
		Temperature: 0.2,
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

	var resp chatResponse
	if err := c.post(ctxutil.Default(ctx), "/v1/chat/completions", payload, &resp); err != nil {
		return "", c.mapHTTPError(err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	choice := resp.Choices[0]
	if strings.TrimSpace(choice.Message.Refusal) != "" {
		return "", apperrors.Ef(apperrors.KindContentPolicyBlocked, "openai refused: %s", choice.Message.Refusal)
	}
	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return "", fmt.Errorf("openai returned empty content (finish_reason=%s)", choice.FinishReason)
	}
	return text, nil
}

type openAIHTTPError struct {
	StatusCode int
	Body       string
}

func (e *openAIHTTPError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func (e *openAIHTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

// post issues one request. Analysis calls are never retried here; the
// higher-level provider cascade decides what happens on failure.
func (c *client) post(ctx context.Context, path string, body any, out any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := httpx.BodySnippet(resp.Body, 2048)
		_ = resp.Body.Close()
		return &openAIHTTPError{StatusCode: resp.StatusCode, Body: snippet}
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
		return fmt.Errorf("openai decode error: %w", uErr)
	}
	return nil
}

func (c *client) mapHTTPError(err error) error {
	var httpErr *openAIHTTPError
	if !errors.As(err, &httpErr) {
		return err
	}
	switch {
	case httpErr.StatusCode == http.StatusUnauthorized:
		return apperrors.Wrap(apperrors.KindAuthMissing, "OpenAI rejected the API key", err)
	case looksPolicyBlocked(httpErr.Body):
		return apperrors.Wrap(apperrors.KindContentPolicyBlocked, "OpenAI refused the content", err)
	case httpErr.StatusCode == http.StatusForbidden:
		return apperrors.Wrap(apperrors.KindAuthMissing, "OpenAI denied access for this key", err)
	default:
		return err
	}
}

func looksPolicyBlocked(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "content_policy") ||
		strings.Contains(lower, "content policy") ||
		strings.Contains(lower, "content management policy") ||
		strings.Contains(lower, "safety system") ||
		strings.Contains(lower, "invalid_prompt")
}

func dataURL(b64 string) string {
	return "data:image/jpeg;base64," + b64
}
