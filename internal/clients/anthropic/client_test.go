package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "github.com/yungbote/vidlens-backend/internal/pkg/errors"
	"github.com/yungbote/vidlens-backend/internal/pkg/logger"
	"github.com/yungbote/vidlens-backend/internal/providers"
)

func newTestClient(t *testing.T, baseURL string) providers.Client {
	t.Helper()
	t.Setenv("CLAUDE_API_KEY", "sk-ant-test")
	if baseURL != "" {
		t.Setenv("ANTHROPIC_BASE_URL", baseURL)
	}
	c, err := NewClient(logger.NewNop(), "claude-sonnet-4-5")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestPrepareMessagesSystemRidesTopLevel(t *testing.T) {
	c := newTestClient(t, "")

	payload, err := c.PrepareMessages([]providers.ImageInput{
		{Base64JPEG: "AAAA", Detail: "low"},
	}, "user prompt", "system prompt")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var req map[string]any
	if err := json.Unmarshal(raw, &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if req["system"] != "system prompt" {
		t.Fatalf("system field = %v", req["system"])
	}
	messages := req["messages"].([]any)
	if len(messages) != 1 {
		t.Fatalf("want a single user turn, got %d", len(messages))
	}
	turn := messages[0].(map[string]any)
	if turn["role"] != "user" {
		t.Fatalf("role = %v", turn["role"])
	}
	content := turn["content"].([]any)
	if len(content) != 2 {
		t.Fatalf("want image + text blocks, got %d", len(content))
	}
	img := content[0].(map[string]any)
	if img["type"] != "image" {
		t.Fatalf("first block should be the image: %v", img["type"])
	}
	source := img["source"].(map[string]any)
	if source["type"] != "base64" || source["media_type"] != "image/jpeg" || source["data"] != "AAAA" {
		t.Fatalf("image source wrong: %v", source)
	}
	text := content[1].(map[string]any)
	if text["type"] != "text" || text["text"] != "user prompt" {
		t.Fatalf("text block wrong: %v", text)
	}
}

func TestCallJoinsTextBlocks(t *testing.T) {
	var gotKey, gotVersion string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": "장르: "},
				{"type": "text", "text": "브랜드 필름"},
			},
			"stop_reason": "end_turn",
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	text, err := c.Call(context.Background(), nil, "prompt", "system")
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if text != "장르: 브랜드 필름" {
		t.Fatalf("text = %q", text)
	}
	if gotKey != "sk-ant-test" {
		t.Fatalf("x-api-key = %q", gotKey)
	}
	if gotVersion != anthropicVersion {
		t.Fatalf("anthropic-version = %q", gotVersion)
	}
}

func TestCallWithoutKeyIsAuthMissing(t *testing.T) {
	t.Setenv("CLAUDE_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	c, err := NewClient(logger.NewNop(), "")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = c.Call(context.Background(), nil, "p", "s")
	if apperrors.KindOf(err) != apperrors.KindAuthMissing {
		t.Fatalf("kind = %v", apperrors.KindOf(err))
	}
}

func TestCallRefusalStopReasonIsPolicyBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content":     []map[string]any{},
			"stop_reason": "refusal",
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Call(context.Background(), nil, "p", "s")
	if apperrors.KindOf(err) != apperrors.KindContentPolicyBlocked {
		t.Fatalf("kind = %v, err = %v", apperrors.KindOf(err), err)
	}
}

func TestCallMapsFilteredRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"type":"invalid_request_error","message":"blocked by our content filtering policy"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Call(context.Background(), nil, "p", "s")
	if apperrors.KindOf(err) != apperrors.KindContentPolicyBlocked {
		t.Fatalf("kind = %v, err = %v", apperrors.KindOf(err), err)
	}
}
