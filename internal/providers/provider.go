package providers

import (
	"context"
	"fmt"
	"strings"
)

// Provider is the closed set of supported model vendors. Selection is by
// enum value, never by runtime registration.
type Provider string

const (
	OpenAI Provider = "openai"
	Claude Provider = "claude"
	Gemini Provider = "gemini"
)

func (p Provider) String() string { return string(p) }

// ParseProvider normalizes a configured provider name.
func ParseProvider(raw string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "openai", "gpt", "chatgpt":
		return OpenAI, nil
	case "claude", "anthropic":
		return Claude, nil
	case "gemini", "google":
		return Gemini, nil
	default:
		return "", fmt.Errorf("unknown AI provider %q (want openai, claude or gemini)", raw)
	}
}

// Alternatives returns the other providers in fallback order, used when
// auto-switch on a content-policy block is enabled.
func (p Provider) Alternatives() []Provider {
	switch p {
	case OpenAI:
		return []Provider{Claude, Gemini}
	case Claude:
		return []Provider{Gemini, OpenAI}
	case Gemini:
		return []Provider{OpenAI, Claude}
	default:
		return nil
	}
}

// ImageInput is one analysis image: an already-encoded JPEG plus the
// provider detail hint (low, high or auto). Providers that have no detail
// knob ignore it.
type ImageInput struct {
	Base64JPEG string
	Detail     string
}

// Client is the uniform multimodal surface. Identical (images, userPrompt,
// systemPrompt) must produce semantically equivalent requests on every
// implementation; only the wire shape differs.
type Client interface {
	Name() string
	Model() string
	ValidateConfig() error
	PrepareMessages(images []ImageInput, userPrompt, systemPrompt string) (any, error)
	Call(ctx context.Context, images []ImageInput, userPrompt, systemPrompt string) (string, error)
}

// ClientFactory builds a client for a provider. The composition root wires
// the real constructors; tests substitute fakes.
type ClientFactory func(p Provider, model string) (Client, error)
