package app

import (
	"fmt"

	"github.com/yungbote/vidlens-backend/internal/clients/anthropic"
	"github.com/yungbote/vidlens-backend/internal/clients/gemini"
	"github.com/yungbote/vidlens-backend/internal/clients/openai"
	redisclient "github.com/yungbote/vidlens-backend/internal/clients/redis"
	"github.com/yungbote/vidlens-backend/internal/pkg/logger"
	"github.com/yungbote/vidlens-backend/internal/providers"
)

type Clients struct {
	Provider providers.Client
	Factory  providers.ClientFactory
	Remote   redisclient.RemoteCache
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	factory := providerFactory(log)

	prov, err := providers.ParseProvider(cfg.AIProvider)
	if err != nil {
		return Clients{}, fmt.Errorf("init provider client: %w", err)
	}
	client, err := factory(prov, cfg.AIModelName)
	if err != nil {
		return Clients{}, fmt.Errorf("init %s client: %w", prov, err)
	}
	if verr := client.ValidateConfig(); verr != nil {
		log.Warn("Provider credentials missing, analysis calls will fail until set", "provider", client.Name(), "error", verr)
	}

	// Remote cache tier; disabled when REDIS_HOST is unset.
	remote := redisclient.NewRemoteCache(log)

	return Clients{
		Provider: client,
		Factory:  factory,
		Remote:   remote,
	}, nil
}

// providerFactory lets the analysis layer construct alternates when a
// provider refuses content and AUTO_SWITCH_ON_POLICY_BLOCK is on.
func providerFactory(log *logger.Logger) providers.ClientFactory {
	return func(p providers.Provider, model string) (providers.Client, error) {
		switch p {
		case providers.OpenAI:
			return openai.NewClient(log, model)
		case providers.Claude:
			return anthropic.NewClient(log, model)
		case providers.Gemini:
			return gemini.NewClient(log, model)
		default:
			return nil, fmt.Errorf("unknown provider %q", p)
		}
	}
}
