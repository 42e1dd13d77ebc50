package providers

import (
	"context"
	"log/slog"

	"prism/internal/config"
	domainChat "prism/internal/domain/services/chat"
	"prism/internal/service/chat/providers/anthropic"
	"prism/internal/service/chat/providers/google"
	"prism/internal/service/chat/providers/openaicompat"
)

// Registry maps provider family names to configured adapters. A family
// without an API key is simply absent; resolving a model bound to it fails
// the turn as an invalid model.
type Registry struct {
	providers map[string]domainChat.LLMProvider
	logger    *slog.Logger
}

// NewRegistry builds adapters for every family with a configured key.
func NewRegistry(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Registry, error) {
	r := &Registry{
		providers: make(map[string]domainChat.LLMProvider),
		logger:    logger,
	}

	if cfg.AnthropicAPIKey != "" {
		p, err := anthropic.NewProvider(cfg.AnthropicAPIKey)
		if err != nil {
			return nil, err
		}
		r.register(p)
	}

	if cfg.GoogleAPIKey != "" {
		p, err := google.NewProvider(ctx, cfg.GoogleAPIKey)
		if err != nil {
			return nil, err
		}
		r.register(p)
	}

	compatFamilies := []struct {
		family  string
		apiKey  string
		baseURL string
	}{
		{"openai", cfg.OpenAIAPIKey, ""},
		{"xai", cfg.XAIAPIKey, openaicompat.BaseURLXAI},
		{"deepseek", cfg.DeepSeekAPIKey, openaicompat.BaseURLDeepSeek},
		{"perplexity", cfg.PerplexityAPIKey, openaicompat.BaseURLPerplexity},
		{"fireworks", cfg.FireworksAPIKey, openaicompat.BaseURLFireworks},
	}
	for _, fam := range compatFamilies {
		if fam.apiKey == "" {
			continue
		}
		p, err := openaicompat.NewProvider(fam.family, fam.apiKey, fam.baseURL)
		if err != nil {
			return nil, err
		}
		r.register(p)
	}

	logger.Info("provider registry initialized", "families", len(r.providers))
	return r, nil
}

func (r *Registry) register(p domainChat.LLMProvider) {
	r.providers[p.Name()] = p
	r.logger.Info("provider registered", "family", p.Name())
}

// Provider returns the adapter for a family.
func (r *Registry) Provider(family string) (domainChat.LLMProvider, bool) {
	p, ok := r.providers[family]
	return p, ok
}

// Close releases adapter resources (currently only the Gemini client holds
// a connection).
func (r *Registry) Close() {
	for _, p := range r.providers {
		if closer, ok := p.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				r.logger.Warn("provider close failed", "family", p.Name(), "error", err)
			}
		}
	}
}
