package capabilities

import (
	"embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"prism/internal/domain"
)

//go:embed config/*.yaml
var configFiles embed.FS

// providerFiles lists the embedded catalog files. One file per provider
// family; adding a model means adding a YAML entry (plus a filter rule only
// when the model introduces new provider-family behavior).
var providerFiles = []string{
	"anthropic",
	"openai",
	"google",
	"xai",
	"deepseek",
	"perplexity",
	"fireworks",
}

// Registry manages model capabilities across all providers
type Registry struct {
	providers map[string]*ProviderCapabilities
	byModel   map[string]*ModelCapabilities
	mu        sync.RWMutex
}

// NewRegistry creates a new capability registry and loads embedded YAML files
func NewRegistry() (*Registry, error) {
	r := &Registry{
		providers: make(map[string]*ProviderCapabilities),
		byModel:   make(map[string]*ModelCapabilities),
	}

	for _, provider := range providerFiles {
		if err := r.loadProviderFile(provider); err != nil {
			return nil, fmt.Errorf("failed to load %s capabilities: %w", provider, err)
		}
	}

	return r, nil
}

// loadProviderFile loads a provider's capability YAML file
func (r *Registry) loadProviderFile(provider string) error {
	filename := fmt.Sprintf("config/%s.yaml", provider)
	data, err := configFiles.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filename, err)
	}

	var providerCaps ProviderCapabilities
	if err := yaml.Unmarshal(data, &providerCaps); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", filename, err)
	}

	r.mu.Lock()
	r.providers[provider] = &providerCaps
	for i := range providerCaps.Models {
		m := &providerCaps.Models[i]
		if _, exists := r.byModel[m.ID]; exists {
			r.mu.Unlock()
			return fmt.Errorf("duplicate model id %q in %s", m.ID, filename)
		}
		r.byModel[m.ID] = m
	}
	r.mu.Unlock()

	return nil
}

// Resolve returns capabilities for a model identifier. Unknown identifiers
// yield ErrInvalidModel; callers must reject the request rather than
// proceed.
func (r *Registry) Resolve(modelID string) (*ModelCapabilities, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.byModel[modelID]
	if !ok {
		return nil, fmt.Errorf("model %q: %w", modelID, domain.ErrInvalidModel)
	}
	return m, nil
}

// ListProviderModels returns all models for a provider (ordered as defined in YAML)
func (r *Registry) ListProviderModels(provider string) ([]ModelCapabilities, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providerCaps, ok := r.providers[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}

	return providerCaps.Models, nil
}

// GetAllProviders returns a list of all registered providers in load order
func (r *Registry) GetAllProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]string, 0, len(r.providers))
	for _, provider := range providerFiles {
		if _, ok := r.providers[provider]; ok {
			providers = append(providers, provider)
		}
	}
	return providers
}
