package capabilities

import "gopkg.in/yaml.v3"

// AnthropicProvider is the provider family with stricter validation of
// echoed reasoning (unsigned text details are rejected). The message filter
// keys off this family.
const AnthropicProvider = "anthropic"

// ModelCapabilities represents all metadata for a specific model.
// The pipeline consults these declared flags instead of matching on
// identifier strings, so adding a model never touches pipeline code.
type ModelCapabilities struct {
	// Model identifier (set during YAML unmarshaling)
	ID string `yaml:"-" json:"id"`

	// Provider family binding (set during YAML unmarshaling)
	Provider string `yaml:"-" json:"provider"`

	// Display information
	DisplayName string `yaml:"display_name" json:"display_name"`
	Description string `yaml:"description" json:"description"`

	// Core capabilities
	SupportsTools  bool `yaml:"supports_tools" json:"supports_tools"`
	SupportsImages bool `yaml:"supports_images" json:"supports_images"`
	SupportsPDF    bool `yaml:"supports_pdf" json:"supports_pdf"`
	SupportsBrowse bool `yaml:"supports_browse" json:"supports_browse"`

	// Limits
	ContextWindow int `yaml:"context_window" json:"context_window"`
	MaxOutput     int `yaml:"max_output" json:"max_output"`

	// ForceTemperature pins the request temperature for models that reject
	// custom values (nil = caller/default temperature allowed).
	ForceTemperature *float64 `yaml:"force_temperature" json:"force_temperature,omitempty"`

	// ThinkingBudget enables extended thinking with the given token budget
	// for reasoning-capable models (nil = thinking disabled).
	ThinkingBudget *int `yaml:"thinking_budget" json:"thinking_budget,omitempty"`
}

// IsAnthropicFamily reports whether the model binds to the provider family
// that rejects unsigned reasoning parts.
func (m *ModelCapabilities) IsAnthropicFamily() bool {
	return m.Provider == AnthropicProvider
}

// ProviderCapabilities represents all models for a provider
type ProviderCapabilities struct {
	Provider string              `yaml:"provider" json:"provider"`
	Models   []ModelCapabilities `yaml:"-" json:"models"` // Ordered slice, populated by custom unmarshaler
}

// UnmarshalYAML implements custom YAML unmarshaling to preserve model order from YAML file
func (p *ProviderCapabilities) UnmarshalYAML(node *yaml.Node) error {
	// First, decode the provider field
	for i := 0; i < len(node.Content); i += 2 {
		if node.Content[i].Value == "provider" {
			p.Provider = node.Content[i+1].Value
			break
		}
	}

	// Decode models into a map first to get the full data
	type modelsOnly struct {
		Models map[string]ModelCapabilities `yaml:"models"`
	}
	var m modelsOnly
	if err := node.Decode(&m); err != nil {
		return err
	}

	// Now extract model keys in YAML order and build the slice
	for i := 0; i < len(node.Content); i += 2 {
		if node.Content[i].Value == "models" {
			modelsNode := node.Content[i+1]
			// modelsNode.Content alternates: key, value, key, value...
			for j := 0; j < len(modelsNode.Content); j += 2 {
				modelID := modelsNode.Content[j].Value
				if model, ok := m.Models[modelID]; ok {
					model.ID = modelID
					model.Provider = p.Provider
					p.Models = append(p.Models, model)
				}
			}
			break
		}
	}

	return nil
}
