package handler

import (
	"log/slog"
	"net/http"

	"prism/internal/capabilities"
	"prism/internal/httputil"
)

// ModelsHandler serves the read-only model catalog
type ModelsHandler struct {
	registry *capabilities.Registry
	logger   *slog.Logger
}

// NewModelsHandler creates a new models handler
func NewModelsHandler(registry *capabilities.Registry, logger *slog.Logger) *ModelsHandler {
	return &ModelsHandler{registry: registry, logger: logger}
}

// providerEntry is one provider family with its models, in catalog order
type providerEntry struct {
	Provider string                          `json:"provider"`
	Models   []capabilities.ModelCapabilities `json:"models"`
}

// ListModels returns the full catalog grouped by provider
// GET /api/models
func (h *ModelsHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	providers := h.registry.GetAllProviders()

	catalog := make([]providerEntry, 0, len(providers))
	for _, provider := range providers {
		models, err := h.registry.ListProviderModels(provider)
		if err != nil {
			handleError(w, err)
			return
		}
		catalog = append(catalog, providerEntry{Provider: provider, Models: models})
	}

	httputil.RespondJSON(w, http.StatusOK, catalog)
}
