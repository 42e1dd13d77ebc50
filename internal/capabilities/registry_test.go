package capabilities

import (
	"errors"
	"testing"

	"prism/internal/domain"
)

func TestNewRegistry_LoadsEmbeddedCatalog(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	providers := r.GetAllProviders()
	if len(providers) != len(providerFiles) {
		t.Fatalf("providers = %d, want %d", len(providers), len(providerFiles))
	}
	for i, want := range providerFiles {
		if providers[i] != want {
			t.Errorf("providers[%d] = %q, want %q (load order)", i, providers[i], want)
		}
	}
}

func TestResolve(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	m, err := r.Resolve("claude-sonnet-4-5")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if m.Provider != "anthropic" {
		t.Errorf("provider = %q, want anthropic", m.Provider)
	}
	if !m.SupportsImages || !m.SupportsPDF {
		t.Error("claude-sonnet-4-5 should support images and PDFs")
	}
	if m.ThinkingBudget == nil {
		t.Error("claude-sonnet-4-5 should carry a thinking budget")
	}

	if _, err := r.Resolve("not-a-model"); !errors.Is(err, domain.ErrInvalidModel) {
		t.Errorf("expected ErrInvalidModel, got %v", err)
	}
}

func TestListProviderModels_PreservesCatalogOrder(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	models, err := r.ListProviderModels("anthropic")
	if err != nil {
		t.Fatalf("ListProviderModels: %v", err)
	}
	if len(models) == 0 {
		t.Fatal("anthropic catalog is empty")
	}
	if models[0].ID != "claude-sonnet-4-5" {
		t.Errorf("first model = %q, want claude-sonnet-4-5 (catalog order)", models[0].ID)
	}

	if _, err := r.ListProviderModels("unknown"); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestGeminiModelsDoNotSupportTools(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	models, err := r.ListProviderModels("google")
	if err != nil {
		t.Fatalf("ListProviderModels: %v", err)
	}
	for _, m := range models {
		if m.SupportsTools {
			t.Errorf("%s advertises tool support; the Gemini adapter does not send tools", m.ID)
		}
	}
}
