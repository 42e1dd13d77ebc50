package handler

import (
	"log/slog"
	"net/http"

	domainChat "prism/internal/domain/services/chat"
	"prism/internal/httputil"
)

// MemoryHandler exposes the user's memory blob
type MemoryHandler struct {
	memory domainChat.MemoryService
	logger *slog.Logger
}

// NewMemoryHandler creates a new memory handler
func NewMemoryHandler(memory domainChat.MemoryService, logger *slog.Logger) *MemoryHandler {
	return &MemoryHandler{memory: memory, logger: logger}
}

type memoryResponse struct {
	Memory  *string `json:"memory"`
	Enabled bool    `json:"enabled"`
}

// GetMemory returns the caller's memory blob and enablement flag
// GET /api/users/me/memory
func (h *MemoryHandler) GetMemory(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)

	user, err := h.memory.GetMemory(r.Context(), userID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, memoryResponse{
		Memory:  user.Memory,
		Enabled: user.MemoryEnabled,
	})
}

// UpdateMemory replaces the memory blob and/or toggles injection
// PATCH /api/users/me/memory
func (h *MemoryHandler) UpdateMemory(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)

	var req struct {
		Memory  *string `json:"memory"`
		Enabled bool    `json:"enabled"`
	}
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.memory.UpdateMemory(r.Context(), userID, req.Memory, req.Enabled); err != nil {
		handleError(w, err)
		return
	}

	user, err := h.memory.GetMemory(r.Context(), userID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, memoryResponse{
		Memory:  user.Memory,
		Enabled: user.MemoryEnabled,
	})
}
