package chat

import (
	"context"
	"log/slog"

	"prism/internal/domain"
	chatModels "prism/internal/domain/models/chat"
	chatRepo "prism/internal/domain/repositories/chat"
	domainChat "prism/internal/domain/services/chat"
)

// maxMemoryBytes caps the stored memory blob.
const maxMemoryBytes = 16 << 10

// MemoryService manages the user's long-lived memory blob.
type MemoryService struct {
	users  chatRepo.UserRepository
	logger *slog.Logger
}

// NewMemoryService creates a MemoryService.
func NewMemoryService(users chatRepo.UserRepository, logger *slog.Logger) domainChat.MemoryService {
	return &MemoryService{users: users, logger: logger}
}

// GetMemory returns the user with their memory blob and enable flag.
func (s *MemoryService) GetMemory(ctx context.Context, userID string) (*chatModels.User, error) {
	return s.users.GetUser(ctx, userID)
}

// UpdateMemory replaces the memory blob and enable flag.
func (s *MemoryService) UpdateMemory(ctx context.Context, userID string, memory *string, enabled bool) error {
	if memory != nil && len(*memory) > maxMemoryBytes {
		return &domain.ValidationError{Message: "memory exceeds the maximum size"}
	}
	return s.users.UpdateMemory(ctx, userID, memory, enabled)
}
