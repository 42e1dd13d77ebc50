package chat

import (
	"context"

	chatModels "prism/internal/domain/models/chat"
)

// UserRepository persists account state. The free-message counter mutations
// are atomic at the SQL level: a turn may decrement more than once (academic
// retrieval plus the final commit) and concurrent turns must never drive the
// counter below zero.
type UserRepository interface {
	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, userID string) (*chatModels.User, error)

	// DecrementFreeMessages atomically consumes one unit. Returns false
	// when the counter was already zero (nothing consumed).
	DecrementFreeMessages(ctx context.Context, userID string) (bool, error)

	// CreditFreeMessages atomically adds units; invoked by the billing
	// webhook collaborator, never by the turn pipeline.
	CreditFreeMessages(ctx context.Context, userID string, amount int) error

	// UpdateMemory replaces the memory blob and enable flag.
	UpdateMemory(ctx context.Context, userID string, memory *string, enabled bool) error

	// AppendMemory appends a fact to the memory blob (newline separated).
	AppendMemory(ctx context.Context, userID, fact string) error
}
