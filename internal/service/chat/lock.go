package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"prism/internal/domain"
	chatRepo "prism/internal/domain/repositories/chat"
)

const (
	lockMaxAttempts = 15
	lockRetryDelay  = 200 * time.Millisecond
)

// LockManager serializes turns per conversation. Acquisition is the
// repository's compare-and-set on the locked flag; contention is handled by
// bounded retries, capping the worst-case wait at about 3 seconds before the
// caller gets a conversation-locked error.
type LockManager struct {
	conversations chatRepo.ConversationRepository
	logger        *slog.Logger

	maxAttempts int
	retryDelay  time.Duration
}

// NewLockManager creates a lock manager with the standard retry bounds.
func NewLockManager(conversations chatRepo.ConversationRepository, logger *slog.Logger) *LockManager {
	return &LockManager{
		conversations: conversations,
		logger:        logger,
		maxAttempts:   lockMaxAttempts,
		retryDelay:    lockRetryDelay,
	}
}

// Acquire attempts to take the conversation lock, retrying on contention.
// Returns domain.ErrConversationLocked once retries are exhausted.
func (m *LockManager) Acquire(ctx context.Context, conversationID string) error {
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		won, err := m.conversations.TryLock(ctx, conversationID)
		if err != nil {
			return fmt.Errorf("lock attempt %d: %w", attempt, err)
		}
		if won {
			return nil
		}

		if attempt == m.maxAttempts {
			break
		}

		select {
		case <-time.After(m.retryDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.logger.Warn("conversation lock contention, giving up",
		"conversation_id", conversationID,
		"attempts", m.maxAttempts,
	)
	return domain.ErrConversationLocked
}

// Release clears the lock. Called exactly once per successful Acquire, on
// every exit path. Failures are logged rather than propagated since the
// caller has nothing left to unwind.
func (m *LockManager) Release(ctx context.Context, conversationID string) {
	if err := m.conversations.Unlock(ctx, conversationID); err != nil {
		m.logger.Error("failed to release conversation lock",
			"conversation_id", conversationID,
			"error", err,
		)
	}
}
