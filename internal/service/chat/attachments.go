package chat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"prism/internal/domain"
	chatModels "prism/internal/domain/models/chat"
	"prism/internal/storage"
)

// AttachmentIngestor validates and uploads the files of one turn. The size
// pre-check runs over the whole batch before any byte leaves the process, so
// a single oversized file rejects the turn without partial uploads.
type AttachmentIngestor struct {
	store  storage.ObjectStore
	logger *slog.Logger
}

// NewAttachmentIngestor creates an ingestor backed by the given object store.
func NewAttachmentIngestor(store storage.ObjectStore, logger *slog.Logger) *AttachmentIngestor {
	return &AttachmentIngestor{store: store, logger: logger}
}

// Ingest uploads all attachments and returns copies carrying the storage URL
// instead of inline bytes. An oversized file fails the whole batch with
// domain.ErrFileTooLarge before any upload starts; an upload failure rolls
// back the uploads that already succeeded.
func (ing *AttachmentIngestor) Ingest(ctx context.Context, userID, conversationID string, attachments []chatModels.Attachment) ([]chatModels.Attachment, error) {
	if len(attachments) == 0 {
		return nil, nil
	}
	if ing.store == nil {
		return nil, &domain.ValidationError{Message: "attachment storage is not configured"}
	}

	for _, att := range attachments {
		if len(att.Data) > chatModels.MaxAttachmentBytes {
			return nil, fmt.Errorf("attachment %s is %d bytes: %w", att.Name, len(att.Data), domain.ErrFileTooLarge)
		}
	}

	stored := make([]chatModels.Attachment, 0, len(attachments))
	var uploadedKeys []string

	for _, att := range attachments {
		key := fmt.Sprintf("%s/%s/%s", userID, conversationID, uuid.NewString())

		url, err := ing.store.UploadFile(ctx, key, att.Data, att.ContentType)
		if err != nil {
			ing.rollback(ctx, uploadedKeys)
			return nil, fmt.Errorf("upload attachment %s: %w", att.Name, err)
		}
		uploadedKeys = append(uploadedKeys, key)

		stored = append(stored, chatModels.Attachment{
			Name:        att.Name,
			ContentType: att.ContentType,
			URL:         url,
		})
	}

	return stored, nil
}

// rollback deletes uploads from a batch that later failed. Best effort: the
// batch already failed, so leftover objects are only storage garbage.
func (ing *AttachmentIngestor) rollback(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := ing.store.DeleteFile(ctx, key); err != nil {
			ing.logger.Warn("failed to roll back attachment upload", "key", key, "error", err)
		}
	}
}
