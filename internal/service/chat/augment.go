package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	chatModels "prism/internal/domain/models/chat"
	chatRepo "prism/internal/domain/repositories/chat"
	domainChat "prism/internal/domain/services/chat"
	"prism/internal/search"
)

const (
	academicMaxResults = 5

	memoryWriteTimeout = 10 * time.Second
)

// Augmenter composes the final system prompt for a turn. Two independent
// augmentations apply in a fixed order on top of the base prompt: stored
// user memory first, then academic retrieval.
type Augmenter struct {
	users  chatRepo.UserRepository
	search search.Client
	logger *slog.Logger
}

// NewAugmenter creates an augmenter. search may be nil when no retrieval
// backend is configured; academic mode then degrades to no augmentation.
func NewAugmenter(users chatRepo.UserRepository, searchClient search.Client, logger *slog.Logger) *Augmenter {
	return &Augmenter{users: users, search: searchClient, logger: logger}
}

// Augmentation is the result of preparing one turn's prompt.
type Augmentation struct {
	// System is the composed system prompt.
	System string

	// Tools registered for this turn (currently only the memory tool).
	Tools []domainChat.ToolDefinition

	// Sources retrieved by academic mode, appended to the committed
	// assistant message after streaming completes.
	Sources []chatModels.Source

	// MeterAcademic reports whether the retrieval step consumed a metered
	// unit this turn.
	MeterAcademic bool
}

// Prepare builds the system prompt and tool set for one turn. Memory applies
// when the user enabled it; academic retrieval applies when requested and a
// search backend is configured. A retrieval failure degrades silently to an
// unaugmented prompt rather than failing the turn.
func (a *Augmenter) Prepare(ctx context.Context, user *chatModels.User, messages []chatModels.Message, academicMode, supportsTools bool) *Augmentation {
	aug := &Augmentation{System: baseSystemPrompt}

	a.applyMemory(aug, user, supportsTools)

	if academicMode && a.search != nil {
		a.applyAcademic(ctx, aug, user, messages)
	}

	return aug
}

func (a *Augmenter) applyMemory(aug *Augmentation, user *chatModels.User, supportsTools bool) {
	if !user.MemoryEnabled {
		return
	}

	if user.HasMemory() {
		aug.System += memoryPromptHeader + *user.Memory
	}

	if supportsTools {
		aug.System += memoryToolHint
		aug.Tools = append(aug.Tools, a.memoryTool(user.ID))
	}
}

func (a *Augmenter) applyAcademic(ctx context.Context, aug *Augmentation, user *chatModels.User, messages []chatModels.Message) {
	query := academicQuery(messages)
	if query == "" {
		return
	}

	results, err := a.search.Search(ctx, query, academicMaxResults)
	if err != nil {
		a.logger.Warn("academic retrieval failed, continuing without sources",
			"user_id", user.ID,
			"error", err,
		)
		return
	}
	if len(results) == 0 {
		return
	}

	// Retrieval is metered as its own unit, separate from the model turn
	consumed, err := a.users.DecrementFreeMessages(ctx, user.ID)
	if err != nil {
		a.logger.Error("failed to meter academic retrieval", "user_id", user.ID, "error", err)
	}
	aug.MeterAcademic = consumed

	var b strings.Builder
	b.WriteString(academicPromptHeader)
	for i, r := range results {
		fmt.Fprintf(&b, "\n[%d] %s\n%s\n%s\n", i+1, r.Title, r.URL, r.Snippet)
		aug.Sources = append(aug.Sources, chatModels.Source{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Snippet,
		})
	}
	b.WriteString(academicPromptFooter)
	aug.System += b.String()
}

// memoryTool returns the tool definition the model may call to persist a new
// fact. Persistence is fire-and-forget: the append runs detached from the
// stream so a slow write never stalls token delivery.
func (a *Augmenter) memoryTool(userID string) domainChat.ToolDefinition {
	return domainChat.ToolDefinition{
		Name:        "remember_fact",
		Description: "Save a lasting fact about the user for future conversations. Use one short sentence per fact.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"fact": map[string]interface{}{
					"type":        "string",
					"description": "The fact to remember, as one short sentence.",
				},
			},
			"required": []string{"fact"},
		},
		Execute: func(ctx context.Context, input map[string]interface{}) (string, error) {
			fact, ok := input["fact"].(string)
			if !ok || strings.TrimSpace(fact) == "" {
				return "", fmt.Errorf("missing required parameter: fact (string)")
			}
			fact = strings.TrimSpace(fact)

			go func() {
				bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), memoryWriteTimeout)
				defer cancel()
				if err := a.users.AppendMemory(bg, userID, fact); err != nil {
					a.logger.Warn("failed to append memory fact", "user_id", userID, "error", err)
				}
			}()

			return "Fact saved.", nil
		},
	}
}

// academicQuery derives the retrieval query from the newest user message.
func academicQuery(messages []chatModels.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == chatModels.RoleUser {
			return strings.TrimSpace(messages[i].Text())
		}
	}
	return ""
}
