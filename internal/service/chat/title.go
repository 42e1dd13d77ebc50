package chat

import (
	"context"
	"fmt"
	"strings"

	domainChat "prism/internal/domain/services/chat"
)

const (
	titlePromptSystem = `You generate short conversation titles. Respond with only the title: at most six words, no quotes, no trailing punctuation.`

	titleMaxRunes = 80
)

// generateTitle makes the non-streamed side call that names a conversation
// after its first completed exchange.
func generateTitle(ctx context.Context, provider domainChat.LLMProvider, model, userText, assistantText string) (string, error) {
	prompt := fmt.Sprintf("Title this conversation.\n\nUser: %s\n\nAssistant: %s", truncate(userText, 500), truncate(assistantText, 500))

	title, err := provider.GenerateText(ctx, model, titlePromptSystem, prompt)
	if err != nil {
		return "", fmt.Errorf("generate title: %w", err)
	}

	title = strings.TrimSpace(strings.Trim(strings.TrimSpace(title), `"`))
	if title == "" {
		return "", fmt.Errorf("generate title: empty response")
	}
	return truncate(title, titleMaxRunes), nil
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
