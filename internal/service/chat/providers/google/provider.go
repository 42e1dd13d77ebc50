package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	chatModels "prism/internal/domain/models/chat"
	domainChat "prism/internal/domain/services/chat"
)

// Provider implements the LLMProvider interface for Google Gemini models.
type Provider struct {
	client *genai.Client
}

// NewProvider creates a new Gemini provider with the given API key.
func NewProvider(ctx context.Context, apiKey string) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &Provider{client: client}, nil
}

// Name returns the provider family name.
func (p *Provider) Name() string {
	return "google"
}

// Close releases the underlying gRPC connection.
func (p *Provider) Close() error {
	return p.client.Close()
}

func (p *Provider) model(req *domainChat.GenerateRequest) *genai.GenerativeModel {
	m := p.client.GenerativeModel(req.Model)

	if req.System != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}
	if req.Options.MaxTokens > 0 {
		m.SetMaxOutputTokens(int32(req.Options.MaxTokens))
	}
	if req.Options.Temperature != nil {
		m.SetTemperature(float32(*req.Options.Temperature))
	}

	return m
}

// StreamResponse generates a streaming response from Gemini. The catalog
// does not enable tool calling for this family, so only text events are
// produced.
func (p *Provider) StreamResponse(ctx context.Context, req *domainChat.GenerateRequest) (<-chan domainChat.StreamEvent, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("gemini request needs at least one message")
	}

	m := p.model(req)

	session := m.StartChat()
	history, last := splitHistory(req.Messages)
	session.History = history

	eventChan := make(chan domainChat.StreamEvent, 10)

	go func() {
		defer close(eventChan)

		iter := session.SendMessageStream(ctx, genai.Text(last))

		var (
			usage      *domainChat.TokenUsage
			stopReason = domainChat.StopReasonEndTurn
		)

		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				break
			}
			if err != nil {
				eventChan <- domainChat.StreamEvent{Type: domainChat.EventError, Err: fmt.Errorf("gemini streaming error: %w", err)}
				return
			}

			if resp.UsageMetadata != nil {
				usage = &domainChat.TokenUsage{
					InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
					OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
				}
			}

			if len(resp.Candidates) == 0 {
				continue
			}
			candidate := resp.Candidates[0]

			switch candidate.FinishReason {
			case genai.FinishReasonSafety, genai.FinishReasonRecitation:
				stopReason = domainChat.StopReasonFilter
			case genai.FinishReasonMaxTokens:
				stopReason = domainChat.StopReasonMaxTokens
			}

			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				text, ok := part.(genai.Text)
				if !ok || text == "" {
					continue
				}
				select {
				case eventChan <- domainChat.StreamEvent{Type: domainChat.EventText, Delta: string(text)}:
				case <-ctx.Done():
					eventChan <- domainChat.StreamEvent{Type: domainChat.EventError, Err: ctx.Err()}
					return
				}
			}
		}

		eventChan <- domainChat.StreamEvent{
			Type:       domainChat.EventDone,
			Usage:      usage,
			StopReason: stopReason,
		}
	}()

	return eventChan, nil
}

// GenerateText performs a small non-streamed completion.
func (p *Provider) GenerateText(ctx context.Context, model, system, prompt string) (string, error) {
	m := p.client.GenerativeModel(model)
	if system != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(system)},
		}
	}

	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String(), nil
}

// splitHistory converts all but the newest message into chat history and
// returns the newest message's text to send.
func splitHistory(messages []chatModels.Message) ([]*genai.Content, string) {
	last := messages[len(messages)-1]

	history := make([]*genai.Content, 0, len(messages)-1)
	for _, msg := range messages[:len(messages)-1] {
		text := renderMessageText(&msg)
		if text == "" {
			continue
		}
		role := "user"
		if msg.Role == chatModels.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(text)},
		})
	}

	return history, renderMessageText(&last)
}

func renderMessageText(msg *chatModels.Message) string {
	var b strings.Builder
	b.WriteString(msg.Text())

	for _, part := range msg.Parts {
		if part.Type == chatModels.PartTypeTool && part.Tool != nil {
			fmt.Fprintf(&b, "\n[Tool %s returned: %s]", part.Tool.Name, part.Tool.Result)
		}
	}
	for _, att := range msg.Attachments {
		fmt.Fprintf(&b, "\n[Attached file: %s (%s) %s]", att.Name, att.ContentType, att.URL)
	}
	return strings.TrimSpace(b.String())
}
