package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	chatModels "prism/internal/domain/models/chat"
	domainChat "prism/internal/domain/services/chat"
)

const defaultMaxTokens = 4096

// Provider implements the LLMProvider interface for Anthropic (Claude) models.
type Provider struct {
	client *anthropic.Client
}

// NewProvider creates a new Anthropic provider with the given API key.
func NewProvider(apiKey string) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	return &Provider{
		client: &client,
	}, nil
}

// Name returns the provider family name.
func (p *Provider) Name() string {
	return "anthropic"
}

func (p *Provider) buildParams(req *domainChat.GenerateRequest) anthropic.MessageNewParams {
	maxTokens := int64(req.Options.MaxTokens)
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  convertMessages(req.Messages),
		MaxTokens: maxTokens,
	}

	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{
				Type: "text",
				Text: req.System,
			},
		}
	}

	if req.Options.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Options.Temperature)
	}

	if req.Options.ThinkingBudget != nil && *req.Options.ThinkingBudget > 0 {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(int64(*req.Options.ThinkingBudget))
	}

	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}

	return params
}

// StreamResponse generates a streaming response from Claude.
// Events arrive on the returned channel; it closes after a terminal Done or
// Error event.
func (p *Provider) StreamResponse(ctx context.Context, req *domainChat.GenerateRequest) (<-chan domainChat.StreamEvent, error) {
	params := p.buildParams(req)

	eventChan := make(chan domainChat.StreamEvent, 10)

	go func() {
		defer close(eventChan)

		stream := p.client.Messages.NewStreaming(ctx, params)

		// Accumulator for final message metadata and tool inputs
		message := anthropic.Message{}

		for stream.Next() {
			event := stream.Current()

			if err := message.Accumulate(event); err != nil {
				eventChan <- domainChat.StreamEvent{Type: domainChat.EventError, Err: fmt.Errorf("failed to accumulate message: %w", err)}
				return
			}

			for _, out := range transformStreamEvent(event) {
				select {
				case <-ctx.Done():
					eventChan <- domainChat.StreamEvent{Type: domainChat.EventError, Err: ctx.Err()}
					return
				case eventChan <- out:
				}
			}
		}

		if err := stream.Err(); err != nil {
			eventChan <- domainChat.StreamEvent{Type: domainChat.EventError, Err: fmt.Errorf("anthropic streaming error: %w", err)}
			return
		}

		// Tool inputs only become complete JSON once accumulation finishes
		for _, block := range message.Content {
			if tool, ok := block.AsAny().(anthropic.ToolUseBlock); ok {
				eventChan <- domainChat.StreamEvent{
					Type: domainChat.EventToolCall,
					ToolCall: &domainChat.ToolCall{
						ID:    tool.ID,
						Name:  tool.Name,
						Input: decodeToolInput(tool.JSON.Input.Raw()),
					},
				}
			}
		}

		eventChan <- domainChat.StreamEvent{
			Type: domainChat.EventDone,
			Usage: &domainChat.TokenUsage{
				InputTokens:  int(message.Usage.InputTokens),
				OutputTokens: int(message.Usage.OutputTokens),
			},
			StopReason: normalizeStopReason(string(message.StopReason)),
		}
	}()

	return eventChan, nil
}

// GenerateText performs a small non-streamed completion, used for title
// generation.
func (p *Provider) GenerateText(ctx context.Context, model, system, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 64,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: system}}
	}

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic API call failed: %w", err)
	}

	var b strings.Builder
	for _, block := range message.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(text.Text)
		}
	}
	return b.String(), nil
}

// transformStreamEvent converts one Anthropic streaming event into zero or
// more domain events. Tool calls are not emitted here; their JSON input is
// only complete after accumulation.
func transformStreamEvent(event anthropic.MessageStreamEventUnion) []domainChat.StreamEvent {
	switch e := event.AsAny().(type) {
	case anthropic.ContentBlockDeltaEvent:
		switch e.Delta.Type {
		case "text_delta":
			return []domainChat.StreamEvent{{Type: domainChat.EventText, Delta: e.Delta.Text}}
		case "thinking_delta":
			return []domainChat.StreamEvent{{Type: domainChat.EventReasoning, Delta: e.Delta.Thinking}}
		case "signature_delta":
			return []domainChat.StreamEvent{{Type: domainChat.EventSignature, Delta: e.Delta.Signature}}
		}
	}
	return nil
}

// decodeToolInput parses the accumulated tool input JSON. A malformed input
// yields an empty map; the tool itself reports the missing parameters.
func decodeToolInput(raw string) map[string]interface{} {
	input := make(map[string]interface{})
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &input)
	}
	return input
}

func normalizeStopReason(reason string) string {
	switch reason {
	case "max_tokens":
		return domainChat.StopReasonMaxTokens
	case "tool_use":
		return domainChat.StopReasonToolUse
	case "refusal":
		return domainChat.StopReasonFilter
	default:
		return domainChat.StopReasonEndTurn
	}
}

// convertTools maps domain tool definitions to Anthropic tool params.
func convertTools(tools []domainChat.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		properties := tool.InputSchema["properties"]
		required, _ := tool.InputSchema["required"].([]string)

		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: properties,
					Required:   required,
				},
			},
		})
	}
	return out
}

// convertMessages maps the filtered history to Anthropic message params. The
// filter has already removed anything this family rejects.
func convertMessages(messages []chatModels.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))

	for _, msg := range messages {
		text := renderMessageText(&msg)
		if text == "" {
			continue
		}

		block := anthropic.NewTextBlock(text)
		if msg.Role == chatModels.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}

// renderMessageText flattens a message's parts into the text handed to the
// provider, with attachment references appended.
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
