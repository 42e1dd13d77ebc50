package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	chatModels "prism/internal/domain/models/chat"
	domainChat "prism/internal/domain/services/chat"
)

// Base URLs for the OpenAI-compatible provider families. OpenAI itself uses
// the client default.
const (
	BaseURLXAI        = "https://api.x.ai/v1"
	BaseURLDeepSeek   = "https://api.deepseek.com/v1"
	BaseURLPerplexity = "https://api.perplexity.ai"
	BaseURLFireworks  = "https://api.fireworks.ai/inference/v1"
)

// Provider implements the LLMProvider interface for any provider speaking
// the OpenAI chat-completions protocol (OpenAI, xAI, DeepSeek, Perplexity,
// Fireworks). One instance serves one family.
type Provider struct {
	family string
	client *openai.Client
}

// NewProvider creates a provider for one OpenAI-compatible family. baseURL
// may be empty for OpenAI itself.
func NewProvider(family, apiKey, baseURL string) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%s API key is required", family)
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &Provider{
		family: family,
		client: openai.NewClientWithConfig(cfg),
	}, nil
}

// Name returns the provider family name.
func (p *Provider) Name() string {
	return p.family
}

func (p *Provider) buildRequest(req *domainChat.GenerateRequest) openai.ChatCompletionRequest {
	out := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: convertMessages(req.System, req.Messages),
	}

	if req.Options.MaxTokens > 0 {
		out.MaxCompletionTokens = req.Options.MaxTokens
	}
	if req.Options.Temperature != nil {
		out.Temperature = float32(*req.Options.Temperature)
	}
	if len(req.Tools) > 0 {
		out.Tools = convertTools(req.Tools)
	}

	return out
}

// StreamResponse generates a streaming chat completion.
func (p *Provider) StreamResponse(ctx context.Context, req *domainChat.GenerateRequest) (<-chan domainChat.StreamEvent, error) {
	apiReq := p.buildRequest(req)
	apiReq.Stream = true
	apiReq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := p.client.CreateChatCompletionStream(ctx, apiReq)
	if err != nil {
		return nil, fmt.Errorf("%s stream start failed: %w", p.family, err)
	}

	eventChan := make(chan domainChat.StreamEvent, 10)

	go func() {
		defer close(eventChan)
		defer stream.Close()

		var (
			usage      *domainChat.TokenUsage
			stopReason = domainChat.StopReasonEndTurn
			toolCalls  = newToolCallAccumulator()
		)

		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				eventChan <- domainChat.StreamEvent{Type: domainChat.EventError, Err: fmt.Errorf("%s streaming error: %w", p.family, err)}
				return
			}

			if chunk.Usage != nil {
				usage = &domainChat.TokenUsage{
					InputTokens:  chunk.Usage.PromptTokens,
					OutputTokens: chunk.Usage.CompletionTokens,
				}
			}

			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]

			if choice.Delta.ReasoningContent != "" {
				p.send(ctx, eventChan, domainChat.StreamEvent{Type: domainChat.EventReasoning, Delta: choice.Delta.ReasoningContent})
			}
			if choice.Delta.Content != "" {
				p.send(ctx, eventChan, domainChat.StreamEvent{Type: domainChat.EventText, Delta: choice.Delta.Content})
			}
			for _, tc := range choice.Delta.ToolCalls {
				toolCalls.add(tc)
			}

			if choice.FinishReason != "" {
				stopReason = normalizeFinishReason(choice.FinishReason)
			}
		}

		for _, call := range toolCalls.complete() {
			eventChan <- domainChat.StreamEvent{Type: domainChat.EventToolCall, ToolCall: call}
		}

		eventChan <- domainChat.StreamEvent{
			Type:       domainChat.EventDone,
			Usage:      usage,
			StopReason: stopReason,
		}
	}()

	return eventChan, nil
}

func (p *Provider) send(ctx context.Context, ch chan<- domainChat.StreamEvent, ev domainChat.StreamEvent) {
	select {
	case ch <- ev:
	case <-ctx.Done():
	}
}

// GenerateText performs a small non-streamed completion.
func (p *Provider) GenerateText(ctx context.Context, model, system, prompt string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%s API call failed: %w", p.family, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s returned no choices", p.family)
	}
	return resp.Choices[0].Message.Content, nil
}

func normalizeFinishReason(reason openai.FinishReason) string {
	switch reason {
	case openai.FinishReasonLength:
		return domainChat.StopReasonMaxTokens
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		return domainChat.StopReasonToolUse
	case openai.FinishReasonContentFilter:
		return domainChat.StopReasonFilter
	default:
		return domainChat.StopReasonEndTurn
	}
}

func convertTools(tools []domainChat.ToolDefinition) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, tool := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.InputSchema,
			},
		})
	}
	return out
}

func convertMessages(system string, messages []chatModels.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}

	for _, msg := range messages {
		text := renderMessageText(&msg)
		if text == "" {
			continue
		}
		role := openai.ChatMessageRoleUser
		if msg.Role == chatModels.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: text})
	}
	return out
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

// toolCallAccumulator reassembles tool calls whose arguments arrive as
// incremental JSON fragments across chunks.
type toolCallAccumulator struct {
	order []int
	calls map[int]*partialToolCall
}

type partialToolCall struct {
	id   string
	name string
	args strings.Builder
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{calls: make(map[int]*partialToolCall)}
}

func (a *toolCallAccumulator) add(tc openai.ToolCall) {
	index := 0
	if tc.Index != nil {
		index = *tc.Index
	}

	call, ok := a.calls[index]
	if !ok {
		call = &partialToolCall{}
		a.calls[index] = call
		a.order = append(a.order, index)
	}
	if tc.ID != "" {
		call.id = tc.ID
	}
	if tc.Function.Name != "" {
		call.name = tc.Function.Name
	}
	call.args.WriteString(tc.Function.Arguments)
}

func (a *toolCallAccumulator) complete() []*domainChat.ToolCall {
	out := make([]*domainChat.ToolCall, 0, len(a.order))
	for _, index := range a.order {
		call := a.calls[index]
		input := make(map[string]interface{})
		if raw := call.args.String(); raw != "" {
			_ = json.Unmarshal([]byte(raw), &input)
		}
		out = append(out, &domainChat.ToolCall{ID: call.id, Name: call.name, Input: input})
	}
	return out
}
