package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"prism/internal/capabilities"
	"prism/internal/domain"
	chatModels "prism/internal/domain/models/chat"
	chatRepo "prism/internal/domain/repositories/chat"
	domainChat "prism/internal/domain/services/chat"
)

const (
	// generationTimeout bounds one turn's server-side generation and commit.
	generationTimeout = 60 * time.Second

	// maxToolRounds caps tool-call round-trips within one turn.
	maxToolRounds = 5

	// tokenPacing is the fixed inter-chunk delay on emitted text. Purely a
	// rendering smoothness device.
	tokenPacing = 10 * time.Millisecond
)

// ProviderResolver maps a provider family name to its adapter.
type ProviderResolver interface {
	Provider(family string) (domainChat.LLMProvider, bool)
}

// Orchestrator runs one chat turn end to end: early rejection, locking,
// attachment ingest, augmentation, streaming generation, and commit. It is
// the only component that sets or clears conversation locks.
type Orchestrator struct {
	registry      *capabilities.Registry
	providers     ProviderResolver
	conversations chatRepo.ConversationRepository
	messages      chatRepo.MessageRepository
	users         chatRepo.UserRepository
	locks         *LockManager
	ingestor      *AttachmentIngestor
	augmenter     *Augmenter
	logger        *slog.Logger

	timeout time.Duration
	pacing  time.Duration
}

// NewOrchestrator wires the turn pipeline.
func NewOrchestrator(
	registry *capabilities.Registry,
	providers ProviderResolver,
	conversations chatRepo.ConversationRepository,
	messages chatRepo.MessageRepository,
	users chatRepo.UserRepository,
	locks *LockManager,
	ingestor *AttachmentIngestor,
	augmenter *Augmenter,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		registry:      registry,
		providers:     providers,
		conversations: conversations,
		messages:      messages,
		users:         users,
		locks:         locks,
		ingestor:      ingestor,
		augmenter:     augmenter,
		logger:        logger,
		timeout:       generationTimeout,
		pacing:        tokenPacing,
	}
}

// StartTurn validates and stages one user turn, then starts generation.
// All early rejections happen synchronously before the stream is returned:
// unknown model, exhausted quota, lock contention, and oversized attachments
// each surface as their domain sentinel with no generation started. Once a
// stream is returned, generation and commit run to completion server-side
// regardless of the client connection.
func (o *Orchestrator) StartTurn(ctx context.Context, req *domainChat.TurnRequest) (*domainChat.TurnStream, error) {
	caps, err := o.registry.Resolve(req.Model)
	if err != nil {
		return nil, err
	}

	provider, ok := o.providers.Provider(caps.Provider)
	if !ok {
		return nil, fmt.Errorf("provider %s not configured: %w", caps.Provider, domain.ErrInvalidModel)
	}

	user, err := o.users.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if user.FreeMessages <= 0 {
		return nil, domain.ErrOutOfMessages
	}

	conv, err := o.getOrCreateConversation(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := o.locks.Acquire(ctx, conv.ID); err != nil {
		return nil, err
	}

	// Lock held: every failure below must release it
	stream, err := o.stageAndStart(ctx, req, conv, user, caps, provider)
	if err != nil {
		o.locks.Release(context.WithoutCancel(ctx), conv.ID)
		return nil, err
	}
	return stream, nil
}

// stageAndStart runs the locked pre-generation stages and launches the
// generation goroutine. The caller releases the lock if this fails; after a
// successful return the goroutine owns the release.
func (o *Orchestrator) stageAndStart(
	ctx context.Context,
	req *domainChat.TurnRequest,
	conv *chatModels.Conversation,
	user *chatModels.User,
	caps *capabilities.ModelCapabilities,
	provider domainChat.LLMProvider,
) (*domainChat.TurnStream, error) {
	stored, err := o.ingestor.Ingest(ctx, req.UserID, conv.ID, req.Attachments)
	if err != nil {
		return nil, err
	}

	history, err := o.messages.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	userMsg := &chatModels.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           chatModels.RoleUser,
		Content:        &req.Text,
		Parts:          []chatModels.Part{{Type: chatModels.PartTypeText, Text: req.Text}},
		Attachments:    stored,
		CreatedAt:      time.Now().UTC(),
	}
	if err := o.messages.CreateMessage(ctx, userMsg); err != nil {
		return nil, err
	}
	history = append(history, *userMsg)

	filtered := FilterForModel(history, caps)

	var tools []domainChat.ToolDefinition
	aug := o.augmenter.Prepare(ctx, user, filtered, req.AcademicMode, caps.SupportsTools)
	if caps.SupportsTools {
		tools = aug.Tools
	}

	genReq := &domainChat.GenerateRequest{
		Model:    caps.ID,
		System:   aug.System,
		Messages: filtered,
		Tools:    tools,
		Options: domainChat.ProviderOptions{
			MaxTokens:      caps.MaxOutput,
			Temperature:    caps.ForceTemperature,
			ThinkingBudget: caps.ThinkingBudget,
		},
	}

	stream := domainChat.NewTurnStream()

	// Generation is detached from the request context: a client disconnect
	// must not cancel the commit or strand the lock. The timeout is the only
	// cancellation source.
	genCtx, cancel := context.WithTimeout(context.Background(), o.timeout)

	go func() {
		defer cancel()
		defer stream.Close()
		defer o.locks.Release(context.Background(), conv.ID)

		o.runGeneration(genCtx, stream, provider, genReq, conv, user, userMsg, aug)
	}()

	return stream, nil
}

func (o *Orchestrator) getOrCreateConversation(ctx context.Context, req *domainChat.TurnRequest) (*chatModels.Conversation, error) {
	if req.ConversationID != "" {
		conv, err := o.conversations.GetConversation(ctx, req.ConversationID, req.UserID)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	conv := &chatModels.Conversation{
		ID:            req.ConversationID,
		UserID:        req.UserID,
		Title:         chatModels.DefaultTitle,
		Model:         req.Model,
		LastMessageAt: time.Now().UTC(),
		CreatedAt:     time.Now().UTC(),
	}
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if err := o.conversations.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// runGeneration drives the provider stream through tool rounds, emits client
// events, and commits on success. The surrounding deferred unlock makes the
// lock-release invariant hold on every path out of this function, including
// panics and the generation timeout.
func (o *Orchestrator) runGeneration(
	ctx context.Context,
	stream *domainChat.TurnStream,
	provider domainChat.LLMProvider,
	genReq *domainChat.GenerateRequest,
	conv *chatModels.Conversation,
	user *chatModels.User,
	userMsg *chatModels.Message,
	aug *Augmentation,
) {
	stream.Emit(domainChat.TurnEvent{
		Type: chatModels.SSEEventStart,
		Data: chatModels.StartEvent{ConversationID: conv.ID, Model: genReq.Model},
	})

	acc := newTurnAccumulator()

	for round := 0; ; round++ {
		usage, stopReason, err := o.streamOneRound(ctx, stream, provider, genReq, acc)
		if err != nil {
			o.failTurn(ctx, stream, conv, err)
			return
		}
		acc.addUsage(usage)

		if stopReason != domainChat.StopReasonToolUse {
			if stopReason == domainChat.StopReasonFilter {
				o.failTurn(ctx, stream, conv, domain.ErrContentFilter)
				return
			}
			break
		}

		if round+1 >= maxToolRounds {
			o.logger.Warn("tool round limit reached", "conversation_id", conv.ID, "rounds", maxToolRounds)
			break
		}

		results := o.executeTools(ctx, genReq.Tools, acc.pendingToolCalls())
		genReq.Messages = acc.appendToolRound(genReq.Messages, results)
	}

	o.commitTurn(ctx, stream, conv, user, userMsg, acc, aug, provider, genReq.Model)
}

// streamOneRound consumes one provider stream until its terminal event.
func (o *Orchestrator) streamOneRound(
	ctx context.Context,
	stream *domainChat.TurnStream,
	provider domainChat.LLMProvider,
	genReq *domainChat.GenerateRequest,
	acc *turnAccumulator,
) (*domainChat.TokenUsage, string, error) {
	events, err := provider.StreamResponse(ctx, genReq)
	if err != nil {
		return nil, "", err
	}

	for {
		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		case ev, open := <-events:
			if !open {
				return nil, domainChat.StopReasonEndTurn, nil
			}

			switch ev.Type {
			case domainChat.EventText:
				acc.addText(ev.Delta)
				stream.Emit(domainChat.TurnEvent{
					Type: chatModels.SSEEventText,
					Data: chatModels.TextEvent{Delta: ev.Delta},
				})
				o.pace(ctx)

			case domainChat.EventReasoning:
				acc.addReasoning(ev.Delta)
				stream.Emit(domainChat.TurnEvent{
					Type: chatModels.SSEEventReasoning,
					Data: chatModels.ReasoningEvent{Delta: ev.Delta},
				})
				o.pace(ctx)

			case domainChat.EventSignature:
				acc.setSignature(ev.Delta)

			case domainChat.EventToolCall:
				if ev.ToolCall != nil {
					acc.addToolCall(ev.ToolCall)
				}

			case domainChat.EventDone:
				return ev.Usage, ev.StopReason, nil

			case domainChat.EventError:
				return nil, "", ev.Err
			}
		}
	}
}

// pace applies the fixed inter-chunk delay without outliving the turn.
func (o *Orchestrator) pace(ctx context.Context) {
	if o.pacing <= 0 {
		return
	}
	select {
	case <-time.After(o.pacing):
	case <-ctx.Done():
	}
}

// executeTools runs the model's tool calls and returns their results.
func (o *Orchestrator) executeTools(ctx context.Context, tools []domainChat.ToolDefinition, calls []*domainChat.ToolCall) []toolResult {
	byName := make(map[string]domainChat.ToolDefinition, len(tools))
	for _, tool := range tools {
		byName[tool.Name] = tool
	}

	results := make([]toolResult, 0, len(calls))
	for _, call := range calls {
		tool, ok := byName[call.Name]
		if !ok {
			results = append(results, toolResult{call: call, output: fmt.Sprintf("unknown tool: %s", call.Name)})
			continue
		}
		output, err := tool.Execute(ctx, call.Input)
		if err != nil {
			o.logger.Warn("tool execution failed", "tool", call.Name, "error", err)
			output = fmt.Sprintf("tool error: %v", err)
		}
		results = append(results, toolResult{call: call, output: output})
	}
	return results
}

// commitTurn persists the assistant message and performs the post-generation
// side effects. Each is best-effort in isolation: a title or source failure
// never blocks the message commit, and nothing here can skip the deferred
// lock release.
func (o *Orchestrator) commitTurn(
	ctx context.Context,
	stream *domainChat.TurnStream,
	conv *chatModels.Conversation,
	user *chatModels.User,
	userMsg *chatModels.Message,
	acc *turnAccumulator,
	aug *Augmentation,
	provider domainChat.LLMProvider,
	model string,
) {
	assistantMsg := acc.assembleMessage(conv.ID)

	if err := o.messages.CreateMessage(ctx, assistantMsg); err != nil {
		o.failTurn(ctx, stream, conv, fmt.Errorf("persist assistant message: %w", err))
		return
	}

	newTitle := ""
	if conv.HasDefaultTitle() {
		title, err := generateTitle(ctx, provider, model, userMsg.Text(), assistantMsg.Text())
		if err != nil {
			o.logger.Warn("title generation failed", "conversation_id", conv.ID, "error", err)
		} else if err := o.conversations.UpdateTitle(ctx, conv.ID, title); err != nil {
			o.logger.Warn("title update failed", "conversation_id", conv.ID, "error", err)
		} else {
			newTitle = title
		}
	}

	if len(aug.Sources) > 0 {
		if err := o.messages.AppendSources(ctx, assistantMsg.ID, aug.Sources); err != nil {
			o.logger.Warn("failed to append sources", "message_id", assistantMsg.ID, "error", err)
		} else {
			for _, src := range aug.Sources {
				stream.Emit(domainChat.TurnEvent{
					Type: chatModels.SSEEventSource,
					Data: chatModels.SourceEvent{Title: src.Title, URL: src.URL, Snippet: src.Snippet},
				})
			}
		}
	}

	if err := o.conversations.TouchLastMessage(ctx, conv.ID, model, assistantMsg.CreatedAt); err != nil {
		o.logger.Warn("failed to advance last_message_at", "conversation_id", conv.ID, "error", err)
	}

	if _, err := o.users.DecrementFreeMessages(ctx, user.ID); err != nil {
		o.logger.Error("failed to decrement free messages", "user_id", user.ID, "error", err)
	}

	stream.Emit(domainChat.TurnEvent{
		Type: chatModels.SSEEventDone,
		Data: chatModels.DoneEvent{MessageID: assistantMsg.ID, Title: newTitle},
	})
}

// failTurn reports a stream-level failure. No assistant message is persisted
// on this path; the user message from the staging phase remains.
func (o *Orchestrator) failTurn(ctx context.Context, stream *domainChat.TurnStream, conv *chatModels.Conversation, err error) {
	code, _, known := domain.ClientCode(err)
	if !known {
		code = "stream_error"
	}

	o.logger.Error("turn generation failed",
		"conversation_id", conv.ID,
		"code", code,
		"error", err,
	)

	stream.Emit(domainChat.TurnEvent{
		Type: chatModels.SSEEventError,
		Data: chatModels.ErrorEvent{Code: code},
	})
}

// turnAccumulator assembles the assistant message from stream deltas.
type turnAccumulator struct {
	text      strings.Builder
	reasoning strings.Builder
	signature string
	toolCalls []*domainChat.ToolCall
	toolParts []chatModels.Part
	input     int
	output    int
}

type toolResult struct {
	call   *domainChat.ToolCall
	output string
}

func newTurnAccumulator() *turnAccumulator {
	return &turnAccumulator{}
}

func (a *turnAccumulator) addText(delta string)      { a.text.WriteString(delta) }
func (a *turnAccumulator) addReasoning(delta string) { a.reasoning.WriteString(delta) }
func (a *turnAccumulator) setSignature(sig string)   { a.signature = sig }

func (a *turnAccumulator) addToolCall(call *domainChat.ToolCall) {
	a.toolCalls = append(a.toolCalls, call)
}

func (a *turnAccumulator) pendingToolCalls() []*domainChat.ToolCall {
	calls := a.toolCalls
	a.toolCalls = nil
	return calls
}

func (a *turnAccumulator) addUsage(usage *domainChat.TokenUsage) {
	if usage == nil {
		return
	}
	a.input += usage.InputTokens
	a.output += usage.OutputTokens
}

// appendToolRound records executed tool invocations and extends the provider
// message list so the next round sees the results.
func (a *turnAccumulator) appendToolRound(messages []chatModels.Message, results []toolResult) []chatModels.Message {
	var parts []chatModels.Part
	for _, res := range results {
		parts = append(parts, chatModels.Part{
			Type: chatModels.PartTypeTool,
			Tool: &chatModels.ToolInvocation{
				Name:   res.call.Name,
				Input:  res.call.Input,
				Result: res.output,
			},
		})
	}
	a.toolParts = append(a.toolParts, parts...)

	return append(messages, chatModels.Message{
		Role:      chatModels.RoleAssistant,
		Parts:     parts,
		CreatedAt: time.Now().UTC(),
	})
}

// assembleMessage builds the final assistant message from everything
// accumulated during generation.
func (a *turnAccumulator) assembleMessage(conversationID string) *chatModels.Message {
	var parts []chatModels.Part

	if a.reasoning.Len() > 0 {
		detail := chatModels.ReasoningDetail{
			Kind:      chatModels.ReasoningDetailText,
			Text:      a.reasoning.String(),
			Signature: a.signature,
		}
		parts = append(parts, chatModels.Part{
			Type:    chatModels.PartTypeReasoning,
			Details: []chatModels.ReasoningDetail{detail},
		})
	}

	parts = append(parts, a.toolParts...)

	text := a.text.String()
	parts = append(parts, chatModels.Part{Type: chatModels.PartTypeText, Text: text})

	msg := &chatModels.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           chatModels.RoleAssistant,
		Content:        &text,
		Parts:          parts,
		CreatedAt:      time.Now().UTC(),
	}
	if a.input > 0 || a.output > 0 {
		msg.InputTokens = &a.input
		msg.OutputTokens = &a.output
	}
	return msg
}
