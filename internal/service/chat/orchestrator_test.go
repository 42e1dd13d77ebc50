package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"prism/internal/capabilities"
	"prism/internal/domain"
	chatModels "prism/internal/domain/models/chat"
	domainChat "prism/internal/domain/services/chat"
	"prism/internal/search"
)

type mapResolver map[string]domainChat.LLMProvider

func (m mapResolver) Provider(family string) (domainChat.LLMProvider, bool) {
	p, ok := m[family]
	return p, ok
}

type turnFixture struct {
	orch          *Orchestrator
	conversations *memConversationRepo
	messages      *memMessageRepo
	users         *memUserRepo
	store         *memObjectStore
	provider      *scriptedProvider
	search        *scriptedSearch
}

func newTurnFixture(t *testing.T) *turnFixture {
	t.Helper()

	registry, err := capabilities.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	conversations := newMemConversationRepo()
	messages := newMemMessageRepo()
	users := newMemUserRepo()
	store := newMemObjectStore()
	sc := &scriptedSearch{}
	provider := &scriptedProvider{
		name: "anthropic",
		events: []domainChat.StreamEvent{
			{Type: domainChat.EventText, Delta: "Hello "},
			{Type: domainChat.EventText, Delta: "there"},
			{Type: domainChat.EventDone, StopReason: domainChat.StopReasonEndTurn, Usage: &domainChat.TokenUsage{InputTokens: 10, OutputTokens: 4}},
		},
	}

	logger := testLogger()
	locks := NewLockManager(conversations, logger)
	locks.retryDelay = time.Millisecond

	orch := NewOrchestrator(
		registry,
		mapResolver{"anthropic": provider},
		conversations,
		messages,
		users,
		locks,
		NewAttachmentIngestor(store, logger),
		NewAugmenter(users, sc, logger),
		logger,
	)
	orch.pacing = 0

	seedUser(users, "u1", 5, "", false)

	return &turnFixture{
		orch:          orch,
		conversations: conversations,
		messages:      messages,
		users:         users,
		store:         store,
		provider:      provider,
		search:        sc,
	}
}

func basicTurn() *domainChat.TurnRequest {
	return &domainChat.TurnRequest{
		ConversationID: "c1",
		UserID:         "u1",
		Model:          "claude-sonnet-4-5",
		Text:           "hi",
	}
}

// drain collects every event until the stream closes.
func drain(t *testing.T, stream *domainChat.TurnStream) []domainChat.TurnEvent {
	t.Helper()
	var events []domainChat.TurnEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, open := <-stream.Events():
			if !open {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("stream did not close")
		}
	}
}

func eventTypes(events []domainChat.TurnEvent) []string {
	var types []string
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	return types
}

func waitUnlocked(t *testing.T, repo *memConversationRepo, conversationID string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !repo.locked(conversationID) {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("conversation still locked")
}

func TestStartTurn_SuccessfulTurnCommits(t *testing.T) {
	f := newTurnFixture(t)

	stream, err := f.orch.StartTurn(context.Background(), basicTurn())
	if err != nil {
		t.Fatalf("StartTurn() error = %v", err)
	}

	events := drain(t, stream)
	types := eventTypes(events)
	if len(types) < 3 || types[0] != chatModels.SSEEventStart || types[len(types)-1] != chatModels.SSEEventDone {
		t.Fatalf("event types = %v, want start...done", types)
	}

	// User and assistant messages persisted
	if got := f.messages.count("c1"); got != 2 {
		t.Errorf("messages = %d, want 2", got)
	}

	// First exchange renamed the conversation
	if title := f.conversations.title("c1"); title == chatModels.DefaultTitle || title == "" {
		t.Errorf("title = %q, want generated title", title)
	}

	// One metered unit consumed
	if got := f.users.freeMessages("u1"); got != 4 {
		t.Errorf("free messages = %d, want 4", got)
	}

	waitUnlocked(t, f.conversations, "c1")
}

func TestStartTurn_InvalidModelRejectedBeforeLock(t *testing.T) {
	f := newTurnFixture(t)
	req := basicTurn()
	req.Model = "no-such-model"

	_, err := f.orch.StartTurn(context.Background(), req)
	if !errors.Is(err, domain.ErrInvalidModel) {
		t.Fatalf("StartTurn() error = %v, want ErrInvalidModel", err)
	}
	if f.conversations.locked("c1") {
		t.Error("no lock should be taken on early rejection")
	}
}

func TestStartTurn_OutOfMessagesRejectedBeforeLock(t *testing.T) {
	f := newTurnFixture(t)
	seedUser(f.users, "broke", 0, "", false)
	req := basicTurn()
	req.UserID = "broke"

	_, err := f.orch.StartTurn(context.Background(), req)
	if !errors.Is(err, domain.ErrOutOfMessages) {
		t.Fatalf("StartTurn() error = %v, want ErrOutOfMessages", err)
	}
}

func TestStartTurn_LockedConversationRejected(t *testing.T) {
	f := newTurnFixture(t)
	seedConversation(f.conversations, "c1", "u1")
	if won, _ := f.conversations.TryLock(context.Background(), "c1"); !won {
		t.Fatal("setup: could not pre-lock conversation")
	}

	_, err := f.orch.StartTurn(context.Background(), basicTurn())
	if !errors.Is(err, domain.ErrConversationLocked) {
		t.Fatalf("StartTurn() error = %v, want ErrConversationLocked", err)
	}
	if got := f.messages.count("c1"); got != 0 {
		t.Errorf("messages = %d, want 0 (no model call made)", got)
	}
}

func TestStartTurn_OversizedAttachmentReleasesLock(t *testing.T) {
	f := newTurnFixture(t)
	req := basicTurn()
	req.Attachments = []chatModels.Attachment{
		{Name: "big.pdf", ContentType: "application/pdf", Data: make([]byte, chatModels.MaxAttachmentBytes+1)},
	}

	_, err := f.orch.StartTurn(context.Background(), req)
	if !errors.Is(err, domain.ErrFileTooLarge) {
		t.Fatalf("StartTurn() error = %v, want ErrFileTooLarge", err)
	}

	if f.conversations.locked("c1") {
		t.Error("lock must be released after upload rejection")
	}
	if got := f.messages.count("c1"); got != 0 {
		t.Errorf("messages = %d, want 0", got)
	}
	if f.store.uploadCount() != 0 {
		t.Errorf("uploads = %d, want 0", f.store.uploadCount())
	}
}

func TestStartTurn_StreamErrorPersistsNoAssistantMessage(t *testing.T) {
	f := newTurnFixture(t)
	f.provider.events = []domainChat.StreamEvent{
		{Type: domainChat.EventText, Delta: "partial"},
		{Type: domainChat.EventError, Err: errors.New("provider 500")},
	}

	stream, err := f.orch.StartTurn(context.Background(), basicTurn())
	if err != nil {
		t.Fatalf("StartTurn() error = %v", err)
	}

	events := drain(t, stream)
	last := events[len(events)-1]
	if last.Type != chatModels.SSEEventError {
		t.Fatalf("last event = %q, want error", last.Type)
	}

	// Only the user message is persisted
	if got := f.messages.count("c1"); got != 1 {
		t.Errorf("messages = %d, want 1", got)
	}
	// No commit-side decrement
	if got := f.users.freeMessages("u1"); got != 5 {
		t.Errorf("free messages = %d, want 5", got)
	}
	waitUnlocked(t, f.conversations, "c1")
}

func TestStartTurn_ContentFilterCode(t *testing.T) {
	f := newTurnFixture(t)
	f.provider.events = []domainChat.StreamEvent{
		{Type: domainChat.EventDone, StopReason: domainChat.StopReasonFilter},
	}

	stream, err := f.orch.StartTurn(context.Background(), basicTurn())
	if err != nil {
		t.Fatalf("StartTurn() error = %v", err)
	}

	events := drain(t, stream)
	last := events[len(events)-1]
	errEvent, ok := last.Data.(chatModels.ErrorEvent)
	if !ok || errEvent.Code != "content_filter" {
		t.Fatalf("last event data = %#v, want ErrorEvent{Code: content_filter}", last.Data)
	}
	waitUnlocked(t, f.conversations, "c1")
}

func TestStartTurn_AbandonedClientStillCommits(t *testing.T) {
	f := newTurnFixture(t)

	stream, err := f.orch.StartTurn(context.Background(), basicTurn())
	if err != nil {
		t.Fatalf("StartTurn() error = %v", err)
	}

	// Client walks away immediately
	stream.Abandon()

	waitUnlocked(t, f.conversations, "c1")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if f.messages.count("c1") == 2 && f.users.freeMessages("u1") == 4 {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("commit incomplete: messages = %d, free = %d", f.messages.count("c1"), f.users.freeMessages("u1"))
}

func TestStartTurn_ToolRoundFeedsResultsBack(t *testing.T) {
	f := newTurnFixture(t)
	seedUser(f.users, "u1", 5, "likes Go", true)
	f.provider.scripts = [][]domainChat.StreamEvent{
		{
			{Type: domainChat.EventToolCall, ToolCall: &domainChat.ToolCall{
				ID: "t1", Name: "remember_fact", Input: map[string]interface{}{"fact": "Enjoys hiking"},
			}},
			{Type: domainChat.EventDone, StopReason: domainChat.StopReasonToolUse},
		},
		{
			{Type: domainChat.EventText, Delta: "Noted!"},
			{Type: domainChat.EventDone, StopReason: domainChat.StopReasonEndTurn},
		},
	}

	stream, err := f.orch.StartTurn(context.Background(), basicTurn())
	if err != nil {
		t.Fatalf("StartTurn() error = %v", err)
	}
	drain(t, stream)

	// Second round saw the tool result appended to the history
	req := f.provider.lastRequest()
	if req == nil {
		t.Fatal("no provider request recorded")
	}
	lastMsg := req.Messages[len(req.Messages)-1]
	if len(lastMsg.Parts) == 0 || lastMsg.Parts[0].Type != chatModels.PartTypeTool {
		t.Fatalf("last history message = %#v, want a tool invocation part", lastMsg)
	}

	waitUnlocked(t, f.conversations, "c1")
}

func TestStartTurn_AcademicSourcesAppendedAndEmitted(t *testing.T) {
	f := newTurnFixture(t)
	f.search.results = []search.Result{
		{Title: "Paper A", URL: "https://example.org/a", Snippet: "alpha"},
		{Title: "Paper B", URL: "https://example.org/b", Snippet: "beta"},
	}
	req := basicTurn()
	req.AcademicMode = true

	stream, err := f.orch.StartTurn(context.Background(), req)
	if err != nil {
		t.Fatalf("StartTurn() error = %v", err)
	}
	events := drain(t, stream)

	var sourceEvents int
	for _, ev := range events {
		if ev.Type == chatModels.SSEEventSource {
			sourceEvents++
		}
	}
	if sourceEvents != 2 {
		t.Errorf("source events = %d, want 2", sourceEvents)
	}

	// Retrieval and commit each consumed a metered unit
	if got := f.users.freeMessages("u1"); got != 3 {
		t.Errorf("free messages = %d, want 3", got)
	}

	waitUnlocked(t, f.conversations, "c1")
}
