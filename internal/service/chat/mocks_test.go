package chat

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"prism/internal/domain"
	chatModels "prism/internal/domain/models/chat"
	"prism/internal/domain/repositories"
	domainChat "prism/internal/domain/services/chat"
	"prism/internal/search"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memConversationRepo is an in-memory ConversationRepository. The lock flag
// is mutated under a mutex so TryLock keeps compare-and-set semantics under
// concurrent callers.
type memConversationRepo struct {
	mu            sync.Mutex
	conversations map[string]*chatModels.Conversation
	tryLockErr    error
	unlockCalls   int
}

func newMemConversationRepo() *memConversationRepo {
	return &memConversationRepo{conversations: make(map[string]*chatModels.Conversation)}
}

func (r *memConversationRepo) CreateConversation(ctx context.Context, conv *chatModels.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.conversations[conv.ID]; exists {
		return &domain.ConflictError{Message: "exists", ResourceType: "conversation", ResourceID: conv.ID}
	}
	cp := *conv
	r.conversations[conv.ID] = &cp
	return nil
}

func (r *memConversationRepo) GetConversation(ctx context.Context, conversationID, userID string) (*chatModels.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.conversations[conversationID]
	if !ok || conv.UserID != userID {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, domain.ErrNotFound)
	}
	cp := *conv
	return &cp, nil
}

func (r *memConversationRepo) ListConversations(ctx context.Context, userID string, limit, offset int) ([]chatModels.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []chatModels.Conversation
	for _, conv := range r.conversations {
		if conv.UserID == userID {
			out = append(out, *conv)
		}
	}
	return out, nil
}

func (r *memConversationRepo) UpdateConversation(ctx context.Context, conv *chatModels.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.conversations[conv.ID]
	if !ok {
		return domain.ErrNotFound
	}
	existing.Title = conv.Title
	existing.Model = conv.Model
	return nil
}

func (r *memConversationRepo) UpdateTitle(ctx context.Context, conversationID, title string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.conversations[conversationID]
	if !ok {
		return domain.ErrNotFound
	}
	conv.Title = title
	return nil
}

func (r *memConversationRepo) TouchLastMessage(ctx context.Context, conversationID, model string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.conversations[conversationID]
	if !ok {
		return domain.ErrNotFound
	}
	conv.Model = model
	if at.After(conv.LastMessageAt) {
		conv.LastMessageAt = at
	}
	return nil
}

func (r *memConversationRepo) DeleteConversation(ctx context.Context, conversationID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.conversations[conversationID]
	if !ok || conv.UserID != userID {
		return domain.ErrNotFound
	}
	delete(r.conversations, conversationID)
	return nil
}

func (r *memConversationRepo) TryLock(ctx context.Context, conversationID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tryLockErr != nil {
		return false, r.tryLockErr
	}
	conv, ok := r.conversations[conversationID]
	if !ok {
		return false, nil
	}
	if conv.Locked {
		return false, nil
	}
	conv.Locked = true
	return true, nil
}

func (r *memConversationRepo) Unlock(ctx context.Context, conversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unlockCalls++
	if conv, ok := r.conversations[conversationID]; ok {
		conv.Locked = false
	}
	return nil
}

func (r *memConversationRepo) locked(conversationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.conversations[conversationID]
	return ok && conv.Locked
}

func (r *memConversationRepo) title(conversationID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conv, ok := r.conversations[conversationID]; ok {
		return conv.Title
	}
	return ""
}

// memMessageRepo is an in-memory MessageRepository.
type memMessageRepo struct {
	mu       sync.Mutex
	messages map[string][]chatModels.Message // conversationID -> ordered messages
	sources  map[string][]chatModels.Source  // messageID -> appended sources
}

func newMemMessageRepo() *memMessageRepo {
	return &memMessageRepo{
		messages: make(map[string][]chatModels.Message),
		sources:  make(map[string][]chatModels.Source),
	}
}

func (r *memMessageRepo) CreateMessage(ctx context.Context, msg *chatModels.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[msg.ConversationID] = append(r.messages[msg.ConversationID], *msg)
	return nil
}

func (r *memMessageRepo) ListMessages(ctx context.Context, conversationID string) ([]chatModels.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]chatModels.Message(nil), r.messages[conversationID]...), nil
}

func (r *memMessageRepo) AppendSources(ctx context.Context, messageID string, sources []chatModels.Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[messageID] = append(r.sources[messageID], sources...)
	return nil
}

func (r *memMessageRepo) CountMessages(ctx context.Context, conversationID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages[conversationID]), nil
}

func (r *memMessageRepo) count(conversationID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages[conversationID])
}

// memUserRepo is an in-memory UserRepository with atomic counter semantics.
type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*chatModels.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*chatModels.User)}
}

func (r *memUserRepo) GetUser(ctx context.Context, userID string) (*chatModels.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	cp := *user
	return &cp, nil
}

func (r *memUserRepo) DecrementFreeMessages(ctx context.Context, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok || user.FreeMessages <= 0 {
		return false, nil
	}
	user.FreeMessages--
	return true, nil
}

func (r *memUserRepo) CreditFreeMessages(ctx context.Context, userID string, amount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	user.FreeMessages += amount
	return nil
}

func (r *memUserRepo) UpdateMemory(ctx context.Context, userID string, memory *string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	user.Memory = memory
	user.MemoryEnabled = enabled
	return nil
}

func (r *memUserRepo) AppendMemory(ctx context.Context, userID, fact string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	if user.Memory == nil || *user.Memory == "" {
		user.Memory = &fact
		return nil
	}
	joined := *user.Memory + "\n" + fact
	user.Memory = &joined
	return nil
}

func (r *memUserRepo) freeMessages(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user, ok := r.users[userID]; ok {
		return user.FreeMessages
	}
	return 0
}

// scriptedProvider replays stream events. When scripts is set, each call
// consumes the next script; otherwise events replays on every call.
type scriptedProvider struct {
	name      string
	events    []domainChat.StreamEvent
	scripts   [][]domainChat.StreamEvent
	streamErr error
	titleErr  error
	titleText string

	mu       sync.Mutex
	requests []*domainChat.GenerateRequest
	titles   []string
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) StreamResponse(ctx context.Context, req *domainChat.GenerateRequest) (<-chan domainChat.StreamEvent, error) {
	if p.streamErr != nil {
		return nil, p.streamErr
	}
	p.mu.Lock()
	p.requests = append(p.requests, req)
	script := p.events
	if len(p.scripts) > 0 {
		script = p.scripts[0]
		p.scripts = p.scripts[1:]
	}
	p.mu.Unlock()

	ch := make(chan domainChat.StreamEvent, len(script))
	go func() {
		defer close(ch)
		for _, ev := range script {
			ch <- ev
		}
	}()
	return ch, nil
}

func (p *scriptedProvider) GenerateText(ctx context.Context, model, system, prompt string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.titleErr != nil {
		return "", p.titleErr
	}
	p.titles = append(p.titles, prompt)
	if p.titleText != "" {
		return p.titleText, nil
	}
	return "Generated Title", nil
}

func (p *scriptedProvider) lastRequest() *domainChat.GenerateRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		return nil
	}
	return p.requests[len(p.requests)-1]
}

// memObjectStore records uploads and can fail on demand. When failAfter is
// non-negative, uploads beyond that count fail.
type memObjectStore struct {
	mu        sync.Mutex
	uploads   map[string][]byte
	deletes   []string
	uploadErr error
	failAfter int
	attempts  int
}

func newMemObjectStore() *memObjectStore {
	return &memObjectStore{uploads: make(map[string][]byte), failAfter: -1}
}

func (s *memObjectStore) UploadFile(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.uploadErr != nil && (s.failAfter < 0 || s.attempts > s.failAfter) {
		return "", s.uploadErr
	}
	s.uploads[key] = data
	return "https://store.test/" + key, nil
}

func (s *memObjectStore) DeleteFile(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, key)
	delete(s.uploads, key)
	return nil
}

func (s *memObjectStore) uploadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.uploads)
}

// passthroughTxManager runs the function without a real transaction.
type passthroughTxManager struct{}

func (passthroughTxManager) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	return fn(ctx)
}

// scriptedSearch returns fixed results or an error.
type scriptedSearch struct {
	results []search.Result
	err     error

	mu      sync.Mutex
	queries []string
}

func (s *scriptedSearch) Search(ctx context.Context, query string, maxResults int) ([]search.Result, error) {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}
