package chat

import (
	"strings"
	"time"
)

// Role constants
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Part type constants
const (
	PartTypeText      = "text"
	PartTypeReasoning = "reasoning"
	PartTypeSource    = "source"
	PartTypeTool      = "tool_invocation"
)

// Reasoning detail kinds
const (
	ReasoningDetailText     = "text"
	ReasoningDetailRedacted = "redacted"
)

// Message is one turn half (user or assistant) within a conversation.
// Once a message carries parts, its displayed content is the interpretation
// of those parts; the flat Content field only remains authoritative for
// legacy rows, which NormalizeParts converts at read time.
type Message struct {
	ID             string       `json:"id" db:"id"`
	ConversationID string       `json:"conversation_id" db:"conversation_id"`
	Role           string       `json:"role" db:"role"`
	Content        *string      `json:"content,omitempty" db:"content"`
	Parts          []Part       `json:"parts,omitempty" db:"parts"`
	Attachments    []Attachment `json:"attachments,omitempty" db:"attachments"`
	InputTokens    *int         `json:"input_tokens,omitempty" db:"input_tokens"`
	OutputTokens   *int         `json:"output_tokens,omitempty" db:"output_tokens"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
}

// Part is a typed fragment of a message. Exactly one of the payload fields
// is populated, selected by Type.
type Part struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// reasoning
	Details []ReasoningDetail `json:"details,omitempty"`

	// source (appended post-hoc after streaming completes)
	Source *Source `json:"source,omitempty"`

	// tool_invocation
	Tool *ToolInvocation `json:"tool,omitempty"`
}

// ReasoningDetail is one item of a reasoning part. Signature is issued by
// the provider; Anthropic-family models reject unsigned text details when
// reasoning is echoed back (see the message filter).
type ReasoningDetail struct {
	Kind      string `json:"kind"` // "text" or "redacted"
	Text      string `json:"text,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// Source is citation metadata attached to an assistant message after
// generation completes.
type Source struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// ToolInvocation records a tool call the model made mid-turn.
type ToolInvocation struct {
	Name   string                 `json:"name"`
	Input  map[string]interface{} `json:"input,omitempty"`
	Result string                 `json:"result,omitempty"`
}

// NormalizeParts converts a legacy row (flat content/reasoning/signature
// columns, no parts) into the canonical parts representation. Rows that
// already carry parts are returned unchanged, so the rest of the pipeline
// never branches on shape.
func (m *Message) NormalizeParts(legacyReasoning, legacySignature *string) {
	if len(m.Parts) > 0 {
		return
	}

	var parts []Part
	if legacyReasoning != nil && *legacyReasoning != "" {
		detail := ReasoningDetail{Kind: ReasoningDetailText, Text: *legacyReasoning}
		if legacySignature != nil {
			detail.Signature = *legacySignature
		}
		parts = append(parts, Part{Type: PartTypeReasoning, Details: []ReasoningDetail{detail}})
	}
	if m.Content != nil && *m.Content != "" {
		parts = append(parts, Part{Type: PartTypeText, Text: *m.Content})
	}
	m.Parts = parts
}

// Text returns the concatenated text content of the message's parts,
// falling back to the flat content column for legacy rows.
func (m *Message) Text() string {
	if len(m.Parts) == 0 {
		if m.Content != nil {
			return *m.Content
		}
		return ""
	}

	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartTypeText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}
