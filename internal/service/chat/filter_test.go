package chat

import (
	"reflect"
	"testing"

	"prism/internal/capabilities"
	chatModels "prism/internal/domain/models/chat"
)

func anthropicCaps() *capabilities.ModelCapabilities {
	return &capabilities.ModelCapabilities{
		ID:             "claude-sonnet-4-5",
		Provider:       "anthropic",
		SupportsImages: true,
		SupportsPDF:    true,
	}
}

func openAICaps() *capabilities.ModelCapabilities {
	return &capabilities.ModelCapabilities{
		ID:             "gpt-4o",
		Provider:       "openai",
		SupportsImages: true,
	}
}

func reasoningMessage(signature string) chatModels.Message {
	return chatModels.Message{
		ID:   "m1",
		Role: chatModels.RoleAssistant,
		Parts: []chatModels.Part{
			{
				Type: chatModels.PartTypeReasoning,
				Details: []chatModels.ReasoningDetail{
					{Kind: chatModels.ReasoningDetailText, Text: "thinking", Signature: signature},
				},
			},
			{Type: chatModels.PartTypeText, Text: "answer"},
		},
	}
}

func TestFilterForModel_UnsignedReasoningDroppedForAnthropic(t *testing.T) {
	msgs := []chatModels.Message{reasoningMessage("")}

	out := FilterForModel(msgs, anthropicCaps())

	if len(out[0].Parts) != 1 {
		t.Fatalf("parts = %d, want 1 (reasoning dropped)", len(out[0].Parts))
	}
	if out[0].Parts[0].Type != chatModels.PartTypeText {
		t.Errorf("remaining part type = %q, want text", out[0].Parts[0].Type)
	}
}

func TestFilterForModel_SignedReasoningKeptForAnthropic(t *testing.T) {
	msgs := []chatModels.Message{reasoningMessage("sig-abc")}

	out := FilterForModel(msgs, anthropicCaps())

	if len(out[0].Parts) != 2 {
		t.Fatalf("parts = %d, want 2 (signed reasoning kept)", len(out[0].Parts))
	}
}

func TestFilterForModel_UnsignedReasoningKeptForOtherFamilies(t *testing.T) {
	msgs := []chatModels.Message{reasoningMessage("")}

	out := FilterForModel(msgs, openAICaps())

	if len(out[0].Parts) != 2 {
		t.Fatalf("parts = %d, want 2 (non-Anthropic keeps unsigned reasoning)", len(out[0].Parts))
	}
}

func TestFilterForModel_RedactedReasoningKeptForAnthropic(t *testing.T) {
	msgs := []chatModels.Message{{
		Role: chatModels.RoleAssistant,
		Parts: []chatModels.Part{{
			Type: chatModels.PartTypeReasoning,
			Details: []chatModels.ReasoningDetail{
				{Kind: chatModels.ReasoningDetailRedacted, Text: "opaque"},
			},
		}},
	}}

	out := FilterForModel(msgs, anthropicCaps())

	if len(out[0].Parts) != 1 {
		t.Fatalf("parts = %d, want 1 (redacted reasoning kept)", len(out[0].Parts))
	}
}

func TestFilterForModel_AttachmentsByCapability(t *testing.T) {
	image := chatModels.Attachment{Name: "a.png", ContentType: "image/png", URL: "u1"}
	pdf := chatModels.Attachment{Name: "b.pdf", ContentType: "application/pdf", URL: "u2"}
	other := chatModels.Attachment{Name: "c.csv", ContentType: "text/csv", URL: "u3"}

	tests := []struct {
		name string
		caps *capabilities.ModelCapabilities
		want []string
	}{
		{
			name: "images and pdf supported",
			caps: &capabilities.ModelCapabilities{SupportsImages: true, SupportsPDF: true},
			want: []string{"a.png", "b.pdf"},
		},
		{
			name: "images only",
			caps: &capabilities.ModelCapabilities{SupportsImages: true},
			want: []string{"a.png"},
		},
		{
			name: "neither",
			caps: &capabilities.ModelCapabilities{},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs := []chatModels.Message{{
				Role:        chatModels.RoleUser,
				Attachments: []chatModels.Attachment{image, pdf, other},
			}}

			out := FilterForModel(msgs, tt.caps)

			var got []string
			for _, att := range out[0].Attachments {
				got = append(got, att.Name)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("kept attachments = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterForModel_Idempotent(t *testing.T) {
	msgs := []chatModels.Message{
		reasoningMessage(""),
		{
			Role: chatModels.RoleUser,
			Attachments: []chatModels.Attachment{
				{Name: "a.png", ContentType: "image/png"},
				{Name: "b.pdf", ContentType: "application/pdf"},
			},
		},
	}
	caps := anthropicCaps()
	caps.SupportsPDF = false

	once := FilterForModel(msgs, caps)
	twice := FilterForModel(once, caps)

	if !reflect.DeepEqual(once, twice) {
		t.Error("second application changed the result")
	}
}

func TestFilterForModel_DoesNotMutateInput(t *testing.T) {
	msgs := []chatModels.Message{reasoningMessage("")}

	FilterForModel(msgs, anthropicCaps())

	if len(msgs[0].Parts) != 2 {
		t.Errorf("input parts = %d after filtering, want 2 (unchanged)", len(msgs[0].Parts))
	}
}
