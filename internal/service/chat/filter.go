package chat

import (
	"prism/internal/capabilities"
	chatModels "prism/internal/domain/models/chat"
)

// FilterForModel adapts a message history to the target model's declared
// capabilities before it is handed to a provider adapter.
//
// Two transformations apply:
//   - attachments the model cannot consume are dropped (images without
//     supports_images, PDFs without supports_pdf, and anything else always)
//   - for Anthropic-family models, reasoning parts whose first detail is
//     unsigned text are removed, because that family rejects unsigned
//     reasoning echoed back to it
//
// The filter runs on every turn since the active model can change between
// turns of the same conversation. It never mutates its input and is
// idempotent for a fixed capability set.
func FilterForModel(messages []chatModels.Message, caps *capabilities.ModelCapabilities) []chatModels.Message {
	filtered := make([]chatModels.Message, 0, len(messages))

	for _, msg := range messages {
		out := msg
		out.Attachments = filterAttachments(msg.Attachments, caps)
		out.Parts = filterParts(msg.Parts, caps)
		filtered = append(filtered, out)
	}

	return filtered
}

func filterAttachments(attachments []chatModels.Attachment, caps *capabilities.ModelCapabilities) []chatModels.Attachment {
	if len(attachments) == 0 {
		return nil
	}

	var kept []chatModels.Attachment
	for _, att := range attachments {
		switch {
		case att.IsImage():
			if caps.SupportsImages {
				kept = append(kept, att)
			}
		case att.IsPDF():
			if caps.SupportsPDF {
				kept = append(kept, att)
			}
		}
	}
	return kept
}

func filterParts(parts []chatModels.Part, caps *capabilities.ModelCapabilities) []chatModels.Part {
	if len(parts) == 0 || !caps.IsAnthropicFamily() {
		return parts
	}

	var kept []chatModels.Part
	for _, part := range parts {
		if part.Type == chatModels.PartTypeReasoning && hasUnsignedTextDetail(part) {
			continue
		}
		kept = append(kept, part)
	}
	return kept
}

// hasUnsignedTextDetail reports whether the reasoning part's first detail is
// plain text without a provider signature.
func hasUnsignedTextDetail(part chatModels.Part) bool {
	if len(part.Details) == 0 {
		return false
	}
	first := part.Details[0]
	return first.Kind == chatModels.ReasoningDetailText && first.Signature == ""
}
