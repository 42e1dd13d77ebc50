package chat

// MaxAttachmentBytes is the decoded size ceiling for a single uploaded file.
const MaxAttachmentBytes = 25 << 20 // 25 MB

// Attachment is a file referenced by a message. On input it carries inline
// bytes (base64 over the wire); after a successful upload only the storage
// URL is persisted. A message never references an attachment whose upload
// has not durably succeeded.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	URL         string `json:"url,omitempty"`
	Data        []byte `json:"data,omitempty"`
}

// IsImage reports whether the attachment is an image by content type.
func (a *Attachment) IsImage() bool {
	return len(a.ContentType) >= 6 && a.ContentType[:6] == "image/"
}

// IsPDF reports whether the attachment is a PDF document.
func (a *Attachment) IsPDF() bool {
	return a.ContentType == "application/pdf"
}
