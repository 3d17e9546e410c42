package ingest

import "time"

// DocumentPayload is a normalized text document ready for submission
type DocumentPayload struct {
	SourceType  string         `json:"source_type"`
	SourceID    string         `json:"source_id"`
	ContentHash string         `json:"content_hash"`
	Title       string         `json:"title,omitempty"`
	Text        string         `json:"text"`
	OccurredAt  *time.Time     `json:"occurred_at,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`

	// Annotations carry optional enrichment output (OCR, captions, entities)
	Annotations map[string]any `json:"annotations,omitempty"`

	// Redaction carries per-run PII category overrides
	Redaction map[string]bool `json:"redaction,omitempty"`
}

// FilePayload is raw bytes plus metadata for the upload boundary
type FilePayload struct {
	SourceType  string
	SourceID    string
	ContentHash string
	Filename    string
	MimeType    string
	Bytes       []byte
	Metadata    map[string]any
}

// SubmissionResponse is the downstream acknowledgement for one item
type SubmissionResponse struct {
	SubmissionID string `json:"submission_id"`
	DocID        string `json:"doc_id"`
	Status       string `json:"status"`
	Duplicate    bool   `json:"duplicate"`
}

// BatchResult pairs one submitted document with its outcome
type BatchResult struct {
	Key  string
	Resp *SubmissionResponse
	Err  error
}
