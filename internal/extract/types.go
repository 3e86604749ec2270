// Package extract converts a RawDocument into an ExtractedDocument: text
// plus the structural metadata (headings, tables, code ranges) that every
// downstream stage depends on. One file per supported format lives
// alongside this one.
package extract

import "fmt"

// DocumentType enumerates the canonical categories ExtractedDocument's
// document_type field may take.
type DocumentType string

const (
	TypePDF      DocumentType = "pdf"
	TypeEmail    DocumentType = "email"
	TypeOffice   DocumentType = "office"
	TypeMarkdown DocumentType = "markdown"
	TypeText     DocumentType = "text"
	TypeImage    DocumentType = "image"
	TypeScanned  DocumentType = "scanned"
	TypeLLMChat  DocumentType = "llm_chat"
	TypeWhatsApp DocumentType = "whatsapp"
	TypeOther    DocumentType = "other"
)

// RawDocument is the uploaded-bytes-plus-origin-hints entity Extract
// consumes. It is discarded once Extract returns.
type RawDocument struct {
	Content      []byte
	Filename     string
	DeclaredType DocumentType // "" if unknown; Extract sniffs in that case
	MIMEHint     string
	// ProvidedMetadata carries caller-supplied hints (e.g. an HTTP upload's
	// form fields) that extractors may use but never trust blindly.
	ProvidedMetadata map[string]string
	// ParentMessageID links an attachment RawDocument back to the email
	// message it was extracted from.
	ParentMessageID string
}

// SectionType enumerates the structural unit kinds the Chunker relies on.
type SectionType string

const (
	SectionHeading   SectionType = "heading"
	SectionParagraph SectionType = "paragraph"
	SectionTable     SectionType = "table"
	SectionCode      SectionType = "code"
	SectionList      SectionType = "list"
)

// Section is one entry of ExtractedDocument.StructuralMetadata: a typed span
// over ExtractedDocument.Text that the Chunker uses to decide where it may
// and may not split.
type Section struct {
	Type          SectionType
	HeadingLevel  int // 1-6, only meaningful when Type == SectionHeading
	Title         string
	CharStart     int
	CharEnd       int
	TokenEstimate int
}

// ChatTurn is one alternating user/assistant turn, used by llm_chat and
// whatsapp extraction and consumed directly by the turn-based chunker.
type ChatTurn struct {
	Speaker   string // "user" | "assistant" | an author name for WhatsApp
	Text      string
	Timestamp string // RFC3339 when known, else raw as captured
}

// SourceMetadata carries format-specific provenance (email headers, PDF
// document properties, ...) that Enrich and Export read but never
// reinterpret.
type SourceMetadata struct {
	// Email
	From, To, Cc, Subject, MessageID, InReplyTo string
	References                                  []string
	// PDF / Office document properties
	Title, Author, Subject2 string
	// Generic
	Extra map[string]string
}

// ExtractedDocument is the canonicalized output of Extract. Immutable once
// produced.
type ExtractedDocument struct {
	Text               string
	DocumentType       DocumentType
	StructuralMetadata []Section
	Source             SourceMetadata
	ChatTurns          []ChatTurn // only populated for TypeLLMChat / TypeWhatsApp

	// CreatedDate is the document's real-world creation time (email Date
	// header, PDF creation property, ...), normalized to UTC. Falls back to
	// ingestion time only when the format has no authoritative date.
	CreatedDate string // RFC3339

	// ExtractionMethod records which code path produced Text, e.g.
	// "embedded_text", "ocr", "visual_llm".
	ExtractionMethod string
	// PageCost accumulates visual-LLM page calls, surfaced to downstream
	// cost accounting.
	PageCost int

	// Attachments are sibling RawDocuments discovered during extraction
	// (email attachments, embedded spreadsheets). The pipeline re-ingests
	// each one independently, linked by ParentMessageID.
	Attachments []RawDocument

	// Truncated is set when content exceeded max_content_chars and was cut.
	Truncated bool
}

// Reason enumerates why an ExtractionError occurred.
type Reason string

const (
	ReasonUnsupportedFormat Reason = "unsupported_format"
	ReasonCorruptInput      Reason = "corrupt_input"
	ReasonEmptyText         Reason = "empty_text"
	ReasonOCRFailed         Reason = "ocr_failed"
	ReasonVisualLLMFailed   Reason = "visual_llm_failed"
	ReasonDependencyError   Reason = "dependency_error"
)

// ExtractionError is returned by every format extractor. Recoverable errors
// trigger the format's fallback chain; non-recoverable ones fail the
// document.
type ExtractionError struct {
	Reason      Reason
	Recoverable bool
	Err         error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("extract: %s", e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func fatal(reason Reason, err error) error {
	return &ExtractionError{Reason: reason, Recoverable: false, Err: err}
}

func recoverable(reason Reason, err error) error {
	return &ExtractionError{Reason: reason, Recoverable: true, Err: err}
}
