package models

import "time"

// ExtractionStatus tracks a document through the extraction pipeline.
type ExtractionStatus string

const (
	ExtractionStatusUploaded    ExtractionStatus = "uploaded"
	ExtractionStatusProcessing  ExtractionStatus = "processing"
	ExtractionStatusNeedsReview ExtractionStatus = "needs_review"
	ExtractionStatusFailed      ExtractionStatus = "failed"
)

// Document is one uploaded artifact.
type Document struct {
	ID               string           `db:"id" json:"id"`
	OwnerID          string           `db:"owner_id" json:"owner_id"`
	OwnerUsername    string           `db:"owner_username" json:"owner_username,omitempty"`
	Department       Department       `db:"department" json:"department"`
	OriginalFilename string           `db:"original_filename" json:"original_filename"`
	StorageKey       string           `db:"storage_key" json:"-"`
	ContentType      string           `db:"content_type" json:"content_type"`
	SizeBytes        int64            `db:"size_bytes" json:"size_bytes"`
	RawText          string           `db:"raw_text" json:"raw_text,omitempty"`
	DocumentType     DocumentType     `db:"document_type" json:"document_type"`
	ExtractionStatus ExtractionStatus `db:"extraction_status" json:"extraction_status"`
	LastError        *string          `db:"last_error" json:"last_error,omitempty"`
	UploadedAt       time.Time        `db:"uploaded_at" json:"uploaded_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
}

// Entity is one extracted fact belonging to a document.
type Entity struct {
	ID         string  `db:"id" json:"id"`
	DocumentID string  `db:"document_id" json:"document_id"`
	Type       string  `db:"entity_type" json:"type"`
	Value      string  `db:"value" json:"value"`
	Confidence float64 `db:"confidence" json:"confidence"`
	Position   int     `db:"position" json:"-"`
}

// DocumentFilter scopes document listings.
type DocumentFilter struct {
	OwnerID    string
	Department Department
	Page       int
	PageSize   int
}

// Ingestion is everything one extraction run writes back for a document.
type Ingestion struct {
	DocumentID   string
	RawText      string
	DocumentType DocumentType
	Entities     []Entity
	Event        *Event
}
