package dto

import (
	"time"

	"github.com/noah-isme/iqc-intake-api/internal/models"
)

// UploadResponse is returned by POST /documents.
type UploadResponse struct {
	DocumentID       string                  `json:"document_id"`
	Filename         string                  `json:"filename"`
	Department       models.Department       `json:"department"`
	ExtractionStatus models.ExtractionStatus `json:"extraction_status"`
}

// DocumentDetail aggregates a document with what was extracted from it.
type DocumentDetail struct {
	Document    models.Document `json:"document"`
	Entities    []models.Entity `json:"entities"`
	Events      []models.Event  `json:"events"`
	DownloadURL string          `json:"download_url,omitempty"`
	ExpiresAt   *time.Time      `json:"download_expires_at,omitempty"`
}
