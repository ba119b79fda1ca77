package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/iqc-intake-api/internal/models"
	"github.com/noah-isme/iqc-intake-api/pkg/extraction"
	"github.com/noah-isme/iqc-intake-api/pkg/jobs"
	"github.com/noah-isme/iqc-intake-api/pkg/storage"
)

const markFailedTimeout = 5 * time.Second

// Extractor turns a stored file into raw text, entities and a candidate event.
type Extractor interface {
	Extract(ctx context.Context, req extraction.Request) (*extraction.Result, error)
}

// IngestService runs extraction for uploaded documents on the job queue.
type IngestService struct {
	docs      documentStore
	store     storage.ObjectStore
	extractor Extractor
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewIngestService constructs the ingest worker.
func NewIngestService(docs documentStore, store storage.ObjectStore, extractor Extractor, metrics *MetricsService, logger *zap.Logger) *IngestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestService{docs: docs, store: store, extractor: extractor, metrics: metrics, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Handle is the jobs.Handler for JobTypeIngest. Failures are recorded on the document and never retried.
func (s *IngestService) Handle(ctx context.Context, job jobs.Job) error {
	documentID, ok := job.Payload.(string)
	if !ok || documentID == "" {
		return jobs.Permanent(fmt.Errorf("ingest job %s: unexpected payload %T", job.ID, job.Payload))
	}

	start := time.Now()
	err := s.Ingest(ctx, documentID)
	s.metrics.RecordExtraction(err == nil, time.Since(start))
	if err == nil {
		return nil
	}

	s.logger.Warn("document ingest failed", zap.String("document_id", documentID), zap.Error(err))
	msg := err.Error()
	// The job context is cancelled on shutdown; the failure still has to be recorded.
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markFailedTimeout)
	defer cancel()
	if markErr := s.docs.UpdateExtractionStatus(markCtx, documentID, models.ExtractionStatusFailed, &msg); markErr != nil {
		return jobs.Permanent(fmt.Errorf("mark document %s failed: %w", documentID, markErr))
	}
	return nil
}

// Ingest extracts one document and persists its raw text, entities and pending event atomically.
func (s *IngestService) Ingest(ctx context.Context, documentID string) error {
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if err := s.docs.UpdateExtractionStatus(ctx, documentID, models.ExtractionStatusProcessing, nil); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	body, err := s.store.Get(ctx, doc.StorageKey)
	if err != nil {
		return fmt.Errorf("open stored file: %w", err)
	}
	defer body.Close()

	result, err := s.extractor.Extract(ctx, extraction.Request{
		DocumentID:  doc.ID,
		Filename:    doc.OriginalFilename,
		ContentType: doc.ContentType,
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}

	ingestion := s.buildIngestion(doc, result)
	if err := s.docs.SaveIngestion(ctx, ingestion); err != nil {
		return fmt.Errorf("save ingestion: %w", err)
	}
	s.logger.Info("document ingested",
		zap.String("document_id", doc.ID),
		zap.Int("entities", len(ingestion.Entities)),
		zap.String("category", string(ingestion.Event.Category)),
	)
	return nil
}

func (s *IngestService) buildIngestion(doc *models.Document, result *extraction.Result) *models.Ingestion {
	now := s.now()
	candidate := result.CandidateEvent
	docType := models.ParseDocumentType(candidate.DocType)

	entities := make([]models.Entity, 0, len(result.Entities))
	for i, e := range result.Entities {
		if strings.TrimSpace(e.Value) == "" {
			continue
		}
		entities = append(entities, models.Entity{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			Type:       strings.TrimSpace(e.Type),
			Value:      strings.TrimSpace(e.Value),
			Confidence: clampConfidence(e.Confidence),
			Position:   i,
		})
	}

	category, ok := models.ParseEventCategory(candidate.Category)
	if !ok {
		category = models.CategoryGeneralEvent
	}
	date, err := models.ParseDate(strings.TrimSpace(candidate.Date))
	if err != nil {
		date = models.NullDate{}
	}

	event := &models.Event{
		ID:           uuid.NewString(),
		DocumentID:   doc.ID,
		Name:         strings.TrimSpace(candidate.Name),
		Date:         date,
		Category:     category,
		Department:   NormalizeDepartment(candidate.Department, doc.Department),
		Venue:        strings.TrimSpace(candidate.Venue),
		Organizer:    strings.TrimSpace(candidate.Organizer),
		Abstract:     strings.TrimSpace(candidate.Abstract),
		DocumentType: docType,
		Status:       models.EventStatusPending,
		SubmittedBy:  doc.OwnerID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	return &models.Ingestion{
		DocumentID:   doc.ID,
		RawText:      result.RawText,
		DocumentType: docType,
		Entities:     entities,
		Event:        event,
	}
}

// NormalizeDepartment maps free-text department names onto the enumeration.
// Specialisations are checked before plain computer science. Anything unrecognised yields fallback.
func NormalizeDepartment(raw string, fallback models.Department) models.Department {
	if dept, ok := models.ParseDepartment(raw); ok {
		return dept
	}
	upper := strings.ToUpper(strings.TrimSpace(raw))
	if upper == "" {
		return fallback
	}

	switch {
	case containsAny(upper, "AIML", "AI & ML", "AI&ML", "ARTIFICIAL INTELLIGENCE", "MACHINE LEARNING"):
		return models.DepartmentAIML
	case containsAny(upper, "DATA SCIENCE", "CSE-DS", "CYBER", "CSE-CY"):
		return fallback
	case containsAny(upper, "ELECTRONICS", "COMMUNICATION", "ECE", "E&CE"):
		return models.DepartmentECE
	case containsAny(upper, "INFORMATION SCIENCE", "IS&E", "ISE"):
		return models.DepartmentISE
	case containsAny(upper, "AERO", "AEROSPACE", "AERONAUTICAL"):
		return models.DepartmentAERO
	case containsAny(upper, "COMPUTER SCIENCE", "CSE"):
		return models.DepartmentCSECore
	}
	return fallback
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func clampConfidence(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
