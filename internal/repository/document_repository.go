package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/iqc-intake-api/internal/models"
)

const documentSelect = `SELECT d.id, d.owner_id, u.username AS owner_username, d.department, d.original_filename, d.storage_key,
       d.content_type, d.size_bytes, d.raw_text, d.document_type, d.extraction_status, d.last_error, d.uploaded_at, d.updated_at
	FROM documents d JOIN users u ON u.id = d.owner_id`

// DocumentRepository persists uploaded documents, their entities and the ingestion result.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create inserts a freshly uploaded document.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = now
	}
	doc.UpdatedAt = now
	if doc.ExtractionStatus == "" {
		doc.ExtractionStatus = models.ExtractionStatusUploaded
	}
	if doc.DocumentType == "" {
		doc.DocumentType = models.DocumentTypeReport
	}
	const query = `INSERT INTO documents
	(id, owner_id, department, original_filename, storage_key, content_type, size_bytes, raw_text, document_type, extraction_status, uploaded_at, updated_at)
	VALUES (:id, :owner_id, :department, :original_filename, :storage_key, :content_type, :size_bytes, :raw_text, :document_type, :extraction_status, :uploaded_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, doc); err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// GetByID fetches a document with its owner's username.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, documentSelect+` WHERE d.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &doc, nil
}

// List returns documents newest first together with the total match count.
func (r *DocumentRepository) List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, int, error) {
	conditions := make([]string, 0, 2)
	args := make([]interface{}, 0, 2)
	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		conditions = append(conditions, fmt.Sprintf("d.owner_id = $%d", len(args)))
	}
	if filter.Department != "" {
		args = append(args, string(filter.Department))
		conditions = append(conditions, fmt.Sprintf("d.department = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	listQuery := fmt.Sprintf("%s%s ORDER BY d.uploaded_at DESC, d.id LIMIT %d OFFSET %d", documentSelect, where, pageSize, (page-1)*pageSize)
	var docs []models.Document
	if err := r.db.SelectContext(ctx, &docs, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM documents d"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}
	return docs, total, nil
}

// UpdateExtractionStatus records pipeline progress for a document.
func (r *DocumentRepository) UpdateExtractionStatus(ctx context.Context, id string, status models.ExtractionStatus, lastError *string) error {
	const query = `UPDATE documents SET extraction_status = $2, last_error = $3, updated_at = $4 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, status, lastError, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update extraction status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check extraction status rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListEntities returns a document's entities in extraction order.
func (r *DocumentRepository) ListEntities(ctx context.Context, documentID string) ([]models.Entity, error) {
	const query = `SELECT id, document_id, entity_type, value, confidence, position FROM extracted_entities WHERE document_id = $1 ORDER BY position`
	var entities []models.Entity
	if err := r.db.SelectContext(ctx, &entities, query, documentID); err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	return entities, nil
}

// SaveIngestion writes raw text, entities and the pending event of one extraction run atomically.
func (r *DocumentRepository) SaveIngestion(ctx context.Context, in *models.Ingestion) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ingestion tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `UPDATE documents SET raw_text = $2, document_type = $3, extraction_status = $4, last_error = NULL, updated_at = $5 WHERE id = $1`,
		in.DocumentID, in.RawText, in.DocumentType, models.ExtractionStatusNeedsReview, now)
	if err != nil {
		return fmt.Errorf("update ingested document: %w", err)
	}
	if rows, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("check ingested document rows: %w", err)
	} else if rows == 0 {
		return sql.ErrNoRows
	}

	if len(in.Entities) > 0 {
		for i := range in.Entities {
			if in.Entities[i].ID == "" {
				in.Entities[i].ID = uuid.NewString()
			}
			in.Entities[i].DocumentID = in.DocumentID
			in.Entities[i].Position = i
		}
		const entityQuery = `INSERT INTO extracted_entities (id, document_id, entity_type, value, confidence, position)
		VALUES (:id, :document_id, :entity_type, :value, :confidence, :position)`
		if _, err := tx.NamedExecContext(ctx, entityQuery, in.Entities); err != nil {
			return fmt.Errorf("insert entities: %w", err)
		}
	}

	if in.Event != nil {
		event := in.Event
		if event.ID == "" {
			event.ID = uuid.NewString()
		}
		event.DocumentID = in.DocumentID
		event.Status = models.EventStatusPending
		event.CreatedAt = now
		event.UpdatedAt = now
		const eventQuery = `INSERT INTO events
		(id, document_id, name, event_date, category, department, venue, organizer, abstract, document_type, status, submitted_by, created_at, updated_at)
		VALUES (:id, :document_id, :name, :event_date, :category, :department, :venue, :organizer, :abstract, :document_type, :status, :submitted_by, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, eventQuery, event); err != nil {
			return fmt.Errorf("insert pending event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ingestion: %w", err)
	}
	return nil
}
