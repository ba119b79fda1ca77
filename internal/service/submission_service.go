package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/iqc-intake-api/internal/models"
	appErrors "github.com/noah-isme/iqc-intake-api/pkg/errors"
	"github.com/noah-isme/iqc-intake-api/pkg/jobs"
	"github.com/noah-isme/iqc-intake-api/pkg/storage"
)

// JobTypeIngest identifies document ingest jobs on the extraction queue.
const JobTypeIngest = "document.ingest"

var contentTypeByExtension = map[string]string{
	"pdf":  "application/pdf",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"tiff": "image/tiff",
	"tif":  "image/tiff",
}

type documentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id string) (*models.Document, error)
	List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, int, error)
	UpdateExtractionStatus(ctx context.Context, id string, status models.ExtractionStatus, lastError *string) error
	ListEntities(ctx context.Context, documentID string) ([]models.Entity, error)
	SaveIngestion(ctx context.Context, in *models.Ingestion) error
}

type jobEnqueuer interface {
	TryEnqueue(job jobs.Job) error
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// UploadInput is one file received from a submitter.
type UploadInput struct {
	Filename   string
	Size       int64
	Body       io.Reader
	Department string
	IP         string
	UserAgent  string
}

// SubmissionConfig bounds accepted uploads.
type SubmissionConfig struct {
	MaxFileSize       int64
	AllowedExtensions []string
}

// SubmissionService stores uploaded documents and hands them to the ingest queue.
type SubmissionService struct {
	docs    documentStore
	store   storage.ObjectStore
	signer  *storage.SignedURLSigner
	queue   jobEnqueuer
	audit   auditWriter
	metrics *MetricsService
	logger  *zap.Logger
	config  SubmissionConfig
	allowed map[string]bool
	now     func() time.Time
}

// NewSubmissionService wires the submission store.
func NewSubmissionService(docs documentStore, store storage.ObjectStore, signer *storage.SignedURLSigner, queue jobEnqueuer, audit auditWriter, metrics *MetricsService, logger *zap.Logger, cfg SubmissionConfig) *SubmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 16 << 20
	}
	if len(cfg.AllowedExtensions) == 0 {
		cfg.AllowedExtensions = []string{"pdf", "png", "jpg", "jpeg", "tiff"}
	}
	allowed := make(map[string]bool, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		allowed[strings.TrimPrefix(strings.ToLower(ext), ".")] = true
	}
	return &SubmissionService{
		docs:    docs,
		store:   store,
		signer:  signer,
		queue:   queue,
		audit:   audit,
		metrics: metrics,
		logger:  logger,
		config:  cfg,
		allowed: allowed,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Upload validates, stores and registers a document, then schedules its extraction.
func (s *SubmissionService) Upload(ctx context.Context, identity models.Identity, in UploadInput) (doc *models.Document, err error) {
	defer func() { s.metrics.RecordUpload(err == nil) }()

	if !CanUpload(identity) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students and teachers may upload documents")
	}

	dept := identity.Department
	if strings.TrimSpace(in.Department) != "" {
		requested, ok := models.ParseDepartment(in.Department)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown department")
		}
		if requested != identity.Department {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot submit for another department")
		}
	}

	name := filepath.Base(strings.TrimSpace(in.Filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file name is required")
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if !s.allowed[ext] {
		return nil, appErrors.Clone(appErrors.ErrUnsupportedMedia, fmt.Sprintf("file type %q is not allowed", ext))
	}
	if in.Size > s.config.MaxFileSize {
		return nil, appErrors.ErrPayloadTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(in.Body, s.config.MaxFileSize+1))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to read upload")
	}
	if int64(len(data)) > s.config.MaxFileSize {
		return nil, appErrors.ErrPayloadTooLarge
	}
	if len(data) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file is empty")
	}

	contentType, ok := sniffContentType(ext, data)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnsupportedMedia, "file content does not match its extension")
	}

	now := s.now()
	id := uuid.NewString()
	key := fmt.Sprintf("documents/%04d/%02d/%s.%s", now.Year(), int(now.Month()), id, ext)
	if err := s.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store document")
	}

	doc = &models.Document{
		ID:               id,
		OwnerID:          identity.UserID,
		OwnerUsername:    identity.Username,
		Department:       dept,
		OriginalFilename: name,
		StorageKey:       key,
		ContentType:      contentType,
		SizeBytes:        int64(len(data)),
		DocumentType:     models.DocumentTypeReport,
		ExtractionStatus: models.ExtractionStatusUploaded,
		UploadedAt:       now,
		UpdatedAt:        now,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			s.logger.Warn("failed to remove orphaned object", zap.String("key", key), zap.Error(delErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register document")
	}

	s.recordAudit(ctx, identity.UserID, models.AuditActionDocumentUpload, "document", doc.ID, fmt.Sprintf(`{"filename":%q,"department":%q}`, name, dept), in.IP, in.UserAgent)

	if err := s.queue.TryEnqueue(jobs.Job{ID: doc.ID, Type: JobTypeIngest, Payload: doc.ID, Enqueued: now}); err != nil {
		// The upload stands; the document stays in uploaded status for a later re-run.
		s.logger.Warn("failed to enqueue extraction", zap.String("document_id", doc.ID), zap.Error(err))
	}
	return doc, nil
}

// ListDocuments returns the documents visible to identity, newest first.
func (s *SubmissionService) ListDocuments(ctx context.Context, identity models.Identity, page, pageSize int) ([]models.Document, *models.Pagination, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	filter := models.DocumentFilter{Page: page, PageSize: pageSize}
	switch identity.Role {
	case models.RoleIQC:
	case models.RoleTeacher:
		filter.Department = identity.Department
	case models.RoleStudent:
		filter.OwnerID = identity.UserID
	default:
		return nil, nil, appErrors.ErrForbidden
	}

	docs, total, err := s.docs.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}
	return docs, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// GetDocument loads a document the caller is allowed to open.
func (s *SubmissionService) GetDocument(ctx context.Context, identity models.Identity, id string) (*models.Document, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	if !CanViewDocument(identity, doc) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "document is outside your scope")
	}
	return doc, nil
}

// DownloadURL signs a short-lived token for the document's original file.
func (s *SubmissionService) DownloadURL(doc *models.Document) (string, time.Time, error) {
	token, expiresAt, err := s.signer.Generate(doc.ID, doc.StorageKey)
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download")
	}
	return token, expiresAt, nil
}

// Download is an opened original file.
type Download struct {
	Document *models.Document
	Body     io.ReadCloser
}

// ResolveDownload validates a signed token and opens the referenced file.
func (s *SubmissionService) ResolveDownload(ctx context.Context, token string) (*Download, error) {
	grant, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid or expired download link")
	}

	doc, err := s.docs.GetByID(ctx, grant.ResourceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	if doc.StorageKey != grant.Key {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download link")
	}

	body, err := s.store.Get(ctx, doc.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "file no longer available")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file")
	}
	return &Download{Document: doc, Body: body}, nil
}

func (s *SubmissionService) recordAudit(ctx context.Context, userID, action, resource, resourceID, payload, ip, userAgent string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   resource,
		ResourceID: &resourceID,
		NewValues:  []byte(payload),
		IPAddress:  ip,
		UserAgent:  userAgent,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}

// sniffContentType reconciles the sniffed type with the extension. TIFF has no sniff signature and is trusted by extension.
func sniffContentType(ext string, data []byte) (string, bool) {
	expected := contentTypeByExtension[ext]
	if expected == "" {
		return "", false
	}
	sniffed := http.DetectContentType(data)
	if i := strings.IndexByte(sniffed, ';'); i >= 0 {
		sniffed = sniffed[:i]
	}
	if sniffed == expected {
		return expected, true
	}
	if expected == "image/tiff" && sniffed == "application/octet-stream" {
		return expected, true
	}
	return "", false
}
