package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/iqc-intake-api/internal/dto"
	"github.com/noah-isme/iqc-intake-api/internal/models"
	appErrors "github.com/noah-isme/iqc-intake-api/pkg/errors"
)

// DefaultRejectComment is stored when a reviewer rejects without a comment.
const DefaultRejectComment = "Rejected by reviewer"

type eventStore interface {
	GetByID(ctx context.Context, id string) (*models.Event, error)
	ListByDocument(ctx context.Context, documentID string) ([]models.Event, error)
	ListPending(ctx context.Context, departments []models.Department) ([]models.Event, error)
	ListValidated(ctx context.Context, departments []models.Department) ([]models.Event, error)
	ListRejectedBySubmitter(ctx context.Context, userID string) ([]models.Event, error)
	ApplyTransition(ctx context.Context, t models.Transition) error
}

type documentReader interface {
	GetByID(ctx context.Context, id string) (*models.Document, error)
	ListEntities(ctx context.Context, documentID string) ([]models.Entity, error)
}

type downloadSigner interface {
	DownloadURL(doc *models.Document) (string, time.Time, error)
}

type summaryInvalidator interface {
	InvalidateDepartments(ctx context.Context, depts ...models.Department)
}

// ReviewService is the event review state machine.
type ReviewService struct {
	events  eventStore
	docs    documentReader
	signer  downloadSigner
	tracker summaryInvalidator
	audit   auditWriter
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewReviewService constructs a ReviewService.
func NewReviewService(events eventStore, docs documentReader, signer downloadSigner, tracker summaryInvalidator, audit auditWriter, metrics *MetricsService, logger *zap.Logger) *ReviewService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReviewService{
		events:  events,
		docs:    docs,
		signer:  signer,
		tracker: tracker,
		audit:   audit,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ListPending returns the pending events within the reviewer's scope, oldest first.
func (s *ReviewService) ListPending(ctx context.Context, identity models.Identity) ([]models.Event, error) {
	scope, ok := reviewScope(identity)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only reviewers may list pending events")
	}
	events, err := s.events.ListPending(ctx, scope)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending events")
	}
	if events == nil {
		events = []models.Event{}
	}
	return events, nil
}

// GetDocumentDetail returns a document with its entities, events and a signed download link.
func (s *ReviewService) GetDocumentDetail(ctx context.Context, identity models.Identity, documentID string) (*dto.DocumentDetail, error) {
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	if !CanViewDocument(identity, doc) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "document is outside your scope")
	}

	entities, err := s.docs.ListEntities(ctx, doc.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load entities")
	}
	events, err := s.events.ListByDocument(ctx, doc.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load events")
	}
	if entities == nil {
		entities = []models.Entity{}
	}
	if events == nil {
		events = []models.Event{}
	}

	detail := &dto.DocumentDetail{Document: *doc, Entities: entities, Events: events}
	if s.signer != nil && doc.StorageKey != "" {
		url, expiresAt, err := s.signer.DownloadURL(doc)
		if err != nil {
			s.logger.Warn("failed to sign download", zap.String("document_id", doc.ID), zap.Error(err))
		} else {
			detail.DownloadURL = url
			detail.ExpiresAt = &expiresAt
		}
	}
	return detail, nil
}

// Validate gates the reviewer supplied fields and, when they pass, moves the event to validated.
// Field failures are returned as a Failed result with a nil error and leave the event untouched.
func (s *ReviewService) Validate(ctx context.Context, identity models.Identity, eventID string, fields models.EventFields) (models.ValidationResult, error) {
	event, err := s.loadReviewable(ctx, identity, eventID)
	if err != nil {
		return models.ValidationResult{}, err
	}

	candidate, failures := gateFields(event, fields)
	if len(failures) > 0 {
		s.metrics.RecordReview(OutcomeValidationFailed)
		return models.ValidationFailed(failures), nil
	}
	if !CanReview(identity, candidate.Department) {
		s.metrics.RecordReview(OutcomeForbidden)
		return models.ValidationResult{}, appErrors.Clone(appErrors.ErrForbidden, "cannot move an event into a department outside your scope")
	}

	t := models.Transition{
		EventID:    event.ID,
		To:         models.EventStatusValidated,
		Fields:     candidate,
		ReviewerID: identity.UserID,
		At:         s.now(),
	}
	if err := s.transition(ctx, t); err != nil {
		return models.ValidationResult{}, err
	}

	s.afterTransition(ctx, identity, event, models.AuditActionEventValidate, OutcomeValidated, event.Department, candidate.Department)
	return models.ValidationOK(s.reload(ctx, event, t)), nil
}

// Reject moves a pending event to rejected with comment. Department and category are kept.
func (s *ReviewService) Reject(ctx context.Context, identity models.Identity, eventID, comment string) (*models.Event, error) {
	event, err := s.loadReviewable(ctx, identity, eventID)
	if err != nil {
		return nil, err
	}

	comment = strings.TrimSpace(comment)
	if comment == "" {
		comment = DefaultRejectComment
	}
	t := models.Transition{
		EventID:    event.ID,
		To:         models.EventStatusRejected,
		Comment:    &comment,
		ReviewerID: identity.UserID,
		At:         s.now(),
	}
	if err := s.transition(ctx, t); err != nil {
		return nil, err
	}

	s.afterTransition(ctx, identity, event, models.AuditActionEventReject, OutcomeRejected, event.Department)
	return s.reload(ctx, event, t), nil
}

// loadReviewable resolves NotFound, then Forbidden, then Conflict.
func (s *ReviewService) loadReviewable(ctx context.Context, identity models.Identity, eventID string) (*models.Event, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	if !CanReview(identity, event.Department) {
		s.metrics.RecordReview(OutcomeForbidden)
		return nil, appErrors.Clone(appErrors.ErrForbidden, "event is outside your review scope")
	}
	if event.Status != models.EventStatusPending {
		s.metrics.RecordReview(OutcomeConflict)
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("event is already %s", event.Status))
	}
	return event, nil
}

func (s *ReviewService) transition(ctx context.Context, t models.Transition) error {
	if err := s.events.ApplyTransition(ctx, t); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordReview(OutcomeConflict)
			return appErrors.Clone(appErrors.ErrConflict, "event was reviewed concurrently")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update event")
	}
	return nil
}

func (s *ReviewService) afterTransition(ctx context.Context, identity models.Identity, event *models.Event, action, outcome string, depts ...models.Department) {
	s.metrics.RecordReview(outcome)
	if s.tracker != nil {
		s.tracker.InvalidateDepartments(ctx, depts...)
	}
	if s.audit == nil {
		return
	}
	userID := identity.UserID
	payload := fmt.Sprintf(`{"from":%q,"to":%q,"department":%q}`, event.Status, outcome, event.Department)
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "event",
		ResourceID: &event.ID,
		NewValues:  []byte(payload),
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}

// reload fetches the committed event. The transition already landed, so a failed read falls back to
// the pre-transition copy with t applied rather than reporting an error.
func (s *ReviewService) reload(ctx context.Context, event *models.Event, t models.Transition) *models.Event {
	updated, err := s.events.GetByID(ctx, event.ID)
	if err == nil {
		return updated
	}
	s.logger.Warn("failed to reload reviewed event", zap.String("event_id", event.ID), zap.Error(err))

	applied := *event
	if t.Fields != nil {
		applied = *t.Fields
	}
	if t.Comment != nil {
		comment := *t.Comment
		applied.ReviewerComment = &comment
	}
	at, reviewer := t.At, t.ReviewerID
	applied.Status = t.To
	applied.ReviewedAt = &at
	applied.ReviewedBy = &reviewer
	applied.UpdatedAt = at
	return &applied
}

// gateFields checks every field and accumulates all failures in gate order.
func gateFields(event *models.Event, fields models.EventFields) (*models.Event, []models.FieldError) {
	var failures []models.FieldError
	candidate := *event

	candidate.Name = strings.TrimSpace(fields.Name)
	if candidate.Name == "" {
		failures = append(failures, models.FieldError{Field: "name", Message: "name is required"})
	}

	rawDate := strings.TrimSpace(fields.Date)
	if date, err := models.ParseDate(rawDate); err != nil {
		msg := "date must be a valid calendar date in YYYY-MM-DD format"
		if rawDate == "" {
			msg = "date is required"
		}
		failures = append(failures, models.FieldError{Field: "date", Message: msg})
	} else {
		candidate.Date = date
	}

	if category, ok := models.ParseEventCategory(fields.Category); ok {
		candidate.Category = category
	} else {
		failures = append(failures, models.FieldError{Field: "category", Message: "category is not a known event type"})
	}

	if dept, ok := models.ParseDepartment(fields.Department); ok {
		candidate.Department = dept
	} else {
		failures = append(failures, models.FieldError{Field: "department", Message: "department is not a known department"})
	}

	candidate.Venue = strings.TrimSpace(fields.Venue)
	candidate.Organizer = strings.TrimSpace(fields.Organizer)
	candidate.Abstract = strings.TrimSpace(fields.Abstract)
	return &candidate, failures
}
