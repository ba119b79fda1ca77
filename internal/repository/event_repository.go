package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/iqc-intake-api/internal/models"
)

const eventSelect = `SELECT e.id, e.document_id, e.name, e.event_date, e.category, e.department, e.venue, e.organizer,
       e.abstract, e.document_type, e.status, e.reviewer_comment, e.submitted_by, u.username AS submitted_by_username,
       e.reviewed_by, e.reviewed_at, e.created_at, e.updated_at
	FROM events e JOIN users u ON u.id = e.submitted_by`

// EventRepository persists reviewable events and applies review transitions.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository constructs the repository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// GetByID fetches one event.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	if err := r.db.GetContext(ctx, &event, eventSelect+` WHERE e.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &event, nil
}

// ListByDocument returns the events derived from a document.
func (r *EventRepository) ListByDocument(ctx context.Context, documentID string) ([]models.Event, error) {
	var events []models.Event
	if err := r.db.SelectContext(ctx, &events, eventSelect+` WHERE e.document_id = $1 ORDER BY e.created_at`, documentID); err != nil {
		return nil, fmt.Errorf("list document events: %w", err)
	}
	return events, nil
}

// ListPending returns pending events oldest first. A nil department list means every department.
func (r *EventRepository) ListPending(ctx context.Context, departments []models.Department) ([]models.Event, error) {
	filter := models.EventFilter{Status: models.EventStatusPending, Departments: departments}
	events, err := r.list(ctx, filter, `e.created_at, e.id`)
	if err != nil {
		return nil, fmt.Errorf("list pending events: %w", err)
	}
	return events, nil
}

// ListValidated returns validated events in validation order. A nil department list means every department.
func (r *EventRepository) ListValidated(ctx context.Context, departments []models.Department) ([]models.Event, error) {
	filter := models.EventFilter{Status: models.EventStatusValidated, Departments: departments}
	events, err := r.list(ctx, filter, `e.reviewed_at, e.id`)
	if err != nil {
		return nil, fmt.Errorf("list validated events: %w", err)
	}
	return events, nil
}

// ListRejectedBySubmitter returns a submitter's rejected events, latest rejection first.
func (r *EventRepository) ListRejectedBySubmitter(ctx context.Context, userID string) ([]models.Event, error) {
	filter := models.EventFilter{Status: models.EventStatusRejected, SubmittedBy: userID}
	events, err := r.list(ctx, filter, `e.reviewed_at DESC, e.id`)
	if err != nil {
		return nil, fmt.Errorf("list rejected events: %w", err)
	}
	return events, nil
}

func (r *EventRepository) list(ctx context.Context, filter models.EventFilter, orderBy string) ([]models.Event, error) {
	query, args := buildEventFilter(filter)
	query += ` ORDER BY ` + orderBy
	var events []models.Event
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, err
	}
	return events, nil
}

// ApplyTransition moves a pending event to a terminal state in a single compare-and-set
// statement. It returns sql.ErrNoRows when the event is missing or no longer pending.
func (r *EventRepository) ApplyTransition(ctx context.Context, t models.Transition) error {
	params := map[string]interface{}{
		"id":          t.EventID,
		"status":      t.To,
		"reviewed_by": t.ReviewerID,
		"reviewed_at": t.At,
		"pending":     models.EventStatusPending,
	}

	var query string
	switch t.To {
	case models.EventStatusValidated:
		if t.Fields == nil {
			return fmt.Errorf("validated transition requires fields")
		}
		params["name"] = t.Fields.Name
		params["event_date"] = t.Fields.Date
		params["category"] = t.Fields.Category
		params["department"] = t.Fields.Department
		params["venue"] = t.Fields.Venue
		params["organizer"] = t.Fields.Organizer
		params["abstract"] = t.Fields.Abstract
		query = `UPDATE events SET status = :status, name = :name, event_date = :event_date, category = :category,
		department = :department, venue = :venue, organizer = :organizer, abstract = :abstract,
		reviewed_by = :reviewed_by, reviewed_at = :reviewed_at, updated_at = :reviewed_at
		WHERE id = :id AND status = :pending`
	case models.EventStatusRejected:
		if t.Comment == nil {
			return fmt.Errorf("rejected transition requires a comment")
		}
		params["comment"] = *t.Comment
		query = `UPDATE events SET status = :status, reviewer_comment = :comment,
		reviewed_by = :reviewed_by, reviewed_at = :reviewed_at, updated_at = :reviewed_at
		WHERE id = :id AND status = :pending`
	default:
		return fmt.Errorf("unsupported transition target %q", t.To)
	}

	result, err := r.db.NamedExecContext(ctx, query, params)
	if err != nil {
		return fmt.Errorf("apply event transition: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check event transition rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// buildEventFilter renders filter as a WHERE clause over eventSelect. A nil department list leaves
// departments unconstrained while an empty one matches nothing.
func buildEventFilter(filter models.EventFilter) (string, []interface{}) {
	query := eventSelect + ` WHERE e.status = $1`
	args := []interface{}{filter.Status}
	if filter.SubmittedBy != "" {
		args = append(args, filter.SubmittedBy)
		query += fmt.Sprintf(" AND e.submitted_by = $%d", len(args))
	}
	if filter.Departments != nil {
		names := make([]string, len(filter.Departments))
		for i, d := range filter.Departments {
			names[i] = string(d)
		}
		args = append(args, pq.Array(names))
		query += fmt.Sprintf(" AND e.department = ANY($%d)", len(args))
	}
	return query, args
}
