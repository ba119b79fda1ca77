package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/iqc-intake-api/internal/models"
	appErrors "github.com/noah-isme/iqc-intake-api/pkg/errors"
)

type memEventStore struct {
	mu     sync.Mutex
	events map[string]*models.Event
}

func newMemEventStore(events ...models.Event) *memEventStore {
	store := &memEventStore{events: map[string]*models.Event{}}
	for i := range events {
		e := events[i]
		store.events[e.ID] = &e
	}
	return store
}

func (m *memEventStore) GetByID(ctx context.Context, id string) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *e
	return &cp, nil
}

func (m *memEventStore) list(match func(*models.Event) bool, less func(a, b models.Event) bool) []models.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Event
	for _, e := range m.events {
		if match(e) {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func inDepts(depts []models.Department, d models.Department) bool {
	if depts == nil {
		return true
	}
	for _, x := range depts {
		if x == d {
			return true
		}
	}
	return false
}

func (m *memEventStore) ListByDocument(ctx context.Context, documentID string) ([]models.Event, error) {
	return m.list(func(e *models.Event) bool { return e.DocumentID == documentID },
		func(a, b models.Event) bool { return a.CreatedAt.Before(b.CreatedAt) }), nil
}

func (m *memEventStore) ListPending(ctx context.Context, departments []models.Department) ([]models.Event, error) {
	return m.list(func(e *models.Event) bool { return e.Status == models.EventStatusPending && inDepts(departments, e.Department) },
		func(a, b models.Event) bool { return a.CreatedAt.Before(b.CreatedAt) }), nil
}

func (m *memEventStore) ListValidated(ctx context.Context, departments []models.Department) ([]models.Event, error) {
	return m.list(func(e *models.Event) bool { return e.Status == models.EventStatusValidated && inDepts(departments, e.Department) },
		func(a, b models.Event) bool { return a.ReviewedAt.Before(*b.ReviewedAt) }), nil
}

func (m *memEventStore) ListRejectedBySubmitter(ctx context.Context, userID string) ([]models.Event, error) {
	return m.list(func(e *models.Event) bool { return e.Status == models.EventStatusRejected && e.SubmittedBy == userID },
		func(a, b models.Event) bool { return a.ReviewedAt.After(*b.ReviewedAt) }), nil
}

func (m *memEventStore) ApplyTransition(ctx context.Context, t models.Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[t.EventID]
	if !ok || e.Status != models.EventStatusPending {
		return sql.ErrNoRows
	}
	if t.To == models.EventStatusValidated {
		fields := *t.Fields
		e.Name, e.Date, e.Category, e.Department = fields.Name, fields.Date, fields.Category, fields.Department
		e.Venue, e.Organizer, e.Abstract = fields.Venue, fields.Organizer, fields.Abstract
	} else {
		e.ReviewerComment = t.Comment
	}
	at := t.At
	reviewer := t.ReviewerID
	e.Status = t.To
	e.ReviewedAt = &at
	e.ReviewedBy = &reviewer
	return nil
}

type memDocReader struct {
	docs     map[string]*models.Document
	entities map[string][]models.Entity
}

func (m *memDocReader) GetByID(ctx context.Context, id string) (*models.Document, error) {
	d, ok := m.docs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return d, nil
}

func (m *memDocReader) ListEntities(ctx context.Context, documentID string) ([]models.Entity, error) {
	return m.entities[documentID], nil
}

type fixedSigner struct{}

func (fixedSigner) DownloadURL(doc *models.Document) (string, time.Time, error) {
	return "signed-" + doc.ID, time.Unix(1700000000, 0), nil
}

type recordingInvalidator struct {
	mu    sync.Mutex
	depts []models.Department
}

func (r *recordingInvalidator) InvalidateDepartments(ctx context.Context, depts ...models.Department) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.depts = append(r.depts, depts...)
}

type memAudit struct {
	mu   sync.Mutex
	logs []*models.AuditLog
}

func (m *memAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, log)
	return nil
}

var (
	iqcIdentity      = models.Identity{UserID: "iqc-1", Username: "iqc", Role: models.RoleIQC}
	aimlTeacher      = models.Identity{UserID: "t-aiml", Username: "teacher_aiml", Role: models.RoleTeacher, Department: models.DepartmentAIML}
	eceTeacher       = models.Identity{UserID: "t-ece", Username: "teacher_ece", Role: models.RoleTeacher, Department: models.DepartmentECE}
	aimlStudent      = models.Identity{UserID: "s-aiml", Username: "student1", Role: models.RoleStudent, Department: models.DepartmentAIML}
	baseTime         = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	validAIMLPayload = models.EventFields{Name: "  ML Bootcamp ", Date: "2024-03-15", Category: "workshop", Department: "aiml", Venue: "Hall A"}
)

func pendingEvent(id string, dept models.Department, offset int) models.Event {
	return models.Event{
		ID:          id,
		DocumentID:  "doc-" + id,
		Name:        "Extracted " + id,
		Category:    models.CategoryGeneralEvent,
		Department:  dept,
		Status:      models.EventStatusPending,
		SubmittedBy: aimlStudent.UserID,
		CreatedAt:   baseTime.Add(time.Duration(offset) * time.Minute),
	}
}

func newReviewFixture(events ...models.Event) (*ReviewService, *memEventStore, *recordingInvalidator, *memAudit) {
	store := newMemEventStore(events...)
	inv := &recordingInvalidator{}
	audit := &memAudit{}
	docs := &memDocReader{docs: map[string]*models.Document{}, entities: map[string][]models.Entity{}}
	svc := NewReviewService(store, docs, fixedSigner{}, inv, audit, NewMetricsService(), zap.NewNop())
	return svc, store, inv, audit
}

func TestValidateAccumulatesEveryFieldError(t *testing.T) {
	svc, store, inv, _ := newReviewFixture(pendingEvent("e1", models.DepartmentAIML, 0))

	result, err := svc.Validate(context.Background(), iqcIdentity, "e1", models.EventFields{
		Name: "   ", Date: "2024-02-30", Category: "Party", Department: "Physics",
	})
	require.NoError(t, err)
	require.False(t, result.OK())

	var fields []string
	for _, f := range result.Failures() {
		fields = append(fields, f.Field)
	}
	assert.Equal(t, []string{"name", "date", "category", "department"}, fields)

	stored, _ := store.GetByID(context.Background(), "e1")
	assert.Equal(t, models.EventStatusPending, stored.Status)
	assert.Equal(t, "Extracted e1", stored.Name)
	assert.Empty(t, inv.depts)
}

func TestValidatePersistsTrimmedCanonicalFields(t *testing.T) {
	svc, _, inv, audit := newReviewFixture(pendingEvent("e1", models.DepartmentAIML, 0))

	result, err := svc.Validate(context.Background(), aimlTeacher, "e1", validAIMLPayload)
	require.NoError(t, err)
	event, ok := result.Event()
	require.True(t, ok)

	assert.Equal(t, models.EventStatusValidated, event.Status)
	assert.Equal(t, "ML Bootcamp", event.Name)
	assert.Equal(t, "2024-03-15", event.Date.String())
	assert.Equal(t, models.CategoryWorkshop, event.Category)
	assert.Equal(t, models.DepartmentAIML, event.Department)
	assert.Equal(t, "Hall A", event.Venue)
	require.NotNil(t, event.ReviewedBy)
	assert.Equal(t, aimlTeacher.UserID, *event.ReviewedBy)

	assert.Contains(t, inv.depts, models.DepartmentAIML)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionEventValidate, audit.logs[0].Action)
}

func TestValidateForbiddenOutsideTeacherDepartment(t *testing.T) {
	svc, store, _, _ := newReviewFixture(pendingEvent("e1", models.DepartmentAIML, 0))

	_, err := svc.Validate(context.Background(), eceTeacher, "e1", validAIMLPayload)
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	stored, _ := store.GetByID(context.Background(), "e1")
	assert.Equal(t, models.EventStatusPending, stored.Status)
	assert.Equal(t, "Extracted e1", stored.Name)
}

func TestValidateTeacherCannotMoveEventAcrossDepartments(t *testing.T) {
	svc, store, _, _ := newReviewFixture(pendingEvent("e1", models.DepartmentAIML, 0))
	payload := validAIMLPayload
	payload.Department = "ECE"

	_, err := svc.Validate(context.Background(), aimlTeacher, "e1", payload)
	require.ErrorIs(t, err, appErrors.ErrForbidden)
	stored, _ := store.GetByID(context.Background(), "e1")
	assert.Equal(t, models.EventStatusPending, stored.Status)

	result, err := svc.Validate(context.Background(), iqcIdentity, "e1", payload)
	require.NoError(t, err)
	event, _ := result.Event()
	assert.Equal(t, models.DepartmentECE, event.Department)
}

func TestReviewErrorsForMissingAndStudent(t *testing.T) {
	svc, _, _, _ := newReviewFixture(pendingEvent("e1", models.DepartmentAIML, 0))

	_, err := svc.Validate(context.Background(), iqcIdentity, "missing", validAIMLPayload)
	require.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = svc.Reject(context.Background(), aimlStudent, "e1", "nope")
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestTerminalEventsCannotBeReviewedAgain(t *testing.T) {
	svc, _, _, _ := newReviewFixture(pendingEvent("e1", models.DepartmentAIML, 0))

	_, err := svc.Reject(context.Background(), aimlTeacher, "e1", "missing venue proof")
	require.NoError(t, err)

	_, err = svc.Validate(context.Background(), iqcIdentity, "e1", validAIMLPayload)
	require.ErrorIs(t, err, appErrors.ErrConflict)
	_, err = svc.Reject(context.Background(), iqcIdentity, "e1", "")
	require.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestRejectRetainsDestinationAndDefaultsComment(t *testing.T) {
	first := pendingEvent("e1", models.DepartmentAIML, 0)
	first.Category = models.CategorySeminar
	svc, _, inv, _ := newReviewFixture(first, pendingEvent("e2", models.DepartmentAIML, 1))

	event, err := svc.Reject(context.Background(), aimlTeacher, "e1", "missing venue proof")
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusRejected, event.Status)
	require.NotNil(t, event.ReviewerComment)
	assert.Equal(t, "missing venue proof", *event.ReviewerComment)
	assert.Equal(t, models.DepartmentAIML, event.Department)
	assert.Equal(t, models.CategorySeminar, event.Category)
	assert.Contains(t, inv.depts, models.DepartmentAIML)

	event, err = svc.Reject(context.Background(), iqcIdentity, "e2", "   ")
	require.NoError(t, err)
	assert.Equal(t, DefaultRejectComment, *event.ReviewerComment)

	pending, err := svc.ListPending(context.Background(), iqcIdentity)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestListPendingScopesByRole(t *testing.T) {
	svc, _, _, _ := newReviewFixture(
		pendingEvent("late", models.DepartmentAIML, 5),
		pendingEvent("early", models.DepartmentAIML, 1),
		pendingEvent("ece", models.DepartmentECE, 2),
	)

	events, err := svc.ListPending(context.Background(), aimlTeacher)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "early", events[0].ID)
	assert.Equal(t, "late", events[1].ID)

	events, err = svc.ListPending(context.Background(), iqcIdentity)
	require.NoError(t, err)
	assert.Len(t, events, 3)

	_, err = svc.ListPending(context.Background(), aimlStudent)
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestConcurrentReviewsHaveExactlyOneWinner(t *testing.T) {
	svc, store, _, _ := newReviewFixture(pendingEvent("e1", models.DepartmentAIML, 0))

	const reviewers = 16
	type outcome struct {
		validate bool
		err      error
	}
	results := make(chan outcome, reviewers)
	var wg sync.WaitGroup
	for i := 0; i < reviewers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, err := svc.Validate(context.Background(), iqcIdentity, "e1", validAIMLPayload)
				results <- outcome{validate: true, err: err}
				return
			}
			_, err := svc.Reject(context.Background(), aimlTeacher, "e1", "dup")
			results <- outcome{err: err}
		}(i)
	}
	wg.Wait()
	close(results)

	var winners []outcome
	for res := range results {
		if res.err == nil {
			winners = append(winners, res)
			continue
		}
		assert.True(t, errors.Is(res.err, appErrors.ErrConflict), "unexpected error %v", res.err)
	}
	require.Len(t, winners, 1)

	stored, err := store.GetByID(context.Background(), "e1")
	require.NoError(t, err)
	if winners[0].validate {
		assert.Equal(t, models.EventStatusValidated, stored.Status)
		assert.Equal(t, "ML Bootcamp", stored.Name)
		assert.Equal(t, "2024-03-15", stored.Date.String())
		assert.Equal(t, models.CategoryWorkshop, stored.Category)
		assert.Equal(t, models.DepartmentAIML, stored.Department)
		assert.Equal(t, "Hall A", stored.Venue)
		assert.Nil(t, stored.ReviewerComment)
		assert.Equal(t, iqcIdentity.UserID, *stored.ReviewedBy)
	} else {
		assert.Equal(t, models.EventStatusRejected, stored.Status)
		require.NotNil(t, stored.ReviewerComment)
		assert.Equal(t, "dup", *stored.ReviewerComment)
		assert.Equal(t, aimlTeacher.UserID, *stored.ReviewedBy)
	}
}

// reloadFailingStore serves reads normally until a transition lands, then fails them.
type reloadFailingStore struct {
	*memEventStore
	applied bool
}

func (s *reloadFailingStore) GetByID(ctx context.Context, id string) (*models.Event, error) {
	if s.applied {
		return nil, errors.New("replica unavailable")
	}
	return s.memEventStore.GetByID(ctx, id)
}

func (s *reloadFailingStore) ApplyTransition(ctx context.Context, t models.Transition) error {
	if err := s.memEventStore.ApplyTransition(ctx, t); err != nil {
		return err
	}
	s.applied = true
	return nil
}

func TestCommittedReviewSurvivesFailedReload(t *testing.T) {
	store := &reloadFailingStore{memEventStore: newMemEventStore(pendingEvent("v1", models.DepartmentAIML, 0), pendingEvent("r1", models.DepartmentAIML, 1))}
	svc := NewReviewService(store, &memDocReader{}, nil, nil, nil, nil, zap.NewNop())

	result, err := svc.Validate(context.Background(), iqcIdentity, "v1", validAIMLPayload)
	require.NoError(t, err)
	validated, ok := result.Event()
	require.True(t, ok)
	assert.Equal(t, models.EventStatusValidated, validated.Status)
	assert.Equal(t, "ML Bootcamp", validated.Name)
	require.NotNil(t, validated.ReviewedBy)
	assert.Equal(t, iqcIdentity.UserID, *validated.ReviewedBy)

	store.applied = false
	rejected, err := svc.Reject(context.Background(), aimlTeacher, "r1", "")
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusRejected, rejected.Status)
	require.NotNil(t, rejected.ReviewerComment)
	assert.Equal(t, DefaultRejectComment, *rejected.ReviewerComment)
}

func TestGetDocumentDetailAppliesCapabilities(t *testing.T) {
	store := newMemEventStore(pendingEvent("e1", models.DepartmentAIML, 0))
	docs := &memDocReader{
		docs: map[string]*models.Document{
			"doc-e1": {ID: "doc-e1", OwnerID: aimlStudent.UserID, Department: models.DepartmentAIML, StorageKey: "documents/2024/03/doc-e1.pdf"},
		},
		entities: map[string][]models.Entity{"doc-e1": {{ID: "n1", Type: "venue", Value: "Hall A", Confidence: 0.9}}},
	}
	svc := NewReviewService(store, docs, fixedSigner{}, nil, nil, nil, zap.NewNop())

	detail, err := svc.GetDocumentDetail(context.Background(), aimlStudent, "doc-e1")
	require.NoError(t, err)
	assert.Len(t, detail.Entities, 1)
	assert.Len(t, detail.Events, 1)
	assert.Equal(t, "signed-doc-e1", detail.DownloadURL)

	_, err = svc.GetDocumentDetail(context.Background(), eceTeacher, "doc-e1")
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.GetDocumentDetail(context.Background(), iqcIdentity, "nope")
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}
