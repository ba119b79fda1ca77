package service

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/iqc-intake-api/internal/models"
	"github.com/noah-isme/iqc-intake-api/pkg/extraction"
	"github.com/noah-isme/iqc-intake-api/pkg/jobs"
)

type stubExtractor struct {
	result *extraction.Result
	err    error
	calls  int
	body   []byte
}

func (s *stubExtractor) Extract(ctx context.Context, req extraction.Request) (*extraction.Result, error) {
	s.calls++
	s.body, _ = io.ReadAll(req.Body)
	return s.result, s.err
}

func newIngestFixture(extractor *stubExtractor) (*IngestService, *memDocStore) {
	doc := &models.Document{
		ID:               "doc-1",
		OwnerID:          aimlStudent.UserID,
		Department:       models.DepartmentAIML,
		OriginalFilename: "cert.pdf",
		StorageKey:       "documents/2024/03/doc-1.pdf",
		ContentType:      "application/pdf",
		ExtractionStatus: models.ExtractionStatusUploaded,
	}
	docs := newMemDocStore(doc)
	objects := newMemObjectStore()
	objects.objects[doc.StorageKey] = []byte("%PDF-1.4 certificate")
	return NewIngestService(docs, objects, extractor, NewMetricsService(), zap.NewNop()), docs
}

func TestIngestNormalisesCandidate(t *testing.T) {
	extractor := &stubExtractor{result: &extraction.Result{
		RawText: "Certificate of participation",
		Entities: []extraction.Entity{
			{Type: "organizer", Value: " IEEE ", Confidence: 0.92},
			{Type: "venue", Value: "  ", Confidence: 0.5},
			{Type: "date", Value: "2024-03-15", Confidence: 1.7},
		},
		CandidateEvent: extraction.CandidateEvent{
			Name:       " Signal Processing Workshop ",
			Date:       "2024-13-40",
			Category:   "hackathon",
			Department: "Department of Electronics and Communication",
			DocType:    "certificate",
		},
	}}
	svc, docs := newIngestFixture(extractor)

	require.NoError(t, svc.Handle(context.Background(), jobs.Job{ID: "doc-1", Type: JobTypeIngest, Payload: "doc-1"}))
	assert.Equal(t, 1, extractor.calls)
	assert.Equal(t, []byte("%PDF-1.4 certificate"), extractor.body)

	require.Len(t, docs.ingestions, 1)
	in := docs.ingestions[0]
	assert.Equal(t, models.DocumentTypeCertificate, in.DocumentType)
	require.Len(t, in.Entities, 2)
	assert.Equal(t, "IEEE", in.Entities[0].Value)
	assert.Equal(t, float64(1), in.Entities[1].Confidence)

	event := in.Event
	require.NotNil(t, event)
	assert.Equal(t, "Signal Processing Workshop", event.Name)
	assert.False(t, event.Date.Valid)
	assert.Equal(t, models.CategoryGeneralEvent, event.Category)
	assert.Equal(t, models.DepartmentECE, event.Department)
	assert.Equal(t, models.EventStatusPending, event.Status)
	assert.Equal(t, aimlStudent.UserID, event.SubmittedBy)

	stored, _ := docs.GetByID(context.Background(), "doc-1")
	assert.Equal(t, models.ExtractionStatusNeedsReview, stored.ExtractionStatus)
}

func TestIngestFailureMarksDocumentFailed(t *testing.T) {
	extractor := &stubExtractor{err: errors.New("ocr backend unavailable")}
	svc, docs := newIngestFixture(extractor)

	require.NoError(t, svc.Handle(context.Background(), jobs.Job{ID: "doc-1", Payload: "doc-1"}))

	stored, _ := docs.GetByID(context.Background(), "doc-1")
	assert.Equal(t, models.ExtractionStatusFailed, stored.ExtractionStatus)
	require.NotNil(t, stored.LastError)
	assert.Contains(t, *stored.LastError, "ocr backend unavailable")
	assert.Empty(t, docs.ingestions)
}

// ctxAwareDocStore refuses status writes on a finished context, as a database driver would.
type ctxAwareDocStore struct{ *memDocStore }

func (s ctxAwareDocStore) UpdateExtractionStatus(ctx context.Context, id string, status models.ExtractionStatus, lastError *string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.memDocStore.UpdateExtractionStatus(ctx, id, status, lastError)
}

// cancellingExtractor simulates the queue shutting down mid-extraction.
type cancellingExtractor struct{ cancel context.CancelFunc }

func (e cancellingExtractor) Extract(ctx context.Context, req extraction.Request) (*extraction.Result, error) {
	e.cancel()
	return nil, ctx.Err()
}

func TestIngestRecordsFailureAfterShutdownCancel(t *testing.T) {
	_, docs := newIngestFixture(&stubExtractor{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	objects := newMemObjectStore()
	objects.objects["documents/2024/03/doc-1.pdf"] = []byte("%PDF-1.4 certificate")
	svc := NewIngestService(ctxAwareDocStore{docs}, objects, cancellingExtractor{cancel: cancel}, NewMetricsService(), zap.NewNop())

	require.NoError(t, svc.Handle(ctx, jobs.Job{ID: "doc-1", Payload: "doc-1"}))

	stored, _ := docs.GetByID(context.Background(), "doc-1")
	assert.Equal(t, models.ExtractionStatusFailed, stored.ExtractionStatus)
	require.NotNil(t, stored.LastError)
	assert.Contains(t, *stored.LastError, context.Canceled.Error())
}

func TestIngestRejectsBadPayload(t *testing.T) {
	svc, _ := newIngestFixture(&stubExtractor{})
	err := svc.Handle(context.Background(), jobs.Job{ID: "x", Payload: 42})
	require.Error(t, err)
	assert.True(t, jobs.IsPermanent(err))
}

func TestNormalizeDepartment(t *testing.T) {
	cases := map[string]models.Department{
		"CSE(Core)":                                    models.DepartmentCSECore,
		"cse(core)":                                    models.DepartmentCSECore,
		"Dept. of AI & ML":                             models.DepartmentAIML,
		"Artificial Intelligence and Machine Learning": models.DepartmentAIML,
		"Information Science and Engineering":          models.DepartmentISE,
		"Aeronautical Engineering":                     models.DepartmentAERO,
		"Computer Science and Engineering":             models.DepartmentCSECore,
		"CSE Data Science":                             models.Department(""),
		"":                                             models.Department(""),
		"Mechanical":                                   models.Department(""),
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizeDepartment(raw, ""), raw)
	}
}
