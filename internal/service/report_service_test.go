package service

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/iqc-intake-api/internal/models"
	appErrors "github.com/noah-isme/iqc-intake-api/pkg/errors"
)

func newReportFixture() (*ReportService, *memAudit) {
	store := newMemEventStore(
		validatedEvent("a", models.DepartmentAIML, models.CategoryWorkshop, 1),
		validatedEvent("b", models.DepartmentAIML, models.CategorySeminar, 2),
	)
	agg := NewAggregationService(store, testUsers, nil, zap.NewNop(), AggregationConfig{Target: 10})
	audit := &memAudit{}
	return NewReportService(agg, audit, zap.NewNop(), "Test Institute"), audit
}

func TestCompileRendersEveryFormat(t *testing.T) {
	svc, audit := newReportFixture()

	cases := map[string]struct {
		filename    string
		contentType string
		magic       []byte
	}{
		"pdf":  {"AIML_IQC_Report.pdf", "application/pdf", []byte("%PDF")},
		"csv":  {"AIML_IQC_Report.csv", "text/csv", []byte("Section,")},
		"xlsx": {"AIML_IQC_Report.xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", []byte("PK")},
	}
	for format, want := range cases {
		artifact, err := svc.Compile(context.Background(), aimlTeacher, "aiml", format)
		require.NoError(t, err, format)
		assert.Equal(t, want.filename, artifact.Filename)
		assert.Equal(t, want.contentType, artifact.ContentType)
		assert.True(t, bytes.HasPrefix(artifact.Body, want.magic), format)
	}
	assert.Len(t, audit.logs, 3)
}

func TestCompileCSVListsEventsByCategory(t *testing.T) {
	svc, _ := newReportFixture()
	artifact, err := svc.Compile(context.Background(), iqcIdentity, "AIML", "CSV")
	require.NoError(t, err)

	body := string(artifact.Body)
	assert.Contains(t, body, "Seminar,Event b")
	assert.Contains(t, body, "Workshop,Event a")
}

func TestCompileErrors(t *testing.T) {
	svc, _ := newReportFixture()
	ctx := context.Background()

	_, err := svc.Compile(ctx, iqcIdentity, "AIML", "docx")
	require.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Compile(ctx, iqcIdentity, "Physics", "pdf")
	require.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Compile(ctx, eceTeacher, "AIML", "pdf")
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestCompileEmptyDepartmentStillRenders(t *testing.T) {
	svc, _ := newReportFixture()
	artifact, err := svc.Compile(context.Background(), iqcIdentity, "ECE", "csv")
	require.NoError(t, err)
	assert.Equal(t, "ECE_IQC_Report.csv", artifact.Filename)
	assert.Contains(t, string(artifact.Body), "Section,Name,Date,Venue,Organizer,Type")
}
