package handler

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/iqc-intake-api/internal/models"
	appErrors "github.com/noah-isme/iqc-intake-api/pkg/errors"
)

func TestReviewHandlerValidateFailuresAre422(t *testing.T) {
	reviews := &stubReviews{result: models.ValidationFailed([]models.FieldError{
		{Field: "name", Message: "name is required"},
		{Field: "date", Message: "date must be YYYY-MM-DD"},
	})}
	handler := NewReviewHandler(reviews)
	c, w := newTestContext(http.MethodPost, "/events/e1/validate", []byte(`{"name":"","date":"01/02/2024"}`), &teacherCaller)
	c.AddParam("id", "e1")

	handler.Validate(c)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var envelope struct {
		Error struct {
			Code    string              `json:"code"`
			Details []models.FieldError `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, appErrors.ErrValidationFailed.Code, envelope.Error.Code)
	assert.Len(t, envelope.Error.Details, 2)
	assert.Equal(t, "01/02/2024", reviews.fields.Date)
}

func TestReviewHandlerValidateSuccess(t *testing.T) {
	event := &models.Event{ID: "e1", Status: models.EventStatusValidated, Department: models.DepartmentCSECore}
	handler := NewReviewHandler(&stubReviews{result: models.ValidationOK(event)})
	c, w := newTestContext(http.MethodPost, "/events/e1/validate", []byte(`{"name":"Talk","date":"2024-02-01","category":"Seminar","department":"CSE(Core)"}`), &teacherCaller)
	c.AddParam("id", "e1")

	handler.Validate(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"validated"`)
}

func TestReviewHandlerValidateConflict(t *testing.T) {
	handler := NewReviewHandler(&stubReviews{err: appErrors.Clone(appErrors.ErrConflict, "event already reviewed")})
	c, w := newTestContext(http.MethodPost, "/events/e1/validate", []byte(`{}`), &iqcCaller)
	c.AddParam("id", "e1")

	handler.Validate(c)

	require.Equal(t, http.StatusConflict, w.Code)
}

func TestReviewHandlerRejectAcceptsEmptyBody(t *testing.T) {
	reviews := &stubReviews{}
	handler := NewReviewHandler(reviews)
	c, w := newTestContext(http.MethodPost, "/events/e1/reject", nil, &iqcCaller)
	c.AddParam("id", "e1")

	handler.Reject(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, reviews.rejectNote)
}

func TestReviewHandlerRejectPassesComment(t *testing.T) {
	reviews := &stubReviews{}
	handler := NewReviewHandler(reviews)
	c, w := newTestContext(http.MethodPost, "/events/e1/reject", []byte(`{"comment":"missing signature"}`), &teacherCaller)
	c.AddParam("id", "e1")

	handler.Reject(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "missing signature", reviews.rejectNote)
	require.Contains(t, w.Body.String(), `"comment":"missing signature"`)
}

func TestReviewHandlerRequiresIdentity(t *testing.T) {
	handler := NewReviewHandler(&stubReviews{})
	c, w := newTestContext(http.MethodGet, "/reviews/pending", nil, nil)

	handler.ListPending(c)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestReviewHandlerListPendingNeverNull(t *testing.T) {
	handler := NewReviewHandler(&stubReviews{})
	c, w := newTestContext(http.MethodGet, "/reviews/pending", nil, &iqcCaller)

	handler.ListPending(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"data":[]`)
}
