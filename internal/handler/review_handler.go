package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/iqc-intake-api/internal/dto"
	"github.com/noah-isme/iqc-intake-api/internal/models"
	appErrors "github.com/noah-isme/iqc-intake-api/pkg/errors"
	"github.com/noah-isme/iqc-intake-api/pkg/response"
)

type reviewService interface {
	ListPending(ctx context.Context, identity models.Identity) ([]models.Event, error)
	Validate(ctx context.Context, identity models.Identity, eventID string, fields models.EventFields) (models.ValidationResult, error)
	Reject(ctx context.Context, identity models.Identity, eventID, comment string) (*models.Event, error)
}

// ReviewHandler exposes the pending queue and review decisions.
type ReviewHandler struct {
	service reviewService
}

// NewReviewHandler constructs the handler.
func NewReviewHandler(svc reviewService) *ReviewHandler {
	return &ReviewHandler{service: svc}
}

// ListPending godoc
// @Summary Pending events
// @Description Events awaiting review within the caller's departments
// @Tags Review
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /reviews/pending [get]
func (h *ReviewHandler) ListPending(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	events, err := h.service.ListPending(c.Request.Context(), identity)
	if err != nil {
		response.Error(c, err)
		return
	}
	if events == nil {
		events = []models.Event{}
	}
	response.JSON(c, http.StatusOK, events, nil)
}

// Validate godoc
// @Summary Validate event
// @Description Applies reviewer corrections and marks the event validated
// @Tags Review
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param payload body dto.ValidateEventRequest true "Corrected fields"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Security BearerAuth
// @Router /events/{id}/validate [post]
func (h *ReviewHandler) Validate(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	var req dto.ValidateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid validation payload"))
		return
	}

	result, err := h.service.Validate(c.Request.Context(), identity, c.Param("id"), req.Fields())
	if err != nil {
		response.Error(c, err)
		return
	}
	event, ok := result.Event()
	if !ok {
		response.Error(c, appErrors.WithDetails(appErrors.ErrValidationFailed, result.Failures()))
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Reject godoc
// @Summary Reject event
// @Description Marks the event rejected with an optional comment
// @Tags Review
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param payload body dto.RejectEventRequest false "Reviewer comment"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /events/{id}/reject [post]
func (h *ReviewHandler) Reject(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	var req dto.RejectEventRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reject payload"))
			return
		}
	}

	event, err := h.service.Reject(c.Request.Context(), identity, c.Param("id"), req.Comment)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}
