package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/iqc-intake-api/internal/dto"
	"github.com/noah-isme/iqc-intake-api/internal/middleware"
	"github.com/noah-isme/iqc-intake-api/internal/models"
	"github.com/noah-isme/iqc-intake-api/internal/service"
	appErrors "github.com/noah-isme/iqc-intake-api/pkg/errors"
	"github.com/noah-isme/iqc-intake-api/pkg/response"
)

type trackerService interface {
	DepartmentSummary(ctx context.Context, identity models.Identity, scope string) (dto.TrackerSummary, bool, error)
	RejectedForUser(ctx context.Context, identity models.Identity, username string) ([]models.Event, error)
}

type reportCompiler interface {
	Compile(ctx context.Context, identity models.Identity, department, format string) (*dto.ReportArtifact, error)
}

// TrackerHandler serves department progress, rejected lists and reports.
type TrackerHandler struct {
	tracker trackerService
	reports reportCompiler
}

// NewTrackerHandler constructs the handler.
func NewTrackerHandler(tracker trackerService, reports reportCompiler) *TrackerHandler {
	return &TrackerHandler{tracker: tracker, reports: reports}
}

// Summary godoc
// @Summary Progress summary
// @Description Progress for every department visible to the caller
// @Tags Tracker
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /tracker [get]
func (h *TrackerHandler) Summary(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	summary, hit, err := h.tracker.DepartmentSummary(c.Request.Context(), identity, service.ScopeAll)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, summary, nil, middleware.ExtractMeta(c))
}

// Department godoc
// @Summary Department progress
// @Description Validated events of one department grouped by category
// @Tags Tracker
// @Produce json
// @Param department path string true "Department"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /tracker/{department} [get]
func (h *TrackerHandler) Department(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	scope := c.Param("department")
	if scope == service.ScopeAll {
		h.Summary(c)
		return
	}
	summary, hit, err := h.tracker.DepartmentSummary(c.Request.Context(), identity, scope)
	if err != nil {
		response.Error(c, err)
		return
	}
	var progress models.DepartmentProgress
	for _, p := range summary {
		progress = p
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, progress, nil, middleware.ExtractMeta(c))
}

// Report godoc
// @Summary Department report
// @Description Renders the department's validated events as pdf, csv or xlsx
// @Tags Tracker
// @Produce application/pdf
// @Produce text/csv
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param department path string true "Department"
// @Param format query string false "pdf, csv or xlsx" default(pdf)
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /tracker/{department}/report [get]
func (h *TrackerHandler) Report(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	artifact, err := h.reports.Compile(c.Request.Context(), identity, c.Param("department"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, artifact.Filename, artifact.ContentType, artifact.Body)
}

// Rejected godoc
// @Summary Rejected events
// @Description Rejected events of a submitter, most recent first
// @Tags Tracker
// @Produce json
// @Param username path string true "Username"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /tracker/rejected/{username} [get]
func (h *TrackerHandler) Rejected(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	username := c.Param("username")
	if username == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "username is required"))
		return
	}
	events, err := h.tracker.RejectedForUser(c.Request.Context(), identity, username)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.RejectedEvents{Username: username, Events: events}, nil)
}
