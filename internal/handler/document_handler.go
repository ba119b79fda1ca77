package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/iqc-intake-api/internal/dto"
	"github.com/noah-isme/iqc-intake-api/internal/models"
	"github.com/noah-isme/iqc-intake-api/internal/service"
	appErrors "github.com/noah-isme/iqc-intake-api/pkg/errors"
	"github.com/noah-isme/iqc-intake-api/pkg/response"
)

// DownloadResourceKey is where the download handler leaves the document id for auditing.
const DownloadResourceKey = "document_id"

type submissionService interface {
	Upload(ctx context.Context, identity models.Identity, in service.UploadInput) (*models.Document, error)
	ListDocuments(ctx context.Context, identity models.Identity, page, pageSize int) ([]models.Document, *models.Pagination, error)
	ResolveDownload(ctx context.Context, token string) (*service.Download, error)
}

type documentDetailService interface {
	GetDocumentDetail(ctx context.Context, identity models.Identity, documentID string) (*dto.DocumentDetail, error)
}

// DocumentHandler serves uploads, listings and downloads.
type DocumentHandler struct {
	submissions submissionService
	details     documentDetailService
	downloadURL func(token string) string
}

// NewDocumentHandler constructs the handler. downloadPath is the public prefix tokens are appended to.
func NewDocumentHandler(submissions submissionService, details documentDetailService, downloadPath string) *DocumentHandler {
	return &DocumentHandler{
		submissions: submissions,
		details:     details,
		downloadURL: func(token string) string { return downloadPath + "/" + token },
	}
}

// Upload godoc
// @Summary Upload a document
// @Description Stores a report or certificate and schedules extraction
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Document (pdf, png, jpg, jpeg, tiff)"
// @Param department formData string false "Department, defaults to the uploader's"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Failure 415 {object} response.Envelope
// @Security BearerAuth
// @Router /documents [post]
func (h *DocumentHandler) Upload(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unable to read file"))
		return
	}
	defer file.Close()

	doc, err := h.submissions.Upload(c.Request.Context(), identity, service.UploadInput{
		Filename:   header.Filename,
		Size:       header.Size,
		Body:       file,
		Department: c.PostForm("department"),
		IP:         c.ClientIP(),
		UserAgent:  c.GetHeader("User-Agent"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, dto.UploadResponse{
		DocumentID:       doc.ID,
		Filename:         doc.OriginalFilename,
		Department:       doc.Department,
		ExtractionStatus: doc.ExtractionStatus,
	})
}

// List godoc
// @Summary List documents
// @Description iqc sees every document, teachers their department, students their own uploads
// @Tags Documents
// @Produce json
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /documents [get]
func (h *DocumentHandler) List(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	docs, pagination, err := h.submissions.ListDocuments(c.Request.Context(), identity, page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}
	response.JSON(c, http.StatusOK, docs, pagination)
}

// Get godoc
// @Summary Document detail
// @Description Document with raw text, entities, events and a signed download link
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /documents/{id} [get]
func (h *DocumentHandler) Get(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	detail, err := h.details.GetDocumentDetail(c.Request.Context(), identity, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if detail.DownloadURL != "" {
		detail.DownloadURL = h.downloadURL(detail.DownloadURL)
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Download godoc
// @Summary Download original file
// @Description Streams the uploaded file for a valid signed token
// @Tags Documents
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /documents/download/{token} [get]
func (h *DocumentHandler) Download(c *gin.Context) {
	download, err := h.submissions.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.Body.Close()

	doc := download.Document
	c.Set(DownloadResourceKey, doc.ID)
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, doc.SizeBytes, doc.ContentType, download.Body, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", doc.OriginalFilename),
	})
}
