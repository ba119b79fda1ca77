package handler

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/iqc-intake-api/internal/dto"
	"github.com/noah-isme/iqc-intake-api/internal/middleware"
	"github.com/noah-isme/iqc-intake-api/internal/models"
	"github.com/noah-isme/iqc-intake-api/internal/service"
	appErrors "github.com/noah-isme/iqc-intake-api/pkg/errors"
)

var (
	iqcCaller     = models.Identity{UserID: "u-iqc", Username: "iqc", Role: models.RoleIQC}
	teacherCaller = models.Identity{UserID: "u-t1", Username: "teacher1", Role: models.RoleTeacher, Department: models.DepartmentCSECore}
	studentCaller = models.Identity{UserID: "u-s1", Username: "student1", Role: models.RoleStudent, Department: models.DepartmentAIML}
)

type tokenTable map[string]models.Identity

func (t tokenTable) ValidateToken(token string) (*models.JWTClaims, error) {
	identity, ok := t[token]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return &models.JWTClaims{
		UserID:     identity.UserID,
		Username:   identity.Username,
		Role:       identity.Role,
		Department: identity.Department,
	}, nil
}

var testTokens = tokenTable{
	"iqc-token":     iqcCaller,
	"teacher-token": teacherCaller,
	"student-token": studentCaller,
}

type stubAuthService struct {
	loginErr error
}

func (s *stubAuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if s.loginErr != nil {
		return nil, s.loginErr
	}
	return &models.LoginResponse{AccessToken: "access", RefreshToken: "refresh", User: studentCaller}, nil
}

func (s *stubAuthService) RefreshToken(ctx context.Context, req models.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	return &models.RefreshTokenResponse{AccessToken: "access-2", RefreshToken: "refresh-2"}, nil
}

func (s *stubAuthService) Logout(ctx context.Context, identity models.Identity, refreshToken, ip, userAgent string) error {
	return nil
}

func (s *stubAuthService) ChangePassword(ctx context.Context, identity models.Identity, req models.ChangePasswordRequest) error {
	return nil
}

type stubSubmissions struct {
	uploaded    *service.UploadInput
	uploadBody  []byte
	uploadErr   error
	listed      []models.Document
	download    *service.Download
	downloadErr error
}

func (s *stubSubmissions) Upload(ctx context.Context, identity models.Identity, in service.UploadInput) (*models.Document, error) {
	if s.uploadErr != nil {
		return nil, s.uploadErr
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	s.uploaded = &in
	s.uploadBody = body
	dept := identity.Department
	if in.Department != "" {
		dept = models.Department(in.Department)
	}
	return &models.Document{
		ID:               "doc-1",
		OwnerID:          identity.UserID,
		Department:       dept,
		OriginalFilename: in.Filename,
		ExtractionStatus: models.ExtractionStatusUploaded,
	}, nil
}

func (s *stubSubmissions) ListDocuments(ctx context.Context, identity models.Identity, page, pageSize int) ([]models.Document, *models.Pagination, error) {
	return s.listed, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: len(s.listed)}, nil
}

func (s *stubSubmissions) ResolveDownload(ctx context.Context, token string) (*service.Download, error) {
	if s.downloadErr != nil {
		return nil, s.downloadErr
	}
	return s.download, nil
}

type stubDetails struct {
	detail *dto.DocumentDetail
	err    error
}

func (s *stubDetails) GetDocumentDetail(ctx context.Context, identity models.Identity, documentID string) (*dto.DocumentDetail, error) {
	if s.err != nil {
		return nil, s.err
	}
	copied := *s.detail
	return &copied, nil
}

type stubReviews struct {
	pending    []models.Event
	result     models.ValidationResult
	err        error
	fields     models.EventFields
	rejectNote string
}

func (s *stubReviews) ListPending(ctx context.Context, identity models.Identity) ([]models.Event, error) {
	return s.pending, s.err
}

func (s *stubReviews) Validate(ctx context.Context, identity models.Identity, eventID string, fields models.EventFields) (models.ValidationResult, error) {
	s.fields = fields
	return s.result, s.err
}

func (s *stubReviews) Reject(ctx context.Context, identity models.Identity, eventID, comment string) (*models.Event, error) {
	s.rejectNote = comment
	if s.err != nil {
		return nil, s.err
	}
	return &models.Event{ID: eventID, Status: models.EventStatusRejected, ReviewerComment: &comment}, nil
}

type stubTracker struct {
	summary  dto.TrackerSummary
	hit      bool
	scopes   []string
	rejected []models.Event
	err      error
}

func (s *stubTracker) DepartmentSummary(ctx context.Context, identity models.Identity, scope string) (dto.TrackerSummary, bool, error) {
	s.scopes = append(s.scopes, scope)
	if s.err != nil {
		return nil, false, s.err
	}
	return s.summary, s.hit, nil
}

func (s *stubTracker) RejectedForUser(ctx context.Context, identity models.Identity, username string) ([]models.Event, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.rejected, nil
}

type stubReports struct {
	format string
}

func (s *stubReports) Compile(ctx context.Context, identity models.Identity, department, format string) (*dto.ReportArtifact, error) {
	s.format = format
	return &dto.ReportArtifact{
		Filename:    department + "_IQC_Report.csv",
		ContentType: "text/csv",
		Body:        []byte("Name,Date\n"),
	}, nil
}

type testRouter struct {
	engine      *gin.Engine
	submissions *stubSubmissions
	details     *stubDetails
	reviews     *stubReviews
	tracker     *stubTracker
	reports     *stubReports
}

func newTestRouter() *testRouter {
	gin.SetMode(gin.TestMode)
	tr := &testRouter{
		engine:      gin.New(),
		submissions: &stubSubmissions{},
		details:     &stubDetails{detail: &dto.DocumentDetail{}},
		reviews:     &stubReviews{},
		tracker:     &stubTracker{summary: dto.TrackerSummary{}},
		reports:     &stubReports{},
	}
	RegisterRoutes(tr.engine, "/api/v1", Handlers{
		Auth:      NewAuthHandler(&stubAuthService{}),
		Documents: NewDocumentHandler(tr.submissions, tr.details, "/api/v1/documents/download"),
		Reviews:   NewReviewHandler(tr.reviews),
		Tracker:   NewTrackerHandler(tr.tracker, tr.reports),
		Metrics:   NewMetricsHandler(nil, nil),
	}, RouteDeps{Tokens: testTokens})
	return tr
}

func (tr *testRouter) do(method, path, token string, body []byte, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	tr.engine.ServeHTTP(w, req)
	return w
}

func newTestContext(method, path string, body []byte, identity *models.Identity) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	if identity != nil {
		c.Set(middleware.ContextUserKey, &models.JWTClaims{
			UserID:     identity.UserID,
			Username:   identity.Username,
			Role:       identity.Role,
			Department: identity.Department,
		})
	}
	return c, w
}
