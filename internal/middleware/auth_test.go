package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/iqc-intake-api/internal/models"
	appErrors "github.com/noah-isme/iqc-intake-api/pkg/errors"
)

type stubValidator map[string]*models.JWTClaims

func (s stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := s[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

type stubAudit struct{ logs []*models.AuditLog }

func (s *stubAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, log)
	return nil
}

type stubObserver struct{ paths []string }

func (s *stubObserver) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	s.paths = append(s.paths, method+" "+path)
}

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	validator := stubValidator{
		"teacher": {UserID: "t1", Username: "teacher1", Role: models.RoleTeacher, Department: models.DepartmentCSECore},
		"student": {UserID: "s1", Username: "student1", Role: models.RoleStudent, Department: models.DepartmentAIML},
	}
	router := gin.New()
	group := router.Group("/", JWT(validator))
	group.GET("/me", func(c *gin.Context) {
		identity, _ := IdentityFromContext(c)
		c.String(http.StatusOK, identity.Username+"|"+string(identity.Department))
	})
	group.GET("/review", RequireRoles(models.RoleTeacher, models.RoleIQC), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router
}

func serve(router *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestJWTResolvesIdentity(t *testing.T) {
	router := newAuthRouter()

	rec := serve(router, "/me", "Bearer teacher")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "teacher1|CSE(Core)", rec.Body.String())

	for _, header := range []string{"", "Bearer", "Token teacher", "Bearer nope"} {
		rec = serve(router, "/me", header)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
		assert.Contains(t, rec.Body.String(), "UNAUTHENTICATED")
	}
}

func TestRequireRoles(t *testing.T) {
	router := newAuthRouter()

	assert.Equal(t, http.StatusNoContent, serve(router, "/review", "bearer teacher").Code)

	rec := serve(router, "/review", "Bearer student")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "FORBIDDEN")
}

func TestAuditAndMetricsRecordSuccessfulRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	audit := &stubAudit{}
	observer := &stubObserver{}
	router := gin.New()
	router.Use(Metrics(observer))
	router.GET("/files/:token", Audit(audit, models.AuditActionDocumentFetch, "document", "document_id"), func(c *gin.Context) {
		c.Set("document_id", "doc-1")
		if c.Param("token") == "bad" {
			c.Status(http.StatusForbidden)
			return
		}
		c.Status(http.StatusOK)
	})

	serve(router, "/files/good", "")
	serve(router, "/files/bad", "")
	serve(router, "/nowhere", "")

	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionDocumentFetch, audit.logs[0].Action)
	require.NotNil(t, audit.logs[0].ResourceID)
	assert.Equal(t, "doc-1", *audit.logs[0].ResourceID)
	assert.Nil(t, audit.logs[0].UserID)
	assert.Equal(t, []string{"GET /files/:token", "GET /files/:token", "GET unmatched"}, observer.paths)
}

func TestResponseMetaCacheHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, ExtractMeta(c))

	SetCacheHit(c, true)
	assert.Equal(t, true, ExtractMeta(c)["cache_hit"])
}
