package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/iqc-intake-api/internal/middleware"
	"github.com/noah-isme/iqc-intake-api/internal/models"
)

// Handlers groups everything RegisterRoutes mounts.
type Handlers struct {
	Auth      *AuthHandler
	Documents *DocumentHandler
	Reviews   *ReviewHandler
	Tracker   *TrackerHandler
	Metrics   *MetricsHandler
}

// RouteDeps are the cross-cutting middlewares' collaborators.
type RouteDeps struct {
	Tokens middleware.TokenValidator
	Audit  middleware.AuditWriter
}

// RegisterRoutes mounts the probes at the root and the API under prefix.
func RegisterRoutes(r *gin.Engine, prefix string, h Handlers, deps RouteDeps) {
	if h.Metrics != nil {
		r.GET("/health", h.Metrics.Health)
		r.GET("/ready", h.Metrics.Ready)
		r.GET("/metrics", h.Metrics.Prometheus)
	}

	api := r.Group(prefix)
	api.Use(middleware.WithResponseMeta())

	auth := api.Group("/auth")
	auth.POST("/login", h.Auth.Login)
	auth.POST("/refresh", h.Auth.Refresh)

	authed := auth.Group("")
	authed.Use(middleware.JWT(deps.Tokens))
	authed.POST("/logout", h.Auth.Logout)
	authed.GET("/me", h.Auth.Me)
	authed.POST("/change-password", h.Auth.ChangePassword)

	// Signed links are shared outside the session, so the token is the credential.
	api.GET("/documents/download/:token",
		middleware.Audit(deps.Audit, models.AuditActionDocumentFetch, "document", DownloadResourceKey),
		h.Documents.Download,
	)

	secured := api.Group("")
	secured.Use(middleware.JWT(deps.Tokens))

	documents := secured.Group("/documents")
	documents.POST("", middleware.RequireRoles(models.RoleStudent, models.RoleTeacher), h.Documents.Upload)
	documents.GET("", h.Documents.List)
	documents.GET("/:id", h.Documents.Get)

	reviewers := middleware.RequireRoles(models.RoleTeacher, models.RoleIQC)
	secured.GET("/reviews/pending", reviewers, h.Reviews.ListPending)
	events := secured.Group("/events", reviewers)
	events.POST("/:id/validate", h.Reviews.Validate)
	events.POST("/:id/reject", h.Reviews.Reject)

	tracker := secured.Group("/tracker")
	tracker.GET("", h.Tracker.Summary)
	tracker.GET("/rejected/:username", h.Tracker.Rejected)
	tracker.GET("/:department", h.Tracker.Department)
	tracker.GET("/:department/report", h.Tracker.Report)
}
