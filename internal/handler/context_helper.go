package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/iqc-intake-api/internal/middleware"
	"github.com/noah-isme/iqc-intake-api/internal/models"
	appErrors "github.com/noah-isme/iqc-intake-api/pkg/errors"
	"github.com/noah-isme/iqc-intake-api/pkg/response"
)

// requireIdentity writes 401 and returns false when the request carries no resolved caller.
func requireIdentity(c *gin.Context) (models.Identity, bool) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return models.Identity{}, false
	}
	return identity, true
}
