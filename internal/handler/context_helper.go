package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clearance-api/internal/middleware"
	"github.com/noah-isme/clearance-api/internal/models"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
	"github.com/noah-isme/clearance-api/pkg/response"
)

// principalFromContext returns the caller or writes a 401 and reports false.
func principalFromContext(c *gin.Context) (models.Principal, bool) {
	p, ok := middleware.Principal(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthenticated)
		return models.Principal{}, false
	}
	return p, true
}

func parseKind(c *gin.Context) (models.FormKind, bool) {
	kind, ok := models.ParseFormKind(c.Param("kind"))
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown form kind"))
		return "", false
	}
	return kind, true
}
