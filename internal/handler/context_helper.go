package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fabnest-api/internal/middleware"
	"github.com/noah-isme/fabnest-api/internal/models"
	appErrors "github.com/noah-isme/fabnest-api/pkg/errors"
	"github.com/noah-isme/fabnest-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.CurrentUser(c)
}

// parsePage reads limit and offset. Out-of-range values are rejected rather
// than clamped so clients notice.
func parsePage(c *gin.Context) (models.Page, error) {
	var page models.Page
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > models.MaxPageLimit {
			return page, appErrors.Clone(appErrors.ErrValidation, "limit must be between 1 and 100")
		}
		page.Limit = limit
	}
	if raw := c.Query("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return page, appErrors.Clone(appErrors.ErrValidation, "offset must be zero or greater")
		}
		page.Offset = offset
	}
	return page, nil
}

func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid request body"))
		return false
	}
	return true
}
