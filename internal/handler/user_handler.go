package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fabnest-api/internal/models"
	"github.com/noah-isme/fabnest-api/pkg/response"
)

type userService interface {
	List(ctx context.Context, filter models.UserFilter, actor *models.JWTClaims) ([]models.User, *models.Pagination, error)
	Update(ctx context.Context, id string, req models.UpdateUserRequest, actor *models.JWTClaims) (*models.User, error)
	Delete(ctx context.Context, id string, actor *models.JWTClaims) error
}

// UserHandler handles admin account management.
type UserHandler struct {
	service userService
}

// NewUserHandler creates a new user handler.
func NewUserHandler(svc userService) *UserHandler {
	return &UserHandler{service: svc}
}

// List godoc
// @Summary List users
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param role query string false "Role filter"
// @Param search query string false "Search term"
// @Param limit query int false "Page size (1-100)"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /admin/users [get]
func (h *UserHandler) List(c *gin.Context) {
	page, err := parsePage(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	filter := models.UserFilter{Role: models.UserRole(c.Query("role")), Search: c.Query("search"), Page: page}

	users, pagination, err := h.service.List(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, users, pagination)
}

// Update godoc
// @Summary Update user
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param payload body models.UpdateUserRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/users/{id} [put]
func (h *UserHandler) Update(c *gin.Context) {
	var req models.UpdateUserRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.service.Update(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, user, nil)
}

// Delete godoc
// @Summary Delete user
// @Tags Admin
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 204
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/users/{id} [delete]
func (h *UserHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
