package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fabnest-api/internal/models"
	appErrors "github.com/noah-isme/fabnest-api/pkg/errors"
	"github.com/noah-isme/fabnest-api/pkg/response"
)

type quoteService interface {
	Create(ctx context.Context, req models.CreateQuoteRequest, actor *models.JWTClaims) (*models.QuoteRequest, error)
	List(ctx context.Context, filter models.QuoteFilter, actor *models.JWTClaims) ([]models.QuoteDetail, *models.Pagination, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.QuoteDetail, error)
	Update(ctx context.Context, id string, req models.UpdateQuoteRequest, actor *models.JWTClaims) (*models.QuoteDetail, error)
	Delete(ctx context.Context, id string, actor *models.JWTClaims) error
}

type quoteConverter interface {
	CreateFromQuote(ctx context.Context, quoteID string, req models.CreateOrderFromQuoteRequest, actor *models.JWTClaims) (*models.Order, error)
}

// QuoteHandler exposes the quote request workflow.
type QuoteHandler struct {
	quotes quoteService
	orders quoteConverter
}

// NewQuoteHandler constructs the handler.
func NewQuoteHandler(quotes quoteService, orders quoteConverter) *QuoteHandler {
	return &QuoteHandler{quotes: quotes, orders: orders}
}

// Create godoc
// @Summary Request a quote for a custom file
// @Tags Quotes
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.CreateQuoteRequest true "Quote request"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /quote-requests [post]
func (h *QuoteHandler) Create(c *gin.Context) {
	var req models.CreateQuoteRequest
	if !bindJSON(c, &req) {
		return
	}
	quote, err := h.quotes.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"quoteRequest": quote})
}

// List godoc
// @Summary List quote requests
// @Tags Quotes
// @Produce json
// @Security BearerAuth
// @Param status query string false "Status filter"
// @Param limit query int false "Page size (1-100)"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /quote-requests [get]
func (h *QuoteHandler) List(c *gin.Context) {
	page, err := parsePage(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	filter := models.QuoteFilter{Status: models.QuoteStatus(c.Query("status")), Page: page}
	quotes, pagination, err := h.quotes.List(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, quotes, pagination)
}

// Get godoc
// @Summary Get a quote request
// @Tags Quotes
// @Produce json
// @Security BearerAuth
// @Param id path string true "Quote ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /quote-requests/{id} [get]
func (h *QuoteHandler) Get(c *gin.Context) {
	quote, err := h.quotes.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, quote, nil)
}

// Update godoc
// @Summary Price, annotate or reject a quote request
// @Tags Quotes
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Quote ID"
// @Param payload body models.UpdateQuoteRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /quote-requests/{id} [put]
func (h *QuoteHandler) Update(c *gin.Context) {
	var req models.UpdateQuoteRequest
	if !bindJSON(c, &req) {
		return
	}
	quote, err := h.quotes.Update(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, quote, nil)
}

// Delete godoc
// @Summary Delete a quote request
// @Tags Quotes
// @Security BearerAuth
// @Param id path string true "Quote ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /quote-requests/{id} [delete]
func (h *QuoteHandler) Delete(c *gin.Context) {
	if err := h.quotes.Delete(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// CreateOrder godoc
// @Summary Convert a quoted request into an order
// @Tags Quotes
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Quote ID"
// @Param payload body models.CreateOrderFromQuoteRequest false "Charges"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /quote-requests/{id}/create-order [post]
func (h *QuoteHandler) CreateOrder(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req models.CreateOrderFromQuoteRequest
	if c.Request.ContentLength != 0 {
		if !bindJSON(c, &req) {
			return
		}
	}
	order, err := h.orders.CreateFromQuote(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"order": order})
}
