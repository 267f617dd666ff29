package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fabnest-api/internal/models"
	"github.com/noah-isme/fabnest-api/pkg/response"
)

type orderService interface {
	Create(ctx context.Context, req models.CreateOrderRequest, actor *models.JWTClaims) (*models.Order, error)
	List(ctx context.Context, filter models.OrderFilter, actor *models.JWTClaims) ([]models.Order, *models.Pagination, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Order, error)
	Update(ctx context.Context, id string, req models.UpdateOrderRequest, actor *models.JWTClaims) (*models.Order, error)
	Delete(ctx context.Context, id string, actor *models.JWTClaims) error
	Export(ctx context.Context, filter models.OrderFilter, actor *models.JWTClaims, w io.Writer) error
}

// OrderHandler exposes order management.
type OrderHandler struct {
	service orderService
	now     func() time.Time
}

// NewOrderHandler constructs the handler.
func NewOrderHandler(svc orderService) *OrderHandler {
	return &OrderHandler{service: svc, now: time.Now}
}

// Create godoc
// @Summary Place a catalog order
// @Tags Orders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.CreateOrderRequest true "Order"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /orders [post]
func (h *OrderHandler) Create(c *gin.Context) {
	var req models.CreateOrderRequest
	if !bindJSON(c, &req) {
		return
	}
	order, err := h.service.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"order": order})
}

// List godoc
// @Summary List orders
// @Description Customers see their own orders, admins see all.
// @Tags Orders
// @Produce json
// @Security BearerAuth
// @Param status query string false "Status filter"
// @Param limit query int false "Page size (1-100)"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /orders [get]
func (h *OrderHandler) List(c *gin.Context) {
	filter, ok := h.filter(c)
	if !ok {
		return
	}
	orders, pagination, err := h.service.List(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, orders, pagination)
}

// Get godoc
// @Summary Get an order
// @Tags Orders
// @Produce json
// @Security BearerAuth
// @Param id path string true "Order ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /orders/{id} [get]
func (h *OrderHandler) Get(c *gin.Context) {
	order, err := h.service.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, order, nil)
}

// Update godoc
// @Summary Update an order
// @Description Customers may only cancel their own orders.
// @Tags Orders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Order ID"
// @Param payload body models.UpdateOrderRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /orders/{id} [put]
func (h *OrderHandler) Update(c *gin.Context) {
	var req models.UpdateOrderRequest
	if !bindJSON(c, &req) {
		return
	}
	order, err := h.service.Update(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, order, nil)
}

// Delete godoc
// @Summary Delete an order and its custom files
// @Tags Orders
// @Security BearerAuth
// @Param id path string true "Order ID"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /orders/{id} [delete]
func (h *OrderHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Export godoc
// @Summary Export orders as CSV
// @Tags Admin
// @Produce text/csv
// @Security BearerAuth
// @Param status query string false "Status filter"
// @Success 200 {file} binary
// @Router /admin/orders/export [get]
func (h *OrderHandler) Export(c *gin.Context) {
	filter, ok := h.filter(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.service.Export(c.Request.Context(), filter, claimsFromContext(c), &buf); err != nil {
		response.Error(c, err)
		return
	}
	name := fmt.Sprintf("orders-%s.csv", h.now().UTC().Format("20060102"))
	response.Attachment(c, name, "text/csv; charset=utf-8", int64(buf.Len()), &buf)
}

func (h *OrderHandler) filter(c *gin.Context) (models.OrderFilter, bool) {
	page, err := parsePage(c)
	if err != nil {
		response.Error(c, err)
		return models.OrderFilter{}, false
	}
	return models.OrderFilter{Status: models.OrderStatus(c.Query("status")), Page: page}, true
}
