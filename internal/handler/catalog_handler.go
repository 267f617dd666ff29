package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fabnest-api/internal/models"
	"github.com/noah-isme/fabnest-api/pkg/response"
)

type productService interface {
	List(ctx context.Context, filter models.ProductFilter) ([]models.Product, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Product, error)
	Create(ctx context.Context, req models.CreateProductRequest, actor *models.JWTClaims) (*models.Product, error)
	Update(ctx context.Context, id string, req models.UpdateProductRequest, actor *models.JWTClaims) (*models.Product, error)
	Delete(ctx context.Context, id string, actor *models.JWTClaims) error
}

type galleryService interface {
	List(ctx context.Context, filter models.GalleryFilter) ([]models.GalleryItem, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.GalleryItem, error)
	Create(ctx context.Context, req models.CreateGalleryRequest, actor *models.JWTClaims) (*models.GalleryItem, error)
	Update(ctx context.Context, id string, req models.UpdateGalleryRequest, actor *models.JWTClaims) (*models.GalleryItem, error)
	Delete(ctx context.Context, id string, actor *models.JWTClaims) error
}

// CatalogHandler serves products and gallery items.
type CatalogHandler struct {
	products productService
	gallery  galleryService
}

// NewCatalogHandler constructs the handler.
func NewCatalogHandler(products productService, gallery galleryService) *CatalogHandler {
	return &CatalogHandler{products: products, gallery: gallery}
}

// ListProducts godoc
// @Summary List products
// @Tags Catalog
// @Produce json
// @Param category query string false "Category"
// @Param q query string false "Search term"
// @Param limit query int false "Page size (1-100)"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /products [get]
func (h *CatalogHandler) ListProducts(c *gin.Context) {
	page, err := parsePage(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	filter := models.ProductFilter{Category: c.Query("category"), Search: c.Query("q"), Page: page}
	items, pagination, err := h.products.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// GetProduct godoc
// @Summary Get a product
// @Tags Catalog
// @Produce json
// @Param id path string true "Product ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /products/{id} [get]
func (h *CatalogHandler) GetProduct(c *gin.Context) {
	product, err := h.products.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, product, nil)
}

// CreateProduct godoc
// @Summary Create a product
// @Tags Catalog
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.CreateProductRequest true "Product"
// @Success 201 {object} response.Envelope
// @Router /products [post]
func (h *CatalogHandler) CreateProduct(c *gin.Context) {
	var req models.CreateProductRequest
	if !bindJSON(c, &req) {
		return
	}
	product, err := h.products.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, product)
}

// UpdateProduct godoc
// @Summary Update a product
// @Tags Catalog
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Product ID"
// @Param payload body models.UpdateProductRequest true "Changes"
// @Success 200 {object} response.Envelope
// @Router /products/{id} [put]
func (h *CatalogHandler) UpdateProduct(c *gin.Context) {
	var req models.UpdateProductRequest
	if !bindJSON(c, &req) {
		return
	}
	product, err := h.products.Update(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, product, nil)
}

// DeleteProduct godoc
// @Summary Delete a product
// @Tags Catalog
// @Security BearerAuth
// @Param id path string true "Product ID"
// @Success 204
// @Router /products/{id} [delete]
func (h *CatalogHandler) DeleteProduct(c *gin.Context) {
	if err := h.products.Delete(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListGallery godoc
// @Summary List gallery items
// @Tags Catalog
// @Produce json
// @Param tag query string false "Tag"
// @Param q query string false "Search term"
// @Param limit query int false "Page size (1-100)"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /gallery [get]
func (h *CatalogHandler) ListGallery(c *gin.Context) {
	page, err := parsePage(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	filter := models.GalleryFilter{Tag: c.Query("tag"), Search: c.Query("q"), Page: page}
	items, pagination, err := h.gallery.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// GetGalleryItem godoc
// @Summary Get a gallery item
// @Tags Catalog
// @Produce json
// @Param id path string true "Gallery item ID"
// @Success 200 {object} response.Envelope
// @Router /gallery/{id} [get]
func (h *CatalogHandler) GetGalleryItem(c *gin.Context) {
	item, err := h.gallery.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// CreateGalleryItem godoc
// @Summary Create a gallery item
// @Tags Catalog
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.CreateGalleryRequest true "Gallery item"
// @Success 201 {object} response.Envelope
// @Router /gallery [post]
func (h *CatalogHandler) CreateGalleryItem(c *gin.Context) {
	var req models.CreateGalleryRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := h.gallery.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// UpdateGalleryItem godoc
// @Summary Update a gallery item
// @Tags Catalog
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Gallery item ID"
// @Param payload body models.UpdateGalleryRequest true "Changes"
// @Success 200 {object} response.Envelope
// @Router /gallery/{id} [put]
func (h *CatalogHandler) UpdateGalleryItem(c *gin.Context) {
	var req models.UpdateGalleryRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := h.gallery.Update(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// DeleteGalleryItem godoc
// @Summary Delete a gallery item
// @Tags Catalog
// @Security BearerAuth
// @Param id path string true "Gallery item ID"
// @Success 204
// @Router /gallery/{id} [delete]
func (h *CatalogHandler) DeleteGalleryItem(c *gin.Context) {
	if err := h.gallery.Delete(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
