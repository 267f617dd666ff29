package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/fabnest-api/internal/handler"
	"github.com/noah-isme/fabnest-api/internal/middleware"
	"github.com/noah-isme/fabnest-api/internal/models"
	"github.com/noah-isme/fabnest-api/internal/service"
	"github.com/noah-isme/fabnest-api/pkg/config"
	"github.com/noah-isme/fabnest-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/fabnest-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/fabnest-api/pkg/middleware/requestid"
)

// multipart framing on top of the file itself
const uploadOverhead = 1 << 20

// Handlers groups every HTTP handler mounted by the router.
type Handlers struct {
	Auth     *handler.AuthHandler
	Files    *handler.FileHandler
	Quotes   *handler.QuoteHandler
	Orders   *handler.OrderHandler
	Catalog  *handler.CatalogHandler
	Users    *handler.UserHandler
	Invoices *handler.InvoiceHandler
	Metrics  *handler.MetricsHandler
}

// Options controls router-level behaviour.
type Options struct {
	Env            string
	APIPrefix      string
	AllowedOrigins []string
	MaxUploadBytes int64
	MetricsEnabled bool
	// PublicDirs maps a URL path to a directory served as static files.
	PublicDirs map[string]string
}

// Dependencies are the cross-cutting collaborators of the middleware chain.
type Dependencies struct {
	Tokens  middleware.TokenValidator
	Audit   middleware.AuditRecorder
	Metrics *service.MetricsService
	Logger  *zap.Logger
}

// NewRouter builds the gin engine with every storefront route.
func NewRouter(opts Options, h Handlers, deps Dependencies) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.Logger))
	r.Use(corsmiddleware.New(opts.AllowedOrigins))
	if opts.MetricsEnabled {
		r.Use(middleware.Metrics(deps.Metrics, "/health", "/ready", "/metrics"))
	}

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	if opts.MetricsEnabled {
		r.GET("/metrics", h.Metrics.Prometheus)
	}
	if opts.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	prefix := strings.TrimRight(opts.APIPrefix, "/")
	for urlPath, dir := range opts.PublicDirs {
		if prefix == "" {
			deps.Logger.Warn("static files not mounted without an API prefix", zap.String("path", urlPath))
			continue
		}
		r.Static(urlPath, dir)
	}

	api := r.Group(prefix)
	requireAuth := middleware.JWT(deps.Tokens)
	adminOnly := middleware.AdminOnly()

	auth := api.Group("/auth")
	auth.POST("/register", h.Auth.Register)
	auth.POST("/login", h.Auth.Login)
	auth.GET("/me", requireAuth, h.Auth.Me)

	upload := api.Group("/upload", requireAuth)
	upload.POST("", limitBody(opts.MaxUploadBytes), h.Files.Upload)
	upload.POST("/custom-order", h.Files.CreateCustomOrder)

	api.GET("/files/:id", requireAuth, h.Files.Get)

	quotes := api.Group("/quote-requests", requireAuth)
	quotes.POST("", h.Quotes.Create)
	quotes.GET("", h.Quotes.List)
	quotes.GET("/:id", h.Quotes.Get)
	quotes.PUT("/:id", adminOnly, h.Quotes.Update)
	quotes.DELETE("/:id", adminOnly, h.Quotes.Delete)
	quotes.POST("/:id/create-order", h.Quotes.CreateOrder)

	orders := api.Group("/orders", requireAuth)
	orders.POST("", h.Orders.Create)
	orders.GET("", h.Orders.List)
	orders.GET("/:id", h.Orders.Get)
	orders.PUT("/:id", h.Orders.Update)
	orders.DELETE("/:id", adminOnly, h.Orders.Delete)

	products := api.Group("/products")
	products.GET("", h.Catalog.ListProducts)
	products.GET("/:id", h.Catalog.GetProduct)
	products.POST("", requireAuth, adminOnly, h.Catalog.CreateProduct)
	products.PUT("/:id", requireAuth, adminOnly, h.Catalog.UpdateProduct)
	products.DELETE("/:id", requireAuth, adminOnly, h.Catalog.DeleteProduct)

	gallery := api.Group("/gallery")
	gallery.GET("", h.Catalog.ListGallery)
	gallery.GET("/:id", h.Catalog.GetGalleryItem)
	gallery.POST("", requireAuth, adminOnly, h.Catalog.CreateGalleryItem)
	gallery.PUT("/:id", requireAuth, adminOnly, h.Catalog.UpdateGalleryItem)
	gallery.DELETE("/:id", requireAuth, adminOnly, h.Catalog.DeleteGalleryItem)

	api.GET("/invoices/:quoteId", h.Invoices.Download)

	admin := api.Group("/admin", requireAuth, adminOnly)
	admin.GET("/users", h.Users.List)
	admin.PUT("/users/:id", h.Users.Update)
	admin.DELETE("/users/:id", h.Users.Delete)
	admin.GET("/orders/export", h.Orders.Export)
	admin.GET("/files/:id/download",
		middleware.Audit(deps.Audit, deps.Logger, models.AuditActionFileDownload, "file"),
		h.Files.Download)

	return r
}

func limitBody(max int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if max > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, max+uploadOverhead)
		}
		c.Next()
	}
}
