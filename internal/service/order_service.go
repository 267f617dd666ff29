package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/fabnest-api/internal/models"
	"github.com/noah-isme/fabnest-api/internal/repository"
	appErrors "github.com/noah-isme/fabnest-api/pkg/errors"
	"github.com/noah-isme/fabnest-api/pkg/export"
)

const (
	customOrderLinkKey    = "custom_order_files_order_item_id_key"
	maxTrackingNumberLen  = 100
	customOrderItemSize   = "custom"
	orderSourceCatalog    = "catalog"
	orderSourceQuote      = "quote"
	orderExportTimeLayout = time.RFC3339
)

type orderRepository interface {
	Create(ctx context.Context, exec sqlx.ExtContext, order *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	List(ctx context.Context, filter models.OrderFilter) ([]models.Order, error)
	Count(ctx context.Context, filter models.OrderFilter) (int, error)
	ListForExport(ctx context.Context, filter models.OrderFilter) ([]models.OrderExportRow, error)
	Update(ctx context.Context, order *models.Order) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type productChecker interface {
	Exists(ctx context.Context, exec sqlx.ExtContext, id string) (bool, error)
}

type fileReleaser interface {
	ReleaseWithin(ctx context.Context, exec sqlx.ExtContext, fileIDs []string) ([]models.File, error)
	PurgeBytes(ctx context.Context, files []models.File)
}

// OrderServiceConfig configures URLs embedded in admin views.
type OrderServiceConfig struct {
	APIPrefix string
}

// OrderService manages orders and quote conversion.
type OrderService struct {
	repo        orderRepository
	products    productChecker
	customFiles customFileRepository
	quotes      quoteRepository
	files       fileLookup
	releaser    fileReleaser
	tx          txProvider
	audit       auditLogger
	metrics     *MetricsService
	validate    *validator.Validate
	logger      *zap.Logger
	cfg         OrderServiceConfig
}

// NewOrderService constructs the service with defaults.
func NewOrderService(repo orderRepository, products productChecker, customFiles customFileRepository, quotes quoteRepository, files fileLookup, releaser fileReleaser, tx txProvider, audit auditLogger, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg OrderServiceConfig) *OrderService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api"
	}
	cfg.APIPrefix = strings.TrimRight(cfg.APIPrefix, "/")
	return &OrderService{
		repo:        repo,
		products:    products,
		customFiles: customFiles,
		quotes:      quotes,
		files:       files,
		releaser:    releaser,
		tx:          tx,
		audit:       audit,
		metrics:     metrics,
		validate:    validate,
		logger:      logger,
		cfg:         cfg,
	}
}

// Create places a catalog order with all of its items in one transaction.
func (s *OrderService) Create(ctx context.Context, req models.CreateOrderRequest, actor *models.JWTClaims) (*models.Order, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	for i := range req.Items {
		req.Items[i].ProductName = strings.TrimSpace(req.Items[i].ProductName)
		req.Items[i].Material = strings.TrimSpace(req.Items[i].Material)
		req.Items[i].Size = strings.TrimSpace(req.Items[i].Size)
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid order payload")
	}

	customFiles := make([]string, len(req.Items))
	for i, item := range req.Items {
		if item.ProductID != nil {
			ok, err := s.products.Exists(ctx, nil, *item.ProductID)
			if err != nil {
				return nil, appErrors.Internal(err, "failed to verify product")
			}
			if !ok {
				return nil, appErrors.Clone(appErrors.ErrValidation, "product "+*item.ProductID+" does not exist")
			}
		}
		if item.CustomFileID != nil {
			cf, err := s.customFiles.GetByID(ctx, *item.CustomFileID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return nil, appErrors.Clone(appErrors.ErrValidation, "custom file "+*item.CustomFileID+" does not exist")
				}
				return nil, appErrors.Internal(err, "failed to verify custom file")
			}
			if !actor.CanAccess(cf.UserID) {
				return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to order this custom file")
			}
			customFiles[i] = cf.ID
		}
	}

	order := &models.Order{
		UserID:   actor.UserID,
		Status:   models.OrderStatusPending,
		Subtotal: roundMoney(req.Subtotal),
		Shipping: roundMoney(req.Shipping),
		Tax:      roundMoney(req.Tax),
		Total:    roundMoney(req.Total),
		Items:    make([]models.OrderItem, len(req.Items)),
	}
	for i, item := range req.Items {
		order.Items[i] = models.OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Material:    item.Material,
			Size:        item.Size,
			Quantity:    item.Quantity,
			UnitPrice:   roundMoney(item.UnitPrice),
			TotalPrice:  roundMoney(item.TotalPrice),
			IsCustom:    item.IsCustom || item.CustomFileID != nil,
		}
	}

	err := withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.repo.Create(ctx, tx, order); err != nil {
			return appErrors.Internal(err, "failed to create order")
		}
		for i, cfID := range customFiles {
			if cfID == "" {
				continue
			}
			if err := s.customFiles.LinkOrderItem(ctx, tx, cfID, order.Items[i].ID); err != nil {
				return linkError(err)
			}
			id := cfID
			order.Items[i].CustomFileID = &id
		}
		return nil
	})
	if err != nil {
		return nil, mapOrderLinkViolation(err)
	}

	s.metrics.RecordOrderCreated(orderSourceCatalog)
	s.logger.Info("order created", zap.String("order_id", order.ID), zap.String("user_id", actor.UserID), zap.Int("items", len(order.Items)))
	return order, nil
}

// CreateFromQuote converts a quoted request into an order with one custom
// item. Checks run in order: not found, forbidden, invalid state, already
// ordered. The quote and custom file rows stay locked until commit.
func (s *OrderService) CreateFromQuote(ctx context.Context, quoteID string, req models.CreateOrderFromQuoteRequest, actor *models.JWTClaims) (*models.Order, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	shipping, err := nonNegativeCharge(req.Shipping, "shipping")
	if err != nil {
		return nil, err
	}
	tax, err := nonNegativeCharge(req.Tax, "tax")
	if err != nil {
		return nil, err
	}

	var order *models.Order
	err = withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		quote, err := s.quotes.GetForUpdate(ctx, tx, quoteID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "quote request not found")
			}
			return appErrors.Internal(err, "failed to load quote request")
		}
		if quote.UserID != actor.UserID {
			return appErrors.Clone(appErrors.ErrForbidden, "not allowed to order this quote")
		}
		// Accepted is only reachable through conversion, so the order exists.
		if quote.Status == models.QuoteStatusAccepted {
			return appErrors.ErrOrderExists
		}
		if quote.Status != models.QuoteStatusQuoted || quote.RequestedPrice == nil {
			return appErrors.Clone(appErrors.ErrInvalidState, "quote request must be quoted with a price first")
		}

		cf, err := s.customFiles.GetForUpdate(ctx, tx, quote.CustomFileID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "custom order file not found")
			}
			return appErrors.Internal(err, "failed to load custom order file")
		}
		if cf.OrderItemID != nil {
			return appErrors.ErrOrderExists
		}

		productName := "Custom print"
		if file, err := s.files.GetByID(ctx, cf.FileID); err == nil {
			productName = file.OriginalName
		} else if !errors.Is(err, sql.ErrNoRows) {
			return appErrors.Internal(err, "failed to load model file")
		}

		price := roundMoney(*quote.RequestedPrice)
		order = &models.Order{
			UserID:   actor.UserID,
			Status:   models.OrderStatusPending,
			Subtotal: price,
			Shipping: shipping,
			Tax:      tax,
			Total:    roundMoney(price + shipping + tax),
			Items: []models.OrderItem{{
				ProductName: productName,
				Material:    cf.Material,
				Size:        customOrderItemSize,
				Quantity:    1,
				UnitPrice:   price,
				TotalPrice:  price,
				IsCustom:    true,
			}},
		}
		if err := s.repo.Create(ctx, tx, order); err != nil {
			return appErrors.Internal(err, "failed to create order")
		}
		if err := s.customFiles.LinkOrderItem(ctx, tx, cf.ID, order.Items[0].ID); err != nil {
			return linkError(err)
		}
		cfID, fileID := cf.ID, cf.FileID
		order.Items[0].CustomFileID = &cfID
		order.Items[0].FileID = &fileID
		order.Items[0].FileName = &productName
		if err := s.quotes.UpdateStatus(ctx, tx, quote.ID, models.QuoteStatusAccepted); err != nil {
			return appErrors.Internal(err, "failed to accept quote request")
		}
		return nil
	})
	if err != nil {
		return nil, mapOrderLinkViolation(err)
	}

	s.metrics.RecordOrderCreated(orderSourceQuote)
	s.metrics.RecordQuoteTransition(string(models.QuoteStatusQuoted), string(models.QuoteStatusAccepted))
	resourceID := order.ID
	payload, _ := json.Marshal(map[string]interface{}{"quoteId": quoteID, "total": order.Total})
	emitAudit(ctx, s.audit, s.logger, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionOrderConvert,
		Resource:   "order",
		ResourceID: &resourceID,
		NewValues:  payload,
	})
	s.logger.Info("quote converted to order", zap.String("quote_id", quoteID), zap.String("order_id", order.ID))
	return order, nil
}

// List returns the caller's orders, or every order for admins.
func (s *OrderService) List(ctx context.Context, filter models.OrderFilter, actor *models.JWTClaims) ([]models.Order, *models.Pagination, error) {
	if err := requireActor(actor); err != nil {
		return nil, nil, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid status filter")
	}
	if !actor.IsAdmin() {
		filter.UserID = actor.UserID
	}
	filter.Page = filter.Page.Normalized(models.DefaultPageLimit)

	var (
		orders []models.Order
		total  int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		orders, err = s.repo.List(gctx, filter)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.repo.Count(gctx, filter)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list orders")
	}
	if actor.IsAdmin() {
		for i := range orders {
			s.attachDownloadURLs(&orders[i])
		}
	}
	return orders, &models.Pagination{Limit: filter.Limit, Offset: filter.Offset, Total: total}, nil
}

// Get returns an order to its owner or an admin.
func (s *OrderService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Order, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(order.UserID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this order")
	}
	if actor.IsAdmin() {
		s.attachDownloadURLs(order)
	}
	return order, nil
}

// Update changes status and fulfilment details. Owners may only cancel.
func (s *OrderService) Update(ctx context.Context, id string, req models.UpdateOrderRequest, actor *models.JWTClaims) (*models.Order, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(order.UserID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to update this order")
	}

	if !actor.IsAdmin() {
		if req.Status == nil || *req.Status != models.OrderStatusCancelled {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can change order status except cancelling")
		}
		if req.TrackingNumber != nil || req.EstimatedDelivery != nil {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can set shipping details")
		}
	}
	if req.Status != nil && !req.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid order status")
	}
	if req.TrackingNumber != nil {
		tracking := strings.TrimSpace(*req.TrackingNumber)
		if len([]rune(tracking)) > maxTrackingNumberLen {
			return nil, appErrors.Clone(appErrors.ErrValidation, "trackingNumber must be at most 100 characters")
		}
		if tracking == "" {
			order.TrackingNumber = nil
		} else {
			order.TrackingNumber = &tracking
		}
	}
	if req.EstimatedDelivery != nil {
		eta := req.EstimatedDelivery.UTC()
		order.EstimatedDelivery = &eta
	}
	previous := order.Status
	if req.Status != nil {
		order.Status = *req.Status
	}

	if err := s.repo.Update(ctx, order); err != nil {
		return nil, appErrors.Internal(err, "failed to update order")
	}

	resourceID := order.ID
	payload, _ := json.Marshal(map[string]interface{}{"from": previous, "status": order.Status, "trackingNumber": order.TrackingNumber})
	emitAudit(ctx, s.audit, s.logger, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionOrderUpdate,
		Resource:   "order",
		ResourceID: &resourceID,
		NewValues:  payload,
	})
	return order, nil
}

// Delete removes an order, its items and custom files, and releases every
// model file nothing else references. Quotes on those custom files cascade,
// so their stored invoices are purged too.
func (s *OrderService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}

	var (
		released []models.File
		invoices []string
	)
	err := withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		attached, err := s.customFiles.ListByOrder(ctx, tx, id)
		if err != nil {
			return appErrors.Internal(err, "failed to load order files")
		}
		customIDs := make([]string, 0, len(attached))
		for _, cf := range attached {
			customIDs = append(customIDs, cf.ID)
		}
		invoices, err = s.quotes.InvoicePathsByCustomFiles(ctx, tx, customIDs)
		if err != nil {
			return appErrors.Internal(err, "failed to load order invoices")
		}
		if err := s.repo.Delete(ctx, tx, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "order not found")
			}
			return appErrors.Internal(err, "failed to delete order")
		}
		fileIDs := make([]string, 0, len(attached))
		for _, cf := range attached {
			if err := s.customFiles.Delete(ctx, tx, cf.ID); err != nil {
				return appErrors.Internal(err, "failed to delete custom order file")
			}
			fileIDs = append(fileIDs, cf.FileID)
		}
		released, err = s.releaser.ReleaseWithin(ctx, tx, fileIDs)
		return err
	})
	if err != nil {
		return err
	}
	s.releaser.PurgeBytes(ctx, append(released, invoiceFiles(invoices)...))

	resourceID := id
	payload, _ := json.Marshal(map[string]interface{}{"releasedFiles": len(released), "removedInvoices": len(invoices)})
	emitAudit(ctx, s.audit, s.logger, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionOrderDelete,
		Resource:   "order",
		ResourceID: &resourceID,
		NewValues:  payload,
	})
	s.logger.Info("order deleted", zap.String("order_id", id), zap.Int("released_files", len(released)))
	return nil
}

// Export writes every order matching filter as CSV.
func (s *OrderService) Export(ctx context.Context, filter models.OrderFilter, actor *models.JWTClaims, w io.Writer) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "invalid status filter")
	}
	rows, err := s.repo.ListForExport(ctx, filter)
	if err != nil {
		return appErrors.Internal(err, "failed to load orders")
	}

	table := export.Table{
		Columns: []string{"id", "created_at", "customer_email", "status", "items", "subtotal", "shipping", "tax", "total", "tracking_number"},
		Rows:    make([][]string, 0, len(rows)),
	}
	for _, row := range rows {
		tracking := ""
		if row.TrackingNumber != nil {
			tracking = *row.TrackingNumber
		}
		table.Rows = append(table.Rows, []string{
			row.ID,
			row.CreatedAt.UTC().Format(orderExportTimeLayout),
			row.UserEmail,
			string(row.Status),
			strconv.Itoa(row.ItemCount),
			formatMoney(row.Subtotal),
			formatMoney(row.Shipping),
			formatMoney(row.Tax),
			formatMoney(row.Total),
			tracking,
		})
	}
	if err := export.WriteCSV(w, table); err != nil {
		return appErrors.Internal(err, "failed to render export")
	}
	return nil
}

func (s *OrderService) attachDownloadURLs(order *models.Order) {
	for i := range order.Items {
		if order.Items[i].FileID != nil {
			order.Items[i].DownloadURL = adminDownloadURL(s.cfg.APIPrefix, *order.Items[i].FileID)
		}
	}
}

func (s *OrderService) load(ctx context.Context, id string) (*models.Order, error) {
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "order not found")
		}
		return nil, appErrors.Internal(err, "failed to load order")
	}
	return order, nil
}

func nonNegativeCharge(v *float64, field string) (float64, error) {
	if v == nil {
		return 0, nil
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, field+" must be a non-negative number")
	}
	return roundMoney(*v), nil
}

func linkError(err error) error {
	if errors.Is(err, repository.ErrAlreadyLinked) || appErrors.IsUniqueViolation(err, customOrderLinkKey) {
		return appErrors.ErrOrderExists
	}
	return appErrors.Internal(err, "failed to link custom order file")
}

// mapOrderLinkViolation turns a late unique violation on the custom file link
// (raised at statement or commit time) into the duplicate-order error.
func mapOrderLinkViolation(err error) error {
	if appErrors.IsUniqueViolation(err, customOrderLinkKey) {
		return appErrors.ErrOrderExists
	}
	return err
}

func formatMoney(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
