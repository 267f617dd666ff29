package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/fabnest-api/internal/models"
	appErrors "github.com/noah-isme/fabnest-api/pkg/errors"
)

const (
	maxAdminNotesLength = 2000
	quoteUniqueKey      = "quote_requests_custom_file_id_key"
)

type quoteRepository interface {
	Create(ctx context.Context, quote *models.QuoteRequest) error
	GetDetail(ctx context.Context, id string) (*models.QuoteDetail, error)
	GetForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.QuoteRequest, error)
	ExistsForCustomFile(ctx context.Context, customFileID string) (bool, error)
	List(ctx context.Context, filter models.QuoteFilter) ([]models.QuoteDetail, error)
	Count(ctx context.Context, filter models.QuoteFilter) (int, error)
	Update(ctx context.Context, exec sqlx.ExtContext, quote *models.QuoteRequest) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.QuoteStatus) error
	RecordInvoiceOutcome(ctx context.Context, id string, outcome models.InvoiceOutcome) error
	InvoicePathsByCustomFiles(ctx context.Context, exec sqlx.ExtContext, customFileIDs []string) ([]string, error)
	Delete(ctx context.Context, id string) (string, error)
}

type bytePurger interface {
	PurgeBytes(ctx context.Context, files []models.File)
}

type userLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type quoteNotifier interface {
	QuoteReady(ctx context.Context, quote *models.QuoteDetail) error
	SendProformaInvoice(ctx context.Context, quote *models.QuoteDetail) (InvoiceResult, error)
}

// QuoteServiceConfig configures URLs embedded in admin views.
type QuoteServiceConfig struct {
	APIPrefix string
}

// QuoteService drives the quote request state machine.
type QuoteService struct {
	repo        quoteRepository
	customFiles customFileRepository
	users       userLookup
	notifier    quoteNotifier
	purger      bytePurger
	tx          txProvider
	audit       auditLogger
	metrics     *MetricsService
	validate    *validator.Validate
	logger      *zap.Logger
	cfg         QuoteServiceConfig
	now         func() time.Time
}

// NewQuoteService constructs the service with defaults.
func NewQuoteService(repo quoteRepository, customFiles customFileRepository, users userLookup, notifier quoteNotifier, purger bytePurger, tx txProvider, audit auditLogger, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg QuoteServiceConfig) *QuoteService {
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
	return &QuoteService{
		repo:        repo,
		customFiles: customFiles,
		users:       users,
		notifier:    notifier,
		purger:      purger,
		tx:          tx,
		audit:       audit,
		metrics:     metrics,
		validate:    validate,
		logger:      logger,
		cfg:         cfg,
		now:         time.Now,
	}
}

// Create opens a pending quote request for one of the caller's custom files.
func (s *QuoteService) Create(ctx context.Context, req models.CreateQuoteRequest, actor *models.JWTClaims) (*models.QuoteRequest, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "customFileId is required")
	}

	cf, err := s.customFiles.GetByID(ctx, req.CustomFileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "custom order file not found")
		}
		return nil, appErrors.Internal(err, "failed to load custom order file")
	}
	if !actor.CanAccess(cf.UserID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to request a quote for this file")
	}

	exists, err := s.repo.ExistsForCustomFile(ctx, cf.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check existing quote")
	}
	if exists {
		return nil, appErrors.ErrQuoteExists
	}

	quote := &models.QuoteRequest{
		CustomFileID: cf.ID,
		UserID:       cf.UserID,
		Status:       models.QuoteStatusPending,
	}
	if err := s.repo.Create(ctx, quote); err != nil {
		if appErrors.IsUniqueViolation(err, quoteUniqueKey) {
			return nil, appErrors.ErrQuoteExists
		}
		return nil, appErrors.Internal(err, "failed to create quote request")
	}
	s.logger.Info("quote request created", zap.String("quote_id", quote.ID), zap.String("custom_file_id", cf.ID))
	return quote, nil
}

// List returns the caller's quotes, or every quote for admins.
func (s *QuoteService) List(ctx context.Context, filter models.QuoteFilter, actor *models.JWTClaims) ([]models.QuoteDetail, *models.Pagination, error) {
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
		quotes []models.QuoteDetail
		total  int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		quotes, err = s.repo.List(gctx, filter)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.repo.Count(gctx, filter)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list quote requests")
	}

	if actor.IsAdmin() {
		for i := range quotes {
			quotes[i].DownloadURL = s.downloadURL(quotes[i].FileID)
		}
	}
	return quotes, &models.Pagination{Limit: filter.Limit, Offset: filter.Offset, Total: total}, nil
}

// Get returns one quote to its owner or an admin.
func (s *QuoteService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.QuoteDetail, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	quote, err := s.loadDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(quote.UserID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this quote")
	}
	if actor.IsAdmin() {
		quote.DownloadURL = s.downloadURL(quote.FileID)
	}
	return quote, nil
}

// Update applies an admin pricing payload: price, notes, status, then sendPI.
// Notifications run after commit and never undo the status change.
func (s *QuoteService) Update(ctx context.Context, id string, req models.UpdateQuoteRequest, actor *models.JWTClaims) (*models.QuoteDetail, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := validateQuoteUpdate(req); err != nil {
		return nil, err
	}

	adminName := actor.Email
	if s.users != nil {
		if admin, err := s.users.FindByID(ctx, actor.UserID); err == nil && strings.TrimSpace(admin.Name) != "" {
			adminName = admin.Name
		}
	}

	var (
		from   models.QuoteStatus
		to     models.QuoteStatus
		priced bool
	)
	err := withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		quote, err := s.repo.GetForUpdate(ctx, tx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "quote request not found")
			}
			return appErrors.Internal(err, "failed to load quote request")
		}
		if quote.Status.Terminal() {
			return appErrors.Clone(appErrors.ErrConflict, "quote request is already "+string(quote.Status))
		}
		from = quote.Status

		now := s.now().UTC()
		if req.RequestedPrice != nil {
			price := roundMoney(*req.RequestedPrice)
			quote.RequestedPrice = &price
			quote.Status = models.QuoteStatusQuoted
			quote.AdminID = &actor.UserID
			quote.AdminName = &adminName
			quote.QuotedAt = &now
			quote.PISendAttempted = false
			quote.PISendConfirmed = false
			priced = true
		}
		if req.AdminNotes != nil {
			notes := strings.TrimSpace(*req.AdminNotes)
			if notes == "" {
				quote.AdminNotes = nil
			} else {
				quote.AdminNotes = &notes
			}
		}
		if req.Status != nil {
			quote.Status = *req.Status
		}
		if req.SendPI {
			if quote.RequestedPrice == nil {
				return appErrors.Clone(appErrors.ErrValidation, "a price is required before sending a proforma invoice")
			}
			if quote.Status == models.QuoteStatusRejected {
				return appErrors.Clone(appErrors.ErrConflict, "cannot send a proforma invoice for a rejected quote")
			}
			quote.AdminID = &actor.UserID
			quote.AdminName = &adminName
		}
		to = quote.Status

		if err := s.repo.Update(ctx, tx, quote); err != nil {
			return appErrors.Internal(err, "failed to update quote request")
		}
		if priced && to == models.QuoteStatusQuoted {
			if err := s.customFiles.UpdateStatus(ctx, tx, quote.CustomFileID, models.CustomFileStatusQuoted); err != nil {
				return appErrors.Internal(err, "failed to update custom order file")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if from != to {
		s.metrics.RecordQuoteTransition(string(from), string(to))
	}

	detail, err := s.loadDetail(ctx, id)
	if err != nil {
		return nil, err
	}

	if priced && to == models.QuoteStatusQuoted && s.notifier != nil {
		if err := s.notifier.QuoteReady(ctx, detail); err != nil {
			s.logger.Warn("quote notification failed", zap.String("quote_id", id), zap.Error(err))
		}
	}
	if req.SendPI {
		s.sendInvoice(ctx, detail)
	}

	s.recordUpdate(ctx, actor, detail, req)
	detail.DownloadURL = s.downloadURL(detail.FileID)
	return detail, nil
}

// Delete removes a quote request and its stored proforma invoice.
func (s *QuoteService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	invoicePath, err := s.repo.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "quote request not found")
		}
		return appErrors.Internal(err, "failed to delete quote request")
	}
	if invoicePath != "" && s.purger != nil {
		s.purger.PurgeBytes(ctx, invoiceFiles([]string{invoicePath}))
	}
	resourceID := id
	emitAudit(ctx, s.audit, s.logger, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionQuoteDelete,
		Resource:   "quote_request",
		ResourceID: &resourceID,
	})
	return nil
}

// sendInvoice records the PI outcome on the quote. Delivery problems are
// logged and reflected in the flags only. Only the invoice columns are
// written: the quote may have been converted while the PI was in flight.
func (s *QuoteService) sendInvoice(ctx context.Context, detail *models.QuoteDetail) {
	outcome := models.InvoiceOutcome{Attempted: true}
	if s.notifier == nil {
		s.logger.Warn("proforma invoice skipped, notifier not configured", zap.String("quote_id", detail.ID))
	} else {
		result, err := s.notifier.SendProformaInvoice(ctx, detail)
		if result.Path != "" {
			path := result.Path
			outcome.Path = &path
		}
		if err != nil {
			s.logger.Warn("proforma invoice delivery failed", zap.String("quote_id", detail.ID), zap.Error(err))
		}
		if err == nil && result.Delivered {
			sentAt := s.now().UTC()
			outcome.Confirmed = true
			outcome.SentAt = &sentAt
		}
	}

	detail.PISendAttempted = outcome.Attempted
	detail.PISendConfirmed = outcome.Confirmed
	if outcome.SentAt != nil {
		detail.PISentAt = outcome.SentAt
	}
	if outcome.Path != nil {
		detail.InvoicePath = outcome.Path
	}
	if err := s.repo.RecordInvoiceOutcome(ctx, detail.ID, outcome); err != nil {
		s.logger.Error("failed to record proforma invoice outcome", zap.String("quote_id", detail.ID), zap.Error(err))
	}
}

func (s *QuoteService) recordUpdate(ctx context.Context, actor *models.JWTClaims, detail *models.QuoteDetail, req models.UpdateQuoteRequest) {
	payload, err := json.Marshal(map[string]interface{}{
		"status":          detail.Status,
		"requestedPrice":  detail.RequestedPrice,
		"sendPI":          req.SendPI,
		"piSendConfirmed": detail.PISendConfirmed,
	})
	if err != nil {
		payload = nil
	}
	resourceID := detail.ID
	emitAudit(ctx, s.audit, s.logger, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionQuoteUpdate,
		Resource:   "quote_request",
		ResourceID: &resourceID,
		NewValues:  payload,
	})
}

func (s *QuoteService) loadDetail(ctx context.Context, id string) (*models.QuoteDetail, error) {
	quote, err := s.repo.GetDetail(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "quote request not found")
		}
		return nil, appErrors.Internal(err, "failed to load quote request")
	}
	return quote, nil
}

func (s *QuoteService) downloadURL(fileID string) string {
	return adminDownloadURL(s.cfg.APIPrefix, fileID)
}

func validateQuoteUpdate(req models.UpdateQuoteRequest) error {
	if req.RequestedPrice != nil {
		price := *req.RequestedPrice
		if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
			return appErrors.Clone(appErrors.ErrValidation, "requestedPrice must be a non-negative number")
		}
	}
	if req.AdminNotes != nil && len([]rune(strings.TrimSpace(*req.AdminNotes))) > maxAdminNotesLength {
		return appErrors.Clone(appErrors.ErrValidation, "adminNotes must be at most 2000 characters")
	}
	if req.Status != nil {
		switch *req.Status {
		case models.QuoteStatusRejected:
		case models.QuoteStatusAccepted:
			return appErrors.Clone(appErrors.ErrConflict, "quotes are accepted only by creating an order")
		default:
			return appErrors.Clone(appErrors.ErrValidation, "status can only be set to rejected")
		}
	}
	return nil
}
