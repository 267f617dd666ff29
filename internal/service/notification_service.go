package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/fabnest-api/internal/models"
	appErrors "github.com/noah-isme/fabnest-api/pkg/errors"
	"github.com/noah-isme/fabnest-api/pkg/export"
	"github.com/noah-isme/fabnest-api/pkg/storage"
)

// ErrMailDisabled is returned by LogMailer when outbound mail is switched off.
var ErrMailDisabled = errors.New("mail delivery disabled")

const invoiceCategory = "invoices"

// MailMessage is a plain-text customer notification.
type MailMessage struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers a message or reports why it could not.
type Mailer interface {
	Send(ctx context.Context, msg MailMessage) error
}

// LogMailer writes messages to the log instead of an SMTP relay.
type LogMailer struct {
	enabled bool
	from    string
	logger  *zap.Logger
}

// NewLogMailer constructs a LogMailer.
func NewLogMailer(enabled bool, from string, logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{enabled: enabled, from: from, logger: logger}
}

// Send logs msg. It fails when mail is disabled so callers record the
// notification as unconfirmed.
func (m *LogMailer) Send(ctx context.Context, msg MailMessage) error {
	if !m.enabled {
		return ErrMailDisabled
	}
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("recipient is required")
	}
	m.logger.Info("mail sent",
		zap.String("from", m.from),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("body_bytes", len(msg.Body)),
	)
	return nil
}

// NotificationConfig shapes outbound notification content.
type NotificationConfig struct {
	BrandName       string
	Currency        string
	APIPrefix       string
	InvoiceValidity time.Duration
}

// InvoiceResult reports the outcome of a proforma invoice send.
type InvoiceResult struct {
	Path      string
	Delivered bool
}

// InvoiceDownload is an open proforma invoice stream.
type InvoiceDownload struct {
	Filename string
	Content  io.ReadCloser
	Size     int64
}

// NotificationService renders and delivers quote notifications.
type NotificationService struct {
	mailer  Mailer
	store   storage.Store
	signer  *storage.LinkSigner
	metrics *MetricsService
	logger  *zap.Logger
	cfg     NotificationConfig
	now     func() time.Time
}

// NewNotificationService constructs the service with defaults.
func NewNotificationService(mailer Mailer, store storage.Store, signer *storage.LinkSigner, metrics *MetricsService, logger *zap.Logger, cfg NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BrandName == "" {
		cfg.BrandName = "FABNEST 3D Printing Service"
	}
	if cfg.Currency == "" {
		cfg.Currency = "LKR"
	}
	if cfg.InvoiceValidity <= 0 {
		cfg.InvoiceValidity = 14 * 24 * time.Hour
	}
	cfg.APIPrefix = strings.TrimRight(cfg.APIPrefix, "/")
	return &NotificationService{
		mailer:  mailer,
		store:   store,
		signer:  signer,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
}

// QuoteReady tells the customer a price is available.
func (n *NotificationService) QuoteReady(ctx context.Context, quote *models.QuoteDetail) error {
	if quote == nil || quote.RequestedPrice == nil {
		return fmt.Errorf("quote has no price")
	}
	var body strings.Builder
	fmt.Fprintf(&body, "Hello %s,\n\n", displayName(quote.UserName, quote.UserEmail))
	fmt.Fprintf(&body, "Your quote for %s (%s, %s) is ready: %s %.2f.\n", quote.FileName, quote.Material, quote.Quality, n.cfg.Currency, *quote.RequestedPrice)
	if quote.AdminNotes != nil && *quote.AdminNotes != "" {
		fmt.Fprintf(&body, "\nNotes from our team:\n%s\n", *quote.AdminNotes)
	}
	fmt.Fprintf(&body, "\nYou can place the order from your account.\n\n%s\n", n.cfg.BrandName)

	err := n.mailer.Send(ctx, MailMessage{
		To:      quote.UserEmail,
		Subject: fmt.Sprintf("Your quote is ready - %s", n.cfg.BrandName),
		Body:    body.String(),
	})
	n.metrics.RecordNotification("quote_ready", err == nil)
	return err
}

// SendProformaInvoice renders the PI, stores it and mails a signed link.
// A stored invoice with a failed mail returns the path and Delivered=false.
func (n *NotificationService) SendProformaInvoice(ctx context.Context, quote *models.QuoteDetail) (InvoiceResult, error) {
	if quote == nil || quote.RequestedPrice == nil {
		return InvoiceResult{}, fmt.Errorf("quote has no price")
	}
	if n.signer == nil || n.store == nil {
		return InvoiceResult{}, fmt.Errorf("invoice storage not configured")
	}

	issued := n.now().UTC()
	notes := ""
	if quote.AdminNotes != nil {
		notes = *quote.AdminNotes
	}
	inv := export.ProformaInvoice{
		Number:        invoiceNumber(quote.ID, issued),
		IssuedAt:      issued,
		ValidUntil:    issued.Add(n.cfg.InvoiceValidity),
		Brand:         n.cfg.BrandName,
		Currency:      n.cfg.Currency,
		CustomerName:  displayName(quote.UserName, quote.UserEmail),
		CustomerEmail: quote.UserEmail,
		Lines: []export.InvoiceLine{{
			Description: "Custom 3D print: " + quote.FileName,
			Detail:      fmt.Sprintf("Material: %s, Quality: %s", quote.Material, quote.Quality),
			Quantity:    1,
			UnitPrice:   *quote.RequestedPrice,
		}},
		Notes: notes,
	}
	pdf, err := export.RenderInvoice(inv)
	if err != nil {
		n.metrics.RecordNotification("proforma_invoice", false)
		return InvoiceResult{}, fmt.Errorf("render invoice: %w", err)
	}

	key := invoiceCategory + "/" + quote.ID + ".pdf"
	if _, err := n.store.Save(ctx, key, bytes.NewReader(pdf), "application/pdf"); err != nil {
		n.metrics.RecordNotification("proforma_invoice", false)
		return InvoiceResult{}, fmt.Errorf("store invoice: %w", err)
	}
	result := InvoiceResult{Path: key}

	link, err := n.signer.Sign(quote.ID, key)
	if err != nil {
		n.metrics.RecordNotification("proforma_invoice", false)
		return result, fmt.Errorf("sign invoice link: %w", err)
	}
	downloadURL := fmt.Sprintf("%s/invoices/%s?token=%s", n.cfg.APIPrefix, quote.ID, url.QueryEscape(link.Token))

	var body strings.Builder
	fmt.Fprintf(&body, "Hello %s,\n\n", inv.CustomerName)
	fmt.Fprintf(&body, "Please find proforma invoice %s for %s %.2f.\n", inv.Number, inv.Currency, inv.Total())
	fmt.Fprintf(&body, "Download: %s\n", downloadURL)
	fmt.Fprintf(&body, "The link expires on %s.\n\n%s\n", link.ExpiresAt.UTC().Format("2006-01-02 15:04 MST"), n.cfg.BrandName)

	err = n.mailer.Send(ctx, MailMessage{
		To:      quote.UserEmail,
		Subject: fmt.Sprintf("Proforma invoice %s - %s", inv.Number, n.cfg.BrandName),
		Body:    body.String(),
	})
	n.metrics.RecordNotification("proforma_invoice", err == nil)
	if err != nil {
		return result, fmt.Errorf("send invoice mail: %w", err)
	}
	result.Delivered = true
	return result, nil
}

// OpenInvoice streams the stored PI for quoteID when token was issued for it.
func (n *NotificationService) OpenInvoice(ctx context.Context, quoteID, token string) (*InvoiceDownload, error) {
	if n.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "invoice not found")
	}
	link, err := n.signer.Verify(token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "invoice link has expired")
		}
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid invoice link")
	}
	if link.ResourceID != quoteID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invoice link does not match this quote")
	}
	reader, obj, err := n.store.Open(ctx, link.Key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "invoice not found")
		}
		return nil, appErrors.Internal(err, "failed to open invoice")
	}
	var size int64
	if obj != nil {
		size = obj.Size
	}
	return &InvoiceDownload{Filename: "proforma-" + quoteID + ".pdf", Content: reader, Size: size}, nil
}

func invoiceNumber(quoteID string, issued time.Time) string {
	short := strings.ToUpper(strings.ReplaceAll(quoteID, "-", ""))
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("PI-%s-%s", issued.Format("20060102"), short)
}

func displayName(name, email string) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	return email
}
