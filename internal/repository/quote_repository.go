package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/fabnest-api/internal/models"
)

const quoteColumns = `q.id, q.custom_file_id, q.user_id, q.status, q.requested_price, q.admin_notes, q.admin_id, q.admin_name,
	q.quoted_at, q.pi_send_attempted, q.pi_send_confirmed, q.pi_sent_at, q.invoice_path, q.created_at, q.updated_at`

const quoteDetailSelect = `SELECT ` + quoteColumns + `,
	f.id AS file_id, f.original_name AS file_name, f.size AS file_size,
	cf.material, cf.quality, cf.notes, cf.order_item_id,
	u.email AS user_email, u.name AS user_name
FROM quote_requests q
JOIN custom_order_files cf ON cf.id = q.custom_file_id
JOIN files f ON f.id = cf.file_id
JOIN users u ON u.id = q.user_id`

// QuoteRepository persists quote requests.
type QuoteRepository struct {
	db *sqlx.DB
}

// NewQuoteRepository constructs a QuoteRepository.
func NewQuoteRepository(db *sqlx.DB) *QuoteRepository {
	return &QuoteRepository{db: db}
}

func (r *QuoteRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a pending quote request. Duplicate custom files surface as
// a pq unique violation on quote_requests_custom_file_id_key.
func (r *QuoteRepository) Create(ctx context.Context, quote *models.QuoteRequest) error {
	if quote.ID == "" {
		quote.ID = uuid.NewString()
	}
	if quote.Status == "" {
		quote.Status = models.QuoteStatusPending
	}
	now := time.Now().UTC()
	quote.CreatedAt = now
	quote.UpdatedAt = now
	const query = `INSERT INTO quote_requests (id, custom_file_id, user_id, status, created_at, updated_at)
VALUES (:id, :custom_file_id, :user_id, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, quote); err != nil {
		return fmt.Errorf("create quote request: %w", err)
	}
	return nil
}

// GetDetail returns the quote joined with its file and requester.
func (r *QuoteRepository) GetDetail(ctx context.Context, id string) (*models.QuoteDetail, error) {
	var detail models.QuoteDetail
	if err := r.db.GetContext(ctx, &detail, quoteDetailSelect+` WHERE q.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get quote request: %w", err)
	}
	return &detail, nil
}

// GetForUpdate fetches and row-locks the quote inside exec.
func (r *QuoteRepository) GetForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.QuoteRequest, error) {
	var quote models.QuoteRequest
	query := `SELECT ` + quoteColumns + ` FROM quote_requests q WHERE q.id = $1 FOR UPDATE`
	if err := sqlx.GetContext(ctx, r.exec(exec), &quote, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("lock quote request: %w", err)
	}
	return &quote, nil
}

// ExistsForCustomFile reports whether a quote was already requested for the file.
func (r *QuoteRepository) ExistsForCustomFile(ctx context.Context, customFileID string) (bool, error) {
	var exists bool
	const query = `SELECT EXISTS (SELECT 1 FROM quote_requests WHERE custom_file_id = $1)`
	if err := r.db.GetContext(ctx, &exists, query, customFileID); err != nil {
		return false, fmt.Errorf("check quote request: %w", err)
	}
	return exists, nil
}

func buildQuoteFilter(filter models.QuoteFilter) (string, []interface{}) {
	where := ` WHERE 1=1`
	var args []interface{}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		where += fmt.Sprintf(" AND q.user_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND q.status = $%d", len(args))
	}
	return where, args
}

// List returns one page of quotes, newest first.
func (r *QuoteRepository) List(ctx context.Context, filter models.QuoteFilter) ([]models.QuoteDetail, error) {
	where, args := buildQuoteFilter(filter)
	page := filter.Page.Normalized(models.DefaultPageLimit)
	query := fmt.Sprintf("%s%s ORDER BY q.created_at DESC LIMIT %d OFFSET %d", quoteDetailSelect, where, page.Limit, page.Offset)
	quotes := make([]models.QuoteDetail, 0)
	if err := r.db.SelectContext(ctx, &quotes, query, args...); err != nil {
		return nil, fmt.Errorf("list quote requests: %w", err)
	}
	return quotes, nil
}

// Count returns the number of quotes matching filter.
func (r *QuoteRepository) Count(ctx context.Context, filter models.QuoteFilter) (int, error) {
	where, args := buildQuoteFilter(filter)
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM quote_requests q`+where, args...); err != nil {
		return 0, fmt.Errorf("count quote requests: %w", err)
	}
	return total, nil
}

// Update persists the mutable workflow columns.
func (r *QuoteRepository) Update(ctx context.Context, exec sqlx.ExtContext, quote *models.QuoteRequest) error {
	quote.UpdatedAt = time.Now().UTC()
	const query = `UPDATE quote_requests SET status = :status, requested_price = :requested_price, admin_notes = :admin_notes,
	admin_id = :admin_id, admin_name = :admin_name, quoted_at = :quoted_at, pi_send_attempted = :pi_send_attempted,
	pi_send_confirmed = :pi_send_confirmed, pi_sent_at = :pi_sent_at, invoice_path = :invoice_path, updated_at = :updated_at
WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, quote); err != nil {
		return fmt.Errorf("update quote request: %w", err)
	}
	return nil
}

// UpdateStatus moves the quote to status.
func (r *QuoteRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.QuoteStatus) error {
	const query = `UPDATE quote_requests SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update quote request status: %w", err)
	}
	return nil
}

// RecordInvoiceOutcome stores the proforma invoice bookkeeping without
// touching status, price or notes.
func (r *QuoteRepository) RecordInvoiceOutcome(ctx context.Context, id string, outcome models.InvoiceOutcome) error {
	const query = `UPDATE quote_requests SET pi_send_attempted = $2, pi_send_confirmed = $3,
	pi_sent_at = COALESCE($4, pi_sent_at), invoice_path = COALESCE($5, invoice_path), updated_at = $6
WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, outcome.Attempted, outcome.Confirmed, outcome.SentAt, outcome.Path, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record invoice outcome: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// InvoicePathsByCustomFiles returns stored invoice keys of quotes on the given custom files.
func (r *QuoteRepository) InvoicePathsByCustomFiles(ctx context.Context, exec sqlx.ExtContext, customFileIDs []string) ([]string, error) {
	paths := make([]string, 0)
	if len(customFileIDs) == 0 {
		return paths, nil
	}
	const query = `SELECT invoice_path FROM quote_requests WHERE custom_file_id = ANY($1) AND invoice_path IS NOT NULL`
	if err := sqlx.SelectContext(ctx, r.exec(exec), &paths, query, pq.Array(customFileIDs)); err != nil {
		return nil, fmt.Errorf("list invoice paths: %w", err)
	}
	return paths, nil
}

// InvoicePathsByUser returns stored invoice keys of every quote owned by userID.
func (r *QuoteRepository) InvoicePathsByUser(ctx context.Context, exec sqlx.ExtContext, userID string) ([]string, error) {
	paths := make([]string, 0)
	const query = `SELECT invoice_path FROM quote_requests WHERE user_id = $1 AND invoice_path IS NOT NULL`
	if err := sqlx.SelectContext(ctx, r.exec(exec), &paths, query, userID); err != nil {
		return nil, fmt.Errorf("list user invoice paths: %w", err)
	}
	return paths, nil
}

// Delete removes a quote request and returns its stored invoice key, if any.
func (r *QuoteRepository) Delete(ctx context.Context, id string) (string, error) {
	var path sql.NullString
	err := r.db.QueryRowxContext(ctx, `DELETE FROM quote_requests WHERE id = $1 RETURNING invoice_path`, id).Scan(&path)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", err
		}
		return "", fmt.Errorf("delete quote request: %w", err)
	}
	return path.String, nil
}
