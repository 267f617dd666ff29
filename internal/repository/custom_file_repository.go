package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/fabnest-api/internal/models"
)

// ErrAlreadyLinked is returned when a custom file is already attached to an order item.
var ErrAlreadyLinked = errors.New("custom file already linked to an order item")

const customFileColumns = `id, user_id, file_id, material, quality, notes, status, order_item_id, created_at, updated_at`

// CustomFileRepository persists customer print files.
type CustomFileRepository struct {
	db *sqlx.DB
}

// NewCustomFileRepository constructs a CustomFileRepository.
func NewCustomFileRepository(db *sqlx.DB) *CustomFileRepository {
	return &CustomFileRepository{db: db}
}

func (r *CustomFileRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a custom order file.
func (r *CustomFileRepository) Create(ctx context.Context, cf *models.CustomOrderFile) error {
	if cf.ID == "" {
		cf.ID = uuid.NewString()
	}
	if cf.Status == "" {
		cf.Status = models.CustomFileStatusPending
	}
	now := time.Now().UTC()
	cf.CreatedAt = now
	cf.UpdatedAt = now
	const query = `INSERT INTO custom_order_files (id, user_id, file_id, material, quality, notes, status, created_at, updated_at)
VALUES (:id, :user_id, :file_id, :material, :quality, :notes, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, cf); err != nil {
		return fmt.Errorf("create custom order file: %w", err)
	}
	return nil
}

// GetByID fetches a custom order file.
func (r *CustomFileRepository) GetByID(ctx context.Context, id string) (*models.CustomOrderFile, error) {
	return r.get(ctx, r.db, `SELECT `+customFileColumns+` FROM custom_order_files WHERE id = $1`, id)
}

// GetForUpdate fetches and row-locks a custom order file inside exec.
func (r *CustomFileRepository) GetForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.CustomOrderFile, error) {
	return r.get(ctx, r.exec(exec), `SELECT `+customFileColumns+` FROM custom_order_files WHERE id = $1 FOR UPDATE`, id)
}

func (r *CustomFileRepository) get(ctx context.Context, q sqlx.QueryerContext, query, id string) (*models.CustomOrderFile, error) {
	var cf models.CustomOrderFile
	if err := sqlx.GetContext(ctx, q, &cf, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get custom order file: %w", err)
	}
	return &cf, nil
}

// UpdateStatus sets the lifecycle status.
func (r *CustomFileRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.CustomFileStatus) error {
	const query = `UPDATE custom_order_files SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update custom order file status: %w", err)
	}
	return nil
}

// LinkOrderItem attaches the file to an order item and marks it ordered.
// It returns ErrAlreadyLinked when another item already claimed it.
func (r *CustomFileRepository) LinkOrderItem(ctx context.Context, exec sqlx.ExtContext, id, orderItemID string) error {
	const query = `UPDATE custom_order_files SET order_item_id = $2, status = $3, updated_at = $4 WHERE id = $1 AND order_item_id IS NULL`
	res, err := r.exec(exec).ExecContext(ctx, query, id, orderItemID, models.CustomFileStatusOrdered, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("link custom order file: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("link custom order file: %w", err)
	}
	if affected == 0 {
		return ErrAlreadyLinked
	}
	return nil
}

// ListByOrder returns the custom files attached to any item of the order.
func (r *CustomFileRepository) ListByOrder(ctx context.Context, exec sqlx.ExtContext, orderID string) ([]models.CustomOrderFile, error) {
	const query = `SELECT cf.id, cf.user_id, cf.file_id, cf.material, cf.quality, cf.notes, cf.status, cf.order_item_id, cf.created_at, cf.updated_at
FROM custom_order_files cf
JOIN order_items oi ON oi.id = cf.order_item_id
WHERE oi.order_id = $1`
	files := make([]models.CustomOrderFile, 0)
	if err := sqlx.SelectContext(ctx, r.exec(exec), &files, query, orderID); err != nil {
		return nil, fmt.Errorf("list custom files by order: %w", err)
	}
	return files, nil
}

// FileIDsByUser returns the file ids behind every custom file the user owns.
func (r *CustomFileRepository) FileIDsByUser(ctx context.Context, exec sqlx.ExtContext, userID string) ([]string, error) {
	ids := make([]string, 0)
	if err := sqlx.SelectContext(ctx, r.exec(exec), &ids, `SELECT file_id FROM custom_order_files WHERE user_id = $1`, userID); err != nil {
		return nil, fmt.Errorf("list custom file ids by user: %w", err)
	}
	return ids, nil
}

// Delete removes the custom file row. Its quote request cascades.
func (r *CustomFileRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if _, err := r.exec(exec).ExecContext(ctx, `DELETE FROM custom_order_files WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete custom order file: %w", err)
	}
	return nil
}
