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

const fileColumns = `id, original_name, path, url, mime_type, kind, size, uploaded_by, created_at`

// FileRepository stores upload metadata.
type FileRepository struct {
	db *sqlx.DB
}

// NewFileRepository constructs a FileRepository.
func NewFileRepository(db *sqlx.DB) *FileRepository {
	return &FileRepository{db: db}
}

func (r *FileRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts file metadata.
func (r *FileRepository) Create(ctx context.Context, file *models.File) error {
	if file.ID == "" {
		file.ID = uuid.NewString()
	}
	if file.CreatedAt.IsZero() {
		file.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO files (id, original_name, path, url, mime_type, kind, size, uploaded_by, created_at)
VALUES (:id, :original_name, :path, :url, :mime_type, :kind, :size, :uploaded_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, file); err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	return nil
}

// GetByID fetches file metadata.
func (r *FileRepository) GetByID(ctx context.Context, id string) (*models.File, error) {
	var file models.File
	if err := r.db.GetContext(ctx, &file, `SELECT `+fileColumns+` FROM files WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get file: %w", err)
	}
	return &file, nil
}

// GetForUpdate fetches and row-locks file metadata inside exec.
func (r *FileRepository) GetForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.File, error) {
	var file models.File
	if err := sqlx.GetContext(ctx, r.exec(exec), &file, `SELECT `+fileColumns+` FROM files WHERE id = $1 FOR UPDATE`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("lock file: %w", err)
	}
	return &file, nil
}

// CountReferences counts product images, gallery images and custom order
// files still pointing at the file.
func (r *FileRepository) CountReferences(ctx context.Context, exec sqlx.ExtContext, id string) (models.FileReferences, error) {
	const query = `SELECT
	(SELECT COUNT(*) FROM product_images WHERE file_id = $1) AS product_images,
	(SELECT COUNT(*) FROM gallery_images WHERE file_id = $1) AS gallery_images,
	(SELECT COUNT(*) FROM custom_order_files WHERE file_id = $1) AS custom_files`
	var refs models.FileReferences
	if err := sqlx.GetContext(ctx, r.exec(exec), &refs, query, id); err != nil {
		return refs, fmt.Errorf("count file references: %w", err)
	}
	return refs, nil
}

// Delete removes the metadata row. A missing row is not an error.
func (r *FileRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if _, err := r.exec(exec).ExecContext(ctx, `DELETE FROM files WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// ListUnreferenced returns files created before cutoff that nothing links to.
func (r *FileRepository) ListUnreferenced(ctx context.Context, cutoff time.Time, limit int) ([]models.File, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `SELECT ` + fileColumns + ` FROM files f
WHERE f.created_at < $1
	AND NOT EXISTS (SELECT 1 FROM product_images pi WHERE pi.file_id = f.id)
	AND NOT EXISTS (SELECT 1 FROM gallery_images gi WHERE gi.file_id = f.id)
	AND NOT EXISTS (SELECT 1 FROM custom_order_files cf WHERE cf.file_id = f.id)
ORDER BY f.created_at
LIMIT $2`
	files := make([]models.File, 0)
	if err := r.db.SelectContext(ctx, &files, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("list unreferenced files: %w", err)
	}
	return files, nil
}
