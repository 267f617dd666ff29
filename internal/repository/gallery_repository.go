package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/fabnest-api/internal/models"
)

const galleryColumns = `id, title, description, customer_name, tags, created_at, updated_at`

// GalleryRepository persists showcase items and their images.
type GalleryRepository struct {
	db *sqlx.DB
}

// NewGalleryRepository constructs a GalleryRepository.
func NewGalleryRepository(db *sqlx.DB) *GalleryRepository {
	return &GalleryRepository{db: db}
}

func (r *GalleryRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

func buildGalleryFilter(filter models.GalleryFilter) (string, []interface{}) {
	where := ` WHERE 1=1`
	var args []interface{}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		where += fmt.Sprintf(" AND (title ILIKE $%d OR description ILIKE $%d)", len(args), len(args))
	}
	if filter.Tag != "" {
		args = append(args, filter.Tag)
		where += fmt.Sprintf(" AND $%d = ANY(tags)", len(args))
	}
	return where, args
}

// List returns one page of gallery items, newest first.
func (r *GalleryRepository) List(ctx context.Context, filter models.GalleryFilter) ([]models.GalleryItem, error) {
	where, args := buildGalleryFilter(filter)
	page := filter.Page.Normalized(models.DefaultPageLimit)
	query := fmt.Sprintf("SELECT %s FROM gallery_items%s ORDER BY created_at DESC LIMIT %d OFFSET %d", galleryColumns, where, page.Limit, page.Offset)
	items := make([]models.GalleryItem, 0)
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list gallery items: %w", err)
	}
	if err := r.attachImages(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

// Count returns the number of gallery items matching filter.
func (r *GalleryRepository) Count(ctx context.Context, filter models.GalleryFilter) (int, error) {
	where, args := buildGalleryFilter(filter)
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM gallery_items`+where, args...); err != nil {
		return 0, fmt.Errorf("count gallery items: %w", err)
	}
	return total, nil
}

// GetByID returns a gallery item with its images.
func (r *GalleryRepository) GetByID(ctx context.Context, id string) (*models.GalleryItem, error) {
	var item models.GalleryItem
	if err := r.db.GetContext(ctx, &item, `SELECT `+galleryColumns+` FROM gallery_items WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get gallery item: %w", err)
	}
	items := []models.GalleryItem{item}
	if err := r.attachImages(ctx, items); err != nil {
		return nil, err
	}
	return &items[0], nil
}

func (r *GalleryRepository) attachImages(ctx context.Context, items []models.GalleryItem) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]string, len(items))
	index := make(map[string]int, len(items))
	for i := range items {
		ids[i] = items[i].ID
		index[items[i].ID] = i
		items[i].Images = make([]models.GalleryImage, 0)
	}

	const query = `SELECT gi.id, gi.gallery_item_id, gi.file_id, f.url, gi.sort_order
FROM gallery_images gi
JOIN files f ON f.id = gi.file_id
WHERE gi.gallery_item_id = ANY($1)
ORDER BY gi.gallery_item_id, gi.sort_order, gi.created_at`
	var images []models.GalleryImage
	if err := r.db.SelectContext(ctx, &images, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("list gallery images: %w", err)
	}
	for _, img := range images {
		if i, ok := index[img.GalleryItemID]; ok {
			items[i].Images = append(items[i].Images, img)
		}
	}
	for i := range items {
		if len(items[i].Images) > 0 {
			items[i].Image = items[i].Images[0].URL
		}
	}
	return nil
}

// Create inserts a gallery item row.
func (r *GalleryRepository) Create(ctx context.Context, exec sqlx.ExtContext, item *models.GalleryItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Tags == nil {
		item.Tags = pq.StringArray{}
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	const query = `INSERT INTO gallery_items (id, title, description, customer_name, tags, created_at, updated_at)
VALUES (:id, :title, :description, :customer_name, :tags, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, item); err != nil {
		return fmt.Errorf("create gallery item: %w", err)
	}
	return nil
}

// Update persists the item's scalar fields.
func (r *GalleryRepository) Update(ctx context.Context, exec sqlx.ExtContext, item *models.GalleryItem) error {
	if item.Tags == nil {
		item.Tags = pq.StringArray{}
	}
	item.UpdatedAt = time.Now().UTC()
	const query = `UPDATE gallery_items SET title = :title, description = :description, customer_name = :customer_name,
	tags = :tags, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, item); err != nil {
		return fmt.Errorf("update gallery item: %w", err)
	}
	return nil
}

// Delete removes the gallery item. Image links cascade.
func (r *GalleryRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if _, err := r.exec(exec).ExecContext(ctx, `DELETE FROM gallery_items WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete gallery item: %w", err)
	}
	return nil
}

// ImageFileIDs returns the files linked to the gallery item.
func (r *GalleryRepository) ImageFileIDs(ctx context.Context, exec sqlx.ExtContext, itemID string) ([]string, error) {
	var ids []string
	if err := sqlx.SelectContext(ctx, r.exec(exec), &ids, `SELECT file_id FROM gallery_images WHERE gallery_item_id = $1`, itemID); err != nil {
		return nil, fmt.Errorf("list gallery image files: %w", err)
	}
	return ids, nil
}

// LinkImage attaches fileID to the item unless it is already linked.
func (r *GalleryRepository) LinkImage(ctx context.Context, exec sqlx.ExtContext, itemID, fileID string) error {
	const query = `INSERT INTO gallery_images (id, gallery_item_id, file_id, sort_order, created_at)
VALUES ($1, $2, $3, 0, $4)
ON CONFLICT (gallery_item_id, file_id) DO NOTHING`
	if _, err := r.exec(exec).ExecContext(ctx, query, uuid.NewString(), itemID, fileID, time.Now().UTC()); err != nil {
		return fmt.Errorf("link gallery image: %w", err)
	}
	return nil
}
