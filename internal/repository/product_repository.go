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

const productColumns = `id, name, description, base_price, category, tags, print_time, created_at, updated_at`

// ProductRepository persists catalog products and their images.
type ProductRepository struct {
	db *sqlx.DB
}

// NewProductRepository constructs a ProductRepository.
func NewProductRepository(db *sqlx.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

func buildProductFilter(filter models.ProductFilter) (string, []interface{}) {
	where := ` WHERE 1=1`
	var args []interface{}
	if filter.Category != "" {
		args = append(args, filter.Category)
		where += fmt.Sprintf(" AND category = $%d", len(args))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%", search)
		where += fmt.Sprintf(" AND (name ILIKE $%d OR description ILIKE $%d OR $%d = ANY(tags))", len(args)-1, len(args)-1, len(args))
	}
	return where, args
}

// List returns one page of products with images, newest first.
func (r *ProductRepository) List(ctx context.Context, filter models.ProductFilter) ([]models.Product, error) {
	where, args := buildProductFilter(filter)
	page := filter.Page.Normalized(models.MaxPageLimit)
	query := fmt.Sprintf("SELECT %s FROM products%s ORDER BY created_at DESC LIMIT %d OFFSET %d", productColumns, where, page.Limit, page.Offset)
	products := make([]models.Product, 0)
	if err := r.db.SelectContext(ctx, &products, query, args...); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	if err := r.attachImages(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

// Count returns the number of products matching filter.
func (r *ProductRepository) Count(ctx context.Context, filter models.ProductFilter) (int, error) {
	where, args := buildProductFilter(filter)
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM products`+where, args...); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return total, nil
}

// GetByID returns a product with its images.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	if err := r.db.GetContext(ctx, &product, `SELECT `+productColumns+` FROM products WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	products := []models.Product{product}
	if err := r.attachImages(ctx, products); err != nil {
		return nil, err
	}
	return &products[0], nil
}

// Exists reports whether a product row exists.
func (r *ProductRepository) Exists(ctx context.Context, exec sqlx.ExtContext, id string) (bool, error) {
	var exists bool
	if err := sqlx.GetContext(ctx, r.exec(exec), &exists, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id); err != nil {
		return false, fmt.Errorf("check product: %w", err)
	}
	return exists, nil
}

func (r *ProductRepository) attachImages(ctx context.Context, products []models.Product) error {
	if len(products) == 0 {
		return nil
	}
	ids := make([]string, len(products))
	index := make(map[string]int, len(products))
	for i := range products {
		ids[i] = products[i].ID
		index[products[i].ID] = i
		products[i].Images = make([]models.ProductImage, 0)
	}

	const query = `SELECT pi.id, pi.product_id, pi.file_id, f.url, pi.is_primary, pi.sort_order
FROM product_images pi
JOIN files f ON f.id = pi.file_id
WHERE pi.product_id = ANY($1)
ORDER BY pi.product_id, pi.sort_order, pi.created_at`
	var images []models.ProductImage
	if err := r.db.SelectContext(ctx, &images, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("list product images: %w", err)
	}
	for _, img := range images {
		if i, ok := index[img.ProductID]; ok {
			products[i].Images = append(products[i].Images, img)
		}
	}
	for i := range products {
		products[i].Image = products[i].PrimaryImageURL()
	}
	return nil
}

// Create inserts a product row.
func (r *ProductRepository) Create(ctx context.Context, exec sqlx.ExtContext, product *models.Product) error {
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	if product.Tags == nil {
		product.Tags = pq.StringArray{}
	}
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now
	const query = `INSERT INTO products (id, name, description, base_price, category, tags, print_time, created_at, updated_at)
VALUES (:id, :name, :description, :base_price, :category, :tags, :print_time, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, product); err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

// Update persists the product's scalar fields.
func (r *ProductRepository) Update(ctx context.Context, exec sqlx.ExtContext, product *models.Product) error {
	if product.Tags == nil {
		product.Tags = pq.StringArray{}
	}
	product.UpdatedAt = time.Now().UTC()
	const query = `UPDATE products SET name = :name, description = :description, base_price = :base_price, category = :category,
	tags = :tags, print_time = :print_time, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, product); err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return nil
}

// Delete removes the product. Image links cascade.
func (r *ProductRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if _, err := r.exec(exec).ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	return nil
}

// ImageFileIDs returns the files linked to the product.
func (r *ProductRepository) ImageFileIDs(ctx context.Context, exec sqlx.ExtContext, productID string) ([]string, error) {
	var ids []string
	if err := sqlx.SelectContext(ctx, r.exec(exec), &ids, `SELECT file_id FROM product_images WHERE product_id = $1`, productID); err != nil {
		return nil, fmt.Errorf("list product image files: %w", err)
	}
	return ids, nil
}

// SetPrimaryImage demotes the current primary images and promotes fileID,
// linking it first when it is not attached yet.
func (r *ProductRepository) SetPrimaryImage(ctx context.Context, exec sqlx.ExtContext, productID, fileID string) error {
	target := r.exec(exec)
	if _, err := target.ExecContext(ctx, `UPDATE product_images SET is_primary = FALSE WHERE product_id = $1 AND is_primary = TRUE`, productID); err != nil {
		return fmt.Errorf("demote product images: %w", err)
	}

	res, err := target.ExecContext(ctx, `UPDATE product_images SET is_primary = TRUE WHERE product_id = $1 AND file_id = $2`, productID, fileID)
	if err != nil {
		return fmt.Errorf("promote product image: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected > 0 {
		return nil
	}

	const insert = `INSERT INTO product_images (id, product_id, file_id, is_primary, sort_order, created_at) VALUES ($1, $2, $3, TRUE, 0, $4)`
	if _, err := target.ExecContext(ctx, insert, uuid.NewString(), productID, fileID, time.Now().UTC()); err != nil {
		return fmt.Errorf("link product image: %w", err)
	}
	return nil
}
