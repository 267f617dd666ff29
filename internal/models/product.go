package models

import (
	"time"

	"github.com/lib/pq"
)

// Product is a catalog entry.
type Product struct {
	ID          string         `db:"id" json:"id"`
	Name        string         `db:"name" json:"name"`
	Description string         `db:"description" json:"description"`
	BasePrice   float64        `db:"base_price" json:"basePrice"`
	Category    string         `db:"category" json:"category"`
	Tags        pq.StringArray `db:"tags" json:"tags"`
	PrintTime   *string        `db:"print_time" json:"printTime,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updatedAt"`
	Image       string         `db:"-" json:"image"`
	Images      []ProductImage `db:"-" json:"images"`
}

// ProductImage links a product to an image file.
type ProductImage struct {
	ID        string `db:"id" json:"id"`
	ProductID string `db:"product_id" json:"-"`
	FileID    string `db:"file_id" json:"fileId"`
	URL       string `db:"url" json:"url"`
	IsPrimary bool   `db:"is_primary" json:"isPrimary"`
	SortOrder int    `db:"sort_order" json:"order"`
}

// PrimaryImageURL returns the primary image, falling back to the first one.
func (p *Product) PrimaryImageURL() string {
	for _, img := range p.Images {
		if img.IsPrimary {
			return img.URL
		}
	}
	if len(p.Images) > 0 {
		return p.Images[0].URL
	}
	return ""
}

// ProductFilter narrows product listings.
type ProductFilter struct {
	Category string
	Search   string
	Page
}

// CreateProductRequest adds a catalog entry, optionally with a primary image.
type CreateProductRequest struct {
	Name        string   `json:"name" validate:"required,max=255"`
	Description string   `json:"description" validate:"required,max=5000"`
	BasePrice   float64  `json:"basePrice" validate:"gte=0"`
	Category    string   `json:"category" validate:"required,max=100"`
	Tags        []string `json:"tags" validate:"max=20"`
	PrintTime   *string  `json:"printTime" validate:"omitempty,max=50"`
	ImageFileID *string  `json:"imageFileId" validate:"omitempty,uuid"`
}

// UpdateProductRequest changes only the fields that are present.
// ImageFileID makes that file the primary image.
type UpdateProductRequest struct {
	Name        *string  `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string  `json:"description" validate:"omitempty,min=1,max=5000"`
	BasePrice   *float64 `json:"basePrice" validate:"omitempty,gte=0"`
	Category    *string  `json:"category" validate:"omitempty,min=1,max=100"`
	Tags        []string `json:"tags" validate:"omitempty,max=20"`
	PrintTime   *string  `json:"printTime" validate:"omitempty,max=50"`
	ImageFileID *string  `json:"imageFileId" validate:"omitempty,uuid"`
}
