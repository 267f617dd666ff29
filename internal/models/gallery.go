package models

import (
	"time"

	"github.com/lib/pq"
)

// GalleryItem showcases a finished print.
type GalleryItem struct {
	ID           string         `db:"id" json:"id"`
	Title        string         `db:"title" json:"title"`
	Description  string         `db:"description" json:"description"`
	CustomerName *string        `db:"customer_name" json:"customerName,omitempty"`
	Tags         pq.StringArray `db:"tags" json:"tags"`
	CreatedAt    time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updatedAt"`
	Image        string         `db:"-" json:"image"`
	Images       []GalleryImage `db:"-" json:"images"`
}

type GalleryImage struct {
	ID            string `db:"id" json:"id"`
	GalleryItemID string `db:"gallery_item_id" json:"-"`
	FileID        string `db:"file_id" json:"fileId"`
	URL           string `db:"url" json:"url"`
	SortOrder     int    `db:"sort_order" json:"order"`
}

// GalleryFilter narrows gallery listings.
type GalleryFilter struct {
	Search string
	Tag    string
	Page
}

// CreateGalleryRequest adds a showcase entry, optionally with one image.
type CreateGalleryRequest struct {
	Title        string   `json:"title" validate:"required,max=255"`
	Description  string   `json:"description" validate:"required,max=5000"`
	CustomerName *string  `json:"customerName" validate:"omitempty,max=255"`
	Tags         []string `json:"tags" validate:"max=20"`
	ImageFileID  *string  `json:"imageFileId" validate:"omitempty,uuid"`
}

// UpdateGalleryRequest changes only the fields that are present. An empty
// customerName clears it; ImageFileID links one more image.
type UpdateGalleryRequest struct {
	Title        *string  `json:"title" validate:"omitempty,min=1,max=255"`
	Description  *string  `json:"description" validate:"omitempty,min=1,max=5000"`
	CustomerName *string  `json:"customerName" validate:"omitempty,max=255"`
	Tags         []string `json:"tags" validate:"omitempty,max=20"`
	ImageFileID  *string  `json:"imageFileId" validate:"omitempty,uuid"`
}
