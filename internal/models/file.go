package models

import "time"

// FileKind classifies an uploaded asset.
type FileKind string

const (
	FileKindModel FileKind = "model"
	FileKindImage FileKind = "image"
)

// Valid reports whether k is a known kind.
func (k FileKind) Valid() bool {
	return k == FileKindModel || k == FileKindImage
}

// File is the metadata row for stored upload bytes.
type File struct {
	ID           string    `db:"id" json:"id"`
	OriginalName string    `db:"original_name" json:"originalName"`
	Path         string    `db:"path" json:"path"`
	URL          string    `db:"url" json:"url"`
	MimeType     string    `db:"mime_type" json:"mimeType"`
	Kind         FileKind  `db:"kind" json:"fileType"`
	Size         int64     `db:"size" json:"size"`
	UploadedBy   *string   `db:"uploaded_by" json:"uploadedBy,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// FileReferences counts the records still pointing at a file.
type FileReferences struct {
	ProductImages int `db:"product_images"`
	GalleryImages int `db:"gallery_images"`
	CustomFiles   int `db:"custom_files"`
}

// Total sums every reference.
func (r FileReferences) Total() int {
	return r.ProductImages + r.GalleryImages + r.CustomFiles
}
