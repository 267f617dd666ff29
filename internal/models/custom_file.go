package models

import "time"

// CustomFileStatus tracks a customer print file through pricing and ordering.
type CustomFileStatus string

const (
	CustomFileStatusPending CustomFileStatus = "pending"
	CustomFileStatusQuoted  CustomFileStatus = "quoted"
	CustomFileStatusOrdered CustomFileStatus = "ordered"
)

// CustomOrderFile links an uploaded model to its owner with print parameters.
type CustomOrderFile struct {
	ID          string           `db:"id" json:"id"`
	UserID      string           `db:"user_id" json:"userId"`
	FileID      string           `db:"file_id" json:"fileId"`
	Material    string           `db:"material" json:"material"`
	Quality     string           `db:"quality" json:"quality"`
	Notes       *string          `db:"notes" json:"notes,omitempty"`
	Status      CustomFileStatus `db:"status" json:"status"`
	OrderItemID *string          `db:"order_item_id" json:"orderItemId,omitempty"`
	CreatedAt   time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updatedAt"`
}

// CreateCustomFileRequest registers an uploaded model for a custom print.
type CreateCustomFileRequest struct {
	FileID   string  `json:"fileId" validate:"required,uuid"`
	Material string  `json:"material" validate:"required,max=50"`
	Quality  string  `json:"quality" validate:"required,max=50"`
	Notes    *string `json:"notes" validate:"omitempty,max=2000"`
}
