package models

import "time"

// OrderStatus is the fulfilment state of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusPrinting   OrderStatus = "printing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusPrinting, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// Order is a customer purchase with its ordered items.
type Order struct {
	ID                string      `db:"id" json:"id"`
	UserID            string      `db:"user_id" json:"userId"`
	Status            OrderStatus `db:"status" json:"status"`
	Subtotal          float64     `db:"subtotal" json:"subtotal"`
	Shipping          float64     `db:"shipping" json:"shipping"`
	Tax               float64     `db:"tax" json:"tax"`
	Total             float64     `db:"total" json:"total"`
	TrackingNumber    *string     `db:"tracking_number" json:"trackingNumber,omitempty"`
	EstimatedDelivery *time.Time  `db:"estimated_delivery" json:"estimatedDelivery,omitempty"`
	CreatedAt         time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time   `db:"updated_at" json:"updatedAt"`
	Items             []OrderItem `db:"-" json:"items"`
}

// OrderItem is one line of an order. CustomFileID is resolved through the
// custom file linked to the item.
type OrderItem struct {
	ID           string  `db:"id" json:"id"`
	OrderID      string  `db:"order_id" json:"orderId"`
	ProductID    *string `db:"product_id" json:"productId,omitempty"`
	ProductName  string  `db:"product_name" json:"productName"`
	Material     string  `db:"material" json:"material"`
	Size         string  `db:"size" json:"size"`
	Quantity     int     `db:"quantity" json:"quantity"`
	UnitPrice    float64 `db:"unit_price" json:"unitPrice"`
	TotalPrice   float64 `db:"total_price" json:"totalPrice"`
	IsCustom     bool    `db:"is_custom" json:"isCustom"`
	Position     int     `db:"position" json:"-"`
	CustomFileID *string `db:"custom_file_id" json:"customFileId,omitempty"`
	FileID       *string `db:"file_id" json:"fileId,omitempty"`
	FileName     *string `db:"file_name" json:"fileName,omitempty"`
	DownloadURL  string  `db:"-" json:"downloadUrl,omitempty"`
}

// OrderFilter narrows order listings and exports.
type OrderFilter struct {
	UserID string
	Status OrderStatus
	Page
}

// OrderExportRow is one order with its customer for CSV export.
type OrderExportRow struct {
	Order
	UserEmail string `db:"user_email"`
	ItemCount int    `db:"item_count"`
}

// CreateOrderItemRequest is one catalog or custom line of a new order.
type CreateOrderItemRequest struct {
	ProductID    *string `json:"productId" validate:"omitempty,uuid"`
	ProductName  string  `json:"productName" validate:"required,max=255"`
	Material     string  `json:"material" validate:"required,max=50"`
	Size         string  `json:"size" validate:"required,max=50"`
	Quantity     int     `json:"quantity" validate:"required,min=1"`
	UnitPrice    float64 `json:"unitPrice" validate:"gte=0"`
	TotalPrice   float64 `json:"totalPrice" validate:"gte=0"`
	IsCustom     bool    `json:"isCustom"`
	CustomFileID *string `json:"customFileId" validate:"omitempty,uuid"`
}

// CreateOrderRequest places a catalog order.
type CreateOrderRequest struct {
	Items    []CreateOrderItemRequest `json:"items" validate:"required,min=1,dive"`
	Subtotal float64                  `json:"subtotal" validate:"gte=0"`
	Shipping float64                  `json:"shipping" validate:"gte=0"`
	Tax      float64                  `json:"tax" validate:"gte=0"`
	Total    float64                  `json:"total" validate:"gte=0"`
}

// CreateOrderFromQuoteRequest carries caller-supplied charges for conversion.
type CreateOrderFromQuoteRequest struct {
	Shipping *float64 `json:"shipping"`
	Tax      *float64 `json:"tax"`
}

// UpdateOrderRequest changes status or fulfilment details.
type UpdateOrderRequest struct {
	Status            *OrderStatus `json:"status"`
	TrackingNumber    *string      `json:"trackingNumber" validate:"omitempty,max=100"`
	EstimatedDelivery *time.Time   `json:"estimatedDelivery"`
}
