package models

import "time"

// QuoteStatus is the lifecycle state of a quote request.
type QuoteStatus string

const (
	QuoteStatusPending  QuoteStatus = "pending"
	QuoteStatusQuoted   QuoteStatus = "quoted"
	QuoteStatusAccepted QuoteStatus = "accepted"
	QuoteStatusRejected QuoteStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s QuoteStatus) Valid() bool {
	switch s {
	case QuoteStatusPending, QuoteStatusQuoted, QuoteStatusAccepted, QuoteStatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed out of s.
func (s QuoteStatus) Terminal() bool {
	return s == QuoteStatusAccepted || s == QuoteStatusRejected
}

// QuoteRequest is a customer's request for a price on a custom file.
type QuoteRequest struct {
	ID              string      `db:"id" json:"id"`
	CustomFileID    string      `db:"custom_file_id" json:"customFileId"`
	UserID          string      `db:"user_id" json:"userId"`
	Status          QuoteStatus `db:"status" json:"status"`
	RequestedPrice  *float64    `db:"requested_price" json:"requestedPrice"`
	AdminNotes      *string     `db:"admin_notes" json:"adminNotes"`
	AdminID         *string     `db:"admin_id" json:"adminId,omitempty"`
	AdminName       *string     `db:"admin_name" json:"adminName,omitempty"`
	QuotedAt        *time.Time  `db:"quoted_at" json:"quotedAt,omitempty"`
	PISendAttempted bool        `db:"pi_send_attempted" json:"piSendAttempted"`
	PISendConfirmed bool        `db:"pi_send_confirmed" json:"piSendConfirmed"`
	PISentAt        *time.Time  `db:"pi_sent_at" json:"piSentAt,omitempty"`
	InvoicePath     *string     `db:"invoice_path" json:"-"`
	CreatedAt       time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updatedAt"`
}

// QuoteDetail joins a quote with its custom file, model file and requester.
type QuoteDetail struct {
	QuoteRequest
	FileID      string  `db:"file_id" json:"fileId"`
	FileName    string  `db:"file_name" json:"fileName"`
	FileSize    int64   `db:"file_size" json:"fileSize"`
	Material    string  `db:"material" json:"material"`
	Quality     string  `db:"quality" json:"quality"`
	Notes       *string `db:"notes" json:"notes,omitempty"`
	OrderItemID *string `db:"order_item_id" json:"orderItemId,omitempty"`
	UserEmail   string  `db:"user_email" json:"userEmail"`
	UserName    string  `db:"user_name" json:"userName"`
	DownloadURL string  `db:"-" json:"downloadUrl,omitempty"`
}

// InvoiceOutcome is the result of one proforma invoice send. Nil SentAt or
// Path leave the stored values untouched.
type InvoiceOutcome struct {
	Attempted bool
	Confirmed bool
	SentAt    *time.Time
	Path      *string
}

// QuoteFilter narrows quote listings.
type QuoteFilter struct {
	UserID string
	Status QuoteStatus
	Page
}

// CreateQuoteRequest asks for a price on an uploaded custom file.
type CreateQuoteRequest struct {
	CustomFileID string `json:"customFileId" validate:"required,uuid"`
}

// UpdateQuoteRequest is the admin pricing payload. Fields apply in order:
// price, notes, status, sendPI.
type UpdateQuoteRequest struct {
	RequestedPrice *float64     `json:"requestedPrice"`
	AdminNotes     *string      `json:"adminNotes"`
	Status         *QuoteStatus `json:"status"`
	SendPI         bool         `json:"sendPI"`
}
