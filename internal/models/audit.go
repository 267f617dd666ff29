package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

const (
	AuditActionLogin        = "LOGIN"
	AuditActionRegister     = "REGISTER"
	AuditActionUserUpdate   = "USER_UPDATE"
	AuditActionUserDelete   = "USER_DELETE"
	AuditActionQuoteUpdate  = "QUOTE_UPDATE"
	AuditActionQuoteDelete  = "QUOTE_DELETE"
	AuditActionOrderConvert = "ORDER_FROM_QUOTE"
	AuditActionOrderUpdate  = "ORDER_UPDATE"
	AuditActionOrderDelete  = "ORDER_DELETE"
	AuditActionFileDownload = "FILE_DOWNLOAD"
	AuditActionProductWrite = "PRODUCT_WRITE"
	AuditActionGalleryWrite = "GALLERY_WRITE"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string         `db:"id" json:"id"`
	UserID     *string        `db:"user_id" json:"userId,omitempty"`
	Action     string         `db:"action" json:"action"`
	Resource   string         `db:"resource" json:"resource"`
	ResourceID *string        `db:"resource_id" json:"resourceId,omitempty"`
	NewValues  types.JSONText `db:"new_values" json:"newValues,omitempty"`
	IPAddress  string         `db:"ip_address" json:"ipAddress"`
	UserAgent  string         `db:"user_agent" json:"userAgent"`
	CreatedAt  time.Time      `db:"created_at" json:"createdAt"`
}
