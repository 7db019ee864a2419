package model

import (
	"time"

	"github.com/google/uuid"
)

// Document types republishable through the share dispatcher
const (
	DocInvoice      = "invoice"
	DocReceipt      = "receipt"
	DocMerged       = "merged"
	DocDeliverySlip = "delivery_slip"
)

// Share channels as recorded in the audit trail. Transactional email and the
// local mail-compose fallback log under different channels on purpose, so the
// trail shows which path actually delivered.
const (
	ChannelDownload  = "download"
	ChannelWhatsApp  = "whatsapp"
	ChannelEmailSMTP = "email_smtp"
	ChannelEmail     = "email"
	ChannelCopyLink  = "copy_link"
)

// ShareLog records one document share action. This service is the authority
// for the share trail; the ERP never sees these rows.
type ShareLog struct {
	ID           uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID       *uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	User         *User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	OrderID      string     `gorm:"type:varchar(64);not null;index" json:"order_id"`
	OrderKind    string     `gorm:"type:varchar(20);not null" json:"order_kind"`
	DocumentType string     `gorm:"type:varchar(20);not null;index" json:"document_type"`
	Channel      string     `gorm:"type:varchar(20);not null;index" json:"channel"`
	Recipient    string     `gorm:"type:varchar(255)" json:"recipient,omitempty"`
	CreatedAt    time.Time  `gorm:"index" json:"created_at"`
}
