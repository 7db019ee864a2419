package model

import (
	"time"

	"github.com/google/uuid"
)

// Audited operator actions
const (
	ActionRecordCashPreference     = "RECORD_CASH_PREFERENCE"
	ActionCreateCheckout           = "CREATE_CHECKOUT"
	ActionConfirmCheckout          = "CONFIRM_CHECKOUT"
	ActionAttachTransportCharge    = "ATTACH_TRANSPORT_CHARGE"
	ActionCreateDispatchSlip       = "CREATE_DISPATCH_SLIP"
	ActionCreateDispatchAssignment = "CREATE_DISPATCH_ASSIGNMENT"
	ActionAdvanceJobWorkStatus     = "ADVANCE_JOB_WORK_STATUS"
	ActionCancelJobWork            = "CANCEL_JOB_WORK"
	ActionRecordBreakage           = "RECORD_BREAKAGE"
	ActionMarkDispatched           = "MARK_DISPATCHED"
)

// Action outcomes. Refused means a local gate stopped the action before any
// ERP call was made; ambiguous is reserved for checkout verification failing
// after the widget reported success.
const (
	OutcomeOK        = "ok"
	OutcomeRefused   = "refused"
	OutcomeFailed    = "failed"
	OutcomeAmbiguous = "ambiguous"
)

// ActionAudit tracks who attempted what against which order, and how it ended.
type ActionAudit struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID    *uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	User      *User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	OrderID   string     `gorm:"type:varchar(64);not null;index" json:"order_id"`
	OrderKind string     `gorm:"type:varchar(20)" json:"order_kind"`
	Action    string     `gorm:"type:varchar(50);not null;index" json:"action"`
	Outcome   string     `gorm:"type:varchar(20);not null;index" json:"outcome"`
	Detail    string     `gorm:"type:text" json:"detail"`
	CreatedAt time.Time  `gorm:"index" json:"created_at"`
}
