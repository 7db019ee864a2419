package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order kind tags
const (
	KindRegular = "regular"
	KindJobWork = "job_work"
)

// Regular order payment field values
const (
	AdvancePending = "pending"
	AdvancePaid    = "paid"

	RemainingPending      = "pending"
	RemainingPaid         = "paid"
	RemainingCashReceived = "cash_received"
)

// Payment preference values (both kinds). An empty string means no
// preference has been recorded.
const (
	PreferenceNone = ""
	PreferenceCash = "cash"
)

// Job-work payment status values
const (
	JobWorkPaymentPending   = "pending"
	JobWorkPaymentPartial   = "partially_paid"
	JobWorkPaymentCompleted = "completed"
)

// Job-work statuses outside the progress flow
const (
	JobWorkStatusPending   = "pending"
	JobWorkStatusAccepted  = "accepted"
	JobWorkStatusCancelled = "cancelled"
)

// RegularOrder is the upstream shape of a standard retail order. The ERP owns
// these records; this service only reads them.
type RegularOrder struct {
	ID                         string           `json:"id"`
	OrderNumber                string           `json:"order_number"`
	Status                     string           `json:"status"`
	Total                      decimal.Decimal  `json:"total"`
	AdvancePaid                decimal.Decimal  `json:"advance_paid"`
	AdvancePercent             int              `json:"advance_percent"`
	AdvancePaymentStatus       string           `json:"advance_payment_status"`
	RemainingPaymentStatus     string           `json:"remaining_payment_status"`
	RemainingPaymentPreference string           `json:"remaining_payment_preference"`
	RemainingAmount            decimal.Decimal  `json:"remaining_amount"`
	Quantity                   int              `json:"quantity"`
	SizeSummary                string           `json:"size_summary"`
	CustomerName               string           `json:"customer_name"`
	CustomerPhone              string           `json:"customer_phone"`
	CustomerEmail              string           `json:"customer_email"`
	DispatchSlipNumber         string           `json:"dispatch_slip_number"`
	VehicleNumber              string           `json:"vehicle_number"`
	DriverName                 string           `json:"driver_name"`
	DriverPhone                string           `json:"driver_phone"`
	TransportCharge            *decimal.Decimal `json:"transport_charge"`
	TransportChargeNote        string           `json:"transport_charge_note"`
	TransportVehicleType       string           `json:"transport_vehicle_type"`
	CreatedAt                  time.Time        `json:"created_at"`
}

// JobWorkSummary is the nested totals block of a job-work order.
type JobWorkSummary struct {
	GrandTotal  decimal.Decimal `json:"grand_total"`
	Pieces      int             `json:"pieces"`
	SizeSummary string          `json:"size_summary"`
}

// JobWorkOrder is the upstream shape of a contract (customer-material) order.
type JobWorkOrder struct {
	ID                   string           `json:"id"`
	JobWorkNumber        string           `json:"job_work_number"`
	Status               string           `json:"status"`
	PaymentStatus        string           `json:"payment_status"`
	PaymentPreference    string           `json:"payment_preference"`
	AdvancePaid          decimal.Decimal  `json:"advance_paid"`
	AdvancePercent       int              `json:"advance_percent"`
	Summary              JobWorkSummary   `json:"summary"`
	CustomerName         string           `json:"customer_name"`
	CustomerPhone        string           `json:"customer_phone"`
	CustomerEmail        string           `json:"customer_email"`
	DispatchSlipNumber   string           `json:"dispatch_slip_number"`
	VehicleNumber        string           `json:"vehicle_number"`
	DriverName           string           `json:"driver_name"`
	DriverPhone          string           `json:"driver_phone"`
	TransportCharge      *decimal.Decimal `json:"transport_charge"`
	TransportChargeNote  string           `json:"transport_charge_note"`
	TransportVehicleType string           `json:"transport_vehicle_type"`
	CreatedAt            time.Time        `json:"created_at"`
}

// RegularPayment carries the payment fields only regular orders have.
type RegularPayment struct {
	AdvanceStatus       string          `json:"advance_status"`
	RemainingStatus     string          `json:"remaining_status"`
	RemainingPreference string          `json:"remaining_preference"`
	RemainingAmount     decimal.Decimal `json:"remaining_amount"`
}

// JobWorkPayment carries the payment fields only job-work orders have.
type JobWorkPayment struct {
	Status     string `json:"status"`
	Preference string `json:"preference"`
}

// Order is the normalized view both upstream shapes reduce to. Exactly one of
// Regular/JobWork is non-nil, matching Kind. Orders are never written back;
// every mutation is an ERP command followed by a refetch.
type Order struct {
	Kind           string          `json:"kind"`
	ID             string          `json:"id"`
	Number         string          `json:"number"`
	Status         string          `json:"status"`
	Total          decimal.Decimal `json:"total"`
	AdvancePaid    decimal.Decimal `json:"advance_paid"`
	AdvancePercent int             `json:"advance_percent"`
	Quantity       int             `json:"quantity"`
	SizeSummary    string          `json:"size_summary"`
	CustomerName   string          `json:"customer_name"`
	CustomerPhone  string          `json:"customer_phone"`
	CustomerEmail  string          `json:"customer_email"`

	Regular *RegularPayment `json:"regular,omitempty"`
	JobWork *JobWorkPayment `json:"job_work,omitempty"`

	DispatchSlipNumber   string           `json:"dispatch_slip_number,omitempty"`
	VehicleNumber        string           `json:"vehicle_number,omitempty"`
	DriverName           string           `json:"driver_name,omitempty"`
	DriverPhone          string           `json:"driver_phone,omitempty"`
	TransportCharge      *decimal.Decimal `json:"transport_charge,omitempty"`
	TransportChargeNote  string           `json:"transport_charge_note,omitempty"`
	TransportVehicleType string           `json:"transport_vehicle_type,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// IsRegular reports whether the order carries the regular payment field set.
func (o Order) IsRegular() bool { return o.Kind == KindRegular }

// IsJobWork reports whether the order carries the job-work payment field set.
func (o Order) IsJobWork() bool { return o.Kind == KindJobWork }

// HasDispatchSlip reports whether a slip has been issued for the order.
func (o Order) HasDispatchSlip() bool { return o.DispatchSlipNumber != "" }

// HasVehicleAssigned reports whether dispatch assignment already completed.
func (o Order) HasVehicleAssigned() bool { return o.VehicleNumber != "" }

// HasTransportCharge reports whether a transport charge is already attached.
func (o Order) HasTransportCharge() bool { return o.TransportCharge != nil }
