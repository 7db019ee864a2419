package service

import (
	"fmt"

	"opsconsole/internal/model"

	"github.com/shopspring/decimal"
)

// Badge severities, in decreasing order of urgency.
const (
	SeverityDanger  = "danger"  // nothing collected
	SeverityCaution = "caution" // advance collected, remainder due online
	SeverityWarning = "warning" // cash collection pending with the operator
	SeveritySuccess = "success" // fully settled
)

// PaymentBadge is the label/severity pair shown against an order.
type PaymentBadge struct {
	Label    string `json:"label"`
	Severity string `json:"severity"`
}

// The settlement calculator is a set of pure functions over an order
// snapshot. Verdicts are recomputed on every use and never cached in mutable
// state; after any mutating command the snapshot is refetched and the
// verdicts change with it.

// Badge derives the payment badge for an order.
func Badge(o model.Order) PaymentBadge {
	if o.IsJobWork() && o.JobWork != nil {
		jw := o.JobWork
		switch {
		case jw.Status == model.JobWorkPaymentCompleted:
			return PaymentBadge{Label: "Paid", Severity: SeveritySuccess}
		case jw.Preference == model.PreferenceCash:
			return PaymentBadge{Label: "Cash Pending", Severity: SeverityWarning}
		case jw.Status == model.JobWorkPaymentPartial || o.AdvancePaid.IsPositive():
			percent := o.AdvancePercent
			if percent == 0 {
				percent = 50
			}
			return PaymentBadge{Label: fmt.Sprintf("%d%% Paid", percent), Severity: SeverityCaution}
		default:
			return PaymentBadge{Label: "Payment Pending", Severity: SeverityDanger}
		}
	}

	if o.Regular != nil {
		r := o.Regular
		advancePaid := r.AdvanceStatus == model.AdvancePaid
		remainingSettled := r.RemainingStatus == model.RemainingPaid || r.RemainingStatus == model.RemainingCashReceived
		switch {
		case advancePaid && (o.AdvancePercent == 100 || remainingSettled):
			return PaymentBadge{Label: "Paid", Severity: SeveritySuccess}
		case advancePaid && r.RemainingPreference == model.PreferenceCash:
			return PaymentBadge{Label: "Cash Pending", Severity: SeverityWarning}
		case advancePaid:
			return PaymentBadge{Label: fmt.Sprintf("%d%% Paid", o.AdvancePercent), Severity: SeverityCaution}
		default:
			return PaymentBadge{Label: "Payment Pending", Severity: SeverityDanger}
		}
	}

	return PaymentBadge{Label: "Payment Pending", Severity: SeverityDanger}
}

// NeedsPayment reports whether a customer-facing payment action should be
// offered. Once a cash preference is recorded no online action is offered;
// collection becomes an operator-side task.
func NeedsPayment(o model.Order) bool {
	if o.IsJobWork() && o.JobWork != nil {
		return o.JobWork.Status != model.JobWorkPaymentCompleted &&
			o.JobWork.Preference != model.PreferenceCash
	}

	if o.Regular != nil {
		r := o.Regular
		if r.AdvanceStatus != model.AdvancePaid {
			return false
		}
		if r.RemainingStatus == model.RemainingPaid || r.RemainingStatus == model.RemainingCashReceived {
			return false
		}
		if r.RemainingPreference == model.PreferenceCash {
			return false
		}
		return Remaining(o).IsPositive()
	}

	return false
}

// Remaining returns the amount still to collect, clamped at zero. A negative
// raw value (overpayment, upstream rounding) means nothing remains.
func Remaining(o model.Order) decimal.Decimal {
	if o.IsJobWork() && o.JobWork != nil {
		if o.JobWork.Status == model.JobWorkPaymentCompleted {
			return decimal.Zero
		}
		return clampZero(o.Total.Sub(o.AdvancePaid))
	}

	if o.Regular != nil {
		return clampZero(o.Regular.RemainingAmount)
	}

	return decimal.Zero
}

// IsSettled is the sole gate for dispatch-slip issuance and vehicle
// assignment. A cash preference alone is not settlement; only a completed
// payment status, a fully-paid advance plan, or a paid/cash-received
// remainder counts.
func IsSettled(o model.Order) bool {
	if o.IsJobWork() && o.JobWork != nil {
		return o.JobWork.Status == model.JobWorkPaymentCompleted
	}

	if o.Regular != nil {
		r := o.Regular
		if r.AdvanceStatus != model.AdvancePaid {
			return false
		}
		if o.AdvancePercent == 100 {
			return true
		}
		return r.RemainingStatus == model.RemainingPaid || r.RemainingStatus == model.RemainingCashReceived
	}

	return false
}

// SettlementShortfall explains why an order is not settled, for the refusal
// message shown when a fulfillment step is blocked. Empty when settled.
func SettlementShortfall(o model.Order) string {
	if IsSettled(o) {
		return ""
	}

	remaining := Remaining(o)
	if o.IsJobWork() && o.JobWork != nil {
		if o.JobWork.Preference == model.PreferenceCash {
			return fmt.Sprintf("cash collection of %s is still pending", remaining.StringFixed(2))
		}
		return fmt.Sprintf("payment of %s is still due", remaining.StringFixed(2))
	}

	if o.Regular != nil {
		r := o.Regular
		if r.AdvanceStatus != model.AdvancePaid {
			return "advance payment has not been received"
		}
		if r.RemainingPreference == model.PreferenceCash {
			return fmt.Sprintf("cash collection of %s is still pending", remaining.StringFixed(2))
		}
		return fmt.Sprintf("remaining payment of %s is still due", remaining.StringFixed(2))
	}

	return "payment is still due"
}

func clampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
