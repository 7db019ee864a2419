package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"opsconsole/internal/erp"
	"opsconsole/internal/model"
	"opsconsole/internal/repository"
	ws "opsconsole/internal/websocket"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Gateways take amounts in minor units (paise).
var decimalHundred = decimal.NewFromInt(100)

var (
	// ErrNoSelection means the operation requires a prior method selection
	// for this order.
	ErrNoSelection = errors.New("no payment method selected for this order")
	// ErrWrongMethod means the selected method does not match the operation.
	ErrWrongMethod = errors.New("selected payment method does not match this operation")
	// ErrPaymentBusy means another order's payment is mid-execution. Only one
	// order may execute at a time; two concurrent online executions could
	// each receive a verification callback and double-process settlement.
	ErrPaymentBusy = errors.New("another payment is already executing")
	// ErrNothingDue means the order has no collectable remainder.
	ErrNothingDue = errors.New("no payment is due on this order")
	// ErrVerificationAmbiguous means the hosted checkout reported success but
	// server-side verification failed. The gateway may have captured the
	// payment, so this must never be retried automatically; an operator
	// resolves it against the gateway dashboard and a fresh order fetch.
	ErrVerificationAmbiguous = errors.New("payment verification failed after checkout completion")
)

// Payment protocol states.
const (
	PaymentStateIdle           = "idle"
	PaymentStateMethodSelected = "method_selected"
	PaymentStateExecuting      = "executing"
)

// Payment methods.
const (
	MethodCash   = "cash"
	MethodOnline = "online"
)

// paymentGateway is the slice of the ERP client the payment protocol uses.
type paymentGateway interface {
	RecordRemainingCashPreference(ctx context.Context, orderID string) error
	InitiateRemainingPayment(ctx context.Context, orderID string) (*erp.PaymentIntent, error)
	VerifyRemainingPayment(ctx context.Context, orderID, paymentID, signature string) error
	RecordJobWorkCashPreference(ctx context.Context, orderID string) error
	InitiateJobWorkPayment(ctx context.Context, orderID string) (*erp.PaymentIntent, error)
	VerifyJobWorkPayment(ctx context.Context, orderID, paymentID, signature string) error
}

// SelectionView is the current protocol state as rendered to the console.
type SelectionView struct {
	OrderID    string    `json:"order_id,omitempty"`
	Method     string    `json:"method,omitempty"`
	State      string    `json:"state"`
	SelectedAt time.Time `json:"selected_at,omitempty"`
}

// CheckoutConfig is everything the hosted checkout widget needs. Amount is in
// minor currency units as the gateway expects.
type CheckoutConfig struct {
	KeyID       string `json:"key_id"`
	IntentRef   string `json:"intent_ref"`
	OrderID     string `json:"order_id"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
	ReceiptID   string `json:"receipt_id"`
}

// PaymentService drives the two-step payment protocol: method selection, then
// execution. Selection is a toggle; re-selecting the same method on the same
// order deselects, and selecting any other order steals the selection.
type PaymentService interface {
	SelectMethod(ctx context.Context, orderID, method string) (SelectionView, error)
	Selection() SelectionView
	ExecuteCash(ctx context.Context, userID, orderID string) error
	CreateCheckout(ctx context.Context, userID, orderID string) (*CheckoutConfig, error)
	ConfirmCheckout(ctx context.Context, userID, orderID, paymentID, signature string) error
	CancelCheckout(orderID string) error
}

type paymentSelection struct {
	orderID    string
	method     string
	state      string
	selectedAt time.Time
	intentRef  string
}

type paymentService struct {
	gateway   paymentGateway
	orders    OrderService
	auditRepo repository.AuditRepository
	hub       *ws.Hub
	keyID     string

	mu  sync.Mutex
	sel *paymentSelection
}

func NewPaymentService(
	gateway paymentGateway,
	orders OrderService,
	auditRepo repository.AuditRepository,
	hub *ws.Hub,
	checkoutKeyID string,
) PaymentService {
	return &paymentService{
		gateway:   gateway,
		orders:    orders,
		auditRepo: auditRepo,
		hub:       hub,
		keyID:     checkoutKeyID,
	}
}

// SelectMethod moves the protocol between idle and method_selected. Rejected
// while any order is executing so a second checkout cannot race an in-flight
// verification.
func (s *paymentService) SelectMethod(ctx context.Context, orderID, method string) (SelectionView, error) {
	if method != MethodCash && method != MethodOnline {
		return SelectionView{}, fmt.Errorf("unknown payment method %q", method)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sel != nil && s.sel.state == PaymentStateExecuting {
		return SelectionView{}, ErrPaymentBusy
	}

	// Same order, same method: toggle back to idle. Deselection stays free
	// even when the dues vanished under a concurrent refresh.
	if s.sel != nil && s.sel.orderID == orderID && s.sel.method == method {
		s.sel = nil
		return SelectionView{State: PaymentStateIdle}, nil
	}

	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return SelectionView{}, err
	}
	if !NeedsPayment(*order) {
		return SelectionView{}, ErrNothingDue
	}

	// Any other selection is replaced outright.
	s.sel = &paymentSelection{
		orderID:    orderID,
		method:     method,
		state:      PaymentStateMethodSelected,
		selectedAt: time.Now(),
	}
	return s.view(), nil
}

func (s *paymentService) Selection() SelectionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view()
}

// ExecuteCash records the cash preference upstream. On failure the selection
// is preserved so the operator can retry.
func (s *paymentService) ExecuteCash(ctx context.Context, userID, orderID string) error {
	order, err := s.beginExecution(ctx, orderID, MethodCash)
	if err != nil {
		return err
	}

	if order.IsJobWork() {
		err = s.gateway.RecordJobWorkCashPreference(ctx, orderID)
	} else {
		err = s.gateway.RecordRemainingCashPreference(ctx, orderID)
	}

	if err != nil {
		s.endExecution(orderID, PaymentStateMethodSelected)
		s.audit(ctx, userID, order, model.ActionRecordCashPreference, model.OutcomeFailed, err.Error())
		return fmt.Errorf("record cash preference: %w", err)
	}

	s.clearSelection(orderID)
	s.audit(ctx, userID, order, model.ActionRecordCashPreference, model.OutcomeOK, "")
	s.finishMutation(ctx, orderID)
	return nil
}

// CreateCheckout requests an upstream payment intent for the remaining amount
// and returns the hosted-widget configuration. The protocol stays in
// executing until the widget completes, is cancelled, or verification ends.
func (s *paymentService) CreateCheckout(ctx context.Context, userID, orderID string) (*CheckoutConfig, error) {
	order, err := s.beginExecution(ctx, orderID, MethodOnline)
	if err != nil {
		return nil, err
	}

	var intent *erp.PaymentIntent
	if order.IsJobWork() {
		intent, err = s.gateway.InitiateJobWorkPayment(ctx, orderID)
	} else {
		intent, err = s.gateway.InitiateRemainingPayment(ctx, orderID)
	}

	if err != nil {
		s.endExecution(orderID, PaymentStateMethodSelected)
		s.audit(ctx, userID, order, model.ActionCreateCheckout, model.OutcomeFailed, err.Error())
		return nil, fmt.Errorf("initiate payment: %w", err)
	}

	s.mu.Lock()
	if s.sel != nil && s.sel.orderID == orderID {
		s.sel.intentRef = intent.Reference
	}
	s.mu.Unlock()

	currency := intent.Currency
	if currency == "" {
		currency = "INR"
	}

	s.audit(ctx, userID, order, model.ActionCreateCheckout, model.OutcomeOK, intent.Reference)
	return &CheckoutConfig{
		KeyID:       s.keyID,
		IntentRef:   intent.Reference,
		OrderID:     orderID,
		Amount:      intent.Amount.Mul(decimalHundred).IntPart(),
		Currency:    currency,
		Description: fmt.Sprintf("Balance payment for %s", order.Number),
		ReceiptID:   uuid.NewString(),
	}, nil
}

// ConfirmCheckout verifies the widget's completion callback upstream. A
// verification failure is ambiguous, not retryable: the gateway may hold a
// captured payment the ERP does not know about yet.
func (s *paymentService) ConfirmCheckout(ctx context.Context, userID, orderID, paymentID, signature string) error {
	if paymentID == "" || signature == "" {
		return errors.New("payment id and signature are required")
	}

	s.mu.Lock()
	sel := s.sel
	if sel == nil || sel.orderID != orderID || sel.method != MethodOnline || sel.state != PaymentStateExecuting {
		s.mu.Unlock()
		return ErrNoSelection
	}
	s.mu.Unlock()

	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}

	if order.IsJobWork() {
		err = s.gateway.VerifyJobWorkPayment(ctx, orderID, paymentID, signature)
	} else {
		err = s.gateway.VerifyRemainingPayment(ctx, orderID, paymentID, signature)
	}

	if err != nil {
		// The widget said paid but the ERP could not confirm. Clear the
		// selection so nothing re-enters executing for this intent, and leave
		// resolution to the operator.
		s.clearSelection(orderID)
		s.audit(ctx, userID, order, model.ActionConfirmCheckout, model.OutcomeAmbiguous,
			fmt.Sprintf("payment %s: %v", paymentID, err))
		return fmt.Errorf("%w: %v", ErrVerificationAmbiguous, err)
	}

	s.clearSelection(orderID)
	s.audit(ctx, userID, order, model.ActionConfirmCheckout, model.OutcomeOK, paymentID)
	s.finishMutation(ctx, orderID)
	return nil
}

// CancelCheckout handles widget dismissal: back to method_selected, no
// upstream call, cancellation is free.
func (s *paymentService) CancelCheckout(orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sel == nil || s.sel.orderID != orderID {
		return ErrNoSelection
	}
	s.sel.state = PaymentStateMethodSelected
	s.sel.intentRef = ""
	return nil
}

// --- internals ---

func (s *paymentService) beginExecution(ctx context.Context, orderID, method string) (*model.Order, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !NeedsPayment(*order) {
		return nil, ErrNothingDue
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sel == nil || s.sel.orderID != orderID {
		return nil, ErrNoSelection
	}
	if s.sel.method != method {
		return nil, ErrWrongMethod
	}
	if s.sel.state == PaymentStateExecuting {
		return nil, ErrPaymentBusy
	}

	s.sel.state = PaymentStateExecuting
	return order, nil
}

func (s *paymentService) endExecution(orderID, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sel != nil && s.sel.orderID == orderID {
		s.sel.state = state
	}
}

func (s *paymentService) clearSelection(orderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sel != nil && s.sel.orderID == orderID {
		s.sel = nil
	}
}

// finishMutation refreshes the snapshot and notifies sessions. A failed
// refresh is logged, not surfaced: the command itself already succeeded.
func (s *paymentService) finishMutation(ctx context.Context, orderID string) {
	if err := s.orders.Refresh(ctx); err != nil {
		log.Printf("payment: order refresh after mutation failed: %v", err)
	}
	s.hub.NotifyOrdersRefreshed(orderID)
}

func (s *paymentService) audit(ctx context.Context, userID string, order *model.Order, action, outcome, detail string) {
	if s.auditRepo == nil {
		return
	}
	var uid *uuid.UUID
	if parsed, err := uuid.Parse(userID); err == nil {
		uid = &parsed
	}
	entry := &model.ActionAudit{
		UserID:    uid,
		OrderID:   order.ID,
		OrderKind: order.Kind,
		Action:    action,
		Outcome:   outcome,
		Detail:    detail,
	}
	if err := s.auditRepo.Log(ctx, entry); err != nil {
		log.Printf("payment: audit write failed: %v", err)
	}
}

func (s *paymentService) view() SelectionView {
	if s.sel == nil {
		return SelectionView{State: PaymentStateIdle}
	}
	return SelectionView{
		OrderID:    s.sel.orderID,
		Method:     s.sel.method,
		State:      s.sel.state,
		SelectedAt: s.sel.selectedAt,
	}
}
