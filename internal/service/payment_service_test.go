package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"opsconsole/internal/erp"
	"opsconsole/internal/model"
	"opsconsole/internal/repository"

	"github.com/shopspring/decimal"
)

type stubGateway struct {
	recordRemainingCash func(ctx context.Context, orderID string) error
	initiateRemaining   func(ctx context.Context, orderID string) (*erp.PaymentIntent, error)
	verifyRemaining     func(ctx context.Context, orderID, paymentID, signature string) error
	recordJobWorkCash   func(ctx context.Context, orderID string) error
	initiateJobWork     func(ctx context.Context, orderID string) (*erp.PaymentIntent, error)
	verifyJobWork       func(ctx context.Context, orderID, paymentID, signature string) error
}

func (g *stubGateway) RecordRemainingCashPreference(ctx context.Context, orderID string) error {
	return g.recordRemainingCash(ctx, orderID)
}

func (g *stubGateway) InitiateRemainingPayment(ctx context.Context, orderID string) (*erp.PaymentIntent, error) {
	return g.initiateRemaining(ctx, orderID)
}

func (g *stubGateway) VerifyRemainingPayment(ctx context.Context, orderID, paymentID, signature string) error {
	return g.verifyRemaining(ctx, orderID, paymentID, signature)
}

func (g *stubGateway) RecordJobWorkCashPreference(ctx context.Context, orderID string) error {
	return g.recordJobWorkCash(ctx, orderID)
}

func (g *stubGateway) InitiateJobWorkPayment(ctx context.Context, orderID string) (*erp.PaymentIntent, error) {
	return g.initiateJobWork(ctx, orderID)
}

func (g *stubGateway) VerifyJobWorkPayment(ctx context.Context, orderID, paymentID, signature string) error {
	return g.verifyJobWork(ctx, orderID, paymentID, signature)
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []model.ActionAudit
}

func (r *fakeAuditRepo) Log(ctx context.Context, entry *model.ActionAudit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *fakeAuditRepo) List(ctx context.Context, filter repository.AuditFilter) ([]model.ActionAudit, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries, int64(len(r.entries)), nil
}

func (r *fakeAuditRepo) last(t *testing.T) model.ActionAudit {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		t.Fatal("no audit entries recorded")
	}
	return r.entries[len(r.entries)-1]
}

func newPaymentFixture(t *testing.T, gateway *stubGateway) (PaymentService, *fakeAuditRepo) {
	t.Helper()
	source := &stubOrderSource{regulars: testRegularFeed(), jobWorks: testJobWorkFeed()}
	orders := NewOrderService(source)
	audits := &fakeAuditRepo{}
	svc := NewPaymentService(gateway, orders, audits, nil, "key_test_123")
	return svc, audits
}

func TestSelectMethodToggle(t *testing.T) {
	svc, _ := newPaymentFixture(t, &stubGateway{})
	ctx := context.Background()

	view, err := svc.SelectMethod(ctx, "r1", MethodCash)
	if err != nil {
		t.Fatalf("SelectMethod() = %v", err)
	}
	if view.State != PaymentStateMethodSelected || view.OrderID != "r1" || view.Method != MethodCash {
		t.Errorf("view = %+v", view)
	}

	// Same order, same method deselects.
	view, err = svc.SelectMethod(ctx, "r1", MethodCash)
	if err != nil {
		t.Fatalf("SelectMethod() toggle = %v", err)
	}
	if view.State != PaymentStateIdle || view.OrderID != "" {
		t.Errorf("toggle view = %+v, want idle", view)
	}
}

func TestSelectMethodDeselectsSettledOrder(t *testing.T) {
	source := &stubOrderSource{regulars: testRegularFeed(), jobWorks: testJobWorkFeed()}
	orders := NewOrderService(source)
	svc := NewPaymentService(&stubGateway{}, orders, &fakeAuditRepo{}, nil, "key_test_123")
	ctx := context.Background()

	if _, err := svc.SelectMethod(ctx, "r1", MethodCash); err != nil {
		t.Fatalf("SelectMethod() = %v", err)
	}

	// Another session settles the order and the snapshot refreshes under us.
	source.regulars = settledRegularFeed()
	if err := orders.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() = %v", err)
	}

	view, err := svc.SelectMethod(ctx, "r1", MethodCash)
	if err != nil {
		t.Fatalf("SelectMethod() toggle on settled order = %v", err)
	}
	if view.State != PaymentStateIdle {
		t.Errorf("view = %+v, want idle", view)
	}

	// A fresh selection of the settled order is still refused.
	if _, err := svc.SelectMethod(ctx, "r1", MethodCash); !errors.Is(err, ErrNothingDue) {
		t.Fatalf("SelectMethod() reselect = %v, want ErrNothingDue", err)
	}
}

func TestSelectMethodSwitchesOrders(t *testing.T) {
	svc, _ := newPaymentFixture(t, &stubGateway{})
	ctx := context.Background()

	if _, err := svc.SelectMethod(ctx, "r1", MethodCash); err != nil {
		t.Fatalf("SelectMethod(r1) = %v", err)
	}
	view, err := svc.SelectMethod(ctx, "j1", MethodOnline)
	if err != nil {
		t.Fatalf("SelectMethod(j1) = %v", err)
	}
	if view.OrderID != "j1" || view.Method != MethodOnline {
		t.Errorf("view = %+v, want selection moved to j1/online", view)
	}
}

func TestSelectMethodRejectsUnknownMethod(t *testing.T) {
	svc, _ := newPaymentFixture(t, &stubGateway{})
	if _, err := svc.SelectMethod(context.Background(), "r1", "upi"); err == nil {
		t.Fatal("unknown method accepted")
	}
}

func TestSelectMethodSettledOrder(t *testing.T) {
	regulars := testRegularFeed()
	regulars[0].RemainingPaymentStatus = model.RemainingPaid
	orders := NewOrderService(&stubOrderSource{regulars: regulars})
	svc := NewPaymentService(&stubGateway{}, orders, nil, nil, "key")

	if _, err := svc.SelectMethod(context.Background(), "r1", MethodCash); !errors.Is(err, ErrNothingDue) {
		t.Fatalf("SelectMethod() = %v, want ErrNothingDue", err)
	}
}

func TestExecuteCashSuccess(t *testing.T) {
	var recorded string
	gateway := &stubGateway{
		recordRemainingCash: func(ctx context.Context, orderID string) error {
			recorded = orderID
			return nil
		},
	}
	svc, audits := newPaymentFixture(t, gateway)
	ctx := context.Background()

	if _, err := svc.SelectMethod(ctx, "r1", MethodCash); err != nil {
		t.Fatalf("SelectMethod() = %v", err)
	}
	if err := svc.ExecuteCash(ctx, "", "r1"); err != nil {
		t.Fatalf("ExecuteCash() = %v", err)
	}
	if recorded != "r1" {
		t.Errorf("gateway called for %q", recorded)
	}
	if view := svc.Selection(); view.State != PaymentStateIdle {
		t.Errorf("selection after success = %+v, want idle", view)
	}
	entry := audits.last(t)
	if entry.Action != model.ActionRecordCashPreference || entry.Outcome != model.OutcomeOK {
		t.Errorf("audit = %+v", entry)
	}
}

func TestExecuteCashRoutesJobWork(t *testing.T) {
	jobWorkCalled := false
	gateway := &stubGateway{
		recordJobWorkCash: func(ctx context.Context, orderID string) error {
			jobWorkCalled = true
			return nil
		},
	}
	svc, _ := newPaymentFixture(t, gateway)
	ctx := context.Background()

	if _, err := svc.SelectMethod(ctx, "j1", MethodCash); err != nil {
		t.Fatalf("SelectMethod() = %v", err)
	}
	if err := svc.ExecuteCash(ctx, "", "j1"); err != nil {
		t.Fatalf("ExecuteCash() = %v", err)
	}
	if !jobWorkCalled {
		t.Error("job-work cash endpoint not used")
	}
}

func TestExecuteCashFailureKeepsSelection(t *testing.T) {
	gateway := &stubGateway{
		recordRemainingCash: func(ctx context.Context, orderID string) error {
			return errors.New("erp down")
		},
	}
	svc, audits := newPaymentFixture(t, gateway)
	ctx := context.Background()

	if _, err := svc.SelectMethod(ctx, "r1", MethodCash); err != nil {
		t.Fatalf("SelectMethod() = %v", err)
	}
	if err := svc.ExecuteCash(ctx, "", "r1"); err == nil {
		t.Fatal("ExecuteCash() succeeded despite gateway failure")
	}

	view := svc.Selection()
	if view.State != PaymentStateMethodSelected || view.OrderID != "r1" {
		t.Errorf("selection after failure = %+v, want retained", view)
	}
	entry := audits.last(t)
	if entry.Outcome != model.OutcomeFailed {
		t.Errorf("audit outcome = %q, want failed", entry.Outcome)
	}
}

func TestExecuteCashRequiresSelection(t *testing.T) {
	svc, _ := newPaymentFixture(t, &stubGateway{})
	if err := svc.ExecuteCash(context.Background(), "", "r1"); !errors.Is(err, ErrNoSelection) {
		t.Fatalf("ExecuteCash() = %v, want ErrNoSelection", err)
	}
}

func TestExecuteCashWrongMethod(t *testing.T) {
	svc, _ := newPaymentFixture(t, &stubGateway{})
	ctx := context.Background()

	if _, err := svc.SelectMethod(ctx, "r1", MethodOnline); err != nil {
		t.Fatalf("SelectMethod() = %v", err)
	}
	if err := svc.ExecuteCash(ctx, "", "r1"); !errors.Is(err, ErrWrongMethod) {
		t.Fatalf("ExecuteCash() = %v, want ErrWrongMethod", err)
	}
}

func TestCreateCheckoutConfig(t *testing.T) {
	gateway := &stubGateway{
		initiateRemaining: func(ctx context.Context, orderID string) (*erp.PaymentIntent, error) {
			return &erp.PaymentIntent{
				Reference: "intent_42",
				Amount:    decimal.NewFromInt(5000),
				Currency:  "INR",
			}, nil
		},
	}
	svc, _ := newPaymentFixture(t, gateway)
	ctx := context.Background()

	if _, err := svc.SelectMethod(ctx, "r1", MethodOnline); err != nil {
		t.Fatalf("SelectMethod() = %v", err)
	}
	config, err := svc.CreateCheckout(ctx, "", "r1")
	if err != nil {
		t.Fatalf("CreateCheckout() = %v", err)
	}

	if config.KeyID != "key_test_123" {
		t.Errorf("KeyID = %q", config.KeyID)
	}
	if config.IntentRef != "intent_42" {
		t.Errorf("IntentRef = %q", config.IntentRef)
	}
	if config.Amount != 500000 {
		t.Errorf("Amount = %d, want 500000 minor units", config.Amount)
	}
	if config.Currency != "INR" {
		t.Errorf("Currency = %q", config.Currency)
	}
	if config.ReceiptID == "" {
		t.Error("ReceiptID is empty")
	}

	if view := svc.Selection(); view.State != PaymentStateExecuting {
		t.Errorf("state after checkout = %q, want executing", view.State)
	}
}

func TestCreateCheckoutBlocksOtherOrders(t *testing.T) {
	gateway := &stubGateway{
		initiateRemaining: func(ctx context.Context, orderID string) (*erp.PaymentIntent, error) {
			return &erp.PaymentIntent{Reference: "intent_1", Amount: decimal.NewFromInt(5000)}, nil
		},
	}
	svc, _ := newPaymentFixture(t, gateway)
	ctx := context.Background()

	if _, err := svc.SelectMethod(ctx, "r1", MethodOnline); err != nil {
		t.Fatalf("SelectMethod() = %v", err)
	}
	if _, err := svc.CreateCheckout(ctx, "", "r1"); err != nil {
		t.Fatalf("CreateCheckout() = %v", err)
	}

	// No new selection while the first order is executing.
	if _, err := svc.SelectMethod(ctx, "j1", MethodOnline); !errors.Is(err, ErrPaymentBusy) {
		t.Fatalf("SelectMethod() during execution = %v, want ErrPaymentBusy", err)
	}
}

func TestCancelCheckoutReturnsToSelected(t *testing.T) {
	gateway := &stubGateway{
		initiateRemaining: func(ctx context.Context, orderID string) (*erp.PaymentIntent, error) {
			return &erp.PaymentIntent{Reference: "intent_1", Amount: decimal.NewFromInt(5000)}, nil
		},
	}
	svc, _ := newPaymentFixture(t, gateway)
	ctx := context.Background()

	if _, err := svc.SelectMethod(ctx, "r1", MethodOnline); err != nil {
		t.Fatalf("SelectMethod() = %v", err)
	}
	if _, err := svc.CreateCheckout(ctx, "", "r1"); err != nil {
		t.Fatalf("CreateCheckout() = %v", err)
	}
	if err := svc.CancelCheckout("r1"); err != nil {
		t.Fatalf("CancelCheckout() = %v", err)
	}

	view := svc.Selection()
	if view.State != PaymentStateMethodSelected || view.OrderID != "r1" {
		t.Errorf("view after cancel = %+v, want method_selected on r1", view)
	}
}

func TestConfirmCheckoutSuccess(t *testing.T) {
	verifyCalls := 0
	gateway := &stubGateway{
		initiateRemaining: func(ctx context.Context, orderID string) (*erp.PaymentIntent, error) {
			return &erp.PaymentIntent{Reference: "intent_1", Amount: decimal.NewFromInt(5000)}, nil
		},
		verifyRemaining: func(ctx context.Context, orderID, paymentID, signature string) error {
			verifyCalls++
			return nil
		},
	}
	svc, audits := newPaymentFixture(t, gateway)
	ctx := context.Background()

	if _, err := svc.SelectMethod(ctx, "r1", MethodOnline); err != nil {
		t.Fatalf("SelectMethod() = %v", err)
	}
	if _, err := svc.CreateCheckout(ctx, "", "r1"); err != nil {
		t.Fatalf("CreateCheckout() = %v", err)
	}
	if err := svc.ConfirmCheckout(ctx, "", "r1", "pay_1", "sig_1"); err != nil {
		t.Fatalf("ConfirmCheckout() = %v", err)
	}

	if verifyCalls != 1 {
		t.Errorf("verify called %d times, want 1", verifyCalls)
	}
	if view := svc.Selection(); view.State != PaymentStateIdle {
		t.Errorf("view after confirm = %+v, want idle", view)
	}
	entry := audits.last(t)
	if entry.Action != model.ActionConfirmCheckout || entry.Outcome != model.OutcomeOK {
		t.Errorf("audit = %+v", entry)
	}
}

func TestConfirmCheckoutAmbiguousNeverRetries(t *testing.T) {
	verifyCalls := 0
	gateway := &stubGateway{
		initiateRemaining: func(ctx context.Context, orderID string) (*erp.PaymentIntent, error) {
			return &erp.PaymentIntent{Reference: "intent_1", Amount: decimal.NewFromInt(5000)}, nil
		},
		verifyRemaining: func(ctx context.Context, orderID, paymentID, signature string) error {
			verifyCalls++
			return errors.New("signature mismatch")
		},
	}
	svc, audits := newPaymentFixture(t, gateway)
	ctx := context.Background()

	if _, err := svc.SelectMethod(ctx, "r1", MethodOnline); err != nil {
		t.Fatalf("SelectMethod() = %v", err)
	}
	if _, err := svc.CreateCheckout(ctx, "", "r1"); err != nil {
		t.Fatalf("CreateCheckout() = %v", err)
	}

	err := svc.ConfirmCheckout(ctx, "", "r1", "pay_1", "sig_bad")
	if !errors.Is(err, ErrVerificationAmbiguous) {
		t.Fatalf("ConfirmCheckout() = %v, want ErrVerificationAmbiguous", err)
	}
	if verifyCalls != 1 {
		t.Errorf("verify called %d times, want exactly 1", verifyCalls)
	}

	// The selection is cleared so nothing re-enters executing for this intent.
	if view := svc.Selection(); view.State != PaymentStateIdle {
		t.Errorf("view after ambiguous = %+v, want idle", view)
	}
	entry := audits.last(t)
	if entry.Outcome != model.OutcomeAmbiguous {
		t.Errorf("audit outcome = %q, want ambiguous", entry.Outcome)
	}

	// A second confirm finds no selection instead of re-verifying.
	err = svc.ConfirmCheckout(ctx, "", "r1", "pay_1", "sig_bad")
	if !errors.Is(err, ErrNoSelection) {
		t.Fatalf("second ConfirmCheckout() = %v, want ErrNoSelection", err)
	}
	if verifyCalls != 1 {
		t.Errorf("verify called %d times after second confirm, want still 1", verifyCalls)
	}
}

func TestConfirmCheckoutRequiresExecuting(t *testing.T) {
	svc, _ := newPaymentFixture(t, &stubGateway{})
	ctx := context.Background()

	if _, err := svc.SelectMethod(ctx, "r1", MethodOnline); err != nil {
		t.Fatalf("SelectMethod() = %v", err)
	}
	// Selected but no checkout opened.
	if err := svc.ConfirmCheckout(ctx, "", "r1", "pay_1", "sig_1"); !errors.Is(err, ErrNoSelection) {
		t.Fatalf("ConfirmCheckout() = %v, want ErrNoSelection", err)
	}
}
