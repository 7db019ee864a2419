package service

import (
	"context"
	"errors"
	"testing"

	"opsconsole/internal/erp"
	"opsconsole/internal/model"

	"github.com/shopspring/decimal"
)

type stubFulfillmentBackend struct {
	chargeCalls     int
	slipCalls       int
	assignCalls     int
	statusCalls     int
	dispatchedCalls int

	slipNumber string
	vehicles   []erp.Vehicle
	drivers    []erp.Driver
	lastStatus erp.JobWorkStatusRequest
	lastAssign erp.AssignmentRequest
	err        error
}

func (b *stubFulfillmentBackend) AttachTransportCharge(ctx context.Context, orderID string, amount decimal.Decimal, note, vehicleType string) error {
	b.chargeCalls++
	return b.err
}

func (b *stubFulfillmentBackend) CreateDispatchSlip(ctx context.Context, orderID string) (string, error) {
	b.slipCalls++
	if b.err != nil {
		return "", b.err
	}
	return b.slipNumber, nil
}

func (b *stubFulfillmentBackend) FetchAvailableVehicles(ctx context.Context) ([]erp.Vehicle, error) {
	return b.vehicles, nil
}

func (b *stubFulfillmentBackend) FetchAvailableDrivers(ctx context.Context) ([]erp.Driver, error) {
	return b.drivers, nil
}

func (b *stubFulfillmentBackend) CreateDispatchAssignment(ctx context.Context, req erp.AssignmentRequest) error {
	b.assignCalls++
	b.lastAssign = req
	return b.err
}

func (b *stubFulfillmentBackend) UpdateJobWorkStatus(ctx context.Context, req erp.JobWorkStatusRequest) error {
	b.statusCalls++
	b.lastStatus = req
	return b.err
}

func (b *stubFulfillmentBackend) MarkOrderDispatched(ctx context.Context, orderID string) error {
	b.dispatchedCalls++
	return b.err
}

// settledRegularFeed returns one fully settled regular order ready for slip
// issuance.
func settledRegularFeed() []model.RegularOrder {
	feed := testRegularFeed()
	feed[0].RemainingPaymentStatus = model.RemainingPaid
	feed[0].RemainingAmount = decimal.Zero
	return feed
}

func newFulfillmentFixture(t *testing.T, backend *stubFulfillmentBackend, regulars []model.RegularOrder, jobWorks []model.JobWorkOrder) (FulfillmentService, *fakeAuditRepo) {
	t.Helper()
	orders := NewOrderService(&stubOrderSource{regulars: regulars, jobWorks: jobWorks})
	audits := &fakeAuditRepo{}
	return NewFulfillmentService(backend, orders, audits, nil), audits
}

func TestCreateDispatchSlipSettled(t *testing.T) {
	backend := &stubFulfillmentBackend{slipNumber: "DS-100"}
	svc, audits := newFulfillmentFixture(t, backend, settledRegularFeed(), nil)

	slip, err := svc.CreateDispatchSlip(context.Background(), "", "r1")
	if err != nil {
		t.Fatalf("CreateDispatchSlip() = %v", err)
	}
	if slip != "DS-100" {
		t.Errorf("slip = %q", slip)
	}
	if backend.slipCalls != 1 {
		t.Errorf("backend called %d times, want 1", backend.slipCalls)
	}
	entry := audits.last(t)
	if entry.Action != model.ActionCreateDispatchSlip || entry.Outcome != model.OutcomeOK {
		t.Errorf("audit = %+v", entry)
	}
}

func TestCreateDispatchSlipRefusedUnsettled(t *testing.T) {
	backend := &stubFulfillmentBackend{slipNumber: "DS-100"}
	svc, audits := newFulfillmentFixture(t, backend, testRegularFeed(), nil)

	_, err := svc.CreateDispatchSlip(context.Background(), "", "r1")
	if !errors.Is(err, ErrNotSettled) {
		t.Fatalf("CreateDispatchSlip() = %v, want ErrNotSettled", err)
	}
	// The refusal is local: the ERP is never asked.
	if backend.slipCalls != 0 {
		t.Errorf("backend called %d times, want 0", backend.slipCalls)
	}
	entry := audits.last(t)
	if entry.Outcome != model.OutcomeRefused {
		t.Errorf("audit outcome = %q, want refused", entry.Outcome)
	}
	if entry.Detail == "" {
		t.Error("refusal audit should carry the shortfall reason")
	}
}

func TestCreateDispatchSlipAlreadyIssued(t *testing.T) {
	feed := settledRegularFeed()
	feed[0].DispatchSlipNumber = "DS-001"
	backend := &stubFulfillmentBackend{}
	svc, _ := newFulfillmentFixture(t, backend, feed, nil)

	_, err := svc.CreateDispatchSlip(context.Background(), "", "r1")
	if !errors.Is(err, ErrSlipExists) {
		t.Fatalf("CreateDispatchSlip() = %v, want ErrSlipExists", err)
	}
	if backend.slipCalls != 0 {
		t.Errorf("backend called %d times, want 0", backend.slipCalls)
	}
}

func TestAttachTransportChargeAnySettlementState(t *testing.T) {
	// Unsettled order: charge still allowed.
	backend := &stubFulfillmentBackend{}
	svc, _ := newFulfillmentFixture(t, backend, testRegularFeed(), nil)

	err := svc.AttachTransportCharge(context.Background(), "", "r1", TransportChargeRequest{
		Amount:      decimal.NewFromInt(1200),
		VehicleType: "tempo",
	})
	if err != nil {
		t.Fatalf("AttachTransportCharge() = %v", err)
	}
	if backend.chargeCalls != 1 {
		t.Errorf("backend called %d times, want 1", backend.chargeCalls)
	}
}

func TestAttachTransportChargeOnlyOnce(t *testing.T) {
	feed := testRegularFeed()
	charge := decimal.NewFromInt(800)
	feed[0].TransportCharge = &charge
	backend := &stubFulfillmentBackend{}
	svc, _ := newFulfillmentFixture(t, backend, feed, nil)

	err := svc.AttachTransportCharge(context.Background(), "", "r1", TransportChargeRequest{
		Amount: decimal.NewFromInt(1200),
	})
	if !errors.Is(err, ErrChargeExists) {
		t.Fatalf("AttachTransportCharge() = %v, want ErrChargeExists", err)
	}
	if backend.chargeCalls != 0 {
		t.Errorf("backend called %d times, want 0", backend.chargeCalls)
	}
}

func TestAttachTransportChargeRejectsNonPositive(t *testing.T) {
	backend := &stubFulfillmentBackend{}
	svc, _ := newFulfillmentFixture(t, backend, testRegularFeed(), nil)

	err := svc.AttachTransportCharge(context.Background(), "", "r1", TransportChargeRequest{
		Amount: decimal.Zero,
	})
	if err == nil {
		t.Fatal("zero amount accepted")
	}
	if backend.chargeCalls != 0 {
		t.Errorf("backend called %d times, want 0", backend.chargeCalls)
	}
}

func TestCreateDispatchAssignment(t *testing.T) {
	feed := settledRegularFeed()
	feed[0].DispatchSlipNumber = "DS-001"
	backend := &stubFulfillmentBackend{
		vehicles: []erp.Vehicle{{ID: "v1", Number: "GJ01AB1234"}},
		drivers:  []erp.Driver{{ID: "d1", Name: "Ramesh"}},
	}
	svc, _ := newFulfillmentFixture(t, backend, feed, nil)

	err := svc.CreateDispatchAssignment(context.Background(), "", "r1", DispatchAssignmentRequest{
		VehicleID: "v1",
		DriverID:  "d1",
	})
	if err != nil {
		t.Fatalf("CreateDispatchAssignment() = %v", err)
	}
	if backend.assignCalls != 1 {
		t.Errorf("backend called %d times, want 1", backend.assignCalls)
	}
	if backend.lastAssign.VehicleID != "v1" || backend.lastAssign.DriverID != "d1" {
		t.Errorf("assignment = %+v", backend.lastAssign)
	}
}

func TestCreateDispatchAssignmentRequiresSlip(t *testing.T) {
	backend := &stubFulfillmentBackend{
		vehicles: []erp.Vehicle{{ID: "v1"}},
		drivers:  []erp.Driver{{ID: "d1"}},
	}
	svc, _ := newFulfillmentFixture(t, backend, settledRegularFeed(), nil)

	err := svc.CreateDispatchAssignment(context.Background(), "", "r1", DispatchAssignmentRequest{
		VehicleID: "v1",
		DriverID:  "d1",
	})
	if !errors.Is(err, ErrSlipMissing) {
		t.Fatalf("CreateDispatchAssignment() = %v, want ErrSlipMissing", err)
	}
	if backend.assignCalls != 0 {
		t.Errorf("backend called %d times, want 0", backend.assignCalls)
	}
}

func TestCreateDispatchAssignmentVehicleAlreadyAssigned(t *testing.T) {
	feed := settledRegularFeed()
	feed[0].DispatchSlipNumber = "DS-001"
	feed[0].VehicleNumber = "GJ01AB1234"
	backend := &stubFulfillmentBackend{}
	svc, _ := newFulfillmentFixture(t, backend, feed, nil)

	err := svc.CreateDispatchAssignment(context.Background(), "", "r1", DispatchAssignmentRequest{
		VehicleID: "v1",
		DriverID:  "d1",
	})
	if !errors.Is(err, ErrVehicleAssigned) {
		t.Fatalf("CreateDispatchAssignment() = %v, want ErrVehicleAssigned", err)
	}
}

func TestCreateDispatchAssignmentRosterMembership(t *testing.T) {
	feed := settledRegularFeed()
	feed[0].DispatchSlipNumber = "DS-001"
	backend := &stubFulfillmentBackend{
		vehicles: []erp.Vehicle{{ID: "v1"}},
		drivers:  []erp.Driver{{ID: "d1"}},
	}
	svc, _ := newFulfillmentFixture(t, backend, feed, nil)

	err := svc.CreateDispatchAssignment(context.Background(), "", "r1", DispatchAssignmentRequest{
		VehicleID: "v9",
		DriverID:  "d1",
	})
	if err == nil {
		t.Fatal("vehicle outside the pool accepted")
	}
	if backend.assignCalls != 0 {
		t.Errorf("backend called %d times, want 0", backend.assignCalls)
	}
}

func TestAdvanceJobWorkStatus(t *testing.T) {
	backend := &stubFulfillmentBackend{}
	svc, _ := newFulfillmentFixture(t, backend, nil, testJobWorkFeed())

	next, err := svc.AdvanceJobWorkStatus(context.Background(), "", "j1", "first batch done")
	if err != nil {
		t.Fatalf("AdvanceJobWorkStatus() = %v", err)
	}
	if next != "completed" {
		t.Errorf("next = %q, want completed after in_process", next)
	}
	if backend.lastStatus.Status != "completed" || backend.lastStatus.Notes != "first batch done" {
		t.Errorf("status request = %+v", backend.lastStatus)
	}
}

func TestAdvanceJobWorkStatusTerminal(t *testing.T) {
	feed := testJobWorkFeed()
	feed[0].Status = "delivered"
	backend := &stubFulfillmentBackend{}
	svc, _ := newFulfillmentFixture(t, backend, nil, feed)

	_, err := svc.AdvanceJobWorkStatus(context.Background(), "", "j1", "")
	if !errors.Is(err, ErrTerminalStatus) {
		t.Fatalf("AdvanceJobWorkStatus() = %v, want ErrTerminalStatus", err)
	}
	if backend.statusCalls != 0 {
		t.Errorf("backend called %d times, want 0", backend.statusCalls)
	}
}

func TestAdvanceJobWorkStatusRejectsRegular(t *testing.T) {
	svc, _ := newFulfillmentFixture(t, &stubFulfillmentBackend{}, testRegularFeed(), nil)

	if _, err := svc.AdvanceJobWorkStatus(context.Background(), "", "r1", ""); !errors.Is(err, ErrNotJobWork) {
		t.Fatalf("AdvanceJobWorkStatus() = %v, want ErrNotJobWork", err)
	}
}

func TestCancelJobWork(t *testing.T) {
	backend := &stubFulfillmentBackend{}
	svc, _ := newFulfillmentFixture(t, backend, nil, testJobWorkFeed())

	if err := svc.CancelJobWork(context.Background(), "", "j1", "customer withdrew"); err != nil {
		t.Fatalf("CancelJobWork() = %v", err)
	}
	if backend.lastStatus.Status != model.JobWorkStatusCancelled {
		t.Errorf("status request = %+v", backend.lastStatus)
	}
}

func TestCancelJobWorkTerminal(t *testing.T) {
	feed := testJobWorkFeed()
	feed[0].Status = model.JobWorkStatusCancelled
	backend := &stubFulfillmentBackend{}
	svc, _ := newFulfillmentFixture(t, backend, nil, feed)

	if err := svc.CancelJobWork(context.Background(), "", "j1", ""); !errors.Is(err, ErrTerminalStatus) {
		t.Fatalf("CancelJobWork() = %v, want ErrTerminalStatus", err)
	}
	if backend.statusCalls != 0 {
		t.Errorf("backend called %d times, want 0", backend.statusCalls)
	}
}

func TestRecordBreakage(t *testing.T) {
	backend := &stubFulfillmentBackend{}
	svc, _ := newFulfillmentFixture(t, backend, nil, testJobWorkFeed())

	err := svc.RecordBreakage(context.Background(), "", "j1", BreakageRequest{Count: 3, Notes: "edge chips"})
	if err != nil {
		t.Fatalf("RecordBreakage() = %v", err)
	}
	if backend.lastStatus.BreakageCount != 3 || backend.lastStatus.Status != "" {
		t.Errorf("status request = %+v, want breakage only", backend.lastStatus)
	}
}

func TestRecordBreakageRejectsZeroCount(t *testing.T) {
	backend := &stubFulfillmentBackend{}
	svc, _ := newFulfillmentFixture(t, backend, nil, testJobWorkFeed())

	if err := svc.RecordBreakage(context.Background(), "", "j1", BreakageRequest{Count: 0}); err == nil {
		t.Fatal("zero breakage count accepted")
	}
	if backend.statusCalls != 0 {
		t.Errorf("backend called %d times, want 0", backend.statusCalls)
	}
}

func TestMarkDispatched(t *testing.T) {
	backend := &stubFulfillmentBackend{}
	svc, _ := newFulfillmentFixture(t, backend, settledRegularFeed(), nil)

	if err := svc.MarkDispatched(context.Background(), "", "r1"); err != nil {
		t.Fatalf("MarkDispatched() = %v", err)
	}
	if backend.dispatchedCalls != 1 {
		t.Errorf("backend called %d times, want 1", backend.dispatchedCalls)
	}
}

func TestMarkDispatchedGated(t *testing.T) {
	backend := &stubFulfillmentBackend{}
	svc, _ := newFulfillmentFixture(t, backend, testRegularFeed(), nil)

	if err := svc.MarkDispatched(context.Background(), "", "r1"); !errors.Is(err, ErrNotSettled) {
		t.Fatalf("MarkDispatched() = %v, want ErrNotSettled", err)
	}
	if backend.dispatchedCalls != 0 {
		t.Errorf("backend called %d times, want 0", backend.dispatchedCalls)
	}

	if err := svc.MarkDispatched(context.Background(), "", "j1"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("MarkDispatched(j1) = %v, want ErrOrderNotFound", err)
	}
}
