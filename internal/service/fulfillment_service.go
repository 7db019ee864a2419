package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"opsconsole/internal/erp"
	"opsconsole/internal/model"
	"opsconsole/internal/repository"
	ws "opsconsole/internal/websocket"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotSettled is the settlement-gate refusal: the step requires full
	// collection and the order is not there yet. Raised locally, before any
	// ERP call.
	ErrNotSettled = errors.New("order is not fully settled")
	// ErrSlipExists means a dispatch slip was already issued.
	ErrSlipExists = errors.New("dispatch slip already issued")
	// ErrSlipMissing means assignment was attempted before slip issuance.
	ErrSlipMissing = errors.New("dispatch slip has not been issued")
	// ErrChargeExists enforces one transport charge per order.
	ErrChargeExists = errors.New("transport charge already attached")
	// ErrVehicleAssigned means dispatch assignment already completed.
	ErrVehicleAssigned = errors.New("vehicle already assigned")
	// ErrNotJobWork means a job-work-only command hit a regular order.
	ErrNotJobWork = errors.New("not a job-work order")
	// ErrNotRegular means a regular-only command hit a job-work order.
	ErrNotRegular = errors.New("not a regular order")
	// ErrTerminalStatus means the job-work order can no longer move.
	ErrTerminalStatus = errors.New("order is in a terminal status")
)

// fulfillmentBackend is the slice of the ERP client the gate submits to.
type fulfillmentBackend interface {
	AttachTransportCharge(ctx context.Context, orderID string, amount decimal.Decimal, note, vehicleType string) error
	CreateDispatchSlip(ctx context.Context, orderID string) (string, error)
	FetchAvailableVehicles(ctx context.Context) ([]erp.Vehicle, error)
	FetchAvailableDrivers(ctx context.Context) ([]erp.Driver, error)
	CreateDispatchAssignment(ctx context.Context, req erp.AssignmentRequest) error
	UpdateJobWorkStatus(ctx context.Context, req erp.JobWorkStatusRequest) error
	MarkOrderDispatched(ctx context.Context, orderID string) error
}

// TransportChargeRequest attaches a transport charge to an order.
type TransportChargeRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Note        string          `json:"note"`
	VehicleType string          `json:"vehicle_type"`
}

// DispatchAssignmentRequest assigns a vehicle and driver to an order.
type DispatchAssignmentRequest struct {
	VehicleID string `json:"vehicle_id"`
	DriverID  string `json:"driver_id"`
	ETA       string `json:"eta,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// FleetRoster is the currently available vehicle and driver pools.
type FleetRoster struct {
	Vehicles []erp.Vehicle `json:"vehicles"`
	Drivers  []erp.Driver  `json:"drivers"`
}

// BreakageRequest records a breakage event on a job-work order. Breakage is
// additive history, not a status transition.
type BreakageRequest struct {
	Count int    `json:"count"`
	Notes string `json:"notes"`
}

// FulfillmentService sequences the dispatch steps. Ordering is enforced by
// checking the current snapshot, never by a lock: the snapshot is refetched
// after every mutation, so a completed step withdraws its own availability.
// Every step except the transport charge refuses locally unless the order is
// fully settled.
type FulfillmentService interface {
	AttachTransportCharge(ctx context.Context, userID, orderID string, req TransportChargeRequest) error
	CreateDispatchSlip(ctx context.Context, userID, orderID string) (string, error)
	AvailableFleet(ctx context.Context) (*FleetRoster, error)
	CreateDispatchAssignment(ctx context.Context, userID, orderID string, req DispatchAssignmentRequest) error
	AdvanceJobWorkStatus(ctx context.Context, userID, orderID, notes string) (string, error)
	CancelJobWork(ctx context.Context, userID, orderID, notes string) error
	RecordBreakage(ctx context.Context, userID, orderID string, req BreakageRequest) error
	MarkDispatched(ctx context.Context, userID, orderID string) error
}

type fulfillmentService struct {
	backend   fulfillmentBackend
	orders    OrderService
	auditRepo repository.AuditRepository
	hub       *ws.Hub
}

func NewFulfillmentService(
	backend fulfillmentBackend,
	orders OrderService,
	auditRepo repository.AuditRepository,
	hub *ws.Hub,
) FulfillmentService {
	return &fulfillmentService{
		backend:   backend,
		orders:    orders,
		auditRepo: auditRepo,
		hub:       hub,
	}
}

// AttachTransportCharge is the one step allowed at any settlement state.
// A second charge is refused: one charge per order.
func (s *fulfillmentService) AttachTransportCharge(ctx context.Context, userID, orderID string, req TransportChargeRequest) error {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if order.HasTransportCharge() {
		s.audit(ctx, userID, order, model.ActionAttachTransportCharge, model.OutcomeRefused, ErrChargeExists.Error())
		return ErrChargeExists
	}
	if !req.Amount.IsPositive() {
		return errors.New("transport charge amount must be positive")
	}

	if err := s.backend.AttachTransportCharge(ctx, orderID, req.Amount, req.Note, req.VehicleType); err != nil {
		s.audit(ctx, userID, order, model.ActionAttachTransportCharge, model.OutcomeFailed, err.Error())
		return fmt.Errorf("attach transport charge: %w", err)
	}

	s.audit(ctx, userID, order, model.ActionAttachTransportCharge, model.OutcomeOK, req.Amount.StringFixed(2))
	s.finishMutation(ctx, orderID)
	return nil
}

// CreateDispatchSlip issues the document authorizing physical release. The
// settlement check happens here, locally; an unsettled order never reaches
// the ERP, and the refusal carries the shortfall reason.
func (s *fulfillmentService) CreateDispatchSlip(ctx context.Context, userID, orderID string) (string, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return "", err
	}
	if order.HasDispatchSlip() {
		s.audit(ctx, userID, order, model.ActionCreateDispatchSlip, model.OutcomeRefused, ErrSlipExists.Error())
		return "", ErrSlipExists
	}
	if !IsSettled(*order) {
		shortfall := SettlementShortfall(*order)
		s.audit(ctx, userID, order, model.ActionCreateDispatchSlip, model.OutcomeRefused, shortfall)
		return "", fmt.Errorf("%w: %s", ErrNotSettled, shortfall)
	}

	slip, err := s.backend.CreateDispatchSlip(ctx, orderID)
	if err != nil {
		s.audit(ctx, userID, order, model.ActionCreateDispatchSlip, model.OutcomeFailed, err.Error())
		return "", fmt.Errorf("create dispatch slip: %w", err)
	}

	s.audit(ctx, userID, order, model.ActionCreateDispatchSlip, model.OutcomeOK, slip)
	s.finishMutation(ctx, orderID)
	return slip, nil
}

func (s *fulfillmentService) AvailableFleet(ctx context.Context) (*FleetRoster, error) {
	vehicles, err := s.backend.FetchAvailableVehicles(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch vehicles: %w", err)
	}
	drivers, err := s.backend.FetchAvailableDrivers(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch drivers: %w", err)
	}
	return &FleetRoster{Vehicles: vehicles, Drivers: drivers}, nil
}

// CreateDispatchAssignment assigns a vehicle and driver from the available
// pools and marks the order dispatched upstream. The ERP notifies the
// customer on acceptance; a rejected submission (vehicle double-booked)
// leaves the order untouched and the operator re-submits with another choice.
func (s *fulfillmentService) CreateDispatchAssignment(ctx context.Context, userID, orderID string, req DispatchAssignmentRequest) error {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if !order.HasDispatchSlip() {
		s.audit(ctx, userID, order, model.ActionCreateDispatchAssignment, model.OutcomeRefused, ErrSlipMissing.Error())
		return ErrSlipMissing
	}
	if !IsSettled(*order) {
		shortfall := SettlementShortfall(*order)
		s.audit(ctx, userID, order, model.ActionCreateDispatchAssignment, model.OutcomeRefused, shortfall)
		return fmt.Errorf("%w: %s", ErrNotSettled, shortfall)
	}
	if order.HasVehicleAssigned() {
		s.audit(ctx, userID, order, model.ActionCreateDispatchAssignment, model.OutcomeRefused, ErrVehicleAssigned.Error())
		return ErrVehicleAssigned
	}
	if req.VehicleID == "" {
		return errors.New("vehicle selection is required")
	}
	if req.DriverID == "" {
		return errors.New("driver selection is required")
	}

	roster, err := s.AvailableFleet(ctx)
	if err != nil {
		return err
	}
	if !vehicleInRoster(roster.Vehicles, req.VehicleID) {
		return fmt.Errorf("vehicle %s is not in the available pool", req.VehicleID)
	}
	if !driverInRoster(roster.Drivers, req.DriverID) {
		return fmt.Errorf("driver %s is not in the available pool", req.DriverID)
	}

	err = s.backend.CreateDispatchAssignment(ctx, erp.AssignmentRequest{
		OrderID:   orderID,
		OrderKind: order.Kind,
		VehicleID: req.VehicleID,
		DriverID:  req.DriverID,
		ETA:       req.ETA,
		Notes:     req.Notes,
	})
	if err != nil {
		s.audit(ctx, userID, order, model.ActionCreateDispatchAssignment, model.OutcomeFailed, err.Error())
		return fmt.Errorf("create dispatch assignment: %w", err)
	}

	s.audit(ctx, userID, order, model.ActionCreateDispatchAssignment, model.OutcomeOK,
		fmt.Sprintf("vehicle=%s driver=%s", req.VehicleID, req.DriverID))
	s.finishMutation(ctx, orderID)
	return nil
}

// AdvanceJobWorkStatus moves a job-work order to the next value in the full
// production lifecycle. The ERP independently validates the transition; this
// side only refuses terminal statuses.
func (s *fulfillmentService) AdvanceJobWorkStatus(ctx context.Context, userID, orderID, notes string) (string, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return "", err
	}
	if !order.IsJobWork() {
		return "", ErrNotJobWork
	}
	if IsTerminalJobWorkStatus(order.Status) {
		s.audit(ctx, userID, order, model.ActionAdvanceJobWorkStatus, model.OutcomeRefused, ErrTerminalStatus.Error())
		return "", ErrTerminalStatus
	}

	next, ok := NextJobWorkStatus(order.Status)
	if !ok {
		s.audit(ctx, userID, order, model.ActionAdvanceJobWorkStatus, model.OutcomeRefused,
			fmt.Sprintf("no successor for status %q", order.Status))
		return "", fmt.Errorf("status %q has no next stage", order.Status)
	}

	err = s.backend.UpdateJobWorkStatus(ctx, erp.JobWorkStatusRequest{
		OrderID: orderID,
		Status:  next,
		Notes:   notes,
	})
	if err != nil {
		s.audit(ctx, userID, order, model.ActionAdvanceJobWorkStatus, model.OutcomeFailed, err.Error())
		return "", fmt.Errorf("update job-work status: %w", err)
	}

	s.audit(ctx, userID, order, model.ActionAdvanceJobWorkStatus, model.OutcomeOK, next)
	s.finishMutation(ctx, orderID)
	return next, nil
}

// CancelJobWork moves a job-work order to cancelled, reachable from any
// non-terminal status.
func (s *fulfillmentService) CancelJobWork(ctx context.Context, userID, orderID, notes string) error {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if !order.IsJobWork() {
		return ErrNotJobWork
	}
	if IsTerminalJobWorkStatus(order.Status) {
		s.audit(ctx, userID, order, model.ActionCancelJobWork, model.OutcomeRefused, ErrTerminalStatus.Error())
		return ErrTerminalStatus
	}

	err = s.backend.UpdateJobWorkStatus(ctx, erp.JobWorkStatusRequest{
		OrderID: orderID,
		Status:  model.JobWorkStatusCancelled,
		Notes:   notes,
	})
	if err != nil {
		s.audit(ctx, userID, order, model.ActionCancelJobWork, model.OutcomeFailed, err.Error())
		return fmt.Errorf("cancel job-work: %w", err)
	}

	s.audit(ctx, userID, order, model.ActionCancelJobWork, model.OutcomeOK, "")
	s.finishMutation(ctx, orderID)
	return nil
}

// RecordBreakage attaches a breakage event without changing status. A zero
// count is a validation failure, caught before any ERP call.
func (s *fulfillmentService) RecordBreakage(ctx context.Context, userID, orderID string, req BreakageRequest) error {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if !order.IsJobWork() {
		return ErrNotJobWork
	}
	if req.Count <= 0 {
		return errors.New("breakage count must be greater than zero")
	}
	if IsTerminalJobWorkStatus(order.Status) {
		s.audit(ctx, userID, order, model.ActionRecordBreakage, model.OutcomeRefused, ErrTerminalStatus.Error())
		return ErrTerminalStatus
	}

	err = s.backend.UpdateJobWorkStatus(ctx, erp.JobWorkStatusRequest{
		OrderID:       orderID,
		BreakageCount: req.Count,
		BreakageNotes: req.Notes,
	})
	if err != nil {
		s.audit(ctx, userID, order, model.ActionRecordBreakage, model.OutcomeFailed, err.Error())
		return fmt.Errorf("record breakage: %w", err)
	}

	s.audit(ctx, userID, order, model.ActionRecordBreakage, model.OutcomeOK, fmt.Sprintf("count=%d", req.Count))
	s.finishMutation(ctx, orderID)
	return nil
}

// MarkDispatched is the legacy regular-order dispatch path without a vehicle
// assignment. Still settlement-gated.
func (s *fulfillmentService) MarkDispatched(ctx context.Context, userID, orderID string) error {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if !order.IsRegular() {
		return ErrNotRegular
	}
	if !IsSettled(*order) {
		shortfall := SettlementShortfall(*order)
		s.audit(ctx, userID, order, model.ActionMarkDispatched, model.OutcomeRefused, shortfall)
		return fmt.Errorf("%w: %s", ErrNotSettled, shortfall)
	}

	if err := s.backend.MarkOrderDispatched(ctx, orderID); err != nil {
		s.audit(ctx, userID, order, model.ActionMarkDispatched, model.OutcomeFailed, err.Error())
		return fmt.Errorf("mark dispatched: %w", err)
	}

	s.audit(ctx, userID, order, model.ActionMarkDispatched, model.OutcomeOK, "")
	s.finishMutation(ctx, orderID)
	return nil
}

// --- internals ---

func vehicleInRoster(vehicles []erp.Vehicle, id string) bool {
	for _, v := range vehicles {
		if v.ID == id {
			return true
		}
	}
	return false
}

func driverInRoster(drivers []erp.Driver, id string) bool {
	for _, d := range drivers {
		if d.ID == id {
			return true
		}
	}
	return false
}

func (s *fulfillmentService) finishMutation(ctx context.Context, orderID string) {
	if err := s.orders.Refresh(ctx); err != nil {
		log.Printf("fulfillment: order refresh after mutation failed: %v", err)
	}
	s.hub.NotifyOrdersRefreshed(orderID)
}

func (s *fulfillmentService) audit(ctx context.Context, userID string, order *model.Order, action, outcome, detail string) {
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
		log.Printf("fulfillment: audit write failed: %v", err)
	}
}
