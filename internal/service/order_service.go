package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"opsconsole/internal/model"
)

var (
	// ErrOrderNotFound means the id is absent from the current snapshot.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrdersUnavailable means neither order feed could be loaded.
	ErrOrdersUnavailable = errors.New("order feeds unavailable")
)

// orderSource is the slice of the ERP client the order cache consumes.
type orderSource interface {
	FetchRegularOrders(ctx context.Context) ([]model.RegularOrder, error)
	FetchJobWorkOrders(ctx context.Context) ([]model.JobWorkOrder, error)
}

// OrderFilter narrows the merged listing.
type OrderFilter struct {
	Kind         string
	Status       string
	NeedsPayment bool // only orders with an offerable payment action
	Page         int
	Limit        int
}

// OrderView decorates a normalized order with everything the console renders:
// flow position, badge, and settlement verdicts, all derived fresh from the
// snapshot on every call.
type OrderView struct {
	model.Order
	Position     int          `json:"position"`
	Badge        PaymentBadge `json:"badge"`
	NeedsPayment bool         `json:"needs_payment"`
	Remaining    string       `json:"remaining"`
	IsSettled    bool         `json:"is_settled"`
}

// SnapshotInfo reports which feeds loaded on the last refresh.
type SnapshotInfo struct {
	RefreshedAt   time.Time `json:"refreshed_at"`
	RegularLoaded bool      `json:"regular_loaded"`
	JobWorkLoaded bool      `json:"job_work_loaded"`
	TotalOrders   int       `json:"total_orders"`
}

// OrderService owns the merged order snapshot. The snapshot is a cache over
// the ERP, refreshed whole after every mutating command; no in-place update
// of an order is ever performed.
type OrderService interface {
	Refresh(ctx context.Context) error
	List(ctx context.Context, filter OrderFilter) ([]OrderView, int64, error)
	Get(ctx context.Context, orderID string) (*model.Order, error)
	Info() SnapshotInfo
}

type orderService struct {
	source orderSource

	mu       sync.RWMutex
	snapshot []model.Order
	info     SnapshotInfo
	loaded   bool
}

func NewOrderService(source orderSource) OrderService {
	return &orderService{source: source}
}

// NormalizeRegular reduces a regular order to the common view.
func NormalizeRegular(r model.RegularOrder) model.Order {
	summary := r.SizeSummary
	if summary == "" && r.Quantity > 0 {
		summary = fmt.Sprintf("%d pcs", r.Quantity)
	}
	return model.Order{
		Kind:           model.KindRegular,
		ID:             r.ID,
		Number:         r.OrderNumber,
		Status:         r.Status,
		Total:          r.Total,
		AdvancePaid:    r.AdvancePaid,
		AdvancePercent: r.AdvancePercent,
		Quantity:       r.Quantity,
		SizeSummary:    summary,
		CustomerName:   r.CustomerName,
		CustomerPhone:  r.CustomerPhone,
		CustomerEmail:  r.CustomerEmail,
		Regular: &model.RegularPayment{
			AdvanceStatus:       r.AdvancePaymentStatus,
			RemainingStatus:     r.RemainingPaymentStatus,
			RemainingPreference: r.RemainingPaymentPreference,
			RemainingAmount:     r.RemainingAmount,
		},
		DispatchSlipNumber:   r.DispatchSlipNumber,
		VehicleNumber:        r.VehicleNumber,
		DriverName:           r.DriverName,
		DriverPhone:          r.DriverPhone,
		TransportCharge:      r.TransportCharge,
		TransportChargeNote:  r.TransportChargeNote,
		TransportVehicleType: r.TransportVehicleType,
		CreatedAt:            r.CreatedAt,
	}
}

// NormalizeJobWork reduces a job-work order to the common view. Totals come
// from the nested summary block, not top-level fields.
func NormalizeJobWork(j model.JobWorkOrder) model.Order {
	summary := j.Summary.SizeSummary
	if summary == "" && j.Summary.Pieces > 0 {
		summary = fmt.Sprintf("%d pcs", j.Summary.Pieces)
	}
	return model.Order{
		Kind:           model.KindJobWork,
		ID:             j.ID,
		Number:         j.JobWorkNumber,
		Status:         j.Status,
		Total:          j.Summary.GrandTotal,
		AdvancePaid:    j.AdvancePaid,
		AdvancePercent: j.AdvancePercent,
		Quantity:       j.Summary.Pieces,
		SizeSummary:    summary,
		CustomerName:   j.CustomerName,
		CustomerPhone:  j.CustomerPhone,
		CustomerEmail:  j.CustomerEmail,
		JobWork: &model.JobWorkPayment{
			Status:     j.PaymentStatus,
			Preference: j.PaymentPreference,
		},
		DispatchSlipNumber:   j.DispatchSlipNumber,
		VehicleNumber:        j.VehicleNumber,
		DriverName:           j.DriverName,
		DriverPhone:          j.DriverPhone,
		TransportCharge:      j.TransportCharge,
		TransportChargeNote:  j.TransportChargeNote,
		TransportVehicleType: j.TransportVehicleType,
		CreatedAt:            j.CreatedAt,
	}
}

// MergeOrders combines both normalized collections, most recent first. The
// sort is stable so same-timestamp orders keep their feed order.
func MergeOrders(regulars []model.RegularOrder, jobWorks []model.JobWorkOrder) []model.Order {
	merged := make([]model.Order, 0, len(regulars)+len(jobWorks))
	for _, r := range regulars {
		merged = append(merged, NormalizeRegular(r))
	}
	for _, j := range jobWorks {
		merged = append(merged, NormalizeJobWork(j))
	}

	sort.SliceStable(merged, func(i, k int) bool {
		return merged[i].CreatedAt.After(merged[k].CreatedAt)
	})

	return merged
}

// Refresh refetches both feeds and swaps the snapshot. One failed feed
// degrades to an empty set for that kind; only both failing is an error, so
// partial data still renders.
func (s *orderService) Refresh(ctx context.Context) error {
	regulars, regErr := s.source.FetchRegularOrders(ctx)
	if regErr != nil {
		log.Printf("order refresh: regular feed failed: %v", regErr)
		regulars = nil
	}

	jobWorks, jwErr := s.source.FetchJobWorkOrders(ctx)
	if jwErr != nil {
		log.Printf("order refresh: job-work feed failed: %v", jwErr)
		jobWorks = nil
	}

	if regErr != nil && jwErr != nil {
		return fmt.Errorf("%w: regular: %v; job-work: %v", ErrOrdersUnavailable, regErr, jwErr)
	}

	merged := MergeOrders(regulars, jobWorks)

	s.mu.Lock()
	s.snapshot = merged
	s.info = SnapshotInfo{
		RefreshedAt:   time.Now(),
		RegularLoaded: regErr == nil,
		JobWorkLoaded: jwErr == nil,
		TotalOrders:   len(merged),
	}
	s.loaded = true
	s.mu.Unlock()

	return nil
}

func (s *orderService) ensureLoaded(ctx context.Context) error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}
	return s.Refresh(ctx)
}

func (s *orderService) List(ctx context.Context, filter OrderFilter) ([]OrderView, int64, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, 0, err
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	s.mu.RLock()
	snapshot := s.snapshot
	s.mu.RUnlock()

	matched := make([]OrderView, 0, len(snapshot))
	for _, o := range snapshot {
		if filter.Kind != "" && o.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		needs := NeedsPayment(o)
		if filter.NeedsPayment && !needs {
			continue
		}
		matched = append(matched, OrderView{
			Order:        o,
			Position:     Position(o),
			Badge:        Badge(o),
			NeedsPayment: needs,
			Remaining:    Remaining(o).StringFixed(2),
			IsSettled:    IsSettled(o),
		})
	}

	total := int64(len(matched))
	start := (filter.Page - 1) * filter.Limit
	if start >= len(matched) {
		return []OrderView{}, total, nil
	}
	end := start + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}

	return matched[start:end], total, nil
}

func (s *orderService) Get(ctx context.Context, orderID string) (*model.Order, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.snapshot {
		if s.snapshot[i].ID == orderID {
			o := s.snapshot[i]
			return &o, nil
		}
	}
	return nil, ErrOrderNotFound
}

func (s *orderService) Info() SnapshotInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info
}
