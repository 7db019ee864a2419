package service

import (
	"context"
	"fmt"
	"time"

	"opsconsole/internal/erp"
	"opsconsole/internal/repository"
)

// ledgerBackend is the slice of the ERP client the ledger view consumes.
type ledgerBackend interface {
	FetchCustomerByPhone(ctx context.Context, phone string) (*erp.Customer, error)
	FetchLedgerSummary(ctx context.Context, customerID string) (*erp.LedgerSummary, error)
}

// LedgerView pairs the customer master record with its ageing summary.
type LedgerView struct {
	Customer erp.Customer      `json:"customer"`
	Summary  erp.LedgerSummary `json:"summary"`
}

// LedgerService proxies the upstream ageing ledger and aggregates the local
// share trail.
type LedgerService interface {
	CustomerLedger(ctx context.Context, phone string) (*LedgerView, error)
	ShareStatistics(ctx context.Context, from, to time.Time) ([]repository.ShareStat, error)
}

type ledgerService struct {
	backend   ledgerBackend
	shareRepo repository.ShareLogRepository
}

func NewLedgerService(backend ledgerBackend, shareRepo repository.ShareLogRepository) LedgerService {
	return &ledgerService{backend: backend, shareRepo: shareRepo}
}

func (s *ledgerService) CustomerLedger(ctx context.Context, phone string) (*LedgerView, error) {
	customer, err := s.backend.FetchCustomerByPhone(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("fetch customer: %w", err)
	}

	summary, err := s.backend.FetchLedgerSummary(ctx, customer.ID)
	if err != nil {
		return nil, fmt.Errorf("fetch ledger summary: %w", err)
	}

	return &LedgerView{Customer: *customer, Summary: *summary}, nil
}

func (s *ledgerService) ShareStatistics(ctx context.Context, from, to time.Time) ([]repository.ShareStat, error) {
	if to.IsZero() {
		to = time.Now()
	}
	if from.IsZero() {
		from = to.AddDate(0, -1, 0)
	}
	return s.shareRepo.Statistics(ctx, from, to)
}
