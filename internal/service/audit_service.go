package service

import (
	"context"
	"time"

	"opsconsole/internal/model"
	"opsconsole/internal/repository"
)

// AuditEntryResponse is one action-audit row as rendered to the console.
type AuditEntryResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	OrderID   string `json:"order_id"`
	OrderKind string `json:"order_kind"`
	Action    string `json:"action"`
	Outcome   string `json:"outcome"`
	Detail    string `json:"detail"`
	CreatedAt string `json:"created_at"`
}

// AuditService lists the operator action trail.
type AuditService interface {
	ListAudits(ctx context.Context, filter repository.AuditFilter) ([]AuditEntryResponse, int64, error)
}

type auditService struct {
	repo repository.AuditRepository
}

func NewAuditService(repo repository.AuditRepository) AuditService {
	return &auditService{repo: repo}
}

func (s *auditService) ListAudits(ctx context.Context, filter repository.AuditFilter) ([]AuditEntryResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	audits, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	res := make([]AuditEntryResponse, 0, len(audits))
	for _, a := range audits {
		res = append(res, toAuditResponse(a))
	}
	return res, total, nil
}

func toAuditResponse(a model.ActionAudit) AuditEntryResponse {
	username := "System"
	userID := ""
	if a.User != nil {
		username = a.User.Username
	}
	if a.UserID != nil {
		userID = a.UserID.String()
	}
	return AuditEntryResponse{
		ID:        a.ID.String(),
		UserID:    userID,
		Username:  username,
		OrderID:   a.OrderID,
		OrderKind: a.OrderKind,
		Action:    a.Action,
		Outcome:   a.Outcome,
		Detail:    a.Detail,
		CreatedAt: a.CreatedAt.Format(time.RFC3339),
	}
}
