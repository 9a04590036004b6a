package service

import (
	"context"

	"github.com/straye-as/finance-dashboard/internal/auth"
	"github.com/straye-as/finance-dashboard/internal/domain"
	"github.com/straye-as/finance-dashboard/internal/repository"
	"go.uber.org/zap"
)

// ActionAttempt is one workflow action tried through the dashboard
type ActionAttempt struct {
	InvoiceID     domain.ID
	InvoiceNumber string
	Action        string
	FromStatus    domain.InvoiceStatus
	ToStatus      domain.InvoiceStatus
	Outcome       domain.ActionOutcome
	Message       string
}

// ActionRecorder records workflow attempts
type ActionRecorder interface {
	Record(ctx context.Context, attempt ActionAttempt)
}

// ActionLogService keeps the local log of workflow attempts
type ActionLogService struct {
	repo   *repository.ActionLogRepository
	logger *zap.Logger
}

// NewActionLogService creates a new action log service
func NewActionLogService(repo *repository.ActionLogRepository, logger *zap.Logger) *ActionLogService {
	return &ActionLogService{
		repo:   repo,
		logger: logger,
	}
}

// Record stores an attempt. Failures are logged and never reach the caller.
func (s *ActionLogService) Record(ctx context.Context, attempt ActionAttempt) {
	entry := &domain.ActionLog{
		InvoiceID:     attempt.InvoiceID.String(),
		InvoiceNumber: attempt.InvoiceNumber,
		Action:        attempt.Action,
		FromStatus:    string(attempt.FromStatus),
		ToStatus:      string(attempt.ToStatus),
		Outcome:       attempt.Outcome,
		Message:       truncate(attempt.Message, 1000),
		RequestID:     auth.RequestIDFromContext(ctx),
	}

	if userCtx, ok := auth.FromContext(ctx); ok {
		entry.UserID = userCtx.UserID.String()
		entry.UserName = userCtx.DisplayName
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.Error("failed to create action log",
			zap.String("invoice_id", entry.InvoiceID),
			zap.String("action", entry.Action),
			zap.String("outcome", string(entry.Outcome)),
			zap.Error(err))
	}
}

// List returns a page of action logs, newest first
func (s *ActionLogService) List(ctx context.Context, filter *repository.ActionLogFilter, page, pageSize int) (*domain.PaginatedResponse, error) {
	page, pageSize = normalizePage(page, pageSize)

	logs, total, err := s.repo.List(ctx, filter, page, pageSize)
	if err != nil {
		return nil, err
	}

	dtos := make([]domain.ActionLogDTO, len(logs))
	for i, l := range logs {
		dtos[i] = toActionLogDTO(l)
	}

	resp := domain.NewPaginatedResponse(dtos, total, page, pageSize)
	return &resp, nil
}

func toActionLogDTO(l domain.ActionLog) domain.ActionLogDTO {
	return domain.ActionLogDTO{
		ID:            l.ID,
		UserID:        l.UserID,
		UserName:      l.UserName,
		InvoiceID:     l.InvoiceID,
		InvoiceNumber: l.InvoiceNumber,
		Action:        l.Action,
		FromStatus:    l.FromStatus,
		ToStatus:      l.ToStatus,
		Outcome:       string(l.Outcome),
		Message:       l.Message,
		RequestID:     l.RequestID,
		CreatedAt:     l.CreatedAt,
	}
}

const (
	defaultPageSize = 15
	maxPageSize     = 100
)

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
