package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/finance-dashboard/internal/domain"
	"gorm.io/gorm"
)

// ActionLogFilter represents filter options for querying action logs
type ActionLogFilter struct {
	UserID    string
	InvoiceID string
	Action    string
	Outcome   *domain.ActionOutcome
	StartTime *time.Time
	EndTime   *time.Time
}

// ActionLogRepository handles action log data access
type ActionLogRepository struct {
	db *gorm.DB
}

// NewActionLogRepository creates a new action log repository
func NewActionLogRepository(db *gorm.DB) *ActionLogRepository {
	return &ActionLogRepository{db: db}
}

// Create inserts a new action log entry (append-only - no updates allowed)
func (r *ActionLogRepository) Create(ctx context.Context, log *domain.ActionLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// GetByID retrieves an action log by ID
func (r *ActionLogRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ActionLog, error) {
	var log domain.ActionLog
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&log).Error
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// List retrieves action logs, newest first, with pagination and optional filters
func (r *ActionLogRepository) List(ctx context.Context, filter *ActionLogFilter, page, pageSize int) ([]domain.ActionLog, int64, error) {
	var logs []domain.ActionLog
	var total int64

	query := r.db.WithContext(ctx).Model(&domain.ActionLog{})
	query = r.applyFilters(query, filter)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&logs).Error

	return logs, total, err
}

// CountByOutcome counts attempts on one invoice grouped by outcome
func (r *ActionLogRepository) CountByOutcome(ctx context.Context, invoiceID string) (map[domain.ActionOutcome]int64, error) {
	type result struct {
		Outcome domain.ActionOutcome
		Count   int64
	}

	var results []result
	err := r.db.WithContext(ctx).Model(&domain.ActionLog{}).
		Select("outcome, COUNT(*) as count").
		Where("invoice_id = ?", invoiceID).
		Group("outcome").
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[domain.ActionOutcome]int64, len(results))
	for _, res := range results {
		counts[res.Outcome] = res.Count
	}
	return counts, nil
}

func (r *ActionLogRepository) applyFilters(query *gorm.DB, filter *ActionLogFilter) *gorm.DB {
	if filter == nil {
		return query
	}

	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}

	if filter.InvoiceID != "" {
		query = query.Where("invoice_id = ?", filter.InvoiceID)
	}

	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}

	if filter.Outcome != nil {
		query = query.Where("outcome = ?", *filter.Outcome)
	}

	if filter.StartTime != nil {
		query = query.Where("created_at >= ?", *filter.StartTime)
	}

	if filter.EndTime != nil {
		query = query.Where("created_at <= ?", *filter.EndTime)
	}

	return query
}
