package service

import (
	"context"

	"github.com/straye-as/finance-dashboard/internal/auth"
	"github.com/straye-as/finance-dashboard/internal/domain"
	"go.uber.org/zap"
)

// NotificationAPI is the read-only notification feed of the remote API
type NotificationAPI interface {
	ListNotifications(ctx context.Context, page, pageSize int) (*domain.NotificationPage, error)
	UnreadNotificationCount(ctx context.Context) (int, error)
}

// NotificationService proxies the notification feed of the signed-in user
type NotificationService struct {
	api    NotificationAPI
	logger *zap.Logger
}

// NewNotificationService creates a new NotificationService instance
func NewNotificationService(api NotificationAPI, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		api:    api,
		logger: logger,
	}
}

// List returns a page of notifications
func (s *NotificationService) List(ctx context.Context, page, pageSize int) (*domain.PaginatedResponse, error) {
	if _, ok := auth.FromContext(ctx); !ok {
		return nil, ErrUnauthorized
	}
	page, pageSize = normalizePage(page, pageSize)

	result, err := s.api.ListNotifications(ctx, page, pageSize)
	if err != nil {
		return nil, err
	}

	items := result.Notifications
	if items == nil {
		items = []domain.Notification{}
	}
	if result.Page > 0 {
		page = result.Page
	}
	if result.PageSize > 0 {
		pageSize = result.PageSize
	}
	resp := domain.NewPaginatedResponse(items, result.Total, page, pageSize)
	return &resp, nil
}

// UnreadCount returns the unread badge value
func (s *NotificationService) UnreadCount(ctx context.Context) (*domain.UnreadCountDTO, error) {
	if _, ok := auth.FromContext(ctx); !ok {
		return nil, ErrUnauthorized
	}
	count, err := s.api.UnreadNotificationCount(ctx)
	if err != nil {
		return nil, err
	}
	return &domain.UnreadCountDTO{Count: count}, nil
}
