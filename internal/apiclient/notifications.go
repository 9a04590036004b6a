package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/straye-as/finance-dashboard/internal/domain"
)

// ListNotifications fetches one page of the caller's notification feed
func (c *Client) ListNotifications(ctx context.Context, page, pageSize int) (*domain.NotificationPage, error) {
	query := url.Values{}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		query.Set("per_page", strconv.Itoa(pageSize))
	}

	raw, err := c.send(ctx, http.MethodGet, "notifications", query, nil)
	if err != nil {
		return nil, err
	}

	var env pageEnvelope[domain.Notification]
	if err := env.decode(raw); err != nil {
		return nil, &TransportError{Op: "GET notifications", Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	result := &domain.NotificationPage{
		Notifications: env.items,
		Total:         env.total,
		Page:          env.page,
		PageSize:      env.pageSize,
	}
	if result.Page == 0 {
		result.Page = page
	}
	if result.PageSize == 0 {
		result.PageSize = pageSize
	}
	return result, nil
}

// UnreadNotificationCount returns the unread badge count
func (c *Client) UnreadNotificationCount(ctx context.Context) (int, error) {
	var resp struct {
		Count       *int `json:"count"`
		UnreadCount *int `json:"unread_count"`
	}
	if err := c.do(ctx, http.MethodGet, "notifications/unread-count", nil, nil, &resp); err != nil {
		return 0, err
	}
	switch {
	case resp.Count != nil:
		return *resp.Count, nil
	case resp.UnreadCount != nil:
		return *resp.UnreadCount, nil
	}
	return 0, nil
}
