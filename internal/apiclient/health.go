package apiclient

import (
	"context"
	"net/http"
	"time"
)

// Health probes the API health endpoint and returns the round-trip latency
func (c *Client) Health(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if _, err := c.send(ctx, http.MethodGet, "health", nil, nil); err != nil {
		return time.Since(start), err
	}
	return time.Since(start), nil
}
