package handler

import (
	"net/http"

	"github.com/straye-as/finance-dashboard/internal/domain"
)

// StatusSource provides the latest system status snapshot
type StatusSource interface {
	Snapshot() domain.SystemStatus
}

// SystemStatusHandler serves the system status page
type SystemStatusHandler struct {
	source StatusSource
}

// NewSystemStatusHandler creates a new SystemStatusHandler
func NewSystemStatusHandler(source StatusSource) *SystemStatusHandler {
	return &SystemStatusHandler{source: source}
}

// Get godoc
// @Summary System status
// @Description Last snapshot of simulated host metrics and probed components. Stale when the last refresh did not complete.
// @Tags System
// @Produce json
// @Success 200 {object} domain.SystemStatus
// @Failure 401 {object} domain.APIError
// @Security BearerAuth
// @Router /system/status [get]
func (h *SystemStatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.source.Snapshot())
}
