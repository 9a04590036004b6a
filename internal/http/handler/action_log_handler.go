package handler

import (
	"net/http"
	"time"

	"github.com/straye-as/finance-dashboard/internal/auth"
	"github.com/straye-as/finance-dashboard/internal/domain"
	"github.com/straye-as/finance-dashboard/internal/repository"
	"github.com/straye-as/finance-dashboard/internal/service"
	"go.uber.org/zap"
)

// ActionLogHandler serves the local log of workflow attempts
type ActionLogHandler struct {
	actionLogService *service.ActionLogService
	logger           *zap.Logger
}

// NewActionLogHandler creates a new ActionLogHandler
func NewActionLogHandler(actionLogService *service.ActionLogService, logger *zap.Logger) *ActionLogHandler {
	return &ActionLogHandler{
		actionLogService: actionLogService,
		logger:           logger,
	}
}

// List godoc
// @Summary List action logs
// @Description Workflow attempts made through the dashboard, newest first. Users without approve-invoice only see their own.
// @Tags Action Logs
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Items per page (max 100)" default(15)
// @Param userId query string false "Filter by user"
// @Param invoiceId query string false "Filter by invoice"
// @Param action query string false "Filter by action" Enums(submit, approve, reject, mark_paid, edit)
// @Param outcome query string false "Filter by outcome" Enums(succeeded, failed, blocked)
// @Param startTime query string false "Entries at or after (RFC3339)"
// @Param endTime query string false "Entries at or before (RFC3339)"
// @Success 200 {object} domain.PaginatedResponse{data=[]domain.ActionLogDTO}
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Security BearerAuth
// @Router /action-logs [get]
func (h *ActionLogHandler) List(w http.ResponseWriter, r *http.Request) {
	userCtx, ok := auth.FromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	q := r.URL.Query()
	filter := &repository.ActionLogFilter{
		UserID:    q.Get("userId"),
		InvoiceID: q.Get("invoiceId"),
		Action:    q.Get("action"),
	}
	if !userCtx.HasPermission(domain.PermissionApproveInvoice) {
		filter.UserID = userCtx.UserID.String()
	}

	if raw := q.Get("outcome"); raw != "" {
		outcome := domain.ActionOutcome(raw)
		switch outcome {
		case domain.ActionOutcomeSucceeded, domain.ActionOutcomeFailed, domain.ActionOutcomeBlocked:
			filter.Outcome = &outcome
		default:
			respondWithError(w, http.StatusBadRequest, "Invalid outcome: must be one of succeeded, failed, blocked")
			return
		}
	}

	var err error
	if filter.StartTime, err = parseTimeParam(q.Get("startTime")); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid startTime: must be RFC3339")
		return
	}
	if filter.EndTime, err = parseTimeParam(q.Get("endTime")); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid endTime: must be RFC3339")
		return
	}

	page, pageSize := parsePagination(r)
	result, err := h.actionLogService.List(r.Context(), filter, page, pageSize)
	if err != nil {
		respondServiceError(w, h.logger, err, "list action logs")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func parseTimeParam(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
