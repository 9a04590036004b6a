package handler

import (
	"net/http"
	"strings"

	"github.com/straye-as/finance-dashboard/internal/domain"
	"github.com/straye-as/finance-dashboard/internal/service"
	"github.com/straye-as/finance-dashboard/internal/workflow"
	"go.uber.org/zap"
)

// InvoiceHandler serves the invoice workflow
type InvoiceHandler struct {
	workflowService *service.InvoiceWorkflowService
	logger          *zap.Logger
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(workflowService *service.InvoiceWorkflowService, logger *zap.Logger) *InvoiceHandler {
	return &InvoiceHandler{
		workflowService: workflowService,
		logger:          logger,
	}
}

// List godoc
// @Summary List invoices
// @Description Paginated invoices, each with the actions the caller may trigger
// @Tags Invoices
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Items per page (max 100)" default(15)
// @Param status query string false "Filter by status" Enums(Draft, Tax Generated, Submitted, Approved, Rejected, Paid)
// @Param search query string false "Search invoice number or customer"
// @Success 200 {object} domain.PaginatedResponse{data=[]domain.InvoiceViewDTO}
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Security BearerAuth
// @Router /invoices [get]
func (h *InvoiceHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := domain.ListInvoicesFilter{Search: strings.TrimSpace(r.URL.Query().Get("search"))}
	filter.Page, filter.PageSize = parsePagination(r)

	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := domain.ParseInvoiceStatus(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid status: "+raw)
			return
		}
		filter.Status = status
	}

	result, err := h.workflowService.List(r.Context(), filter)
	if err != nil {
		respondServiceError(w, h.logger, err, "list invoices")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Get godoc
// @Summary Get invoice
// @Tags Invoices
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {object} domain.InvoiceViewDTO
// @Failure 401 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Router /invoices/{id} [get]
func (h *InvoiceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := invoiceID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid invoice ID")
		return
	}
	view, err := h.workflowService.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, err, "get invoice")
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// Actions godoc
// @Summary Available actions
// @Description The actions offered for the invoice's status and the caller's permissions
// @Tags Invoices
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {array} domain.InvoiceActionDTO
// @Failure 401 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Router /invoices/{id}/actions [get]
func (h *InvoiceHandler) Actions(w http.ResponseWriter, r *http.Request) {
	id, ok := invoiceID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid invoice ID")
		return
	}
	actions, err := h.workflowService.Actions(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, err, "get invoice actions")
		return
	}
	respondJSON(w, http.StatusOK, actions)
}

// AuditTrail godoc
// @Summary Invoice audit trail
// @Tags Invoices
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {object} domain.AuditTrailDTO
// @Failure 401 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Router /invoices/{id}/audit-trail [get]
func (h *InvoiceHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	id, ok := invoiceID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid invoice ID")
		return
	}
	trail, err := h.workflowService.AuditTrail(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, err, "get audit trail")
		return
	}
	respondJSON(w, http.StatusOK, trail)
}

// Submit godoc
// @Summary Submit to finance
// @Description Tax Generated → Submitted
// @Tags Invoices
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {object} domain.InvoiceViewDTO
// @Failure 403 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Failure 502 {object} domain.APIError
// @Security BearerAuth
// @Router /invoices/{id}/submit-to-finance [post]
func (h *InvoiceHandler) Submit(w http.ResponseWriter, r *http.Request) {
	h.perform(w, r, service.ActionInput{Action: workflow.ActionSubmit})
}

// Approve godoc
// @Summary Approve invoice
// @Description Submitted → Approved
// @Tags Invoices
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {object} domain.InvoiceViewDTO
// @Failure 403 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Router /invoices/{id}/approve [post]
func (h *InvoiceHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.perform(w, r, service.ActionInput{Action: workflow.ActionApprove})
}

// Reject godoc
// @Summary Reject invoice
// @Description Submitted or Approved → Rejected. The reason must be at least 10 characters.
// @Tags Invoices
// @Accept json
// @Produce json
// @Param id path string true "Invoice ID"
// @Param request body domain.RejectInvoiceRequest true "Rejection reason"
// @Success 200 {object} domain.InvoiceViewDTO
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Router /invoices/{id}/reject [post]
func (h *InvoiceHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req domain.RejectInvoiceRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	h.perform(w, r, service.ActionInput{Action: workflow.ActionReject, RejectionReason: req.RejectionReason})
}

// MarkPaid godoc
// @Summary Mark invoice paid
// @Description Approved → Paid. Payment reference and method are required.
// @Tags Invoices
// @Accept json
// @Produce json
// @Param id path string true "Invoice ID"
// @Param request body domain.MarkPaidRequest true "Payment details"
// @Success 200 {object} domain.InvoiceViewDTO
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Router /invoices/{id}/mark-paid [post]
func (h *InvoiceHandler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	var req domain.MarkPaidRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	h.perform(w, r, service.ActionInput{
		Action:           workflow.ActionMarkPaid,
		PaymentReference: req.PaymentReference,
		PaymentMethod:    req.PaymentMethod,
		PaymentNotes:     req.PaymentNotes,
	})
}

// Update godoc
// @Summary Edit draft invoice
// @Description Changes amount and date of a Draft invoice. An empty amount is sent as 0.
// @Tags Invoices
// @Accept json
// @Produce json
// @Param id path string true "Invoice ID"
// @Param request body domain.UpdateInvoiceRequest true "Editable fields"
// @Success 200 {object} domain.InvoiceViewDTO
// @Failure 400 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Router /invoices/{id} [put]
func (h *InvoiceHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateInvoiceRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	h.perform(w, r, service.ActionInput{
		Action:        workflow.ActionEdit,
		InvoiceAmount: string(req.InvoiceAmount),
		InvoiceDate:   req.InvoiceDate,
	})
}

func (h *InvoiceHandler) perform(w http.ResponseWriter, r *http.Request, input service.ActionInput) {
	id, ok := invoiceID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid invoice ID")
		return
	}
	view, err := h.workflowService.Perform(r.Context(), id, input)
	if err != nil {
		respondServiceError(w, h.logger, err, string(input.Action)+" invoice")
		return
	}
	respondJSON(w, http.StatusOK, view)
}
