package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/straye-as/finance-dashboard/internal/domain"
	"github.com/straye-as/finance-dashboard/internal/identity"
	"go.uber.org/zap"
)

// IdentityHandler serves the password reset and email change flows
type IdentityHandler struct {
	passwordReset *identity.PasswordResetService
	emailChange   *identity.EmailChangeService
	logger        *zap.Logger
}

// NewIdentityHandler creates a new IdentityHandler
func NewIdentityHandler(passwordReset *identity.PasswordResetService, emailChange *identity.EmailChangeService, logger *zap.Logger) *IdentityHandler {
	return &IdentityHandler{
		passwordReset: passwordReset,
		emailChange:   emailChange,
		logger:        logger,
	}
}

// StartPasswordReset godoc
// @Summary Start password reset
// @Description Sends a 6-digit code to the email address
// @Tags Identity
// @Accept json
// @Produce json
// @Param request body domain.StartPasswordResetRequest true "Account email"
// @Success 201 {object} domain.FlowDTO
// @Failure 400 {object} domain.APIError
// @Failure 422 {object} domain.APIError
// @Router /auth/password-reset [post]
func (h *IdentityHandler) StartPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req domain.StartPasswordResetRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	flow, err := h.passwordReset.Start(r.Context(), req.Email)
	if err != nil {
		respondServiceError(w, h.logger, err, "start password reset")
		return
	}
	respondJSON(w, http.StatusCreated, flow)
}

// ResendPasswordReset godoc
// @Summary Resend password reset code
// @Tags Identity
// @Produce json
// @Param flowId path string true "Flow ID"
// @Success 200 {object} domain.FlowDTO
// @Failure 404 {object} domain.APIError
// @Failure 429 {object} domain.APIError
// @Router /auth/password-reset/{flowId}/resend [post]
func (h *IdentityHandler) ResendPasswordReset(w http.ResponseWriter, r *http.Request) {
	flow, err := h.passwordReset.Resend(r.Context(), chi.URLParam(r, "flowId"))
	if err != nil {
		respondServiceError(w, h.logger, err, "resend password reset code")
		return
	}
	respondJSON(w, http.StatusOK, flow)
}

// VerifyPasswordReset godoc
// @Summary Verify password reset code
// @Tags Identity
// @Accept json
// @Produce json
// @Param flowId path string true "Flow ID"
// @Param request body domain.VerifyCodeRequest true "Code"
// @Success 200 {object} domain.FlowDTO
// @Failure 400 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 422 {object} domain.APIError
// @Router /auth/password-reset/{flowId}/verify [post]
func (h *IdentityHandler) VerifyPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyCodeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	flow, err := h.passwordReset.Verify(r.Context(), chi.URLParam(r, "flowId"), req.Code)
	if err != nil {
		respondServiceError(w, h.logger, err, "verify password reset code")
		return
	}
	respondJSON(w, http.StatusOK, flow)
}

// CompletePasswordReset godoc
// @Summary Set the new password
// @Tags Identity
// @Accept json
// @Produce json
// @Param flowId path string true "Flow ID"
// @Param request body domain.CompletePasswordResetRequest true "New password"
// @Success 200 {object} domain.FlowDTO
// @Failure 400 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Router /auth/password-reset/{flowId}/complete [post]
func (h *IdentityHandler) CompletePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req domain.CompletePasswordResetRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	flow, err := h.passwordReset.Complete(r.Context(), chi.URLParam(r, "flowId"), req.Password, req.PasswordConfirmation)
	if err != nil {
		respondServiceError(w, h.logger, err, "reset password")
		return
	}
	respondJSON(w, http.StatusOK, flow)
}

// StartEmailChange godoc
// @Summary Start email change
// @Description Sends a 6-digit code to the new address
// @Tags Identity
// @Accept json
// @Produce json
// @Param request body domain.StartEmailChangeRequest true "New email and current password"
// @Success 201 {object} domain.FlowDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 422 {object} domain.APIError
// @Security BearerAuth
// @Router /profile/email-change [post]
func (h *IdentityHandler) StartEmailChange(w http.ResponseWriter, r *http.Request) {
	var req domain.StartEmailChangeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	flow, err := h.emailChange.Start(r.Context(), req.NewEmail, req.CurrentPassword)
	if err != nil {
		respondServiceError(w, h.logger, err, "start email change")
		return
	}
	respondJSON(w, http.StatusCreated, flow)
}

// ResendEmailChange godoc
// @Summary Resend email change code
// @Tags Identity
// @Accept json
// @Produce json
// @Param flowId path string true "Flow ID"
// @Param request body domain.ResendEmailChangeRequest true "Current password"
// @Success 200 {object} domain.FlowDTO
// @Failure 404 {object} domain.APIError
// @Failure 429 {object} domain.APIError
// @Security BearerAuth
// @Router /profile/email-change/{flowId}/resend [post]
func (h *IdentityHandler) ResendEmailChange(w http.ResponseWriter, r *http.Request) {
	var req domain.ResendEmailChangeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	flow, err := h.emailChange.Resend(r.Context(), chi.URLParam(r, "flowId"), req.CurrentPassword)
	if err != nil {
		respondServiceError(w, h.logger, err, "resend email change code")
		return
	}
	respondJSON(w, http.StatusOK, flow)
}

// ConfirmEmailChange godoc
// @Summary Confirm email change
// @Tags Identity
// @Accept json
// @Produce json
// @Param flowId path string true "Flow ID"
// @Param request body domain.VerifyCodeRequest true "Code"
// @Success 200 {object} domain.FlowDTO
// @Failure 400 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 422 {object} domain.APIError
// @Security BearerAuth
// @Router /profile/email-change/{flowId}/confirm [post]
func (h *IdentityHandler) ConfirmEmailChange(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyCodeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	flow, err := h.emailChange.Confirm(r.Context(), chi.URLParam(r, "flowId"), req.Code)
	if err != nil {
		respondServiceError(w, h.logger, err, "confirm email change")
		return
	}
	respondJSON(w, http.StatusOK, flow)
}
