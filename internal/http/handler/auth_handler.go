package handler

import (
	"net/http"

	"github.com/straye-as/finance-dashboard/internal/domain"
	"github.com/straye-as/finance-dashboard/internal/service"
	"go.uber.org/zap"
)

// AuthHandler opens, refreshes and closes dashboard sessions
type AuthHandler struct {
	sessionService *service.SessionService
	logger         *zap.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(sessionService *service.SessionService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		sessionService: sessionService,
		logger:         logger,
	}
}

// Login godoc
// @Summary Log in
// @Description Authenticate against the finance API and open a dashboard session
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body domain.LoginRequest true "Credentials"
// @Success 200 {object} domain.SessionResponse
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 502 {object} domain.APIError
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	resp, err := h.sessionService.Login(r.Context(), req)
	if err != nil {
		respondServiceError(w, h.logger, err, "log in")
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// Refresh godoc
// @Summary Refresh session
// @Description Re-read the user and permissions from the finance API and issue a new session token
// @Tags Auth
// @Produce json
// @Success 200 {object} domain.SessionResponse
// @Failure 401 {object} domain.APIError
// @Security BearerAuth
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	resp, err := h.sessionService.Refresh(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, err, "refresh session")
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// Logout godoc
// @Summary Log out
// @Tags Auth
// @Success 204
// @Failure 401 {object} domain.APIError
// @Security BearerAuth
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessionService.Logout(r.Context()); err != nil {
		respondServiceError(w, h.logger, err, "log out")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me godoc
// @Summary Current user
// @Description The session user with the permission set fetched at session load
// @Tags Auth
// @Produce json
// @Success 200 {object} domain.SessionUserDTO
// @Failure 401 {object} domain.APIError
// @Security BearerAuth
// @Router /auth/me [get]
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	me, err := h.sessionService.Me(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, err, "get current user")
		return
	}
	respondJSON(w, http.StatusOK, me)
}
