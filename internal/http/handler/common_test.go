package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/straye-as/finance-dashboard/internal/apiclient"
	"github.com/straye-as/finance-dashboard/internal/domain"
	"github.com/straye-as/finance-dashboard/internal/identity"
	"github.com/straye-as/finance-dashboard/internal/service"
	"github.com/straye-as/finance-dashboard/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRespondServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
		wantDetail string
	}{
		{
			name:       "validation",
			err:        &workflow.ValidationError{Fields: map[string]string{"payment_reference": "Payment reference is required"}},
			wantStatus: http.StatusBadRequest,
			wantType:   domain.ErrorTypeValidation,
		},
		{
			name:       "permission denied",
			err:        &workflow.TransitionError{Action: workflow.ActionApprove, Err: workflow.ErrPermissionDenied},
			wantStatus: http.StatusForbidden,
			wantType:   domain.ErrorTypeForbidden,
		},
		{
			name:       "invalid transition",
			err:        &workflow.TransitionError{Action: workflow.ActionApprove, Status: domain.InvoiceStatusPaid, Err: workflow.ErrInvalidTransition},
			wantStatus: http.StatusConflict,
			wantType:   domain.ErrorTypeConflict,
		},
		{
			name:       "action in progress",
			err:        service.ErrActionInProgress,
			wantStatus: http.StatusConflict,
			wantType:   domain.ErrorTypeConflict,
		},
		{
			name:       "upstream business rule",
			err:        fmt.Errorf("approve: %w", &apiclient.APIError{StatusCode: http.StatusUnprocessableEntity, Message: "Invoice already approved by another user."}),
			wantStatus: http.StatusUnprocessableEntity,
			wantType:   domain.ErrorTypeBadRequest,
			wantDetail: "Invoice already approved by another user.",
		},
		{
			name:       "upstream forbidden",
			err:        &apiclient.APIError{StatusCode: http.StatusForbidden, Message: "This action is unauthorized."},
			wantStatus: http.StatusForbidden,
			wantType:   domain.ErrorTypeForbidden,
			wantDetail: "This action is unauthorized.",
		},
		{
			name:       "transport",
			err:        &apiclient.TransportError{Op: "GET invoices/1", Err: errors.New("connection refused")},
			wantStatus: http.StatusBadGateway,
			wantType:   domain.ErrorTypeUpstream,
			wantDetail: apiclient.GenericTransportMessage,
		},
		{
			name:       "flow not found",
			err:        identity.ErrFlowNotFound,
			wantStatus: http.StatusNotFound,
			wantType:   domain.ErrorTypeNotFound,
		},
		{
			name:       "invalid verification code",
			err:        identity.ErrInvalidCode,
			wantStatus: http.StatusUnprocessableEntity,
			wantType:   domain.ErrorTypeBadRequest,
			wantDetail: "The code is invalid or has expired.",
		},
		{
			name:       "cooldown",
			err:        &identity.CooldownError{Remaining: 12 * time.Second},
			wantStatus: http.StatusTooManyRequests,
			wantType:   domain.ErrorTypeRateLimited,
			wantDetail: "a new code can be requested in 12 seconds",
		},
		{
			name:       "unauthorized",
			err:        service.ErrUnauthorized,
			wantStatus: http.StatusUnauthorized,
			wantType:   domain.ErrorTypeUnauthorized,
		},
		{
			name:       "unexpected",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantType:   domain.ErrorTypeInternal,
			wantDetail: "Failed to do things",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			respondServiceError(rec, zap.NewNop(), tt.err, "do things")

			assert.Equal(t, tt.wantStatus, rec.Code)
			var problem domain.APIError
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&problem))
			assert.Equal(t, tt.wantType, problem.Type)
			assert.Equal(t, tt.wantStatus, problem.Status)
			if tt.wantDetail != "" {
				assert.Equal(t, tt.wantDetail, problem.Detail)
			}
		})
	}
}

func TestRespondServiceError_CooldownRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	respondServiceError(rec, zap.NewNop(), &identity.CooldownError{Remaining: 1500 * time.Millisecond}, "resend")
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
}

func TestRespondServiceError_UpstreamFieldErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	respondServiceError(rec, zap.NewNop(), &apiclient.APIError{
		StatusCode: http.StatusUnprocessableEntity,
		Message:    "The given data was invalid.",
		Errors:     map[string]string{"invoice_date": "The invoice date is not a valid date."},
	}, "edit invoice")

	var problem domain.APIError
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&problem))
	assert.Equal(t, domain.ErrorTypeValidation, problem.Type)
	assert.Equal(t, "The invoice date is not a valid date.", problem.Errors["invoice_date"])
}

func TestValidatorUsesJSONNames(t *testing.T) {
	err := validate.Struct(domain.StartEmailChangeRequest{NewEmail: "nope"})
	rec := httptest.NewRecorder()
	respondValidationError(rec, err)

	var problem domain.APIError
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&problem))
	assert.Equal(t, "Must be a valid email address", problem.Errors["new_email"])
	assert.Equal(t, "current_password is required", problem.Errors["current_password"])
}
