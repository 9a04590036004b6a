package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/straye-as/finance-dashboard/internal/apiclient"
	"github.com/straye-as/finance-dashboard/internal/domain"
	"github.com/straye-as/finance-dashboard/internal/identity"
	"github.com/straye-as/finance-dashboard/internal/service"
	"github.com/straye-as/finance-dashboard/internal/workflow"
	"go.uber.org/zap"
)

var validate = newValidator()

// newValidator reports fields under their JSON names
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// decodeAndValidate reads a JSON body into dst and runs its validator tags.
// It writes the error response itself and reports whether the caller may continue.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		respondValidationError(w, err)
		return false
	}
	return true
}

// respondValidationError sends a validation error with one message per failed field
func respondValidationError(w http.ResponseWriter, err error) {
	fields := make(map[string]string)
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			fields[fe.Field()] = formatValidationError(fe)
		}
	}
	respondFieldErrors(w, fields)
}

func respondFieldErrors(w http.ResponseWriter, fields map[string]string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(domain.APIError{
		Type:   domain.ErrorTypeValidation,
		Title:  "Validation Error",
		Status: http.StatusBadRequest,
		Detail: "One or more fields failed validation",
		Errors: fields,
	})
}

func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return "Must be a valid email address"
	case "max":
		return fmt.Sprintf("Must be at most %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("Must be at least %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("Must be one of: %s", fe.Param())
	default:
		return domain.GetValidationMessage(fe.Tag())
	}
}

// respondWithError sends a problem response with a generic type for status
func respondWithError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(domain.APIError{
		Type:   getErrorType(status),
		Title:  http.StatusText(status),
		Status: status,
		Detail: message,
	})
}

func getErrorType(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return domain.ErrorTypeBadRequest
	case http.StatusUnauthorized:
		return domain.ErrorTypeUnauthorized
	case http.StatusForbidden:
		return domain.ErrorTypeForbidden
	case http.StatusNotFound:
		return domain.ErrorTypeNotFound
	case http.StatusConflict:
		return domain.ErrorTypeConflict
	case http.StatusTooManyRequests:
		return domain.ErrorTypeRateLimited
	case http.StatusBadGateway:
		return domain.ErrorTypeUpstream
	default:
		return domain.ErrorTypeInternal
	}
}

// respondServiceError maps an error from the service layer to a response.
// Upstream messages are passed through verbatim; op names the operation in logs
// and in the fallback message.
func respondServiceError(w http.ResponseWriter, logger *zap.Logger, err error, op string) {
	var (
		validationErr *workflow.ValidationError
		cooldownErr   *identity.CooldownError
		transportErr  *apiclient.TransportError
	)

	switch {
	case errors.As(err, &validationErr):
		respondFieldErrors(w, validationErr.Fields)
	case errors.Is(err, workflow.ErrPermissionDenied):
		respondWithError(w, http.StatusForbidden, "You do not have permission to perform this action")
	case errors.Is(err, workflow.ErrInvalidTransition):
		respondWithError(w, http.StatusConflict, "This action is not available for the invoice's current status")
	case errors.Is(err, workflow.ErrUnknownAction):
		respondWithError(w, http.StatusBadRequest, "Unknown invoice action")
	case errors.Is(err, service.ErrActionInProgress):
		respondWithError(w, http.StatusConflict, "Another action is already in progress for this invoice")
	case errors.Is(err, service.ErrUnauthorized), errors.Is(err, identity.ErrUnauthenticated):
		respondWithError(w, http.StatusUnauthorized, "Authentication required")
	case errors.Is(err, identity.ErrFlowNotFound):
		respondWithError(w, http.StatusNotFound, "This verification request has expired. Please start again.")
	case errors.Is(err, identity.ErrInvalidCode):
		respondWithError(w, http.StatusUnprocessableEntity, "The code is invalid or has expired.")
	case errors.Is(err, identity.ErrInvalidState):
		respondWithError(w, http.StatusConflict, "This step is not available for the verification request")
	case errors.As(err, &cooldownErr):
		w.Header().Set("Retry-After", strconv.Itoa(int(cooldownErr.Remaining.Seconds()+0.999)))
		respondWithError(w, http.StatusTooManyRequests, cooldownErr.Error())
	case errors.As(err, &transportErr):
		logger.Warn("finance API unreachable", zap.String("op", op), zap.Error(err))
		respondWithError(w, http.StatusBadGateway, transportErr.UserMessage())
	default:
		if apiErr, ok := apiclient.AsAPIError(err); ok {
			respondUpstreamError(w, apiErr)
			return
		}
		logger.Error("failed to "+op, zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Failed to "+op)
	}
}

func respondUpstreamError(w http.ResponseWriter, apiErr *apiclient.APIError) {
	status := apiErr.StatusCode
	if status < 400 || status > 599 {
		status = http.StatusBadGateway
	}
	errType := getErrorType(status)
	if len(apiErr.Errors) > 0 {
		errType = domain.ErrorTypeValidation
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(domain.APIError{
		Type:   errType,
		Title:  http.StatusText(status),
		Status: status,
		Detail: apiErr.Message,
		Errors: apiErr.Errors,
	})
}

// parsePagination reads page and pageSize; the services clamp the values
func parsePagination(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	return page, pageSize
}

func invoiceID(r *http.Request) (domain.ID, bool) {
	id := domain.ID(strings.TrimSpace(chi.URLParam(r, "id")))
	return id, !id.IsZero()
}
