package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Common
// ============================================================================

// PaginatedResponse wraps a page of results
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"pageSize"`
	TotalPages int         `json:"totalPages"`
}

// NewPaginatedResponse computes the page count for a result page
func NewPaginatedResponse(data interface{}, total int64, page, pageSize int) PaginatedResponse {
	totalPages := 0
	if pageSize > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return PaginatedResponse{
		Data:       data,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}
}

// ListInvoicesFilter narrows an invoice listing
type ListInvoicesFilter struct {
	Page     int
	PageSize int
	Status   InvoiceStatus
	Search   string
}

// InvoicePage is one page of invoices from the invoice store
type InvoicePage struct {
	Invoices []Invoice
	Total    int64
	Page     int
	PageSize int
}

// ============================================================================
// Auth
// ============================================================================

// LoginRequest carries the dashboard credentials
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required"`
}

// UpstreamLogin is what the remote API returns for a successful login
type UpstreamLogin struct {
	Token string      `json:"token"`
	User  SessionUser `json:"user"`
}

// SessionResponse is returned by login and refresh
type SessionResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expiresAt"`
	User      SessionUserDTO `json:"user"`
}

// SessionUserDTO is the session user as seen by the browser
type SessionUserDTO struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	Permissions []string `json:"permissions"`
}

// ============================================================================
// Invoice workflow
// ============================================================================

// AmountInput is a user-entered amount. Browsers send it either as a JSON number
// or as the raw text of the input field, which may be empty.
type AmountInput string

// UnmarshalJSON accepts strings, numbers and null
func (a *AmountInput) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = AmountInput(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("amount must be a number or string: %w", err)
	}
	*a = AmountInput(n.String())
	return nil
}

// RejectInvoiceRequest carries the reason for a rejection
type RejectInvoiceRequest struct {
	RejectionReason string `json:"rejection_reason" validate:"max=2000"`
}

// MarkPaidRequest carries the payment details recorded with a payment
type MarkPaidRequest struct {
	PaymentReference string `json:"payment_reference" validate:"max=255"`
	PaymentMethod    string `json:"payment_method" validate:"max=100"`
	PaymentNotes     string `json:"payment_notes" validate:"max=2000"`
}

// UpdateInvoiceRequest carries the editable fields of a draft invoice
type UpdateInvoiceRequest struct {
	InvoiceAmount AmountInput `json:"invoice_amount"`
	InvoiceDate   string      `json:"invoice_date"`
}

// InvoiceActionDTO describes one action the caller may trigger
type InvoiceActionDTO struct {
	Action         string   `json:"action"`
	Label          string   `json:"label"`
	TargetStatus   string   `json:"targetStatus"`
	RequiredInputs []string `json:"requiredInputs"`
}

// InvoiceViewDTO is an invoice together with the actions offered to the caller
type InvoiceViewDTO struct {
	Invoice  Invoice            `json:"invoice"`
	Actions  []InvoiceActionDTO `json:"actions"`
	Editable bool               `json:"editable"`
}

// AuditTrailDTO is the ordered transition history of an invoice
type AuditTrailDTO struct {
	InvoiceID string            `json:"invoiceId"`
	Entries   []AuditTrailEntry `json:"entries"`
}

// ActionLogDTO is the API representation of an action log entry
type ActionLogDTO struct {
	ID            uuid.UUID `json:"id"`
	UserID        string    `json:"userId"`
	UserName      string    `json:"userName"`
	InvoiceID     string    `json:"invoiceId"`
	InvoiceNumber string    `json:"invoiceNumber,omitempty"`
	Action        string    `json:"action"`
	FromStatus    string    `json:"fromStatus,omitempty"`
	ToStatus      string    `json:"toStatus,omitempty"`
	Outcome       string    `json:"outcome"`
	Message       string    `json:"message,omitempty"`
	RequestID     string    `json:"requestId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ============================================================================
// Identity flows
// ============================================================================

// StartPasswordResetRequest starts a password reset for an email address
type StartPasswordResetRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
}

// VerifyCodeRequest carries a one-time code
type VerifyCodeRequest struct {
	Code string `json:"code"`
}

// CompletePasswordResetRequest carries the new password
type CompletePasswordResetRequest struct {
	Password             string `json:"password" validate:"required"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required"`
}

// StartEmailChangeRequest starts an email change for the signed-in user
type StartEmailChangeRequest struct {
	NewEmail        string `json:"new_email" validate:"required,email,max=255"`
	CurrentPassword string `json:"current_password" validate:"required"`
}

// ResendEmailChangeRequest repeats the password the API asks for on every code request
type ResendEmailChangeRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
}

// FlowDTO reports the state of an OTP-gated identity flow
type FlowDTO struct {
	FlowID               string `json:"flowId"`
	Kind                 string `json:"kind"`
	State                string `json:"state"`
	Destination          string `json:"destination"`
	ResendAvailableInSec int    `json:"resendAvailableInSec"`
}

// ============================================================================
// Notifications
// ============================================================================

// UnreadCountDTO is the unread notification badge value
type UnreadCountDTO struct {
	Count int `json:"count"`
}

// NotificationPage is one page of the notification feed
type NotificationPage struct {
	Notifications []Notification
	Total         int64
	Page          int
	PageSize      int
}
