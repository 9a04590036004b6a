package workflow

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/straye-as/finance-dashboard/internal/domain"
)

const (
	// MinRejectionReasonLength is the shortest rejection reason accepted before submission
	MinRejectionReasonLength = 10
	// OTPCodeLength is the number of digits of a one-time code
	OTPCodeLength = 6
	// MinPasswordLength mirrors the password rule of the identity endpoints
	MinPasswordLength = 8
)

// ValidationError lists the fields that failed local validation.
// No request is sent when one is returned.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// add records a field error
func (e *ValidationError) add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = message
}

// orNil returns nil when no field failed
func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// ValidateRejection checks the rejection reason and returns it trimmed
func ValidateRejection(reason string) (string, error) {
	reason = strings.TrimSpace(reason)
	verr := &ValidationError{}
	switch {
	case reason == "":
		verr.add(InputRejectionReason, "Rejection reason is required")
	case utf8.RuneCountInString(reason) < MinRejectionReasonLength:
		verr.add(InputRejectionReason, "Rejection reason must be at least 10 characters")
	}
	if err := verr.orNil(); err != nil {
		return "", err
	}
	return reason, nil
}

// ValidatePayment checks the payment details recorded when marking an invoice paid
func ValidatePayment(reference, method, notes string) (domain.PaymentDetails, error) {
	p := domain.PaymentDetails{
		Reference: strings.TrimSpace(reference),
		Method:    strings.TrimSpace(method),
		Notes:     strings.TrimSpace(notes),
	}
	verr := &ValidationError{}
	if p.Reference == "" {
		verr.add(InputPaymentReference, "Payment reference is required")
	}
	if p.Method == "" {
		verr.add(InputPaymentMethod, "Payment method is required")
	}
	if err := verr.orNil(); err != nil {
		return domain.PaymentDetails{}, err
	}
	return p, nil
}

// ValidateEdit checks the editable fields of a draft invoice.
// An empty amount is sent as 0, matching what the edit form has always submitted.
func ValidateEdit(amount, date string) (domain.InvoiceEdit, error) {
	var edit domain.InvoiceEdit
	verr := &ValidationError{}

	amount = strings.TrimSpace(amount)
	if amount == "" {
		edit.Amount = decimal.Zero
	} else {
		parsed, err := decimal.NewFromString(amount)
		switch {
		case err != nil:
			verr.add(InputInvoiceAmount, "Invoice amount must be a number")
		case parsed.IsNegative():
			verr.add(InputInvoiceAmount, "Invoice amount cannot be negative")
		default:
			edit.Amount = parsed
		}
	}

	date = strings.TrimSpace(date)
	if date == "" {
		verr.add(InputInvoiceDate, "Invoice date is required")
	} else {
		parsed, err := domain.ParseDate(date)
		if err != nil {
			verr.add(InputInvoiceDate, "Invoice date must be a valid date (YYYY-MM-DD)")
		} else {
			edit.Date = parsed
		}
	}

	if err := verr.orNil(); err != nil {
		return domain.InvoiceEdit{}, err
	}
	return edit, nil
}

// ValidateOTPCode checks that code is exactly six digits and returns it trimmed
func ValidateOTPCode(code string) (string, error) {
	code = strings.TrimSpace(code)
	verr := &ValidationError{}
	if len(code) != OTPCodeLength || strings.IndexFunc(code, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		verr.add("code", "Verification code must be 6 digits")
	}
	if err := verr.orNil(); err != nil {
		return "", err
	}
	return code, nil
}

// ValidateNewPassword checks the new password against its confirmation
func ValidateNewPassword(password, confirmation string) error {
	verr := &ValidationError{}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		verr.add("password", "Password must be at least 8 characters")
	}
	if password != confirmation {
		verr.add("password_confirmation", "Passwords do not match")
	}
	return verr.orNil()
}
