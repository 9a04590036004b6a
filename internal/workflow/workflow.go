// Package workflow holds the invoice status machine: the legal transitions, the
// permission guard of each transition and the payload each one requires.
// Everything here is pure; the invoice store remains the authority.
package workflow

import (
	"errors"
	"fmt"

	"github.com/straye-as/finance-dashboard/internal/domain"
)

// Action is a named operation on an invoice
type Action string

const (
	ActionSubmit   Action = "submit"
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionMarkPaid Action = "mark_paid"
	ActionEdit     Action = "edit"
)

// Input names of the payload fields an action requires
const (
	InputRejectionReason  = "rejection_reason"
	InputPaymentReference = "payment_reference"
	InputPaymentMethod    = "payment_method"
	InputPaymentNotes     = "payment_notes"
	InputInvoiceAmount    = "invoice_amount"
	InputInvoiceDate      = "invoice_date"
)

var (
	// ErrUnknownAction is returned for an action outside the action set
	ErrUnknownAction = errors.New("unknown invoice action")
	// ErrInvalidTransition is returned when the action is not legal from the current status
	ErrInvalidTransition = errors.New("action not available for invoice status")
	// ErrPermissionDenied is returned when the caller lacks the guard permission
	ErrPermissionDenied = errors.New("missing permission for invoice action")
)

// TransitionError explains why an action was refused before any request was made
type TransitionError struct {
	Action Action
	Status domain.InvoiceStatus
	Err    error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s (status %s)", e.Err, e.Action, e.Status)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// Transition is one row of the transition table
type Transition struct {
	Action     Action
	From       domain.InvoiceStatus
	To         domain.InvoiceStatus
	Permission domain.PermissionType
	Inputs     []string
}

var transitions = []Transition{
	{
		Action:     ActionSubmit,
		From:       domain.InvoiceStatusTaxGenerated,
		To:         domain.InvoiceStatusSubmitted,
		Permission: domain.PermissionSubmitInvoice,
	},
	{
		Action:     ActionApprove,
		From:       domain.InvoiceStatusSubmitted,
		To:         domain.InvoiceStatusApproved,
		Permission: domain.PermissionApproveInvoice,
	},
	{
		Action:     ActionReject,
		From:       domain.InvoiceStatusSubmitted,
		To:         domain.InvoiceStatusRejected,
		Permission: domain.PermissionRejectInvoice,
		Inputs:     []string{InputRejectionReason},
	},
	{
		Action:     ActionReject,
		From:       domain.InvoiceStatusApproved,
		To:         domain.InvoiceStatusRejected,
		Permission: domain.PermissionRejectInvoice,
		Inputs:     []string{InputRejectionReason},
	},
	{
		Action:     ActionMarkPaid,
		From:       domain.InvoiceStatusApproved,
		To:         domain.InvoiceStatusPaid,
		Permission: domain.PermissionMarkPaid,
		Inputs:     []string{InputPaymentReference, InputPaymentMethod, InputPaymentNotes},
	},
	{
		Action:     ActionEdit,
		From:       domain.InvoiceStatusDraft,
		To:         domain.InvoiceStatusDraft,
		Permission: domain.PermissionEditInvoice,
		Inputs:     []string{InputInvoiceAmount, InputInvoiceDate},
	},
}

var actionLabels = map[Action]string{
	ActionSubmit:   "Submit to Finance",
	ActionApprove:  "Approve",
	ActionReject:   "Reject",
	ActionMarkPaid: "Record Payment",
	ActionEdit:     "Edit Invoice",
}

// AllActions returns every action in display order
func AllActions() []Action {
	return []Action{ActionSubmit, ActionApprove, ActionReject, ActionMarkPaid, ActionEdit}
}

// IsValid checks if the action is one of the known actions
func (a Action) IsValid() bool {
	_, ok := actionLabels[a]
	return ok
}

// Label is the button text of the action
func (a Action) Label() string {
	return actionLabels[a]
}

// Permission returns the guard permission of the action
func (a Action) Permission() domain.PermissionType {
	for _, t := range transitions {
		if t.Action == a {
			return t.Permission
		}
	}
	return ""
}

// Transitions returns a copy of the transition table
func Transitions() []Transition {
	out := make([]Transition, len(transitions))
	for i, t := range transitions {
		t.Inputs = append([]string(nil), t.Inputs...)
		out[i] = t
	}
	return out
}

// CanSubmitInvoice guards Tax Generated -> Submitted
func CanSubmitInvoice(perms domain.PermissionSet) bool {
	return perms.Has(domain.PermissionSubmitInvoice)
}

// CanApproveInvoice guards Submitted -> Approved
func CanApproveInvoice(perms domain.PermissionSet) bool {
	return perms.Has(domain.PermissionApproveInvoice)
}

// CanRejectInvoice guards Submitted/Approved -> Rejected
func CanRejectInvoice(perms domain.PermissionSet) bool {
	return perms.Has(domain.PermissionRejectInvoice)
}

// CanMarkPaid guards Approved -> Paid
func CanMarkPaid(perms domain.PermissionSet) bool {
	return perms.Has(domain.PermissionMarkPaid)
}

// CanEditInvoice guards the in-place Draft edit
func CanEditInvoice(perms domain.PermissionSet) bool {
	return perms.Has(domain.PermissionEditInvoice)
}

// guard returns the predicate for an action
func guard(a Action) func(domain.PermissionSet) bool {
	switch a {
	case ActionSubmit:
		return CanSubmitInvoice
	case ActionApprove:
		return CanApproveInvoice
	case ActionReject:
		return CanRejectInvoice
	case ActionMarkPaid:
		return CanMarkPaid
	case ActionEdit:
		return CanEditInvoice
	}
	return func(domain.PermissionSet) bool { return false }
}

// ActionSet is the ordered set of actions offered for an invoice
type ActionSet []Action

// Contains reports whether the action is in the set
func (s ActionSet) Contains(a Action) bool {
	for _, x := range s {
		if x == a {
			return true
		}
	}
	return false
}

// Actions returns exactly the actions whose transition leaves status and whose guard
// holds for perms.
func Actions(status domain.InvoiceStatus, perms domain.PermissionSet) ActionSet {
	set := ActionSet{}
	for _, t := range transitions {
		if t.From != status || set.Contains(t.Action) {
			continue
		}
		if guard(t.Action)(perms) {
			set = append(set, t.Action)
		}
	}
	return set
}

// CheckAction resolves the transition for action from status, or explains why it is refused.
// A missing transition is reported before a missing permission.
func CheckAction(status domain.InvoiceStatus, perms domain.PermissionSet, action Action) (Transition, error) {
	if !action.IsValid() {
		return Transition{}, &TransitionError{Action: action, Status: status, Err: ErrUnknownAction}
	}
	for _, t := range transitions {
		if t.Action != action || t.From != status {
			continue
		}
		if !guard(action)(perms) {
			return Transition{}, &TransitionError{Action: action, Status: status, Err: ErrPermissionDenied}
		}
		return t, nil
	}
	return Transition{}, &TransitionError{Action: action, Status: status, Err: ErrInvalidTransition}
}

// TargetStatus returns the status an action leads to from status
func TargetStatus(from domain.InvoiceStatus, action Action) (domain.InvoiceStatus, bool) {
	for _, t := range transitions {
		if t.Action == action && t.From == from {
			return t.To, true
		}
	}
	return "", false
}

// RequiredInputs returns the payload fields the action needs
func RequiredInputs(action Action) []string {
	for _, t := range transitions {
		if t.Action == action {
			return append([]string(nil), t.Inputs...)
		}
	}
	return nil
}
