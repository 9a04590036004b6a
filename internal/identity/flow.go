// Package identity runs the OTP-gated password reset and email change flows.
// The remote API issues and checks the codes; this package only tracks where each
// flow stands and rate-limits resends.
package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// FlowKind distinguishes the identity flows
type FlowKind string

const (
	FlowKindPasswordReset FlowKind = "password_reset"
	FlowKindEmailChange   FlowKind = "email_change"
)

// FlowState is the step a flow is waiting on
type FlowState string

const (
	StateAwaitingRequest      FlowState = "awaiting_request"
	StateAwaitingVerification FlowState = "awaiting_verification"
	StateAwaitingCompletion   FlowState = "awaiting_completion"
	StateCompleted            FlowState = "completed"
)

var (
	// ErrFlowNotFound is returned for unknown, expired or foreign flows
	ErrFlowNotFound = errors.New("identity flow not found")
	// ErrInvalidState is returned when a step is attempted out of order
	ErrInvalidState = errors.New("identity flow is not at this step")
	// ErrUnauthenticated is returned when an email change runs without a session
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInvalidCode is returned when the API refuses a verification code
	ErrInvalidCode = errors.New("verification code is invalid or has expired")
)

// CooldownError is returned when a code is resent too early
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("a new code can be requested in %d seconds", seconds(e.Remaining))
}

// Flow is the state of one identity flow
type Flow struct {
	ID    string    `json:"id"`
	Kind  FlowKind  `json:"kind"`
	State FlowState `json:"state"`
	// Email is the account email for a reset and the new email for an email change
	Email  string `json:"email"`
	UserID string `json:"user_id,omitempty"`
	// Code is the verified code, kept for the final reset call
	Code       string    `json:"code,omitempty"`
	LastSentAt time.Time `json:"last_sent_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// Requested records that a code was sent
func (f *Flow) Requested(now time.Time, cooldown time.Duration) error {
	switch f.State {
	case StateAwaitingRequest:
	case StateAwaitingVerification:
		if remaining := f.ResendAvailableIn(now, cooldown); remaining > 0 {
			return &CooldownError{Remaining: remaining}
		}
	default:
		return fmt.Errorf("%w: cannot request a code while %s", ErrInvalidState, f.State)
	}
	f.State = StateAwaitingVerification
	f.LastSentAt = now
	return nil
}

// CanResend checks the resend cooldown without changing the flow
func (f *Flow) CanResend(now time.Time, cooldown time.Duration) error {
	if f.State != StateAwaitingVerification {
		return fmt.Errorf("%w: cannot resend while %s", ErrInvalidState, f.State)
	}
	if remaining := f.ResendAvailableIn(now, cooldown); remaining > 0 {
		return &CooldownError{Remaining: remaining}
	}
	return nil
}

// ResendAvailableIn is the time left before another code may be requested
func (f *Flow) ResendAvailableIn(now time.Time, cooldown time.Duration) time.Duration {
	if f.State != StateAwaitingVerification {
		return 0
	}
	remaining := f.LastSentAt.Add(cooldown).Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Verified moves a password reset on to completion, keeping the code
func (f *Flow) Verified(code string) error {
	if f.Kind != FlowKindPasswordReset || f.State != StateAwaitingVerification {
		return fmt.Errorf("%w: cannot verify while %s", ErrInvalidState, f.State)
	}
	f.Code = code
	f.State = StateAwaitingCompletion
	return nil
}

// Complete ends the flow. A password reset completes after verification,
// an email change completes on its confirmation.
func (f *Flow) Complete() error {
	want := StateAwaitingCompletion
	if f.Kind == FlowKindEmailChange {
		want = StateAwaitingVerification
	}
	if f.State != want {
		return fmt.Errorf("%w: cannot complete while %s", ErrInvalidState, f.State)
	}
	f.State = StateCompleted
	f.Code = ""
	return nil
}

// MaskEmail hides most of the local part of an address
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return email
	}
	return email[:1] + "***" + email[at:]
}

func seconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}
