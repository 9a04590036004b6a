package service

import "errors"

// Common service errors
var (
	// ErrPermissionDenied is returned when a user doesn't have permission for an action
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound is returned when a resource is not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized is returned when user is not authenticated
	ErrUnauthorized = errors.New("unauthorized")

	// ErrActionInProgress is returned while another action on the same invoice is in flight
	ErrActionInProgress = errors.New("another action is in progress for this invoice")

	// ErrInvoiceNotLoaded is returned when an action is attempted before Load
	ErrInvoiceNotLoaded = errors.New("invoice not loaded")
)
