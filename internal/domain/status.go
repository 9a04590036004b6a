package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// InvoiceStatus is the lifecycle status of an invoice as reported by the invoice store
type InvoiceStatus string

const (
	InvoiceStatusDraft        InvoiceStatus = "Draft"
	InvoiceStatusTaxGenerated InvoiceStatus = "Tax Generated"
	InvoiceStatusSubmitted    InvoiceStatus = "Submitted"
	InvoiceStatusApproved     InvoiceStatus = "Approved"
	InvoiceStatusRejected     InvoiceStatus = "Rejected"
	InvoiceStatusPaid         InvoiceStatus = "Paid"
)

// statusSynonyms maps labels used by some upstream views onto the canonical status.
// Keys are lower-cased.
var statusSynonyms = map[string]InvoiceStatus{
	"payment received": InvoiceStatusPaid,
	"banked":           InvoiceStatusPaid,
}

// AllInvoiceStatuses returns every status in lifecycle order
func AllInvoiceStatuses() []InvoiceStatus {
	return []InvoiceStatus{
		InvoiceStatusDraft,
		InvoiceStatusTaxGenerated,
		InvoiceStatusSubmitted,
		InvoiceStatusApproved,
		InvoiceStatusRejected,
		InvoiceStatusPaid,
	}
}

// IsValid checks if the status is a member of the status set
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusTaxGenerated, InvoiceStatusSubmitted,
		InvoiceStatusApproved, InvoiceStatusRejected, InvoiceStatusPaid:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition can leave this status
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusPaid
}

// IsEditable reports whether amount and date may be changed in this status
func (s InvoiceStatus) IsEditable() bool {
	return s == InvoiceStatusDraft
}

func (s InvoiceStatus) String() string {
	return string(s)
}

// ParseInvoiceStatus resolves a status label, case-insensitively, including the
// "Payment Received" and "Banked" display synonyms of Paid.
func ParseInvoiceStatus(value string) (InvoiceStatus, error) {
	trimmed := strings.TrimSpace(value)
	for _, s := range AllInvoiceStatuses() {
		if strings.EqualFold(trimmed, string(s)) {
			return s, nil
		}
	}
	if s, ok := statusSynonyms[strings.ToLower(trimmed)]; ok {
		return s, nil
	}
	// Some endpoints send snake_case keys (tax_generated)
	if s, ok := parseStatusKey(trimmed); ok {
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownInvoiceStatus, value)
}

func parseStatusKey(value string) (InvoiceStatus, bool) {
	normalized := strings.ReplaceAll(strings.ToLower(value), "_", " ")
	for _, s := range AllInvoiceStatuses() {
		if normalized == strings.ToLower(string(s)) {
			return s, true
		}
	}
	s, ok := statusSynonyms[normalized]
	return s, ok
}

// MarshalJSON writes the canonical label
func (s InvoiceStatus) MarshalJSON() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownInvoiceStatus, string(s))
	}
	return json.Marshal(string(s))
}

// UnmarshalJSON rejects any value outside the status set
func (s *InvoiceStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invoice status must be a string: %w", err)
	}
	parsed, err := ParseInvoiceStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
