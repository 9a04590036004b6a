package domain

import (
	"encoding/json"
	"sort"
	"strings"
)

// PermissionType is a closed set of permissions the invoice workflow understands
type PermissionType string

const (
	PermissionSubmitInvoice  PermissionType = "submit-invoice"
	PermissionApproveInvoice PermissionType = "approve-invoice"
	PermissionRejectInvoice  PermissionType = "reject-invoice"
	PermissionMarkPaid       PermissionType = "mark-paid"
	PermissionEditInvoice    PermissionType = "edit-invoice"
)

// AllPermissions returns every known permission
func AllPermissions() []PermissionType {
	return []PermissionType{
		PermissionSubmitInvoice,
		PermissionApproveInvoice,
		PermissionRejectInvoice,
		PermissionMarkPaid,
		PermissionEditInvoice,
	}
}

// IsValid checks if the permission is one of the known permissions
func (p PermissionType) IsValid() bool {
	for _, known := range AllPermissions() {
		if p == known {
			return true
		}
	}
	return false
}

// ParsePermission resolves a permission string from the session user object
func ParsePermission(value string) (PermissionType, bool) {
	p := PermissionType(strings.ToLower(strings.TrimSpace(value)))
	if !p.IsValid() {
		return "", false
	}
	return p, true
}

// PermissionSet is an immutable set of permissions held by one session.
// The zero value grants nothing.
type PermissionSet struct {
	perms map[PermissionType]struct{}
}

// NewPermissionSet builds a set from known permissions
func NewPermissionSet(perms ...PermissionType) PermissionSet {
	set := PermissionSet{perms: make(map[PermissionType]struct{}, len(perms))}
	for _, p := range perms {
		if p.IsValid() {
			set.perms[p] = struct{}{}
		}
	}
	return set
}

// PermissionSetFromStrings builds a set from raw permission strings.
// Strings that are not known permissions are returned as unknown.
func PermissionSetFromStrings(values []string) (PermissionSet, []string) {
	var unknown []string
	perms := make([]PermissionType, 0, len(values))
	for _, v := range values {
		p, ok := ParsePermission(v)
		if !ok {
			unknown = append(unknown, v)
			continue
		}
		perms = append(perms, p)
	}
	return NewPermissionSet(perms...), unknown
}

// Has reports whether the permission is in the set
func (s PermissionSet) Has(p PermissionType) bool {
	_, ok := s.perms[p]
	return ok
}

// Len returns the number of permissions in the set
func (s PermissionSet) Len() int {
	return len(s.perms)
}

// Slice returns the permissions sorted by name
func (s PermissionSet) Slice() []PermissionType {
	out := make([]PermissionType, 0, len(s.perms))
	for p := range s.perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings returns the permissions as sorted strings
func (s PermissionSet) Strings() []string {
	perms := s.Slice()
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}

// MarshalJSON encodes the set as a sorted string array
func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}

// UnmarshalJSON decodes a string array, dropping unknown permissions
func (s *PermissionSet) UnmarshalJSON(data []byte) error {
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*s, _ = PermissionSetFromStrings(values)
	return nil
}
