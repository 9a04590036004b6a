package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ID is an opaque identifier issued by the invoice store.
// The store sends numeric ids on some endpoints and string ids on others.
type ID string

func (id ID) String() string {
	return string(id)
}

// IsZero reports whether the id is empty
func (id ID) IsZero() bool {
	return strings.TrimSpace(string(id)) == ""
}

// UnmarshalJSON accepts JSON strings and numbers
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// DateLayout is the wire format of calendar dates
const DateLayout = "2006-01-02"

// Date is a calendar date without time of day
type Date struct {
	time.Time
}

// NewDate returns the calendar date in UTC
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses YYYY-MM-DD, falling back to RFC 3339 timestamps
func ParseDate(value string) (Date, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(DateLayout, value); err == nil {
		return Date{Time: t}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: expected %s", value, DateLayout)
	}
	return NewDate(t.Year(), t.Month(), t.Day()), nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// MarshalJSON writes YYYY-MM-DD, or null for the zero date
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(DateLayout))
}

// UnmarshalJSON reads YYYY-MM-DD or an RFC 3339 timestamp
func (d *Date) UnmarshalJSON(data []byte) error {
	var raw *string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil || *raw == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(*raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// UserRef identifies the user behind an audit attribution
type UserRef struct {
	ID    ID     `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// CustomerRef is a read-only reference to the invoiced customer
type CustomerRef struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
}

// PurchaseOrderRef is a read-only reference to the purchase order behind an invoice
type PurchaseOrderRef struct {
	ID       ID     `json:"id"`
	PONumber string `json:"po_number"`
}

// TaxInvoice is present once tax has been generated for the invoice
type TaxInvoice struct {
	TaxInvoiceNumber string          `json:"tax_invoice_number"`
	TaxPercentage    decimal.Decimal `json:"tax_percentage"`
	TaxAmount        decimal.Decimal `json:"tax_amount"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
}

// Invoice mirrors the invoice record owned by the invoice store
type Invoice struct {
	ID              ID                `json:"id"`
	InvoiceNumber   string            `json:"invoice_number"`
	Status          InvoiceStatus     `json:"status"`
	InvoiceAmount   decimal.Decimal   `json:"invoice_amount"`
	InvoiceDate     Date              `json:"invoice_date"`
	Customer        *CustomerRef      `json:"customer,omitempty"`
	PurchaseOrder   *PurchaseOrderRef `json:"purchase_order,omitempty"`
	TaxInvoice      *TaxInvoice       `json:"tax_invoice,omitempty"`
	RejectionReason string            `json:"rejection_reason,omitempty"`

	PaymentReference string     `json:"payment_reference,omitempty"`
	PaymentMethod    string     `json:"payment_method,omitempty"`
	PaymentNotes     string     `json:"payment_notes,omitempty"`
	PaidAt           *time.Time `json:"paid_at,omitempty"`

	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	Submitter   *UserRef   `json:"submitter,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	Approver    *UserRef   `json:"approver,omitempty"`
	RejectedAt  *time.Time `json:"rejected_at,omitempty"`
	Rejecter    *UserRef   `json:"rejecter,omitempty"`
	RecordedBy  *UserRef   `json:"recordedBy,omitempty"`

	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// AuditTrailEntry is one past status transition of an invoice. Entries are append-only.
type AuditTrailEntry struct {
	ID        ID             `json:"id,omitempty"`
	OldStatus *InvoiceStatus `json:"old_status"`
	NewStatus InvoiceStatus  `json:"new_status"`
	User      *UserRef       `json:"user,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Notification is an entry of the read-only notification feed
type Notification struct {
	ID        ID         `json:"id"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Link      string     `json:"link,omitempty"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// SessionUser is the authenticated user object returned by the remote API.
// Permissions are read once per session load and consumed read-only.
type SessionUser struct {
	ID          ID            `json:"id"`
	Name        string        `json:"name"`
	Email       string        `json:"email"`
	Roles       []string      `json:"roles,omitempty"`
	Permissions PermissionSet `json:"permissions"`
}

// ActionOutcome is the result of a workflow action attempt
type ActionOutcome string

const (
	ActionOutcomeSucceeded ActionOutcome = "succeeded"
	ActionOutcomeFailed    ActionOutcome = "failed"
	ActionOutcomeBlocked   ActionOutcome = "blocked"
)

// ActionLog records one workflow action attempted through the dashboard (append-only)
type ActionLog struct {
	ID            uuid.UUID     `gorm:"type:uuid;primaryKey"`
	UserID        string        `gorm:"type:varchar(100);not null;index"`
	UserName      string        `gorm:"type:varchar(200)"`
	InvoiceID     string        `gorm:"type:varchar(100);not null;index"`
	InvoiceNumber string        `gorm:"type:varchar(100)"`
	Action        string        `gorm:"type:varchar(50);not null"`
	FromStatus    string        `gorm:"type:varchar(50)"`
	ToStatus      string        `gorm:"type:varchar(50)"`
	Outcome       ActionOutcome `gorm:"type:varchar(20);not null;index"`
	Message       string        `gorm:"type:text"`
	RequestID     string        `gorm:"type:varchar(100)"`
	CreatedAt     time.Time     `gorm:"not null;index"`
}

// TableName overrides the gorm table name
func (ActionLog) TableName() string {
	return "action_logs"
}

// BeforeCreate assigns the primary key so the model works on databases without uuid defaults
func (l *ActionLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	return nil
}

// HealthState is the coarse state of a monitored component
type HealthState string

const (
	HealthStateOperational HealthState = "operational"
	HealthStateDegraded    HealthState = "degraded"
	HealthStateDown        HealthState = "down"
	HealthStateUnknown     HealthState = "unknown"
)

// MetricSample is one simulated host metric reading
type MetricSample struct {
	Name  string    `json:"name"`
	Value float64   `json:"value"`
	Unit  string    `json:"unit"`
	At    time.Time `json:"at"`
}

// ComponentStatus describes one monitored component
type ComponentStatus struct {
	Name      string      `json:"name"`
	State     HealthState `json:"state"`
	LatencyMs int64       `json:"latencyMs"`
	CheckedAt time.Time   `json:"checkedAt"`
	Message   string      `json:"message,omitempty"`
}

// SystemStatus is a snapshot of the simulated system-status monitor
type SystemStatus struct {
	Overall    HealthState       `json:"overall"`
	Components []ComponentStatus `json:"components"`
	Metrics    []MetricSample    `json:"metrics"`
	History    []MetricSample    `json:"history"`
	UpdatedAt  time.Time         `json:"updatedAt"`
	Stale      bool              `json:"stale"`
}

// PaymentDetails is the validated payload recorded when an invoice is paid
type PaymentDetails struct {
	Reference string `json:"payment_reference"`
	Method    string `json:"payment_method"`
	Notes     string `json:"payment_notes"`
}

// InvoiceEdit is the validated payload of an in-place draft edit
type InvoiceEdit struct {
	Amount decimal.Decimal `json:"invoice_amount"`
	Date   Date            `json:"invoice_date"`
}
