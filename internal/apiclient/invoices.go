package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/straye-as/finance-dashboard/internal/domain"
)

// invoicePath builds invoices/{id}[/suffix]
func invoicePath(id domain.ID, suffix string) string {
	p := "invoices/" + url.PathEscape(id.String())
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}

// ListInvoices fetches one page of invoices
func (c *Client) ListInvoices(ctx context.Context, filter domain.ListInvoicesFilter) (*domain.InvoicePage, error) {
	query := url.Values{}
	if filter.Page > 0 {
		query.Set("page", strconv.Itoa(filter.Page))
	}
	if filter.PageSize > 0 {
		query.Set("per_page", strconv.Itoa(filter.PageSize))
	}
	if filter.Status != "" {
		query.Set("status", filter.Status.String())
	}
	if filter.Search != "" {
		query.Set("search", filter.Search)
	}

	raw, err := c.send(ctx, http.MethodGet, "invoices", query, nil)
	if err != nil {
		return nil, err
	}

	var page pageEnvelope[domain.Invoice]
	if err := page.decode(raw); err != nil {
		return nil, &TransportError{Op: "GET invoices", Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	result := &domain.InvoicePage{
		Invoices: page.items,
		Total:    page.total,
		Page:     page.page,
		PageSize: page.pageSize,
	}
	if result.Page == 0 {
		result.Page = filter.Page
	}
	if result.PageSize == 0 {
		result.PageSize = filter.PageSize
	}
	return result, nil
}

// GetInvoice fetches the full invoice record
func (c *Client) GetInvoice(ctx context.Context, id domain.ID) (*domain.Invoice, error) {
	var inv domain.Invoice
	if err := c.do(ctx, http.MethodGet, invoicePath(id, ""), nil, nil, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// SubmitInvoice moves a Tax Generated invoice to Submitted
func (c *Client) SubmitInvoice(ctx context.Context, id domain.ID) (*domain.Invoice, error) {
	return c.invoiceAction(ctx, http.MethodPost, id, "submit-to-finance", nil)
}

// ApproveInvoice moves a Submitted invoice to Approved
func (c *Client) ApproveInvoice(ctx context.Context, id domain.ID) (*domain.Invoice, error) {
	return c.invoiceAction(ctx, http.MethodPost, id, "approve", nil)
}

// RejectInvoice moves a Submitted or Approved invoice to Rejected
func (c *Client) RejectInvoice(ctx context.Context, id domain.ID, reason string) (*domain.Invoice, error) {
	body := map[string]string{"rejection_reason": reason}
	return c.invoiceAction(ctx, http.MethodPost, id, "reject", body)
}

// MarkInvoicePaid records the payment of an Approved invoice
func (c *Client) MarkInvoicePaid(ctx context.Context, id domain.ID, payment domain.PaymentDetails) (*domain.Invoice, error) {
	return c.invoiceAction(ctx, http.MethodPost, id, "mark-paid", payment)
}

// UpdateInvoice edits amount and date of a Draft invoice in place
func (c *Client) UpdateInvoice(ctx context.Context, id domain.ID, edit domain.InvoiceEdit) (*domain.Invoice, error) {
	return c.invoiceAction(ctx, http.MethodPut, id, "", edit)
}

// GetAuditTrail fetches the transition history of an invoice, oldest first as sent by the API
func (c *Client) GetAuditTrail(ctx context.Context, id domain.ID) ([]domain.AuditTrailEntry, error) {
	var entries []domain.AuditTrailEntry
	if err := c.do(ctx, http.MethodGet, invoicePath(id, "audit-trail"), nil, nil, &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []domain.AuditTrailEntry{}
	}
	return entries, nil
}

// invoiceAction performs a mutating call that answers with the updated invoice.
// Some endpoints wrap the invoice as {"invoice": {...}}; others answer with only a
// message, in which case the returned invoice is nil and callers refetch.
func (c *Client) invoiceAction(ctx context.Context, method string, id domain.ID, suffix string, body interface{}) (*domain.Invoice, error) {
	path := invoicePath(id, suffix)
	raw, err := c.send(ctx, method, path, nil, body)
	if err != nil {
		return nil, err
	}

	inv, err := decodeInvoice(raw)
	if err != nil {
		return nil, &TransportError{Op: method + " " + path, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return inv, nil
}

func decodeInvoice(raw []byte) (*domain.Invoice, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}

	var wrapped struct {
		Invoice json.RawMessage `json:"invoice"`
	}
	var inv domain.Invoice

	if err := decodeData(raw, &wrapped); err == nil {
		data := bytes.TrimSpace(wrapped.Invoice)
		if len(data) > 0 && !bytes.Equal(data, []byte("null")) {
			if err := json.Unmarshal(data, &inv); err != nil {
				return nil, err
			}
			return &inv, nil
		}
	}

	if err := decodeData(raw, &inv); err != nil {
		return nil, err
	}
	if inv.ID.IsZero() || !inv.Status.IsValid() {
		return nil, nil
	}
	return &inv, nil
}
