package service

import (
	"context"
	"sync"

	"github.com/straye-as/finance-dashboard/internal/domain"
	"github.com/straye-as/finance-dashboard/internal/workflow"
	"go.uber.org/zap"
)

// InvoiceStore is the remote invoice API the controller drives
type InvoiceStore interface {
	GetInvoice(ctx context.Context, id domain.ID) (*domain.Invoice, error)
	SubmitInvoice(ctx context.Context, id domain.ID) (*domain.Invoice, error)
	ApproveInvoice(ctx context.Context, id domain.ID) (*domain.Invoice, error)
	RejectInvoice(ctx context.Context, id domain.ID, reason string) (*domain.Invoice, error)
	MarkInvoicePaid(ctx context.Context, id domain.ID, payment domain.PaymentDetails) (*domain.Invoice, error)
	UpdateInvoice(ctx context.Context, id domain.ID, edit domain.InvoiceEdit) (*domain.Invoice, error)
	GetAuditTrail(ctx context.Context, id domain.ID) ([]domain.AuditTrailEntry, error)
}

// InvoiceController drives one invoice through the workflow on behalf of one session.
//
// The local invoice is only ever replaced by a response of the invoice store, and at most
// one action runs at a time. Refused actions and invalid payloads never reach the store.
type InvoiceController struct {
	store  InvoiceStore
	logger *zap.Logger

	mu      sync.Mutex
	invoice *domain.Invoice
	perms   domain.PermissionSet
	busy    bool
}

// NewInvoiceController creates a controller acting with the given permission set
func NewInvoiceController(store InvoiceStore, perms domain.PermissionSet, logger *zap.Logger) *InvoiceController {
	return &InvoiceController{
		store:  store,
		perms:  perms,
		logger: logger,
	}
}

// Load fetches the invoice and makes it the local state
func (c *InvoiceController) Load(ctx context.Context, id domain.ID) (domain.Invoice, error) {
	if c.Busy() {
		return domain.Invoice{}, ErrActionInProgress
	}

	inv, err := c.store.GetInvoice(ctx, id)
	if err != nil {
		return domain.Invoice{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.invoice = inv
	return *inv, nil
}

// Invoice returns a copy of the local invoice
func (c *InvoiceController) Invoice() (domain.Invoice, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.invoice == nil {
		return domain.Invoice{}, false
	}
	return *c.invoice, true
}

// Permissions returns the permission set the controller acts with
func (c *InvoiceController) Permissions() domain.PermissionSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.perms
}

// SetPermissions replaces the permission set, e.g. after a session refresh
func (c *InvoiceController) SetPermissions(perms domain.PermissionSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.perms = perms
}

// Actions returns the actions available for the local invoice.
// Nothing is offered before Load or while an action is in flight.
func (c *InvoiceController) Actions() workflow.ActionSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.invoice == nil || c.busy {
		return workflow.ActionSet{}
	}
	return workflow.Actions(c.invoice.Status, c.perms)
}

// Editable reports whether amount and date can be edited right now
func (c *InvoiceController) Editable() bool {
	return c.Actions().Contains(workflow.ActionEdit)
}

// Busy reports whether an action is in flight
func (c *InvoiceController) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Submit moves a Tax Generated invoice to Submitted
func (c *InvoiceController) Submit(ctx context.Context) (domain.Invoice, error) {
	return c.perform(ctx, workflow.ActionSubmit, c.store.SubmitInvoice)
}

// Approve moves a Submitted invoice to Approved
func (c *InvoiceController) Approve(ctx context.Context) (domain.Invoice, error) {
	return c.perform(ctx, workflow.ActionApprove, c.store.ApproveInvoice)
}

// Reject moves a Submitted or Approved invoice to Rejected
func (c *InvoiceController) Reject(ctx context.Context, reason string) (domain.Invoice, error) {
	reason, err := workflow.ValidateRejection(reason)
	if err != nil {
		return domain.Invoice{}, err
	}
	return c.perform(ctx, workflow.ActionReject, func(ctx context.Context, id domain.ID) (*domain.Invoice, error) {
		return c.store.RejectInvoice(ctx, id, reason)
	})
}

// MarkPaid records the payment of an Approved invoice
func (c *InvoiceController) MarkPaid(ctx context.Context, reference, method, notes string) (domain.Invoice, error) {
	payment, err := workflow.ValidatePayment(reference, method, notes)
	if err != nil {
		return domain.Invoice{}, err
	}
	return c.perform(ctx, workflow.ActionMarkPaid, func(ctx context.Context, id domain.ID) (*domain.Invoice, error) {
		return c.store.MarkInvoicePaid(ctx, id, payment)
	})
}

// Edit updates amount and date of a Draft invoice. An empty amount is sent as 0.
func (c *InvoiceController) Edit(ctx context.Context, amount, date string) (domain.Invoice, error) {
	edit, err := workflow.ValidateEdit(amount, date)
	if err != nil {
		return domain.Invoice{}, err
	}
	return c.perform(ctx, workflow.ActionEdit, func(ctx context.Context, id domain.ID) (*domain.Invoice, error) {
		return c.store.UpdateInvoice(ctx, id, edit)
	})
}

// AuditTrail fetches the transition history of the local invoice
func (c *InvoiceController) AuditTrail(ctx context.Context) ([]domain.AuditTrailEntry, error) {
	inv, ok := c.Invoice()
	if !ok {
		return nil, ErrInvoiceNotLoaded
	}
	return c.store.GetAuditTrail(ctx, inv.ID)
}

func (c *InvoiceController) perform(ctx context.Context, action workflow.Action, call func(context.Context, domain.ID) (*domain.Invoice, error)) (domain.Invoice, error) {
	c.mu.Lock()
	if c.invoice == nil {
		c.mu.Unlock()
		return domain.Invoice{}, ErrInvoiceNotLoaded
	}
	if c.busy {
		c.mu.Unlock()
		return domain.Invoice{}, ErrActionInProgress
	}
	current := *c.invoice
	if _, err := workflow.CheckAction(current.Status, c.perms, action); err != nil {
		c.mu.Unlock()
		return domain.Invoice{}, err
	}
	c.busy = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.busy = false
		c.mu.Unlock()
	}()

	updated, err := call(ctx, current.ID)
	if err != nil {
		c.logger.Info("invoice action failed",
			zap.String("invoice_id", current.ID.String()),
			zap.String("action", string(action)),
			zap.String("status", current.Status.String()),
			zap.Error(err),
		)
		return domain.Invoice{}, err
	}

	// Refetch, falling back to the action response when it carried the invoice
	latest, err := c.store.GetInvoice(ctx, current.ID)
	if err != nil {
		c.logger.Warn("failed to refresh invoice after action",
			zap.String("invoice_id", current.ID.String()),
			zap.String("action", string(action)),
			zap.Bool("response_has_invoice", updated != nil),
			zap.Error(err),
		)
		if updated == nil {
			return domain.Invoice{}, err
		}
		latest = updated
	}

	c.mu.Lock()
	c.invoice = latest
	c.mu.Unlock()

	c.logger.Debug("invoice action completed",
		zap.String("invoice_id", current.ID.String()),
		zap.String("action", string(action)),
		zap.String("from", current.Status.String()),
		zap.String("to", latest.Status.String()),
	)
	return *latest, nil
}
