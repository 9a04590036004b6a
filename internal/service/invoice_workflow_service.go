package service

import (
	"context"
	"errors"
	"sync"

	"github.com/straye-as/finance-dashboard/internal/apiclient"
	"github.com/straye-as/finance-dashboard/internal/auth"
	"github.com/straye-as/finance-dashboard/internal/domain"
	"github.com/straye-as/finance-dashboard/internal/workflow"
	"go.uber.org/zap"
)

// InvoiceGateway is the invoice store plus its listing endpoint
type InvoiceGateway interface {
	InvoiceStore
	ListInvoices(ctx context.Context, filter domain.ListInvoicesFilter) (*domain.InvoicePage, error)
}

// ActionInput is the payload of a workflow action as entered by the user
type ActionInput struct {
	Action           workflow.Action
	RejectionReason  string
	PaymentReference string
	PaymentMethod    string
	PaymentNotes     string
	InvoiceAmount    string
	InvoiceDate      string
}

// InvoiceWorkflowService serves the invoice workflow to authenticated sessions
type InvoiceWorkflowService struct {
	store    InvoiceGateway
	recorder ActionRecorder
	logger   *zap.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewInvoiceWorkflowService creates the workflow service. recorder may be nil.
func NewInvoiceWorkflowService(store InvoiceGateway, recorder ActionRecorder, logger *zap.Logger) *InvoiceWorkflowService {
	return &InvoiceWorkflowService{
		store:    store,
		recorder: recorder,
		logger:   logger,
		inFlight: make(map[string]struct{}),
	}
}

// List returns a page of invoices, each with the actions offered to the caller
func (s *InvoiceWorkflowService) List(ctx context.Context, filter domain.ListInvoicesFilter) (*domain.PaginatedResponse, error) {
	userCtx, ok := auth.FromContext(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}

	filter.Page, filter.PageSize = normalizePage(filter.Page, filter.PageSize)
	page, err := s.store.ListInvoices(ctx, filter)
	if err != nil {
		return nil, err
	}

	views := make([]domain.InvoiceViewDTO, len(page.Invoices))
	for i, inv := range page.Invoices {
		views[i] = toInvoiceView(inv, userCtx.Permissions)
	}

	pageNum, pageSize := page.Page, page.PageSize
	if pageNum == 0 {
		pageNum = filter.Page
	}
	if pageSize == 0 {
		pageSize = filter.PageSize
	}
	resp := domain.NewPaginatedResponse(views, page.Total, pageNum, pageSize)
	return &resp, nil
}

// Get returns one invoice with the actions offered to the caller
func (s *InvoiceWorkflowService) Get(ctx context.Context, id domain.ID) (*domain.InvoiceViewDTO, error) {
	ctrl, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	inv, _ := ctrl.Invoice()
	view := toInvoiceView(inv, ctrl.Permissions())
	return &view, nil
}

// Actions returns only the action set of one invoice
func (s *InvoiceWorkflowService) Actions(ctx context.Context, id domain.ID) ([]domain.InvoiceActionDTO, error) {
	view, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return view.Actions, nil
}

// AuditTrail returns the transition history of one invoice
func (s *InvoiceWorkflowService) AuditTrail(ctx context.Context, id domain.ID) (*domain.AuditTrailDTO, error) {
	if _, ok := auth.FromContext(ctx); !ok {
		return nil, ErrUnauthorized
	}
	entries, err := s.store.GetAuditTrail(ctx, id)
	if err != nil {
		return nil, err
	}
	return &domain.AuditTrailDTO{InvoiceID: id.String(), Entries: entries}, nil
}

// Perform runs one workflow action for the calling session.
// A session can run one action per invoice at a time; every attempt is recorded.
func (s *InvoiceWorkflowService) Perform(ctx context.Context, id domain.ID, input ActionInput) (*domain.InvoiceViewDTO, error) {
	userCtx, ok := auth.FromContext(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}
	if !input.Action.IsValid() {
		return nil, &workflow.TransitionError{Action: input.Action, Err: workflow.ErrUnknownAction}
	}

	if err := validateInput(input); err != nil {
		s.record(ctx, ActionAttempt{
			InvoiceID: id,
			Action:    string(input.Action),
			Outcome:   domain.ActionOutcomeBlocked,
			Message:   err.Error(),
		})
		return nil, err
	}

	key := userCtx.SessionID + ":" + id.String()
	if !s.acquire(key) {
		s.record(ctx, ActionAttempt{
			InvoiceID: id,
			Action:    string(input.Action),
			Outcome:   domain.ActionOutcomeBlocked,
			Message:   ErrActionInProgress.Error(),
		})
		return nil, ErrActionInProgress
	}
	defer s.release(key)

	ctrl := NewInvoiceController(s.store, userCtx.Permissions, s.logger)
	before, err := ctrl.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	after, err := s.dispatch(ctx, ctrl, input)

	attempt := ActionAttempt{
		InvoiceID:     id,
		InvoiceNumber: before.InvoiceNumber,
		Action:        string(input.Action),
		FromStatus:    before.Status,
	}
	if err != nil {
		attempt.Outcome = outcomeOf(err)
		attempt.Message = err.Error()
		if apiErr, ok := apiclient.AsAPIError(err); ok {
			attempt.Message = apiErr.Message
		}
		s.record(ctx, attempt)

		s.logger.Info("invoice action not completed",
			zap.String("invoice_id", id.String()),
			zap.String("action", string(input.Action)),
			zap.String("user_id", userCtx.UserID.String()),
			zap.String("outcome", string(attempt.Outcome)),
			zap.Error(err))
		return nil, err
	}

	attempt.ToStatus = after.Status
	attempt.Outcome = domain.ActionOutcomeSucceeded
	s.record(ctx, attempt)

	view := toInvoiceView(after, userCtx.Permissions)
	return &view, nil
}

func (s *InvoiceWorkflowService) dispatch(ctx context.Context, ctrl *InvoiceController, input ActionInput) (domain.Invoice, error) {
	switch input.Action {
	case workflow.ActionSubmit:
		return ctrl.Submit(ctx)
	case workflow.ActionApprove:
		return ctrl.Approve(ctx)
	case workflow.ActionReject:
		return ctrl.Reject(ctx, input.RejectionReason)
	case workflow.ActionMarkPaid:
		return ctrl.MarkPaid(ctx, input.PaymentReference, input.PaymentMethod, input.PaymentNotes)
	case workflow.ActionEdit:
		return ctrl.Edit(ctx, input.InvoiceAmount, input.InvoiceDate)
	}
	return domain.Invoice{}, &workflow.TransitionError{Action: input.Action, Err: workflow.ErrUnknownAction}
}

// validateInput checks the payload of an action without touching the store
func validateInput(input ActionInput) error {
	var err error
	switch input.Action {
	case workflow.ActionReject:
		_, err = workflow.ValidateRejection(input.RejectionReason)
	case workflow.ActionMarkPaid:
		_, err = workflow.ValidatePayment(input.PaymentReference, input.PaymentMethod, input.PaymentNotes)
	case workflow.ActionEdit:
		_, err = workflow.ValidateEdit(input.InvoiceAmount, input.InvoiceDate)
	}
	return err
}

func (s *InvoiceWorkflowService) load(ctx context.Context, id domain.ID) (*InvoiceController, error) {
	userCtx, ok := auth.FromContext(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}
	ctrl := NewInvoiceController(s.store, userCtx.Permissions, s.logger)
	if _, err := ctrl.Load(ctx, id); err != nil {
		return nil, err
	}
	return ctrl, nil
}

func (s *InvoiceWorkflowService) acquire(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[key]; busy {
		return false
	}
	s.inFlight[key] = struct{}{}
	return true
}

func (s *InvoiceWorkflowService) release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, key)
}

func (s *InvoiceWorkflowService) record(ctx context.Context, attempt ActionAttempt) {
	if s.recorder == nil {
		return
	}
	s.recorder.Record(ctx, attempt)
}

// outcomeOf separates attempts refused locally from attempts the store refused
func outcomeOf(err error) domain.ActionOutcome {
	var validationErr *workflow.ValidationError
	var transitionErr *workflow.TransitionError
	switch {
	case errors.As(err, &validationErr), errors.As(err, &transitionErr), errors.Is(err, ErrActionInProgress):
		return domain.ActionOutcomeBlocked
	}
	return domain.ActionOutcomeFailed
}

func toInvoiceView(inv domain.Invoice, perms domain.PermissionSet) domain.InvoiceViewDTO {
	actions := workflow.Actions(inv.Status, perms)
	return domain.InvoiceViewDTO{
		Invoice:  inv,
		Actions:  toActionDTOs(inv.Status, actions),
		Editable: actions.Contains(workflow.ActionEdit),
	}
}

func toActionDTOs(status domain.InvoiceStatus, actions workflow.ActionSet) []domain.InvoiceActionDTO {
	dtos := make([]domain.InvoiceActionDTO, 0, len(actions))
	for _, a := range actions {
		target, _ := workflow.TargetStatus(status, a)
		inputs := workflow.RequiredInputs(a)
		if inputs == nil {
			inputs = []string{}
		}
		dtos = append(dtos, domain.InvoiceActionDTO{
			Action:         string(a),
			Label:          a.Label(),
			TargetStatus:   target.String(),
			RequiredInputs: inputs,
		})
	}
	return dtos
}
