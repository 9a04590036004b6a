package identity

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/finance-dashboard/internal/apiclient"
	"github.com/straye-as/finance-dashboard/internal/auth"
	"github.com/straye-as/finance-dashboard/internal/config"
	"github.com/straye-as/finance-dashboard/internal/domain"
	"github.com/straye-as/finance-dashboard/internal/workflow"
	"go.uber.org/zap"
)

// PasswordResetAPI is the part of the remote API a password reset uses
type PasswordResetAPI interface {
	RequestPasswordReset(ctx context.Context, email string) error
	VerifyPasswordResetCode(ctx context.Context, email, code string) error
	ResetPassword(ctx context.Context, email, code, password, confirmation string) error
}

// EmailChangeAPI is the part of the remote API an email change uses
type EmailChangeAPI interface {
	RequestEmailChange(ctx context.Context, newEmail, currentPassword string) error
	ConfirmEmailChange(ctx context.Context, newEmail, code string) error
}

type flows struct {
	store    FlowStore
	cooldown time.Duration
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func newFlows(store FlowStore, cfg *config.IdentityConfig, logger *zap.Logger) flows {
	f := flows{
		store:    store,
		cooldown: 60 * time.Second,
		ttl:      30 * time.Minute,
		logger:   logger,
		now:      time.Now,
	}
	if cfg != nil {
		if d := cfg.ResendCooldownDuration(); d > 0 {
			f.cooldown = d
		}
		if d := cfg.FlowTTLDuration(); d > 0 {
			f.ttl = d
		}
	}
	return f
}

func (f *flows) start(kind FlowKind, email, userID string) *Flow {
	now := f.now().UTC()
	return &Flow{
		ID:        uuid.NewString(),
		Kind:      kind,
		State:     StateAwaitingRequest,
		Email:     email,
		UserID:    userID,
		CreatedAt: now,
	}
}

func (f *flows) get(ctx context.Context, id string, kind FlowKind, userID string) (*Flow, error) {
	flow, err := f.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if flow.Kind != kind || flow.UserID != userID {
		return nil, ErrFlowNotFound
	}
	return flow, nil
}

func (f *flows) save(ctx context.Context, flow *Flow) error {
	return f.store.Save(ctx, flow, f.ttl)
}

func (f *flows) finish(ctx context.Context, flow *Flow) {
	if err := f.store.Delete(ctx, flow.ID); err != nil {
		f.logger.Warn("failed to delete completed identity flow", zap.String("flow_id", flow.ID), zap.Error(err))
	}
}

// codeError hides why the API refused a code. Authorization and server errors
// pass through; the flow stays in verification either way.
func (f *flows) codeError(flow *Flow, err error) error {
	apiErr, ok := apiclient.AsAPIError(err)
	if !ok {
		return err
	}
	switch apiErr.Kind() {
	case apiclient.KindBusinessRule, apiclient.KindNotFound:
		f.logger.Info("verification code refused",
			zap.String("flow_id", flow.ID),
			zap.String("kind", string(flow.Kind)),
			zap.Int("status", apiErr.StatusCode))
		return ErrInvalidCode
	}
	return err
}

func (f *flows) dto(flow *Flow) *domain.FlowDTO {
	return &domain.FlowDTO{
		FlowID:               flow.ID,
		Kind:                 string(flow.Kind),
		State:                string(flow.State),
		Destination:          MaskEmail(flow.Email),
		ResendAvailableInSec: seconds(flow.ResendAvailableIn(f.now(), f.cooldown)),
	}
}

// PasswordResetService drives forgot password: request a code, verify it, set a new password
type PasswordResetService struct {
	flows
	api PasswordResetAPI
}

// NewPasswordResetService creates a password reset service
func NewPasswordResetService(api PasswordResetAPI, store FlowStore, cfg *config.IdentityConfig, logger *zap.Logger) *PasswordResetService {
	return &PasswordResetService{flows: newFlows(store, cfg, logger), api: api}
}

// SetClock replaces the time source, for tests
func (s *PasswordResetService) SetClock(now func() time.Time) { s.now = now }

// Start sends a reset code to email and opens a flow
func (s *PasswordResetService) Start(ctx context.Context, email string) (*domain.FlowDTO, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	flow := s.start(FlowKindPasswordReset, email, "")

	if err := s.api.RequestPasswordReset(ctx, email); err != nil {
		return nil, err
	}
	if err := flow.Requested(s.now().UTC(), s.cooldown); err != nil {
		return nil, err
	}
	if err := s.save(ctx, flow); err != nil {
		return nil, err
	}

	s.logger.Info("password reset started", zap.String("flow_id", flow.ID))
	return s.dto(flow), nil
}

// Resend sends a new code once the cooldown has passed
func (s *PasswordResetService) Resend(ctx context.Context, flowID string) (*domain.FlowDTO, error) {
	flow, err := s.get(ctx, flowID, FlowKindPasswordReset, "")
	if err != nil {
		return nil, err
	}
	if err := flow.CanResend(s.now(), s.cooldown); err != nil {
		return nil, err
	}
	if err := s.api.RequestPasswordReset(ctx, flow.Email); err != nil {
		return nil, err
	}
	flow.LastSentAt = s.now().UTC()
	if err := s.save(ctx, flow); err != nil {
		return nil, err
	}
	return s.dto(flow), nil
}

// Verify checks the code with the API and moves the flow to completion
func (s *PasswordResetService) Verify(ctx context.Context, flowID, code string) (*domain.FlowDTO, error) {
	code, err := workflow.ValidateOTPCode(code)
	if err != nil {
		return nil, err
	}
	flow, err := s.get(ctx, flowID, FlowKindPasswordReset, "")
	if err != nil {
		return nil, err
	}
	if flow.State != StateAwaitingVerification {
		return nil, flow.Verified(code)
	}
	if err := s.api.VerifyPasswordResetCode(ctx, flow.Email, code); err != nil {
		return nil, s.codeError(flow, err)
	}
	if err := flow.Verified(code); err != nil {
		return nil, err
	}
	if err := s.save(ctx, flow); err != nil {
		return nil, err
	}
	return s.dto(flow), nil
}

// Complete sets the new password and closes the flow
func (s *PasswordResetService) Complete(ctx context.Context, flowID, password, confirmation string) (*domain.FlowDTO, error) {
	if err := workflow.ValidateNewPassword(password, confirmation); err != nil {
		return nil, err
	}
	flow, err := s.get(ctx, flowID, FlowKindPasswordReset, "")
	if err != nil {
		return nil, err
	}
	if flow.State != StateAwaitingCompletion {
		return nil, flow.Complete()
	}
	if err := s.api.ResetPassword(ctx, flow.Email, flow.Code, password, confirmation); err != nil {
		return nil, err
	}
	if err := flow.Complete(); err != nil {
		return nil, err
	}
	s.finish(ctx, flow)

	s.logger.Info("password reset completed", zap.String("flow_id", flow.ID))
	return s.dto(flow), nil
}

// EmailChangeService drives the email change of the signed-in user
type EmailChangeService struct {
	flows
	api EmailChangeAPI
}

// NewEmailChangeService creates an email change service
func NewEmailChangeService(api EmailChangeAPI, store FlowStore, cfg *config.IdentityConfig, logger *zap.Logger) *EmailChangeService {
	return &EmailChangeService{flows: newFlows(store, cfg, logger), api: api}
}

// SetClock replaces the time source, for tests
func (s *EmailChangeService) SetClock(now func() time.Time) { s.now = now }

// Start sends a confirmation code to newEmail
func (s *EmailChangeService) Start(ctx context.Context, newEmail, currentPassword string) (*domain.FlowDTO, error) {
	userCtx, ok := auth.FromContext(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}
	newEmail = strings.ToLower(strings.TrimSpace(newEmail))
	flow := s.start(FlowKindEmailChange, newEmail, userCtx.UserID.String())

	if err := s.api.RequestEmailChange(ctx, newEmail, currentPassword); err != nil {
		return nil, err
	}
	if err := flow.Requested(s.now().UTC(), s.cooldown); err != nil {
		return nil, err
	}
	if err := s.save(ctx, flow); err != nil {
		return nil, err
	}

	s.logger.Info("email change started",
		zap.String("flow_id", flow.ID),
		zap.String("user_id", flow.UserID))
	return s.dto(flow), nil
}

// Resend sends a new code once the cooldown has passed. The API asks for the
// current password again on every request.
func (s *EmailChangeService) Resend(ctx context.Context, flowID, currentPassword string) (*domain.FlowDTO, error) {
	userCtx, ok := auth.FromContext(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}
	flow, err := s.get(ctx, flowID, FlowKindEmailChange, userCtx.UserID.String())
	if err != nil {
		return nil, err
	}
	if err := flow.CanResend(s.now(), s.cooldown); err != nil {
		return nil, err
	}
	if err := s.api.RequestEmailChange(ctx, flow.Email, currentPassword); err != nil {
		return nil, err
	}
	flow.LastSentAt = s.now().UTC()
	if err := s.save(ctx, flow); err != nil {
		return nil, err
	}
	return s.dto(flow), nil
}

// Confirm commits the change with the code sent to the new address
func (s *EmailChangeService) Confirm(ctx context.Context, flowID, code string) (*domain.FlowDTO, error) {
	userCtx, ok := auth.FromContext(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}
	code, err := workflow.ValidateOTPCode(code)
	if err != nil {
		return nil, err
	}
	flow, err := s.get(ctx, flowID, FlowKindEmailChange, userCtx.UserID.String())
	if err != nil {
		return nil, err
	}
	if flow.State != StateAwaitingVerification {
		return nil, flow.Complete()
	}
	if err := s.api.ConfirmEmailChange(ctx, flow.Email, code); err != nil {
		return nil, s.codeError(flow, err)
	}
	if err := flow.Complete(); err != nil {
		return nil, err
	}
	s.finish(ctx, flow)

	s.logger.Info("email change completed",
		zap.String("flow_id", flow.ID),
		zap.String("user_id", flow.UserID))
	return s.dto(flow), nil
}
