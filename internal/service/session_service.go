package service

import (
	"context"
	"strings"
	"time"

	"github.com/straye-as/finance-dashboard/internal/auth"
	"github.com/straye-as/finance-dashboard/internal/domain"
	"go.uber.org/zap"
)

// SessionAPI is the part of the remote API that authenticates dashboard users
type SessionAPI interface {
	Login(ctx context.Context, email, password string) (*domain.UpstreamLogin, error)
	Logout(ctx context.Context) error
	CurrentUser(ctx context.Context) (*domain.SessionUser, error)
}

// SessionIssuer signs dashboard session tokens and holds their upstream tokens
type SessionIssuer interface {
	Issue(ctx context.Context, user domain.SessionUser, upstreamToken, sessionID string) (string, time.Time, error)
	Revoke(ctx context.Context, sessionID string) error
}

// SessionService opens, refreshes and closes dashboard sessions.
// The permission set is read from the remote API when a session is opened or refreshed.
type SessionService struct {
	api    SessionAPI
	issuer SessionIssuer
	logger *zap.Logger
}

// NewSessionService creates a new session service
func NewSessionService(api SessionAPI, issuer SessionIssuer, logger *zap.Logger) *SessionService {
	return &SessionService{
		api:    api,
		issuer: issuer,
		logger: logger,
	}
}

// Login authenticates against the remote API and opens a session
func (s *SessionService) Login(ctx context.Context, req domain.LoginRequest) (*domain.SessionResponse, error) {
	email := strings.TrimSpace(strings.ToLower(req.Email))

	login, err := s.api.Login(ctx, email, req.Password)
	if err != nil {
		s.logger.Info("login rejected", zap.String("email", email), zap.Error(err))
		return nil, err
	}

	user := login.User
	if user.ID.IsZero() {
		// the login response did not carry the user object
		upstreamCtx := auth.WithUserContext(ctx, &auth.UserContext{AccessToken: login.Token})
		current, err := s.api.CurrentUser(upstreamCtx)
		if err != nil {
			return nil, err
		}
		user = *current
	}

	return s.issue(ctx, user, login.Token, "")
}

// Refresh re-reads the session user, picking up permission changes, and reissues the token
func (s *SessionService) Refresh(ctx context.Context) (*domain.SessionResponse, error) {
	userCtx, ok := auth.FromContext(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}

	user, err := s.api.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	oldPerms, newPerms := userCtx.Permissions.Strings(), user.Permissions.Strings()
	if strings.Join(oldPerms, ",") != strings.Join(newPerms, ",") {
		s.logger.Info("session permissions changed",
			zap.String("user_id", user.ID.String()),
			zap.Strings("old", oldPerms),
			zap.Strings("new", newPerms))
	}

	return s.issue(ctx, *user, userCtx.AccessToken, userCtx.SessionID)
}

// Logout revokes the upstream token and ends the session on this server
func (s *SessionService) Logout(ctx context.Context) error {
	userCtx, ok := auth.FromContext(ctx)
	if !ok {
		return ErrUnauthorized
	}
	if err := s.api.Logout(ctx); err != nil {
		s.logger.Warn("upstream logout failed", zap.Error(err))
	}
	if err := s.issuer.Revoke(ctx, userCtx.SessionID); err != nil {
		return err
	}
	return nil
}

// Me returns the session user as carried by the session token
func (s *SessionService) Me(ctx context.Context) (*domain.SessionUserDTO, error) {
	userCtx, ok := auth.FromContext(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}
	return &domain.SessionUserDTO{
		ID:          userCtx.UserID.String(),
		Name:        userCtx.DisplayName,
		Email:       userCtx.Email,
		Permissions: userCtx.Permissions.Strings(),
	}, nil
}

func (s *SessionService) issue(ctx context.Context, user domain.SessionUser, upstreamToken, sessionID string) (*domain.SessionResponse, error) {
	token, expiresAt, err := s.issuer.Issue(ctx, user, upstreamToken, sessionID)
	if err != nil {
		return nil, err
	}
	return &domain.SessionResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User: domain.SessionUserDTO{
			ID:          user.ID.String(),
			Name:        user.Name,
			Email:       user.Email,
			Permissions: user.Permissions.Strings(),
		},
	}, nil
}
