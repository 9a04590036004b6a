package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/straye-as/finance-dashboard/internal/config"
	"github.com/straye-as/finance-dashboard/internal/domain"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// SessionClaims are the claims of a dashboard session token.
// Permissions are captured once when the session is loaded or refreshed.
// The upstream token stays on the server, keyed by the token ID.
type SessionClaims struct {
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	Permissions []string `json:"perms"`
	jwt.RegisteredClaims
}

// SessionIssuer signs and validates HS256 session tokens
type SessionIssuer struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
	tokens UpstreamTokenStore
}

// NewSessionIssuer creates an issuer from the session settings.
// A nil tokens store keeps upstream tokens in process memory.
func NewSessionIssuer(cfg *config.SessionConfig, tokens UpstreamTokenStore) (*SessionIssuer, error) {
	if len(cfg.SigningKey) < 32 {
		return nil, fmt.Errorf("session signing key must be at least 32 bytes")
	}
	ttl := cfg.TTLDuration()
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	if tokens == nil {
		tokens = NewMemoryTokenStore()
	}
	return &SessionIssuer{
		key:    []byte(cfg.SigningKey),
		issuer: cfg.Issuer,
		ttl:    ttl,
		now:    time.Now,
		tokens: tokens,
	}, nil
}

// SetClock replaces the time source, for tests
func (i *SessionIssuer) SetClock(now func() time.Time) {
	i.now = now
}

// Issue signs a session token for user and stores upstreamToken under its session.
// sessionID is kept across refreshes; an empty sessionID starts a new session.
func (i *SessionIssuer) Issue(ctx context.Context, user domain.SessionUser, upstreamToken, sessionID string) (string, time.Time, error) {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	now := i.now()
	expiresAt := now.Add(i.ttl)

	claims := SessionClaims{
		Name:        user.Name,
		Email:       user.Email,
		Permissions: user.Permissions.Strings(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    i.issuer,
			ID:        sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	if err := i.tokens.Put(ctx, sessionID, upstreamToken, i.ttl); err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Revoke forgets the upstream token of a session; its session tokens stop validating
func (i *SessionIssuer) Revoke(ctx context.Context, sessionID string) error {
	return i.tokens.Delete(ctx, sessionID)
}

// Validate verifies a session token and returns the user context it stands for
func (i *SessionIssuer) Validate(ctx context.Context, tokenString string) (*UserContext, error) {
	claims := &SessionClaims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}

	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return i.key, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing subject or session id", ErrInvalidToken)
	}

	upstreamToken, err := i.tokens.Get(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, ErrSessionRevoked) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
		}
		return nil, err
	}

	// Unknown permission strings in an old token are dropped
	perms, _ := domain.PermissionSetFromStrings(claims.Permissions)

	return &UserContext{
		UserID:      domain.ID(claims.Subject),
		DisplayName: claims.Name,
		Email:       claims.Email,
		Permissions: perms,
		AccessToken: upstreamToken,
		SessionID:   claims.ID,
	}, nil
}
