package auth_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/straye-as/finance-dashboard/internal/auth"
	"github.com/straye-as/finance-dashboard/internal/config"
	"github.com/straye-as/finance-dashboard/internal/domain"
	"github.com/straye-as/finance-dashboard/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testKey = "0123456789abcdef0123456789abcdef"

func newIssuer(t *testing.T) *auth.SessionIssuer {
	t.Helper()
	issuer, err := auth.NewSessionIssuer(&config.SessionConfig{SigningKey: testKey, Issuer: "finance-dashboard", TTL: 60}, nil)
	require.NoError(t, err)
	return issuer
}

func testUser() domain.SessionUser {
	return domain.SessionUser{
		ID:          "42",
		Name:        "Ada Approver",
		Email:       "ada@example.com",
		Permissions: domain.NewPermissionSet(domain.PermissionApproveInvoice, domain.PermissionRejectInvoice),
	}
}

func TestNewSessionIssuer_RejectsShortKey(t *testing.T) {
	_, err := auth.NewSessionIssuer(&config.SessionConfig{SigningKey: "short"}, nil)
	assert.Error(t, err)
}

func TestSessionIssuer_RoundTrip(t *testing.T) {
	issuer := newIssuer(t)

	token, expiresAt, err := issuer.Issue(context.Background(), testUser(), "upstream-token", "")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	user, err := issuer.Validate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, domain.ID("42"), user.UserID)
	assert.Equal(t, "Ada Approver", user.DisplayName)
	assert.Equal(t, "upstream-token", user.AccessToken)
	assert.NotEmpty(t, user.SessionID)
	assert.True(t, user.HasPermission(domain.PermissionApproveInvoice))
	assert.False(t, user.HasPermission(domain.PermissionMarkPaid))
}

func TestSessionIssuer_KeepsSessionID(t *testing.T) {
	issuer := newIssuer(t)

	token, _, err := issuer.Issue(context.Background(), testUser(), "upstream-token", "session-1")
	require.NoError(t, err)

	user, err := issuer.Validate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "session-1", user.SessionID)
}

func TestSessionIssuer_Expired(t *testing.T) {
	issuer := newIssuer(t)
	issued := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	issuer.SetClock(func() time.Time { return issued })

	token, _, err := issuer.Issue(context.Background(), testUser(), "upstream-token", "")
	require.NoError(t, err)

	issuer.SetClock(func() time.Time { return issued.Add(2 * time.Hour) })
	_, err = issuer.Validate(context.Background(), token)
	assert.ErrorIs(t, err, auth.ErrExpiredToken)
}

func TestSessionIssuer_RejectsForeignSignature(t *testing.T) {
	other, err := auth.NewSessionIssuer(&config.SessionConfig{SigningKey: "ffffffffffffffffffffffffffffffff", Issuer: "finance-dashboard", TTL: 60}, nil)
	require.NoError(t, err)
	token, _, err := other.Issue(context.Background(), testUser(), "upstream-token", "")
	require.NoError(t, err)

	_, err = newIssuer(t).Validate(context.Background(), token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	_, err = newIssuer(t).Validate(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestSessionIssuer_UpstreamTokenStaysOnServer(t *testing.T) {
	ctx := context.Background()
	fake := testutil.NewFakeRedis()
	issuer, err := auth.NewSessionIssuer(&config.SessionConfig{SigningKey: testKey, Issuer: "finance-dashboard", TTL: 60}, auth.NewRedisTokenStore(fake, "fd:"))
	require.NoError(t, err)

	token, _, err := issuer.Issue(ctx, testUser(), "upstream-token", "session-9")
	require.NoError(t, err)

	claims := jwt.MapClaims{}
	_, _, err = jwt.NewParser().ParseUnverified(token, claims)
	require.NoError(t, err)
	for name, value := range claims {
		assert.NotEqual(t, "upstream-token", value, name)
	}
	assert.Equal(t, []string{"fd:session-token:session-9"}, fake.Keys())
	assert.Equal(t, time.Hour, fake.TTL("fd:session-token:session-9"))

	user, err := issuer.Validate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "upstream-token", user.AccessToken)

	require.NoError(t, issuer.Revoke(ctx, "session-9"))
	_, err = issuer.Validate(ctx, token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
	assert.ErrorIs(t, err, auth.ErrSessionRevoked)
}

func TestSessionIssuer_TokenStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	fake := testutil.NewFakeRedis()
	issuer, err := auth.NewSessionIssuer(&config.SessionConfig{SigningKey: testKey, TTL: 60}, auth.NewRedisTokenStore(fake, ""))
	require.NoError(t, err)
	token, _, err := issuer.Issue(ctx, testUser(), "upstream-token", "")
	require.NoError(t, err)

	fake.FailWith(errors.New("connection refused"))
	_, err = issuer.Validate(ctx, token)
	require.Error(t, err)
	assert.NotErrorIs(t, err, auth.ErrInvalidToken)

	_, _, err = issuer.Issue(ctx, testUser(), "upstream-token", "")
	assert.Error(t, err)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	auth.NewMiddleware(issuer, zap.NewNop()).Authenticate(http.NotFoundHandler()).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestMemoryTokenStore_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := auth.NewMemoryTokenStore()
	store.SetClock(func() time.Time { return now })

	require.NoError(t, store.Put(ctx, "s-1", "abc", time.Hour))
	token, err := store.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	now = now.Add(time.Hour)
	_, err = store.Get(ctx, "s-1")
	assert.ErrorIs(t, err, auth.ErrSessionRevoked)

	_, err = store.Get(ctx, "unknown")
	assert.ErrorIs(t, err, auth.ErrSessionRevoked)
}

func TestMiddleware_Authenticate(t *testing.T) {
	issuer := newIssuer(t)
	mw := auth.NewMiddleware(issuer, zap.NewNop())

	var seen *auth.UserContext
	handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = auth.FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("missing header", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/invoices", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)

		var body domain.APIError
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, domain.ErrorTypeUnauthorized, body.Type)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices", nil)
		req.Header.Set("Authorization", "Basic abc")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		token, _, err := issuer.Issue(context.Background(), testUser(), "upstream-token", "")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
		require.NotNil(t, seen)
		assert.Equal(t, "upstream-token", seen.AccessToken)
	})
}

func TestAccessTokenFromContext(t *testing.T) {
	assert.Equal(t, "", auth.AccessTokenFromContext(context.Background()))

	ctx := auth.WithUserContext(context.Background(), &auth.UserContext{AccessToken: "abc"})
	assert.Equal(t, "abc", auth.AccessTokenFromContext(ctx))

	ctx = auth.WithRequestID(ctx, "req-1")
	assert.Equal(t, "req-1", auth.RequestIDFromContext(ctx))
}
