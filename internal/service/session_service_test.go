package service_test

import (
	"context"
	"testing"

	"github.com/straye-as/finance-dashboard/internal/apiclient"
	"github.com/straye-as/finance-dashboard/internal/auth"
	"github.com/straye-as/finance-dashboard/internal/config"
	"github.com/straye-as/finance-dashboard/internal/domain"
	"github.com/straye-as/finance-dashboard/internal/service"
	"github.com/straye-as/finance-dashboard/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSessionService(t *testing.T, fake *testutil.FakeAPI) (*service.SessionService, *auth.SessionIssuer) {
	t.Helper()
	issuer, err := auth.NewSessionIssuer(&config.SessionConfig{SigningKey: "0123456789abcdef0123456789abcdef", TTL: 30}, auth.NewMemoryTokenStore())
	require.NoError(t, err)
	return service.NewSessionService(newClient(t, fake), issuer, zap.NewNop()), issuer
}

func TestSessionService_LoginCarriesPermissions(t *testing.T) {
	fake := testutil.NewFakeAPI(t)
	u := addUser(fake, "1", domain.PermissionApproveInvoice, domain.PermissionMarkPaid)
	svc, issuer := newSessionService(t, fake)

	resp, err := svc.Login(context.Background(), domain.LoginRequest{Email: " User1@example.com ", Password: "password-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"approve-invoice", "mark-paid"}, resp.User.Permissions)

	userCtx, err := issuer.Validate(context.Background(), resp.Token)
	require.NoError(t, err)
	assert.Equal(t, u.token, userCtx.AccessToken)
	assert.True(t, userCtx.HasPermission(domain.PermissionMarkPaid))
	assert.False(t, userCtx.HasPermission(domain.PermissionSubmitInvoice))
}

func TestSessionService_LoginRejected(t *testing.T) {
	fake := testutil.NewFakeAPI(t)
	addUser(fake, "1")
	svc, _ := newSessionService(t, fake)

	_, err := svc.Login(context.Background(), domain.LoginRequest{Email: "user1@example.com", Password: "wrong"})
	apiErr, ok := apiclient.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, "These credentials do not match our records.", apiErr.Message)
}

func TestSessionService_RefreshRereadsPermissions(t *testing.T) {
	fake := testutil.NewFakeAPI(t)
	addUser(fake, "1", domain.PermissionSubmitInvoice)
	svc, issuer := newSessionService(t, fake)

	login, err := svc.Login(context.Background(), domain.LoginRequest{Email: "user1@example.com", Password: "password-1"})
	require.NoError(t, err)
	first, err := issuer.Validate(context.Background(), login.Token)
	require.NoError(t, err)

	fake.SetPermissions("1", domain.NewPermissionSet(domain.PermissionSubmitInvoice, domain.PermissionEditInvoice))

	refreshed, err := svc.Refresh(auth.WithUserContext(context.Background(), first))
	require.NoError(t, err)
	assert.Equal(t, []string{"edit-invoice", "submit-invoice"}, refreshed.User.Permissions)

	second, err := issuer.Validate(context.Background(), refreshed.Token)
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.True(t, second.HasPermission(domain.PermissionEditInvoice))
}

func TestSessionService_LogoutAndMe(t *testing.T) {
	fake := testutil.NewFakeAPI(t)
	u := addUser(fake, "1", domain.PermissionRejectInvoice)
	svc, issuer := newSessionService(t, fake)

	login, err := svc.Login(context.Background(), domain.LoginRequest{Email: "user1@example.com", Password: "password-1"})
	require.NoError(t, err)
	userCtx, err := issuer.Validate(context.Background(), login.Token)
	require.NoError(t, err)
	assert.Equal(t, u.token, userCtx.AccessToken)
	ctx := auth.WithUserContext(context.Background(), userCtx)

	me, err := svc.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1", me.ID)
	assert.Equal(t, []string{"reject-invoice"}, me.Permissions)

	require.NoError(t, svc.Logout(ctx))
	assert.Equal(t, 1, fake.CountRequests("POST /auth/logout"))

	_, err = issuer.Validate(context.Background(), login.Token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
	assert.ErrorIs(t, err, auth.ErrSessionRevoked)

	assert.ErrorIs(t, svc.Logout(context.Background()), service.ErrUnauthorized)
	_, err = svc.Me(context.Background())
	assert.ErrorIs(t, err, service.ErrUnauthorized)
}
