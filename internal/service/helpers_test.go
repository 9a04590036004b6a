package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/straye-as/finance-dashboard/internal/apiclient"
	"github.com/straye-as/finance-dashboard/internal/auth"
	"github.com/straye-as/finance-dashboard/internal/domain"
	"github.com/straye-as/finance-dashboard/internal/testutil"
	"github.com/stretchr/testify/require"
)

type testUser struct {
	user  domain.SessionUser
	token string
}

func newClient(t *testing.T, fake *testutil.FakeAPI) *apiclient.Client {
	t.Helper()
	client, err := apiclient.New(apiclient.Config{BaseURL: fake.URL(), Timeout: 5 * time.Second}, auth.AccessTokenFromContext, nil)
	require.NoError(t, err)
	return client
}

func addUser(fake *testutil.FakeAPI, id string, perms ...domain.PermissionType) testUser {
	user := domain.SessionUser{
		ID:          domain.ID(id),
		Name:        "User " + id,
		Email:       "user" + id + "@example.com",
		Permissions: domain.NewPermissionSet(perms...),
	}
	return testUser{user: user, token: fake.AddUser(user, "password-"+id)}
}

// sessionCtx is the request context of an authenticated dashboard session
func sessionCtx(u testUser, sessionID string) context.Context {
	return auth.WithUserContext(context.Background(), &auth.UserContext{
		UserID:      u.user.ID,
		DisplayName: u.user.Name,
		Email:       u.user.Email,
		Permissions: u.user.Permissions,
		AccessToken: u.token,
		SessionID:   sessionID,
	})
}

func invoice(id, number string, status domain.InvoiceStatus) domain.Invoice {
	return domain.Invoice{
		ID:            domain.ID(id),
		InvoiceNumber: number,
		Status:        status,
		InvoiceAmount: decimal.NewFromInt(12500),
		InvoiceDate:   domain.NewDate(2024, time.March, 1),
		Customer:      &domain.CustomerRef{ID: "c-1", Name: "Acme AS"},
	}
}

// stubStore is an InvoiceStore whose calls can be intercepted
type stubStore struct {
	get    func(ctx context.Context, id domain.ID) (*domain.Invoice, error)
	submit func(ctx context.Context, id domain.ID) (*domain.Invoice, error)
}

func (s *stubStore) GetInvoice(ctx context.Context, id domain.ID) (*domain.Invoice, error) {
	return s.get(ctx, id)
}

func (s *stubStore) SubmitInvoice(ctx context.Context, id domain.ID) (*domain.Invoice, error) {
	return s.submit(ctx, id)
}

func (s *stubStore) ApproveInvoice(context.Context, domain.ID) (*domain.Invoice, error) {
	panic("unexpected call")
}

func (s *stubStore) RejectInvoice(context.Context, domain.ID, string) (*domain.Invoice, error) {
	panic("unexpected call")
}

func (s *stubStore) MarkInvoicePaid(context.Context, domain.ID, domain.PaymentDetails) (*domain.Invoice, error) {
	panic("unexpected call")
}

func (s *stubStore) UpdateInvoice(context.Context, domain.ID, domain.InvoiceEdit) (*domain.Invoice, error) {
	panic("unexpected call")
}

func (s *stubStore) GetAuditTrail(context.Context, domain.ID) ([]domain.AuditTrailEntry, error) {
	return []domain.AuditTrailEntry{}, nil
}

func (s *stubStore) ListInvoices(context.Context, domain.ListInvoicesFilter) (*domain.InvoicePage, error) {
	return &domain.InvoicePage{}, nil
}
