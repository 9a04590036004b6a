package apiclient_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/straye-as/finance-dashboard/internal/apiclient"
	"github.com/straye-as/finance-dashboard/internal/domain"
	"github.com/straye-as/finance-dashboard/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newClient(t *testing.T, baseURL, token string) *apiclient.Client {
	t.Helper()
	c, err := apiclient.New(apiclient.Config{BaseURL: baseURL, Timeout: 5 * time.Second}, apiclient.StaticToken(token), zap.NewNop())
	require.NoError(t, err)
	return c
}

func seedFinanceUser(api *testutil.FakeAPI, perms ...domain.PermissionType) string {
	return api.AddUser(domain.SessionUser{
		ID:          "42",
		Name:        "Finance User",
		Email:       "finance@example.com",
		Permissions: domain.NewPermissionSet(perms...),
	}, "password123")
}

func TestNew_RequiresHTTPBaseURL(t *testing.T) {
	_, err := apiclient.New(apiclient.Config{}, nil, nil)
	assert.Error(t, err)

	_, err = apiclient.New(apiclient.Config{BaseURL: "ftp://example.com"}, nil, nil)
	assert.Error(t, err)

	_, err = apiclient.New(apiclient.Config{BaseURL: "https://api.example.com/v1"}, nil, nil)
	assert.NoError(t, err)
}

func TestClient_SendsBearerTokenAndKeepsBasePath(t *testing.T) {
	var gotAuth, gotPath, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":1,"invoice_number":"INV-1","status":"Draft"}`))
	}))
	defer srv.Close()

	c, err := apiclient.New(apiclient.Config{BaseURL: srv.URL + "/api/", UserAgent: "financectl"}, apiclient.StaticToken("abc"), zap.NewNop())
	require.NoError(t, err)

	inv, err := c.GetInvoice(context.Background(), "1")
	require.NoError(t, err)

	assert.Equal(t, "Bearer abc", gotAuth)
	assert.Equal(t, "/api/invoices/1", gotPath)
	assert.Equal(t, "financectl", gotUA)
	assert.Equal(t, "INV-1", inv.InvoiceNumber)
}

func TestClient_EscapesInvoiceIDs(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, "")
	_, err := c.GetAuditTrail(context.Background(), "a/b")
	require.NoError(t, err)
	assert.Equal(t, "/invoices/a%2Fb/audit-trail", gotPath)
}

func TestClient_APIErrorCarriesServerMessage(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
		kind    apiclient.ErrorKind
	}{
		{"forbidden", http.StatusForbidden, `{"message":"You do not have permission to approve invoices."}`, "You do not have permission to approve invoices.", apiclient.KindAuthorization},
		{"unauthenticated", http.StatusUnauthorized, `{"message":"Unauthenticated."}`, "Unauthenticated.", apiclient.KindAuthorization},
		{"not found", http.StatusNotFound, `{"message":"Invoice not found."}`, "Invoice not found.", apiclient.KindNotFound},
		{"business rule", http.StatusUnprocessableEntity, `{"message":"Invoice cannot be approved in Draft status."}`, "Invoice cannot be approved in Draft status.", apiclient.KindBusinessRule},
		{"server error without body", http.StatusInternalServerError, ``, "Internal Server Error", apiclient.KindServer},
		{"problem detail", http.StatusConflict, `{"detail":"Already submitted"}`, "Already submitted", apiclient.KindBusinessRule},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newClient(t, srv.URL, "t").ApproveInvoice(context.Background(), "1")
			apiErr, ok := apiclient.AsAPIError(err)
			require.True(t, ok, "expected APIError, got %v", err)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.message, apiErr.Message)
			assert.Equal(t, tt.kind, apiErr.Kind())
		})
	}
}

func TestClient_APIErrorFieldErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"The given data was invalid.","errors":{"payment_reference":["The payment reference field is required."],"payment_method":"Required"}}`))
	}))
	defer srv.Close()

	_, err := newClient(t, srv.URL, "t").MarkInvoicePaid(context.Background(), "1", domain.PaymentDetails{})
	apiErr, ok := apiclient.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, "The payment reference field is required.", apiErr.Errors["payment_reference"])
	assert.Equal(t, "Required", apiErr.Errors["payment_method"])
	assert.Equal(t, []string{"payment_method", "payment_reference"}, apiErr.FieldNames())
}

func TestClient_TransportErrors(t *testing.T) {
	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := newClient(t, url, "t").SubmitInvoice(context.Background(), "1")
		require.Error(t, err)
		assert.True(t, apiclient.IsTransport(err))

		var tErr *apiclient.TransportError
		require.ErrorAs(t, err, &tErr)
		assert.Equal(t, apiclient.GenericTransportMessage, tErr.UserMessage())
	})

	t.Run("undecodable body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>proxy error</html>`))
		}))
		defer srv.Close()

		_, err := newClient(t, srv.URL, "t").GetInvoice(context.Background(), "1")
		assert.True(t, apiclient.IsTransport(err))
	})

	t.Run("out of set status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"data":{"id":1,"status":"Archived"}}`))
		}))
		defer srv.Close()

		_, err := newClient(t, srv.URL, "t").GetInvoice(context.Background(), "1")
		assert.True(t, apiclient.IsTransport(err))
	})
}

func TestClient_InvoiceWorkflowAgainstFakeAPI(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	token := seedFinanceUser(api, domain.AllPermissions()...)
	api.AddInvoice(domain.Invoice{ID: "1001", InvoiceNumber: "INV-1001", Status: domain.InvoiceStatusTaxGenerated})
	api.AddInvoice(domain.Invoice{ID: "1004", InvoiceNumber: "INV-1004", Status: domain.InvoiceStatusDraft})

	c := newClient(t, api.URL(), token)
	ctx := context.Background()

	inv, err := c.SubmitInvoice(ctx, "1001")
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusSubmitted, inv.Status)
	require.NotNil(t, inv.SubmittedAt)
	assert.Equal(t, "Finance User", inv.Submitter.Name)

	inv, err = c.ApproveInvoice(ctx, "1001")
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusApproved, inv.Status)

	inv, err = c.MarkInvoicePaid(ctx, "1001", domain.PaymentDetails{Reference: "TRX-9", Method: "bank_transfer"})
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusPaid, inv.Status)
	assert.Equal(t, "TRX-9", inv.PaymentReference)
	require.NotNil(t, inv.RecordedBy)

	trail, err := c.GetAuditTrail(ctx, "1001")
	require.NoError(t, err)
	require.Len(t, trail, 3)
	assert.Equal(t, domain.InvoiceStatusTaxGenerated, *trail[0].OldStatus)
	assert.Equal(t, domain.InvoiceStatusPaid, trail[2].NewStatus)

	inv, err = c.UpdateInvoice(ctx, "1004", domain.InvoiceEdit{Amount: decimal.RequireFromString("99.95"), Date: domain.NewDate(2024, 6, 1)})
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusDraft, inv.Status)
	assert.True(t, inv.InvoiceAmount.Equal(decimal.RequireFromString("99.95")))
	assert.Equal(t, "2024-06-01", inv.InvoiceDate.String())
}

func TestClient_ListInvoices(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	token := seedFinanceUser(api)
	for _, n := range []string{"1", "2", "3"} {
		api.AddInvoice(domain.Invoice{ID: domain.ID(n), InvoiceNumber: "INV-00" + n, Status: domain.InvoiceStatusSubmitted})
	}

	page, err := newClient(t, api.URL(), token).ListInvoices(context.Background(), domain.ListInvoicesFilter{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 2, page.PageSize)
	require.Len(t, page.Invoices, 1)
	assert.Equal(t, "INV-003", page.Invoices[0].InvoiceNumber)
}

func TestClient_ListInvoices_BareArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Approved", r.URL.Query().Get("status"))
		_, _ = w.Write([]byte(`[{"id":"a","invoice_number":"INV-A","status":"Approved"}]`))
	}))
	defer srv.Close()

	page, err := newClient(t, srv.URL, "").ListInvoices(context.Background(), domain.ListInvoicesFilter{Status: domain.InvoiceStatusApproved, Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.PageSize)
}

func TestClient_SessionCalls(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	seedFinanceUser(api, domain.PermissionSubmitInvoice)
	ctx := context.Background()

	anon := newClient(t, api.URL(), "")
	login, err := anon.Login(ctx, "finance@example.com", "password123")
	require.NoError(t, err)
	assert.NotEmpty(t, login.Token)
	assert.True(t, login.User.Permissions.Has(domain.PermissionSubmitInvoice))

	authed := anon.WithTokenSource(apiclient.StaticToken(login.Token))
	user, err := authed.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ID("42"), user.ID)
	assert.Equal(t, []string{"submit-invoice"}, user.Permissions.Strings())

	require.NoError(t, authed.Logout(ctx))

	_, err = anon.Login(ctx, "finance@example.com", "wrong")
	apiErr, ok := apiclient.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, "These credentials do not match our records.", apiErr.Message)

	_, err = anon.CurrentUser(ctx)
	apiErr, ok = apiclient.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestClient_IdentityCalls(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	token := seedFinanceUser(api)
	ctx := context.Background()
	anon := newClient(t, api.URL(), "")

	require.NoError(t, anon.RequestPasswordReset(ctx, "finance@example.com"))
	assert.Error(t, anon.VerifyPasswordResetCode(ctx, "finance@example.com", "000000"))
	require.NoError(t, anon.VerifyPasswordResetCode(ctx, "finance@example.com", testutil.DefaultOTP))
	require.NoError(t, anon.ResetPassword(ctx, "finance@example.com", testutil.DefaultOTP, "new-password", "new-password"))
	assert.Equal(t, "new-password", api.Password("finance@example.com"))

	authed := newClient(t, api.URL(), token)
	require.NoError(t, authed.RequestEmailChange(ctx, "new@example.com", "new-password"))
	require.NoError(t, authed.ConfirmEmailChange(ctx, "new@example.com", testutil.DefaultOTP))
	assert.Equal(t, "new@example.com", api.Email("42"))
}

func TestClient_Notifications(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	token := seedFinanceUser(api)
	now := time.Now()
	api.AddNotification(domain.Notification{ID: "1", Type: "invoice", Title: "Invoice approved", CreatedAt: now})
	api.AddNotification(domain.Notification{ID: "2", Type: "invoice", Title: "Invoice paid", ReadAt: &now, CreatedAt: now})

	c := newClient(t, api.URL(), token)
	page, err := c.ListNotifications(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Len(t, page.Notifications, 2)
	assert.Equal(t, int64(2), page.Total)

	count, err := c.UnreadNotificationCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestClient_Health(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	c := newClient(t, api.URL(), "")

	_, err := c.Health(context.Background())
	assert.NoError(t, err)

	api.SetHealthy(false)
	_, err = c.Health(context.Background())
	apiErr, ok := apiclient.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, apiclient.KindServer, apiErr.Kind())
}

func TestClient_InvoiceActionMessageOnlyResponse(t *testing.T) {
	for _, body := range []string{
		`{"message":"Invoice approved successfully."}`,
		`{"success":true,"data":null}`,
		``,
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(body))
		}))

		c := newClient(t, srv.URL, "abc")
		inv, err := c.ApproveInvoice(context.Background(), "7")
		srv.Close()

		require.NoError(t, err, body)
		assert.Nil(t, inv, body)
	}
}

func TestClient_InvoiceActionMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"invoice":`))
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, "abc")
	_, err := c.ApproveInvoice(context.Background(), "7")
	var transportErr *apiclient.TransportError
	assert.ErrorAs(t, err, &transportErr)
}
