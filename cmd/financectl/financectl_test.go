package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/straye-as/finance-dashboard/internal/domain"
	"github.com/straye-as/finance-dashboard/internal/testutil"
	"github.com/straye-as/finance-dashboard/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func setupFake(t *testing.T, perms ...domain.PermissionType) (*testutil.FakeAPI, string) {
	t.Helper()
	fake := testutil.NewFakeAPI(t)
	token := fake.AddUser(domain.SessionUser{
		ID:          "7",
		Name:        "Kari Nordmann",
		Email:       "kari@example.com",
		Permissions: domain.NewPermissionSet(perms...),
	}, "old-password")
	fake.AddInvoice(domain.Invoice{
		ID:            "1001",
		InvoiceNumber: "INV-1001",
		Status:        domain.InvoiceStatusTaxGenerated,
		InvoiceAmount: decimal.NewFromInt(9800),
		InvoiceDate:   domain.NewDate(2024, time.April, 2),
	})
	fake.AddInvoice(domain.Invoice{
		ID:            "1002",
		InvoiceNumber: "INV-1002",
		Status:        domain.InvoiceStatusSubmitted,
		InvoiceAmount: decimal.NewFromInt(1200),
		InvoiceDate:   domain.NewDate(2024, time.April, 3),
	})
	return fake, token
}

func TestInvoiceList_ShowsActionsOfCaller(t *testing.T) {
	fake, token := setupFake(t, domain.PermissionSubmitInvoice)

	out, err := execute(t, "invoice", "list", "--api-url", fake.URL(), "--token", token)
	require.NoError(t, err)
	assert.Contains(t, out, "INV-1001")
	assert.Contains(t, out, "INV-1002")
	assert.Contains(t, out, "submit")
	assert.NotContains(t, out, "approve")
	assert.Contains(t, out, "2 of 2 invoices")
}

func TestInvoiceActions_JSON(t *testing.T) {
	fake, token := setupFake(t, domain.PermissionApproveInvoice, domain.PermissionRejectInvoice)

	out, err := execute(t, "invoice", "actions", "1002", "--api-url", fake.URL(), "--token", token, "-o", "json")
	require.NoError(t, err)

	var resp struct {
		Status  string   `json:"status"`
		Actions []string `json:"actions"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "Submitted", resp.Status)
	assert.Equal(t, []string{string(workflow.ActionApprove), string(workflow.ActionReject)}, resp.Actions)
}

func TestInvoiceSubmit(t *testing.T) {
	fake, token := setupFake(t, domain.PermissionSubmitInvoice)

	out, err := execute(t, "invoice", "submit", "1001", "--api-url", fake.URL(), "--token", token)
	require.NoError(t, err)
	assert.Contains(t, out, "INV-1001: Tax Generated -> Submitted")
	assert.Equal(t, domain.InvoiceStatusSubmitted, fake.Invoice("1001").Status)
}

func TestInvoiceApprove_WithoutPermissionNeverSent(t *testing.T) {
	fake, token := setupFake(t, domain.PermissionSubmitInvoice)

	_, err := execute(t, "invoice", "approve", "1002", "--api-url", fake.URL(), "--token", token)
	require.Error(t, err)
	assert.ErrorIs(t, err, workflow.ErrPermissionDenied)
	assert.Zero(t, fake.CountMutations())
}

func TestInvoiceReject_ShortReasonRefusedLocally(t *testing.T) {
	fake, token := setupFake(t, domain.PermissionRejectInvoice)

	_, err := execute(t, "invoice", "reject", "1002", "--reason", "too short", "--api-url", fake.URL(), "--token", token)
	require.Error(t, err)
	var verr *workflow.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, workflow.InputRejectionReason)
	assert.Zero(t, fake.CountMutations())
}

func TestInvoiceCommands_RequireToken(t *testing.T) {
	t.Setenv("FINANCECTL_TOKEN", "")
	fake, _ := setupFake(t)

	_, err := execute(t, "invoice", "list", "--api-url", fake.URL())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API token is required")
	assert.Empty(t, fake.Requests())
}

func TestPasswordReset_Flow(t *testing.T) {
	fake, _ := setupFake(t)

	out, err := execute(t, "password-reset", "request", "--email", " Kari@Example.com ", "--api-url", fake.URL())
	require.NoError(t, err)
	assert.Contains(t, out, "kari@example.com")

	_, err = execute(t, "password-reset", "verify", "--email", "kari@example.com", "--code", testutil.DefaultOTP, "--api-url", fake.URL())
	require.NoError(t, err)

	_, err = execute(t, "password-reset", "complete", "--email", "kari@example.com", "--code", testutil.DefaultOTP,
		"--password", "new-password-1", "--api-url", fake.URL())
	require.NoError(t, err)
	assert.Equal(t, "new-password-1", fake.Password("kari@example.com"))
}

func TestPasswordReset_MalformedCodeNeverSent(t *testing.T) {
	fake, _ := setupFake(t)

	_, err := execute(t, "password-reset", "verify", "--email", "kari@example.com", "--code", "12ab", "--api-url", fake.URL())
	require.Error(t, err)
	assert.Zero(t, fake.CountRequests("POST /auth/verify-otp"))
}

func TestDescribeError_UpstreamMessageVerbatim(t *testing.T) {
	fake, _ := setupFake(t)
	fake.FailNext(422, "Too many reset requests. Please wait before retrying.")

	_, err := execute(t, "password-reset", "request", "--email", "kari@example.com", "--api-url", fake.URL())
	require.Error(t, err)
	assert.Equal(t, "Too many reset requests. Please wait before retrying.", describeError(err))
}
