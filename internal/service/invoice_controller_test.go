package service_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/straye-as/finance-dashboard/internal/apiclient"
	"github.com/straye-as/finance-dashboard/internal/domain"
	"github.com/straye-as/finance-dashboard/internal/service"
	"github.com/straye-as/finance-dashboard/internal/testutil"
	"github.com/straye-as/finance-dashboard/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func loadedController(t *testing.T, fake *testutil.FakeAPI, u testUser, inv domain.Invoice) (*service.InvoiceController, context.Context) {
	t.Helper()
	fake.AddInvoice(inv)
	ctx := sessionCtx(u, "session-1")
	ctrl := service.NewInvoiceController(newClient(t, fake), u.user.Permissions, zap.NewNop())
	_, err := ctrl.Load(ctx, inv.ID)
	require.NoError(t, err)
	return ctrl, ctx
}

func TestInvoiceController_SubmitTaxGenerated(t *testing.T) {
	fake := testutil.NewFakeAPI(t)
	u := addUser(fake, "1", domain.PermissionSubmitInvoice)
	ctrl, ctx := loadedController(t, fake, u, invoice("1001", "INV-1001", domain.InvoiceStatusTaxGenerated))

	assert.Equal(t, workflow.ActionSet{workflow.ActionSubmit}, ctrl.Actions())

	updated, err := ctrl.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusSubmitted, updated.Status)
	require.NotNil(t, updated.SubmittedAt)
	require.NotNil(t, updated.Submitter)
	assert.Equal(t, domain.ID("1"), updated.Submitter.ID)

	local, ok := ctrl.Invoice()
	require.True(t, ok)
	assert.Equal(t, domain.InvoiceStatusSubmitted, local.Status)
	assert.Equal(t, domain.InvoiceStatusSubmitted, fake.Invoice("1001").Status)

	// one mutation, then the refetch
	assert.Equal(t, 1, fake.CountMutations())
	assert.Equal(t, 2, fake.CountRequests("GET /invoices/1001"))
	assert.False(t, ctrl.Busy())
	assert.Empty(t, ctrl.Actions())
}

func TestInvoiceController_RejectSubmitted(t *testing.T) {
	fake := testutil.NewFakeAPI(t)
	u := addUser(fake, "2", domain.PermissionRejectInvoice)
	ctrl, ctx := loadedController(t, fake, u, invoice("1002", "INV-1002", domain.InvoiceStatusSubmitted))

	updated, err := ctrl.Reject(ctx, "Wrong amount entered")
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusRejected, updated.Status)
	assert.Equal(t, "Wrong amount entered", updated.RejectionReason)
	assert.NotNil(t, updated.RejectedAt)
}

func TestInvoiceController_ApprovedWithoutMarkPaid(t *testing.T) {
	fake := testutil.NewFakeAPI(t)
	u := addUser(fake, "3", domain.PermissionApproveInvoice, domain.PermissionRejectInvoice)
	ctrl, ctx := loadedController(t, fake, u, invoice("1003", "INV-1003", domain.InvoiceStatusApproved))

	assert.False(t, ctrl.Actions().Contains(workflow.ActionMarkPaid))
	assert.Equal(t, workflow.ActionSet{workflow.ActionReject}, ctrl.Actions())

	_, err := ctrl.MarkPaid(ctx, "PAY-1", "bank_transfer", "")
	assert.ErrorIs(t, err, workflow.ErrPermissionDenied)
	assert.Zero(t, fake.CountMutations())
}

func TestInvoiceController_EditCoercesEmptyAmount(t *testing.T) {
	fake := testutil.NewFakeAPI(t)
	u := addUser(fake, "4", domain.PermissionEditInvoice)
	ctrl, ctx := loadedController(t, fake, u, invoice("1004", "INV-1004", domain.InvoiceStatusDraft))

	assert.True(t, ctrl.Editable())

	updated, err := ctrl.Edit(ctx, "", "2024-04-15")
	require.NoError(t, err)
	assert.True(t, updated.InvoiceAmount.Equal(decimal.Zero))
	assert.Equal(t, "2024-04-15", updated.InvoiceDate.String())
	assert.Equal(t, domain.InvoiceStatusDraft, updated.Status)
	assert.True(t, fake.Invoice("1004").InvoiceAmount.Equal(decimal.Zero))
}

func TestInvoiceController_BlocksBeforeAnyRequest(t *testing.T) {
	fake := testutil.NewFakeAPI(t)
	u := addUser(fake, "5", domain.PermissionRejectInvoice, domain.PermissionMarkPaid, domain.PermissionApproveInvoice)
	ctrl, ctx := loadedController(t, fake, u, invoice("1005", "INV-1005", domain.InvoiceStatusSubmitted))
	before, _ := ctrl.Invoice()

	t.Run("short rejection reason", func(t *testing.T) {
		_, err := ctrl.Reject(ctx, "  too short ")
		var vErr *workflow.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.Fields, workflow.InputRejectionReason)
	})

	t.Run("missing payment fields", func(t *testing.T) {
		_, err := ctrl.MarkPaid(ctx, "", " ", "note")
		var vErr *workflow.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Len(t, vErr.Fields, 2)
	})

	t.Run("action not valid in status", func(t *testing.T) {
		_, err := ctrl.MarkPaid(ctx, "PAY-1", "cash", "")
		assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
	})

	t.Run("actions outside the table", func(t *testing.T) {
		_, err := ctrl.Submit(ctx)
		assert.ErrorIs(t, err, workflow.ErrInvalidTransition)

		_, err = ctrl.Edit(ctx, "10", "2024-01-01")
		assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
	})

	assert.Zero(t, fake.CountMutations())
	after, _ := ctrl.Invoice()
	assert.Equal(t, before, after)
}

func TestInvoiceController_ServerRefusalLeavesStateUnchanged(t *testing.T) {
	fake := testutil.NewFakeAPI(t)
	u := addUser(fake, "6", domain.PermissionApproveInvoice)
	ctrl, ctx := loadedController(t, fake, u, invoice("1006", "INV-1006", domain.InvoiceStatusSubmitted))
	before, _ := ctrl.Invoice()

	fake.FailNext(http.StatusUnprocessableEntity, "Invoice total exceeds purchase order budget.")
	_, err := ctrl.Approve(ctx)

	apiErr, ok := apiclient.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, "Invoice total exceeds purchase order budget.", apiErr.Message)
	assert.Equal(t, apiclient.KindBusinessRule, apiErr.Kind())

	after, _ := ctrl.Invoice()
	assert.Equal(t, before, after)
	assert.False(t, ctrl.Busy())
	// no retry and no refetch
	assert.Equal(t, 1, fake.CountRequests("POST /invoices/1006/approve"))
	assert.Equal(t, 1, fake.CountRequests("GET /invoices/1006"))
}

func TestInvoiceController_ServerPermissionRefusal(t *testing.T) {
	fake := testutil.NewFakeAPI(t)
	u := addUser(fake, "7", domain.PermissionApproveInvoice)
	ctrl, ctx := loadedController(t, fake, u, invoice("1007", "INV-1007", domain.InvoiceStatusSubmitted))

	// revoked server-side after the session was loaded
	fake.SetPermissions("7", domain.NewPermissionSet())

	_, err := ctrl.Approve(ctx)
	apiErr, ok := apiclient.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, apiclient.KindAuthorization, apiErr.Kind())
	assert.Equal(t, "You do not have permission to perform this action.", apiErr.Message)

	local, _ := ctrl.Invoice()
	assert.Equal(t, domain.InvoiceStatusSubmitted, local.Status)
}

func TestInvoiceController_NotLoaded(t *testing.T) {
	ctrl := service.NewInvoiceController(&stubStore{}, domain.NewPermissionSet(domain.PermissionSubmitInvoice), zap.NewNop())

	_, err := ctrl.Submit(context.Background())
	assert.ErrorIs(t, err, service.ErrInvoiceNotLoaded)
	_, err = ctrl.AuditTrail(context.Background())
	assert.ErrorIs(t, err, service.ErrInvoiceNotLoaded)
	assert.Empty(t, ctrl.Actions())
}

func TestInvoiceController_OneActionInFlight(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	inv := invoice("9", "INV-9", domain.InvoiceStatusTaxGenerated)

	store := &stubStore{
		get: func(context.Context, domain.ID) (*domain.Invoice, error) {
			cp := inv
			return &cp, nil
		},
		submit: func(context.Context, domain.ID) (*domain.Invoice, error) {
			close(entered)
			<-release
			cp := inv
			cp.Status = domain.InvoiceStatusSubmitted
			return &cp, nil
		},
	}
	ctrl := service.NewInvoiceController(store, domain.NewPermissionSet(domain.PermissionSubmitInvoice), zap.NewNop())
	_, err := ctrl.Load(context.Background(), "9")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := ctrl.Submit(context.Background())
		done <- err
	}()

	<-entered
	assert.True(t, ctrl.Busy())
	assert.Empty(t, ctrl.Actions())

	_, err = ctrl.Submit(context.Background())
	assert.ErrorIs(t, err, service.ErrActionInProgress)
	_, err = ctrl.Load(context.Background(), "9")
	assert.ErrorIs(t, err, service.ErrActionInProgress)

	close(release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("submit did not complete")
	}
	assert.False(t, ctrl.Busy())
}

func TestInvoiceController_RefetchFailureKeepsResponse(t *testing.T) {
	calls := 0
	inv := invoice("10", "INV-10", domain.InvoiceStatusTaxGenerated)
	store := &stubStore{
		get: func(context.Context, domain.ID) (*domain.Invoice, error) {
			calls++
			if calls > 1 {
				return nil, &apiclient.TransportError{Op: "GET invoices/10", Err: errors.New("connection reset")}
			}
			cp := inv
			return &cp, nil
		},
		submit: func(context.Context, domain.ID) (*domain.Invoice, error) {
			cp := inv
			cp.Status = domain.InvoiceStatusSubmitted
			return &cp, nil
		},
	}
	ctrl := service.NewInvoiceController(store, domain.NewPermissionSet(domain.PermissionSubmitInvoice), zap.NewNop())
	_, err := ctrl.Load(context.Background(), "10")
	require.NoError(t, err)

	updated, err := ctrl.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusSubmitted, updated.Status)
}

func TestInvoiceController_MessageOnlyResponseUsesRefetch(t *testing.T) {
	inv := invoice("12", "INV-12", domain.InvoiceStatusTaxGenerated)
	store := &stubStore{
		get: func(context.Context, domain.ID) (*domain.Invoice, error) {
			cp := inv
			return &cp, nil
		},
		submit: func(context.Context, domain.ID) (*domain.Invoice, error) {
			inv.Status = domain.InvoiceStatusSubmitted
			return nil, nil
		},
	}
	ctrl := service.NewInvoiceController(store, domain.NewPermissionSet(domain.PermissionSubmitInvoice), zap.NewNop())
	_, err := ctrl.Load(context.Background(), "12")
	require.NoError(t, err)

	updated, err := ctrl.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusSubmitted, updated.Status)

	local, ok := ctrl.Invoice()
	require.True(t, ok)
	assert.Equal(t, domain.InvoiceStatusSubmitted, local.Status)
}

func TestInvoiceController_MessageOnlyResponseAndRefetchFailure(t *testing.T) {
	calls := 0
	inv := invoice("13", "INV-13", domain.InvoiceStatusTaxGenerated)
	refetchErr := &apiclient.TransportError{Op: "GET invoices/13", Err: errors.New("connection reset")}
	store := &stubStore{
		get: func(context.Context, domain.ID) (*domain.Invoice, error) {
			calls++
			if calls > 1 {
				return nil, refetchErr
			}
			cp := inv
			return &cp, nil
		},
		submit: func(context.Context, domain.ID) (*domain.Invoice, error) {
			return nil, nil
		},
	}
	ctrl := service.NewInvoiceController(store, domain.NewPermissionSet(domain.PermissionSubmitInvoice), zap.NewNop())
	_, err := ctrl.Load(context.Background(), "13")
	require.NoError(t, err)

	_, err = ctrl.Submit(context.Background())
	require.ErrorIs(t, err, refetchErr)

	// local state is untouched and the controller is free again
	local, ok := ctrl.Invoice()
	require.True(t, ok)
	assert.Equal(t, domain.InvoiceStatusTaxGenerated, local.Status)
	assert.False(t, ctrl.Busy())
}

func TestInvoiceController_SetPermissions(t *testing.T) {
	inv := invoice("11", "INV-11", domain.InvoiceStatusSubmitted)
	store := &stubStore{get: func(context.Context, domain.ID) (*domain.Invoice, error) {
		cp := inv
		return &cp, nil
	}}
	ctrl := service.NewInvoiceController(store, domain.NewPermissionSet(), zap.NewNop())
	_, err := ctrl.Load(context.Background(), "11")
	require.NoError(t, err)
	assert.Empty(t, ctrl.Actions())

	ctrl.SetPermissions(domain.NewPermissionSet(domain.PermissionApproveInvoice, domain.PermissionRejectInvoice))
	assert.Equal(t, workflow.ActionSet{workflow.ActionApprove, workflow.ActionReject}, ctrl.Actions())
}

func TestInvoiceController_AuditTrail(t *testing.T) {
	fake := testutil.NewFakeAPI(t)
	u := addUser(fake, "12", domain.PermissionSubmitInvoice, domain.PermissionApproveInvoice)
	ctrl, ctx := loadedController(t, fake, u, invoice("1012", "INV-1012", domain.InvoiceStatusTaxGenerated))

	_, err := ctrl.Submit(ctx)
	require.NoError(t, err)
	_, err = ctrl.Approve(ctx)
	require.NoError(t, err)

	entries, err := ctrl.AuditTrail(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.InvoiceStatusSubmitted, entries[0].NewStatus)
	require.NotNil(t, entries[1].OldStatus)
	assert.Equal(t, domain.InvoiceStatusSubmitted, *entries[1].OldStatus)
	assert.Equal(t, domain.InvoiceStatusApproved, entries[1].NewStatus)
}
