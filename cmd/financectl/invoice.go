package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/straye-as/finance-dashboard/internal/domain"
	"github.com/straye-as/finance-dashboard/internal/service"
	"go.uber.org/zap"
)

func newInvoiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "invoice",
		Aliases: []string{"invoices", "inv"},
		Short:   "List, inspect and move invoices through the approval workflow",
	}

	var (
		page, pageSize int
		status, search string
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List invoices with the actions available to you",
		Example: `  financectl invoice list --status "Submitted"
  financectl invoice list --search INV-10 --page 2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := domain.ListInvoicesFilter{Page: page, PageSize: pageSize, Search: search}
			if status != "" {
				s, err := domain.ParseInvoiceStatus(status)
				if err != nil {
					return err
				}
				filter.Status = s
			}
			return withSession(cmd, func(ctx context.Context, e *env, perms domain.PermissionSet) error {
				result, err := e.client.ListInvoices(ctx, filter)
				if err != nil {
					return err
				}
				return e.out.invoices(result.Invoices, result.Total, perms)
			})
		},
	}
	list.Flags().IntVar(&page, "page", 1, "page number")
	list.Flags().IntVar(&pageSize, "page-size", 15, "invoices per page")
	list.Flags().StringVar(&status, "status", "", "only invoices in this status")
	list.Flags().StringVar(&search, "search", "", "search invoice numbers and customers")

	show := &cobra.Command{
		Use:   "show <invoice-id>",
		Short: "Show one invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(cmd, args[0], func(ctx context.Context, e *env, ctrl *service.InvoiceController) error {
				inv, _ := ctrl.Invoice()
				return e.out.invoice(inv, ctrl.Permissions())
			})
		},
	}

	actions := &cobra.Command{
		Use:   "actions <invoice-id>",
		Short: "Show the workflow actions you can take on an invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(cmd, args[0], func(ctx context.Context, e *env, ctrl *service.InvoiceController) error {
				inv, _ := ctrl.Invoice()
				return e.out.actions(inv.Status, ctrl.Actions())
			})
		},
	}

	audit := &cobra.Command{
		Use:   "audit <invoice-id>",
		Short: "Show the status history of an invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(cmd, args[0], func(ctx context.Context, e *env, ctrl *service.InvoiceController) error {
				entries, err := ctrl.AuditTrail(ctx)
				if err != nil {
					return err
				}
				return e.out.auditTrail(entries)
			})
		},
	}

	cmd.AddCommand(list, show, actions, audit)
	cmd.AddCommand(
		actionCmd("submit", "Submit a Tax Generated invoice to finance", nil,
			func(ctx context.Context, c *service.InvoiceController) (domain.Invoice, error) { return c.Submit(ctx) }),
		actionCmd("approve", "Approve a Submitted invoice", nil,
			func(ctx context.Context, c *service.InvoiceController) (domain.Invoice, error) { return c.Approve(ctx) }),
		newRejectCmd(),
		newPayCmd(),
		newEditCmd(),
	)
	return cmd
}

type actionFunc func(ctx context.Context, ctrl *service.InvoiceController) (domain.Invoice, error)

// actionCmd builds a command that loads the invoice, runs one action and prints the result
func actionCmd(use, short string, flags func(*cobra.Command), run actionFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <invoice-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(cmd, args[0], func(ctx context.Context, e *env, ctrl *service.InvoiceController) error {
				before, _ := ctrl.Invoice()
				after, err := run(ctx, ctrl)
				if err != nil {
					return err
				}
				e.logger.Debug("invoice action completed",
					zap.String("invoice_id", after.ID.String()),
					zap.String("from", before.Status.String()),
					zap.String("to", after.Status.String()))
				if e.out.json {
					return e.out.emit(after)
				}
				return e.out.message("%s: %s -> %s", after.InvoiceNumber, before.Status, after.Status)
			})
		},
	}
	if flags != nil {
		flags(cmd)
	}
	return cmd
}

func newRejectCmd() *cobra.Command {
	var reason string
	return actionCmd("reject", "Reject a Submitted or Approved invoice",
		func(cmd *cobra.Command) {
			cmd.Flags().StringVar(&reason, "reason", "", "why the invoice is rejected (at least 10 characters)")
		},
		func(ctx context.Context, c *service.InvoiceController) (domain.Invoice, error) {
			return c.Reject(ctx, reason)
		})
}

func newPayCmd() *cobra.Command {
	var reference, method, notes string
	return actionCmd("pay", "Record the payment of an Approved invoice",
		func(cmd *cobra.Command) {
			cmd.Flags().StringVar(&reference, "reference", "", "payment reference, e.g. the bank transfer id")
			cmd.Flags().StringVar(&method, "method", "", "payment method")
			cmd.Flags().StringVar(&notes, "notes", "", "optional payment notes")
		},
		func(ctx context.Context, c *service.InvoiceController) (domain.Invoice, error) {
			return c.MarkPaid(ctx, reference, method, notes)
		})
}

func newEditCmd() *cobra.Command {
	var amount, date string
	return actionCmd("edit", "Change amount and date of a Draft invoice",
		func(cmd *cobra.Command) {
			cmd.Flags().StringVar(&amount, "amount", "", "invoice amount; empty means 0")
			cmd.Flags().StringVar(&date, "date", "", "invoice date as YYYY-MM-DD")
		},
		func(ctx context.Context, c *service.InvoiceController) (domain.Invoice, error) {
			return c.Edit(ctx, amount, date)
		})
}

// withSession resolves the caller's permissions once and runs fn
func withSession(cmd *cobra.Command, fn func(ctx context.Context, e *env, perms domain.PermissionSet) error) error {
	e, err := newEnv(cmd, true)
	if err != nil {
		return err
	}
	defer func() { _ = e.logger.Sync() }()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	user, err := e.client.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("failed to load current user: %w", err)
	}
	e.logger.Debug("acting as user",
		zap.String("user_id", user.ID.String()),
		zap.Strings("permissions", user.Permissions.Strings()))
	return fn(ctx, e, user.Permissions)
}

// withController loads the invoice into a controller bound to the caller's permissions
func withController(cmd *cobra.Command, id string, fn func(ctx context.Context, e *env, ctrl *service.InvoiceController) error) error {
	return withSession(cmd, func(ctx context.Context, e *env, perms domain.PermissionSet) error {
		ctrl := service.NewInvoiceController(e.client, perms, e.logger)
		if _, err := ctrl.Load(ctx, domain.ID(id)); err != nil {
			return err
		}
		return fn(ctx, e, ctrl)
	})
}
