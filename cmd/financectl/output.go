package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/straye-as/finance-dashboard/internal/domain"
	"github.com/straye-as/finance-dashboard/internal/workflow"
)

type printer struct {
	w    io.Writer
	json bool
}

func newPrinter(w io.Writer, asJSON bool) *printer {
	return &printer{w: w, json: asJSON}
}

func (p *printer) emit(v interface{}) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) invoices(invoices []domain.Invoice, total int64, perms domain.PermissionSet) error {
	if p.json {
		return p.emit(map[string]interface{}{"invoices": invoices, "total": total})
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNUMBER\tSTATUS\tAMOUNT\tDATE\tACTIONS")
	for _, inv := range invoices {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			inv.ID, inv.InvoiceNumber, inv.Status, inv.InvoiceAmount.StringFixed(2), inv.InvoiceDate,
			actionNames(workflow.Actions(inv.Status, perms)))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(p.w, "%d of %d invoices\n", len(invoices), total)
	return err
}

func (p *printer) invoice(inv domain.Invoice, perms domain.PermissionSet) error {
	if p.json {
		return p.emit(inv)
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	row := func(k, v string) {
		if v != "" {
			fmt.Fprintf(tw, "%s:\t%s\n", k, v)
		}
	}
	row("Invoice", inv.InvoiceNumber)
	row("ID", inv.ID.String())
	row("Status", inv.Status.String())
	row("Amount", inv.InvoiceAmount.StringFixed(2))
	row("Date", inv.InvoiceDate.String())
	if inv.Customer != nil {
		row("Customer", inv.Customer.Name)
	}
	if inv.PurchaseOrder != nil {
		row("Purchase order", inv.PurchaseOrder.PONumber)
	}
	if inv.TaxInvoice != nil {
		row("Tax invoice", inv.TaxInvoice.TaxInvoiceNumber)
		row("Total incl. tax", inv.TaxInvoice.TotalAmount.StringFixed(2))
	}
	row("Rejection reason", inv.RejectionReason)
	row("Payment reference", inv.PaymentReference)
	row("Payment method", inv.PaymentMethod)
	row("Actions", actionNames(workflow.Actions(inv.Status, perms)))
	return tw.Flush()
}

func (p *printer) actions(status domain.InvoiceStatus, actions workflow.ActionSet) error {
	if p.json {
		names := make([]string, len(actions))
		for i, a := range actions {
			names[i] = string(a)
		}
		return p.emit(map[string]interface{}{"status": status, "actions": names})
	}
	if len(actions) == 0 {
		_, err := fmt.Fprintf(p.w, "No actions available for a %s invoice\n", status)
		return err
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ACTION\tLABEL\tTARGET\tINPUTS")
	for _, a := range actions {
		target, _ := workflow.TargetStatus(status, a)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a, a.Label(), target, strings.Join(workflow.RequiredInputs(a), ","))
	}
	return tw.Flush()
}

func (p *printer) auditTrail(entries []domain.AuditTrailEntry) error {
	if p.json {
		return p.emit(entries)
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tFROM\tTO\tBY\tREASON")
	for _, e := range entries {
		from := "-"
		if e.OldStatus != nil {
			from = e.OldStatus.String()
		}
		by := ""
		if e.User != nil {
			by = e.User.Name
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.CreatedAt.Format("2006-01-02 15:04"), from, e.NewStatus, by, e.Reason)
	}
	return tw.Flush()
}

func (p *printer) message(format string, args ...interface{}) error {
	if p.json {
		return p.emit(map[string]string{"message": fmt.Sprintf(format, args...)})
	}
	_, err := fmt.Fprintf(p.w, format+"\n", args...)
	return err
}

func actionNames(actions workflow.ActionSet) string {
	if len(actions) == 0 {
		return "-"
	}
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = string(a)
	}
	return strings.Join(names, ",")
}
