package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/diewo77/go-crudgate/internal/crud"
	"github.com/diewo77/go-crudgate/internal/models"
	"github.com/diewo77/go-crudgate/validation"
)

func newInvoicesCmd(id *identityFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invoices",
		Short: "Gated operations on the sample invoices table",
	}

	cmd.AddCommand(newInvoicesListCmd(id))
	cmd.AddCommand(newInvoicesCreateCmd(id))
	cmd.AddCommand(newInvoicesUpdateCmd(id))
	cmd.AddCommand(newInvoicesSetCmd(id))
	cmd.AddCommand(newInvoicesDeleteCmd(id))

	return cmd
}

// withInvoices runs fn with the invoices service of a fresh App.
func withInvoices(cmd *cobra.Command, fn func(*crud.Service[models.Invoice]) error) error {
	app, err := NewApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	svc, err := app.Invoices()
	if err != nil {
		return err
	}
	return fn(svc)
}

func toFilter(m map[string]string) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func newInvoicesListCmd(id *identityFlags) *cobra.Command {
	var (
		ids    []string
		filter map[string]string
		skip   int
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the invoices the caller may read",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withInvoices(cmd, func(svc *crud.Service[models.Invoice]) error {
				out, err := svc.Get(cmd.Context(), crud.GetRequest{
					UserInfo: id.userInfo(),
					IDs:      ids,
					Filter:   toFilter(filter),
					Skip:     skip,
					Limit:    limit,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}

	cmd.Flags().StringSliceVar(&ids, "id", nil, "Invoice id (repeatable)")
	cmd.Flags().StringToStringVar(&filter, "filter", nil, "Column equality filter, e.g. status=draft")
	cmd.Flags().IntVar(&skip, "skip", 0, "Records to skip")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum records to return")

	return cmd
}

func newInvoicesCreateCmd(id *identityFlags) *cobra.Command {
	var inv models.Invoice

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an invoice owned by the caller",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withInvoices(cmd, func(svc *crud.Service[models.Invoice]) error {
				out, err := svc.Save(cmd.Context(), crud.SaveRequest[models.Invoice]{
					UserInfo: id.userInfo(),
					Records:  []models.Invoice{inv},
					Validate: validation.Invoice,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}

	cmd.Flags().StringVar(&inv.Number, "number", "", "Invoice number")
	cmd.Flags().StringVar(&inv.ClientName, "client", "", "Client name")
	cmd.Flags().Float64Var(&inv.AmountHT, "amount", 0, "Amount excluding VAT")
	cmd.Flags().Float64Var(&inv.VATRate, "vat", 0.2, "VAT rate between 0 and 1")
	cmd.Flags().StringVar((*string)(&inv.Status), "status", string(models.InvoiceStatusDraft), "Invoice status")

	return cmd
}

func newInvoicesUpdateCmd(id *identityFlags) *cobra.Command {
	var (
		invoiceID string
		client    string
		amount    float64
		status    string
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update one invoice",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if invoiceID == "" {
				return errors.New("--id is required")
			}
			return withInvoices(cmd, func(svc *crud.Service[models.Invoice]) error {
				ctx := cmd.Context()
				current, err := svc.Get(ctx, crud.GetRequest{UserInfo: id.userInfo(), IDs: []string{invoiceID}})
				if err != nil {
					return err
				}
				inv := current[0]
				flags := cmd.Flags()
				if flags.Changed("client") {
					inv.ClientName = client
				}
				if flags.Changed("amount") {
					inv.AmountHT = amount
				}
				if flags.Changed("status") {
					inv.Status = models.InvoiceStatus(status)
				}
				out, err := svc.Save(ctx, crud.SaveRequest[models.Invoice]{
					UserInfo: id.userInfo(),
					Records:  []models.Invoice{inv},
					Validate: validation.InvoiceChange(current[0]),
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}

	cmd.Flags().StringVar(&invoiceID, "id", "", "Invoice id")
	cmd.Flags().StringVar(&client, "client", "", "New client name")
	cmd.Flags().Float64Var(&amount, "amount", 0, "New amount excluding VAT")
	cmd.Flags().StringVar(&status, "status", "", "New status")

	return cmd
}

func newInvoicesSetCmd(id *identityFlags) *cobra.Command {
	var filter, changes map[string]string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Apply column changes to every invoice matching a filter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withInvoices(cmd, func(svc *crud.Service[models.Invoice]) error {
				out, err := svc.Save(cmd.Context(), crud.SaveRequest[models.Invoice]{
					UserInfo: id.userInfo(),
					Filter:   toFilter(filter),
					Changes:  toFilter(changes),
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}

	cmd.Flags().StringToStringVar(&filter, "filter", nil, "Column equality filter")
	cmd.Flags().StringToStringVar(&changes, "set", nil, "Column changes, e.g. status=final")

	return cmd
}

func newInvoicesDeleteCmd(id *identityFlags) *cobra.Command {
	var (
		ids    []string
		filter map[string]string
	)

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete invoices by id or filter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withInvoices(cmd, func(svc *crud.Service[models.Invoice]) error {
				out, err := svc.Delete(cmd.Context(), crud.DeleteRequest{
					UserInfo: id.userInfo(),
					IDs:      ids,
					Filter:   toFilter(filter),
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}

	cmd.Flags().StringSliceVar(&ids, "id", nil, "Invoice id (repeatable)")
	cmd.Flags().StringToStringVar(&filter, "filter", nil, "Column equality filter")

	return cmd
}
