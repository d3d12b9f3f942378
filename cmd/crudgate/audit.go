package main

import (
	"github.com/spf13/cobra"

	"github.com/diewo77/go-crudgate/gate"
)

const auditResource = "audit_logs"

func newAuditCmd(id *identityFlags) *cobra.Command {
	var (
		table string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the latest audit entries of a table",
		Long:  "Show the latest audit entries of a table. The caller needs read access to audit_logs.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := NewApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := cmd.Context()
			if _, err := app.gate.Authorize(ctx, gate.Request{
				Task:        gate.TaskRead,
				Credentials: id.userInfo().Credentials(),
				Resource:    auditResource,
			}); err != nil {
				return err
			}
			entries, err := app.audit.List(ctx, table, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entries)
		},
	}

	cmd.Flags().StringVar(&table, "table", "invoices", "Audited table")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum entries to show")

	return cmd
}
