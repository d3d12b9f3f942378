// Command crudgate migrates and seeds the authorization tables, evaluates
// access decisions and runs gated operations on the sample invoices table.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/diewo77/go-crudgate/auth"
	"github.com/diewo77/go-crudgate/gate"
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

func execute(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(context.Background()); err != nil {
		if k := gate.KindOf(err); k != 0 {
			_, _ = fmt.Fprintf(stderr, "Error: [%s] %v\n", k, err)
		} else {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var id identityFlags

	root := &cobra.Command{
		Use:           "crudgate",
		Short:         "Access-controlled CRUD over the application database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&id.userID, "user-id", os.Getenv("CRUDGATE_USER_ID"), "Caller user id")
	root.PersistentFlags().StringVar(&id.token, "token", os.Getenv("CRUDGATE_TOKEN"), "Caller session token")
	root.PersistentFlags().StringVar(&id.login, "login", os.Getenv("CRUDGATE_LOGIN"), "Caller login name (username or email)")

	root.AddCommand(newMigrateCmd())
	root.AddCommand(newSeedCmd())
	root.AddCommand(newCheckCmd(&id))
	root.AddCommand(newInvoicesCmd(&id))
	root.AddCommand(newAuditCmd(&id))

	return root
}

type identityFlags struct {
	userID string
	token  string
	login  string
}

func (f *identityFlags) userInfo() auth.UserInfo {
	return auth.UserInfo{UserID: f.userID, Token: f.token, LoginName: f.login}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
