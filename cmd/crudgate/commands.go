package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/diewo77/go-crudgate/auth"
	"github.com/diewo77/go-crudgate/gate"
	"github.com/diewo77/go-crudgate/internal/audit"
	"github.com/diewo77/go-crudgate/internal/db"
)

func newMigrateCmd() *cobra.Command {
	var useSQL bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp()
			if err != nil {
				return err
			}
			defer app.Close()

			if useSQL {
				if d := strings.ToLower(app.cfg.Database.Driver); d != "postgres" && d != "postgresql" {
					return fmt.Errorf("--sql requires the postgres driver, got %q", app.cfg.Database.Driver)
				}
				if err := db.MigrateSQL(app.cfg.Database.URL()); err != nil {
					return err
				}
			} else if err := db.Migrate(app.db); err != nil {
				return err
			}
			app.log.Info("migrations completed")
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "migrations completed")
			return nil
		},
	}

	cmd.Flags().BoolVar(&useSQL, "sql", false, "Apply the versioned SQL migrations instead of AutoMigrate (postgres only)")

	return cmd
}

func newSeedCmd() *cobra.Command {
	var (
		account db.Account
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the default groups, services and grants",
		Long: "Create the default groups, services and grants. With --account, also create\n" +
			"an active user in --group and print a fresh session for it.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp()
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := cmd.Context()
			if err := db.Seed(ctx, app.db); err != nil {
				return err
			}
			if account.Username == "" {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "seed completed")
				return nil
			}

			account.TTL = ttl
			sess, err := db.SeedAccount(ctx, app.db, account)
			if err != nil {
				return err
			}
			if err := audit.LoginLog(ctx, app.audit, sess.UserID, sess.LoginName); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), auth.UserInfo{
				UserID:    sess.UserID,
				LoginName: sess.LoginName,
				Email:     account.Email,
				Token:     sess.Token,
				Expire:    sess.Expire.UTC(),
				Group:     account.Group,
			})
		},
	}

	cmd.Flags().StringVar(&account.Username, "account", "", "Username of an account to create")
	cmd.Flags().StringVar(&account.Email, "email", "", "Email of the account")
	cmd.Flags().StringVar(&account.Group, "group", "viewer", "Group of the account")
	cmd.Flags().BoolVar(&account.Admin, "admin", false, "Make the account an administrator")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Session lifetime")

	return cmd
}

func newCheckCmd(id *identityFlags) *cobra.Command {
	var (
		task        string
		resource    string
		ids         []string
		loginStatus bool
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate an access decision for the caller",
		Long: "Evaluate whether the caller identified by --user-id, --token and --login may\n" +
			"perform --task on --resource (and --id records). Prints the verdict as JSON.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := NewApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			creds := id.userInfo().Credentials()
			if loginStatus {
				identity, err := app.gate.CheckLoginStatus(cmd.Context(), creds)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), identity)
			}

			t, _ := gate.ParseTask(task)
			verdict, err := app.gate.Authorize(cmd.Context(), gate.Request{
				Task:        t,
				Credentials: creds,
				Resource:    resource,
				RecordIDs:   ids,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), verdict)
		},
	}

	cmd.Flags().StringVar(&task, "task", "read", "Task: create, insert, read, update, delete or remove")
	cmd.Flags().StringVar(&resource, "resource", "invoices", "Resource (service) name")
	cmd.Flags().StringSliceVar(&ids, "id", nil, "Target record id (repeatable)")
	cmd.Flags().BoolVar(&loginStatus, "login-status", false, "Only verify the session and account")

	return cmd
}
