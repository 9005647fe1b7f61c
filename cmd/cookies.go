// File: cmd/cookies.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tistorylab/autopub/internal/observability"
	"github.com/tistorylab/autopub/internal/service"
)

// newCookiesCmd creates the `cookies` command group for inspecting and
// clearing the stored login session.
func newCookiesCmd() *cobra.Command {
	cookiesCmd := &cobra.Command{
		Use:   "cookies",
		Short: "Manages the stored Tistory session cookies",
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Shows whether session cookies are stored for the configured blog",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			app, err := service.BuildApp(ctx, cfg, observability.GetLogger())
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Store.InitSchema(ctx); err != nil {
				return err
			}

			status, err := app.Authenticator.Status(ctx)
			if err != nil {
				return err
			}
			if status.HasCookies {
				fmt.Fprintf(cmd.OutOrStdout(), "Cookies for %q saved at %s.\n", status.BlogName, status.SavedAt)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "No cookies stored for %q. Run `autopub login` first.\n", status.BlogName)
			}
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Deletes the stored session cookies",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			app, err := service.BuildApp(ctx, cfg, observability.GetLogger())
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Store.InitSchema(ctx); err != nil {
				return err
			}

			if err := app.Authenticator.Clear(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cookies for %q cleared.\n", cfg.Tistory.BlogName)
			return nil
		},
	}

	cookiesCmd.AddCommand(statusCmd)
	cookiesCmd.AddCommand(clearCmd)
	return cookiesCmd
}
