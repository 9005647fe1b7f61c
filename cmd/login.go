// File: cmd/login.go
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tistorylab/autopub/internal/observability"
	"github.com/tistorylab/autopub/internal/service"
)

// newLoginCmd creates the `login` command, which opens a browser for an
// interactive Kakao login and waits for it to finish.
func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Opens a browser to log in to Tistory and saves the session cookies",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			app, err := service.BuildApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Store.InitSchema(ctx); err != nil {
				return fmt.Errorf("failed to initialize database schema: %w", err)
			}

			session, err := app.Logins.StartLogin(ctx)
			if err != nil {
				return err
			}
			logger.Info("Login session started.", zap.String("session_id", session.ID))
			fmt.Fprintln(cmd.OutOrStdout(), "Complete the Kakao login in the browser window.")

			for {
				select {
				case <-ctx.Done():
					app.Logins.CancelLogin(session.ID)
					return ctx.Err()
				case <-time.After(2 * time.Second):
				}

				current := app.Logins.LoginStatus(session.ID)
				if current.LiveViewURL != "" && session.LiveViewURL == "" {
					session.LiveViewURL = current.LiveViewURL
					fmt.Fprintf(cmd.OutOrStdout(), "Live view: %s\n", current.LiveViewURL)
				}
				if current.Status.Terminal() {
					fmt.Fprintf(cmd.OutOrStdout(), "Login %s: %s\n", current.Status, current.Message)
					return nil
				}
			}
		},
	}
}
