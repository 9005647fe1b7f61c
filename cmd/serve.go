// File: cmd/serve.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tistorylab/autopub/internal/observability"
	"github.com/tistorylab/autopub/internal/service"
)

// newServeCmd creates the `serve` command, which runs the HTTP API.
func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Runs the publishing service and its HTTP API",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("server.listen_addr", cmd.Flags().Lookup("listen")); err != nil {
				return err
			}
			return viper.BindPFlags(cmd.Flags())
		},
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

			logger.Info("Serving.",
				zap.String("addr", cfg.Server.ListenAddr),
				zap.String("blog", cfg.Tistory.BlogName),
				zap.Bool("remote_browser", cfg.Remote.Enabled))
			return app.Run(ctx)
		},
	}

	serveCmd.Flags().String("listen", "", "listen address (overrides server.listen_addr)")
	return serveCmd
}
