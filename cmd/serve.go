package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/consentgate/internal/config"
	"github.com/xkilldash9x/consentgate/internal/observability"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the consent gateway server.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := config.Get()
		logger := observability.GetLogger()
		defer observability.Sync()

		components, err := buildComponents(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer components.Shutdown()

		logger.Info("Consent gateway ready",
			zap.String("addr", cfg.Server.Addr),
			zap.Bool("postgres", cfg.Postgres.URL != ""),
			zap.Bool("redis", cfg.Redis.Addr != ""))

		return components.Server.Run(ctx, cfg.Server.Addr)
	},
}
