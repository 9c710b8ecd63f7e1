package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agenttrust/trustcore/internal/capability"
	"github.com/agenttrust/trustcore/internal/config"
	"github.com/agenttrust/trustcore/internal/logger"
	"github.com/agenttrust/trustcore/internal/store/postgres"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a capability expiry sweep immediately, outside the server's interval",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		ctx := context.Background()
		st, err := postgres.NewStore(ctx, postgres.Config{
			Host: cfg.Postgres.Host, Port: cfg.Postgres.Port, User: cfg.Postgres.User,
			Password: cfg.Postgres.Password, Database: cfg.Postgres.Database,
			SSLMode: cfg.Postgres.SSLMode, MaxConns: cfg.Postgres.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer st.Close()

		log := logger.New(cmd.OutOrStdout(), logger.ParseLevel(cfg.LogLevel))
		eng := capability.New(st, log)

		n, err := eng.ExpireSweep(ctx)
		if err != nil {
			return fmt.Errorf("sweep: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "expired %d capabilities\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
