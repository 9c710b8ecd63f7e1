package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agenttrust/trustcore/internal/config"
	"github.com/agenttrust/trustcore/internal/store/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the trust core schema to the configured database",
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

		if err := st.ApplySchema(ctx); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
		fmt.Println("schema applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
