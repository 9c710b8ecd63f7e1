package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agenttrust/trustcore/internal/config"
	"github.com/agenttrust/trustcore/internal/ledger"
	"github.com/agenttrust/trustcore/internal/logger"
	"github.com/agenttrust/trustcore/internal/store/postgres"
)

var verifyChainCmd = &cobra.Command{
	Use:   "verify-chain <agent-id>",
	Short: "Re-verify an agent's event chain and report any violations",
	Args:  cobra.ExactArgs(1),
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
		ldg := ledger.New(st, log)

		result, err := ldg.VerifyAgentChain(ctx, args[0])
		if err != nil {
			return fmt.Errorf("verify chain: %w", err)
		}

		if result.Valid {
			fmt.Fprintf(cmd.OutOrStdout(), "chain valid: %d events\n", result.EventCount)
			return nil
		}

		fmt.Fprintf(cmd.OutOrStdout(), "chain invalid: %d events, %d violations\n",
			result.EventCount, len(result.Violations))
		for _, v := range result.Violations {
			fmt.Fprintf(cmd.OutOrStdout(), "  event %d (%s): %s\n", v.EventIndex, v.EventHash, v.Reason)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyChainCmd)
}
