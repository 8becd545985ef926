package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/unclebandit/mailcampaign/internal/config"
	"github.com/unclebandit/mailcampaign/internal/db"
	"github.com/unclebandit/mailcampaign/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run history schema tool",
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply the run history schema",
	RunE:  runUp,
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the run history schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := fmt.Fprint(cmd.OutOrStdout(), db.Schema())
		return err
	},
}

func init() {
	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(schemaCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runUp(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.Database.Enabled() {
		return fmt.Errorf("database.host is not set")
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	conn, err := db.Open(cfg.Database, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	if err := db.Migrate(ctx, conn); err != nil {
		return err
	}

	log.Info().Msg("schema applied")
	return nil
}
