package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/talent-search/internal/config"
	"github.com/jonathan/talent-search/internal/logger"
)

var migrateConfigPath string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long:  `Bring the configured database schema up to date and exit.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(migrateConfigPath)
		if err != nil {
			return err
		}
		log, err := logger.New(cfg.Logging.Level, cfg.Logging.Pretty)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		defer func() { _ = log.Sync() }()

		// Opening the store applies pending migrations.
		_, closeStore, err := openStore(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		closeStore()

		fmt.Fprintf(cmd.OutOrStdout(), "Migrations applied (%s)\n", cfg.Database.Driver)
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateConfigPath, "config", "", "Path to a YAML config file (optional)")
	rootCmd.AddCommand(migrateCmd)
}
