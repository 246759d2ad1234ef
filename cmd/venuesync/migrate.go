package main

import (
	"github.com/alfredjeanlab/venuesync/internal/config"
	"github.com/alfredjeanlab/venuesync/internal/store/postgres"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:     "migrate",
	Short:   "Apply database migrations and exit",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		// postgres.New applies pending migrations before returning.
		s, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		logger.Info("migrations applied")
		return s.Close()
	},
}
