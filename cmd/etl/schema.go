package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pmdss/internal/config"
	"pmdss/internal/logger"
	"pmdss/internal/store"
)

func initSchemaCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "init-schema",
		Short: "Create the dwh schema, dimension and fact tables if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.New(cfg.Verbose)
			ctx := cmd.Context()

			db, err := store.OpenWithOptions(ctx, cfg.WarehouseDatabaseURL, store.OpenOptions{MaxElapsed: time.Minute, Logger: log})
			if err != nil {
				return fmt.Errorf("warehouse database: %w", err)
			}
			defer db.Close()

			applied, err := store.ApplySchema(ctx, db)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				log.Info("warehouse schema already up to date")
				return nil
			}
			log.Info("warehouse schema applied", "files", applied)
			return nil
		},
	}
}
