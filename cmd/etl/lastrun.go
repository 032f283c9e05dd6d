package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"pmdss/internal/config"
	"pmdss/internal/logger"
	"pmdss/internal/runlog"
	"pmdss/internal/store"
)

func lastRunCmd(cfg *config.Config) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "last-run",
		Short: "Print the most recent run report, or the last --limit reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(cfg.RedisURL) == "" {
				return errors.New("REDIS_URL is not set; run history is kept in redis")
			}
			ctx := cmd.Context()
			client, err := store.OpenRedis(ctx, cfg.RedisURL)
			if err != nil {
				return err
			}
			defer client.Close()

			runs := runlog.NewRedisStore(client, cfg.RunHistorySize)
			if limit > 1 {
				reports, err := runs.Recent(ctx, limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), reports)
			}
			report, err := runs.Last(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 1, "Number of reports to print, newest first")
	return cmd
}

func showRunCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "show-run [object-key]",
		Short: "Print an archived run report from object storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cfg.MinIO.Enabled() {
				return errors.New("MINIO_ENDPOINT is not set; no run archive configured")
			}
			archive, err := runlog.NewArchive(cmd.Context(), cfg.MinIO, logger.New(cfg.Verbose))
			if err != nil {
				return err
			}
			report, err := archive.Fetch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
