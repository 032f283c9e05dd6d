package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pmdss/internal/config"
)

var Version = "dev"

func main() {
	cfg := config.Load()

	rootCmd := &cobra.Command{
		Use:           "pmdss-etl",
		Short:         "Load the project management warehouse from the operational database",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Enable debug logging")

	rootCmd.AddCommand(runCmd(&cfg))
	rootCmd.AddCommand(initSchemaCmd(&cfg))
	rootCmd.AddCommand(lastRunCmd(&cfg))
	rootCmd.AddCommand(showRunCmd(&cfg))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
