package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aluiziolira/go-books-pipeline/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "booksd",
	Short: "Books catalog data platform",
	Long:  "Scrapes the demo book catalog, cleans and feature-engineers the dataset, and serves it over HTTP.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := c.Validate(); err != nil {
			return fmt.Errorf("validate config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
