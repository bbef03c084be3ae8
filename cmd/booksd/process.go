package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aluiziolira/go-books-pipeline/history"
	"github.com/aluiziolira/go-books-pipeline/pipeline"
)

var processNoHistory bool

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run the cleaning and feature-engineering pipeline once",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var store *history.Store
		if !processNoHistory {
			s, err := history.Open(cfg.History.Path)
			if err != nil {
				return eris.Wrap(err, "open history store")
			}
			defer s.Close()
			if err := s.Migrate(ctx); err != nil {
				return eris.Wrap(err, "migrate history store")
			}
			store = s
		}

		runner := pipeline.NewRunner(cfg.Pipeline, pipeline.NewMetrics())
		stats, runErr := runner.Run(ctx)

		if store != nil {
			if _, err := store.RecordRun(ctx, stats, runErr); err != nil {
				zap.L().Error("record run", zap.Error(err))
			}
		}
		if runErr != nil {
			return runErr
		}

		zap.L().Info("processing complete",
			zap.Int("raw_records", stats.RawRecords),
			zap.Int("processed_records", stats.ProcessedRecords),
			zap.Int("feature_records", stats.FeatureRecords),
			zap.Duration("elapsed", stats.Elapsed),
		)
		return nil
	},
}

func init() {
	processCmd.Flags().BoolVar(&processNoHistory, "no-history", false, "skip recording the run in the history store")
	rootCmd.AddCommand(processCmd)
}
