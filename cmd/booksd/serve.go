package main

import (
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aluiziolira/go-books-pipeline/history"
	"github.com/aluiziolira/go-books-pipeline/pipeline"
	"github.com/aluiziolira/go-books-pipeline/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dataset API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}

		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return eris.Wrap(err, "open history store")
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate history store")
		}

		metrics := pipeline.NewMetrics()
		runner := pipeline.NewRunner(cfg.Pipeline, metrics)

		srv := server.New(*cfg, runner, store, prometheus.Gatherer(metrics.Registry))

		zap.L().Info("serving dataset API", zap.String("addr", cfg.Server.Addr))
		return srv.ListenAndServe(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}
