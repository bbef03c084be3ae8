package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aluiziolira/go-books-pipeline/dataset"
	"github.com/aluiziolira/go-books-pipeline/scraper"
)

var (
	scrapePages  int
	scrapeOutput string
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Crawl the catalog and write the raw artifact",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		scraperCfg := cfg.Scraper
		if scrapePages > 0 {
			scraperCfg.MaxPages = scrapePages
		}
		output := cfg.Pipeline.InputFile
		if scrapeOutput != "" {
			output = scrapeOutput
		}

		s, err := scraper.NewScraper(scraperCfg)
		if err != nil {
			return eris.Wrap(err, "init scraper")
		}

		zap.L().Info("starting scrape",
			zap.String("base_url", scraperCfg.BaseURL),
			zap.Int("max_pages", scraperCfg.MaxPages),
			zap.Int("parallelism", scraperCfg.Parallelism),
		)

		result, err := s.Run(ctx)
		if err != nil {
			return eris.Wrap(err, "scrape")
		}

		if err := dataset.WriteRaw(output, result.Books); err != nil {
			return eris.Wrapf(err, "write raw artifact %q", output)
		}

		zap.L().Info("scrape complete",
			zap.Int("books", len(result.Books)),
			zap.Int("requests", result.RequestCount),
			zap.Int("errors", result.ErrorCount),
			zap.Int("retries", result.RetryCount),
			zap.Int("failed_urls", len(result.FailedURLs)),
			zap.Duration("elapsed", result.EndTime.Sub(result.StartTime)),
			zap.String("output", output),
		)
		return nil
	},
}

func init() {
	scrapeCmd.Flags().IntVar(&scrapePages, "pages", 0, "maximum catalog pages to crawl (default from config)")
	scrapeCmd.Flags().StringVar(&scrapeOutput, "output", "", "raw artifact path (default from config)")
	rootCmd.AddCommand(scrapeCmd)
}
