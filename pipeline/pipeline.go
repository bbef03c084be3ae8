// Package pipeline sequences cleaning and feature engineering into a single
// idempotent run over the on-disk artifacts.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/aluiziolira/go-books-pipeline/cleaning"
	"github.com/aluiziolira/go-books-pipeline/config"
	"github.com/aluiziolira/go-books-pipeline/dataset"
	"github.com/aluiziolira/go-books-pipeline/features"
	"github.com/aluiziolira/go-books-pipeline/models"
)

// Runner executes the transformation pipeline. It does not serialize runs:
// the caller must not start a second run against the same output paths while
// one is in flight.
type Runner struct {
	cfg     config.PipelineConfig
	metrics *Metrics
}

// NewRunner builds a Runner. metrics may be nil.
func NewRunner(cfg config.PipelineConfig, metrics *Metrics) *Runner {
	return &Runner{cfg: cfg, metrics: metrics}
}

// Run reads the raw artifact, cleans it, writes the processed artifact,
// engineers features from the fresh processed table, and writes the
// features artifact. Both writes are atomic replaces.
//
// A structural error reading the raw artifact aborts the run before any
// output is touched. A failure writing the features artifact after the
// processed artifact was replaced is reported as a run failure; the already
// written processed artifact stays in place.
func (r *Runner) Run(ctx context.Context) (*models.PipelineStats, error) {
	start := time.Now()
	log := zap.L().With(zap.String("input", r.cfg.InputFile))

	if err := r.cfg.Validate(); err != nil {
		return nil, r.fail(start, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, r.fail(start, eris.Wrap(err, "pipeline: context"))
	}

	raw, err := dataset.ReadRaw(r.cfg.InputFile)
	if err != nil {
		return nil, r.fail(start, eris.Wrap(err, "pipeline: read raw artifact"))
	}
	log.Info("raw artifact loaded", zap.Int("records", len(raw)))

	books, cleanStats := cleaning.Clean(raw, r.cfg)
	r.metrics.AddDropped("duplicate", cleanStats.DuplicatesDropped)
	r.metrics.AddDropped("missing_title", cleanStats.TitleDropped)
	r.metrics.AddDropped("bad_price", cleanStats.PriceDropped)
	log.Info("cleaning complete",
		zap.Int("input", cleanStats.Input),
		zap.Int("output", cleanStats.Output),
		zap.Int("duplicates_dropped", cleanStats.DuplicatesDropped),
		zap.Int("price_dropped", cleanStats.PriceDropped),
		zap.Int("ratings_defaulted", cleanStats.RatingsDefaulted),
		zap.Int("categories_normalized", cleanStats.CategoriesNormalized),
	)

	if err := dataset.WriteProcessed(r.cfg.ProcessedOutput, books); err != nil {
		return nil, r.fail(start, eris.Wrapf(err, "pipeline: write processed artifact %q", r.cfg.ProcessedOutput))
	}
	r.metrics.AddProcessed(len(books))

	table := features.Engineer(books)
	if err := dataset.WriteFeatures(r.cfg.FeaturesOutput, table); err != nil {
		return nil, r.fail(start, eris.Wrapf(err, "pipeline: write features artifact %q", r.cfg.FeaturesOutput))
	}

	elapsed := time.Since(start)
	r.metrics.ObserveRun("success", elapsed)

	stats := &models.PipelineStats{
		StartedAt:            start,
		RawRecords:           cleanStats.Input,
		DuplicatesDropped:    cleanStats.DuplicatesDropped,
		TitleDropped:         cleanStats.TitleDropped,
		PriceDropped:         cleanStats.PriceDropped,
		RatingsDefaulted:     cleanStats.RatingsDefaulted,
		CategoriesNormalized: cleanStats.CategoriesNormalized,
		ProcessedRecords:     cleanStats.Output,
		FeatureRecords:       len(table.Books),
		FeatureColumns:       len(table.Vocabulary),
		Elapsed:              elapsed,
	}

	log.Info("pipeline run complete",
		zap.Int("processed_records", stats.ProcessedRecords),
		zap.Int("feature_records", stats.FeatureRecords),
		zap.Int("categories", stats.FeatureColumns),
		zap.Duration("elapsed", elapsed),
	)
	return stats, nil
}

func (r *Runner) fail(start time.Time, err error) error {
	elapsed := time.Since(start)
	r.metrics.ObserveRun("failure", elapsed)
	zap.L().Error("pipeline run failed", zap.Duration("elapsed", elapsed), zap.Error(err))
	return err
}
