package pipeline

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-books-pipeline/config"
	"github.com/aluiziolira/go-books-pipeline/dataset"
)

var rawHeader = []string{"title", "price", "rating", "category", "availability", "stock", "image", "product_page"}

func writeRawFixture(t *testing.T, path string, rows [][]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	w := csv.NewWriter(f)
	require.NoError(t, w.Write(rawHeader))
	require.NoError(t, w.WriteAll(rows))
	require.NoError(t, f.Close())
}

func testConfig(t *testing.T) config.PipelineConfig {
	dir := t.TempDir()
	return config.PipelineConfig{
		InputFile:             filepath.Join(dir, "raw", "books_raw.csv"),
		ProcessedOutput:       filepath.Join(dir, "processed", "books_processed.csv"),
		FeaturesOutput:        filepath.Join(dir, "features", "books_features.csv"),
		DefaultCategory:       "Uncategorized",
		ProblematicCategories: []string{"Default", "Add a comment"},
	}
}

func fixtureRows() [][]string {
	return [][]string{
		{"A", "£19.99", "Five", "Default", "yes", "3", "img/a.jpg", "page/a"},
		{"B", "", "Three", "Fiction", "no", "0", "img/b.jpg", "page/b"},
		{"C: The Sequel", "£44.10", "Two", "Poetry", "In stock (12 available)", "In stock (12 available)", "img/c.jpg", "page/c"},
		{"C: The Sequel", "£44.10", "Two", "Poetry", "In stock (12 available)", "In stock (12 available)", "img/c.jpg", "page/c"},
	}
}

func TestRunProducesArtifactsAndStats(t *testing.T) {
	cfg := testConfig(t)
	writeRawFixture(t, cfg.InputFile, fixtureRows())

	runner := NewRunner(cfg, NewMetrics())
	stats, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, stats.RawRecords)
	assert.Equal(t, 1, stats.DuplicatesDropped)
	assert.Equal(t, 1, stats.PriceDropped)
	assert.Equal(t, 2, stats.ProcessedRecords)
	assert.Equal(t, 2, stats.FeatureRecords)
	assert.Equal(t, 2, stats.FeatureColumns)
	assert.Positive(t, stats.Elapsed)

	books, err := dataset.ReadProcessed(cfg.ProcessedOutput)
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, "Uncategorized", books[0].Category)
	assert.True(t, books[0].Availability)

	table, err := dataset.ReadFeatures(cfg.FeaturesOutput)
	require.NoError(t, err)
	require.Len(t, table.Books, 2)
	assert.Equal(t, []string{"Poetry", "Uncategorized"}, table.Vocabulary)
}

func TestRunIsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	writeRawFixture(t, cfg.InputFile, fixtureRows())

	runner := NewRunner(cfg, nil)
	_, err := runner.Run(context.Background())
	require.NoError(t, err)

	firstProcessed, err := os.ReadFile(cfg.ProcessedOutput)
	require.NoError(t, err)
	firstFeatures, err := os.ReadFile(cfg.FeaturesOutput)
	require.NoError(t, err)
	firstMeta, err := os.ReadFile(dataset.MetaPath(cfg.FeaturesOutput))
	require.NoError(t, err)

	_, err = runner.Run(context.Background())
	require.NoError(t, err)

	secondProcessed, err := os.ReadFile(cfg.ProcessedOutput)
	require.NoError(t, err)
	secondFeatures, err := os.ReadFile(cfg.FeaturesOutput)
	require.NoError(t, err)
	secondMeta, err := os.ReadFile(dataset.MetaPath(cfg.FeaturesOutput))
	require.NoError(t, err)

	assert.Equal(t, firstProcessed, secondProcessed, "processed artifact must be byte-identical on rerun")
	assert.Equal(t, firstFeatures, secondFeatures, "features artifact must be byte-identical on rerun")
	assert.Equal(t, firstMeta, secondMeta)
}

func TestRunStructuralErrorLeavesArtifactsUntouched(t *testing.T) {
	cfg := testConfig(t)
	writeRawFixture(t, cfg.InputFile, fixtureRows())

	runner := NewRunner(cfg, nil)
	_, err := runner.Run(context.Background())
	require.NoError(t, err)

	prior, err := os.ReadFile(cfg.ProcessedOutput)
	require.NoError(t, err)

	// Replace the raw artifact with one missing the stock column.
	f, err := os.Create(cfg.InputFile)
	require.NoError(t, err)
	w := csv.NewWriter(f)
	require.NoError(t, w.Write([]string{"title", "price", "rating", "category", "availability", "image", "product_page"}))
	require.NoError(t, w.Write([]string{"A", "£1.00", "One", "Fiction", "yes", "i", "p"}))
	w.Flush()
	require.NoError(t, f.Close())

	_, err = runner.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, dataset.ErrSchema)

	after, err := os.ReadFile(cfg.ProcessedOutput)
	require.NoError(t, err)
	assert.Equal(t, prior, after, "prior artifacts must remain servable after a structural failure")
}

func TestRunMissingInput(t *testing.T) {
	cfg := testConfig(t)

	_, err := NewRunner(cfg, nil).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, dataset.ErrUnavailable)
}

func TestRunFeatureWriteFailureKeepsProcessed(t *testing.T) {
	cfg := testConfig(t)
	writeRawFixture(t, cfg.InputFile, fixtureRows())

	// Make the features output directory uncreatable by shadowing it with a file.
	require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Dir(cfg.FeaturesOutput)), 0o755))
	require.NoError(t, os.WriteFile(filepath.Dir(cfg.FeaturesOutput), []byte("not a dir"), 0o644))

	_, err := NewRunner(cfg, nil).Run(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "features"), "error should identify the failing artifact: %v", err)

	// The processed artifact from the partially completed run stays valid.
	books, err := dataset.ReadProcessed(cfg.ProcessedOutput)
	require.NoError(t, err)
	assert.NotEmpty(t, books)
}
