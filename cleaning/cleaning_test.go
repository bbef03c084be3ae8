package cleaning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-books-pipeline/config"
	"github.com/aluiziolira/go-books-pipeline/models"
)

func testConfig() config.PipelineConfig {
	return config.PipelineConfig{
		InputFile:             "in.csv",
		ProcessedOutput:       "processed.csv",
		FeaturesOutput:        "features.csv",
		DefaultCategory:       "Uncategorized",
		ProblematicCategories: []string{"Default", "Add a comment"},
	}
}

func rawBook(title, price, rating, category, availability, stock string) models.RawBook {
	return models.RawBook{
		Title:        title,
		Price:        price,
		Rating:       rating,
		Category:     category,
		Availability: availability,
		Stock:        stock,
		Image:        "http://example.test/img.jpg",
		ProductPage:  "http://example.test/book",
	}
}

func TestCleanDropsMalformedPriceAndMapsProblematicCategory(t *testing.T) {
	raw := []models.RawBook{
		rawBook("A", "£19.99", "Five", "Default", "yes", "3"),
		rawBook("B", "", "Three", "Fiction", "no", "0"),
	}

	books, stats := Clean(raw, testConfig())

	require.Len(t, books, 1)
	assert.Equal(t, "A", books[0].Title)
	assert.Equal(t, 19.99, books[0].Price)
	assert.Equal(t, "Uncategorized", books[0].Category)
	assert.True(t, books[0].Availability)

	assert.Equal(t, 2, stats.Input)
	assert.Equal(t, 1, stats.PriceDropped)
	assert.Equal(t, 1, stats.CategoriesNormalized)
	assert.Equal(t, 1, stats.Output)
}

func TestCleanDropsExactDuplicates(t *testing.T) {
	row := rawBook("Twice", "£10.00", "Two", "Fiction", "yes", "5")
	almost := row
	almost.Stock = "6"

	books, stats := Clean([]models.RawBook{row, row, almost}, testConfig())

	assert.Len(t, books, 2)
	assert.Equal(t, 1, stats.DuplicatesDropped)
}

func TestCleanFieldFallbacks(t *testing.T) {
	raw := []models.RawBook{
		rawBook("No rating", "£5.00", "", "Fiction", "yes", "1"),
		rawBook("Bad rating", "£5.00", "Eleven", "Fiction", "yes", "1"),
		rawBook("No category", "£5.00", "One", "", "yes", "1"),
		rawBook("", "£5.00", "One", "Fiction", "yes", "1"),
	}

	books, stats := Clean(raw, testConfig())

	require.Len(t, books, 3)
	assert.Equal(t, 1, books[0].Rating)
	assert.Equal(t, 1, books[1].Rating)
	assert.Equal(t, "Uncategorized", books[2].Category)
	assert.Equal(t, 2, stats.RatingsDefaulted)
	assert.Equal(t, 1, stats.CategoriesNormalized)
	assert.Equal(t, 1, stats.TitleDropped)
}

func TestCleanProblematicCategoriesNeverSurvive(t *testing.T) {
	cfg := testConfig()
	raw := []models.RawBook{
		rawBook("a", "£1.00", "One", "Default", "yes", "1"),
		rawBook("b", "£1.00", "One", " add a comment ", "yes", "1"),
		rawBook("c", "£1.00", "One", "   ", "yes", "1"),
		rawBook("d", "£1.00", "One", " Poetry ", "yes", "1"),
	}

	books, _ := Clean(raw, cfg)

	require.Len(t, books, 4)
	for _, b := range books[:3] {
		assert.Equal(t, cfg.DefaultCategory, b.Category)
	}
	// Recognized categories keep their display casing, trimmed.
	assert.Equal(t, "Poetry", books[3].Category)
}

func TestCleanAvailabilityFailsClosed(t *testing.T) {
	raw := []models.RawBook{
		rawBook("available", "£1.00", "One", "Fiction", "In stock (4 available)", "4"),
		rawBook("unavailable", "£1.00", "One", "Fiction", "ships soon", "4"),
	}

	books, _ := Clean(raw, testConfig())

	require.Len(t, books, 2)
	assert.True(t, books[0].Availability)
	assert.False(t, books[1].Availability)
}

func TestCleanIDsAreUniqueAndStableAcrossReruns(t *testing.T) {
	raw := []models.RawBook{
		rawBook("Same Title", "£1.00", "One", "Fiction", "yes", "1"),
		rawBook("Same Title", "£2.00", "Two", "Fiction", "yes", "2"),
		rawBook("Other", "£3.00", "Three", "Poetry", "yes", "3"),
	}

	first, _ := Clean(raw, testConfig())
	second, _ := Clean(raw, testConfig())

	require.Len(t, first, 3)
	seen := map[string]struct{}{}
	for i, b := range first {
		require.NotEmpty(t, b.ID)
		_, dup := seen[b.ID]
		require.False(t, dup, "duplicate id %q", b.ID)
		seen[b.ID] = struct{}{}
		assert.Equal(t, b.ID, second[i].ID, "id must be stable across reruns")
	}
}

func TestCleanInvariants(t *testing.T) {
	raw := []models.RawBook{
		rawBook("X: A Novel", "£23.50", "Four", "Mystery", "In stock (9 available)", "In stock (9 available)"),
		rawBook("Y", "£2.00", "", "", "no", ""),
	}

	books, _ := Clean(raw, testConfig())

	for _, b := range books {
		assert.NotEmpty(t, b.ID)
		assert.NotEmpty(t, b.Title)
		assert.NotEmpty(t, b.Category)
		assert.Greater(t, b.Price, 0.0)
		assert.GreaterOrEqual(t, b.Rating, 1)
		assert.LessOrEqual(t, b.Rating, 5)
		assert.GreaterOrEqual(t, b.Stock, 0)
	}
}
