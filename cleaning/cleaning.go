// Package cleaning turns the raw catalog into the canonical processed
// dataset. Clean is a pure function: malformed rows are excluded and
// counted, never fatal. Structural problems with the raw artifact are the
// reader's concern (dataset.ReadRaw), not this stage's.
package cleaning

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/aluiziolira/go-books-pipeline/config"
	"github.com/aluiziolira/go-books-pipeline/models"
	"github.com/aluiziolira/go-books-pipeline/parser"
)

// Stats counts what cleaning changed or excluded.
type Stats struct {
	Input                int `json:"input"`
	DuplicatesDropped    int `json:"duplicates_dropped"`
	TitleDropped         int `json:"title_dropped"`
	PriceDropped         int `json:"price_dropped"`
	RatingsDefaulted     int `json:"ratings_defaulted"`
	CategoriesNormalized int `json:"categories_normalized"`
	Output               int `json:"output"`
}

// Clean applies the cleaning rules in order: exact-duplicate removal,
// missing-field fallbacks, category normalization, availability conversion,
// price conversion, and stable identifier assignment.
//
// Rows without a usable price are excluded (a book that cannot be priced
// cannot be sold); a missing or unrecognizable rating defaults to 1; a
// missing or problematic category collapses to the configured default.
func Clean(raw []models.RawBook, cfg config.PipelineConfig) ([]models.Book, Stats) {
	stats := Stats{Input: len(raw)}

	problematic := make(map[string]struct{}, len(cfg.ProblematicCategories))
	for _, category := range cfg.ProblematicCategories {
		problematic[strings.ToLower(strings.TrimSpace(category))] = struct{}{}
	}

	deduped := dropExactDuplicates(raw, &stats)

	books := make([]models.Book, 0, len(deduped))
	occurrences := make(map[string]int, len(deduped))

	for _, row := range deduped {
		title := strings.TrimSpace(row.Title)
		if title == "" {
			stats.TitleDropped++
			continue
		}

		price, ok := parser.ParsePrice(row.Price)
		if !ok {
			stats.PriceDropped++
			continue
		}

		rating, ok := parser.ParseRating(row.Rating)
		if !ok {
			rating = 1
			stats.RatingsDefaulted++
		}

		category := strings.TrimSpace(row.Category)
		if _, bad := problematic[strings.ToLower(category)]; bad || category == "" {
			category = cfg.DefaultCategory
			stats.CategoriesNormalized++
		}

		book := models.Book{
			ID:           stableID(title, category, occurrences),
			Title:        title,
			Price:        price,
			Rating:       rating,
			Category:     category,
			Availability: parser.ParseAvailability(row.Availability),
			Stock:        parser.ParseStock(row.Stock),
			Image:        strings.TrimSpace(row.Image),
			ProductPage:  strings.TrimSpace(row.ProductPage),
		}
		books = append(books, book)
	}

	stats.Output = len(books)
	return books, stats
}

func dropExactDuplicates(raw []models.RawBook, stats *Stats) []models.RawBook {
	seen := make(map[models.RawBook]struct{}, len(raw))
	out := make([]models.RawBook, 0, len(raw))
	for _, row := range raw {
		if _, dup := seen[row]; dup {
			stats.DuplicatesDropped++
			continue
		}
		seen[row] = struct{}{}
		out = append(out, row)
	}
	return out
}

// stableID derives the row identifier from the normalized title and
// category, so reprocessing unchanged input reproduces the same ids.
// Rows sharing title and category are disambiguated by occurrence order,
// which is itself stable for unchanged input.
func stableID(title, category string, occurrences map[string]int) string {
	key := strings.ToLower(title) + "|" + strings.ToLower(category)
	n := occurrences[key]
	occurrences[key]++

	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%d", key, n))
	return hex.EncodeToString(sum[:6])
}
