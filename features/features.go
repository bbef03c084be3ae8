// Package features derives the engineered dataset from the processed one.
package features

import (
	"regexp"
	"sort"
	"strings"

	"github.com/aluiziolira/go-books-pipeline/models"
)

// Bucket boundaries are a configuration contract shared with downstream
// consumers; changing them is a breaking change to the features artifact.
const (
	priceLowMax    = 20.0 // below this: Low; this through priceMediumMax: Medium
	priceMediumMax = 40.0
	priceHighMax   = 50.0 // above this: Premium

	stockLowMax    = 5
	stockMediumMax = 15
)

// Popularity weights: rating dominates, stock contributes a saturating
// bonus so huge inventories do not drown out ratings.
const (
	popularityRatingWeight = 0.7
	popularityStockWeight  = 0.3
	popularityStockScale   = 10.0
)

// seriesPattern matches series markers such as "(Foo Saga #3)".
var seriesPattern = regexp.MustCompile(`\(.*#\d+\)|#\d+`)

// Engineer derives one FeatureBook per Book, carrying the same identifier.
// It is pure and never drops rows: the input is presumed clean by the
// contract of the cleaning stage.
func Engineer(books []models.Book) models.FeatureTable {
	vocabulary := buildVocabulary(books)

	out := make([]models.FeatureBook, 0, len(books))
	for _, b := range books {
		categories := make(map[string]bool, len(vocabulary))
		for _, category := range vocabulary {
			categories[category] = category == b.Category
		}

		out = append(out, models.FeatureBook{
			Book:            b,
			PriceRange:      BucketPrice(b.Price),
			RatingCategory:  BucketRating(b.Rating),
			StockLevel:      BucketStock(b.Stock),
			HasSubtitle:     hasSubtitle(b.Title),
			HasSeriesMarker: seriesPattern.MatchString(b.Title),
			TitleLength:     len([]rune(strings.TrimSpace(b.Title))),
			Popularity:      Popularity(b.Rating, b.Stock),
			Categories:      categories,
		})
	}

	return models.FeatureTable{Books: out, Vocabulary: vocabulary}
}

// buildVocabulary returns the sorted distinct categories of the input, which
// fixes the one-hot column order for this run.
func buildVocabulary(books []models.Book) []string {
	set := make(map[string]struct{})
	for _, b := range books {
		set[b.Category] = struct{}{}
	}
	vocabulary := make([]string, 0, len(set))
	for category := range set {
		vocabulary = append(vocabulary, category)
	}
	sort.Strings(vocabulary)
	return vocabulary
}

// BucketPrice buckets a price. Boundary semantics are pinned by tests:
// 20.00 and 40.00 are Medium, 50.00 is High, anything above 50 is Premium.
func BucketPrice(price float64) models.PriceRange {
	switch {
	case price < priceLowMax:
		return models.PriceLow
	case price <= priceMediumMax:
		return models.PriceMedium
	case price <= priceHighMax:
		return models.PriceHigh
	default:
		return models.PricePremium
	}
}

// BucketRating buckets the 1..5 rating: 1-2 Low, 3 Medium, 4-5 High.
func BucketRating(rating int) models.RatingCategory {
	switch {
	case rating <= 2:
		return models.RatingLow
	case rating == 3:
		return models.RatingMedium
	default:
		return models.RatingHigh
	}
}

// BucketStock buckets the stock count: 0 Out, 1-5 Low, 6-15 Medium, >15 High.
func BucketStock(stock int) models.StockLevel {
	switch {
	case stock <= 0:
		return models.StockOut
	case stock <= stockLowMax:
		return models.StockLow
	case stock <= stockMediumMax:
		return models.StockMedium
	default:
		return models.StockHigh
	}
}

// Popularity combines rating and stock into a score in (0, 1):
//
//	0.7·(rating/5) + 0.3·(stock/(stock+10))
//
// It is strictly increasing in rating and non-decreasing (strictly, for any
// finite stock) in stock, so "most popular" sorts are well defined.
func Popularity(rating, stock int) float64 {
	ratingTerm := float64(rating) / 5.0
	stockTerm := float64(stock) / (float64(stock) + popularityStockScale)
	return popularityRatingWeight*ratingTerm + popularityStockWeight*stockTerm
}

// hasSubtitle reports a structural subtitle marker in the title: a colon, or
// a dash set off by spaces.
func hasSubtitle(title string) bool {
	return strings.Contains(title, ":") || strings.Contains(title, " - ")
}
