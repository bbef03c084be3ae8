// Package stats aggregates the processed dataset for the insights API.
// It reads exclusively through the artifact cache.
package stats

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/aluiziolira/go-books-pipeline/dataset"
	"github.com/aluiziolira/go-books-pipeline/models"
)

// Overview summarises the whole collection.
type Overview struct {
	TotalBooks         int           `json:"total_books"`
	AveragePrice       float64       `json:"average_price"`
	RatingDistribution []RatingCount `json:"rating_distribution"`
}

// RatingCount is one bar of the rating histogram.
type RatingCount struct {
	Rating int `json:"rating"`
	Count  int `json:"count"`
}

// CategoryStats aggregates one category.
type CategoryStats struct {
	Category     string  `json:"category"`
	BookCount    int     `json:"book_count"`
	AveragePrice float64 `json:"average_price"`
	MinPrice     float64 `json:"min_price"`
	MaxPrice     float64 `json:"max_price"`
}

// Service computes statistics over the cached processed artifact.
type Service struct {
	cache *dataset.Cache[[]models.Book]
	path  string
}

// NewService builds a Service reading the processed artifact at path.
func NewService(cache *dataset.Cache[[]models.Book], path string) *Service {
	return &Service{cache: cache, path: path}
}

func (s *Service) books() ([]models.Book, error) {
	return s.cache.Get(s.path)
}

// Overview returns collection-level statistics.
func (s *Service) Overview() (Overview, error) {
	books, err := s.books()
	if err != nil {
		return Overview{}, err
	}

	var total float64
	histogram := make(map[int]int)
	for _, b := range books {
		total += b.Price
		histogram[b.Rating]++
	}

	distribution := make([]RatingCount, 0, len(histogram))
	for rating, count := range histogram {
		distribution = append(distribution, RatingCount{Rating: rating, Count: count})
	}
	sort.Slice(distribution, func(i, j int) bool { return distribution[i].Rating < distribution[j].Rating })

	average := 0.0
	if len(books) > 0 {
		average = round2(total / float64(len(books)))
	}
	return Overview{
		TotalBooks:         len(books),
		AveragePrice:       average,
		RatingDistribution: distribution,
	}, nil
}

// Categories returns per-category aggregates, most populated first.
func (s *Service) Categories() ([]CategoryStats, error) {
	books, err := s.books()
	if err != nil {
		return nil, err
	}

	byCategory := make(map[string]*CategoryStats)
	sums := make(map[string]float64)
	for _, b := range books {
		cs, ok := byCategory[b.Category]
		if !ok {
			cs = &CategoryStats{Category: b.Category, MinPrice: b.Price, MaxPrice: b.Price}
			byCategory[b.Category] = cs
		}
		cs.BookCount++
		sums[b.Category] += b.Price
		cs.MinPrice = math.Min(cs.MinPrice, b.Price)
		cs.MaxPrice = math.Max(cs.MaxPrice, b.Price)
	}

	out := make([]CategoryStats, 0, len(byCategory))
	for category, cs := range byCategory {
		cs.AveragePrice = round2(sums[category] / float64(cs.BookCount))
		cs.MinPrice = round2(cs.MinPrice)
		cs.MaxPrice = round2(cs.MaxPrice)
		out = append(out, *cs)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BookCount != out[j].BookCount {
			return out[i].BookCount > out[j].BookCount
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

// TopRated returns up to limit books ordered by rating then price, both
// descending.
func (s *Service) TopRated(limit int) ([]models.Book, error) {
	if limit < 1 {
		return nil, eris.New("stats: limit must be at least 1")
	}
	books, err := s.books()
	if err != nil {
		return nil, err
	}

	sorted := make([]models.Book, len(books))
	copy(sorted, books)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Rating != sorted[j].Rating {
			return sorted[i].Rating > sorted[j].Rating
		}
		return sorted[i].Price > sorted[j].Price
	})

	if limit < len(sorted) {
		sorted = sorted[:limit]
	}
	return sorted, nil
}

// PriceRange returns books priced within [min, max], cheapest first.
func (s *Service) PriceRange(min, max float64) ([]models.Book, error) {
	if min < 0 || max < 0 {
		return nil, eris.New("stats: price filters must be non-negative")
	}
	if min > max {
		return nil, eris.New("stats: min price must not exceed max price")
	}
	books, err := s.books()
	if err != nil {
		return nil, err
	}

	out := make([]models.Book, 0)
	for _, b := range books {
		if b.Price >= min && b.Price <= max {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
