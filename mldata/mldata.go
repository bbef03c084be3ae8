// Package mldata prepares the features dataset for model training.
package mldata

import (
	"math"
	"math/rand"
	"time"

	"github.com/rotisserie/eris"

	"github.com/aluiziolira/go-books-pipeline/dataset"
	"github.com/aluiziolira/go-books-pipeline/models"
)

// Split is a train/test partition of the features dataset.
type Split struct {
	Train []models.FeatureBook `json:"train"`
	Test  []models.FeatureBook `json:"test"`
	Ratio float64              `json:"ratio"`
	Seed  int64                `json:"seed"`
}

// Service serves the features artifact through the cache.
type Service struct {
	cache *dataset.Cache[models.FeatureTable]
	path  string
}

// NewService builds a Service reading the features artifact at path.
func NewService(cache *dataset.Cache[models.FeatureTable], path string) *Service {
	return &Service{cache: cache, path: path}
}

// Features returns the current features table.
func (s *Service) Features() (models.FeatureTable, error) {
	return s.cache.Get(s.path)
}

// TrainingSplit shuffles the features dataset and partitions it by ratio.
// A non-negative seed makes the split reproducible; a negative seed draws
// one from the clock. A non-empty dataset always yields at least one
// training row.
func (s *Service) TrainingSplit(ratio float64, seed int64) (Split, error) {
	if ratio <= 0 || ratio >= 1 {
		return Split{}, eris.New("mldata: ratio must be between 0 and 1")
	}

	table, err := s.Features()
	if err != nil {
		return Split{}, err
	}

	if seed < 0 {
		seed = time.Now().UnixNano()
	}

	books := make([]models.FeatureBook, len(table.Books))
	copy(books, table.Books)
	if len(books) > 1 {
		rng := rand.New(rand.NewSource(seed))
		rng.Shuffle(len(books), func(i, j int) {
			books[i], books[j] = books[j], books[i]
		})
	}

	if len(books) == 0 {
		return Split{Train: []models.FeatureBook{}, Test: []models.FeatureBook{}, Ratio: ratio, Seed: seed}, nil
	}

	trainRows := int(math.Floor(float64(len(books)) * ratio))
	if trainRows < 1 {
		trainRows = 1
	}
	if trainRows > len(books) {
		trainRows = len(books)
	}

	return Split{
		Train: books[:trainRows],
		Test:  books[trainRows:],
		Ratio: ratio,
		Seed:  seed,
	}, nil
}
