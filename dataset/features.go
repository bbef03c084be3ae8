package dataset

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/aluiziolira/go-books-pipeline/models"
)

var featureFixedHeader = []string{
	"id", "title", "price", "rating", "category", "availability", "stock", "image", "product_page",
	"price_range", "rating_category", "stock_level",
	"has_subtitle", "has_series_marker", "title_length", "popularity",
}

// FeatureMeta is the sidecar carried next to the features artifact so
// consumers can validate the one-hot column set without re-deriving it from
// column names.
type FeatureMeta struct {
	Vocabulary []string `json:"vocabulary"`
	Columns    []string `json:"columns"`
}

// MetaPath returns the sidecar path for a features artifact path.
func MetaPath(featuresPath string) string {
	return featuresPath + ".meta.json"
}

// CategoryColumn maps a category value to its one-hot column name.
// "Science Fiction" becomes "category_science_fiction".
func CategoryColumn(category string) string {
	slug := strings.ToLower(strings.TrimSpace(category))
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, slug)
	return "category_" + slug
}

func featureHeader(vocabulary []string) []string {
	header := make([]string, 0, len(featureFixedHeader)+len(vocabulary))
	header = append(header, featureFixedHeader...)
	for _, category := range vocabulary {
		header = append(header, CategoryColumn(category))
	}
	return header
}

// WriteFeatures writes the features artifact and its vocabulary sidecar,
// both atomically. One-hot columns follow the sorted vocabulary order so
// repeated runs with the same vocabulary are byte-identical.
func WriteFeatures(path string, table models.FeatureTable) error {
	header := featureHeader(table.Vocabulary)

	err := writeAtomic(path, func(f *os.File) error {
		w := csv.NewWriter(f)
		if err := w.Write(header); err != nil {
			return eris.Wrap(err, "dataset: write features header")
		}
		for _, fb := range table.Books {
			record := encodeProcessed(fb.Book)
			record = append(record,
				string(fb.PriceRange),
				string(fb.RatingCategory),
				string(fb.StockLevel),
				strconv.FormatBool(fb.HasSubtitle),
				strconv.FormatBool(fb.HasSeriesMarker),
				strconv.Itoa(fb.TitleLength),
				strconv.FormatFloat(fb.Popularity, 'f', 4, 64),
			)
			for _, category := range table.Vocabulary {
				record = append(record, strconv.FormatBool(fb.Categories[category]))
			}
			if err := w.Write(record); err != nil {
				return eris.Wrap(err, "dataset: write features record")
			}
		}
		w.Flush()
		return eris.Wrap(w.Error(), "dataset: flush features records")
	})
	if err != nil {
		return err
	}

	meta := FeatureMeta{Vocabulary: table.Vocabulary, Columns: header}
	return writeAtomic(MetaPath(path), func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(meta), "dataset: encode features meta")
	})
}

// ReadFeatures loads the features artifact using the vocabulary sidecar to
// resolve the one-hot columns.
func ReadFeatures(path string) (models.FeatureTable, error) {
	meta, err := readFeatureMeta(MetaPath(path))
	if err != nil {
		return models.FeatureTable{}, err
	}

	f, r, err := openCSV(path)
	if err != nil {
		return models.FeatureTable{}, err
	}
	defer f.Close()

	header, err := r.Read()
	if err != nil {
		return models.FeatureTable{}, eris.Wrapf(ErrSchema, "read header of %q: %v", path, err)
	}
	idx, err := columnIndex(header, featureHeader(meta.Vocabulary))
	if err != nil {
		return models.FeatureTable{}, err
	}

	table := models.FeatureTable{Vocabulary: meta.Vocabulary}
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return models.FeatureTable{}, eris.Wrapf(ErrSchema, "read row of %q: %v", path, err)
		}
		fb, err := decodeFeature(record, idx, meta.Vocabulary)
		if err != nil {
			return models.FeatureTable{}, err
		}
		table.Books = append(table.Books, fb)
	}
	return table, nil
}

func readFeatureMeta(path string) (FeatureMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FeatureMeta{}, eris.Wrapf(ErrUnavailable, "%s", path)
		}
		return FeatureMeta{}, eris.Wrapf(err, "dataset: read %q", path)
	}
	var meta FeatureMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return FeatureMeta{}, eris.Wrapf(ErrSchema, "decode %q: %v", path, err)
	}
	return meta, nil
}

func decodeFeature(record []string, idx map[string]int, vocabulary []string) (models.FeatureBook, error) {
	book, err := decodeProcessed(record, idx)
	if err != nil {
		return models.FeatureBook{}, err
	}

	hasSubtitle, err := strconv.ParseBool(record[idx["has_subtitle"]])
	if err != nil {
		return models.FeatureBook{}, eris.Wrap(err, "dataset: parse has_subtitle")
	}
	hasSeries, err := strconv.ParseBool(record[idx["has_series_marker"]])
	if err != nil {
		return models.FeatureBook{}, eris.Wrap(err, "dataset: parse has_series_marker")
	}
	titleLength, err := strconv.Atoi(record[idx["title_length"]])
	if err != nil {
		return models.FeatureBook{}, eris.Wrap(err, "dataset: parse title_length")
	}
	popularity, err := strconv.ParseFloat(record[idx["popularity"]], 64)
	if err != nil {
		return models.FeatureBook{}, eris.Wrap(err, "dataset: parse popularity")
	}

	categories := make(map[string]bool, len(vocabulary))
	for _, category := range vocabulary {
		hot, err := strconv.ParseBool(record[idx[CategoryColumn(category)]])
		if err != nil {
			return models.FeatureBook{}, eris.Wrapf(err, "dataset: parse one-hot %q", category)
		}
		categories[category] = hot
	}

	return models.FeatureBook{
		Book:            book,
		PriceRange:      models.PriceRange(record[idx["price_range"]]),
		RatingCategory:  models.RatingCategory(record[idx["rating_category"]]),
		StockLevel:      models.StockLevel(record[idx["stock_level"]]),
		HasSubtitle:     hasSubtitle,
		HasSeriesMarker: hasSeries,
		TitleLength:     titleLength,
		Popularity:      popularity,
		Categories:      categories,
	}, nil
}
