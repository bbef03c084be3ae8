package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/aluiziolira/go-books-pipeline/models"
)

// Column sets for the raw and processed artifacts. Readers require the
// exact set; anything else is a structural error, not a data-quality issue.
var (
	rawHeader       = []string{"title", "price", "rating", "category", "availability", "stock", "image", "product_page"}
	processedHeader = []string{"id", "title", "price", "rating", "category", "availability", "stock", "image", "product_page"}
)

func openCSV(path string) (*os.File, *csv.Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, eris.Wrapf(ErrUnavailable, "%s", path)
		}
		return nil, nil, eris.Wrapf(err, "dataset: open %q", path)
	}
	return f, csv.NewReader(f), nil
}

// columnIndex validates the header against want (order-insensitive) and
// returns a name→position map.
func columnIndex(header, want []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}
	if len(index) != len(want) {
		return nil, eris.Wrapf(ErrSchema, "got %d columns, want %d", len(index), len(want))
	}
	for _, name := range want {
		if _, ok := index[name]; !ok {
			return nil, eris.Wrapf(ErrSchema, "missing column %q", name)
		}
	}
	return index, nil
}

// ReadRaw loads the raw artifact. A wrong column set or unreadable file is
// reported as a structural error; individual field values are passed through
// untouched for the cleaning stage to judge.
func ReadRaw(path string) ([]models.RawBook, error) {
	f, r, err := openCSV(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header, err := r.Read()
	if err != nil {
		return nil, eris.Wrapf(ErrSchema, "read header of %q: %v", path, err)
	}
	idx, err := columnIndex(header, rawHeader)
	if err != nil {
		return nil, err
	}

	var books []models.RawBook
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(ErrSchema, "read row of %q: %v", path, err)
		}
		books = append(books, models.RawBook{
			Title:        record[idx["title"]],
			Price:        record[idx["price"]],
			Rating:       record[idx["rating"]],
			Category:     record[idx["category"]],
			Availability: record[idx["availability"]],
			Stock:        record[idx["stock"]],
			Image:        record[idx["image"]],
			ProductPage:  record[idx["product_page"]],
		})
	}
	return books, nil
}

// WriteRaw writes the raw artifact atomically.
func WriteRaw(path string, books []models.RawBook) error {
	return writeAtomic(path, func(f *os.File) error {
		w := csv.NewWriter(f)
		if err := w.Write(rawHeader); err != nil {
			return eris.Wrap(err, "dataset: write raw header")
		}
		for _, b := range books {
			record := []string{b.Title, b.Price, b.Rating, b.Category, b.Availability, b.Stock, b.Image, b.ProductPage}
			if err := w.Write(record); err != nil {
				return eris.Wrap(err, "dataset: write raw record")
			}
		}
		w.Flush()
		return eris.Wrap(w.Error(), "dataset: flush raw records")
	})
}

// ReadProcessed loads the processed artifact.
func ReadProcessed(path string) ([]models.Book, error) {
	f, r, err := openCSV(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header, err := r.Read()
	if err != nil {
		return nil, eris.Wrapf(ErrSchema, "read header of %q: %v", path, err)
	}
	idx, err := columnIndex(header, processedHeader)
	if err != nil {
		return nil, err
	}

	var books []models.Book
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(ErrSchema, "read row of %q: %v", path, err)
		}
		book, err := decodeProcessed(record, idx)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	return books, nil
}

func decodeProcessed(record []string, idx map[string]int) (models.Book, error) {
	price, err := strconv.ParseFloat(record[idx["price"]], 64)
	if err != nil {
		return models.Book{}, eris.Wrapf(err, "dataset: parse price %q", record[idx["price"]])
	}
	rating, err := strconv.Atoi(record[idx["rating"]])
	if err != nil {
		return models.Book{}, eris.Wrapf(err, "dataset: parse rating %q", record[idx["rating"]])
	}
	availability, err := strconv.ParseBool(record[idx["availability"]])
	if err != nil {
		return models.Book{}, eris.Wrapf(err, "dataset: parse availability %q", record[idx["availability"]])
	}
	stock, err := strconv.Atoi(record[idx["stock"]])
	if err != nil {
		return models.Book{}, eris.Wrapf(err, "dataset: parse stock %q", record[idx["stock"]])
	}
	return models.Book{
		ID:           record[idx["id"]],
		Title:        record[idx["title"]],
		Price:        price,
		Rating:       rating,
		Category:     record[idx["category"]],
		Availability: availability,
		Stock:        stock,
		Image:        record[idx["image"]],
		ProductPage:  record[idx["product_page"]],
	}, nil
}

func encodeProcessed(b models.Book) []string {
	return []string{
		b.ID,
		b.Title,
		strconv.FormatFloat(b.Price, 'f', 2, 64),
		strconv.Itoa(b.Rating),
		b.Category,
		strconv.FormatBool(b.Availability),
		strconv.Itoa(b.Stock),
		b.Image,
		b.ProductPage,
	}
}

// WriteProcessed writes the processed artifact atomically. The encoding is
// deterministic so reruns over unchanged input produce byte-identical files.
func WriteProcessed(path string, books []models.Book) error {
	return writeAtomic(path, func(f *os.File) error {
		w := csv.NewWriter(f)
		if err := w.Write(processedHeader); err != nil {
			return eris.Wrap(err, "dataset: write processed header")
		}
		for _, b := range books {
			if err := w.Write(encodeProcessed(b)); err != nil {
				return eris.Wrap(err, "dataset: write processed record")
			}
		}
		w.Flush()
		return eris.Wrap(w.Error(), "dataset: flush processed records")
	})
}
