package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-books-pipeline/config"
	"github.com/aluiziolira/go-books-pipeline/dataset"
	"github.com/aluiziolira/go-books-pipeline/features"
	"github.com/aluiziolira/go-books-pipeline/models"
	"github.com/aluiziolira/go-books-pipeline/pipeline"
)

func testBooks() []models.Book {
	return []models.Book{
		{ID: "aaa111", Title: "Quiet Rivers", Price: 12.50, Rating: 5, Category: "Poetry", Availability: true, Stock: 4},
		{ID: "bbb222", Title: "Iron Harvest: A History", Price: 45.00, Rating: 3, Category: "History", Availability: true, Stock: 20},
		{ID: "ccc333", Title: "Deep Water", Price: 55.00, Rating: 4, Category: "Thriller", Availability: false, Stock: 0},
	}
}

func newTestServer(t *testing.T, books []models.Book) (*Server, config.Config) {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Config{
		Pipeline: config.PipelineConfig{
			InputFile:       filepath.Join(dir, "raw.csv"),
			ProcessedOutput: filepath.Join(dir, "processed.csv"),
			FeaturesOutput:  filepath.Join(dir, "features.csv"),
			DefaultCategory: "Uncategorized",
		},
		Server: config.ServerConfig{Addr: ":0"},
	}

	if books != nil {
		require.NoError(t, dataset.WriteProcessed(cfg.Pipeline.ProcessedOutput, books))
		require.NoError(t, dataset.WriteFeatures(cfg.Pipeline.FeaturesOutput, features.Engineer(books)))
	}

	runner := pipeline.NewRunner(cfg.Pipeline, nil)
	return New(cfg, runner, nil), cfg
}

func doRequest(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, testBooks())
	rec := doRequest(t, s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListBooks(t *testing.T) {
	s, _ := newTestServer(t, testBooks())

	rec := doRequest(t, s, http.MethodGet, "/api/v1/books")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Total int           `json:"total"`
		Books []models.Book `json:"books"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, 3, body.Total)
	assert.Len(t, body.Books, 3)

	rec = doRequest(t, s, http.MethodGet, "/api/v1/books?limit=1&offset=1")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &body)
	assert.Equal(t, 3, body.Total)
	require.Len(t, body.Books, 1)
	assert.Equal(t, "bbb222", body.Books[0].ID)
}

func TestListBooksUnavailable(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := doRequest(t, s, http.MethodGet, "/api/v1/books")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetBook(t *testing.T) {
	s, _ := newTestServer(t, testBooks())

	rec := doRequest(t, s, http.MethodGet, "/api/v1/books/aaa111")
	require.Equal(t, http.StatusOK, rec.Code)

	var book models.Book
	decodeBody(t, rec, &book)
	assert.Equal(t, "Quiet Rivers", book.Title)

	rec = doRequest(t, s, http.MethodGet, "/api/v1/books/zzz999")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearchBooks(t *testing.T) {
	s, _ := newTestServer(t, testBooks())

	rec := doRequest(t, s, http.MethodGet, "/api/v1/books/search")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/v1/books/search?title=water")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Total int           `json:"total"`
		Books []models.Book `json:"books"`
	}
	decodeBody(t, rec, &body)
	require.Equal(t, 1, body.Total)
	assert.Equal(t, "Deep Water", body.Books[0].Title)

	rec = doRequest(t, s, http.MethodGet, "/api/v1/books/search?category=poetry")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &body)
	require.Equal(t, 1, body.Total)
	assert.Equal(t, "Poetry", body.Books[0].Category)
}

func TestCategories(t *testing.T) {
	s, _ := newTestServer(t, testBooks())

	rec := doRequest(t, s, http.MethodGet, "/api/v1/categories")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Categories []string `json:"categories"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, []string{"History", "Poetry", "Thriller"}, body.Categories)
}

func TestStatsOverview(t *testing.T) {
	s, _ := newTestServer(t, testBooks())

	rec := doRequest(t, s, http.MethodGet, "/api/v1/stats/overview")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		TotalBooks   int     `json:"total_books"`
		AveragePrice float64 `json:"average_price"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, 3, body.TotalBooks)
	assert.InDelta(t, 37.5, body.AveragePrice, 0.001)
}

func TestTopRatedLimitValidation(t *testing.T) {
	s, _ := newTestServer(t, testBooks())

	rec := doRequest(t, s, http.MethodGet, "/api/v1/books/top-rated?limit=0")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/v1/books/top-rated?limit=101")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/v1/books/top-rated?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Books []models.Book `json:"books"`
	}
	decodeBody(t, rec, &body)
	require.Len(t, body.Books, 2)
	assert.Equal(t, 5, body.Books[0].Rating)
	assert.Equal(t, 4, body.Books[1].Rating)
}

func TestPriceRange(t *testing.T) {
	s, _ := newTestServer(t, testBooks())

	rec := doRequest(t, s, http.MethodGet, "/api/v1/books/price-range?min=10&max=50")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Total int           `json:"total"`
		Books []models.Book `json:"books"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, 2, body.Total)

	rec = doRequest(t, s, http.MethodGet, "/api/v1/books/price-range?min=50&max=10")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/v1/books/price-range")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFeaturesEndpoint(t *testing.T) {
	s, _ := newTestServer(t, testBooks())

	rec := doRequest(t, s, http.MethodGet, "/api/v1/ml/features?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Total      int                  `json:"total"`
		Vocabulary []string             `json:"vocabulary"`
		Books      []models.FeatureBook `json:"books"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, 3, body.Total)
	assert.Len(t, body.Books, 2)
	assert.Equal(t, []string{"History", "Poetry", "Thriller"}, body.Vocabulary)
}

func TestTrainingData(t *testing.T) {
	s, _ := newTestServer(t, testBooks())

	rec := doRequest(t, s, http.MethodGet, "/api/v1/ml/training-data?ratio=0.5&seed=42")
	require.Equal(t, http.StatusOK, rec.Code)

	var split struct {
		Train []models.FeatureBook `json:"train"`
		Test  []models.FeatureBook `json:"test"`
		Seed  int64                `json:"seed"`
	}
	decodeBody(t, rec, &split)
	assert.Len(t, split.Train, 1)
	assert.Len(t, split.Test, 2)
	assert.Equal(t, int64(42), split.Seed)

	rec = doRequest(t, s, http.MethodGet, "/api/v1/ml/training-data?ratio=1.5")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDataProcessSingleFlight(t *testing.T) {
	s, cfg := newTestServer(t, nil)

	raw := []models.RawBook{
		{Title: "Quiet Rivers", Price: "£12.50", Rating: "Five", Category: "Poetry", Availability: "In stock", Stock: "In stock (4 available)"},
	}
	require.NoError(t, dataset.WriteRaw(cfg.Pipeline.InputFile, raw))

	// A flagged in-flight run must reject new requests.
	s.running.Store(true)
	rec := doRequest(t, s, http.MethodPost, "/api/v1/data-process")
	assert.Equal(t, http.StatusConflict, rec.Code)
	s.running.Store(false)

	rec = doRequest(t, s, http.MethodPost, "/api/v1/data-process")
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		r := doRequest(t, s, http.MethodGet, "/api/v1/books")
		return r.Code == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	var body struct {
		Total int `json:"total"`
	}
	rec = doRequest(t, s, http.MethodGet, "/api/v1/books")
	decodeBody(t, rec, &body)
	assert.Equal(t, 1, body.Total)
}

func TestRunsWithoutHistory(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/runs")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Runs []any `json:"runs"`
	}
	decodeBody(t, rec, &body)
	assert.Empty(t, body.Runs)
}
