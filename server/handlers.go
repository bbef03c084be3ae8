package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/aluiziolira/go-books-pipeline/dataset"
	"github.com/aluiziolira/go-books-pipeline/models"
)

const (
	defaultListLimit = 10
	maxListLimit     = 100
	defaultRunsLimit = 20
	runTimeout       = 10 * time.Minute
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeDatasetError maps dataset errors to HTTP statuses: a missing artifact
// is 503 (run the pipeline first), everything else is 500.
func writeDatasetError(w http.ResponseWriter, err error) {
	if eris.Is(err, dataset.ErrUnavailable) {
		writeError(w, http.StatusServiceUnavailable, "dataset not available; trigger a pipeline run first")
		return
	}
	zap.L().Error("dataset read failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, eris.Errorf("parameter %q must be an integer", name)
	}
	return v, nil
}

func queryFloat(r *http.Request, name string, def float64) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, eris.Errorf("parameter %q must be a number", name)
	}
	return v, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := s.books.Get(s.cfg.Pipeline.ProcessedOutput)
	if err != nil {
		writeDatasetError(w, err)
		return
	}

	limit, err := queryInt(r, "limit", len(books))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if limit < 0 || offset < 0 {
		writeError(w, http.StatusBadRequest, "limit and offset must be non-negative")
		return
	}

	if offset > len(books) {
		offset = len(books)
	}
	page := books[offset:]
	if limit < len(page) {
		page = page[:limit]
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total": len(books),
		"books": page,
	})
}

func (s *Server) handleSearchBooks(w http.ResponseWriter, r *http.Request) {
	title := strings.TrimSpace(r.URL.Query().Get("title"))
	category := strings.TrimSpace(r.URL.Query().Get("category"))
	if title == "" && category == "" {
		writeError(w, http.StatusUnprocessableEntity, "at least one of title or category is required")
		return
	}

	books, err := s.books.Get(s.cfg.Pipeline.ProcessedOutput)
	if err != nil {
		writeDatasetError(w, err)
		return
	}

	matches := make([]models.Book, 0)
	for _, b := range books {
		if title != "" && !strings.Contains(strings.ToLower(b.Title), strings.ToLower(title)) {
			continue
		}
		if category != "" && !strings.EqualFold(b.Category, category) {
			continue
		}
		matches = append(matches, b)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total": len(matches),
		"books": matches,
	})
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	books, err := s.books.Get(s.cfg.Pipeline.ProcessedOutput)
	if err != nil {
		writeDatasetError(w, err)
		return
	}

	for _, b := range books {
		if b.ID == id {
			writeJSON(w, http.StatusOK, b)
			return
		}
	}
	writeError(w, http.StatusNotFound, "book not found")
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	books, err := s.books.Get(s.cfg.Pipeline.ProcessedOutput)
	if err != nil {
		writeDatasetError(w, err)
		return
	}

	seen := make(map[string]struct{})
	categories := make([]string, 0)
	for _, b := range books {
		if _, ok := seen[b.Category]; ok {
			continue
		}
		seen[b.Category] = struct{}{}
		categories = append(categories, b.Category)
	}
	sort.Strings(categories)

	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (s *Server) handleStatsOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := s.stats.Overview()
	if err != nil {
		writeDatasetError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (s *Server) handleStatsCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.stats.Categories()
	if err != nil {
		writeDatasetError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (s *Server) handleTopRated(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if limit < 1 || limit > maxListLimit {
		writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
		return
	}

	books, err := s.stats.TopRated(limit)
	if err != nil {
		writeDatasetError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"books": books})
}

func (s *Server) handlePriceRange(w http.ResponseWriter, r *http.Request) {
	min, err := queryFloat(r, "min", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	max, err := queryFloat(r, "max", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if max == 0 && r.URL.Query().Get("max") == "" {
		writeError(w, http.StatusBadRequest, "parameter \"max\" is required")
		return
	}
	if min < 0 || max < 0 || min > max {
		writeError(w, http.StatusBadRequest, "price range must satisfy 0 <= min <= max")
		return
	}

	books, err := s.stats.PriceRange(min, max)
	if err != nil {
		writeDatasetError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total": len(books),
		"books": books,
	})
}

func (s *Server) handleFeatures(w http.ResponseWriter, r *http.Request) {
	table, err := s.mldata.Features()
	if err != nil {
		writeDatasetError(w, err)
		return
	}

	limit, err := queryInt(r, "limit", len(table.Books))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if limit < 0 {
		writeError(w, http.StatusBadRequest, "limit must be non-negative")
		return
	}

	books := table.Books
	if limit < len(books) {
		books = books[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":      len(table.Books),
		"vocabulary": table.Vocabulary,
		"books":      books,
	})
}

func (s *Server) handleTrainingData(w http.ResponseWriter, r *http.Request) {
	ratio, err := queryFloat(r, "ratio", 0.8)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if ratio <= 0 || ratio >= 1 {
		writeError(w, http.StatusBadRequest, "ratio must be between 0 and 1 exclusive")
		return
	}
	seed, err := queryInt(r, "seed", -1)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	split, err := s.mldata.TrainingSplit(ratio, int64(seed))
	if err != nil {
		writeDatasetError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, split)
}

// handleDataProcess triggers one pipeline run. Only one run may be in flight
// at a time; a second request while one is running gets 409.
func (s *Server) handleDataProcess(w http.ResponseWriter, r *http.Request) {
	if !s.running.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, "a pipeline run is already in progress")
		return
	}

	go func() {
		defer s.running.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()

		stats, err := s.runner.Run(ctx)
		if s.history != nil {
			if _, recordErr := s.history.RecordRun(ctx, stats, err); recordErr != nil {
				zap.L().Error("record run", zap.Error(recordErr))
			}
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultRunsLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if limit < 1 || limit > maxListLimit {
		writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
		return
	}

	if s.history == nil {
		writeJSON(w, http.StatusOK, map[string]any{"runs": []any{}})
		return
	}

	runs, err := s.history.ListRuns(r.Context(), limit)
	if err != nil {
		zap.L().Error("list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}
