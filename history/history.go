// Package history persists pipeline run outcomes so the API can surface
// past runs. The pipeline itself never writes here; the caller records what
// Run returned.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/aluiziolira/go-books-pipeline/models"
)

// Run is one recorded pipeline run.
type Run struct {
	ID         string                `json:"id"`
	Status     string                `json:"status"`
	Error      string                `json:"error,omitempty"`
	Stats      *models.PipelineStats `json:"stats,omitempty"`
	RecordedAt time.Time             `json:"recorded_at"`
}

// Store wraps the sqlite database holding run history.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database and configures WAL
// mode.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "history: create directory %q", dir)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "history: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "history: exec %s", pragma)
		}
	}
	return &Store{db: db}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	error       TEXT,
	stats       TEXT,
	recorded_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_pipeline_runs_recorded_at ON pipeline_runs(recorded_at);
`

// Migrate creates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "history: migrate")
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun stores one run outcome. stats may be nil when the run failed
// before producing any.
func (s *Store) RecordRun(ctx context.Context, stats *models.PipelineStats, runErr error) (*Run, error) {
	run := &Run{
		ID:         uuid.New().String(),
		Status:     "success",
		Stats:      stats,
		RecordedAt: time.Now().UTC(),
	}
	if runErr != nil {
		run.Status = "failure"
		run.Error = runErr.Error()
	}

	var statsJSON sql.NullString
	if stats != nil {
		encoded, err := json.Marshal(stats)
		if err != nil {
			return nil, eris.Wrap(err, "history: marshal stats")
		}
		statsJSON = sql.NullString{String: string(encoded), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (id, status, error, stats, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Status, nullable(run.Error), statsJSON, run.RecordedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "history: insert run")
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit < 1 {
		return nil, eris.New("history: limit must be at least 1")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, error, stats, recorded_at FROM pipeline_runs ORDER BY recorded_at DESC, id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "history: query runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run       Run
			errText   sql.NullString
			statsJSON sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.Status, &errText, &statsJSON, &run.RecordedAt); err != nil {
			return nil, eris.Wrap(err, "history: scan run")
		}
		run.Error = errText.String
		if statsJSON.Valid {
			var stats models.PipelineStats
			if err := json.Unmarshal([]byte(statsJSON.String), &stats); err != nil {
				return nil, eris.Wrap(err, "history: unmarshal stats")
			}
			run.Stats = &stats
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "history: iterate runs")
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
