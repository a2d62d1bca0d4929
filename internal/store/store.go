// Package store handles SQLite persistence of completed session results.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/verte-zerg/typestream/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// MemoryPath keeps results for the lifetime of the process only.
const MemoryPath = ":memory:"

// Store wraps SQLite access for result data.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	if path == "" {
		path = MemoryPath
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if path == MemoryPath {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS results (
			id INTEGER PRIMARY KEY,
			session_id TEXT NOT NULL UNIQUE,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			word_count INTEGER NOT NULL,
			correct INTEGER NOT NULL,
			incorrect INTEGER NOT NULL,
			missing INTEGER NOT NULL,
			extra INTEGER NOT NULL,
			wpm REAL NOT NULL,
			net_wpm REAL NOT NULL,
			accuracy REAL NOT NULL,
			error_rate REAL NOT NULL,
			duration_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_results_ended_at ON results(ended_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertResult stores the result of a completed session.
func (s *Store) InsertResult(ctx context.Context, r model.Result) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO results (session_id, started_at, ended_at, word_count, correct, incorrect, missing, extra, wpm, net_wpm, accuracy, error_rate, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID,
		r.StartedAt.Format(time.RFC3339Nano),
		r.EndedAt.Format(time.RFC3339Nano),
		r.WordCount,
		r.CorrectChars,
		r.IncorrectChars,
		r.MissingChars,
		r.ExtraChars,
		r.WPM,
		r.NetWPM,
		r.Accuracy,
		r.ErrorRate,
		r.DurationMs,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert result: %w", err)
	}
	return res.LastInsertId()
}

// ListResults returns results in ascending end order, optionally limited to the most recent ones.
func (s *Store) ListResults(ctx context.Context, filter model.ResultFilter) ([]model.Result, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if filter.Since != nil {
		clauses = append(clauses, "ended_at >= ?")
		args = append(args, filter.Since.Format(time.RFC3339Nano))
	}
	limit := ""
	if filter.Last > 0 {
		limit = "LIMIT ?"
		args = append(args, filter.Last)
	}
	query := fmt.Sprintf(`SELECT id, session_id, started_at, ended_at, word_count, correct, incorrect, missing, extra,
			wpm, net_wpm, accuracy, error_rate, duration_ms
		FROM (
			SELECT * FROM results
			WHERE %s
			ORDER BY ended_at DESC, id DESC
			%s
		)
		ORDER BY ended_at ASC, id ASC`, strings.Join(clauses, " AND "), limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	results := []model.Result{}
	for rows.Next() {
		var r model.Result
		var startedAt, endedAt string
		if err := rows.Scan(&r.ID, &r.SessionID, &startedAt, &endedAt, &r.WordCount,
			&r.CorrectChars, &r.IncorrectChars, &r.MissingChars, &r.ExtraChars,
			&r.WPM, &r.NetWPM, &r.Accuracy, &r.ErrorRate, &r.DurationMs); err != nil {
			return nil, err
		}
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, err
		}
		if r.EndedAt, err = time.Parse(time.RFC3339Nano, endedAt); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Summary aggregates all stored results.
func (s *Store) Summary(ctx context.Context) (model.ResultSummary, error) {
	var summary model.ResultSummary
	var avgWPM, bestWPM, avgAcc sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), AVG(wpm), MAX(wpm), AVG(accuracy) FROM results`).
		Scan(&summary.Count, &avgWPM, &bestWPM, &avgAcc)
	if err != nil {
		return model.ResultSummary{}, err
	}
	summary.AvgWPM = avgWPM.Float64
	summary.BestWPM = bestWPM.Float64
	summary.AvgAccuracy = avgAcc.Float64
	if summary.Count == 0 {
		return summary, nil
	}
	var last sql.NullFloat64
	err = s.db.QueryRowContext(ctx,
		`SELECT wpm FROM results ORDER BY ended_at DESC, id DESC LIMIT 1`).Scan(&last)
	if err != nil {
		return model.ResultSummary{}, err
	}
	summary.LastWPM = last.Float64
	return summary, nil
}
