package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/gridbase/gridbase/internal/formula"
)

// SavedQuery is a stored formula with display metadata.
type SavedQuery struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Formula     string    `json:"formula"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// QueryExecution is one audit row for a saved-query run.
type QueryExecution struct {
	ID              string    `json:"id"`
	QueryID         string    `json:"query_id"`
	Status          string    `json:"status"` // success | error
	ExecutionTimeMs int64     `json:"execution_time_ms"`
	Result          string    `json:"result,omitempty"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	ExecutedAt      time.Time `json:"executed_at"`
}

// Store wraps the platform's sqlite database. The function_library
// table is a read-only catalog of the native registry: implementations
// live in code, the table exists for the designer's function browser.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS saved_queries (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	formula     TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS query_executions (
	id                TEXT PRIMARY KEY,
	query_id          TEXT NOT NULL REFERENCES saved_queries(id),
	status            TEXT NOT NULL,
	execution_time_ms INTEGER NOT NULL,
	result            TEXT NOT NULL DEFAULT '',
	error_message     TEXT NOT NULL DEFAULT '',
	executed_at       TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS function_library (
	name        TEXT PRIMARY KEY,
	category    TEXT NOT NULL,
	min_args    INTEGER NOT NULL,
	max_args    INTEGER NOT NULL,
	description TEXT NOT NULL DEFAULT ''
);
`

// Open opens (and if needed initializes) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveQuery inserts a saved query, generating its ID and timestamp.
func (s *Store) SaveQuery(q *SavedQuery) error {
	q.ID = uuid.NewString()
	q.CreatedAt = time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO saved_queries (id, name, formula, description, created_at) VALUES (?, ?, ?, ?, ?)`,
		q.ID, q.Name, q.Formula, q.Description, q.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save query: %w", err)
	}
	return nil
}

// GetQuery fetches a saved query by ID.
func (s *Store) GetQuery(id string) (*SavedQuery, error) {
	row := s.db.QueryRow(
		`SELECT id, name, formula, description, created_at FROM saved_queries WHERE id = ?`, id)
	var q SavedQuery
	if err := row.Scan(&q.ID, &q.Name, &q.Formula, &q.Description, &q.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load query %s: %w", id, err)
	}
	return &q, nil
}

// ListQueries returns saved queries newest first.
func (s *Store) ListQueries() ([]*SavedQuery, error) {
	rows, err := s.db.Query(
		`SELECT id, name, formula, description, created_at FROM saved_queries ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list queries: %w", err)
	}
	defer rows.Close()

	var out []*SavedQuery
	for rows.Next() {
		var q SavedQuery
		if err := rows.Scan(&q.ID, &q.Name, &q.Formula, &q.Description, &q.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &q)
	}
	return out, rows.Err()
}

// RecordExecution appends a query_executions audit row.
func (s *Store) RecordExecution(e *QueryExecution) error {
	e.ID = uuid.NewString()
	e.ExecutedAt = time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO query_executions (id, query_id, status, execution_time_ms, result, error_message, executed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.QueryID, e.Status, e.ExecutionTimeMs, e.Result, e.ErrorMessage, e.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record execution: %w", err)
	}
	return nil
}

// SyncFunctionCatalog reconciles the function_library table with the
// native registry. Rows naming functions that no longer exist in code
// are a startup error: the table is a catalog, never a code store.
func (s *Store) SyncFunctionCatalog(infos []formula.FunctionInfo) error {
	known := make(map[string]bool, len(infos))
	for _, info := range infos {
		known[strings.ToLower(info.Name)] = true
	}

	rows, err := s.db.Query(`SELECT name FROM function_library`)
	if err != nil {
		return fmt.Errorf("failed to read function catalog: %w", err)
	}
	var orphans []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		if !known[strings.ToLower(name)] {
			orphans = append(orphans, name)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if len(orphans) > 0 {
		return fmt.Errorf("function catalog names functions with no native implementation: %s", strings.Join(orphans, ", "))
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	for _, info := range infos {
		if _, err := tx.Exec(
			`INSERT INTO function_library (name, category, min_args, max_args) VALUES (?, ?, ?, ?)
			 ON CONFLICT(name) DO UPDATE SET category = excluded.category, min_args = excluded.min_args, max_args = excluded.max_args`,
			info.Name, string(info.Category), info.MinArgs, info.MaxArgs,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to sync function %s: %w", info.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	log.Info().Int("functions", len(infos)).Msg("Function catalog synced")
	return nil
}
