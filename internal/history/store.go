// Package history stores the outcome of scan jobs in SQLite or Postgres.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sebastian-xyz/scanpi/internal/domain"
)

// ErrNotFound is returned when a job is not in the history.
var ErrNotFound = errors.New("record not found")

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const schema = `
	CREATE TABLE IF NOT EXISTS scan_jobs (
		id            TEXT PRIMARY KEY,
		started_at    TIMESTAMP NOT NULL,
		finished_at   TIMESTAMP NOT NULL,
		target        TEXT NOT NULL,
		pages         INTEGER NOT NULL,
		format        TEXT NOT NULL,
		resolution    INTEGER NOT NULL,
		document_path TEXT NOT NULL DEFAULT '',
		page_count    INTEGER NOT NULL DEFAULT 0,
		failed_stage  TEXT NOT NULL DEFAULT '',
		error         TEXT NOT NULL DEFAULT '',
		cleanup_error TEXT NOT NULL DEFAULT '',
		published     BOOLEAN NOT NULL DEFAULT FALSE,
		publish_error TEXT NOT NULL DEFAULT ''
	)
`

const indexSchema = `CREATE INDEX IF NOT EXISTS idx_scan_jobs_started_at ON scan_jobs (started_at)`

// Open opens the history database for driver ("sqlite" or "postgres") and
// creates the schema.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	var sqlDriver string
	switch driver {
	case "sqlite":
		sqlDriver = "sqlite3"
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, domain.IOError(fmt.Sprintf("create history directory %s", dir), err)
			}
		}
	case "postgres":
		sqlDriver = "postgres"
	default:
		return nil, domain.ConfigError(fmt.Sprintf("unsupported database driver: %s", driver), nil)
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}

	store := NewStore(db)
	store.closer = db
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Store handles scan job history.
type Store struct {
	db     DB
	closer interface{ Close() error }
}

// NewStore creates a store on an open database.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Migrate creates the history table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range []string{schema, indexSchema} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate history schema: %w", err)
		}
	}
	return nil
}

// Close closes the database opened by Open.
func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// Save stores a job record.
func (s *Store) Save(ctx context.Context, job Job) error {
	query := `
		INSERT INTO scan_jobs (id, started_at, finished_at, target, pages, format, resolution,
			document_path, page_count, failed_stage, error, cleanup_error, published, publish_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := s.db.ExecContext(ctx, query,
		job.ID, job.StartedAt, job.FinishedAt, job.Target, job.Pages, job.Format, job.Resolution,
		job.DocumentPath, job.PageCount, job.FailedStage, job.Error, job.CleanupError,
		job.Published, job.PublishError,
	)
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

// Get retrieves a job by ID.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	query := `
		SELECT id, started_at, finished_at, target, pages, format, resolution,
			document_path, page_count, failed_stage, error, cleanup_error, published, publish_error
		FROM scan_jobs WHERE id = $1
	`
	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return job, err
}

// List returns the most recent jobs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, started_at, finished_at, target, pages, format, resolution,
			document_path, page_count, failed_stage, error, cleanup_error, published, publish_error
		FROM scan_jobs ORDER BY started_at DESC LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Recorder returns a domain.Recorder storing results for target.
func (s *Store) Recorder(target string) domain.Recorder {
	return &recorder{store: s, target: target}
}

type recorder struct {
	store  *Store
	target string
}

func (r *recorder) Record(ctx context.Context, result *domain.PipelineResult) error {
	return r.store.Save(ctx, FromResult(result, r.target))
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*Job, error) {
	job := &Job{}
	err := row.Scan(
		&job.ID, &job.StartedAt, &job.FinishedAt, &job.Target, &job.Pages, &job.Format, &job.Resolution,
		&job.DocumentPath, &job.PageCount, &job.FailedStage, &job.Error, &job.CleanupError,
		&job.Published, &job.PublishError,
	)
	if err != nil {
		return nil, err
	}
	return job, nil
}
