// Package history keeps a local ledger of upload attempts in SQLite. It
// stores what was sent where and how it ended, never the media bytes.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Status is the terminal state of an upload attempt.
type Status string

// Upload attempt outcomes.
const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// ErrInvalidRecord is returned when a record lacks its id or source URL.
var ErrInvalidRecord = errors.New("history: record requires id and source URL")

// dirPerms is used when creating the database directory.
const dirPerms = 0o700

// DefaultLimit is used by Recent when limit is not positive.
const DefaultLimit = 20

const (
	sqlInsert = `INSERT INTO uploads
		(id, source_url, page_url, mime_type, size_bytes, media_item_id,
		 product_url, status, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlRecent = `SELECT id, source_url, page_url, mime_type, size_bytes,
		media_item_id, product_url, status, error, started_at, finished_at
		FROM uploads ORDER BY started_at DESC, id DESC LIMIT ?`
)

// Record is one row of the ledger.
type Record struct {
	ID          string    `json:"id"`
	SourceURL   string    `json:"sourceUrl"`
	PageURL     string    `json:"pageUrl,omitempty"`
	MimeType    string    `json:"mimeType,omitempty"`
	Size        int64     `json:"size"`
	MediaItemID string    `json:"mediaItemId,omitempty"`
	ProductURL  string    `json:"productUrl,omitempty"`
	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
}

// Duration is how long the attempt took.
func (r *Record) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Store is the ledger. Safe for concurrent use; writes are serialized on a
// single connection.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path and applies pending
// migrations.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPerms); err != nil {
		return nil, fmt.Errorf("history: creating directory for %s: %w", path, err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)",
		path,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: opening database %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("history ledger opened", slog.String("db_path", path))

	return &Store{db: db, logger: logger}, nil
}

// runMigrations applies all pending schema migrations with the goose
// Provider API.
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("history: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("history: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("history: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// Record appends r to the ledger.
func (s *Store) Record(ctx context.Context, r *Record) error {
	if r == nil || r.ID == "" || r.SourceURL == "" {
		return ErrInvalidRecord
	}

	_, err := s.db.ExecContext(ctx, sqlInsert,
		r.ID, r.SourceURL, r.PageURL, r.MimeType, r.Size, r.MediaItemID,
		r.ProductURL, string(r.Status), r.Error,
		unixNanos(r.StartedAt), unixNanos(r.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("history: inserting record %s: %w", r.ID, err)
	}

	s.logger.Debug("history record written",
		slog.String("id", r.ID),
		slog.String("status", string(r.Status)),
	)

	return nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := s.db.QueryContext(ctx, sqlRecent, limit)
	if err != nil {
		return nil, fmt.Errorf("history: querying recent uploads: %w", err)
	}
	defer rows.Close()

	var out []Record

	for rows.Next() {
		var (
			r                 Record
			status            string
			started, finished int64
		)

		if err := rows.Scan(&r.ID, &r.SourceURL, &r.PageURL, &r.MimeType, &r.Size,
			&r.MediaItemID, &r.ProductURL, &status, &r.Error, &started, &finished); err != nil {
			return nil, fmt.Errorf("history: scanning row: %w", err)
		}

		r.Status = Status(status)
		r.StartedAt = fromUnixNanos(started)
		r.FinishedAt = fromUnixNanos(finished)
		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterating rows: %w", err)
	}

	return out, nil
}

// unixNanos stores the zero time as 0.
func unixNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}

	return t.UnixNano()
}

func fromUnixNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}

	return time.Unix(0, n).UTC()
}

// Close releases the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("history: closing database: %w", err)
	}

	return nil
}
