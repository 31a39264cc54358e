// Package cache implements the Metadata Cache (C6): a durable, embedded
// relational store of per-session summaries so a full project scan does not
// need to re-read every JSONL file on every launch. Staleness is decided by
// comparing file size and modification time against the cached row.
package cache

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"math"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// mtimeTolerance matches the Python implementation's 0.001-second tolerance
// for floating-point mtime comparisons.
const mtimeTolerance = 0.001

// Record is one cached session's metadata row.
type Record struct {
	SessionID    string
	ProjectID    string
	FilePath     string
	FileSize     int64
	Mtime        float64 // Unix seconds, fractional
	FirstMessage string
	MessageCount int
	IsOngoing    bool
	GitBranch    string
	CreatedAt    float64
	ModifiedAt   float64
}

// Cache wraps a SQLite-backed store of session metadata.
type Cache struct {
	db *sql.DB
}

// Open opens (creating if necessary) the metadata database at dbPath and
// applies any pending migrations.
func Open(dbPath string) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("cache: open %s: %w", dbPath, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: set journal_mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: set synchronous: %w", err)
	}

	if err := migrateSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Cache{db: db}, nil
}

func migrateSchema(db *sql.DB) error {
	srcDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("cache: migration source: %w", err)
	}
	dbDriver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("cache: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", srcDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("cache: migrate init: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("cache: migrate up: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the cached record for sessionID, or (Record{}, false) if absent.
func (c *Cache) Get(sessionID string) (Record, bool, error) {
	row := c.db.QueryRow(`SELECT session_id, project_id, file_path, file_size, mtime,
		first_message, message_count, is_ongoing, git_branch, created_at, modified_at
		FROM session_metadata WHERE session_id = ?`, sessionID)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("cache: get %s: %w", sessionID, err)
	}
	return r, true, nil
}

// GetForProject returns every cached record for a project, most recently
// modified first.
func (c *Cache) GetForProject(projectID string) ([]Record, error) {
	rows, err := c.db.Query(`SELECT session_id, project_id, file_path, file_size, mtime,
		first_message, message_count, is_ongoing, git_branch, created_at, modified_at
		FROM session_metadata WHERE project_id = ? ORDER BY modified_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("cache: get_for_project %s: %w", projectID, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("cache: scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Put inserts or replaces a session's cached metadata.
func (c *Cache) Put(r Record) error {
	_, err := c.db.Exec(`INSERT OR REPLACE INTO session_metadata
		(session_id, project_id, file_path, file_size, mtime,
		 first_message, message_count, is_ongoing, git_branch,
		 created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.ProjectID, r.FilePath, r.FileSize, r.Mtime,
		r.FirstMessage, r.MessageCount, boolToInt(r.IsOngoing), r.GitBranch,
		r.CreatedAt, r.ModifiedAt)
	if err != nil {
		return fmt.Errorf("cache: put %s: %w", r.SessionID, err)
	}
	return nil
}

// IsStale reports whether the cached row for sessionID is missing, or its
// file_size/mtime disagree with the currently observed values.
func (c *Cache) IsStale(sessionID string, fileSize int64, mtime float64) (bool, error) {
	row := c.db.QueryRow(`SELECT file_size, mtime FROM session_metadata WHERE session_id = ?`, sessionID)
	var cachedSize int64
	var cachedMtime float64
	err := row.Scan(&cachedSize, &cachedMtime)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache: is_stale %s: %w", sessionID, err)
	}
	if cachedSize != fileSize {
		return true, nil
	}
	return math.Abs(cachedMtime-mtime) > mtimeTolerance, nil
}

// Remove deletes a session's cached row, if present.
func (c *Cache) Remove(sessionID string) error {
	_, err := c.db.Exec(`DELETE FROM session_metadata WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("cache: remove %s: %w", sessionID, err)
	}
	return nil
}

// Clear deletes every cached row.
func (c *Cache) Clear() error {
	_, err := c.db.Exec(`DELETE FROM session_metadata`)
	if err != nil {
		return fmt.Errorf("cache: clear: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var r Record
	var isOngoing int
	err := row.Scan(&r.SessionID, &r.ProjectID, &r.FilePath, &r.FileSize, &r.Mtime,
		&r.FirstMessage, &r.MessageCount, &isOngoing, &r.GitBranch, &r.CreatedAt, &r.ModifiedAt)
	if err != nil {
		return Record{}, err
	}
	r.IsOngoing = isOngoing != 0
	return r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
