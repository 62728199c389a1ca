// Package store persists precompiled templates in a SQLite database so
// that template caches survive restarts.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/datex/compiler"
	"github.com/chazu/datex/dist"
)

var log = commonlog.GetLogger("datex.store")

// ErrNotFound indicates the requested template doesn't exist.
var ErrNotFound = errors.New("template not found")

// Store is a template database. It implements compiler.TemplateStore.
type Store struct {
	db   *sql.DB
	path string
}

// Entry describes a stored template.
type Entry struct {
	Key     uint64
	Source  string
	Created time.Time
}

var _ compiler.TemplateStore = (*Store)(nil)

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// one connection keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS templates (
		key INTEGER PRIMARY KEY,
		source TEXT NOT NULL,
		record BLOB NOT NULL,
		created INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	log.Debugf("opened template store %s", path)
	return &Store{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Put saves a template record, replacing one with the same key.
func (s *Store) Put(rec *dist.TemplateRecord) error {
	data, err := dist.MarshalTemplate(rec)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO templates (key, source, record, created) VALUES (?, ?, ?, ?)",
		int64(rec.Key), rec.Source, data, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("saving template: %w", err)
	}
	return nil
}

// Get loads the record stored under key.
func (s *Store) Get(key uint64) (*dist.TemplateRecord, error) {
	var data []byte
	err := s.db.QueryRow("SELECT record FROM templates WHERE key = ?", int64(key)).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying template: %w", err)
	}
	return dist.UnmarshalTemplate(data)
}

// Delete removes the record stored under key.
func (s *Store) Delete(key uint64) error {
	res, err := s.db.Exec("DELETE FROM templates WHERE key = ?", int64(key))
	if err != nil {
		return fmt.Errorf("deleting template: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns all stored templates, oldest first.
func (s *Store) List() ([]Entry, error) {
	rows, err := s.db.Query("SELECT key, source, created FROM templates ORDER BY created, key")
	if err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var key, created int64
		var e Entry
		if err := rows.Scan(&key, &e.Source, &created); err != nil {
			return nil, fmt.Errorf("scanning template: %w", err)
		}
		e.Key = uint64(key)
		e.Created = time.Unix(created, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ---- compiler.TemplateStore ----

// GetTemplate loads and restores the template stored under key.
func (s *Store) GetTemplate(key uint64) (*compiler.Template, bool, error) {
	rec, err := s.Get(key)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return compiler.FromRecord(rec), true, nil
}

// PutTemplate saves t under its template key.
func (s *Store) PutTemplate(t *compiler.Template) error {
	return s.Put(t.ToRecord())
}
