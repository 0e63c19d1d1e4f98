// Package sqlite is a persistent document store on top of SQLite.
package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // SQLite driver

	"ragkb/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	title      TEXT NOT NULL,
	text       TEXT NOT NULL,
	created_at INTEGER NOT NULL
)`

// row mirrors the documents table; created_at is stored as Unix nanoseconds.
type row struct {
	ID        string `db:"id"`
	Title     string `db:"title"`
	Text      string `db:"text"`
	CreatedAt int64  `db:"created_at"`
}

func (r row) document() domain.Document {
	return domain.Document{
		ID:        r.ID,
		Title:     r.Title,
		Text:      r.Text,
		CreatedAt: time.Unix(0, r.CreatedAt).UTC(),
	}
}

// Storage keeps documents in a SQLite database file.
type Storage struct {
	db   *sqlx.DB
	path string
	now  func() time.Time
}

var _ domain.DocumentStore = (*Storage)(nil)

// Open opens (creating if needed) the database at path and ensures the schema exists.
func Open(ctx context.Context, path string) (*Storage, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	db, err := sqlx.ConnectContext(ctx, "sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// a single connection keeps writes serialized
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Storage{db: db, path: path, now: time.Now}, nil
}

// Path returns the database file path.
func (s *Storage) Path() string { return s.path }

// GetAll returns every document in insertion order.
func (s *Storage) GetAll(ctx context.Context) ([]domain.Document, error) {
	var rows []row
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, title, text, created_at FROM documents ORDER BY seq`); err != nil {
		return nil, fmt.Errorf("select documents: %w", err)
	}
	out := make([]domain.Document, len(rows))
	for i, r := range rows {
		out[i] = r.document()
	}
	return out, nil
}

// Get returns the document with the given ID.
func (s *Storage) Get(ctx context.Context, id string) (domain.Document, error) {
	var rows []row
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, title, text, created_at FROM documents WHERE id = ?`, id); err != nil {
		return domain.Document{}, fmt.Errorf("select document %q: %w", id, err)
	}
	if len(rows) == 0 {
		return domain.Document{}, fmt.Errorf("get %q: %w", id, domain.ErrNotFound)
	}
	return rows[0].document(), nil
}

// Add stores doc, assigning an ID and creation time when missing.
// Adding an existing ID replaces the document but keeps its position.
func (s *Storage) Add(ctx context.Context, doc domain.Document) (domain.Document, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = s.now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO documents (id, title, text, created_at)
		VALUES (:id, :title, :text, :created_at)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			text = excluded.text,
			created_at = excluded.created_at`,
		row{ID: doc.ID, Title: doc.Title, Text: doc.Text, CreatedAt: doc.CreatedAt.UnixNano()},
	)
	if err != nil {
		return domain.Document{}, fmt.Errorf("insert document %q: %w", doc.ID, err)
	}
	doc.CreatedAt = time.Unix(0, doc.CreatedAt.UnixNano()).UTC()
	return doc, nil
}

// Remove deletes the document with the given ID.
func (s *Storage) Remove(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete document %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document %q: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("remove %q: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Clear removes every document.
func (s *Storage) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return fmt.Errorf("clear documents: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}
