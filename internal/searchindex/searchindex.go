// Package searchindex is a SQLite-backed full-text index accelerating
// History and Grimoire search over large collections. It is derived,
// not authoritative: every row here can be reconstructed from the KV
// Store, so a corrupt or missing search.db is recovered by calling
// Reindex, never by hand-editing this file.
package searchindex

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Row is one indexed record: a History entry or a Grimoire entry
// flattened down to the fields worth searching.
type Row struct {
	Kind string    `json:"kind"` // "history" or "grimoire"
	ID   string    `json:"id"`
	Text string    `json:"text"`
	Tags []string  `json:"tags"`
	At   time.Time `json:"at"`
}

// Index wraps the SQLite connection backing the search virtual table.
type Index struct {
	db *sql.DB
}

// Open creates or opens the search index at path, applying schema
// migrations as needed.
func Open(path string) (*Index, error) {
	path = filepath.Clean(strings.TrimSpace(path))
	if path == "" {
		return nil, errors.New("searchindex: missing db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("searchindex: create dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &Index{db: db}, nil
}

func (idx *Index) Close() error {
	if idx == nil || idx.db == nil {
		return nil
	}
	return idx.db.Close()
}

func initSchema(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return fmt.Errorf("searchindex: pragma journal_mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=3000;`); err != nil {
		return fmt.Errorf("searchindex: pragma busy_timeout: %w", err)
	}
	_, err := db.Exec(`
CREATE VIRTUAL TABLE IF NOT EXISTS search_fts USING fts5(
  kind,
  id UNINDEXED,
  text,
  tags,
  at UNINDEXED,
  tokenize = 'porter unicode61'
);
`)
	if err != nil {
		return fmt.Errorf("searchindex: create table: %w", err)
	}
	return nil
}

// Upsert replaces any existing row for (kind, id) with row. FTS5 has no
// native upsert, so this is a delete followed by an insert inside one
// statement group.
func (idx *Index) Upsert(row Row) error {
	if idx == nil || idx.db == nil {
		return errors.New("searchindex: not initialized")
	}
	kind := strings.TrimSpace(row.Kind)
	id := strings.TrimSpace(row.ID)
	if kind == "" || id == "" {
		return errors.New("searchindex: missing kind or id")
	}

	tx, err := idx.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM search_fts WHERE kind = ? AND id = ?`, kind, id); err != nil {
		return err
	}
	at := row.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	if _, err := tx.Exec(
		`INSERT INTO search_fts (kind, id, text, tags, at) VALUES (?, ?, ?, ?, ?)`,
		kind, id, row.Text, strings.Join(row.Tags, " "), at.UTC().Format(time.RFC3339),
	); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes the row for (kind, id), if any.
func (idx *Index) Delete(kind, id string) error {
	if idx == nil || idx.db == nil {
		return errors.New("searchindex: not initialized")
	}
	_, err := idx.db.Exec(`DELETE FROM search_fts WHERE kind = ? AND id = ?`, strings.TrimSpace(kind), strings.TrimSpace(id))
	return err
}

// Search returns ids matching query within kind, best match first.
// A blank query matches nothing, the same contract History.Search and
// Grimoire.Search use for their in-memory fallback.
func (idx *Index) Search(kind, query string, limit int) ([]Row, error) {
	if idx == nil || idx.db == nil {
		return nil, errors.New("searchindex: not initialized")
	}
	kind = strings.TrimSpace(kind)
	query = strings.TrimSpace(query)
	if kind == "" || query == "" {
		return nil, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 500
	}

	rows, err := idx.db.Query(
		`SELECT kind, id, text, tags, at FROM search_fts WHERE kind = ? AND search_fts MATCH ? ORDER BY rank LIMIT ?`,
		kind, ftsPhrase(query), limit,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Row
	for rows.Next() {
		var r Row
		var tags, at string
		if err := rows.Scan(&r.Kind, &r.ID, &r.Text, &tags, &at); err != nil {
			return nil, err
		}
		if tags != "" {
			r.Tags = strings.Fields(tags)
		}
		if t, err := time.Parse(time.RFC3339, at); err == nil {
			r.At = t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ftsPhrase wraps query as a single FTS5 phrase so punctuation and
// reserved operators in user input never raise a MATCH syntax error.
func ftsPhrase(query string) string {
	return `"` + strings.ReplaceAll(query, `"`, `""`) + `"`
}

// ReindexKind replaces every row of the given kind with rows, inside
// one transaction, leaving other kinds untouched.
func (idx *Index) ReindexKind(kind string, rows []Row) error {
	if idx == nil || idx.db == nil {
		return errors.New("searchindex: not initialized")
	}
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return errors.New("searchindex: missing kind")
	}

	tx, err := idx.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM search_fts WHERE kind = ?`, kind); err != nil {
		return err
	}
	for _, row := range rows {
		id := strings.TrimSpace(row.ID)
		if id == "" {
			continue
		}
		at := row.At
		if at.IsZero() {
			at = time.Now().UTC()
		}
		if _, err := tx.Exec(
			`INSERT INTO search_fts (kind, id, text, tags, at) VALUES (?, ?, ?, ?, ?)`,
			kind, id, row.Text, strings.Join(row.Tags, " "), at.UTC().Format(time.RFC3339),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Reindex rebuilds the entire index from scratch across all kinds.
func (idx *Index) Reindex(rows []Row) error {
	if idx == nil || idx.db == nil {
		return errors.New("searchindex: not initialized")
	}
	tx, err := idx.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM search_fts`); err != nil {
		return err
	}
	for _, row := range rows {
		kind, id := strings.TrimSpace(row.Kind), strings.TrimSpace(row.ID)
		if kind == "" || id == "" {
			continue
		}
		at := row.At
		if at.IsZero() {
			at = time.Now().UTC()
		}
		if _, err := tx.Exec(
			`INSERT INTO search_fts (kind, id, text, tags, at) VALUES (?, ?, ?, ?, ?)`,
			kind, id, row.Text, strings.Join(row.Tags, " "), at.UTC().Format(time.RFC3339),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}
