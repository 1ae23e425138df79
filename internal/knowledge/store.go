// Package knowledge keeps a local FTS5 index of the repository library
// (titles, descriptions, tags, key points, long summaries). It backs the
// search_library tool and orders documents by relevance before the chat
// context is cut to its item budget.
//
// The index lives in its own SQLite file next to the local state so it can
// be rebuilt from the backend at any time.
package knowledge

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	_ "modernc.org/sqlite"
)

// Document is one indexed repository entry.
type Document struct {
	Path     string // "repositorio:<id>"
	Title    string
	Content  string
	Category string // tipo_documento
}

// Result is a search hit.
type Result struct {
	Path     string  `json:"path"`
	Title    string  `json:"title"`
	Snippet  string  `json:"snippet"`
	Category string  `json:"category"`
	Rank     float64 `json:"rank"`
}

// unicode61 with diacritics removed so "energia" matches "energía".
const knowledgeSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS documents USING fts5(
	path,
	title,
	content,
	category,
	tokenize='unicode61 remove_diacritics 2'
);

CREATE TABLE IF NOT EXISTS doc_meta (
	path TEXT PRIMARY KEY,
	checksum TEXT,
	indexed_at TEXT
);
`

// Store wraps a SQLite database with an FTS5 table.
type Store struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
}

// NewStore opens (or creates) the index at dbPath.
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create knowledge db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open knowledge db: %w", err)
	}

	if _, err := db.Exec(knowledgeSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init knowledge schema: %w", err)
	}

	return &Store{db: db, path: dbPath}, nil
}

// Index inserts or replaces a document.
func (s *Store) Index(doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM documents WHERE path = ?`, doc.Path); err != nil {
		return fmt.Errorf("delete old doc: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO documents (path, title, content, category) VALUES (?, ?, ?, ?)`,
		doc.Path, doc.Title, doc.Content, doc.Category,
	); err != nil {
		return fmt.Errorf("insert doc: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO doc_meta (path, checksum, indexed_at) VALUES (?, ?, ?)`,
		doc.Path, checksum(doc), now,
	); err != nil {
		return fmt.Errorf("upsert doc_meta: %w", err)
	}

	return tx.Commit()
}

// IndexIfChanged indexes doc only when its title, content or category
// changed. Reports whether it was (re)indexed.
func (s *Store) IndexIfChanged(doc Document) (bool, error) {
	sum := checksum(doc)

	s.mu.RLock()
	var existing string
	err := s.db.QueryRow(`SELECT checksum FROM doc_meta WHERE path = ?`, doc.Path).Scan(&existing)
	s.mu.RUnlock()

	if err == nil && existing == sum {
		return false, nil
	}
	if err := s.Index(doc); err != nil {
		return false, err
	}
	return true, nil
}

// Remove deletes a document.
func (s *Store) Remove(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM documents WHERE path = ?`, path); err != nil {
		return fmt.Errorf("delete from fts: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM doc_meta WHERE path = ?`, path); err != nil {
		return fmt.Errorf("delete from meta: %w", err)
	}
	return tx.Commit()
}

// IndexedPaths returns every indexed path.
func (s *Store) IndexedPaths() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT path FROM doc_meta`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// Query searches the index; every term must match. category filters on
// tipo_documento when non-empty. Returns up to limit results by rank.
func (s *Store) Query(ctx context.Context, query, category string, limit int) ([]Result, error) {
	return s.search(ctx, sanitizeFTSQuery(query, " "), category, limit)
}

// QueryAny is Query with any-term matching, used for relevance ordering of
// natural-language questions.
func (s *Store) QueryAny(ctx context.Context, query string, limit int) ([]Result, error) {
	return s.search(ctx, sanitizeFTSQuery(query, " OR "), "", limit)
}

func (s *Store) search(ctx context.Context, ftsQuery, category string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}
	if ftsQuery == "" {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	q := `
		SELECT path, title, snippet(documents, 2, '>>>', '<<<', '...', 40) AS snip, category, rank
		FROM documents
		WHERE documents MATCH ?`
	args := []any{ftsQuery}
	if category != "" {
		q += ` AND category = ?`
		args = append(args, category)
	}
	q += ` ORDER BY rank LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("fts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.Path, &r.Title, &r.Snippet, &r.Category, &r.Rank); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// Count returns the number of indexed documents.
func (s *Store) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM doc_meta`).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// sanitizeFTSQuery strips FTS5 syntax from a user query and joins the
// remaining terms with sep (" " for AND, " OR " for OR). Each term is quoted.
func sanitizeFTSQuery(q, sep string) string {
	replacer := strings.NewReplacer(
		"\"", " ",
		"'", " ",
		"(", " ",
		")", " ",
		"*", " ",
		":", " ",
		"^", " ",
		"{", " ",
		"}", " ",
		"¿", " ",
		"?", " ",
		"¡", " ",
		"!", " ",
		",", " ",
		".", " ",
		";", " ",
	)
	var tokens []string
	for _, w := range strings.Fields(replacer.Replace(q)) {
		switch w {
		case "AND", "OR", "NOT", "NEAR":
			continue
		}
		// One- and two-letter words (de, la, el, y) only add noise to OR queries.
		if sep != " " && len([]rune(w)) < 3 {
			continue
		}
		if !strings.ContainsFunc(w, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) {
			continue
		}
		tokens = append(tokens, `"`+w+`"`)
	}
	return strings.Join(tokens, sep)
}

func checksum(doc Document) string {
	h := sha256.Sum256([]byte(doc.Title + "\x00" + doc.Category + "\x00" + doc.Content))
	return hex.EncodeToString(h[:])
}
