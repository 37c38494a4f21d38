package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// sqliteTextIndex keeps an FTS5 table in the store's own database, so
// content and its index entry commit atomically.
type sqliteTextIndex struct {
	db *sql.DB
}

var _ textIndex = (*sqliteTextIndex)(nil)

func newSQLiteTextIndex(ctx context.Context, db *sql.DB) (*sqliteTextIndex, error) {
	// Created here rather than in a migration: FTS5 is optional in cgo
	// builds of the sqlite3 driver, and the bleve backend does not need it.
	_, err := db.ExecContext(ctx, `
		CREATE VIRTUAL TABLE IF NOT EXISTS content_fts USING fts5(
			hash UNINDEXED,
			body,
			tokenize = 'unicode61 remove_diacritics 2'
		)`)
	if err != nil {
		return nil, fmt.Errorf("create fts5 table: %w", err)
	}
	return &sqliteTextIndex{db: db}, nil
}

func (s *sqliteTextIndex) name() string { return FTSBackendSQLite }

func (s *sqliteTextIndex) index(ctx context.Context, tx *sql.Tx, hash, body string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO content_fts(hash, body) VALUES (?, ?)`, hash, body)
	if err != nil {
		return fmt.Errorf("index content %s: %w", hash, err)
	}
	return nil
}

// search ORs the quoted terms so a document matching any of them is a
// candidate; bm25 ranks documents matching more terms higher. The join to
// documents filters in the same query, so the limit counts only active
// documents of the category. lookup is unused: the documents table is
// local.
func (s *sqliteTextIndex) search(ctx context.Context, _ documentLookup, terms []string, limit int, category string) ([]ScoredDocument, error) {
	if len(terms) == 0 {
		return nil, nil
	}

	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.category, d.path, d.title, d.hash, d.mtime, bm25(content_fts) AS rank
		FROM content_fts
		JOIN documents d ON d.hash = content_fts.hash
		WHERE content_fts MATCH ?
		  AND d.active = 1
		  AND (? = '' OR d.category = ?)
		ORDER BY rank, d.id
		LIMIT ?`, strings.Join(quoted, " OR "), category, category, limit)
	if err != nil {
		// Malformed match expressions are an empty result, not a failure.
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return nil, nil
		}
		return nil, fmt.Errorf("fts5 match: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []ScoredDocument
	for rows.Next() {
		var d ScoredDocument
		var rank float64
		if err := rows.Scan(&d.ID, &d.Category, &d.Path, &d.Title, &d.Hash, &d.Mtime, &rank); err != nil {
			return nil, fmt.Errorf("scan fts5 row: %w", err)
		}
		// bm25() is negative with lower meaning better.
		d.Score = -rank
		d.LexicalScore = d.Score
		results = append(results, d)
	}
	return results, rows.Err()
}

func (s *sqliteTextIndex) count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM content_fts`).Scan(&n)
	return n, err
}

func (s *sqliteTextIndex) reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM content_fts`)
	return err
}

// close is a no-op: the table lives in the store's database.
func (s *sqliteTextIndex) close() error { return nil }
