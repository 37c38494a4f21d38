package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	dierrors "github.com/Aman-CERP/docindex/internal/errors"
)

var hashRe = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ValidHash reports whether h is 64 lowercase hex characters.
func ValidHash(h string) bool {
	return hashRe.MatchString(h)
}

// InsertContent stores body under hash and indexes it for full-text search.
// Inserting a hash that is already present is a no-op: content is immutable.
func (s *Store) InsertContent(ctx context.Context, hash, body string) error {
	if !ValidHash(hash) {
		return dierrors.BadRequest(fmt.Sprintf("invalid content hash %q", hash))
	}
	return s.withWriteTx(ctx, "insert content", func(tx *sql.Tx) error {
		_, err := s.insertContentTx(ctx, tx, hash, body)
		return err
	})
}

// insertContentTx reports whether a new row was written.
func (s *Store) insertContentTx(ctx context.Context, tx *sql.Tx, hash, body string) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO content(hash, body, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(hash) DO NOTHING`, hash, body, s.nowMillis())
	if err != nil {
		return false, fmt.Errorf("insert content: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert content: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	if err := s.fts.index(ctx, tx, hash, body); err != nil {
		return false, err
	}
	return true, nil
}

// GetContent returns the body stored under hash. found is false when the
// hash is unknown.
func (s *Store) GetContent(ctx context.Context, hash string) (body string, found bool, err error) {
	if err := s.checkOpen(); err != nil {
		return "", false, err
	}
	err = s.db.QueryRowContext(ctx, `SELECT body FROM content WHERE hash = ?`, hash).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, dierrors.StorageIO("get content", err)
	}
	return body, true, nil
}

// CountContent returns the number of distinct content blobs.
func (s *Store) CountContent(ctx context.Context) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM content`).Scan(&n); err != nil {
		return 0, dierrors.StorageIO("count content", err)
	}
	return n, nil
}
