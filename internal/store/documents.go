package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	dierrors "github.com/Aman-CERP/docindex/internal/errors"
)

const documentColumns = `id, category, path, title, hash, mtime, active`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(r rowScanner) (Document, error) {
	var d Document
	var active int
	if err := r.Scan(&d.ID, &d.Category, &d.Path, &d.Title, &d.Hash, &d.Mtime, &active); err != nil {
		return Document{}, err
	}
	d.Active = active == 1
	return d, nil
}

// InsertDocument creates an active document. It fails with a constraint
// violation when an active document already exists at (category, path);
// callers should FindDocument first and UpdateDocument instead.
func (s *Store) InsertDocument(ctx context.Context, category, path, title, hash string, mtime int64) (int64, error) {
	var id int64
	err := s.withWriteTx(ctx, "insert document", func(tx *sql.Tx) error {
		if _, found, err := findDocumentTx(ctx, tx, category, path); err != nil {
			return err
		} else if found {
			return dierrors.ConstraintViolation(
				fmt.Sprintf("active document already exists at %s/%s", category, path)).
				WithDetail("category", category).WithDetail("path", path)
		}
		var err error
		id, err = s.insertDocumentTx(ctx, tx, category, path, title, hash, mtime)
		return err
	})
	return id, err
}

func (s *Store) insertDocumentTx(ctx context.Context, tx *sql.Tx, category, path, title, hash string, mtime int64) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO documents(category, path, title, hash, mtime, active, updated_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?)`,
		category, path, title, hash, mtime, s.nowMillis())
	if err != nil {
		if isUniqueViolation(err) {
			return 0, dierrors.ConstraintViolation(
				fmt.Sprintf("active document already exists at %s/%s", category, path))
		}
		if isForeignKeyViolation(err) {
			return 0, dierrors.ConstraintViolation(
				fmt.Sprintf("document %s/%s references missing content %s", category, path, hash))
		}
		return 0, fmt.Errorf("insert document: %w", err)
	}
	return res.LastInsertId()
}

// FindDocument returns the active document at (category, path).
func (s *Store) FindDocument(ctx context.Context, category, path string) (Document, bool, error) {
	if err := s.checkOpen(); err != nil {
		return Document{}, false, err
	}
	d, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents
		 WHERE category = ? AND path = ? AND active = 1`, category, path))
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, false, nil
	}
	if err != nil {
		return Document{}, false, dierrors.StorageIO("find document", err)
	}
	return d, true, nil
}

func findDocumentTx(ctx context.Context, tx *sql.Tx, category, path string) (Document, bool, error) {
	d, err := scanDocument(tx.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents
		 WHERE category = ? AND path = ? AND active = 1`, category, path))
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, false, nil
	}
	if err != nil {
		return Document{}, false, fmt.Errorf("find document: %w", err)
	}
	return d, true, nil
}

// GetDocument returns a document by id, active or not.
func (s *Store) GetDocument(ctx context.Context, id int64) (Document, bool, error) {
	if err := s.checkOpen(); err != nil {
		return Document{}, false, err
	}
	d, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, false, nil
	}
	if err != nil {
		return Document{}, false, dierrors.StorageIO("get document", err)
	}
	return d, true, nil
}

// UpdateDocument changes title, hash and mtime of a document. The active
// flag is left untouched.
func (s *Store) UpdateDocument(ctx context.Context, id int64, title, hash string, mtime int64) error {
	return s.withWriteTx(ctx, "update document", func(tx *sql.Tx) error {
		return s.updateDocumentTx(ctx, tx, id, title, hash, mtime)
	})
}

func (s *Store) updateDocumentTx(ctx context.Context, tx *sql.Tx, id int64, title, hash string, mtime int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE documents SET title = ?, hash = ?, mtime = ?, updated_at = ? WHERE id = ?`,
		title, hash, mtime, s.nowMillis(), id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return dierrors.ConstraintViolation(
				fmt.Sprintf("document %d references missing content %s", id, hash))
		}
		return fmt.Errorf("update document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return dierrors.NotFound(fmt.Sprintf("document %d not found", id))
	}
	return nil
}

// DeactivateDocument soft-deletes the active document at (category, path).
// It is a no-op when there is none. Content and embeddings are kept.
func (s *Store) DeactivateDocument(ctx context.Context, category, path string) error {
	return s.withWriteTx(ctx, "deactivate document", func(tx *sql.Tx) error {
		_, err := s.deactivateTx(ctx, tx, category, path)
		return err
	})
}

func (s *Store) deactivateTx(ctx context.Context, tx *sql.Tx, category, path string) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE documents SET active = 0, updated_at = ?
		 WHERE category = ? AND path = ? AND active = 1`,
		s.nowMillis(), category, path)
	if err != nil {
		return false, fmt.Errorf("deactivate document: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeactivatePaths soft-deletes every listed path of a category in one
// transaction and returns how many were active.
func (s *Store) DeactivatePaths(ctx context.Context, category string, paths []string) (int, error) {
	if len(paths) == 0 {
		return 0, nil
	}
	var count int
	err := s.withWriteTx(ctx, "deactivate documents", func(tx *sql.Tx) error {
		for _, p := range paths {
			ok, err := s.deactivateTx(ctx, tx, category, p)
			if err != nil {
				return err
			}
			if ok {
				count++
			}
		}
		return nil
	})
	return count, err
}

// GetDocumentsByCategory lists active documents of a category by path.
func (s *Store) GetDocumentsByCategory(ctx context.Context, category string) ([]Document, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents
		 WHERE category = ? AND active = 1 ORDER BY path`, category)
	if err != nil {
		return nil, dierrors.StorageIO("list documents", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, dierrors.StorageIO("scan document", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, dierrors.StorageIO("list documents", err)
	}
	return docs, nil
}

// GetAllActivePaths lists the paths of active documents in a category.
func (s *Store) GetAllActivePaths(ctx context.Context, category string) ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT path FROM documents WHERE category = ? AND active = 1 ORDER BY path`, category)
	if err != nil {
		return nil, dierrors.StorageIO("list active paths", err)
	}
	defer func() { _ = rows.Close() }()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, dierrors.StorageIO("scan path", err)
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, dierrors.StorageIO("list active paths", err)
	}
	return paths, nil
}

// UpsertDocument is the insert-or-update path shared by the poller and the
// HTTP index endpoint. It hashes the body, stores the content, and creates
// or updates the active document in one transaction.
//
// An existing document with the same hash and title is left alone
// (ActionUnchanged), including its mtime.
func (s *Store) UpsertDocument(ctx context.Context, in UpsertInput) (UpsertResult, error) {
	if in.Category == "" || in.Path == "" {
		return UpsertResult{}, dierrors.BadRequest("category and path are required")
	}

	res := UpsertResult{Hash: HashContent([]byte(in.Body))}
	err := s.withWriteTx(ctx, "upsert document", func(tx *sql.Tx) error {
		existing, found, err := findDocumentTx(ctx, tx, in.Category, in.Path)
		if err != nil {
			return err
		}

		if found && existing.Hash == res.Hash && existing.Title == in.Title {
			res.ID = existing.ID
			res.Action = ActionUnchanged
			return nil
		}

		if _, err := s.insertContentTx(ctx, tx, res.Hash, in.Body); err != nil {
			return err
		}

		if found {
			res.ID = existing.ID
			res.Action = ActionUpdated
			return s.updateDocumentTx(ctx, tx, existing.ID, in.Title, res.Hash, in.Mtime)
		}

		res.ID, err = s.insertDocumentTx(ctx, tx, in.Category, in.Path, in.Title, res.Hash, in.Mtime)
		res.Action = ActionAdded
		return err
	})
	if err != nil {
		return UpsertResult{}, err
	}
	return res, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
