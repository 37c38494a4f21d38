package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // cgo driver, registered as "sqlite3"
	_ "modernc.org/sqlite"          // pure Go driver, registered as "sqlite"

	dierrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/store/migrations"
)

// Supported database/sql drivers.
const (
	DriverSQLite  = "sqlite"
	DriverSQLite3 = "sqlite3"
)

// Options configures Open.
type Options struct {
	// Path is the database file. Empty or ":memory:" opens an in-memory store.
	Path string

	// Driver is DriverSQLite (default) or DriverSQLite3.
	Driver string

	// FTSBackend is FTSBackendSQLite (default) or FTSBackendBleve.
	FTSBackend string

	// FTSPath is the bleve index directory. Empty keeps bleve in memory.
	FTSPath string

	Logger *slog.Logger
}

// Store owns all persisted state. Writers are serialized through writeMu and
// every mutation runs in a single transaction.
type Store struct {
	db     *sql.DB
	driver string
	path   string
	fts    textIndex
	logger *slog.Logger
	now    func() time.Time

	writeMu sync.Mutex

	mu     sync.RWMutex
	closed bool
}

// Open opens (creating if needed) the store, applies migrations and brings
// the full-text index in line with the content table.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Driver == "" {
		opts.Driver = DriverSQLite
	}
	if opts.FTSBackend == "" {
		opts.FTSBackend = FTSBackendSQLite
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	db, err := openDB(opts.Driver, opts.Path)
	if err != nil {
		return nil, dierrors.StorageIO("open database", err)
	}

	if err := migrations.MigrateUp(db, opts.Driver); err != nil {
		_ = db.Close()
		return nil, dierrors.StorageIO("migrate schema", err)
	}

	fts, err := newTextIndex(ctx, opts.FTSBackend, db, opts.FTSPath, opts.Logger)
	if err != nil {
		_ = db.Close()
		return nil, dierrors.StorageIO("open full-text index", err)
	}

	s := &Store{
		db:     db,
		driver: opts.Driver,
		path:   opts.Path,
		fts:    fts,
		logger: opts.Logger,
		now:    time.Now,
	}

	if err := s.syncTextIndex(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func isMemory(path string) bool {
	return path == "" || path == ":memory:"
}

// dsn builds a driver-specific connection string. modernc ignores mattn's
// underscore parameters, so pragmas are also applied by statement below.
func dsn(driver, path string) string {
	if isMemory(path) {
		return ":memory:"
	}
	q := url.Values{}
	switch driver {
	case DriverSQLite3:
		q.Set("_journal_mode", "WAL")
		q.Set("_busy_timeout", "5000")
		q.Set("_synchronous", "NORMAL")
		q.Set("_foreign_keys", "on")
	default:
		q.Add("_pragma", "busy_timeout(5000)")
		q.Add("_pragma", "foreign_keys(1)")
	}
	return "file:" + path + "?" + q.Encode()
}

func openDB(driver, path string) (*sql.DB, error) {
	switch driver {
	case DriverSQLite, DriverSQLite3:
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	if !isMemory(path) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}
	}

	db, err := sql.Open(driver, dsn(driver, path))
	if err != nil {
		return nil, err
	}

	// One connection: the single writer, and the in-memory database lives
	// exactly as long as it does.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	return db, nil
}

// syncTextIndex rebuilds the full-text index when its document count does
// not match the content table, e.g. after switching backends.
func (s *Store) syncTextIndex(ctx context.Context) error {
	var contentCount int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM content`).Scan(&contentCount); err != nil {
		return dierrors.StorageIO("count content", err)
	}
	indexed, err := s.fts.count(ctx)
	if err != nil {
		return dierrors.StorageIO("count full-text index", err)
	}
	if indexed == contentCount {
		return nil
	}

	s.logger.Info("full-text index out of sync, rebuilding",
		slog.String("backend", s.fts.name()),
		slog.Int("content", contentCount),
		slog.Int("indexed", indexed))
	return s.Reindex(ctx)
}

// Reindex rebuilds the full-text index from the content table.
func (s *Store) Reindex(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.fts.reset(ctx); err != nil {
		return dierrors.StorageIO("reset full-text index", err)
	}

	const batch = 500
	after := ""
	for {
		rows, err := s.db.QueryContext(ctx,
			`SELECT hash, body FROM content WHERE hash > ? ORDER BY hash LIMIT ?`, after, batch)
		if err != nil {
			return dierrors.StorageIO("read content", err)
		}
		var page [][2]string
		for rows.Next() {
			var h, b string
			if err := rows.Scan(&h, &b); err != nil {
				_ = rows.Close()
				return dierrors.StorageIO("scan content", err)
			}
			page = append(page, [2]string{h, b})
		}
		if err := rows.Close(); err != nil {
			return dierrors.StorageIO("read content", err)
		}
		if len(page) == 0 {
			return nil
		}

		err = s.inTx(ctx, "reindex content", func(tx *sql.Tx) error {
			for _, p := range page {
				if err := s.fts.index(ctx, tx, p[0], p[1]); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		after = page[len(page)-1][0]
	}
}

// Close releases the database and the full-text index. It is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []string
	if err := s.fts.close(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("close store: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DB exposes the underlying handle for maintenance commands.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Driver returns the database/sql driver name in use.
func (s *Store) Driver() string {
	return s.driver
}

// TextBackend returns the name of the full-text backend in use.
func (s *Store) TextBackend() string {
	return s.fts.name()
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return dierrors.StorageIO("store", ErrClosed)
	}
	return nil
}

// withWriteTx runs fn in a transaction while holding the writer lock.
func (s *Store) withWriteTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.inTx(ctx, op, fn)
}

// inTx must be called with writeMu held. Errors from fn that are already
// coded pass through unchanged; anything else is a storage failure.
func (s *Store) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dierrors.StorageIO(op, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		if _, ok := dierrors.As(err); ok {
			return err
		}
		return dierrors.StorageIO(op, err)
	}
	if err := tx.Commit(); err != nil {
		return dierrors.StorageIO(op, err)
	}
	return nil
}

func (s *Store) nowMillis() int64 {
	return s.now().UnixMilli()
}
