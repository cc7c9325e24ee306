package store

import (
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("not found")

// StorageError reports a failed local store operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return "store: " + e.Op + ": " + e.Err.Error() }

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrStaleSnapshot) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// DB wraps the SQLite database connection.
type DB struct {
	*sql.DB
	log     *zap.Logger
	changes *changeHub
}

// Open opens (or creates) a SQLite database and migrates it to the latest schema.
func Open(path string, log *zap.Logger) (*DB, error) {
	return open(path, log, LatestVersion)
}

func open(path string, log *zap.Logger, version int) (*DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	db := &DB{DB: sqlDB, log: log, changes: newChangeHub()}
	if err := db.Migrate(version); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if version >= 2 {
		n, err := db.RecoverInFlight()
		if err != nil {
			sqlDB.Close()
			return nil, err
		}
		if n > 0 {
			log.Warn("reset in-flight mutations left by previous run", zap.Int64("count", n))
		}
	}
	return db, nil
}

// WithTx runs fn inside a write transaction. On commit, subscribers watching
// any of the named tables are notified. Any error rolls everything back.
func (db *DB) WithTx(tables []string, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return storageErr("begin", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit", err)
	}
	db.changes.notify(tables)
	return nil
}
