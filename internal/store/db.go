package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// DB wraps the sqlite replica. It is the single owner of durable state: the
// sync components hold stream handles only and read everything back through
// here.
type DB struct {
	*sql.DB

	logger *zap.Logger
	rev    atomic.Int64
	onRev  atomic.Value // func(int64)
}

// Open creates a new sqlite connection with WAL mode and recommended pragmas.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{DB: db, logger: zap.NewNop()}, nil
}

// UseLogger attaches a logger for non-fatal store diagnostics (lazy record
// migration failures and the like).
func (db *DB) UseLogger(l *zap.Logger) {
	if l != nil {
		db.logger = l
	}
}

// Revision returns the store-wide revision counter. It increments once per
// committed write; UI query caches compare it to decide whether to refetch.
func (db *DB) Revision() int64 {
	return db.rev.Load()
}

// OnRevision registers a hook invoked after every committed write with the
// new revision. The hook must not block.
func (db *DB) OnRevision(fn func(int64)) {
	db.onRev.Store(fn)
}

func (db *DB) bump() {
	r := db.rev.Add(1)
	if fn, ok := db.onRev.Load().(func(int64)); ok && fn != nil {
		fn(r)
	}
}

// Tx is one logical store transaction. A write that fails aborts the whole
// transaction; no partial state becomes visible.
type Tx struct {
	tx *sql.Tx
	db *DB
}

// WithTx runs fn inside a transaction, rolling back on error. The revision
// counter bumps once per committed transaction, not per statement.
func (db *DB) WithTx(fn func(*Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&Tx{tx: tx, db: db}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	db.bump()
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx so record operations can
// run standalone or inside a reconciliation transaction.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// isConstraintErr reports whether err is a sqlite uniqueness violation.
func isConstraintErr(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}
