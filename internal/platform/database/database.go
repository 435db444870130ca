// Package database is the persistence gateway: the single ownership
// boundary over durable storage. It exposes a per-request unit of work
// (acquire → execute N repository operations → commit or rollback) the
// way the teacher's applications/jam.PGStore does for jam work packages,
// generalized so every domain repository is constructed against the same
// Executor rather than reopening connections per call.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Executor is satisfied by both *sqlx.DB and *sqlx.Tx, so a repository
// built against it works identically whether it was constructed for a
// one-off read or inside a UnitOfWork.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	PreparexContext(ctx context.Context, query string) (*sqlx.Stmt, error)
}

// DB wraps a *sqlx.DB connection pool.
type DB struct {
	*sqlx.DB
}

// Config controls pool construction.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
}

// Connect opens the pool and verifies connectivity.
func Connect(cfg Config) (*DB, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	return &DB{DB: db}, nil
}

// Migrate runs all pending migrations from dir against the connected
// database, the way a dedicated cmd/migrate binary would in production.
func (d *DB) Migrate(dir string) error {
	driver, err := postgres.WithInstance(d.DB.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// UnitOfWork scopes one transaction. Every repository operation invoked
// through it observes the transaction's own prior writes; on Rollback
// every write within it is discarded, and every error path must reach a
// Rollback (the caller typically defers uow.Rollback() immediately after
// BeginTx and calls Commit explicitly on the success path — an already
// committed transaction's Rollback call is a harmless no-op).
type UnitOfWork struct {
	tx *sqlx.Tx
}

func (u *UnitOfWork) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return u.tx.ExecContext(ctx, query, args...)
}

func (u *UnitOfWork) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return u.tx.QueryContext(ctx, query, args...)
}

func (u *UnitOfWork) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return u.tx.QueryRowContext(ctx, query, args...)
}

func (u *UnitOfWork) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	return u.tx.GetContext(ctx, dest, query, args...)
}

func (u *UnitOfWork) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	return u.tx.SelectContext(ctx, dest, query, args...)
}

func (u *UnitOfWork) PreparexContext(ctx context.Context, query string) (*sqlx.Stmt, error) {
	return u.tx.PreparexContext(ctx, query)
}

// Commit finalizes the unit of work.
func (u *UnitOfWork) Commit() error { return u.tx.Commit() }

// Rollback discards the unit of work. Calling it after Commit returns
// sql.ErrTxDone, which callers ignore via the defer-rollback idiom.
func (u *UnitOfWork) Rollback() error { return u.tx.Rollback() }

// BeginTx acquires a new unit of work. The isolation level defaults to
// the driver's default (READ COMMITTED on Postgres), matching spec's
// "snapshot isolation per request" requirement for read-your-own-writes
// within one unit of work.
func (d *DB) BeginTx(ctx context.Context) (*UnitOfWork, error) {
	tx, err := d.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin unit of work: %w", err)
	}
	return &UnitOfWork{tx: tx}, nil
}

// WithUnitOfWork runs fn inside a UnitOfWork, committing on a nil return
// and rolling back otherwise. This is the preferred entry point for
// services: it guarantees the rollback-on-any-error-path rule spec.md
// §4.1 requires without every call site re-deriving it.
func (d *DB) WithUnitOfWork(ctx context.Context, fn func(ctx context.Context, uow *UnitOfWork) error) error {
	uow, err := d.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = uow.Rollback() }()

	if err := fn(ctx, uow); err != nil {
		return err
	}
	return uow.Commit()
}

// SoftDelete marks a row deleted by setting both the flag and the
// timestamp atomically in one statement, so callers cannot bypass the
// pairing described in spec.md §4.1.
func SoftDelete(ctx context.Context, ex Executor, table, idColumn, id string) error {
	query := fmt.Sprintf(`UPDATE %s SET is_deleted = true, deleted_at = now(), updated_at = now() WHERE %s = $1 AND is_deleted = false`, table, idColumn)
	_, err := ex.ExecContext(ctx, query, id)
	return err
}
