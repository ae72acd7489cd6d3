// Package store is the database collaborator of §6: the relational schema
// in schema.sql backing every reconciler, the sync bridge, the claim server
// and the compose engine. Every multi-row mutation goes through WithTx,
// which always rolls back unless the callback returns nil -- closing the
// "several admin handlers fall back to 500 without rollback" gap the spec
// calls out in its Open Questions (§9/SPEC_FULL §13.4).
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fabricpilot/vanctl/internal/apperr"
	"github.com/fabricpilot/vanctl/internal/config"
	"github.com/fabricpilot/vanctl/pkg/logging"

	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

// Store wraps a *sqlx.DB with the transaction helper every reconciler loop
// and bridge mutation uses.
type Store struct {
	db *sqlx.DB
}

// Open connects to the database described by cfg and verifies connectivity.
// A failure here is Fatal per §7: the controller cannot start without its
// database.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	db, err := sqlx.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, apperr.Fatal("opening database: %v", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, apperr.Fatal("database unreachable: %v", err)
	}
	return &Store{db: db}, nil
}

// NewForDB wraps an already-open handle (used by tests against a real
// Postgres test database).
func NewForDB(db *sqlx.DB) *Store { return &Store{db: db} }

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the raw handle for packages (e.g. internal/compose) that need
// read-only ad-hoc queries outside a transaction.
func (s *Store) DB() *sqlx.DB { return s.db }

// Tx is the transaction handle WithTx passes to its callback; query
// functions in this package take an sqlx.ExtContext, so passing
// tx.Queryer() to several of them composes those row operations into one
// atomic unit (§5 "Transactional discipline").
type Tx struct {
	tx *sqlx.Tx
}

// WithTx runs fn inside BEGIN/COMMIT. Any error returned by fn -- or a panic
// -- rolls the transaction back; fn's returned error (wrapped as
// apperr.Transaction if it isn't already an *apperr.Error) propagates to the
// caller. This is the single chokepoint §5 and SPEC_FULL §13.4 require:
// there is no path that commits partial work or silently drops a rollback.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) (err error) {
	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Transaction(err)
	}

	tx := &Tx{tx: sqlTx}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			logging.Error("Store", rbErr, "rollback failed after error: %v", err)
		}
		if _, ok := err.(*apperr.Error); ok {
			return err
		}
		return apperr.Transaction(err)
	}

	if cErr := sqlTx.Commit(); cErr != nil {
		return apperr.Transaction(cErr)
	}
	return nil
}

// getRow is a thin wrapper used by every entity-specific query file in this
// package to keep the "not found" mapping (sql.ErrNoRows -> apperr.NotFound)
// in one place.
func getRow(ctx context.Context, ext sqlx.ExtContext, dest interface{}, query string, args ...interface{}) error {
	err := sqlx.GetContext(ctx, ext, dest, query, args...)
	if err == sql.ErrNoRows {
		return apperr.NotFound("no row for query")
	}
	if err != nil {
		return fmt.Errorf("query %q: %w", query, err)
	}
	return nil
}

func selectRows(ctx context.Context, ext sqlx.ExtContext, dest interface{}, query string, args ...interface{}) error {
	if err := sqlx.SelectContext(ctx, ext, dest, query, args...); err != nil {
		return fmt.Errorf("query %q: %w", query, err)
	}
	return nil
}

// Queryer exposes the query executor for a Tx, or the pool itself for
// read-only callers that didn't open a transaction. Every entity query
// function in this package accepts a Queryer so it can run either inside a
// reconciler's transaction or as a one-off read (e.g. CLI status, the claim
// server's post-completion secret load).
func (s *Store) Queryer() sqlx.ExtContext { return s.db }
func (t *Tx) Queryer() sqlx.ExtContext    { return t.tx }
