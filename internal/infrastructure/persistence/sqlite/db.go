// Package sqlite lets repositories share a transaction through the context.
package sqlite

import (
	"context"
	"database/sql"

	"github.com/garyjia/logistics-console/internal/application/port"
	"github.com/garyjia/logistics-console/pkg/database"
)

type txKey struct{}

// Executor is what a repository runs statements against: the open
// transaction inside WithTransaction, the database outside it
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB implements port.TransactionManager over the console database
type DB struct {
	base *database.DB
}

// New wraps base
func New(base *database.DB) *DB {
	return &DB{base: base}
}

// WithTransaction runs fn with a transaction in its context. Nested calls
// join the outer transaction; the outermost call commits.
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}
	return db.base.Tx(ctx, func(tx *sql.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// Conn returns the executor for ctx
func (db *DB) Conn(ctx context.Context) Executor {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db.base.DB
}

var _ port.TransactionManager = (*DB)(nil)
