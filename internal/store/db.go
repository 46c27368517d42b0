// Package store is the persistence layer for jobs, step results and
// artifacts: a DB/Tx wrapper over sqlx with goqu-built queries and a
// hand-written, explicitly-typed table layer per model.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/buildbeaver/docflow/internal/logger"
)

// ConnectionString is a sqlite3 DSN, e.g. "file:docflow.db?_foreign_keys=on"
// or ":memory:" for tests.
type ConnectionString string

const dialect = "sqlite3"

// DB wraps a sqlx handle with the goqu dialect and a lock that serializes
// transactions opened through WithTx: SQLite permits only one writer at a
// time, and the lock keeps concurrent orchestrator goroutines from hitting
// SQLITE_BUSY under the default busy_timeout. Writes made without a Tx do
// not take the lock.
type DB struct {
	*sqlx.DB
	dialect goqu.DialectWrapper
	log     logger.Log
	lock    sync.Mutex
}

// Tx wraps an in-flight transaction. A nil *Tx passed to a store method
// means "run directly against the pooled connection".
type Tx struct {
	tx *sqlx.Tx
}

// Open connects to the SQLite database at connStr and applies the schema.
func Open(connStr ConnectionString, logFactory logger.LogFactory) (*DB, error) {
	sqlxDB, err := sqlx.Connect(dialect, string(connStr))
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	sqlxDB.SetMaxOpenConns(1) // sqlite3 driver is not safe for concurrent writers
	db := &DB{
		DB:      sqlxDB,
		dialect: goqu.Dialect(dialect),
		log:     logFactory("store"),
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("error applying schema: %w", err)
	}
	return db, nil
}

// Close releases the underlying connection pool.
func (d *DB) Close() error {
	return d.DB.Close()
}

// From starts a goqu select builder against table.
func (d *DB) From(table string) *goqu.SelectDataset {
	return d.dialect.From(table)
}

// Insert starts a goqu insert builder against table.
func (d *DB) Insert(table string) *goqu.InsertDataset {
	return d.dialect.Insert(table)
}

// Update starts a goqu update builder against table.
func (d *DB) Update(table string) *goqu.UpdateDataset {
	return d.dialect.Update(table)
}

// Delete starts a goqu delete builder against table.
func (d *DB) Delete(table string) *goqu.DeleteDataset {
	return d.dialect.Delete(table)
}

// WithTx runs fn inside a new transaction, committing on success and
// rolling back if fn returns an error or panics.
func (d *DB) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	sqlxTx, err := d.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	tx := &Tx{tx: sqlxTx}

	defer func() {
		if r := recover(); r != nil {
			if rbErr := sqlxTx.Rollback(); rbErr != nil {
				d.log.Warnf("error rolling back transaction: %s", rbErr)
			}
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := sqlxTx.Rollback(); rbErr != nil {
			d.log.Warnf("error rolling back transaction: %s", rbErr)
		}
		return err
	}
	if err := sqlxTx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}
	return nil
}

// execer is satisfied by both *sqlx.DB and *sqlx.Tx, letting store methods
// accept an optional *Tx transparently.
type execer interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (d *DB) execerFor(tx *Tx) execer {
	if tx != nil {
		return tx.tx
	}
	return d.DB
}

// ErrNotFound is returned by Read-style methods when no row matches.
var ErrNotFound = sql.ErrNoRows
