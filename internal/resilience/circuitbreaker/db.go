package circuitbreaker

import (
	"context"
	"database/sql"
	"errors"
)

// DB runs single-row lookups and health checks against a database through
// a Breaker.
type DB struct {
	breaker *Breaker
	db      *sql.DB
}

// NewDB guards db with a circuit built from cfg.
func NewDB(db *sql.DB, cfg Config) *DB {
	return &DB{breaker: New(cfg), db: db}
}

// QueryRowScan runs query and scans the single result row into dest, inside
// the circuit, so scan-time failures count too. sql.ErrNoRows is returned
// unchanged and does not count as a failure.
func (d *DB) QueryRowScan(ctx context.Context, query string, args []any, dest ...any) error {
	var noRows bool
	err := d.breaker.Do(func() error {
		err := d.db.QueryRowContext(ctx, query, args...).Scan(dest...)
		if errors.Is(err, sql.ErrNoRows) {
			noRows = true
			return nil
		}
		return err
	})
	switch {
	case err != nil:
		return err
	case noRows:
		return sql.ErrNoRows
	}
	return nil
}

// PingContext pings the database through the circuit.
func (d *DB) PingContext(ctx context.Context) error {
	return d.breaker.Do(func() error {
		return d.db.PingContext(ctx)
	})
}

// Breaker returns the guarding circuit.
func (d *DB) Breaker() *Breaker { return d.breaker }
