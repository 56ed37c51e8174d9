// Package database centralises sqlx connection helpers.  The default driver
// is go-sql-driver/mysql, which also works with MariaDB.
//
// Public entry points:
//
//	Open(dsn)                              – helper with conservative pool sizes.
//	OpenWithOptions(ctx, dsn, Options)     – fine-grained control plus retry.
//
// Both helpers Ping the database before returning so callers can fail fast
// during bootstrap.  The forms store needs parseTime so TIMESTAMP columns
// (transient expiry) scan into time.Time; Open appends it when missing.
package database

import (
	"context"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// Options tunes the pool and the startup ping retry.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Retries         int
	RetryBackoff    time.Duration
}

// Open returns a *sqlx.DB with sane defaults: 15 max open, 5 idle, and a
// 30-minute connection lifetime.
func Open(dsn string) (*sqlx.DB, error) {
	return OpenWithOptions(context.Background(), dsn, Options{
		MaxOpenConns:    15,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		Retries:         2,
		RetryBackoff:    500 * time.Millisecond,
	})
}

// OpenWithOptions opens the pool and pings it, retrying opts.Retries times.
func OpenWithOptions(ctx context.Context, dsn string, opts Options) (*sqlx.DB, error) {
	db, err := sqlx.Open("mysql", withParseTime(dsn))
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	for attempt := 0; ; attempt++ {
		err = db.PingContext(ctx)
		if err == nil {
			return db, nil
		}
		if attempt >= opts.Retries {
			break
		}
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, ctx.Err()
		case <-time.After(opts.RetryBackoff):
		}
	}
	_ = db.Close()
	return nil, err
}

// withParseTime appends parseTime=true unless the DSN already sets it.
func withParseTime(dsn string) string {
	if strings.Contains(dsn, "parseTime=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&parseTime=true"
	}
	return dsn + "?parseTime=true"
}
