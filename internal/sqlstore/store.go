// Package sqlstore implements the record backend, the schema catalog source
// and the audit store on database/sql, for PostgreSQL (pgx) and SQLite
// (modernc).
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/raphaelgruber/passprotect-go/internal/models"
	"github.com/raphaelgruber/passprotect-go/internal/query"
)

// Config holds the pool settings for Open.
type Config struct {
	Dialect         *Dialect
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store is a database/sql backed store. The pool is shared by every
// caller and each operation acquires and releases its own connection.
type Store struct {
	db      *sql.DB
	dialect *Dialect
	logger  *slog.Logger

	// readDSN opens readDB, a separate pool for raw statements when the
	// driver can only enforce read-only at open time.
	readDSN string
	readMu  sync.Mutex
	readDB  *sql.DB
}

type readOnlyRunner func(ctx context.Context, text string) (*rowsScope, error)

// rowsScope pairs a result set with whatever must be released after it.
type rowsScope struct {
	rows    *sql.Rows
	release func()
}

// Open connects a pool and verifies it with a ping.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.Dialect == nil {
		return nil, fmt.Errorf("sqlstore: dialect is required")
	}
	db, err := sql.Open(cfg.Dialect.driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Dialect.name, err)
	}

	if cfg.Dialect == SQLite {
		// One writer at a time avoids SQLITE_BUSY under concurrent tool calls.
		db.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Dialect.name, err)
	}
	s := New(db, cfg.Dialect, logger)
	if cfg.Dialect == SQLite {
		if s.readDSN, err = readOnlyDSN(cfg.DSN); err != nil {
			s.logger.Warn("raw queries disabled", "error", err)
		}
	}
	return s, nil
}

// New wraps an existing pool.
func New(db *sql.DB, dialect *Dialect, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, dialect: dialect, logger: logger.With("backend", dialect.name)}
}

// Close closes the pools.
func (s *Store) Close() error {
	s.readMu.Lock()
	defer s.readMu.Unlock()
	if s.readDB != nil {
		_ = s.readDB.Close()
		s.readDB = nil
	}
	return s.db.Close()
}

// Dialect implements query.Backend.
func (s *Store) Dialect() query.Dialect { return s.dialect }

// Query implements query.Backend.
func (s *Store) Query(ctx context.Context, st query.Statement) ([]models.Record, error) {
	rows, err := s.db.QueryContext(ctx, st.Text, st.Args...)
	if err != nil {
		return nil, s.dialect.wrapError(err)
	}
	defer rows.Close()
	return s.scan(rows)
}

// Exec implements query.Backend.
func (s *Store) Exec(ctx context.Context, st query.Statement) (int64, error) {
	res, err := s.db.ExecContext(ctx, st.Text, st.Args...)
	if err != nil {
		return 0, s.dialect.wrapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, s.dialect.wrapError(err)
	}
	s.logger.Debug("statement executed", "op", st.Op, "table", st.Table, "affected", n)
	return n, nil
}

// QueryReadOnly implements query.Backend. The database enforces the
// read-only restriction in addition to the caller's keyword check.
func (s *Store) QueryReadOnly(ctx context.Context, text string) ([]models.Record, error) {
	scope, err := s.dialect.readOnly(s)(ctx, text)
	if err != nil {
		return nil, s.dialect.wrapError(err)
	}
	defer scope.release()
	defer scope.rows.Close()
	return s.scan(scope.rows)
}

// DescribeTable implements catalog.Source.
func (s *Store) DescribeTable(ctx context.Context, table string) ([]models.Column, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.describe, table)
	if err != nil {
		return nil, s.dialect.wrapError(err)
	}
	defer rows.Close()

	var cols []models.Column
	for rows.Next() {
		var c models.Column
		if err := rows.Scan(&c.Name, &c.Type, &c.Nullable); err != nil {
			return nil, s.dialect.wrapError(err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, s.dialect.wrapError(err)
	}
	return cols, nil
}

// InitSchema creates the record table and the search log if missing.
func (s *Store) InitSchema(ctx context.Context, table string) error {
	for _, stmt := range s.dialect.schema(table) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", s.dialect.wrapError(err))
		}
	}
	return nil
}

func (s *Store) scan(rows *sql.Rows) ([]models.Record, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, s.dialect.wrapError(err)
	}

	var out []models.Record
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, s.dialect.wrapError(err)
		}
		rec := models.NewRecord(len(cols))
		for i, c := range cols {
			rec.Set(c, scalar(vals[i]))
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, s.dialect.wrapError(err)
	}
	return out, nil
}

func scalar(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
