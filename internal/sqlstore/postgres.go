package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/raphaelgruber/passprotect-go/internal/errs"
)

const pgReadOnlyTransaction = "25006"

// Postgres is the PostgreSQL dialect over the pgx stdlib driver.
var Postgres = &Dialect{
	name:   "postgres",
	driver: "pgx",
	mark:   func(n int) string { return "$" + strconv.Itoa(n) },
	describe: `SELECT column_name, data_type, is_nullable = 'YES'
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position`,
	schema:     postgresSchema,
	readOnly:   func(s *Store) readOnlyRunner { return s.readOnlyTx },
	encodeTime: timeAsIs,
	decodeTime: decodeNativeTime,
	wrapError:  wrapPgError,
}

func postgresSchema(table string) []string {
	q := quoteIdent(table)
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			company_name TEXT,
			username TEXT,
			password TEXT,
			email TEXT,
			note TEXT,
			created_by_user_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, q),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (created_by_user_id, company_name)`,
			quoteIdent(table+"_owner_company_idx"), q),
		`CREATE TABLE IF NOT EXISTS search_log (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			subject TEXT NOT NULL DEFAULT '',
			searched_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS search_log_user_idx ON search_log (user_id, searched_at DESC)`,
	}
}

// readOnlyTx runs text inside a READ ONLY transaction so the server
// rejects any write smuggled past the keyword check.
func (s *Store) readOnlyTx(ctx context.Context, text string) (*rowsScope, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	rows, err := tx.QueryContext(ctx, text)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	return &rowsScope{rows: rows, release: func() { _ = tx.Rollback() }}, nil
}

func wrapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == pgReadOnlyTransaction {
			return fmt.Errorf("%w: statement attempted a write: %s", errs.ErrPolicy, pgErr.Message)
		}
		return fmt.Errorf("%w: postgres %s: %s", errs.ErrBackend, pgErr.Code, pgErr.Message)
	}
	return fmt.Errorf("%w: %w", errs.ErrBackend, err)
}
