package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"

	"github.com/raphaelgruber/passprotect-go/internal/errs"
)

// SQLITE_READONLY primary result code.
const sqliteReadOnly = 8

// SQLite is the embedded dialect over the pure-Go modernc driver.
// Timestamps are stored as unix microseconds.
var SQLite = &Dialect{
	name:   "sqlite",
	driver: "sqlite",
	mark:   func(n int) string { return fmt.Sprintf("?%d", n) },
	describe: `SELECT name, type, "notnull" = 0 AND pk = 0
		FROM pragma_table_info(?1)
		ORDER BY cid`,
	schema:     sqliteSchema,
	readOnly:   func(s *Store) readOnlyRunner { return s.readOnlyPool },
	encodeTime: func(t time.Time) any { return t.UTC().UnixMicro() },
	decodeTime: decodeUnixMicro,
	wrapError:  wrapSQLiteError,
}

func sqliteSchema(table string) []string {
	q := quoteIdent(table)
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			company_name TEXT,
			username TEXT,
			password TEXT,
			email TEXT,
			note TEXT,
			created_by_user_id TEXT,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`, q),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (created_by_user_id, company_name)`,
			quoteIdent(table+"_owner_company_idx"), q),
		`CREATE TABLE IF NOT EXISTS search_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			subject TEXT NOT NULL DEFAULT '',
			searched_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS search_log_user_idx ON search_log (user_id, searched_at DESC)`,
	}
}

// readOnlyPool runs text on a pool opened with mode=ro. The open flag
// holds for every statement in text; a PRAGMA inside it cannot lift it.
func (s *Store) readOnlyPool(ctx context.Context, text string) (*rowsScope, error) {
	db, err := s.readOnlyDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, text)
	if err != nil {
		return nil, err
	}
	return &rowsScope{rows: rows, release: func() {}}, nil
}

// readOnlyDB opens the read-only pool on first use, after InitSchema has
// created the database file.
func (s *Store) readOnlyDB() (*sql.DB, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()
	if s.readDB != nil {
		return s.readDB, nil
	}
	if s.readDSN == "" {
		return nil, fmt.Errorf("%w: raw queries need a file-backed sqlite database", errs.ErrPolicy)
	}
	db, err := sql.Open(s.dialect.driver, s.readDSN)
	if err != nil {
		return nil, fmt.Errorf("open read-only pool: %w", err)
	}
	db.SetMaxOpenConns(2)
	s.readDB = db
	return db, nil
}

// readOnlyDSN turns a database path or file: URI into a read-only URI.
func readOnlyDSN(dsn string) (string, error) {
	if dsn == "" || strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		return "", fmt.Errorf("in-memory database %q has no read-only view", dsn)
	}
	if strings.HasPrefix(dsn, "file:") {
		if strings.Contains(dsn, "mode=") {
			return "", fmt.Errorf("dsn %q already sets an open mode", dsn)
		}
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		return dsn + sep + "mode=ro", nil
	}
	path := strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23").Replace(dsn)
	return "file:" + path + "?mode=ro", nil
}

func decodeUnixMicro(v any) (time.Time, error) {
	switch x := v.(type) {
	case int64:
		return time.UnixMicro(x).UTC(), nil
	case time.Time:
		return x.UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unexpected timestamp type %T", v)
	}
}

func wrapSQLiteError(err error) error {
	if errors.Is(err, errs.ErrPolicy) {
		return err
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		if se.Code()&0xff == sqliteReadOnly {
			return fmt.Errorf("%w: statement attempted a write: %s", errs.ErrPolicy, se.Error())
		}
		return fmt.Errorf("%w: sqlite %d: %s", errs.ErrBackend, se.Code(), se.Error())
	}
	return fmt.Errorf("%w: %w", errs.ErrBackend, err)
}
