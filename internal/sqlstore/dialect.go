package sqlstore

import (
	"fmt"
	"strings"
	"time"
)

// Dialect describes one database/sql driver. It implements query.Dialect.
type Dialect struct {
	name       string
	driver     string
	mark       func(n int) string
	describe   string
	schema     func(table string) []string
	readOnly   func(s *Store) readOnlyRunner
	encodeTime func(time.Time) any
	decodeTime func(any) (time.Time, error)
	wrapError  func(error) error
}

func (d *Dialect) Name() string { return d.name }

func (d *Dialect) QuoteIdent(name string) string { return quoteIdent(name) }

func (d *Dialect) Placeholder(n int) string { return d.mark(n) }

func (d *Dialect) Equal(_, _, quoted, placeholder string) string {
	return quoted + " = " + placeholder
}

func (d *Dialect) IsNull(quoted string) string { return quoted + " IS NULL" }

func (d *Dialect) InsertSuffix() string { return " RETURNING *" }

func (d *Dialect) MutationSuffix() string { return "" }

// ByName returns the dialect registered under name.
func ByName(name string) (*Dialect, error) {
	switch name {
	case Postgres.name:
		return Postgres, nil
	case SQLite.name:
		return SQLite, nil
	default:
		return nil, fmt.Errorf("unknown sql dialect %q", name)
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func timeAsIs(t time.Time) any { return t.UTC() }

func decodeNativeTime(v any) (time.Time, error) {
	t, ok := v.(time.Time)
	if !ok {
		return time.Time{}, fmt.Errorf("unexpected timestamp type %T", v)
	}
	return t.UTC(), nil
}
