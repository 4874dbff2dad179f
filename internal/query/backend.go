// Package query is the safety layer between tool arguments and the database.
// It validates identifiers against the schema catalog, binds every value as
// a parameter and refuses mutations without conditions.
package query

import (
	"context"

	"github.com/raphaelgruber/passprotect-go/internal/models"
)

// Op is the kind of statement being executed.
type Op int

const (
	OpSelect Op = iota
	OpInsert
	OpUpdate
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpSelect:
		return "select"
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Statement is parameterized statement text with its bound arguments.
// Args[i] binds to Dialect.Placeholder(i+1).
type Statement struct {
	Op    Op
	Table string
	Text  string
	Args  []any
}

// Dialect renders the backend-specific parts of a statement.
type Dialect interface {
	Name() string
	// QuoteIdent quotes a catalog-validated identifier.
	QuoteIdent(name string) string
	// Placeholder returns the n-th (1-based) parameter marker.
	Placeholder(n int) string
	// Equal renders an equality predicate on a quoted column of table.
	Equal(table, column, quoted, placeholder string) string
	// IsNull renders a null test for a quoted column.
	IsNull(quoted string) string
	// InsertSuffix is appended to INSERT so the new row is returned.
	InsertSuffix() string
	// MutationSuffix is appended to UPDATE and DELETE.
	MutationSuffix() string
}

// Backend executes statements. Implementations acquire a connection per
// call and release it on every exit path.
type Backend interface {
	Dialect() Dialect
	// Query runs a statement that returns rows.
	Query(ctx context.Context, st Statement) ([]models.Record, error)
	// Exec runs an UPDATE or DELETE and returns the affected row count.
	Exec(ctx context.Context, st Statement) (int64, error)
	// QueryReadOnly runs self-contained statement text without parameters.
	QueryReadOnly(ctx context.Context, text string) ([]models.Record, error)
}
