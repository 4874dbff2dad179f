package db

import (
	"fmt"
	"strings"

	"github.com/raphaelgruber/passprotect-go/internal/query"
)

// Dialect renders SurrealQL. Parameters are named $p1..$pN and bound from
// Statement.Args in order.
type Dialect struct{}

var _ query.Dialect = Dialect{}

func (Dialect) Name() string { return "surrealdb" }

func (Dialect) QuoteIdent(name string) string { return quoteIdent(name) }

func (Dialect) Placeholder(n int) string { return "$" + paramName(n) }

// Equal compares record ids through type::record so callers can pass the
// bare id returned by reads.
func (Dialect) Equal(table, column, quoted, placeholder string) string {
	if column == query.IDColumn {
		return fmt.Sprintf("id = type::record(%q, %s)", table, placeholder)
	}
	return quoted + " = " + placeholder
}

func (Dialect) IsNull(quoted string) string {
	return "(" + quoted + " = NONE OR " + quoted + " = NULL)"
}

func (Dialect) InsertSuffix() string { return "" }

// MutationSuffix makes UPDATE and DELETE return the matched records so the
// affected count can be taken from the result.
func (Dialect) MutationSuffix() string { return " RETURN BEFORE" }

func paramName(n int) string { return fmt.Sprintf("p%d", n) }

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "\\`") + "`"
}

func bindVars(args []any) map[string]any {
	if len(args) == 0 {
		return nil
	}
	vars := make(map[string]any, len(args))
	for i, a := range args {
		vars[paramName(i+1)] = a
	}
	return vars
}
