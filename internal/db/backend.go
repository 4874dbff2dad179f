package db

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/surrealdb/surrealdb.go"

	"github.com/raphaelgruber/passprotect-go/internal/errs"
	"github.com/raphaelgruber/passprotect-go/internal/models"
	"github.com/raphaelgruber/passprotect-go/internal/query"
)

var _ query.Backend = (*Client)(nil)

// Dialect implements query.Backend.
func (c *Client) Dialect() query.Dialect { return Dialect{} }

// Query implements query.Backend.
func (c *Client) Query(ctx context.Context, st query.Statement) ([]models.Record, error) {
	return c.records(ctx, st.Text, bindVars(st.Args))
}

// Exec implements query.Backend. Mutations carry RETURN BEFORE, so the
// number of returned records is the affected count.
func (c *Client) Exec(ctx context.Context, st query.Statement) (int64, error) {
	results, err := surrealdb.Query[[]any](ctx, c.db, st.Text, bindVars(st.Args))
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", st.Op, st.Table, wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	return int64(len((*results)[0].Result)), nil
}

// QueryReadOnly implements query.Backend. SurrealDB has no read-only
// session mode, so the text must be a single SELECT statement.
func (c *Client) QueryReadOnly(ctx context.Context, text string) ([]models.Record, error) {
	if !query.IsReadOnly(text) || !query.SingleStatement(text) {
		return nil, fmt.Errorf("%w: read-only queries must be a single SELECT statement", errs.ErrPolicy)
	}
	return c.records(ctx, text, nil)
}

func (c *Client) records(ctx context.Context, text string, vars map[string]any) ([]models.Record, error) {
	results, err := surrealdb.Query[[]map[string]any](ctx, c.db, text, vars)
	if err != nil {
		return nil, wrapQueryError(err)
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	objs := (*results)[0].Result
	out := make([]models.Record, 0, len(objs))
	for _, obj := range objs {
		out = append(out, toRecord(obj))
	}
	return out, nil
}

var fieldType = regexp.MustCompile(`\bTYPE\s+(\S+)`)

type tableInfo struct {
	Fields map[string]string `json:"fields"`
}

// DescribeTable implements catalog.Source from INFO FOR TABLE. Nested
// field paths are skipped; the implicit id field is listed first.
func (c *Client) DescribeTable(ctx context.Context, table string) ([]models.Column, error) {
	results, err := surrealdb.Query[tableInfo](ctx, c.db, "INFO FOR TABLE "+quoteIdent(table), nil)
	if err != nil {
		return nil, wrapQueryError(err)
	}
	if results == nil || len(*results) == 0 {
		return nil, fmt.Errorf("%w: empty INFO result for %s", errs.ErrBackend, table)
	}
	fields := (*results)[0].Result.Fields
	if len(fields) == 0 {
		return nil, nil
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		if strings.ContainsAny(name, ".[") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	cols := []models.Column{{Name: query.IDColumn, Type: "record"}}
	for _, name := range names {
		typ := "any"
		if m := fieldType.FindStringSubmatch(fields[name]); m != nil {
			typ = strings.TrimSuffix(m[1], ";")
		}
		cols = append(cols, models.Column{
			Name:     name,
			Type:     typ,
			Nullable: strings.HasPrefix(typ, "option<"),
		})
	}
	return cols, nil
}
