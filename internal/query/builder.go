package query

import (
	"sort"
	"strings"
)

type builder struct {
	d    Dialect
	sb   strings.Builder
	args []any
}

func newBuilder(d Dialect) *builder {
	return &builder{d: d}
}

func (b *builder) bind(v any) string {
	b.args = append(b.args, v)
	return b.d.Placeholder(len(b.args))
}

func (b *builder) where(table string, conds map[string]any) {
	if len(conds) == 0 {
		return
	}
	b.sb.WriteString(" WHERE ")
	for i, col := range sortedKeys(conds) {
		if i > 0 {
			b.sb.WriteString(" AND ")
		}
		quoted := b.d.QuoteIdent(col)
		if conds[col] == nil {
			b.sb.WriteString(b.d.IsNull(quoted))
			continue
		}
		b.sb.WriteString(b.d.Equal(table, col, quoted, b.bind(conds[col])))
	}
}

func (b *builder) statement(op Op, table string) Statement {
	return Statement{Op: op, Table: table, Text: b.sb.String(), Args: b.args}
}

func buildInsert(d Dialect, table string, rec map[string]any) Statement {
	b := newBuilder(d)
	cols := sortedKeys(rec)
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.QuoteIdent(c)
		marks[i] = b.bind(rec[c])
	}
	b.sb.WriteString("INSERT INTO ")
	b.sb.WriteString(d.QuoteIdent(table))
	b.sb.WriteString(" (")
	b.sb.WriteString(strings.Join(quoted, ", "))
	b.sb.WriteString(") VALUES (")
	b.sb.WriteString(strings.Join(marks, ", "))
	b.sb.WriteString(")")
	b.sb.WriteString(d.InsertSuffix())
	return b.statement(OpInsert, table)
}

func buildSelect(d Dialect, table string, conds map[string]any, limit int) Statement {
	b := newBuilder(d)
	b.sb.WriteString("SELECT * FROM ")
	b.sb.WriteString(d.QuoteIdent(table))
	b.where(table, conds)
	b.sb.WriteString(" LIMIT ")
	b.sb.WriteString(b.bind(limit))
	return b.statement(OpSelect, table)
}

func buildUpdate(d Dialect, table string, data, conds map[string]any) Statement {
	b := newBuilder(d)
	b.sb.WriteString("UPDATE ")
	b.sb.WriteString(d.QuoteIdent(table))
	b.sb.WriteString(" SET ")
	for i, col := range sortedKeys(data) {
		if i > 0 {
			b.sb.WriteString(", ")
		}
		b.sb.WriteString(d.QuoteIdent(col))
		b.sb.WriteString(" = ")
		b.sb.WriteString(b.bind(data[col]))
	}
	b.where(table, conds)
	b.sb.WriteString(d.MutationSuffix())
	return b.statement(OpUpdate, table)
}

func buildDelete(d Dialect, table string, conds map[string]any) Statement {
	b := newBuilder(d)
	b.sb.WriteString("DELETE FROM ")
	b.sb.WriteString(d.QuoteIdent(table))
	b.where(table, conds)
	b.sb.WriteString(d.MutationSuffix())
	return b.statement(OpDelete, table)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
