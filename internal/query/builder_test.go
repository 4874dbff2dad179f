package query

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// dollarDialect renders postgres-style markers without a driver.
type dollarDialect struct{}

func (dollarDialect) Name() string { return "test" }
func (dollarDialect) QuoteIdent(n string) string { return `"` + n + `"` }
func (dollarDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }
func (dollarDialect) Equal(_, _, q, p string) string { return q + " = " + p }
func (dollarDialect) IsNull(q string) string { return q + " IS NULL" }
func (dollarDialect) InsertSuffix() string { return " RETURNING *" }
func (dollarDialect) MutationSuffix() string { return "" }

func TestBuildStatements(t *testing.T) {
	d := dollarDialect{}

	tests := []struct {
		name     string
		st       Statement
		wantText string
		wantArgs []any
	}{
		{
			name:     "insert sorts columns",
			st:       buildInsert(d, "passprotect", map[string]any{"username": "jdoe", "email": "j@x.com"}),
			wantText: `INSERT INTO "passprotect" ("email", "username") VALUES ($1, $2) RETURNING *`,
			wantArgs: []any{"j@x.com", "jdoe"},
		},
		{
			name:     "select without conditions",
			st:       buildSelect(d, "passprotect", nil, 100),
			wantText: `SELECT * FROM "passprotect" LIMIT $1`,
			wantArgs: []any{100},
		},
		{
			name:     "select with null condition",
			st:       buildSelect(d, "passprotect", map[string]any{"note": nil, "username": "jdoe"}, 5),
			wantText: `SELECT * FROM "passprotect" WHERE "note" IS NULL AND "username" = $1 LIMIT $2`,
			wantArgs: []any{"jdoe", 5},
		},
		{
			name:     "update binds data before conditions",
			st:       buildUpdate(d, "passprotect", map[string]any{"password": "enc2"}, map[string]any{"id": int64(1)}),
			wantText: `UPDATE "passprotect" SET "password" = $1 WHERE "id" = $2`,
			wantArgs: []any{"enc2", int64(1)},
		},
		{
			name:     "delete",
			st:       buildDelete(d, "passprotect", map[string]any{"id": int64(7)}),
			wantText: `DELETE FROM "passprotect" WHERE "id" = $1`,
			wantArgs: []any{int64(7)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantText, tt.st.Text)
			assert.Equal(t, tt.wantArgs, tt.st.Args)
		})
	}
}

func TestValuesNeverReachStatementText(t *testing.T) {
	evil := `x'; DROP TABLE passprotect; --`
	st := buildSelect(dollarDialect{}, "passprotect", map[string]any{"username": evil}, 1)
	assert.NotContains(t, st.Text, "DROP")
	assert.Contains(t, st.Args, evil)
}

func TestIsReadOnly(t *testing.T) {
	tests := []struct {
		stmt string
		want bool
	}{
		{"SELECT * FROM passprotect", true},
		{"select id from passprotect", true},
		{"   \n\tSeLeCt 1", true},
		{"SELECT*FROM passprotect", true},
		{"-- list everything\nSELECT * FROM passprotect", true},
		{"/* note */ SELECT 1", true},
		{"# comment\n// another\nselect 1", true},
		{"SELECT", true},
		{"", false},
		{"   ", false},
		{"DELETE FROM passprotect", false},
		{"UPDATE passprotect SET password = 'x'", false},
		{"SELECTED_VIEW", false},
		{"selector", false},
		{"WITH x AS (SELECT 1) SELECT * FROM x", false},
		{"-- SELECT\nDROP TABLE passprotect", false},
		{"/* SELECT */ DROP TABLE passprotect", false},
		{"/* unterminated SELECT", false},
		{"-- only a comment SELECT", false},
	}
	for _, tt := range tests {
		t.Run(tt.stmt, func(t *testing.T) {
			assert.Equal(t, tt.want, IsReadOnly(tt.stmt))
		})
	}
}

func TestSingleStatement(t *testing.T) {
	tests := []struct {
		stmt string
		want bool
	}{
		{"SELECT * FROM passprotect", true},
		{"SELECT * FROM passprotect;", true},
		{"SELECT 1;  \n-- done\n", true},
		{"SELECT 1; /* trailing */", true},
		{"SELECT * FROM passprotect WHERE note = 'a;b'", true},
		{`SELECT * FROM passprotect WHERE note = "x; y"`, true},
		{"SELECT * FROM passprotect WHERE note = 'it''s; fine'", true},
		{"SELECT 1 -- ; not a statement", true},
		{"SELECT 1; PRAGMA query_only = OFF; DELETE FROM passprotect", false},
		{"SELECT 1; DELETE FROM passprotect", false},
		{"SELECT 1;DELETE passprotect", false},
		{"SELECT 1; 'x'", false},
		{"SELECT 'unterminated; DELETE FROM passprotect", false},
		{`SELECT 'a\'' ; DELETE passprotect; -- '`, false},
		{"SELECT 1 # it's\n; DELETE passprotect; -- '", false},
		{"SELECT 1 // it's\n; DELETE passprotect; -- '", false},
	}
	for _, tt := range tests {
		t.Run(tt.stmt, func(t *testing.T) {
			assert.Equal(t, tt.want, SingleStatement(tt.stmt))
		})
	}
}

func TestNormalizeValue(t *testing.T) {
	v, err := normalizeValue(float64(1))
	assert.NoError(t, err)
	assert.Equal(t, int64(1), v)

	v, err = normalizeValue(1.5)
	assert.NoError(t, err)
	assert.Equal(t, 1.5, v)

	_, err = normalizeValue(map[string]any{"nested": true})
	assert.Error(t, err)

	_, err = normalizeValue([]any{1, 2})
	assert.Error(t, err)
}
