package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/raphaelgruber/passprotect-go/internal/errs"
)

func TestDialect(t *testing.T) {
	d := Dialect{}
	assert.Equal(t, "$p2", d.Placeholder(2))
	assert.Equal(t, "`passprotect`", d.QuoteIdent("passprotect"))
	assert.Equal(t, `id = type::record("passprotect", $p1)`, d.Equal("passprotect", "id", "`id`", "$p1"))
	assert.Equal(t, "`email` = $p3", d.Equal("passprotect", "email", "`email`", "$p3"))
	assert.Equal(t, " RETURN BEFORE", d.MutationSuffix())
}

func TestBindVars(t *testing.T) {
	assert.Nil(t, bindVars(nil))
	assert.Equal(t, map[string]any{"p1": "jdoe", "p2": 10}, bindVars([]any{"jdoe", 10}))
}

func TestToRecord(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := toRecord(map[string]any{
		"username":   "jdoe",
		"id":         surrealmodels.RecordID{Table: "passprotect", ID: "abc123"},
		"created_at": ts,
		"count":      uint64(3),
	})

	assert.Equal(t, []string{"id", "count", "created_at", "username"}, rec.Columns())
	id, _ := rec.Get("id")
	assert.Equal(t, "abc123", id)
	n, _ := rec.Get("count")
	assert.Equal(t, int64(3), n)
}

func TestSchemaSQLUsesTable(t *testing.T) {
	sql := SchemaSQL("vault")
	assert.Contains(t, sql, "DEFINE TABLE IF NOT EXISTS `vault` SCHEMAFULL")
	assert.Contains(t, sql, "DEFINE TABLE IF NOT EXISTS search_log SCHEMAFULL")
}

func TestQueryReadOnlyRejectsBatches(t *testing.T) {
	c := &Client{}
	for _, text := range []string{
		"SELECT * FROM passprotect; DELETE passprotect",
		"SELECT 1; REMOVE TABLE passprotect",
		"DELETE passprotect",
	} {
		_, err := c.QueryReadOnly(context.Background(), text)
		assert.True(t, errors.Is(err, errs.ErrPolicy), "%s: got %v", text, err)
	}
}
