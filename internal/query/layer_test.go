package query_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/passprotect-go/internal/catalog"
	"github.com/raphaelgruber/passprotect-go/internal/errs"
	"github.com/raphaelgruber/passprotect-go/internal/query"
	"github.com/raphaelgruber/passprotect-go/internal/sqlstore"
)

func newLayer(t *testing.T) (*query.Layer, *sqlstore.Store) {
	t.Helper()
	ctx := context.Background()
	store, err := sqlstore.Open(ctx, sqlstore.Config{
		Dialect: sqlstore.SQLite,
		DSN:     filepath.Join(t.TempDir(), "layer.db"),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.InitSchema(ctx, "passprotect"))

	cat := catalog.New(store, 0, nil)
	return query.New(store, cat, query.Config{Table: "passprotect", DefaultLimit: 100, MaxLimit: 1000}), store
}

func rowCount(t *testing.T, l *query.Layer) int {
	t.Helper()
	rows, err := l.Read(context.Background(), nil, 1000)
	require.NoError(t, err)
	return len(rows)
}

func seed(t *testing.T, l *query.Layer, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := l.Create(context.Background(), map[string]any{"username": "user", "company_name": "Acme"})
		require.NoError(t, err)
	}
}

func TestCreateReadRoundTrip(t *testing.T) {
	l, _ := newLayer(t)
	ctx := context.Background()

	created, err := l.Create(ctx, map[string]any{
		"username": "jdoe",
		"password": "enc1",
		"email":    "jdoe@x.com",
	})
	require.NoError(t, err)
	id, ok := created.Get("id")
	require.True(t, ok, "created record carries its generated id")
	assert.NotNil(t, id)

	rows, err := l.Read(ctx, map[string]any{"username": "jdoe"}, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	for col, want := range map[string]any{"username": "jdoe", "password": "enc1", "email": "jdoe@x.com"} {
		got, _ := rows[0].Get(col)
		assert.Equal(t, want, got, col)
	}
	assert.True(t, created.Equal(rows[0]))
}

func TestCreateRejects(t *testing.T) {
	l, _ := newLayer(t)
	ctx := context.Background()

	_, err := l.Create(ctx, map[string]any{})
	assert.True(t, errors.Is(err, errs.ErrValidation))

	_, err = l.Create(ctx, map[string]any{"username": "x", "is_admin": true})
	assert.True(t, errors.Is(err, errs.ErrPolicy))

	_, err = l.Create(ctx, map[string]any{"id": 5, "username": "x"})
	assert.True(t, errors.Is(err, errs.ErrValidation))

	_, err = l.Create(ctx, map[string]any{"username": map[string]any{"$ne": ""}})
	assert.True(t, errors.Is(err, errs.ErrValidation))

	assert.Equal(t, 0, rowCount(t, l))
}

func TestEmptyConditionsNeverMutate(t *testing.T) {
	l, _ := newLayer(t)
	ctx := context.Background()
	seed(t, l, 3)

	for _, conds := range []map[string]any{nil, {}} {
		n, err := l.Update(ctx, map[string]any{"password": "pwned"}, conds)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errs.ErrValidation))
		assert.Zero(t, n)

		n, err = l.Delete(ctx, conds)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errs.ErrValidation))
		assert.Zero(t, n)
	}

	rows, err := l.Read(ctx, map[string]any{"password": "pwned"}, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, 3, rowCount(t, l))
}

func TestUpdate(t *testing.T) {
	l, _ := newLayer(t)
	ctx := context.Background()
	seed(t, l, 2)

	n, err := l.Update(ctx, map[string]any{"note": "rotated"}, map[string]any{"company_name": "Acme"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = l.Update(ctx, map[string]any{"note": "rotated"}, map[string]any{"company_name": "Nobody"})
	require.NoError(t, err, "zero matches is a normal outcome")
	assert.Zero(t, n)

	_, err = l.Update(ctx, map[string]any{}, map[string]any{"company_name": "Acme"})
	assert.True(t, errors.Is(err, errs.ErrValidation))

	_, err = l.Update(ctx, map[string]any{"id": 9}, map[string]any{"company_name": "Acme"})
	assert.True(t, errors.Is(err, errs.ErrValidation))

	_, err = l.Update(ctx, map[string]any{"note": "x"}, map[string]any{"1 = 1 OR company_name": "Acme"})
	assert.True(t, errors.Is(err, errs.ErrPolicy))
}

func TestDeleteIsIdempotent(t *testing.T) {
	l, _ := newLayer(t)
	ctx := context.Background()

	created, err := l.Create(ctx, map[string]any{"username": "jdoe"})
	require.NoError(t, err)
	id, _ := created.Get("id")

	// JSON arguments arrive as float64.
	conds := map[string]any{"id": float64(id.(int64))}

	n, err := l.Delete(ctx, conds)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = l.Delete(ctx, conds)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestReadLimits(t *testing.T) {
	ctx := context.Background()
	store, err := sqlstore.Open(ctx, sqlstore.Config{
		Dialect: sqlstore.SQLite,
		DSN:     filepath.Join(t.TempDir(), "limits.db"),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.InitSchema(ctx, "passprotect"))

	l := query.New(store, catalog.New(store, 0, nil), query.Config{Table: "passprotect", DefaultLimit: 3, MaxLimit: 4})
	seed(t, l, 6)

	rows, err := l.Read(ctx, nil, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 3, "omitted limit uses the default cap")

	rows, err = l.Read(ctx, nil, 50)
	require.NoError(t, err)
	assert.Len(t, rows, 4, "oversized limit is clamped")

	rows, err = l.Read(ctx, nil, 2)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	_, err = l.Read(ctx, map[string]any{"secret": "x"}, 1)
	assert.True(t, errors.Is(err, errs.ErrPolicy))
}

func TestRawReadOnlyQuery(t *testing.T) {
	l, _ := newLayer(t)
	ctx := context.Background()
	seed(t, l, 2)

	rows, err := l.RawReadOnlyQuery(ctx, "  -- count\n select count(*) AS n FROM passprotect")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	n, _ := rows[0].Get("n")
	assert.Equal(t, int64(2), n)

	for _, stmt := range []string{
		"DELETE FROM passprotect",
		"  drop table passprotect",
		"UPDATE passprotect SET password = 'x'",
		"/* SELECT */ DELETE FROM passprotect",
	} {
		_, err := l.RawReadOnlyQuery(ctx, stmt)
		require.Error(t, err, stmt)
		assert.True(t, errors.Is(err, errs.ErrPolicy), stmt)
	}
	assert.Equal(t, 2, rowCount(t, l), "rejected statements never executed")
}

func TestRawReadOnlyQueryIgnoresTrailingWrites(t *testing.T) {
	l, _ := newLayer(t)
	ctx := context.Background()
	seed(t, l, 3)

	for _, stmt := range []string{
		"SELECT 1; PRAGMA query_only = OFF; DELETE FROM passprotect",
		"select 1; UPDATE passprotect SET password = 'x'",
	} {
		_, err := l.RawReadOnlyQuery(ctx, stmt)
		require.Error(t, err, stmt)
	}
	assert.Equal(t, 3, rowCount(t, l))

	rows, err := l.Read(ctx, map[string]any{"password": "x"}, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSchema(t *testing.T) {
	l, _ := newLayer(t)

	cols, err := l.Schema(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, cols)
	assert.Equal(t, "id", cols[0].Name)
	assert.Equal(t, "passprotect", l.Table())
}

func TestUnknownTableFailsClosed(t *testing.T) {
	ctx := context.Background()
	_, store := newLayer(t)
	l := query.New(store, catalog.New(store, 0, nil), query.Config{Table: "missing"})

	_, err := l.Read(ctx, map[string]any{"username": "x"}, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrBackend))
}
