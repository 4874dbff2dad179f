//go:build integration

package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/raphaelgruber/passprotect-go/internal/errs"
	"github.com/raphaelgruber/passprotect-go/internal/models"
)

func newPostgresStore(t *testing.T) *Store {
	t.Helper()
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_PASSWORD": "postgres",
				"POSTGRES_DB":       "passprotect",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	if host == "" || host == "null" {
		host = "localhost"
	}
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	s, err := Open(ctx, Config{
		Dialect:      Postgres,
		DSN:          fmt.Sprintf("postgres://postgres:postgres@%s:%s/passprotect?sslmode=disable", host, port.Port()),
		MaxOpenConns: 4,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.InitSchema(ctx, "passprotect"))
	return s
}

func TestPostgresStore(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()

	t.Run("describe", func(t *testing.T) {
		cols, err := s.DescribeTable(ctx, "passprotect")
		require.NoError(t, err)
		require.NotEmpty(t, cols)
		assert.Equal(t, "id", cols[0].Name)
		assert.Equal(t, "bigint", cols[0].Type)
	})

	t.Run("read only transaction", func(t *testing.T) {
		_, err := s.QueryReadOnly(ctx, `SELECT 1; DELETE FROM passprotect`)
		require.Error(t, err)

		_, err = s.QueryReadOnly(ctx, `SELECT * FROM passprotect FOR UPDATE`)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errs.ErrPolicy), "got %v", err)
	})

	t.Run("recent searches", func(t *testing.T) {
		t1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		t2 := t1.Add(time.Minute)
		require.NoError(t, s.AppendSearch(ctx, models.SearchLogEntry{UserID: "u", Subject: models.CompanySubject("Gmail"), SearchedAt: t1}))
		require.NoError(t, s.AppendSearch(ctx, models.SearchLogEntry{UserID: "u", Subject: models.CompanySubject("Gmail"), SearchedAt: t2}))
		require.NoError(t, s.AppendSearch(ctx, models.SearchLogEntry{UserID: "u", Subject: models.ListAllSubject(), SearchedAt: t2}))

		got, err := s.RecentSearches(ctx, "u", 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Gmail", got[0].Subject)
		assert.True(t, t2.Equal(got[0].LastSearched))
	})
}
