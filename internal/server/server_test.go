package server_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/passprotect-go/internal/audit"
	"github.com/raphaelgruber/passprotect-go/internal/catalog"
	"github.com/raphaelgruber/passprotect-go/internal/models"
	"github.com/raphaelgruber/passprotect-go/internal/policy"
	"github.com/raphaelgruber/passprotect-go/internal/query"
	"github.com/raphaelgruber/passprotect-go/internal/server"
	"github.com/raphaelgruber/passprotect-go/internal/sqlstore"
	"github.com/raphaelgruber/passprotect-go/internal/tools"
)

// testLogger creates a logger that writes to stderr for test visibility.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	ctx := context.Background()
	store, err := sqlstore.Open(ctx, sqlstore.Config{
		Dialect: sqlstore.SQLite,
		DSN:     filepath.Join(t.TempDir(), "mcp.db"),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.InitSchema(ctx, "passprotect"))

	reg := tools.NewRegistry(policy.Default(), nil, nil)
	require.NoError(t, tools.RegisterAll(reg, &tools.Dependencies{
		Layer:       query.New(store, catalog.New(store, 0, nil), query.Config{Table: "passprotect"}),
		Audit:       audit.New(store, nil, nil),
		OwnerColumn: "created_by_user_id",
	}))
	return reg
}

// connect starts srv on in-memory transports and returns a client session.
func connect(t *testing.T, srv *server.Server) *mcp.ClientSession {
	t.Helper()
	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	go func() {
		_ = srv.MCPServer().Run(ctx, serverTransport)
	}()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err, "client should connect successfully")
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestServerInfo(t *testing.T) {
	srv := server.New("0.1.0-test", testLogger())
	srv.Setup()
	session := connect(t, srv)

	initResult := session.InitializeResult()
	require.NotNil(t, initResult)
	assert.Equal(t, server.Name, initResult.ServerInfo.Name)
	assert.Equal(t, "0.1.0-test", initResult.ServerInfo.Version)
}

func TestToolsAreRoleFiltered(t *testing.T) {
	reg := newRegistry(t)
	srv := server.New("test", testLogger())
	srv.Setup()
	n := srv.RegisterTools(reg, models.Identity{UserID: "u-1", Role: "readonly"})
	assert.Equal(t, 4, n)

	session := connect(t, srv)
	listed, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range listed.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		tools.ReadRecords, tools.GetTableSchema, tools.ReadPassword, tools.RecentSearches,
	}, names)
}

func TestCallToolRunsAsConfiguredIdentity(t *testing.T) {
	reg := newRegistry(t)
	srv := server.New("test", testLogger())
	srv.Setup()
	srv.RegisterTools(reg, models.Identity{UserID: "u-1", Role: "user"})
	session := connect(t, srv)
	ctx := context.Background()

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      tools.CreateRecord,
		Arguments: map[string]any{"data": map[string]any{"company_name": "Acme", "password": "enc"}},
	})
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))

	var created map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &created))
	assert.Equal(t, "u-1", created["record"]["created_by_user_id"])

	res, err = session.CallTool(ctx, &mcp.CallToolParams{
		Name:      tools.ReadPassword,
		Arguments: map[string]any{"company": "Acme"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))
	assert.Contains(t, text(t, res), `"password": "enc"`)
}

func TestCallToolErrorsAreResults(t *testing.T) {
	reg := newRegistry(t)
	srv := server.New("test", testLogger())
	srv.Setup()
	srv.RegisterTools(reg, models.Identity{UserID: "u-1", Role: "admin"})
	session := connect(t, srv)
	ctx := context.Background()

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      tools.ExecuteCustomQuery,
		Arguments: map[string]any{"query": "DROP TABLE passprotect"},
	})
	require.NoError(t, err, "tool failures are results, not protocol errors")
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "only SELECT")

	res, err = session.CallTool(ctx, &mcp.CallToolParams{
		Name:      tools.DeleteRecord,
		Arguments: map[string]any{"conditions": map[string]any{}},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "conditions must not be empty")
}

func TestFromResult(t *testing.T) {
	ok := server.FromResult(tools.Result{Payload: map[string]any{"affected_rows": 1}})
	assert.False(t, ok.IsError)

	failed := server.ErrorResult("boom", "")
	assert.True(t, failed.IsError)
	assert.Equal(t, "boom", failed.Content[0].(*mcp.TextContent).Text)
}
