package tools_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/passprotect-go/internal/audit"
	"github.com/raphaelgruber/passprotect-go/internal/catalog"
	"github.com/raphaelgruber/passprotect-go/internal/errs"
	"github.com/raphaelgruber/passprotect-go/internal/models"
	"github.com/raphaelgruber/passprotect-go/internal/policy"
	"github.com/raphaelgruber/passprotect-go/internal/query"
	"github.com/raphaelgruber/passprotect-go/internal/sqlstore"
	"github.com/raphaelgruber/passprotect-go/internal/tools"
)

type harness struct {
	reg   *tools.Registry
	store *sqlstore.Store
	clock time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	store, err := sqlstore.Open(ctx, sqlstore.Config{
		Dialect: sqlstore.SQLite,
		DSN:     filepath.Join(t.TempDir(), "tools.db"),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.InitSchema(ctx, "passprotect"))

	h := &harness{store: store, clock: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	layer := query.New(store, catalog.New(store, 0, nil), query.Config{Table: "passprotect"})
	h.reg = tools.NewRegistry(policy.Default(), nil, nil)
	require.NoError(t, tools.RegisterAll(h.reg, &tools.Dependencies{
		Layer:       layer,
		Audit:       audit.New(store, nil, nil),
		OwnerColumn: "created_by_user_id",
		Now: func() time.Time {
			h.clock = h.clock.Add(time.Minute)
			return h.clock
		},
	}))
	return h
}

func (h *harness) call(t *testing.T, id models.Identity, tool string, args tools.Args) tools.Result {
	t.Helper()
	return h.reg.Invoke(context.Background(), tools.Call{ID: "call-" + tool, Tool: tool, Args: args, Identity: id})
}

// decode renders the payload the way MCP and the engine see it.
func decode(t *testing.T, res tools.Result) map[string]any {
	t.Helper()
	require.False(t, res.IsError, res.Message)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.Text()), &out))
	return out
}

func (h *harness) count(t *testing.T) int {
	t.Helper()
	res := h.call(t, admin, tools.ExecuteCustomQuery, tools.Args{"query": "SELECT count(*) AS n FROM passprotect"})
	rows := decode(t, res)["records"].([]any)
	return int(rows[0].(map[string]any)["n"].(float64))
}

func TestAllToolsRegistered(t *testing.T) {
	h := newHarness(t)
	var names []string
	for _, d := range h.reg.Definitions() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{
		tools.CreateRecord, tools.ReadRecords, tools.UpdateRecord, tools.DeleteRecord,
		tools.GetTableSchema, tools.ExecuteCustomQuery, tools.ReadPassword, tools.RecentSearches,
	}, names)
}

func TestCreateStampsOwner(t *testing.T) {
	h := newHarness(t)

	out := decode(t, h.call(t, admin, tools.CreateRecord, tools.Args{
		"data": map[string]any{"company_name": "Acme", "username": "jdoe", "password": "enc"},
	}))
	rec := out["record"].(map[string]any)
	assert.Equal(t, admin.UserID, rec["created_by_user_id"])
	assert.NotNil(t, rec["id"])

	res := h.call(t, admin, tools.CreateRecord, tools.Args{
		"data": map[string]any{"company_name": "Acme", "created_by_user_id": "someone-else"},
	})
	assert.Equal(t, errs.KindPolicy, res.Kind)
	assert.Equal(t, 1, h.count(t))
}

func TestReadIsOwnerScoped(t *testing.T) {
	h := newHarness(t)
	other := models.Identity{UserID: "u-2", Role: "admin"}

	decode(t, h.call(t, admin, tools.CreateRecord, tools.Args{"data": map[string]any{"company_name": "Acme"}}))
	decode(t, h.call(t, other, tools.CreateRecord, tools.Args{"data": map[string]any{"company_name": "Acme"}}))

	out := decode(t, h.call(t, admin, tools.ReadRecords, tools.Args{"conditions": map[string]any{"company_name": "Acme"}}))
	assert.Equal(t, float64(1), out["count"])

	res := h.call(t, admin, tools.ReadRecords, tools.Args{"conditions": map[string]any{"created_by_user_id": other.UserID}})
	assert.Equal(t, errs.KindPolicy, res.Kind)
}

func TestMutationsRequireConditions(t *testing.T) {
	h := newHarness(t)
	for range 3 {
		decode(t, h.call(t, admin, tools.CreateRecord, tools.Args{"data": map[string]any{"company_name": "Acme"}}))
	}

	res := h.call(t, admin, tools.UpdateRecord, tools.Args{"data": map[string]any{"password": "x"}, "conditions": map[string]any{}})
	assert.Equal(t, errs.KindValidation, res.Kind)

	res = h.call(t, admin, tools.UpdateRecord, tools.Args{"data": map[string]any{"password": "x"}})
	assert.Equal(t, errs.KindValidation, res.Kind, "conditions are required by the schema")

	res = h.call(t, admin, tools.DeleteRecord, tools.Args{"conditions": map[string]any{}})
	assert.Equal(t, errs.KindValidation, res.Kind)

	assert.Equal(t, 3, h.count(t))
	out := decode(t, h.call(t, admin, tools.ReadRecords, tools.Args{"conditions": map[string]any{"password": "x"}}))
	assert.Equal(t, float64(0), out["count"])
}

func TestUpdateAndDeleteByID(t *testing.T) {
	h := newHarness(t)
	rec := decode(t, h.call(t, admin, tools.CreateRecord, tools.Args{"data": map[string]any{"company_name": "Acme"}}))["record"].(map[string]any)
	id := rec["id"]

	out := decode(t, h.call(t, admin, tools.UpdateRecord, tools.Args{
		"data":       map[string]any{"note": "rotated"},
		"conditions": map[string]any{"id": id},
	}))
	assert.Equal(t, float64(1), out["affected_rows"])

	res := h.call(t, admin, tools.UpdateRecord, tools.Args{
		"data":       map[string]any{"created_by_user_id": "thief"},
		"conditions": map[string]any{"id": id},
	})
	assert.Equal(t, errs.KindPolicy, res.Kind)

	other := models.Identity{UserID: "u-2", Role: "admin"}
	out = decode(t, h.call(t, other, tools.DeleteRecord, tools.Args{"conditions": map[string]any{"id": id}}))
	assert.Equal(t, float64(0), out["affected_rows"], "another owner's row is invisible")

	out = decode(t, h.call(t, admin, tools.DeleteRecord, tools.Args{"conditions": map[string]any{"id": id}}))
	assert.Equal(t, float64(1), out["affected_rows"])
	out = decode(t, h.call(t, admin, tools.DeleteRecord, tools.Args{"conditions": map[string]any{"id": id}}))
	assert.Equal(t, float64(0), out["affected_rows"])
}

func TestCustomQueryIsReadOnly(t *testing.T) {
	h := newHarness(t)
	decode(t, h.call(t, admin, tools.CreateRecord, tools.Args{"data": map[string]any{"company_name": "Acme"}}))

	for _, stmt := range []string{
		"DELETE FROM passprotect",
		"-- SELECT\nDROP TABLE passprotect",
		"selectx 1",
		"SELECT 1; DELETE FROM passprotect",
	} {
		res := h.call(t, admin, tools.ExecuteCustomQuery, tools.Args{"query": stmt})
		assert.Equal(t, errs.KindPolicy, res.Kind, stmt)
	}
	res := h.call(t, admin, tools.ExecuteCustomQuery, tools.Args{"query": "   "})
	assert.Equal(t, errs.KindValidation, res.Kind)
	assert.Equal(t, 1, h.count(t))
}

func TestCustomQueryIsAdminOnly(t *testing.T) {
	h := newHarness(t)
	decode(t, h.call(t, admin, tools.CreateRecord, tools.Args{"data": map[string]any{"company_name": "Acme"}}))

	// Raw SELECTs are not scoped to the caller.
	for _, role := range []string{"user", "generalUser", "readonly"} {
		res := h.call(t, models.Identity{UserID: "u-2", Role: role}, tools.ExecuteCustomQuery,
			tools.Args{"query": "SELECT * FROM passprotect"})
		assert.Equal(t, errs.KindPolicy, res.Kind, role)
	}
}

func TestSchemaTool(t *testing.T) {
	h := newHarness(t)
	out := decode(t, h.call(t, admin, tools.GetTableSchema, nil))
	assert.Equal(t, "passprotect", out["table"])
	assert.NotEmpty(t, out["columns"])

	res := h.call(t, admin, tools.GetTableSchema, tools.Args{"table": "users"})
	assert.Equal(t, errs.KindValidation, res.Kind)
}

func TestReadPassword(t *testing.T) {
	h := newHarness(t)
	decode(t, h.call(t, admin, tools.CreateRecord, tools.Args{"data": map[string]any{
		"company_name": "Acme", "username": "jdoe", "password": "enc", "email": "j@acme.test",
	}}))

	readonly := models.Identity{UserID: admin.UserID, Role: "readonly"}
	out := decode(t, h.call(t, readonly, tools.ReadPassword, tools.Args{"company": "Acme"}))
	assert.Equal(t, "Acme", out["company"])
	require.Equal(t, float64(1), out["count"])

	rec := out["records"].([]any)[0].(map[string]any)
	assert.Equal(t, "enc", rec["password"])
	assert.NotContains(t, rec, "email")
	assert.NotContains(t, rec, "created_by_user_id")

	out = decode(t, h.call(t, models.Identity{UserID: "u-2", Role: "readonly"}, tools.ReadPassword, tools.Args{"company": "Acme"}))
	assert.Equal(t, float64(0), out["count"])
}

func TestRecentSearchesThroughTools(t *testing.T) {
	h := newHarness(t)

	h.call(t, admin, tools.ReadPassword, tools.Args{"company": "Acme"})
	h.call(t, admin, tools.ReadRecords, tools.Args{"conditions": map[string]any{"company_name": "Globex"}})
	h.call(t, admin, tools.ReadRecords, nil)
	h.call(t, admin, tools.ReadPassword, tools.Args{"company": "Acme"})
	h.call(t, models.Identity{UserID: "u-2", Role: "admin"}, tools.ReadPassword, tools.Args{"company": "Initech"})

	out := decode(t, h.call(t, admin, tools.RecentSearches, nil))
	assert.Equal(t, float64(2), out["count"])
	searches := out["searches"].([]any)
	assert.Equal(t, "Acme", searches[0].(map[string]any)["subject"])
	assert.Equal(t, "Globex", searches[1].(map[string]any)["subject"])

	out = decode(t, h.call(t, admin, tools.RecentSearches, tools.Args{"limit": 1}))
	assert.Equal(t, float64(1), out["count"])

	res := h.call(t, admin, tools.RecentSearches, tools.Args{"limit": 0})
	assert.Equal(t, errs.KindValidation, res.Kind)
}
