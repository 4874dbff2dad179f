package query

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"reflect"

	"github.com/raphaelgruber/passprotect-go/internal/catalog"
	"github.com/raphaelgruber/passprotect-go/internal/errs"
	"github.com/raphaelgruber/passprotect-go/internal/models"
)

// IDColumn is the generated primary key column.
const IDColumn = "id"

// Config configures a Layer.
type Config struct {
	Table        string
	DefaultLimit int
	MaxLimit     int
	Logger       *slog.Logger
}

// Layer exposes the CRUD operations on one table.
type Layer struct {
	backend      Backend
	catalog      *catalog.Catalog
	table        string
	defaultLimit int
	maxLimit     int
	logger       *slog.Logger
}

// New creates a Layer over backend, validating identifiers with cat.
func New(backend Backend, cat *catalog.Catalog, cfg Config) *Layer {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 100
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = cfg.DefaultLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Layer{
		backend:      backend,
		catalog:      cat,
		table:        cfg.Table,
		defaultLimit: cfg.DefaultLimit,
		maxLimit:     cfg.MaxLimit,
		logger:       cfg.Logger,
	}
}

// Table returns the table this layer operates on.
func (l *Layer) Table() string { return l.table }

// Create inserts record and returns the stored row with its generated id.
func (l *Layer) Create(ctx context.Context, record map[string]any) (models.Record, error) {
	if len(record) == 0 {
		return models.Record{}, fmt.Errorf("create: %w: record must not be empty", errs.ErrValidation)
	}
	if _, ok := record[IDColumn]; ok {
		return models.Record{}, fmt.Errorf("create: %w: %s is generated and cannot be supplied", errs.ErrValidation, IDColumn)
	}
	rec, err := l.checked(ctx, "record", record)
	if err != nil {
		return models.Record{}, fmt.Errorf("create: %w", err)
	}

	rows, err := l.backend.Query(ctx, buildInsert(l.backend.Dialect(), l.table, rec))
	if err != nil {
		return models.Record{}, fmt.Errorf("create: %w", err)
	}
	if len(rows) != 1 {
		return models.Record{}, fmt.Errorf("create: %w: insert returned %d rows", errs.ErrBackend, len(rows))
	}
	return rows[0], nil
}

// Read returns rows matching conditions. An empty condition set is a full
// scan. limit <= 0 selects the default; larger limits are clamped.
func (l *Layer) Read(ctx context.Context, conditions map[string]any, limit int) ([]models.Record, error) {
	conds, err := l.checked(ctx, "conditions", conditions)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	rows, err := l.backend.Query(ctx, buildSelect(l.backend.Dialect(), l.table, conds, l.clamp(limit)))
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return rows, nil
}

// Update sets data on rows matching conditions and returns the affected
// count. Zero matches is not an error.
func (l *Layer) Update(ctx context.Context, data, conditions map[string]any) (int64, error) {
	if len(conditions) == 0 {
		return 0, fmt.Errorf("update: %w: conditions must not be empty", errs.ErrValidation)
	}
	if len(data) == 0 {
		return 0, fmt.Errorf("update: %w: data must not be empty", errs.ErrValidation)
	}
	if _, ok := data[IDColumn]; ok {
		return 0, fmt.Errorf("update: %w: %s cannot be updated", errs.ErrValidation, IDColumn)
	}
	set, err := l.checked(ctx, "data", data)
	if err != nil {
		return 0, fmt.Errorf("update: %w", err)
	}
	conds, err := l.checked(ctx, "conditions", conditions)
	if err != nil {
		return 0, fmt.Errorf("update: %w", err)
	}

	n, err := l.backend.Exec(ctx, buildUpdate(l.backend.Dialect(), l.table, set, conds))
	if err != nil {
		return 0, fmt.Errorf("update: %w", err)
	}
	return n, nil
}

// Delete removes rows matching conditions and returns the affected count.
func (l *Layer) Delete(ctx context.Context, conditions map[string]any) (int64, error) {
	if len(conditions) == 0 {
		return 0, fmt.Errorf("delete: %w: conditions must not be empty", errs.ErrValidation)
	}
	conds, err := l.checked(ctx, "conditions", conditions)
	if err != nil {
		return 0, fmt.Errorf("delete: %w", err)
	}

	n, err := l.backend.Exec(ctx, buildDelete(l.backend.Dialect(), l.table, conds))
	if err != nil {
		return 0, fmt.Errorf("delete: %w", err)
	}
	return n, nil
}

// Schema returns the catalog snapshot of the table.
func (l *Layer) Schema(ctx context.Context) ([]models.Column, error) {
	cols, err := l.catalog.Columns(ctx, l.table)
	if err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	return cols, nil
}

// RawReadOnlyQuery runs one self-contained SELECT statement. Anything else
// is rejected before reaching the database.
func (l *Layer) RawReadOnlyQuery(ctx context.Context, statement string) ([]models.Record, error) {
	if !IsReadOnly(statement) {
		return nil, fmt.Errorf("raw query: %w: only %s statements are allowed", errs.ErrPolicy, readOnlyKeyword)
	}
	if !SingleStatement(statement) {
		return nil, fmt.Errorf("raw query: %w: only a single statement is allowed", errs.ErrPolicy)
	}
	l.logger.Debug("executing raw read-only query", "statement", truncate(statement, 200))

	rows, err := l.backend.QueryReadOnly(ctx, statement)
	if err != nil {
		return nil, fmt.Errorf("raw query: %w", err)
	}
	return rows, nil
}

func (l *Layer) clamp(limit int) int {
	switch {
	case limit <= 0:
		return l.defaultLimit
	case limit > l.maxLimit:
		return l.maxLimit
	default:
		return limit
	}
}

// checked validates the keys of m against the catalog and normalizes its
// values. The input map is not modified.
func (l *Layer) checked(ctx context.Context, what string, m map[string]any) (map[string]any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(m))
	out := make(map[string]any, len(m))
	for k, v := range m {
		nv, err := normalizeValue(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %v", errs.ErrValidation, what, k, err)
		}
		keys = append(keys, k)
		out[k] = nv
	}
	if err := l.catalog.Validate(ctx, l.table, keys...); err != nil {
		return nil, err
	}
	return out, nil
}

// normalizeValue accepts scalars only. JSON numbers with an integral value
// become int64 so they compare equal to integer columns.
func normalizeValue(v any) (any, error) {
	switch x := v.(type) {
	case nil, string, bool, int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case float32:
		return normalizeValue(float64(x))
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return int64(x), nil
		}
		return x, nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, nil
		}
		return x.Float64()
	default:
		return nil, fmt.Errorf("unsupported value type %s", reflect.TypeOf(v))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
