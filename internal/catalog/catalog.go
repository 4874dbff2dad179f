// Package catalog caches the column set of the backing tables.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/raphaelgruber/passprotect-go/internal/errs"
	"github.com/raphaelgruber/passprotect-go/internal/models"
)

// Source reads column metadata from the database.
type Source interface {
	DescribeTable(ctx context.Context, table string) ([]models.Column, error)
}

// Catalog is a per-table column cache with stale-while-revalidate.
// A ttl of zero keeps snapshots for the process lifetime.
type Catalog struct {
	source Source
	ttl    time.Duration
	logger *slog.Logger

	store sync.Map // table -> *entry
	mu    sync.Mutex
}

type entry struct {
	columns    []models.Column
	names      map[string]struct{}
	expiresAt  time.Time
	refreshing atomic.Bool
}

// New creates a catalog reading from source.
func New(source Source, ttl time.Duration, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{source: source, ttl: ttl, logger: logger}
}

// Warm fetches the snapshot for table synchronously.
func (c *Catalog) Warm(ctx context.Context, table string) error {
	_, err := c.fetch(ctx, table)
	return err
}

// Columns returns the ordered column set of table.
func (c *Catalog) Columns(ctx context.Context, table string) ([]models.Column, error) {
	e, err := c.get(ctx, table)
	if err != nil {
		return nil, err
	}
	out := make([]models.Column, len(e.columns))
	copy(out, e.columns)
	return out, nil
}

// Has reports whether table has a column called name.
func (c *Catalog) Has(ctx context.Context, table, name string) (bool, error) {
	e, err := c.get(ctx, table)
	if err != nil {
		return false, err
	}
	_, ok := e.names[name]
	return ok, nil
}

// Validate checks that every key names a column of table. It fails closed
// when the snapshot cannot be loaded.
func (c *Catalog) Validate(ctx context.Context, table string, keys ...string) error {
	e, err := c.get(ctx, table)
	if err != nil {
		return err
	}
	var unknown []string
	for _, k := range keys {
		if _, ok := e.names[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("%w: unknown column(s) %s on %s", errs.ErrPolicy, strings.Join(unknown, ", "), table)
	}
	return nil
}

// Invalidate drops the snapshot of table.
func (c *Catalog) Invalidate(table string) {
	c.store.Delete(table)
}

func (c *Catalog) get(ctx context.Context, table string) (*entry, error) {
	if val, ok := c.store.Load(table); ok {
		e := val.(*entry)
		if c.ttl <= 0 || time.Now().Before(e.expiresAt) {
			return e, nil
		}
		// Stale: serve it and let one goroutine refresh.
		if e.refreshing.CompareAndSwap(false, true) {
			go c.refreshInBackground(table, e)
		}
		return e, nil
	}
	return c.fetch(ctx, table)
}

// fetch loads a snapshot. The mutex keeps concurrent cold misses from
// stampeding the database.
func (c *Catalog) fetch(ctx context.Context, table string) (*entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if val, ok := c.store.Load(table); ok {
		e := val.(*entry)
		if c.ttl <= 0 || time.Now().Before(e.expiresAt) {
			return e, nil
		}
	}

	cols, err := c.source.DescribeTable(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("%w: schema catalog unavailable for %s: %v", errs.ErrBackend, table, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: table %s has no columns", errs.ErrBackend, table)
	}

	e := &entry{
		columns:   cols,
		names:     make(map[string]struct{}, len(cols)),
		expiresAt: time.Now().Add(c.ttl),
	}
	for _, col := range cols {
		e.names[col.Name] = struct{}{}
	}
	c.store.Store(table, e)
	c.logger.Debug("schema catalog loaded", "table", table, "columns", len(cols))
	return e, nil
}

func (c *Catalog) refreshInBackground(table string, stale *entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := c.fetch(ctx, table); err != nil {
		c.logger.Warn("background catalog refresh failed", "table", table, "error", err)
		stale.refreshing.Store(false)
	}
}
