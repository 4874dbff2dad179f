package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/passprotect-go/internal/errs"
	"github.com/raphaelgruber/passprotect-go/internal/models"
	"github.com/raphaelgruber/passprotect-go/internal/query"
)

// Auditor is the audit trail the read tools write to.
type Auditor interface {
	LogSearch(ctx context.Context, identity models.Identity, subject models.Subject, at time.Time)
	RecentSearches(ctx context.Context, identity models.Identity, limit int) ([]models.RecentSearch, error)
}

// Dependencies holds shared services for tool handlers.
// Passed to handler factories via closure capture.
type Dependencies struct {
	Layer *query.Layer
	Audit Auditor

	// OwnerColumn scopes rows to the acting user. Empty disables scoping.
	OwnerColumn string
	// SubjectColumn names the company a credential belongs to.
	SubjectColumn string
	// RecentLimit is the recent_searches default.
	RecentLimit int

	Logger *slog.Logger
	Now    func() time.Time
}

func (d *Dependencies) withDefaults() *Dependencies {
	c := *d
	if c.SubjectColumn == "" {
		c.SubjectColumn = "company_name"
	}
	if c.RecentLimit <= 0 {
		c.RecentLimit = 20
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return &c
}

// scope copies m and pins the owner column to the caller. A caller naming
// the owner column itself is refused.
func (d *Dependencies) scope(what string, m map[string]any, id models.Identity) (map[string]any, error) {
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	if d.OwnerColumn == "" {
		return out, nil
	}
	if _, ok := m[d.OwnerColumn]; ok {
		return nil, fmt.Errorf("%w: %s.%s is set from the acting identity", errs.ErrPolicy, what, d.OwnerColumn)
	}
	out[d.OwnerColumn] = id.UserID
	return out, nil
}

// subjectOf picks the audit subject of a read: the company when the caller
// filtered on one, otherwise a listing.
func (d *Dependencies) subjectOf(conditions map[string]any) models.Subject {
	if name, ok := conditions[d.SubjectColumn].(string); ok && name != "" {
		return models.CompanySubject(name)
	}
	return models.ListAllSubject()
}

func (d *Dependencies) audit(ctx context.Context, id models.Identity, subject models.Subject) {
	if d.Audit != nil {
		d.Audit.LogSearch(ctx, id, subject, d.Now())
	}
}

// RegisterAll registers every tool with r.
func RegisterAll(r *Registry, deps *Dependencies) error {
	deps = deps.withDefaults()
	defs := []Definition{
		createRecordTool(deps),
		readRecordsTool(deps),
		updateRecordTool(deps),
		deleteRecordTool(deps),
		tableSchemaTool(deps),
		customQueryTool(deps),
		readPasswordTool(deps),
		recentSearchesTool(deps),
	}
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}
