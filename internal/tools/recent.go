package tools

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/passprotect-go/internal/errs"
	"github.com/raphaelgruber/passprotect-go/internal/models"
)

type recentPayload struct {
	Searches []models.RecentSearch `json:"searches"`
	Count    int                   `json:"count"`
}

func recentSearchesTool(deps *Dependencies) Definition {
	return Definition{
		Name:        RecentSearches,
		Description: "List the companies the acting user looked up most recently, newest first, without duplicates.",
		Fields: []Field{
			{Name: "limit", Type: TypeInteger, Default: deps.RecentLimit, Description: "Maximum number of companies to return"},
		},
		Handler: func(ctx context.Context, call Call) (any, error) {
			if deps.Audit == nil {
				return nil, fmt.Errorf("%w: audit trail is not configured", errs.ErrBackend)
			}
			out, err := deps.Audit.RecentSearches(ctx, call.Identity, call.Args.Int("limit"))
			if err != nil {
				return nil, err
			}
			return recentPayload{Searches: out, Count: len(out)}, nil
		},
	}
}
