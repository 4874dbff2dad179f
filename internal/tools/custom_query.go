package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/raphaelgruber/passprotect-go/internal/errs"
	"github.com/raphaelgruber/passprotect-go/internal/models"
)

func customQueryTool(deps *Dependencies) Definition {
	return Definition{
		Name:        ExecuteCustomQuery,
		Description: "Execute a read-only SELECT statement against the credentials table. Any other statement is refused.",
		Fields: []Field{
			{Name: "query", Type: TypeString, Required: true, Description: "A single SELECT statement"},
		},
		Handler: func(ctx context.Context, call Call) (any, error) {
			stmt := call.Args.String("query")
			if strings.TrimSpace(stmt) == "" {
				return nil, fmt.Errorf("%w: query must not be empty", errs.ErrValidation)
			}
			rows, err := deps.Layer.RawReadOnlyQuery(ctx, stmt)
			if err != nil {
				return nil, err
			}
			deps.audit(ctx, call.Identity, models.ListAllSubject())
			return newRecordsPayload(rows), nil
		},
	}
}
