package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/raphaelgruber/passprotect-go/internal/errs"
	"github.com/raphaelgruber/passprotect-go/internal/models"
	"github.com/raphaelgruber/passprotect-go/internal/query"
)

// passwordColumns is the projection returned by read_password, in order.
// The subject column is inserted after the id.
var passwordColumns = []string{"username", "password", "note"}

type passwordPayload struct {
	Company string          `json:"company"`
	Records []models.Record `json:"records"`
	Count   int             `json:"count"`
}

func readPasswordTool(deps *Dependencies) Definition {
	return Definition{
		Name: ReadPassword,
		Description: "Read the stored credentials for a company. Only credentials belonging to the acting user " +
			"are returned; the user is taken from the session, never from arguments.",
		Fields: []Field{
			{Name: "company", Type: TypeString, Required: true, Description: "The company name to retrieve the password for"},
		},
		Handler: func(ctx context.Context, call Call) (any, error) {
			company := strings.TrimSpace(call.Args.String("company"))
			if company == "" {
				return nil, fmt.Errorf("%w: company must not be empty", errs.ErrValidation)
			}
			conds, err := deps.scope("conditions", map[string]any{deps.SubjectColumn: company}, call.Identity)
			if err != nil {
				return nil, err
			}
			rows, err := deps.Layer.Read(ctx, conds, 0)
			if err != nil {
				return nil, err
			}
			deps.audit(ctx, call.Identity, models.CompanySubject(company))

			cols := append([]string{query.IDColumn, deps.SubjectColumn}, passwordColumns...)
			out := make([]models.Record, 0, len(rows))
			for _, r := range rows {
				out = append(out, project(r, cols))
			}
			return passwordPayload{Company: company, Records: out, Count: len(out)}, nil
		},
	}
}

// project keeps the listed columns that r has, in the listed order.
func project(r models.Record, cols []string) models.Record {
	out := models.NewRecord(len(cols))
	for _, c := range cols {
		if v, ok := r.Get(c); ok {
			out.Set(c, v)
		}
	}
	return out
}
