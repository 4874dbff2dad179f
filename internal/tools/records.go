package tools

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/passprotect-go/internal/errs"
	"github.com/raphaelgruber/passprotect-go/internal/models"
)

// Tool names.
const (
	CreateRecord       = "create_record"
	ReadRecords        = "read_records"
	UpdateRecord       = "update_record"
	DeleteRecord       = "delete_record"
	GetTableSchema     = "get_table_schema"
	ExecuteCustomQuery = "execute_custom_query"
	ReadPassword       = "read_password"
	RecentSearches     = "recent_searches"
)

// recordsPayload is the shape of every row-returning tool.
type recordsPayload struct {
	Records []models.Record `json:"records"`
	Count   int             `json:"count"`
}

type affectedPayload struct {
	AffectedRows int64 `json:"affected_rows"`
}

func newRecordsPayload(rows []models.Record) recordsPayload {
	if rows == nil {
		rows = []models.Record{}
	}
	return recordsPayload{Records: rows, Count: len(rows)}
}

func createRecordTool(deps *Dependencies) Definition {
	return Definition{
		Name:        CreateRecord,
		Description: "Create a new record in the credentials table. Provide column names and values; the id is generated.",
		Fields: []Field{
			{Name: "data", Type: TypeObject, Required: true, Description: "Column names and values to insert, e.g. {\"username\": \"john\", \"password\": \"secret123\"}"},
		},
		Handler: func(ctx context.Context, call Call) (any, error) {
			data := call.Args.Object("data")
			if len(data) == 0 {
				return nil, fmt.Errorf("%w: data must not be empty", errs.ErrValidation)
			}
			data, err := deps.scope("data", data, call.Identity)
			if err != nil {
				return nil, err
			}
			rec, err := deps.Layer.Create(ctx, data)
			if err != nil {
				return nil, err
			}
			return map[string]any{"record": rec}, nil
		},
	}
}

func readRecordsTool(deps *Dependencies) Definition {
	return Definition{
		Name:        ReadRecords,
		Description: "Read records from the credentials table, optionally filtered by exact-match conditions.",
		Fields: []Field{
			{Name: "conditions", Type: TypeObject, Default: map[string]any{}, Description: "Filter conditions as column/value pairs, e.g. {\"company_name\": \"Acme\"}"},
			{Name: "limit", Type: TypeInteger, Default: 100, Description: "Maximum number of records to return"},
		},
		Handler: func(ctx context.Context, call Call) (any, error) {
			conditions := call.Args.Object("conditions")
			scoped, err := deps.scope("conditions", conditions, call.Identity)
			if err != nil {
				return nil, err
			}
			rows, err := deps.Layer.Read(ctx, scoped, call.Args.Int("limit"))
			if err != nil {
				return nil, err
			}
			deps.audit(ctx, call.Identity, deps.subjectOf(conditions))
			return newRecordsPayload(rows), nil
		},
	}
}

func updateRecordTool(deps *Dependencies) Definition {
	return Definition{
		Name:        UpdateRecord,
		Description: "Update existing records matching the conditions. Conditions are required.",
		Fields: []Field{
			{Name: "data", Type: TypeObject, Required: true, Description: "Columns to update with new values, e.g. {\"password\": \"newpass123\"}"},
			{Name: "conditions", Type: TypeObject, Required: true, Description: "Conditions to match records, e.g. {\"id\": 1}"},
		},
		Handler: func(ctx context.Context, call Call) (any, error) {
			data := call.Args.Object("data")
			conditions := call.Args.Object("conditions")
			// Checked before scoping so the owner filter alone never
			// counts as a condition.
			if len(conditions) == 0 {
				return nil, fmt.Errorf("%w: conditions must not be empty", errs.ErrValidation)
			}
			if deps.OwnerColumn != "" {
				if _, ok := data[deps.OwnerColumn]; ok {
					return nil, fmt.Errorf("%w: %s cannot be changed", errs.ErrPolicy, deps.OwnerColumn)
				}
			}
			scoped, err := deps.scope("conditions", conditions, call.Identity)
			if err != nil {
				return nil, err
			}
			n, err := deps.Layer.Update(ctx, data, scoped)
			if err != nil {
				return nil, err
			}
			return affectedPayload{AffectedRows: n}, nil
		},
	}
}

func deleteRecordTool(deps *Dependencies) Definition {
	return Definition{
		Name:        DeleteRecord,
		Description: "Delete records matching the conditions. Conditions are required.",
		Fields: []Field{
			{Name: "conditions", Type: TypeObject, Required: true, Description: "Conditions to match records to delete, e.g. {\"id\": 1}"},
		},
		Handler: func(ctx context.Context, call Call) (any, error) {
			conditions := call.Args.Object("conditions")
			if len(conditions) == 0 {
				return nil, fmt.Errorf("%w: conditions must not be empty", errs.ErrValidation)
			}
			scoped, err := deps.scope("conditions", conditions, call.Identity)
			if err != nil {
				return nil, err
			}
			n, err := deps.Layer.Delete(ctx, scoped)
			if err != nil {
				return nil, err
			}
			return affectedPayload{AffectedRows: n}, nil
		},
	}
}
