package tools

import (
	"context"

	"github.com/raphaelgruber/passprotect-go/internal/models"
)

type schemaPayload struct {
	Table   string          `json:"table"`
	Columns []models.Column `json:"columns"`
}

func tableSchemaTool(deps *Dependencies) Definition {
	return Definition{
		Name:        GetTableSchema,
		Description: "Get the structure of the credentials table: column names, types and nullability.",
		Handler: func(ctx context.Context, _ Call) (any, error) {
			cols, err := deps.Layer.Schema(ctx)
			if err != nil {
				return nil, err
			}
			return schemaPayload{Table: deps.Layer.Table(), Columns: cols}, nil
		},
	}
}
