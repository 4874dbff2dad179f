package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/passprotect-go/internal/models"
	"github.com/raphaelgruber/passprotect-go/internal/tools"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Show the credentials table structure",
	Args:  cobra.NoArgs,
	RunE:  runSchema,
}

func runSchema(cmd *cobra.Command, args []string) error {
	var out struct {
		Table   string          `json:"table"`
		Columns []models.Column `json:"columns"`
	}
	if err := invokeInto(cmd.Context(), tools.GetTableSchema, tools.Args{}, &out); err != nil {
		return err
	}

	fmt.Printf("Table %s (%d columns)\n\n", out.Table, len(out.Columns))
	for _, c := range out.Columns {
		null := "NOT NULL"
		if c.Nullable {
			null = "NULL"
		}
		fmt.Printf("  %-24s %-16s %s\n", c.Name, c.Type, null)
	}
	return nil
}
