package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools the acting role may invoke",
	Long: `List the tools the acting role may invoke, with their arguments.

Examples:
  passprotect tools
  passprotect tools --role readonly`,
	Args: cobra.NoArgs,
	RunE: runTools,
}

func runTools(cmd *cobra.Command, args []string) error {
	defs := application.Tools.DefinitionsFor(cfg.Role)
	if len(defs) == 0 {
		fmt.Printf("Role %q may not invoke any tool.\n", cfg.Role)
		return nil
	}

	fmt.Printf("Tools for role %q:\n\n", cfg.Role)
	for _, d := range defs {
		fmt.Printf("%s\n", d.Name)
		fmt.Printf("   %s\n", d.Description)
		if len(d.Fields) == 0 {
			continue
		}
		fields := make([]string, 0, len(d.Fields))
		for _, f := range d.Fields {
			s := fmt.Sprintf("%s:%s", f.Name, f.Type)
			if f.Required {
				s += "*"
			}
			fields = append(fields, s)
		}
		fmt.Printf("   args: %s\n", strings.Join(fields, ", "))
	}
	if verbose {
		fmt.Println("\n* required")
	}
	return nil
}
