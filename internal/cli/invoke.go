package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/raphaelgruber/passprotect-go/internal/tools"
)

var invokeCmd = &cobra.Command{
	Use:   "invoke <tool> [json-args]",
	Short: "Invoke one tool directly",
	Long: `Invoke a tool through the registry as the acting identity. Arguments are a
JSON object; omitted arguments take their defaults.

Examples:
  passprotect invoke read_records '{"conditions":{"company_name":"Acme"}}'
  passprotect invoke read_password '{"company":"Acme"}'
  passprotect invoke execute_custom_query '{"query":"SELECT company_name FROM passprotect"}' --role admin
  passprotect invoke delete_record '{"conditions":{"id":42}}' --role admin`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runInvoke,
}

func runInvoke(cmd *cobra.Command, args []string) error {
	callArgs := tools.Args{}
	if len(args) == 2 && strings.TrimSpace(args[1]) != "" {
		if err := json.Unmarshal([]byte(args[1]), &callArgs); err != nil {
			return fmt.Errorf("arguments must be a JSON object: %w", err)
		}
	}

	res := invoke(cmd.Context(), args[0], callArgs)
	if res.IsError {
		return fmt.Errorf("%s", res.Text())
	}
	fmt.Println(res.Text())
	return nil
}

// invoke runs one tool call as the configured identity.
func invoke(ctx context.Context, tool string, args tools.Args) tools.Result {
	return application.Tools.Invoke(ctx, tools.Call{
		ID:       "cli-" + uuid.NewString(),
		Tool:     tool,
		Args:     args,
		Identity: application.Identity(),
	})
}

// invokeInto runs tool and decodes its payload into out.
func invokeInto(ctx context.Context, tool string, args tools.Args, out any) error {
	res := invoke(ctx, tool, args)
	if res.IsError {
		return fmt.Errorf("%s", res.Text())
	}
	return json.Unmarshal([]byte(res.Text()), out)
}
