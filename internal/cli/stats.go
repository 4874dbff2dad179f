package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/passprotect-go/internal/metrics"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show runtime statistics",
	Long: `Show the in-memory runtime statistics of this process: tool calls,
engine calls with token usage, turns and audit writes.

Statistics reset with every process, so this is mostly useful at the end of
a chat session or with --json in scripts.`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print the snapshot as JSON")
}

func runStats(cmd *cobra.Command, args []string) error {
	snap := application.Metrics.Snapshot()
	if statsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	printStats(snap)
	return nil
}

// printStats displays runtime statistics.
func printStats(snap metrics.Snapshot) {
	fmt.Printf("Runtime Statistics (in-memory, since start)\n")
	fmt.Printf("═══════════════════════════════════════════════\n")
	fmt.Printf("Uptime: %.1f seconds\n", snap.UptimeSeconds)

	if len(snap.Operations) == 0 {
		fmt.Println("\nNo operations recorded.")
		return
	}
	for _, op := range snap.Operations {
		fmt.Printf("\n%s:\n", op.Name)
		printOpStats(op)
		printTokenStats(op)
	}
}

// printOpStats displays timing statistics for an operation.
func printOpStats(op metrics.OperationSnapshot) {
	fmt.Printf("  Calls: %d, Failures: %d, Total: %dms\n", op.Count, op.Failures, op.TotalTimeMs)
	fmt.Printf("  Time: avg %.1fms, min %dms, max %dms\n",
		op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
}

// printTokenStats displays token statistics if available.
func printTokenStats(op metrics.OperationSnapshot) {
	if op.InputTokens == 0 && op.OutputTokens == 0 {
		return
	}
	fmt.Printf("  Tokens In:  %d total", op.InputTokens)
	if op.Count > 0 {
		fmt.Printf(", avg %.0f", float64(op.InputTokens)/float64(op.Count))
	}
	fmt.Println()

	fmt.Printf("  Tokens Out: %d total", op.OutputTokens)
	if op.Count > 0 {
		fmt.Printf(", avg %.0f", float64(op.OutputTokens)/float64(op.Count))
	}
	fmt.Println()
}
