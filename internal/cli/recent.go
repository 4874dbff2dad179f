package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/passprotect-go/internal/models"
	"github.com/raphaelgruber/passprotect-go/internal/tools"
)

var recentLimit int

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Show the companies you looked up most recently",
	Long: `Show the companies the acting user looked up most recently, newest first.
Listing every record is not a lookup and never appears here.

Examples:
  passprotect recent
  passprotect recent -n 20`,
	Args: cobra.NoArgs,
	RunE: runRecent,
}

func init() {
	recentCmd.Flags().IntVarP(&recentLimit, "limit", "n", 5, "max companies")
}

func runRecent(cmd *cobra.Command, args []string) error {
	var out struct {
		Searches []models.RecentSearch `json:"searches"`
	}
	if err := invokeInto(cmd.Context(), tools.RecentSearches, tools.Args{"limit": recentLimit}, &out); err != nil {
		return err
	}

	if len(out.Searches) == 0 {
		fmt.Println("No recent searches.")
		return nil
	}
	for i, s := range out.Searches {
		fmt.Printf("%d. %s (%s)\n", i+1, s.Subject, s.LastSearched.Local().Format(time.DateTime))
	}
	return nil
}
