// Package cli provides the command-line interface for passprotect.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/passprotect-go/internal/app"
	"github.com/raphaelgruber/passprotect-go/internal/config"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose     bool
	flagUser    string
	flagRole    string
	flagBackend string

	// Global config and wired application
	cfg         config.Config
	application *app.App
	logCleanup  func() error
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "passprotect",
	Short: "Credential store assistant",
	Long: `PassProtect manages stored credentials through a fixed set of database
tools, either directly or through a conversational assistant.

The acting identity comes from PASSPROTECT_USER_ID and PASSPROTECT_ROLE or
from the --user and --role flags. Every tool call runs as that identity.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip DB connection for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()
		if flagUser != "" {
			cfg.UserID = flagUser
		}
		if flagRole != "" {
			cfg.Role = flagRole
		}
		if flagBackend != "" {
			cfg.Backend = flagBackend
		}
		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}
		if cfg.UserID == "" {
			return fmt.Errorf("no acting user: set PASSPROTECT_USER_ID or pass --user")
		}

		var logger *slog.Logger
		logger, logCleanup = config.SetupLogger(cfg.LogFile, cfg.LogLevel)
		slog.SetDefault(logger)

		var err error
		application, err = app.New(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if application != nil {
			if err := application.Close(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
			}
		}
		if logCleanup != nil {
			_ = logCleanup()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&flagUser, "user", "u", "", "acting user id (overrides PASSPROTECT_USER_ID)")
	rootCmd.PersistentFlags().StringVarP(&flagRole, "role", "r", "", "acting role (overrides PASSPROTECT_ROLE)")
	rootCmd.PersistentFlags().StringVar(&flagBackend, "backend", "", "database backend: surrealdb, postgres or sqlite")

	// Add subcommands
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(invokeCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(recentCmd)
	rootCmd.AddCommand(statsCmd)
}
