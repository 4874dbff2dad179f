package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/raphaelgruber/passprotect-go/internal/agent"
	"github.com/raphaelgruber/passprotect-go/internal/errs"
)

var (
	chatMessage string
	chatNoUI    bool
)

// exitWords end the REPL.
var exitWords = map[string]bool{"exit": true, "quit": true, "bye": true}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the assistant",
	Long: `Start a conversation with the assistant. It answers by calling the same
tools as 'passprotect invoke', restricted to the acting role.

Type exit, quit or bye to leave. Ctrl+C while a turn runs cancels only that
turn. /stats prints runtime statistics.

Examples:
  passprotect chat
  passprotect chat -m "What is my password for Acme?"
  PASSPROTECT_LLM_PROVIDER=ollama passprotect chat --role readonly`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatMessage, "message", "m", "", "send one message and exit")
	chatCmd.Flags().BoolVar(&chatNoUI, "no-ui", false, "disable the progress display")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	orch, err := application.Orchestrator(ctx)
	if err != nil {
		return err
	}
	go orch.Sessions().RunSweeper(ctx, cfg.SessionTTL/8)

	identity := application.Identity()
	sess, err := orch.StartSession(identity)
	if err != nil {
		return err
	}

	interactive := term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
	useUI := interactive && !chatNoUI
	theme := defaultTheme

	send := func(message string) error {
		var turn agent.Turn
		var err error
		if useUI {
			turn, err = runTurnWithProgress(ctx, orch, sess.ID, identity, message)
		} else {
			turn, err = orch.Send(ctx, sess.ID, identity, message)
		}
		return printTurn(theme, turn, err)
	}

	if chatMessage != "" {
		return send(chatMessage)
	}

	if interactive {
		fmt.Println(theme.hintStyle().Render(fmt.Sprintf("Signed in as %s (%s). Type exit to leave.", identity.UserID, identity.Role)))
	}
	scanner := bufio.NewScanner(os.Stdin)
	for {
		if interactive {
			fmt.Print(theme.statusStyle().Render("you> "))
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("read input: %w", err)
			}
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case exitWords[strings.ToLower(line)]:
			fmt.Println(theme.hintStyle().Render("Goodbye."))
			return nil
		case line == "/stats":
			printStats(application.Metrics.Snapshot())
			continue
		}

		if err := send(line); err != nil {
			if errors.Is(err, errs.ErrPolicy) {
				// Expired or foreign session: nothing more can be sent on it.
				return err
			}
		}
	}
}

// printTurn shows the answer of a turn or why it has none. The returned
// error is the turn's error, already reported to the user.
func printTurn(theme Theme, turn agent.Turn, err error) error {
	switch turn.Status {
	case agent.TurnCompleted:
		fmt.Println(theme.assistantStyle().Render(turn.Answer))
	case agent.TurnBoundExceeded:
		fmt.Println(theme.errorStyle().Render(turn.Answer))
	case agent.TurnCancelled:
		fmt.Println(theme.hintStyle().Render("Cancelled."))
	default:
		if err != nil {
			fmt.Fprintln(os.Stderr, theme.errorStyle().Render(fmt.Sprintf("✗ %s", err)))
		}
	}
	if verbose && turn.Iterations > 0 {
		fmt.Println(theme.hintStyle().Render(fmt.Sprintf("(%d steps)", turn.Iterations)))
	}
	return err
}
