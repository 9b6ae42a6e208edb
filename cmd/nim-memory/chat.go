package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/memory"
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Send messages to the manager",
	Long: `Send a message and print the answer.

With a message argument a single turn is handled. Without one, messages are
read from stdin line by line until EOF or "exit".

Examples:
  nim-memory chat "My name is Alice"
  nim-memory chat --user alice --conversation trip "Book a ticket from Delhi to Mumbai"
  echo "What is my name?" | nim-memory chat --json`,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	if len(args) > 0 {
		return turn(ctx, a.manager, out, strings.Join(args, " "))
	}

	interactive := isTerminal(os.Stdin)
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		if interactive {
			fmt.Fprint(out, "> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}
		if err := turn(ctx, a.manager, out, line); err != nil {
			// Invalid input is reported and the session continues.
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func turn(ctx context.Context, m *memory.Manager, out io.Writer, text string) error {
	resp, err := m.HandleMessage(ctx, userID, conversationID, text)
	if err != nil {
		return err
	}
	return printResponse(out, resp)
}

func printResponse(out io.Writer, resp *core.Response) error {
	if jsonOutput {
		return printJSON(out, resp)
	}
	_, err := fmt.Fprintf(out, "%s\n", resp.DecisionOutput.Answer)
	return err
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
