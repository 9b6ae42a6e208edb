// Command nim-memory chats with the conversation state manager from a
// terminal and inspects stored conversation state.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile        string
	userID         string
	conversationID string
	jsonOutput     bool
)

var rootCmd = &cobra.Command{
	Use:   "nim-memory",
	Short: "Conversation state manager with persistent user memory",
	Long: `nim-memory remembers what users tell it, answers questions about those
facts, and walks users through multi-turn tasks such as ticket bookings.

State is stored per user and conversation, so separate conversations never
see each other's memory.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./nim-memory.yaml)")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "local", "user identifier")
	rootCmd.PersistentFlags().StringVar(&conversationID, "conversation", "default", "conversation identifier")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print structured JSON output")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
