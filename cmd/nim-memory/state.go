package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect or reset stored conversation state",
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored state of a conversation as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		state, err := a.manager.State(cmd.Context(), userID, conversationID)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), state)
	},
}

var stateResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the stored state of a conversation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.manager.Reset(cmd.Context(), userID, conversationID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Reset %s/%s\n", userID, conversationID)
		return nil
	},
}

func init() {
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateResetCmd)
}
