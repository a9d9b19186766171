package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func contextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Manage an agent's persisted conversation context",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear <agent>",
		Short: "Clear an agent's context (earlier messages stay persisted but are no longer loaded)",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			controlCall("context.clear", args[0], nil)
			fmt.Printf("cleared context for %s\n", args[0])
		},
	})
	var description string
	saveCmd := &cobra.Command{
		Use:   "save <agent>",
		Short: "Snapshot an agent's current context to a named session",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			resp := controlCall("context.save", args[0], map[string]string{"description": description})
			printJSON(resp.Data)
		},
	}
	saveCmd.Flags().StringVar(&description, "description", "", "human-readable label for the snapshot")
	cmd.AddCommand(saveCmd)
	cmd.AddCommand(&cobra.Command{
		Use:   "history <agent>",
		Short: "List an agent's saved context snapshots",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			printJSON(controlCall("context.history", args[0], nil).Data)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "restore <agent> <session-id-prefix>",
		Short: "Restore an agent's context from a saved snapshot",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			resp := controlCall("context.restore", args[0], map[string]string{"session": args[1]})
			printJSON(resp.Data)
		},
	})
	return cmd
}
