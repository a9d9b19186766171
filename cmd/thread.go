package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func threadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thread",
		Short: "Inspect and control an agent's execution threads",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list <agent>",
		Short: "List an agent's execution threads",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			printJSON(controlCall("thread.list", args[0], nil).Data)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "kill <agent> <id>",
		Short: "Cancel one execution thread",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			controlCall("thread.kill", args[0], map[string]string{"id": args[1]})
			fmt.Printf("killed thread %s on %s\n", args[1], args[0])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "break-context <agent>",
		Short: "Stop routing new messages into the running main thread; the next message starts a fresh one",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			controlCall("thread.break-context", args[0], nil)
			fmt.Printf("broke main thread context for %s\n", args[0])
		},
	})
	return cmd
}
