package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chorus-run/chorus/internal/config"
	"github.com/chorus-run/chorus/internal/controlplane"
)

func controlCall(op, agentName string, args map[string]string) controlplane.Response {
	resp, err := controlplane.Call(controlplane.SocketPath(config.Home()), controlplane.Request{Op: op, Agent: agentName, Args: args})
	if err != nil {
		fail(err)
	}
	return resp
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fail(err)
	}
	fmt.Println(string(out))
}

func processCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Inspect and control supervised child processes",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list [agent]",
		Short: "List tracked processes, optionally scoped to one agent",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			var agentName string
			if len(args) == 1 {
				agentName = args[0]
			}
			printJSON(controlCall("process.list", agentName, nil).Data)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "kill <pid>",
		Short: "Send SIGTERM (then SIGKILL after a grace period) to a tracked process",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			controlCall("process.kill", "", map[string]string{"pid": args[0]})
			fmt.Printf("killed process %s\n", args[0])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "logs <pid>",
		Short: "Print the rolling stdout/stderr tail captured for a tracked process",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			resp := controlCall("process.logs", "", map[string]string{"pid": args[0]})
			lines, _ := resp.Data.([]any)
			for _, l := range lines {
				fmt.Println(l)
			}
		},
	})
	return cmd
}
