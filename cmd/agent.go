package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chorus-run/chorus/internal/agent"
)

func agentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage agent lifecycle",
	}
	cmd.AddCommand(agentCreateCmd())
	cmd.AddCommand(agentDestroyCmd())
	cmd.AddCommand(agentConfigureCmd())
	cmd.AddCommand(agentListCmd())
	return cmd
}

func newManager() (*agent.Manager, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	ctx := context.Background()
	db, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	dirs, err := openWorkspace()
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return agent.NewManager(dirs, db), func() { db.Close() }, nil
}

func agentCreateCmd() *cobra.Command {
	var model, permissions, systemPrompt string
	c := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new agent workspace",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			mgr, closeFn, err := newManager()
			if err != nil {
				fail(err)
			}
			defer closeFn()
			if err := mgr.Create(cmd.Context(), args[0], model, permissions, systemPrompt); err != nil {
				fail(err)
			}
			fmt.Printf("created agent %q\n", args[0])
		},
	}
	c.Flags().StringVar(&model, "model", "", "override the default model")
	c.Flags().StringVar(&permissions, "permissions", "standard", "permission preset or profile id")
	c.Flags().StringVar(&systemPrompt, "system-prompt", "", "system prompt override")
	return c
}

func agentDestroyCmd() *cobra.Command {
	var keepFiles bool
	c := &cobra.Command{
		Use:   "destroy <name>",
		Short: "Destroy an agent, archiving its workspace to .trash/ unless --keep-files=false",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			mgr, closeFn, err := newManager()
			if err != nil {
				fail(err)
			}
			defer closeFn()
			if err := mgr.Destroy(cmd.Context(), args[0], keepFiles); err != nil {
				fail(err)
			}
			fmt.Printf("destroyed agent %q\n", args[0])
		},
	}
	c.Flags().BoolVar(&keepFiles, "keep-files", true, "archive the workspace under .trash/ instead of deleting it")
	return c
}

func agentConfigureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "configure <name> <key> <value>",
		Short: "Update one of system_prompt, model, permissions on an existing agent",
		Args:  cobra.ExactArgs(3),
		Run: func(cmd *cobra.Command, args []string) {
			mgr, closeFn, err := newManager()
			if err != nil {
				fail(err)
			}
			defer closeFn()
			if err := mgr.Configure(cmd.Context(), args[0], args[1], args[2]); err != nil {
				fail(err)
			}
			fmt.Printf("configured %s.%s = %q\n", args[0], args[1], args[2])
		},
	}
}

func agentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every agent workspace on disk",
		Run: func(cmd *cobra.Command, args []string) {
			mgr, closeFn, err := newManager()
			if err != nil {
				fail(err)
			}
			defer closeFn()
			names, err := mgr.Names()
			if err != nil {
				fail(err)
			}
			if len(names) == 0 {
				fmt.Println("no agents")
				return
			}
			for _, n := range names {
				fmt.Println(n)
			}
		},
	}
}

