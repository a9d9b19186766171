package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/chorus-run/chorus/internal/config"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("chorus doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (not found — defaults + env overrides apply)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Printf("  Home:     %s\n", config.Home())
	fmt.Println()

	fmt.Println("  Database:")
	if cfg.Database.IsPostgres() {
		fmt.Println("    Mode:     postgres")
	} else {
		fmt.Println("    Mode:     sqlite")
	}
	checkStore(cfg)
	fmt.Println()

	fmt.Println("  Providers:")
	checkProvider("anthropic", cfg.Providers.Anthropic.APIKey)
	checkProvider("openai", cfg.Providers.OpenAI.APIKey)
	checkProvider("brave (web_search)", cfg.Providers.Brave.APIKey)
	fmt.Println()

	fmt.Println("  Discord:")
	checkProvider("bot token", cfg.Discord.Token)
	if len(cfg.Discord.OwnerIDs) == 0 {
		fmt.Println("    owner_ids: (none configured — /process, /thread, /context are unrestricted)")
	} else {
		fmt.Printf("    owner_ids: %d configured\n", len(cfg.Discord.OwnerIDs))
	}
	fmt.Println()

	fmt.Println("  Agents:")
	dirs, err := openWorkspace()
	if err != nil {
		fmt.Printf("    workspace error: %s\n", err)
		return
	}
	names, err := dirs.ListAll()
	if err != nil {
		fmt.Printf("    list error: %s\n", err)
		return
	}
	fmt.Printf("    %d agent(s) on disk\n", len(names))
}

func checkStore(cfg *config.Config) {
	db, err := openStore(context.Background(), cfg)
	if err != nil {
		fmt.Printf("    Status:   CONNECT/MIGRATE FAILED (%s)\n", err)
		return
	}
	defer db.Close()
	fmt.Println("    Status:   OK (migrations applied)")
}

func checkProvider(name, key string) {
	if key == "" {
		fmt.Printf("    %-20s NOT CONFIGURED\n", name+":")
		return
	}
	fmt.Printf("    %-20s configured\n", name+":")
}
