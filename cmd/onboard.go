package cmd

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/chorus-run/chorus/internal/config"
	"github.com/chorus-run/chorus/internal/permissions"
)

// onboardCmd runs the first-run configuration wizard (domain-stack item
// A8), writing a config.json with everything Save persists — tokens
// and API keys are tagged json:"-" and never land on disk; the wizard
// only prints the environment variables the operator still needs to
// export for those.
func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Interactive first-run setup wizard",
		Run: func(cmd *cobra.Command, args []string) {
			runOnboard()
		},
	}
}

func runOnboard() {
	cfg := config.Default()

	var (
		model             = cfg.Agents.Defaults.Model
		preset            = cfg.Agents.Defaults.Permissions
		dbMode            = cfg.Database.Mode
		discordToken      string
		anthropicKey      string
		openaiKey         string
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Default model").
				Value(&model),
			huh.NewSelect[string]().
				Title("Default permission preset").
				Options(huhOptions(permissions.PresetNames())...).
				Value(&preset),
			huh.NewSelect[string]().
				Title("Store backend").
				Options(huh.NewOption("sqlite (embedded, default)", "sqlite"), huh.NewOption("postgres", "postgres")).
				Value(&dbMode),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Discord bot token (stored in DISCORD_TOKEN only, never written to config.json)").
				Value(&discordToken).
				EchoMode(huh.EchoModePassword),
			huh.NewInput().
				Title("Anthropic API key (ANTHROPIC_API_KEY)").
				Value(&anthropicKey).
				EchoMode(huh.EchoModePassword),
			huh.NewInput().
				Title("OpenAI API key (OPENAI_API_KEY, optional)").
				Value(&openaiKey).
				EchoMode(huh.EchoModePassword),
		),
	)

	if err := form.Run(); err != nil {
		fail(err)
	}

	cfg.Agents.Defaults.Model = model
	cfg.Agents.Defaults.Permissions = preset
	cfg.Database.Mode = dbMode

	path := resolveConfigPath()
	if err := config.Save(path, cfg); err != nil {
		fail(err)
	}

	fmt.Printf("wrote %s\n\n", path)
	fmt.Println("Export these before running \"chorus gateway\":")
	if discordToken != "" {
		fmt.Println("  export DISCORD_TOKEN=...")
	}
	if anthropicKey != "" {
		fmt.Println("  export ANTHROPIC_API_KEY=...")
	}
	if openaiKey != "" {
		fmt.Println("  export OPENAI_API_KEY=...")
	}
}

func huhOptions(names []string) []huh.Option[string] {
	opts := make([]huh.Option[string], 0, len(names))
	for _, n := range names {
		opts = append(opts, huh.NewOption(n, n))
	}
	return opts
}
