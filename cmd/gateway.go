package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chorus-run/chorus/internal/agent"
	"github.com/chorus-run/chorus/internal/askmediator"
	"github.com/chorus-run/chorus/internal/channels/discord"
	"github.com/chorus-run/chorus/internal/config"
	"github.com/chorus-run/chorus/internal/contextmgr"
	"github.com/chorus-run/chorus/internal/controlplane"
	"github.com/chorus-run/chorus/internal/cron"
	"github.com/chorus-run/chorus/internal/mcp"
	"github.com/chorus-run/chorus/internal/providers"
	"github.com/chorus-run/chorus/internal/supervisor"
	"github.com/chorus-run/chorus/internal/tools"
	"github.com/chorus-run/chorus/internal/tracing"
	"github.com/chorus-run/chorus/internal/workspace"
)

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Run the Chorus gateway: load every agent and bind the Discord collaborator",
		Run: func(cmd *cobra.Command, args []string) {
			if err := runGateway(); err != nil {
				fail(err)
			}
		},
	}
}

func runGateway() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	shutdownTracing, err := tracing.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	db, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	dirs, err := openWorkspace()
	if err != nil {
		return fmt.Errorf("open workspace: %w", err)
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return fmt.Errorf("build provider: %w", err)
	}
	toolProvider := agent.NewProviderAdapter(provider)
	classifier := &agent.LLMClassifier{Provider: toolProvider, Model: provider.DefaultModel()}

	ctxMgr := contextmgr.New(db, dirs.SessionsDir)
	host := agent.NewHost()
	sup := supervisor.New(supervisor.Deps{Spawner: host, Injector: host, Notifier: host})
	mgrAgent := agent.NewManager(dirs, db)

	mcpTools, closeMCP, err := connectMCPServers(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect mcp servers: %w", err)
	}
	defer closeMCP()

	var channel *discord.Channel
	if cfg.Discord.Token != "" {
		channel, err = discord.New(cfg.Discord.Token, db, host)
		if err != nil {
			return fmt.Errorf("discord: %w", err)
		}
	}

	names, err := mgrAgent.Names()
	if err != nil {
		return fmt.Errorf("list agents: %w", err)
	}
	webCfg := agent.WebToolsConfig{BraveAPIKey: cfg.Providers.Brave.APIKey}

	for _, name := range names {
		aj, err := dirs.ReadAgentJSON(name)
		if err != nil {
			slog.Warn("gateway: skipping agent, can't read agent.json", "agent", name, "error", err)
			continue
		}
		model := aj.Model
		if model == "" {
			model = cfg.Agents.Defaults.Model
		}
		permPreset := aj.Permissions
		if permPreset == "" {
			permPreset = cfg.Agents.Defaults.Permissions
		}

		var (
			mediator *askmediator.Mediator
			sender   agent.Sender
		)
		if channel != nil {
			mediator = askmediator.New(channel.PrompterFor(name), db, askmediator.DefaultTimeout)
			sender = channel
		} else {
			mediator = askmediator.New(nil, db, askmediator.DefaultTimeout)
		}

		rt, err := agent.BuildRuntime(name, dirs, sup, host, toolProvider, model, permPreset,
			ctxMgr, mediator, db, sender, classifier, webCfg, mcpTools)
		if err != nil {
			slog.Warn("gateway: skipping agent, build failed", "agent", name, "error", err)
			continue
		}
		rt.SetUserID(aj.ChannelID)
	}
	slog.Info("gateway: agents loaded", "count", len(names))

	ctrl := controlplane.NewServer(sup, host, ctxMgr)
	go func() {
		if err := ctrl.Serve(ctx, controlplane.SocketPath(config.Home())); err != nil {
			slog.Error("controlplane: serve failed", "error", err)
		}
	}()

	heartbeat := cron.NewHeartbeat(buildCronJobs(cfg, sup, dirs))
	go heartbeat.Run(ctx)

	if channel != nil {
		if err := channel.Start(ctx); err != nil {
			return fmt.Errorf("discord start: %w", err)
		}
		defer channel.Stop(context.Background())
	}

	slog.Info("gateway: running")
	<-ctx.Done()
	slog.Info("gateway: shutting down")
	return nil
}

func buildProvider(cfg *config.Config) (providers.Provider, error) {
	switch cfg.Agents.Defaults.Provider {
	case "openai":
		if cfg.Providers.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("provider \"openai\" selected but OPENAI_API_KEY is unset")
		}
		return providers.NewOpenAIProvider("openai", cfg.Providers.OpenAI.APIKey, cfg.Providers.OpenAI.APIBase, cfg.Agents.Defaults.Model), nil
	case "anthropic", "":
		if cfg.Providers.Anthropic.APIKey == "" {
			return nil, fmt.Errorf("provider \"anthropic\" selected but ANTHROPIC_API_KEY is unset")
		}
		opts := []providers.AnthropicOption{providers.WithAnthropicModel(cfg.Agents.Defaults.Model)}
		if cfg.Providers.Anthropic.APIBase != "" {
			opts = append(opts, providers.WithAnthropicBaseURL(cfg.Providers.Anthropic.APIBase))
		}
		return providers.NewAnthropicProvider(cfg.Providers.Anthropic.APIKey, opts...), nil
	default:
		return nil, fmt.Errorf("unknown default provider %q", cfg.Agents.Defaults.Provider)
	}
}

// connectMCPServers dials every enabled config.MCPServerConfig and
// flattens their tools into one slice shared by every agent's
// registry. A single server failing to connect is logged and skipped
// rather than aborting gateway startup.
func connectMCPServers(ctx context.Context, cfg *config.Config) ([]tools.Tool, func(), error) {
	var (
		bridges []*mcp.Bridge
		out     []tools.Tool
	)
	closeAll := func() {
		for _, b := range bridges {
			b.Close()
		}
	}
	for name, serverCfg := range cfg.MCPServers {
		if !serverCfg.IsEnabled() {
			continue
		}
		bridge, err := mcp.Connect(ctx, name, serverCfg)
		if err != nil {
			slog.Warn("mcp: skipping server", "server", name, "error", err)
			continue
		}
		bridges = append(bridges, bridge)
		ts, err := bridge.Tools(ctx, serverCfg)
		if err != nil {
			slog.Warn("mcp: listing tools failed", "server", name, "error", err)
			continue
		}
		out = append(out, ts...)
	}
	return out, closeAll, nil
}

// aliveProcessPIDs checks every currently-tracked process for OS-level
// liveness (signal 0), so the reconcile job only marks genuinely dead
// processes LOST rather than every still-running one.
func aliveProcessPIDs(sup *supervisor.Supervisor) map[int]bool {
	alive := make(map[int]bool)
	for _, p := range sup.ListProcesses("") {
		proc, err := os.FindProcess(p.PID)
		if err != nil {
			continue
		}
		if proc.Signal(syscall.Signal(0)) == nil {
			alive[p.PID] = true
		}
	}
	return alive
}

func buildCronJobs(cfg *config.Config, sup *supervisor.Supervisor, dirs *workspace.Directory) []cron.Job {
	return []cron.Job{
		{
			Name:     "reconcile-lost-processes",
			Schedule: cfg.Cron.ReconcileSchedule,
			Run: func(ctx context.Context) error {
				sup.ReconcileLost(aliveProcessPIDs(sup))
				return nil
			},
		},
		{
			Name:     "trash-gc",
			Schedule: cfg.Cron.TrashGCSchedule,
			Run: func(ctx context.Context) error {
				return dirs.GCTrash(cfg.Cron.TrashRetentionDays)
			},
		},
	}
}
