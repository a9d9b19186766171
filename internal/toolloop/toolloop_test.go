package toolloop

import (
	"context"
	"errors"
	"testing"

	"github.com/chorus-run/chorus/internal/errs"
	"github.com/chorus-run/chorus/internal/permissions"
	"github.com/chorus-run/chorus/internal/tools"
)

// echoTool is a trivial tool whose Detail/Handle round-trip its "arg" value.
type echoTool struct{ name string }

func (e echoTool) Name() string                            { return e.name }
func (e echoTool) Description() string                     { return "echo" }
func (e echoTool) ParametersSchema() map[string]any        { return map[string]any{} }
func (e echoTool) Detail(args map[string]any) string       { return asString(args["arg"]) }
func (e echoTool) Handle(_ context.Context, args map[string]any) (string, error) {
	return "ran:" + asString(args["arg"]), nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// scriptedProvider replays a fixed sequence of Responses, one per call.
type scriptedProvider struct {
	responses []Response
	calls     int
}

func (p *scriptedProvider) Chat(_ context.Context, _ []Message, _ []tools.Tool, _ string) (Response, error) {
	if p.calls >= len(p.responses) {
		return Response{}, errors.New("scriptedProvider: out of responses")
	}
	r := p.responses[p.calls]
	p.calls++
	return r, nil
}

func allowProfile(t *testing.T) *permissions.Profile {
	t.Helper()
	p, err := permissions.NewProfile("open", []string{".*"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func lockedProfile(t *testing.T) *permissions.Profile {
	t.Helper()
	p, err := permissions.NewProfile("locked", []string{`tool:file:view.*`}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestRunStopsWhenNoToolCalls(t *testing.T) {
	registry := tools.NewRegistry()
	provider := &scriptedProvider{responses: []Response{
		{Content: "done, no tools needed"},
	}}
	cfg := Config{AgentName: "a", Model: "test-model", Provider: provider, Registry: registry, Profile: allowProfile(t)}

	result, err := Run(context.Background(), cfg, []Message{{Role: RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.FinalContent != "done, no tools needed" {
		t.Fatalf("got %q", result.FinalContent)
	}
	if result.BoundedExhausted {
		t.Fatal("should not be bounded-exhausted")
	}
	if len(result.Messages) != 2 {
		t.Fatalf("want 2 messages (user+assistant), got %d", len(result.Messages))
	}
}

func TestRunExecutesAllowedToolSequentially(t *testing.T) {
	registry := tools.NewRegistry()
	registry.Register(echoTool{name: "tool:echo"})
	provider := &scriptedProvider{responses: []Response{
		{ToolCalls: []ToolCall{
			{ID: "c1", ToolName: "tool:echo", Args: map[string]any{"arg": "first"}},
			{ID: "c2", ToolName: "tool:echo", Args: map[string]any{"arg": "second"}},
		}},
		{Content: "all done"},
	}}
	cfg := Config{AgentName: "a", Model: "m", Provider: provider, Registry: registry, Profile: allowProfile(t)}

	result, err := Run(context.Background(), cfg, []Message{{Role: RoleUser, Content: "go"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// user, assistant(tool_calls), tool(c1), tool(c2), assistant(final)
	if len(result.Messages) != 5 {
		t.Fatalf("want 5 messages, got %d: %+v", len(result.Messages), result.Messages)
	}
	if result.Messages[2].Content != "ran:first" || result.Messages[2].ToolCallID != "c1" {
		t.Fatalf("first tool result wrong: %+v", result.Messages[2])
	}
	if result.Messages[3].Content != "ran:second" || result.Messages[3].ToolCallID != "c2" {
		t.Fatalf("second tool result wrong: %+v", result.Messages[3])
	}
}

func TestRunDeniedToolProducesRefusalMessage(t *testing.T) {
	registry := tools.NewRegistry()
	registry.Register(echoTool{name: "tool:bash"})
	provider := &scriptedProvider{responses: []Response{
		{ToolCalls: []ToolCall{{ID: "c1", ToolName: "tool:bash", Args: map[string]any{"arg": "rm -rf /"}}}},
		{Content: "ok, refused"},
	}}
	cfg := Config{AgentName: "a", Model: "m", Provider: provider, Registry: registry, Profile: lockedProfile(t)}

	result, err := Run(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	toolMsg := result.Messages[1]
	if toolMsg.Role != RoleTool || toolMsg.Content != "refused: this action is not permitted" {
		t.Fatalf("expected a deny refusal message, got %+v", toolMsg)
	}
}

func TestRunBoundedExhaustion(t *testing.T) {
	registry := tools.NewRegistry()
	registry.Register(echoTool{name: "tool:echo"})
	responses := make([]Response, 0, 3)
	for i := 0; i < 3; i++ {
		responses = append(responses, Response{ToolCalls: []ToolCall{
			{ID: "c", ToolName: "tool:echo", Args: map[string]any{"arg": "x"}},
		}})
	}
	provider := &scriptedProvider{responses: responses}
	cfg := Config{AgentName: "a", Model: "m", Provider: provider, Registry: registry, Profile: allowProfile(t), MaxIterations: 3}

	result, err := Run(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.BoundedExhausted {
		t.Fatal("expected bounded-exhausted result")
	}
}

func TestRunProviderErrorPropagates(t *testing.T) {
	registry := tools.NewRegistry()
	failing := &failingProvider{}
	cfg := Config{AgentName: "a", Model: "m", Provider: failing, Registry: registry, Profile: allowProfile(t)}

	_, err := Run(context.Background(), cfg, nil)
	if !errors.Is(err, errs.ErrProviderError) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
}

type failingProvider struct{}

func (failingProvider) Chat(_ context.Context, _ []Message, _ []tools.Tool, _ string) (Response, error) {
	return Response{}, errors.New("upstream exploded")
}

func TestRunAlreadyCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	registry := tools.NewRegistry()
	cfg := Config{AgentName: "a", Model: "m", Provider: &scriptedProvider{}, Registry: registry, Profile: allowProfile(t)}

	_, err := Run(ctx, cfg, nil)
	if !errors.Is(err, errs.ErrCancelled) {
		t.Fatalf("expected Cancelled, got %v", err)
	}
}
