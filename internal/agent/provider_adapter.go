package agent

import (
	"context"

	"github.com/chorus-run/chorus/internal/providers"
	"github.com/chorus-run/chorus/internal/tools"
	"github.com/chorus-run/chorus/internal/toolloop"
)

// ProviderAdapter satisfies toolloop.Provider by translating to and from
// a providers.Provider's ChatRequest/ChatResponse shape, so the existing
// Anthropic/OpenAI clients can drive the tool loop unchanged.
type ProviderAdapter struct {
	inner providers.Provider
}

// NewProviderAdapter wraps inner for use as a toolloop.Provider.
func NewProviderAdapter(inner providers.Provider) *ProviderAdapter {
	return &ProviderAdapter{inner: inner}
}

func (a *ProviderAdapter) Chat(ctx context.Context, messages []toolloop.Message, toolset []tools.Tool, model string) (toolloop.Response, error) {
	if model == "" {
		model = a.inner.DefaultModel()
	}
	resp, err := a.inner.Chat(ctx, providers.ChatRequest{
		Messages: toProviderMessages(messages),
		Tools:    toProviderTools(toolset),
		Model:    model,
	})
	if err != nil {
		return toolloop.Response{}, err
	}

	out := toolloop.Response{
		Content:    resp.Content,
		StopReason: resp.FinishReason,
		Model:      model,
	}
	if resp.Usage != nil {
		out.Usage = toolloop.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}
	for _, tc := range resp.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, toolloop.ToolCall{
			ID: tc.ID, ToolName: tc.Name, Args: tc.Arguments,
		})
	}
	return out, nil
}

func toProviderMessages(messages []toolloop.Message) []providers.Message {
	out := make([]providers.Message, 0, len(messages))
	for _, m := range messages {
		pm := providers.Message{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			pm.ToolCalls = append(pm.ToolCalls, providers.ToolCall{ID: tc.ID, Name: tc.ToolName, Arguments: tc.Args})
		}
		out = append(out, pm)
	}
	return out
}

func toProviderTools(toolset []tools.Tool) []providers.ToolDefinition {
	out := make([]providers.ToolDefinition, 0, len(toolset))
	for _, t := range toolset {
		out = append(out, providers.ToolDefinition{
			Type: "function",
			Function: providers.ToolFunctionSchema{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.ParametersSchema(),
			},
		})
	}
	return out
}
