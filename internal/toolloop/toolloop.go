// Package toolloop drives the bounded LLM<->tools iteration cycle (C11):
// call the model, execute any tool calls sequentially under permission
// gating, append results, and repeat until the model stops calling tools
// or the iteration cap is reached.
package toolloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chorus-run/chorus/internal/askmediator"
	"github.com/chorus-run/chorus/internal/errs"
	"github.com/chorus-run/chorus/internal/identifier"
	"github.com/chorus-run/chorus/internal/permissions"
	"github.com/chorus-run/chorus/internal/store"
	"github.com/chorus-run/chorus/internal/tools"
	"github.com/chorus-run/chorus/internal/tracing"
)

// Role values for Message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
	RoleSystem    = "system"
)

// ToolCall is one model-requested invocation.
type ToolCall struct {
	ID       string
	ToolName string
	Args     map[string]any
}

// Message is one entry in the branch's message list.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string // set on RoleTool messages, echoing the ToolCall.ID
}

// Usage accumulates token counts across iterations.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

func (u *Usage) add(o Usage) {
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
}

// Response is the LLM provider collaborator's contract result.
type Response struct {
	Content    string
	ToolCalls  []ToolCall
	StopReason string
	Usage      Usage
	Model      string
}

// Provider is the external LLM collaborator: chat(messages, tools,
// model) -> {content, tool_calls, stop_reason, usage, model}; async,
// cancellable.
type Provider interface {
	Chat(ctx context.Context, messages []Message, toolset []tools.Tool, model string) (Response, error)
}

const defaultMaxIterations = 25

// Config configures one Loop invocation.
type Config struct {
	AgentName     string
	ThreadID      int
	UserID        string
	Model         string
	Provider      Provider
	Registry      *tools.Registry
	Profile       *permissions.Profile
	MaxIterations int
	Mediator      *askmediator.Mediator
	AuditDB       store.Store
}

// Result is the outcome of Run.
type Result struct {
	Messages         []Message
	Usage            Usage
	BoundedExhausted bool
	FinalContent     string
}

// Run drives the iteration cycle starting from messages, returning once
// the model stops calling tools, the iteration cap is reached, or a
// propagating error (Cancelled, ProviderError) occurs.
func Run(ctx context.Context, cfg Config, messages []Message) (*Result, error) {
	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = defaultMaxIterations
	}

	history := append([]Message{}, messages...)
	var usage Usage

	for iter := 0; iter < maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("toolloop: %w", errs.ErrCancelled)
		}

		iterCtx, span := tracing.StartToolLoopIteration(ctx, cfg.AgentName, cfg.ThreadID)
		resp, err := cfg.Provider.Chat(iterCtx, history, cfg.Registry.List(), cfg.Model)
		span.End()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("toolloop: %w", errs.ErrCancelled)
			}
			return nil, fmt.Errorf("toolloop: %w: %v", errs.ErrProviderError, err)
		}
		usage.add(resp.Usage)

		assistantMsg := Message{Role: RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls}
		history = append(history, assistantMsg)

		if len(resp.ToolCalls) == 0 {
			return &Result{Messages: history, Usage: usage, FinalContent: resp.Content}, nil
		}

		// Tool calls run sequentially, in declared order, to preserve a
		// deterministic audit trail (not in parallel, even when there is
		// more than one call in this iteration).
		for _, call := range resp.ToolCalls {
			result, err := cfg.executeToolCall(ctx, call)
			if err != nil {
				if errors.Is(err, errs.ErrCancelled) || errors.Is(err, errs.ErrProviderError) {
					return nil, err
				}
				result = fmt.Sprintf("error: %v", err)
			}
			history = append(history, Message{Role: RoleTool, Content: result, ToolCallID: call.ID})
		}
	}

	return &Result{Messages: history, Usage: usage, BoundedExhausted: true}, nil
}

// executeToolCall builds the action string, consults the permission
// engine, and runs or refuses the tool. ALLOW and DENY decisions are
// audited here and ASK outcomes by the mediator; a call to an
// unregistered tool is refused without an audit entry.
func (cfg Config) executeToolCall(ctx context.Context, call ToolCall) (string, error) {
	tool, ok := cfg.Registry.Get(call.ToolName)
	if !ok {
		return fmt.Sprintf("error: unknown tool %q", call.ToolName), nil
	}

	action := identifier.FormatAction(call.ToolName, tool.Detail(call.Args))
	decision := permissions.Check(action, cfg.Profile)

	switch decision {
	case permissions.Allow:
		cfg.auditTool(ctx, action, "allow", "")
		return cfg.runTool(ctx, tool, call.Args)

	case permissions.Ask:
		if cfg.Mediator == nil {
			cfg.auditTool(ctx, action, "deny", "no ask mediator configured")
			return "refused: permission required but no approval channel is configured", nil
		}
		_, err := cfg.Mediator.Ask(ctx, cfg.AgentName, cfg.UserID, call.ToolName, action, call.Args)
		if err != nil {
			return "refused: permission denied", nil
		}
		return cfg.runTool(ctx, tool, call.Args)

	default: // Deny
		cfg.auditTool(ctx, action, "deny", "")
		return "refused: this action is not permitted", nil
	}
}

func (cfg Config) runTool(ctx context.Context, tool tools.Tool, args map[string]any) (string, error) {
	result, err := tool.Handle(ctx, args)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", fmt.Errorf("toolloop: %w", errs.ErrCancelled)
		}
		return fmt.Sprintf("error: %v", err), nil
	}
	return result, nil
}

func (cfg Config) auditTool(ctx context.Context, action, decision, detail string) {
	if cfg.AuditDB == nil {
		return
	}
	var detailPtr *string
	if detail != "" {
		detailPtr = &detail
	}
	var userPtr *string
	if cfg.UserID != "" {
		userPtr = &cfg.UserID
	}
	entry := store.AuditEntry{
		AgentName: cfg.AgentName, Timestamp: time.Now().UTC(),
		ActionString: action, Decision: decision, UserID: userPtr, Detail: detailPtr,
	}
	if err := cfg.AuditDB.AppendAudit(ctx, entry); err != nil {
		slog.Warn("failed to write tool audit entry", "component", "toolloop", "error", err)
	}
}
