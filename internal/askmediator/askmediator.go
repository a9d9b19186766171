// Package askmediator externalizes an ASK permission decision to a human,
// with a bounded wait and fail-closed semantics: any timeout or UI
// failure resolves to Deny.
package askmediator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/chorus-run/chorus/internal/errs"
	"github.com/chorus-run/chorus/internal/store"
)

// Decision is the human's resolved choice.
type Decision int

const (
	Denied Decision = iota
	Allowed
)

// Prompter publishes a two-choice (Allow/Deny) widget restricted to the
// requesting user and returns their decision, or an error/context
// cancellation on timeout. Implemented by the bound chat channel.
type Prompter interface {
	Prompt(ctx context.Context, userID, toolName, actionString string, rawArgs map[string]any) (Decision, error)
}

// DefaultTimeout is the spec's 120s permission-ask bound.
const DefaultTimeout = 120 * time.Second

// Mediator sits between the tool loop and the user.
type Mediator struct {
	prompter Prompter
	db       store.Store
	timeout  time.Duration
}

// New constructs a Mediator. A nil db skips audit logging (used by
// tests); a timeout <= 0 uses DefaultTimeout.
func New(prompter Prompter, db store.Store, timeout time.Duration) *Mediator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Mediator{prompter: prompter, db: db, timeout: timeout}
}

// Ask requests a decision for an ASK action. Any prompter error,
// cancellation, or timeout becomes Denied. The resolved decision is
// always recorded in the audit log with the user id, timestamp, and
// action string — including fail-closed denials, which record the
// prompter error (or timeout) as the entry's detail; an explicit user
// denial is recorded with no detail.
func (m *Mediator) Ask(ctx context.Context, agentName, userID, toolName, actionString string, rawArgs map[string]any) (Decision, error) {
	askCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	decision, err := m.safePrompt(askCtx, userID, toolName, actionString, rawArgs)
	detail := ""
	if err != nil {
		decision = Denied
		detail = err.Error()
		slog.Warn("permission ask failed, fail-closed to deny", "component", "askmediator", "action", actionString, "error", err)
	}

	m.audit(ctx, agentName, userID, actionString, decision, detail)

	if decision == Denied {
		return Denied, errs.ErrPermissionDenied
	}
	return Allowed, nil
}

func (m *Mediator) safePrompt(ctx context.Context, userID, toolName, actionString string, rawArgs map[string]any) (decision Decision, err error) {
	if m.prompter == nil {
		return Denied, errors.New("no prompter configured")
	}
	defer func() {
		if r := recover(); r != nil {
			decision, err = Denied, errors.New("prompter panicked")
		}
	}()
	decision, err = m.prompter.Prompt(ctx, userID, toolName, actionString, rawArgs)
	if err != nil {
		return Denied, err
	}
	if ctx.Err() != nil {
		return Denied, ctx.Err()
	}
	return decision, nil
}

func (m *Mediator) audit(ctx context.Context, agentName, userID, actionString string, decision Decision, detail string) {
	if m.db == nil {
		return
	}
	decisionStr := "deny"
	if decision == Allowed {
		decisionStr = "allow"
	}
	var detailPtr *string
	if detail != "" {
		detailPtr = &detail
	}
	var userPtr *string
	if userID != "" {
		userPtr = &userID
	}
	entry := store.AuditEntry{
		AgentName: agentName, Timestamp: time.Now().UTC(),
		ActionString: actionString, Decision: decisionStr, UserID: userPtr, Detail: detailPtr,
	}
	if err := m.db.AppendAudit(ctx, entry); err != nil {
		slog.Warn("failed to write audit entry", "component", "askmediator", "error", err)
	}
}
