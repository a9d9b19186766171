package askmediator

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakePrompter struct {
	decision Decision
	err      error
	delay    time.Duration
}

func (f *fakePrompter) Prompt(ctx context.Context, userID, toolName, actionString string, rawArgs map[string]any) (Decision, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return Denied, ctx.Err()
		}
	}
	return f.decision, f.err
}

func TestAskAllowed(t *testing.T) {
	m := New(&fakePrompter{decision: Allowed}, nil, time.Second)
	d, err := m.Ask(context.Background(), "a", "u1", "bash", "tool:bash:ls", nil)
	if err != nil || d != Allowed {
		t.Fatalf("got %v, %v", d, err)
	}
}

func TestAskTimeoutFailsClosed(t *testing.T) {
	m := New(&fakePrompter{decision: Allowed, delay: 200 * time.Millisecond}, nil, 50*time.Millisecond)
	d, err := m.Ask(context.Background(), "a", "u1", "bash", "tool:bash:ls", nil)
	if err == nil || d != Denied {
		t.Fatalf("expected fail-closed deny, got %v, %v", d, err)
	}
}

func TestAskPrompterErrorFailsClosed(t *testing.T) {
	m := New(&fakePrompter{err: errors.New("ui crashed")}, nil, time.Second)
	d, err := m.Ask(context.Background(), "a", "u1", "bash", "tool:bash:ls", nil)
	if err == nil || d != Denied {
		t.Fatalf("expected fail-closed deny, got %v, %v", d, err)
	}
}

func TestAskNoPrompterConfiguredFailsClosed(t *testing.T) {
	m := New(nil, nil, time.Second)
	d, err := m.Ask(context.Background(), "a", "u1", "bash", "tool:bash:ls", nil)
	if err == nil || d != Denied {
		t.Fatalf("expected fail-closed deny, got %v, %v", d, err)
	}
}
