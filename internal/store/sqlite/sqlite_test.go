package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/chorus-run/chorus/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chorus.db")
	s, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAgentRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	err := s.RegisterAgent(ctx, store.Agent{
		Name: "my-cool-agent", ChannelID: "c1", GuildID: "g1",
		Permissions: "standard", CreatedAt: time.Now(), Status: "active",
	})
	if err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}

	got, err := s.GetAgent(ctx, "my-cool-agent")
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if got == nil || got.ChannelID != "c1" {
		t.Fatalf("GetAgent returned %+v", got)
	}

	list, err := s.ListAgents(ctx, "")
	if err != nil || len(list) != 1 {
		t.Fatalf("ListAgents: %v, %+v", err, list)
	}

	if err := s.RemoveAgent(ctx, "my-cool-agent"); err != nil {
		t.Fatalf("RemoveAgent: %v", err)
	}
	got, err = s.GetAgent(ctx, "my-cool-agent")
	if err != nil || got != nil {
		t.Fatalf("expected agent removed, got %+v, err %v", got, err)
	}
}

func TestMessagesOrdering(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	base := time.Now().UTC()
	for i, role := range []string{"user", "assistant"} {
		err := s.AppendMessage(ctx, store.Message{
			AgentName: "a", Role: role, Content: "hi", Timestamp: base.Add(time.Duration(i) * time.Millisecond),
		})
		if err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	msgs, err := s.GetMessages(ctx, "a", base.Add(-time.Second))
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Fatalf("got %+v", msgs)
	}
}

func TestSessionPrefixLookup(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.SaveSession(ctx, store.Session{ID: "abc123", AgentName: "a", SavedAt: time.Now(), FilePath: "x"}); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetSession(ctx, "abc1")
	if err != nil || got == nil || got.ID != "abc123" {
		t.Fatalf("GetSession prefix lookup failed: %v, %+v", err, got)
	}

	if err := s.SaveSession(ctx, store.Session{ID: "abcxyz", AgentName: "a", SavedAt: time.Now(), FilePath: "y"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetSession(ctx, "abc"); err == nil {
		t.Error("expected ambiguous-match error for shared prefix")
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if _, ok, err := s.GetSetting(ctx, "g1", "k"); err != nil || ok {
		t.Fatalf("expected missing setting, got ok=%v err=%v", ok, err)
	}
	if err := s.SetSetting(ctx, "g1", "k", "v1"); err != nil {
		t.Fatal(err)
	}
	v, ok, err := s.GetSetting(ctx, "g1", "k")
	if err != nil || !ok || v != "v1" {
		t.Fatalf("GetSetting: %v, %v, %v", v, ok, err)
	}
	if err := s.SetSetting(ctx, "g1", "k", "v2"); err != nil {
		t.Fatal(err)
	}
	v, _, _ = s.GetSetting(ctx, "g1", "k")
	if v != "v2" {
		t.Fatalf("expected updated value v2, got %q", v)
	}
}
