package contextmgr

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/chorus-run/chorus/internal/store/sqlite"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	ctx := context.Background()
	s, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "chorus.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	home := t.TempDir()
	mgr := New(s, func(agentName string) string { return filepath.Join(home, agentName, "sessions") })
	return mgr, home
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManager(t)

	if err := mgr.PersistMessage(ctx, "a", "user", "hi"); err != nil {
		t.Fatal(err)
	}
	if err := mgr.PersistMessage(ctx, "a", "assistant", "hello"); err != nil {
		t.Fatal(err)
	}

	before, err := mgr.GetContext(ctx, "a")
	if err != nil || len(before) != 2 {
		t.Fatalf("GetContext before: %v, %+v", err, before)
	}

	meta, err := mgr.SaveSnapshot(ctx, "a", "")
	if err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if meta.MessageCount != 2 {
		t.Fatalf("MessageCount = %d, want 2", meta.MessageCount)
	}

	mgr.Clear("a")
	afterClear, err := mgr.GetContext(ctx, "a")
	if err != nil || len(afterClear) != 0 {
		t.Fatalf("expected empty context after clear, got %+v", afterClear)
	}

	restored, err := mgr.RestoreSnapshot(ctx, "a", meta.SessionID[:6])
	if err != nil {
		t.Fatalf("RestoreSnapshot: %v", err)
	}
	if len(restored) != 2 || restored[0].Content != "hi" || restored[1].Content != "hello" {
		t.Fatalf("restored messages mismatch: %+v", restored)
	}

	after, err := mgr.GetContext(ctx, "a")
	if err != nil || len(after) != 2 {
		t.Fatalf("GetContext after restore: %v, %+v", err, after)
	}
	if after[0].Content != before[0].Content || after[1].Content != before[1].Content {
		t.Fatalf("visible sequence changed: before=%+v after=%+v", before, after)
	}
}

func TestRestoreUnknownSession(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManager(t)
	if _, err := mgr.RestoreSnapshot(ctx, "a", "ffffff"); err == nil {
		t.Fatal("expected SessionNotFound")
	}
}
