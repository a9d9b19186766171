package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chorus-run/chorus/internal/errs"
)

func TestCreateAndDestroy(t *testing.T) {
	home := t.TempDir()
	tmpl := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpl, "docs_placeholder"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	d := New(home, tmpl)

	path, err := d.Create("my-cool-agent", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, sub := range []string{"sessions", "workspace", "agent.json", "docs_placeholder"} {
		if _, err := os.Stat(filepath.Join(path, sub)); err != nil {
			t.Errorf("expected %s to exist: %v", sub, err)
		}
	}

	if _, err := d.Create("my-cool-agent", nil); err == nil {
		t.Error("expected AgentExists on duplicate create")
	}

	aj, err := d.ReadAgentJSON("my-cool-agent")
	if err != nil || aj.Name != "my-cool-agent" {
		t.Fatalf("ReadAgentJSON: %v, %+v", err, aj)
	}

	if err := d.Destroy("my-cool-agent", false); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if _, ok := d.Get("my-cool-agent"); ok {
		t.Error("expected agent directory gone after destroy")
	}
}

func TestDestroyKeepsFilesInTrash(t *testing.T) {
	home := t.TempDir()
	d := New(home, "")
	if _, err := d.Create("keep-me", nil); err != nil {
		t.Fatal(err)
	}
	if err := d.Destroy("keep-me", true); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(filepath.Join(home, ".trash"))
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one trashed entry, got %v, err %v", entries, err)
	}
}

func TestDestroyUnknownAgent(t *testing.T) {
	d := New(t.TempDir(), "")
	err := d.Destroy("ghost-agent", false)
	if err == nil {
		t.Fatal("expected AgentNotFound")
	}
	if got := errs.Kind(err); got != "AgentNotFound" {
		t.Errorf("Kind = %q, want AgentNotFound", got)
	}
}

func TestInvalidName(t *testing.T) {
	d := New(t.TempDir(), "")
	if _, err := d.Create("Bad-Name", nil); err == nil {
		t.Fatal("expected InvalidAgentName")
	}
}
