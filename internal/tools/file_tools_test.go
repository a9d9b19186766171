package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/chorus-run/chorus/internal/errs"
)

func TestStrReplaceScenarios(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	tool := NewStrReplaceTool(root)

	path := filepath.Join(root, "file.txt")
	if err := os.WriteFile(path, []byte("a b a"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := tool.Handle(ctx, map[string]any{"path": "file.txt", "old_str": "a", "new_str": "X"})
	if !errors.Is(err, errs.ErrAmbiguousMatch) {
		t.Fatalf("expected AmbiguousMatch, got %v", err)
	}

	if err := os.WriteFile(path, []byte("a b"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err = tool.Handle(ctx, map[string]any{"path": "file.txt", "old_str": "z", "new_str": "X"})
	if !errors.Is(err, errs.ErrStringNotFound) {
		t.Fatalf("expected StringNotFound, got %v", err)
	}

	_, err = tool.Handle(ctx, map[string]any{"path": "file.txt", "old_str": "a", "new_str": "A"})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "A b" {
		t.Fatalf("file content = %q, want %q (err %v)", data, "A b", err)
	}
	info, _ := os.Stat(path)
	if info.Mode().Perm() != 0o644 {
		t.Errorf("mode changed: %v", info.Mode().Perm())
	}
}

func TestViewBinaryDetection(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "bin")
	if err := os.WriteFile(path, []byte{0x00, 0x01, 0x02}, 0o644); err != nil {
		t.Fatal(err)
	}
	tool := NewViewTool(root)
	_, err := tool.Handle(context.Background(), map[string]any{"path": "bin"})
	if !errors.Is(err, errs.ErrBinaryFile) {
		t.Fatalf("expected BinaryFile, got %v", err)
	}
}

func TestViewDirectoryListing(t *testing.T) {
	root := t.TempDir()
	os.MkdirAll(filepath.Join(root, "sub"), 0o755)
	os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0o644)
	tool := NewViewTool(root)
	out, err := tool.Handle(context.Background(), map[string]any{"path": "."})
	if err != nil {
		t.Fatal(err)
	}
	if out != "a.txt\nsub/" {
		t.Fatalf("got %q", out)
	}
}

func TestWorkspaceJailEscapeRejected(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	if err := os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("s"), 0o644); err != nil {
		t.Fatal(err)
	}
	tool := NewViewTool(root)
	_, err := tool.Handle(context.Background(), map[string]any{"path": "../" + filepath.Base(outside) + "/secret.txt"})
	if !errors.Is(err, errs.ErrPathTraversal) {
		t.Fatalf("expected PathTraversal, got %v", err)
	}
}

func TestWorkspaceJailSymlinkEscapeRejected(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	target := filepath.Join(outside, "secret.txt")
	if err := os.WriteFile(target, []byte("s"), 0o644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(root, "escape")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	tool := NewViewTool(root)
	_, err := tool.Handle(context.Background(), map[string]any{"path": "escape"})
	if !errors.Is(err, errs.ErrPathTraversal) {
		t.Fatalf("expected PathTraversal for symlink escape, got %v", err)
	}
}

func TestCreateFileAtomicOverwrite(t *testing.T) {
	root := t.TempDir()
	tool := NewCreateFileTool(root)
	ctx := context.Background()
	if _, err := tool.Handle(ctx, map[string]any{"path": "new.txt", "content": "v1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := tool.Handle(ctx, map[string]any{"path": "new.txt", "content": "v2"}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(root, "new.txt"))
	if err != nil || string(data) != "v2" {
		t.Fatalf("content = %q, err %v", data, err)
	}
}
