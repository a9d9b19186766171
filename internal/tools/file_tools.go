package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/chorus-run/chorus/internal/errs"
)

// fileTool holds an agent's jail root. Tools are constructed
// per-agent with a fixed root rather than discovering it per call.
type fileTool struct {
	root string
	name string
}

func argString(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func argInt(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// ViewTool reads a file (with optional offset/limit windowing, 1-based
// line numbering) or lists a directory.
type ViewTool struct{ fileTool }

func NewViewTool(root string) *ViewTool { return &ViewTool{fileTool{root: root, name: "view"}} }

func (t *ViewTool) Name() string               { return "file:view" }
func (t *ViewTool) Description() string        { return "View a file's contents or list a directory." }
func (t *ViewTool) ParametersSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":   map[string]any{"type": "string"},
			"offset": map[string]any{"type": "integer"},
			"limit":  map[string]any{"type": "integer"},
		},
		"required": []string{"path"},
	}
}
func (t *ViewTool) Detail(args map[string]any) string {
	return fmt.Sprintf("view:%s", argString(args, "path"))
}

func (t *ViewTool) Handle(ctx context.Context, args map[string]any) (string, error) {
	path := argString(args, "path")
	resolved, err := resolveInWorkspace(t.root, path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("%q: %w", path, errs.ErrFileNotFoundInWorkspace)
	}
	if info.IsDir() {
		return viewDirectory(resolved)
	}
	return viewFile(resolved, argInt(args, "offset", 0), argInt(args, "limit", 0))
}

func viewDirectory(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, "\n"), nil
}

func viewFile(path string, offset, limit int) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%q: %w", path, errs.ErrFileNotFoundInWorkspace)
	}
	if isBinary(data) {
		return "", fmt.Errorf("%q: %w", path, errs.ErrBinaryFile)
	}
	lines := strings.Split(string(data), "\n")
	start := offset
	if start < 0 {
		start = 0
	}
	if start > len(lines) {
		start = len(lines)
	}
	end := len(lines)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	var b strings.Builder
	for i := start; i < end; i++ {
		fmt.Fprintf(&b, "%d\t%s\n", i+1, lines[i])
	}
	return b.String(), nil
}

func isBinary(data []byte) bool {
	check := data
	if len(check) > 8192 {
		check = check[:8192]
	}
	return bytes.IndexByte(check, 0) != -1
}

// CreateFileTool writes a file's full contents, overwriting atomically.
type CreateFileTool struct{ fileTool }

func NewCreateFileTool(root string) *CreateFileTool {
	return &CreateFileTool{fileTool{root: root, name: "create_file"}}
}

func (t *CreateFileTool) Name() string        { return "file:create" }
func (t *CreateFileTool) Description() string { return "Create or overwrite a file with given content." }
func (t *CreateFileTool) ParametersSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    map[string]any{"type": "string"},
			"content": map[string]any{"type": "string"},
		},
		"required": []string{"path", "content"},
	}
}
func (t *CreateFileTool) Detail(args map[string]any) string {
	return fmt.Sprintf("create:%s", argString(args, "path"))
}

func (t *CreateFileTool) Handle(ctx context.Context, args map[string]any) (string, error) {
	path := argString(args, "path")
	content := argString(args, "content")
	resolved, err := resolveInWorkspace(t.root, path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return "", err
	}
	if err := atomicWrite(resolved, []byte(content)); err != nil {
		return "", err
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
}

func atomicWrite(path string, data []byte) error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// StrReplaceTool replaces exactly one occurrence of a string in a file.
type StrReplaceTool struct{ fileTool }

func NewStrReplaceTool(root string) *StrReplaceTool {
	return &StrReplaceTool{fileTool{root: root, name: "str_replace"}}
}

func (t *StrReplaceTool) Name() string        { return "file:str_replace" }
func (t *StrReplaceTool) Description() string { return "Replace exactly one occurrence of a string in a file." }
func (t *StrReplaceTool) ParametersSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    map[string]any{"type": "string"},
			"old_str": map[string]any{"type": "string"},
			"new_str": map[string]any{"type": "string"},
		},
		"required": []string{"path", "old_str", "new_str"},
	}
}
func (t *StrReplaceTool) Detail(args map[string]any) string {
	return fmt.Sprintf("str_replace:%s", argString(args, "path"))
}

func (t *StrReplaceTool) Handle(ctx context.Context, args map[string]any) (string, error) {
	path := argString(args, "path")
	oldStr := argString(args, "old_str")
	newStr := argString(args, "new_str")

	resolved, err := resolveInWorkspace(t.root, path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("%q: %w", path, errs.ErrFileNotFoundInWorkspace)
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", err
	}
	content := string(data)
	count := strings.Count(content, oldStr)
	switch {
	case count == 0:
		return "", fmt.Errorf("%q not found in %s: %w", oldStr, path, errs.ErrStringNotFound)
	case count > 1:
		return "", fmt.Errorf("%q occurs %d times in %s: %w", oldStr, count, path, errs.ErrAmbiguousMatch)
	}
	updated := strings.Replace(content, oldStr, newStr, 1)
	if err := os.WriteFile(resolved, []byte(updated), info.Mode().Perm()); err != nil {
		return "", err
	}
	return fmt.Sprintf("replaced 1 occurrence in %s", path), nil
}
