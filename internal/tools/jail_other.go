//go:build !unix

package tools

import (
	"fmt"
	"path/filepath"

	"github.com/chorus-run/chorus/internal/errs"
)

// resolveInWorkspace on non-Unix platforms skips the hardlink and
// mutable-symlink-parent checks (no syscall.Stat_t / no syscall.Access),
// but still follows symlinks before the containment check.
func resolveInWorkspace(root, rel string) (string, error) {
	rootReal, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", fmt.Errorf("tools: resolve workspace root: %w", err)
	}
	cleaned := filepath.Clean(filepath.Join(rootReal, rel))
	if !isPathInside(cleaned, rootReal) {
		return "", fmt.Errorf("%q: %w", rel, errs.ErrPathTraversal)
	}
	resolved, err := resolveThroughExistingAncestors(cleaned)
	if err != nil {
		return "", err
	}
	if !isPathInside(resolved, rootReal) {
		return "", fmt.Errorf("%q: %w", rel, errs.ErrPathTraversal)
	}
	return resolved, nil
}

func resolveThroughExistingAncestors(path string) (string, error) {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved, nil
	}
	parent := filepath.Dir(path)
	if parent == path {
		return path, nil
	}
	resolvedParent, err := resolveThroughExistingAncestors(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(path)), nil
}

func isPathInside(child, parent string) bool {
	child = filepath.Clean(child)
	parent = filepath.Clean(parent)
	if child == parent {
		return true
	}
	return len(child) > len(parent) && child[:len(parent)+1] == parent+string(filepath.Separator)
}
