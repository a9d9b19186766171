//go:build unix

package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/chorus-run/chorus/internal/errs"
)

// resolveInWorkspace resolves rel against root, following symlinks before
// the containment check (never after), and rejects anything that
// escapes root, including a broken symlink whose target lies outside,
// a hardlink, or a path beneath a symlinked (and therefore swappable)
// parent directory.
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
	if info, err := os.Lstat(resolved); err == nil && info.Mode()&os.ModeSymlink != 0 {
		// A symlink left after resolution is broken; check where it points.
		target, err := os.Readlink(resolved)
		if err != nil {
			return "", err
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(resolved), target)
		}
		if !isPathInside(target, rootReal) {
			return "", fmt.Errorf("%q: %w", rel, errs.ErrPathTraversal)
		}
	}
	if hasMutableSymlinkParent(cleaned, rootReal) {
		return "", fmt.Errorf("%q: %w", rel, errs.ErrPathTraversal)
	}
	if err := checkHardlink(resolved); err != nil {
		return "", err
	}
	return resolved, nil
}

// resolveThroughExistingAncestors follows symlinks for the longest
// existing prefix of path, then appends the remaining (not-yet-created)
// components unresolved — this lets create_file target a path that
// doesn't exist yet while still catching a symlinked ancestor directory
// that would otherwise smuggle the write outside the jail.
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
	return strings.HasPrefix(child, parent+string(filepath.Separator))
}

// hasMutableSymlinkParent reports whether any directory between path and
// root (exclusive) is itself a symlink with a writable parent — a TOCTOU
// vector where the ancestor could be swapped after the jail check.
func hasMutableSymlinkParent(path, root string) bool {
	dir := filepath.Dir(path)
	for dir != root && dir != string(filepath.Separator) && dir != "." {
		info, err := os.Lstat(dir)
		if err == nil && info.Mode()&os.ModeSymlink != 0 {
			parentDir := filepath.Dir(dir)
			if syscall.Access(parentDir, 0x2) == nil {
				return true
			}
		}
		next := filepath.Dir(dir)
		if next == dir {
			break
		}
		dir = next
	}
	return false
}

// checkHardlink rejects writing through a path with more than one hard
// link, which would silently mutate a file outside the jail.
func checkHardlink(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return nil // doesn't exist yet; nothing to protect
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		if stat.Nlink > 1 {
			return fmt.Errorf("%q: %w", path, errs.ErrPathTraversal)
		}
	}
	return nil
}
