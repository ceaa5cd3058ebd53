package policy

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const maxSymlinkHops = 40

// Gate decides whether a path may be accessed with a given intent. The
// sandbox root is fixed at construction and the gate holds no other state,
// so one Gate can be shared by any number of goroutines.
type Gate struct {
	root string
}

// NewGate creates the sandbox root if needed and resolves it, so a root that
// is itself reached through a symlink (e.g. /tmp on macOS) compares correctly.
func NewGate(root string) (*Gate, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("sandbox root is required")
	}
	if !filepath.IsAbs(root) {
		return nil, fmt.Errorf("sandbox root must be an absolute path, got %q", root)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create sandbox root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(filepath.Clean(root))
	if err != nil {
		return nil, fmt.Errorf("resolve sandbox root: %w", err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("stat sandbox root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("sandbox root %q is not a directory", resolved)
	}
	return &Gate{root: resolved}, nil
}

// Root returns the resolved sandbox root.
func (g *Gate) Root() string {
	return g.root
}

// Resolve returns the absolute, symlink-resolved form of path. Relative paths
// are taken relative to the sandbox root. Components that do not exist yet are
// appended to the resolved form of their deepest existing ancestor.
func (g *Gate) Resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.ContainsRune(path, 0) {
		return "", fmt.Errorf("path contains a NUL byte")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(g.root, path)
	}
	return resolvePath(filepath.Clean(path), 0)
}

// Check evaluates path against the containment and existence rules.
func (g *Gate) Check(path string, intent Intent) Decision {
	if !intent.Valid() {
		return deny(RuleUnknownIntent, "", fmt.Sprintf("unknown intent %q", intent))
	}

	resolved, err := g.Resolve(path)
	if err != nil {
		return deny(RuleInvalidPath, "", fmt.Sprintf("cannot resolve %q: %v", path, err))
	}
	if !within(g.root, resolved) {
		return deny(RuleContainment, resolved, fmt.Sprintf("%q resolves outside sandbox %q", path, g.root))
	}

	switch intent {
	case IntentWriteNew:
		_, err := os.Lstat(resolved)
		if err == nil {
			return deny(RuleExistence, resolved, fmt.Sprintf("%q already exists and may not be overwritten", resolved))
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return deny(RuleExistence, resolved, fmt.Sprintf("cannot determine whether %q exists: %v", resolved, err))
		}
	case IntentWriteIdempotent:
		info, err := os.Lstat(resolved)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return deny(RuleExistence, resolved, fmt.Sprintf("cannot determine whether %q exists: %v", resolved, err))
		}
		if err == nil && !info.IsDir() {
			return deny(RuleExistence, resolved, fmt.Sprintf("%q exists and is not a directory", resolved))
		}
	}

	return Decision{Allowed: true, Path: resolved}
}

func deny(rule Rule, path, reason string) Decision {
	return Decision{Allowed: false, Rule: rule, Reason: reason, Path: path}
}

func within(root, path string) bool {
	if path == root {
		return true
	}
	if root == string(filepath.Separator) {
		return filepath.IsAbs(path)
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}

// resolvePath walks up from clean until an existing ancestor is found. A
// dangling symlink along the way is followed through its target so that a
// link pointing outside the sandbox cannot pass as a not-yet-created file.
func resolvePath(clean string, hops int) (string, error) {
	if hops > maxSymlinkHops {
		return "", fmt.Errorf("too many levels of symbolic links")
	}

	var missing []string
	current := clean
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return resolved, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}

		if info, lerr := os.Lstat(current); lerr == nil && info.Mode()&fs.ModeSymlink != 0 {
			target, err := os.Readlink(current)
			if err != nil {
				return "", err
			}
			if !filepath.IsAbs(target) {
				target = filepath.Join(filepath.Dir(current), target)
			}
			for i := len(missing) - 1; i >= 0; i-- {
				target = filepath.Join(target, missing[i])
			}
			return resolvePath(filepath.Clean(target), hops+1)
		}

		parent := filepath.Dir(current)
		if parent == current {
			return clean, nil
		}
		missing = append(missing, filepath.Base(current))
		current = parent
	}
}
