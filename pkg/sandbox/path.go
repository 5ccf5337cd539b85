// Package sandbox implements the Sandboxed Action Surface: path
// containment against an allow-list of roots, and bounded execution of
// open/read/run directives parsed from model output.
package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ivanvihe/jarvis-core/pkg/apperrors"
)

// Sandbox holds the canonicalised set of roots a path may resolve
// under. Roots are resolved once at construction so a root that is
// itself a symlink is pinned to its real target before any containment
// check runs.
type Sandbox struct {
	roots []string
}

// New canonicalises each configured root and returns a Sandbox. A root
// that does not exist is kept, in its absolute cleaned form without
// symlink resolution, with no error, since the operator may list
// directories created lazily.
func New(roots []string) (*Sandbox, error) {
	s := &Sandbox{}
	for _, r := range roots {
		real, err := filepath.EvalSymlinks(r)
		if err != nil {
			if os.IsNotExist(err) {
				abs, aerr := filepath.Abs(r)
				if aerr != nil {
					return nil, fmt.Errorf("resolve sandbox root %q: %w", r, aerr)
				}
				s.roots = append(s.roots, filepath.Clean(abs))
				continue
			}
			return nil, fmt.Errorf("resolve sandbox root %q: %w", r, err)
		}
		s.roots = append(s.roots, filepath.Clean(real))
	}
	return s, nil
}

// Resolve canonicalises candidate (which may be relative or contain
// symlinks) and verifies it falls under one of the sandbox's roots. It
// returns the canonical absolute path on success. A relative candidate
// is tried against each configured root in order, so the same relative
// path can address different roots depending on which one it actually
// falls under; an absolute candidate is checked as-is. A path resolving
// outside every root, including via a symlink, is always rejected.
func (s *Sandbox) Resolve(candidate string) (string, error) {
	if filepath.IsAbs(candidate) {
		real, err := resolveExisting(candidate)
		if err != nil {
			return "", apperrors.Wrap(apperrors.Validation, fmt.Sprintf("resolve path %q", candidate), err)
		}
		for _, root := range s.roots {
			if isWithin(root, real) {
				return real, nil
			}
		}
		return "", apperrors.NewAuthorization(fmt.Sprintf("path %q is outside the sandboxed roots", candidate))
	}

	for _, root := range s.roots {
		abs := filepath.Join(root, candidate)
		real, err := resolveExisting(abs)
		if err != nil {
			continue
		}
		if isWithin(root, real) {
			return real, nil
		}
	}
	return "", apperrors.NewAuthorization(fmt.Sprintf("path %q is outside the sandboxed roots", candidate))
}

// DefaultRoot returns the first configured sandbox root, used as the
// default working directory for an action that doesn't specify one.
func (s *Sandbox) DefaultRoot() string {
	if len(s.roots) == 0 {
		return ""
	}
	return s.roots[0]
}

// resolveExisting evaluates symlinks along the longest existing prefix
// of path, so a not-yet-created file inside an allowed directory still
// resolves (needed for write-target validation), while an existing file
// is resolved through any symlink to its real location.
func resolveExisting(path string) (string, error) {
	if real, err := filepath.EvalSymlinks(path); err == nil {
		return filepath.Clean(real), nil
	}
	dir, base := filepath.Split(path)
	dir = filepath.Clean(dir)
	if dir == path {
		return filepath.Clean(path), nil
	}
	realDir, err := resolveExisting(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(realDir, base), nil
}

// isWithin reports whether target is root itself or a descendant of it.
func isWithin(root, target string) bool {
	if root == target {
		return true
	}
	sep := string(os.PathSeparator)
	return strings.HasPrefix(target, strings.TrimSuffix(root, sep)+sep)
}
