// Package fs provides filesystem utilities for pushci.
// This file implements prefix-guarded recursive removal of workspaces.
package fs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotUnderPrefix is returned when a target path is not under the allowed prefix.
type ErrNotUnderPrefix struct {
	Target string
	Prefix string
}

func (e *ErrNotUnderPrefix) Error() string {
	return fmt.Sprintf("target %q is not under allowed prefix %q", e.Target, e.Prefix)
}

// ErrLeftover is returned when removal reported success but the target
// still exists afterwards.
type ErrLeftover struct {
	Target string
}

func (e *ErrLeftover) Error() string {
	return fmt.Sprintf("target %q still exists after removal", e.Target)
}

// SafeRemoveAll removes a directory tree only if it is under the allowed
// prefix, then confirms nothing is left behind.
//
// Safety checks:
//   - Both target and prefix are cleaned and resolved via filepath.EvalSymlinks
//   - Target must be a true subpath of prefix (not equal, not outside)
//
// A target that does not exist is not an error. A removal that leaves any
// path behind is always an error; callers must never treat it as success.
func SafeRemoveAll(target, allowedPrefix string) error {
	cleanTarget := filepath.Clean(target)
	cleanPrefix := filepath.Clean(allowedPrefix)

	resolvedTarget, err := filepath.EvalSymlinks(cleanTarget)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		// Fail closed on anything else (e.g. permission denied).
		return &ErrNotUnderPrefix{Target: target, Prefix: allowedPrefix}
	}

	resolvedPrefix, err := filepath.EvalSymlinks(cleanPrefix)
	if err != nil {
		return &ErrNotUnderPrefix{Target: target, Prefix: allowedPrefix}
	}

	if !IsSubpath(resolvedTarget, resolvedPrefix) {
		return &ErrNotUnderPrefix{Target: target, Prefix: allowedPrefix}
	}

	if err := os.RemoveAll(cleanTarget); err != nil {
		return err
	}

	if _, err := os.Lstat(cleanTarget); err == nil {
		return &ErrLeftover{Target: cleanTarget}
	} else if !os.IsNotExist(err) {
		return err
	}
	return nil
}

// IsSubpath returns true if target is a proper subpath of prefix.
// Both paths should already be cleaned and resolved.
func IsSubpath(target, prefix string) bool {
	prefixWithSep := prefix
	if !strings.HasSuffix(prefixWithSep, string(filepath.Separator)) {
		prefixWithSep = prefix + string(filepath.Separator)
	}
	return strings.HasPrefix(target, prefixWithSep) && len(target) > len(prefix)
}
