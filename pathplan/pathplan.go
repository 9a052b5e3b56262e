// Package pathplan translates source paths on a previous or delta bundle
// tree into destination paths under the merged tree, applying the
// SUPERSEDED/vMAJOR_MINOR/ relocation rule. Every function here is pure:
// no path is read from or written to disk.
package pathplan

import (
	"fmt"
	"path/filepath"
	"strings"

	"pds4delta/ident"
)

// Superseded is the literal, case-sensitive directory component that marks
// a path as already belonging to a historical version.
const Superseded = "SUPERSEDED"

// RebaseFilenames joins each name onto dir, in order.
func RebaseFilenames(dir string, names []string) []string {
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = filepath.Join(dir, name)
	}
	return out
}

// RelocatePath rewrites path from living under oldBase to living under
// newBase, preserving the path's position relative to oldBase. Paths that
// are not rooted under oldBase are returned unchanged.
func RelocatePath(path, oldBase, newBase string) string {
	rel, err := filepath.Rel(oldBase, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.Join(newBase, rel)
}

// hasSupersededComponent reports whether any path component of path
// equals Superseded.
func hasSupersededComponent(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == Superseded {
			return true
		}
	}
	return false
}

// GenerateProductPath inserts SUPERSEDED/vMAJOR_MINOR/ between path's
// parent directory and its basename when superseded is true and path does
// not already carry a SUPERSEDED component; otherwise path is returned
// unchanged. vid is required whenever the rewrite actually applies.
// Calling this twice with the same (superseded, vid) is idempotent: the
// second call sees the SUPERSEDED component already present and is a
// no-op.
func GenerateProductPath(path string, superseded bool, vid ident.Vid) string {
	if !superseded || hasSupersededComponent(path) {
		return path
	}
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	versionDir := fmt.Sprintf("v%d_%d", vid.Major, vid.Minor)
	return filepath.Join(dir, Superseded, versionDir, base)
}
