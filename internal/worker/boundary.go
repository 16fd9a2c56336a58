package worker

import (
	"os/exec"
	"strings"

	"github.com/meshbus/meshbus/internal/constants"
)

// snapshotChangedPaths lists changed/untracked paths under workDir via
// `git status --porcelain`. A non-git directory (or any git error) yields
// an empty snapshot rather than an error: boundary enforcement degrades to
// a no-op outside a git worktree.
func snapshotChangedPaths(workDir string) map[string]bool {
	out, err := exec.Command("git", "-C", workDir, "status", "--porcelain").Output()
	if err != nil {
		return map[string]bool{}
	}
	paths := map[string]bool{}
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimRight(line, "\r")
		if len(line) < 4 {
			continue
		}
		paths[strings.TrimSpace(line[3:])] = true
	}
	return paths
}

// boundaryViolations returns paths present in after but not before, for
// non-builder roles only (spec.md §4.4: builder roles are unrestricted).
func boundaryViolations(role string, before, after map[string]bool) []string {
	if constants.BuilderRoles[role] {
		return nil
	}
	var violations []string
	for path := range after {
		if !before[path] {
			violations = append(violations, path)
		}
	}
	return violations
}
