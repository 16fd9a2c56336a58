package session

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var roleWorktreesHeading = regexp.MustCompile(`(?m)^## Role worktrees\s*$`)

// ParseRoleWorktrees extracts the "## Role worktrees" section of SESSION.md
// (spec.md §6), mapping role name to absolute working directory. A missing
// file or section yields an empty, non-error map.
func ParseRoleWorktrees(sessionMDPath string) map[string]string {
	data, err := os.ReadFile(sessionMDPath)
	if err != nil {
		return map[string]string{}
	}
	text := string(data)
	loc := roleWorktreesHeading.FindStringIndex(text)
	if loc == nil {
		return map[string]string{}
	}
	section := text[loc[1]:]
	if idx := strings.Index(section, "\n## "); idx >= 0 {
		section = section[:idx]
	}

	out := map[string]string{}
	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "- ") {
			continue
		}
		line = strings.TrimPrefix(line, "- ")
		role, path, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		role = strings.TrimSpace(role)
		path = strings.TrimSpace(path)
		if role == "" || path == "" {
			continue
		}
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		out[role] = path
	}
	return out
}

// RoleWorkingDir resolves the working directory a worker for role should
// run the external tool in: the SESSION.md override if present, else the
// role's default worktree under roles/<role>, else the session root.
func RoleWorkingDir(sessionRoot, role string) string {
	p := Resolve(sessionRoot)
	worktrees := ParseRoleWorktrees(p.SessionFile())
	if wt, ok := worktrees[role]; ok {
		return wt
	}
	if info, err := os.Stat(p.RoleWorktreeDefault(role)); err == nil && info.IsDir() {
		return p.RoleWorktreeDefault(role)
	}
	return p.Root
}
