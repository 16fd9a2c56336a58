// Package session resolves and prepares the on-disk layout of one
// coordination session (spec.md §6's directory contract).
package session

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/meshbus/meshbus/internal/constants"
)

// Paths is the fully-resolved directory contract for one session.
type Paths struct {
	Root      string
	Shared    string
	Roles     string
	Bus       string
	Inbox     string
	Outbox    string
	Deadletter string
	State     string
	Processing string
	Done      string
	Archive   string
	Tasks     string
	Router    string
	Memory    string
	Artifacts string
	Locks     string
}

// Resolve computes the standard layout rooted at sessionRoot. It does not
// touch the filesystem.
func Resolve(sessionRoot string) Paths {
	root, _ := filepath.Abs(sessionRoot)
	bus := filepath.Join(root, constants.DirBus)
	state := filepath.Join(root, constants.DirState)
	artifacts := filepath.Join(root, constants.DirArtifacts)
	return Paths{
		Root:       root,
		Shared:     filepath.Join(root, "shared"),
		Roles:      filepath.Join(root, constants.DirRoles),
		Bus:        bus,
		Inbox:      filepath.Join(bus, constants.DirInbox),
		Outbox:     filepath.Join(bus, constants.DirOutbox),
		Deadletter: filepath.Join(bus, constants.DirDeadletter),
		State:      state,
		Processing: filepath.Join(state, constants.DirProcessing),
		Done:       filepath.Join(state, constants.DirDone),
		Archive:    filepath.Join(state, constants.DirArchive),
		Tasks:      filepath.Join(state, constants.DirTasks),
		Router:     filepath.Join(state, constants.DirRouter),
		Memory:     filepath.Join(state, constants.DirMemory),
		Artifacts:  artifacts,
		Locks:      filepath.Join(root, "artifacts", constants.DirLocks),
	}
}

// RoleInbox returns the inbox directory for role.
func (p Paths) RoleInbox(role string) string { return filepath.Join(p.Inbox, role) }

// RoleDeadletter returns the dead-letter directory for role.
func (p Paths) RoleDeadletter(role string) string { return filepath.Join(p.Deadletter, role) }

// RoleArchive returns the post-success archive directory for role.
func (p Paths) RoleArchive(role string) string { return filepath.Join(p.Archive, role) }

// RoleMemoryFile returns the role-memory tail file.
func (p Paths) RoleMemoryFile(role string) string { return filepath.Join(p.Memory, role+".md") }

// RolePromptFile returns the per-role system prompt file.
func (p Paths) RolePromptFile(role string) string {
	return filepath.Join(p.Roles, role, constants.FilePromptMD)
}

// RoleWorktreeDefault returns the role's declared worktree directory under
// roles/<role>, used as a fallback when SESSION.md names no override.
func (p Paths) RoleWorktreeDefault(role string) string { return filepath.Join(p.Roles, role) }

// SessionFile returns the path to SESSION.md.
func (p Paths) SessionFile() string { return filepath.Join(p.Root, constants.FileSessionMD) }

// TaskFile returns the path to shared/task.md.
func (p Paths) TaskFile() string { return filepath.Join(p.Shared, constants.FileTaskMD) }

// dirSet lists every directory EnsureDirs must create.
func (p Paths) dirSet(roles []string) []string {
	dirs := []string{
		p.Shared, p.Roles, p.Inbox, p.Outbox, p.Deadletter,
		p.Processing, p.Done, p.Archive, p.Tasks, p.Router,
		filepath.Join(p.Router, constants.DirRouterProcessed),
		filepath.Join(p.Router, constants.DirRouterBadRecv),
		filepath.Join(p.Router, constants.DirRouterBadLocks),
		p.Memory, p.Locks, p.Artifacts,
	}
	for _, r := range roles {
		dirs = append(dirs,
			p.RoleInbox(r), p.RoleDeadletter(r), p.RoleArchive(r), p.RoleWorktreeDefault(r))
	}
	return dirs
}

// EnsureDirs creates the full session directory tree (idempotent).
func EnsureDirs(sessionRoot string, roles []string) error {
	p := Resolve(sessionRoot)
	for _, d := range p.dirSet(roles) {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("session: creating %s: %w", d, err)
		}
	}
	return nil
}

// ListRoles returns the subdirectories of roles/, ordered by
// constants.RoleOrder first; any present role directory not named in that
// list is appended afterward in directory-iteration order (spec.md §9 open
// question: discoverable roles outside the fixed default are not dropped).
func ListRoles(sessionRoot string) ([]string, error) {
	p := Resolve(sessionRoot)
	entries, err := os.ReadDir(p.Roles)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: reading %s: %w", p.Roles, err)
	}
	present := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			present[e.Name()] = true
		}
	}
	var roles []string
	seen := make(map[string]bool, len(present))
	for _, r := range constants.RoleOrder {
		if present[r] {
			roles = append(roles, r)
			seen[r] = true
		}
	}
	for _, e := range entries {
		if e.IsDir() && !seen[e.Name()] {
			roles = append(roles, e.Name())
		}
	}
	return roles, nil
}

// Exists reports whether sessionRoot looks like a prepared session (it or
// its bus directory exists).
func Exists(sessionRoot string) bool {
	p := Resolve(sessionRoot)
	info, err := os.Stat(p.Root)
	return err == nil && info.IsDir()
}
