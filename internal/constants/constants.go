// Package constants defines shared constant values used throughout meshbus.
// Centralizing these magic strings improves maintainability and consistency.
package constants

import "time"

// Timing constants for lock polling and dispatch scheduling.
const (
	// LockPollInterval is the poll interval while waiting on a directory lock.
	LockPollInterval = 100 * time.Millisecond

	// TaskLockTimeout is the default wait bound on the task-board lock.
	// Short because the board mutation itself is always fast; long waits
	// indicate a stuck writer, not a slow one.
	TaskLockTimeout = 10 * time.Second

	// MessageLockTimeout is the wait bound on a per-message processing lock.
	MessageLockTimeout = 60 * time.Second

	// GlobalLockTimeout is the wait bound on the optional serial-mode lock.
	// Long because it must outlive a full external-tool invocation.
	GlobalLockTimeout = 30 * time.Minute

	// DefaultLockStaleSeconds is the default age past which any lock
	// directory is considered abandoned regardless of pid liveness.
	DefaultLockStaleSeconds = 21600

	// DefaultDispatchScanSeconds is the default dispatch scan period. The
	// worker daemon's drain-and-dispatch timer runs every --poll and uses
	// this period only when --poll is not positive.
	DefaultDispatchScanSeconds = 5

	// DefaultDispatchMaxPerScan bounds dispatches per scan.
	DefaultDispatchMaxPerScan = 3

	// DefaultDispatchStaleSeconds is the dispatch-binding TTL past which a
	// prior binding with no inbox/archive/done evidence is considered stale
	// and may be overwritten by a redispatch (spec.md §9 open question:
	// default to 0, i.e. always stale when evidence is absent).
	DefaultDispatchStaleSeconds = 0

	// DefaultRoleMemoryMaxBytes bounds a role's memory file size.
	DefaultRoleMemoryMaxBytes = 65536

	// DefaultRoleMemoryPromptLines bounds how much memory tail is folded
	// into a prompt.
	DefaultRoleMemoryPromptLines = 40

	// MaxRetries is the number of failed attempts before dead-lettering.
	MaxRetries = 3
)

// RoleOrder is the default dispatch/claim scan order and supervisor spawn
// order. Discoverable roles not in this list are appended in directory
// iteration order (§9 open question: keep as default, allow override).
var RoleOrder = []string{"lead", "builder-a", "builder-b", "reviewer", "tester"}

// BuilderRoles are unrestricted by role-boundary enforcement (§4.4).
var BuilderRoles = map[string]bool{
	"builder-a": true,
	"builder-b": true,
}

// Directory names within a session root.
const (
	DirShared     = "shared"
	DirRoles      = "roles"
	DirBus        = "bus"
	DirState      = "state"
	DirArtifacts  = "artifacts"

	DirInbox      = "inbox"
	DirOutbox     = "outbox"
	DirDeadletter = "deadletter"

	DirProcessing = "processing"
	DirDone       = "done"
	DirArchive    = "archive"
	DirTasks      = "tasks"
	DirRouter     = "router"
	DirMemory     = "memory"
	DirLocks      = "locks"
	DirAutopilot  = "autopilot"

	DirRouterProcessed = "processed"
	DirRouterBadRecv   = "bad-receipts"
	DirRouterBadLocks  = "bad-locks"

	DirStaleLockdirs = "_stale_lockdirs"
)

// File names.
const (
	FileSessionMD  = "SESSION.md"
	FileTaskMD     = "task.md"
	FilePromptMD   = "prompt.md"
	FileRoleToml   = "role.toml"
	FileTasksJSON  = "tasks.json"
	FileConfigToml = "meshbus.toml"
	FilePIDsTxt    = "pids.txt"
)

// Intents understood by the bus.
const (
	IntentImplement = "implement"
	IntentReview    = "review"
	IntentTest      = "test"
	IntentFix       = "fix"
	IntentQuestion  = "question"
	IntentInfo      = "info"
	IntentAlert     = "alert"
	IntentBootstrap = "bootstrap"
	IntentReceipt   = "receipt"
)

// Receipt statuses.
const (
	StatusDone       = "done"
	StatusRetry      = "retry"
	StatusDeadletter = "deadletter"
	StatusWarn       = "warn"
)

// Task statuses.
const (
	TaskPending    = "pending"
	TaskInProgress = "in_progress"
	TaskCompleted  = "completed"
	TaskFailed     = "failed"
)

// Reserved codex_rc sentinel values (spec.md §4.4/§4.5).
const (
	RCDeadletterRetries = 99
	RCRoleBoundary       = 97
)

// Role-boundary enforcement modes.
const (
	BoundaryEnforce = "enforce"
	BoundaryWarn    = "warn"
	BoundaryOff     = "off"
)

// Path helpers construct common session-relative paths.

// SessionBusPath returns bus/ within a session root.
func SessionBusPath(sessionRoot string) string {
	return sessionRoot + "/" + DirBus
}

// SessionStatePath returns state/ within a session root.
func SessionStatePath(sessionRoot string) string {
	return sessionRoot + "/" + DirState
}

// SessionArtifactsPath returns artifacts/ within a session root.
func SessionArtifactsPath(sessionRoot string) string {
	return sessionRoot + "/" + DirArtifacts
}
