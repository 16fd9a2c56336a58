package taskboard

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/meshbus/meshbus/internal/constants"
	"github.com/meshbus/meshbus/internal/dirlock"
)

// timeNow is overridden in tests.
var timeNow = time.Now

func now() string { return timeNow().Format("2006-01-02 15:04:05") }

func newTaskID() string {
	ts := timeNow().Format("20060102-150405")
	return fmt.Sprintf("T%s-%s", ts, uuid.New().String()[:6])
}

// Board is the on-disk task board document (spec.md §6 JSON schema).
type Board struct {
	Version   int     `json:"version"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
	Tasks     []*Task `json:"tasks"`
}

func defaultBoard() *Board {
	ts := now()
	return &Board{Version: 1, CreatedAt: ts, UpdatedAt: ts, Tasks: []*Task{}}
}

// Paths locates the board's files under a session root.
type Paths struct {
	Dir      string
	File     string
	LockDir  string
	StaleDir string
}

// BoardPaths computes the standard task-board layout under sessionRoot
// (spec.md §6: state/tasks/tasks.json, state/tasks/tasks.lockdir).
func BoardPaths(sessionRoot string) Paths {
	dir := filepath.Join(sessionRoot, constants.DirState, constants.DirTasks)
	return Paths{
		Dir:      dir,
		File:     filepath.Join(dir, constants.FileTasksJSON),
		LockDir:  filepath.Join(dir, "tasks.lockdir"),
		StaleDir: filepath.Join(dir, constants.DirStaleLockdirs),
	}
}

// Ensure creates the board directory and a default board file if absent.
func Ensure(sessionRoot string) error {
	p := BoardPaths(sessionRoot)
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return fmt.Errorf("taskboard: creating %s: %w", p.Dir, err)
	}
	if _, err := os.Stat(p.File); err == nil {
		return nil
	}
	return atomicWriteBoard(p.File, defaultBoard())
}

// readBoard loads the board from disk. Per invariant 5 (spec.md §3), any
// read failure or structural corruption yields a fresh default board rather
// than an error.
func readBoard(file string) *Board {
	data, err := os.ReadFile(file)
	if err != nil {
		return defaultBoard()
	}
	var b Board
	if err := json.Unmarshal(data, &b); err != nil {
		return defaultBoard()
	}
	if b.Tasks == nil {
		b.Tasks = []*Task{}
	}
	if b.Version == 0 {
		b.Version = 1
	}
	if b.UpdatedAt == "" {
		b.UpdatedAt = now()
	}
	return &b
}

func atomicWriteBoard(file string, b *Board) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("taskboard: encoding board: %w", err)
	}
	data = append(data, '\n')
	return envelopeAtomicWrite(filepath.Dir(file), filepath.Base(file), data)
}

// envelopeAtomicWrite mirrors envelope.AtomicWrite without importing the
// envelope package (which has no notion of JSON); kept local and tiny on
// purpose to avoid a pointless cross-package dependency for one helper.
func envelopeAtomicWrite(dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := filepath.Join(dir, fmt.Sprintf(".tmp.%s.%d", name, os.Getpid()))
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, filepath.Join(dir, name)); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// mutate runs fn under the task-board lock, persisting the board iff fn
// reports a change. Readers (List*, Get) bypass the lock entirely, per the
// "Reads may bypass the lock" concurrency rule (spec.md §4.3).
func mutate(sessionRoot string, fn func(*Board) bool) error {
	if err := Ensure(sessionRoot); err != nil {
		return err
	}
	p := BoardPaths(sessionRoot)
	lock, err := dirlock.Acquire(p.LockDir, dirlock.Options{Timeout: constants.TaskLockTimeout})
	if err != nil {
		return fmt.Errorf("taskboard: acquiring lock: %w", err)
	}
	defer lock.Release()

	b := readBoard(p.File)
	changed := fn(b)
	if changed {
		b.UpdatedAt = now()
		if err := atomicWriteBoard(p.File, b); err != nil {
			return err
		}
	}
	return nil
}

func sortTasks(tasks []*Task) []*Task {
	out := append([]*Task(nil), tasks...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func indexOf(b *Board, taskID string) int {
	for i, t := range b.Tasks {
		if t.ID == taskID {
			return i
		}
	}
	return -1
}

func depsSatisfied(b *Board, t *Task) (bool, []string) {
	if len(t.DependsOn) == 0 {
		return true, nil
	}
	byID := make(map[string]*Task, len(b.Tasks))
	for _, o := range b.Tasks {
		byID[o.ID] = o
	}
	var missing []string
	for _, dep := range t.DependsOn {
		d, ok := byID[dep]
		if !ok || d.Status != constants.TaskCompleted {
			missing = append(missing, dep)
		}
	}
	return len(missing) == 0, missing
}
