// Package worker implements the per-role worker loop of spec.md §4.4: select
// one message, claim its task, invoke the external tool under the role's
// working directory, write a receipt, update the task board, and archive or
// retry.
package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/meshbus/meshbus/internal/config"
	"github.com/meshbus/meshbus/internal/constants"
	"github.com/meshbus/meshbus/internal/dirlock"
	"github.com/meshbus/meshbus/internal/envelope"
	"github.com/meshbus/meshbus/internal/session"
	"github.com/meshbus/meshbus/internal/taskboard"
)

// leadRole is the role that owns bootstrap and periodic dispatch duties.
const leadRole = "lead"

// Worker runs the message-processing loop for one role.
type Worker struct {
	SessionRoot string
	Role        string
	Cfg         config.Config
	Tool        ToolInvoker
	Model       string
	ToolCommand string // explicit --tool-cmd flag override, "" if unset
	Logger      *log.Logger

	paths session.Paths
}

// New constructs a Worker, resolving session paths once.
func New(sessionRoot, role string, cfg config.Config, tool ToolInvoker, logger *log.Logger) *Worker {
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	if tool == nil {
		if !hostHasCommand("codex") {
			logger.Printf("warning: external tool %q not found on PATH", "codex")
		}
		tool = ExecInvoker{}
	}
	return &Worker{
		SessionRoot: sessionRoot,
		Role:        role,
		Cfg:         cfg,
		Tool:        tool,
		Logger:      logger,
		paths:       session.Resolve(sessionRoot),
	}
}

// candidate is one inbox file under consideration during selection.
type candidate struct {
	path string
	name string
	msg  envelope.Message
}

func (w *Worker) listCandidates() ([]candidate, error) {
	dir := w.paths.RoleInbox(w.Role)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []candidate
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		out = append(out, candidate{path: path, name: name, msg: envelope.ParseMessage(string(data))})
	}
	return out, nil
}

func (w *Worker) messageID(c candidate) string {
	if c.msg.ID != "" {
		return c.msg.ID
	}
	return strings.TrimSuffix(c.name, ".md")
}

// Once processes at most one message and reports whether it did anything.
func (w *Worker) Once() (bool, error) {
	if err := os.MkdirAll(w.paths.RoleArchive(w.Role), 0o755); err != nil {
		return false, err
	}
	candidates, err := w.listCandidates()
	if err != nil {
		return false, err
	}

	for _, c := range candidates {
		mid := w.messageID(c)

		if _, err := os.Stat(doneSentinel(w.paths, mid, w.Role)); err == nil {
			w.archive(c)
			return true, nil
		}

		lock, err := dirlock.Acquire(processingLockDir(w.paths, mid, w.Role), dirlock.Options{
			Timeout:    time.Millisecond,
			StaleAfter: w.Cfg.LockStale(),
		})
		if err != nil {
			// Another live instance owns this message; try the next candidate.
			continue
		}

		taskID := c.msg.TaskID
		taskClaimed := false
		if taskID != "" {
			ok, _, reason, terr := taskboard.ClaimTask(w.SessionRoot, taskID, w.Role, mid)
			if terr != nil {
				// Board error: proceed message-only.
				taskID = ""
			} else if !ok {
				switch reason {
				case taskboard.ReasonCompleted:
					w.writeSentinelAndArchive(mid, c)
					lock.Release()
					return true, nil
				case taskboard.ReasonOwnerMismatch, taskboard.ReasonClaimedByOther:
					lock.Release()
					continue
				default:
					if _, blocked := taskboard.IsDepsBlocked(reason); blocked {
						lock.Release()
						continue
					}
					lock.Release()
					continue
				}
			} else {
				taskClaimed = true
			}
		}

		did, perr := w.processSelected(c, mid, taskID, taskClaimed)
		lock.Release()
		return did, perr
	}
	return false, nil
}

func (w *Worker) archive(c candidate) {
	_ = os.MkdirAll(w.paths.RoleArchive(w.Role), 0o755)
	_ = os.Rename(c.path, archiveFile(w.paths, w.Role, c.name))
}

func (w *Worker) writeSentinelAndArchive(mid string, c candidate) {
	_ = os.MkdirAll(w.paths.Done, 0o755)
	_ = os.WriteFile(doneSentinel(w.paths, mid, w.Role), []byte("ok\n"), 0o644)
	w.archive(c)
}

// processSelected runs the full invoke/receipt/board/archive cycle for the
// message selected by Once (spec.md §4.4).
func (w *Worker) processSelected(c candidate, mid, taskID string, taskClaimed bool) (bool, error) {
	rp := retriesFile(w.paths, mid, w.Role)
	rs := loadRetries(rp)
	if exceededRetries(rs) {
		return w.deadletter(c, mid, taskID, "exceeded max retries")
	}

	if w.Role == leadRole && c.msg.Intent == constants.IntentBootstrap {
		return w.runLeadBootstrap(c, mid)
	}

	workDir := session.RoleWorkingDir(w.SessionRoot, w.Role)
	before := snapshotChangedPaths(workDir)

	var task *taskboard.Task
	if taskID != "" {
		task, _ = taskboard.Get(w.SessionRoot, taskID)
	}
	recent := recentReceiptsForTask(w.paths, taskID, 3)
	prompt := assemblePrompt(w.SessionRoot, w.paths, w.Role, w.Cfg.RoleMemoryPromptLines, c.msg, c.path, c.msg.Body, task, recent)

	inv := Invocation{
		Command:     w.ToolCommand,
		RoleDefault: w.Cfg.ToolCommand,
		WorkDir:     workDir,
		AddDirs:     []string{w.paths.Root},
		Model:       w.Model,
		Prompt:      prompt,
		OutputPath:  lastOutputFile(w.paths, w.Role, mid),
	}

	rc, lastMsg, err := w.invoke(inv)
	if err != nil || rc != 0 {
		msg := lastMsg
		if err != nil {
			msg = err.Error()
		}
		return w.retry(c, mid, taskID, rp, rs, fmt.Sprintf("Error: %s", msg), rc)
	}

	if !constants.BuilderRoles[w.Role] && w.Cfg.RoleBoundaryMode != constants.BoundaryOff {
		after := snapshotChangedPaths(workDir)
		if violations := boundaryViolations(w.Role, before, after); len(violations) > 0 {
			if w.Cfg.RoleBoundaryMode == constants.BoundaryEnforce {
				return w.boundaryViolation(c, mid, taskID, violations)
			}
			w.Logger.Printf("role boundary warning for %s: %v", w.Role, violations)
		}
	}

	return w.succeed(c, mid, taskID, taskClaimed, rc, lastMsg)
}

func (w *Worker) invoke(inv Invocation) (int, string, error) {
	if w.Cfg.GlobalLock {
		lockDir := filepath.Join(w.paths.Locks, "autopilot.global.lockdir")
		lock, err := dirlock.Acquire(lockDir, dirlock.Options{Timeout: constants.GlobalLockTimeout})
		if err != nil {
			return -1, "", fmt.Errorf("acquiring global lock: %w", err)
		}
		defer lock.Release()
	}
	return w.Tool.Invoke(inv)
}

func (w *Worker) succeed(c candidate, mid, taskID string, taskClaimed bool, rc int, lastMsg string) (bool, error) {
	r := envelope.Receipt{
		ID: mid, Role: w.Role, Thread: c.msg.Thread,
		RequestFrom: c.msg.From, RequestTo: c.msg.To, RequestIntent: c.msg.Intent,
		TaskID: taskID, Status: constants.StatusDone, CodexRC: rc,
		FinishedAt: nowStamp(), Body: lastMsg,
	}
	if err := w.writeReceipt(r); err != nil {
		return false, err
	}
	_ = appendMemory(w.paths, w.Role, w.Cfg.RoleMemoryMaxBytes, memoryRecord(mid, r.Status, rc, r.FinishedAt))

	if taskClaimed {
		_, _, _, _ = taskboard.CompleteTask(w.SessionRoot, taskID, w.Role, "message="+mid, r.FileName())
	}
	if w.Role == leadRole || constants.BuilderRoles[w.Role] {
		_, _ = dispatchReady(w.SessionRoot, w.paths, w.Role, "", c.msg.Thread, w.Cfg.DispatchMaxPerScan, w.Cfg.DispatchStaleSeconds)
	}

	w.writeSentinelAndArchive(mid, c)
	_ = os.Remove(retriesFile(w.paths, mid, w.Role))
	return true, nil
}

func (w *Worker) retry(c candidate, mid, taskID, rp string, rs retryState, errText string, rc int) (bool, error) {
	rs.Count++
	rs.LastError = errText
	rs.LastAt = nowStamp()
	_ = saveRetries(rp, rs)

	r := envelope.Receipt{
		ID: mid, Role: w.Role, Thread: c.msg.Thread,
		RequestFrom: c.msg.From, RequestTo: c.msg.To, RequestIntent: c.msg.Intent,
		TaskID: taskID, Status: constants.StatusRetry, CodexRC: rc,
		FinishedAt: nowStamp(), Body: errText,
	}
	if err := w.writeReceipt(r); err != nil {
		return false, err
	}
	if rs.Count >= constants.MaxRetries {
		return w.deadletter(c, mid, taskID, errText)
	}
	return true, nil
}

func (w *Worker) deadletter(c candidate, mid, taskID, errText string) (bool, error) {
	if taskID != "" {
		_, _, _, _ = taskboard.MarkTaskFailed(w.SessionRoot, taskID, w.Role, errText, true)
	}
	r := envelope.Receipt{
		ID: mid, Role: w.Role, Thread: c.msg.Thread,
		RequestFrom: c.msg.From, RequestTo: c.msg.To, RequestIntent: c.msg.Intent,
		TaskID: taskID, Status: constants.StatusDeadletter, CodexRC: constants.RCDeadletterRetries,
		FinishedAt: nowStamp(), Body: errText,
	}
	if err := w.writeReceipt(r); err != nil {
		return false, err
	}
	if err := os.MkdirAll(w.paths.RoleDeadletter(w.Role), 0o755); err != nil {
		return false, err
	}
	if err := os.Rename(c.path, deadletterFile(w.paths, w.Role, c.name)); err != nil {
		return false, err
	}
	_ = os.Remove(retriesFile(w.paths, mid, w.Role))
	return true, nil
}

func (w *Worker) boundaryViolation(c candidate, mid, taskID string, violations []string) (bool, error) {
	errText := fmt.Sprintf("role boundary violation: %s", strings.Join(violations, ", "))
	if taskID != "" {
		_, _, _, _ = taskboard.MarkTaskFailed(w.SessionRoot, taskID, w.Role, errText, true)
	}
	r := envelope.Receipt{
		ID: mid, Role: w.Role, Thread: c.msg.Thread,
		RequestFrom: c.msg.From, RequestTo: c.msg.To, RequestIntent: c.msg.Intent,
		TaskID: taskID, Status: constants.StatusDeadletter, CodexRC: constants.RCRoleBoundary,
		FinishedAt: nowStamp(), Body: errText,
	}
	if err := w.writeReceipt(r); err != nil {
		return false, err
	}
	if err := os.MkdirAll(w.paths.RoleDeadletter(w.Role), 0o755); err != nil {
		return false, err
	}
	if err := os.Rename(c.path, deadletterFile(w.paths, w.Role, c.name)); err != nil {
		return false, err
	}
	return true, nil
}

func (w *Worker) runLeadBootstrap(c candidate, mid string) (bool, error) {
	roles, _ := session.ListRoles(w.SessionRoot)
	tasks, err := runBootstrap(w.SessionRoot, roles, mid, w.Role)
	if err != nil {
		return false, err
	}
	n, _ := dispatchReady(w.SessionRoot, w.paths, w.Role, "", c.msg.Thread, w.Cfg.DispatchMaxPerScan, w.Cfg.DispatchStaleSeconds)
	body := fmt.Sprintf("Bootstrap created %d task(s); dispatched %d.", len(tasks), n)
	r := envelope.Receipt{
		ID: mid, Role: w.Role, Thread: c.msg.Thread,
		RequestFrom: c.msg.From, RequestTo: c.msg.To, RequestIntent: c.msg.Intent,
		Status: constants.StatusDone, CodexRC: 0, FinishedAt: nowStamp(), Body: body,
	}
	if err := w.writeReceipt(r); err != nil {
		return false, err
	}
	w.writeSentinelAndArchive(mid, c)
	return true, nil
}

func (w *Worker) writeReceipt(r envelope.Receipt) error {
	return envelope.AtomicWrite(w.paths.Outbox, r.FileName(), []byte(r.Render()))
}

func nowStamp() string { return timeNow().Format("2006-01-02 15:04:05") }

// Daemon runs the worker loop until ctx is cancelled or a termination
// signal arrives, polling the inbox every pollInterval. It mirrors the
// teacher's single-instance flock/PID-file/signal daemon shape: an
// exclusive lock file under artifacts/locks prevents two daemons for the
// same role racing the same inbox.
func (w *Worker) Daemon(ctx context.Context, pollInterval time.Duration) error {
	if err := os.MkdirAll(w.paths.Locks, 0o755); err != nil {
		return err
	}
	lockFile := filepath.Join(w.paths.Locks, "worker."+w.Role+".flock")
	fileLock := flock.New(lockFile)
	locked, err := fileLock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring worker lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("worker for role %q already running (lock held)", w.Role)
	}
	defer func() { _ = fileLock.Unlock() }()

	pidFile := filepath.Join(w.paths.Locks, "worker."+w.Role+".pid")
	if err := os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("writing pid file: %w", err)
	}
	defer func() { _ = os.Remove(pidFile) }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	if pollInterval <= 0 {
		pollInterval = time.Duration(w.Cfg.DispatchScanSeconds) * time.Second
		if pollInterval <= 0 {
			pollInterval = 5 * time.Second
		}
	}
	timer := time.NewTimer(pollInterval)
	defer timer.Stop()

	w.Logger.Printf("worker[%s] daemon starting (pid %d)", w.Role, os.Getpid())
	for {
		select {
		case <-ctx.Done():
			w.Logger.Printf("worker[%s] daemon stopping: %v", w.Role, ctx.Err())
			return nil
		case sig := <-sigChan:
			w.Logger.Printf("worker[%s] daemon stopping on signal %v", w.Role, sig)
			return nil
		case <-timer.C:
			w.drain()
			p := session.Resolve(w.SessionRoot)
			if w.Role == leadRole {
				_, _ = dispatchReady(w.SessionRoot, p, w.Role, "", "", w.Cfg.DispatchMaxPerScan, w.Cfg.DispatchStaleSeconds)
			} else {
				// Failover: if the lead is down, a non-lead role still
				// self-dispatches tasks it already owns (spec.md §4.4).
				_, _ = dispatchReady(w.SessionRoot, p, w.Role, w.Role, "", w.Cfg.DispatchMaxPerScan, w.Cfg.DispatchStaleSeconds)
			}
			timer.Reset(pollInterval)
		}
	}
}

// drain processes messages until the inbox is empty or an error occurs.
func (w *Worker) drain() {
	for {
		did, err := w.Once()
		if err != nil {
			w.Logger.Printf("worker[%s]: %v", w.Role, err)
			return
		}
		if !did {
			return
		}
	}
}
