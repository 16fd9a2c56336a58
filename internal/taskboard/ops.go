package taskboard

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/meshbus/meshbus/internal/constants"
	"github.com/meshbus/meshbus/internal/session"
)

// AddTaskInput carries AddTask's fields; grouped into a struct because the
// operation has more optional fields than is comfortable as positional
// arguments.
type AddTaskInput struct {
	Title           string
	Owner           string
	WorkType        string
	Risk            string
	Acceptance      []string
	DependsOn       []string
	Intent          string
	CreatedBy       string
	SourceMessageID string
}

func normalizeList(items []string) []string {
	var out []string
	for _, s := range items {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// AddTask creates a new pending task. Title must be non-empty.
func AddTask(sessionRoot string, in AddTaskInput) (*Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("taskboard: title is required")
	}
	workType := strings.TrimSpace(in.WorkType)
	if workType == "" {
		workType = "implement"
	}
	risk := strings.ToLower(strings.TrimSpace(in.Risk))
	if risk == "" {
		risk = "low"
	}
	intent := strings.TrimSpace(in.Intent)
	if intent == "" {
		intent = "implement"
	}
	createdBy := strings.TrimSpace(in.CreatedBy)
	if createdBy == "" {
		createdBy = "system"
	}

	var created *Task
	err := mutate(sessionRoot, func(b *Board) bool {
		t := &Task{
			ID:              newTaskID(),
			Title:           title,
			Status:          constants.TaskPending,
			Owner:           strings.TrimSpace(in.Owner),
			WorkType:        workType,
			Risk:            risk,
			Intent:          intent,
			Acceptance:      normalizeList(in.Acceptance),
			DependsOn:       normalizeList(in.DependsOn),
			SourceMessageID: strings.TrimSpace(in.SourceMessageID),
			CreatedBy:       createdBy,
			CreatedAt:       now(),
			UpdatedAt:       now(),
		}
		t.appendHistory("created", createdBy, "")
		b.Tasks = append(b.Tasks, t)
		created = t
		return true
	})
	if err != nil {
		return nil, err
	}
	return created.Clone(), nil
}

// List returns all tasks in deterministic order, optionally filtered by
// status.
func List(sessionRoot string, statuses ...string) ([]*Task, error) {
	if err := Ensure(sessionRoot); err != nil {
		return nil, err
	}
	b := readBoard(BoardPaths(sessionRoot).File)
	tasks := sortTasks(b.Tasks)
	if len(statuses) == 0 {
		return cloneAll(tasks), nil
	}
	want := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	var out []*Task
	for _, t := range tasks {
		if want[t.Status] {
			out = append(out, t)
		}
	}
	return cloneAll(out), nil
}

func cloneAll(tasks []*Task) []*Task {
	out := make([]*Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}

// Get returns one task by id, or nil if not found.
func Get(sessionRoot, taskID string) (*Task, error) {
	tasks, err := List(sessionRoot)
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		if t.ID == taskID {
			return t, nil
		}
	}
	return nil, nil
}

// ListDispatchable returns pending tasks with satisfied dependencies, a
// non-empty owner (matching owner if given), and no active dispatch binding
// (spec.md §4.3).
func ListDispatchable(sessionRoot, owner string) ([]*Task, error) {
	if err := Ensure(sessionRoot); err != nil {
		return nil, err
	}
	b := readBoard(BoardPaths(sessionRoot).File)
	owner = strings.TrimSpace(owner)
	var out []*Task
	for _, t := range sortTasks(b.Tasks) {
		if t.Status != constants.TaskPending {
			continue
		}
		role := strings.TrimSpace(t.Owner)
		if role == "" {
			continue
		}
		if owner != "" && role != owner {
			continue
		}
		if t.Dispatch != nil && strings.TrimSpace(t.Dispatch.MessageID) != "" {
			continue
		}
		if ok, _ := depsSatisfied(b, t); !ok {
			continue
		}
		out = append(out, t)
	}
	return cloneAll(out), nil
}

const dispatchTimeLayout = "2006-01-02 15:04:05"

// dispatchEvidenceExists reports whether messageID still has on-disk trace
// of being delivered: an undelivered copy in any role's inbox, an archived
// copy from a successful run, or a done sentinel (spec.md §4.3/§9). Its
// absence is what makes a prior dispatch binding safe to overwrite.
func dispatchEvidenceExists(sessionRoot, messageID string) bool {
	p := session.Resolve(sessionRoot)
	roles, _ := session.ListRoles(sessionRoot)
	for _, r := range roles {
		if fileExists(filepath.Join(p.RoleInbox(r), messageID+".md")) {
			return true
		}
		if fileExists(filepath.Join(p.RoleArchive(r), messageID+".md")) {
			return true
		}
	}
	matches, _ := filepath.Glob(filepath.Join(p.Done, messageID+".*.ok"))
	return len(matches) > 0
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// dispatchStale reports whether a prior dispatch binding identified by
// prevMessageID/dispatchedAt is eligible for redelivery under a different
// message_id: the binding must be at least staleSeconds old AND no trace of
// the prior message remains on disk (spec.md §4.3's redelivery path; default
// TTL is 0 per spec.md:320, so a binding is stale as soon as its evidence is
// gone, regardless of elapsed time).
func dispatchStale(sessionRoot, prevMessageID, dispatchedAt string, staleSeconds int) bool {
	if staleSeconds > 0 {
		at, err := time.ParseInLocation(dispatchTimeLayout, dispatchedAt, time.Local)
		if err == nil && timeNow().Sub(at) < time.Duration(staleSeconds)*time.Second {
			return false
		}
	}
	return !dispatchEvidenceExists(sessionRoot, prevMessageID)
}

// SetDispatch binds a task to the message that will carry it to its owner.
// If the task already carries a binding to a different message_id, the bind
// is rejected unless the prior binding is stale (dispatchStale), in which
// case it is overwritten and treated as a fresh dispatch.
func SetDispatch(sessionRoot, taskID, fromRole, toRole, intent, messageID string, staleSeconds int) (bool, *Task, Reason, error) {
	var ok bool
	var result *Task
	var reason Reason
	err := mutate(sessionRoot, func(b *Board) bool {
		idx := indexOf(b, taskID)
		if idx < 0 {
			ok, result, reason = false, nil, ReasonNotFound
			return false
		}
		t := b.Tasks[idx]
		redispatch := false
		if t.Dispatch != nil {
			prevMID := strings.TrimSpace(t.Dispatch.MessageID)
			if prevMID != "" {
				if prevMID == strings.TrimSpace(messageID) {
					ok, result, reason = true, t, ReasonAlreadyDispatchedSame
					return false
				}
				if !dispatchStale(sessionRoot, prevMID, t.Dispatch.At, staleSeconds) {
					ok, result, reason = false, t, ReasonAlreadyDispatched
					return false
				}
				redispatch = true
			}
		}
		t.Dispatch = &Dispatch{
			From:      strings.TrimSpace(fromRole),
			To:        strings.TrimSpace(toRole),
			Intent:    strings.TrimSpace(intent),
			MessageID: strings.TrimSpace(messageID),
			At:        now(),
		}
		t.UpdatedAt = now()
		by := strings.TrimSpace(fromRole)
		if by == "" {
			by = "system"
		}
		action := "dispatched"
		if redispatch {
			action = "redispatched"
		}
		t.appendHistory(action, by, strings.TrimSpace(messageID))
		ok, result, reason = true, t, ReasonOK
		return true
	})
	if err != nil {
		return false, nil, "", err
	}
	if result != nil {
		result = result.Clone()
	}
	return ok, result, reason, nil
}

// ClaimTask attempts to claim taskID for role (spec.md §4.3).
func ClaimTask(sessionRoot, taskID, role, messageID string) (bool, *Task, Reason, error) {
	role = strings.TrimSpace(role)
	var ok bool
	var result *Task
	var reason Reason
	err := mutate(sessionRoot, func(b *Board) bool {
		idx := indexOf(b, taskID)
		if idx < 0 {
			ok, result, reason = false, nil, ReasonNotFound
			return false
		}
		t := b.Tasks[idx]
		switch t.Status {
		case constants.TaskCompleted:
			ok, result, reason = false, t, ReasonCompleted
			return false
		case constants.TaskFailed:
			ok, result, reason = false, t, ReasonFailed
			return false
		case constants.TaskInProgress:
			if t.ClaimedBy == role {
				ok, result, reason = true, t, ReasonAlreadyClaimed
				return false
			}
			ok, result, reason = false, t, ReasonClaimedByOther
			return false
		case constants.TaskPending:
			// fall through
		default:
			ok, result, reason = false, t, ReasonInvalidStatus
			return false
		}
		if t.Owner != "" && t.Owner != role {
			ok, result, reason = false, t, ReasonOwnerMismatch
			return false
		}
		if satisfied, missing := depsSatisfied(b, t); !satisfied {
			ok, result, reason = false, t, DepsBlocked(missing)
			return false
		}
		claim(t, role, messageID)
		ok, result, reason = true, t, ReasonClaimed
		return true
	})
	if err != nil {
		return false, nil, "", err
	}
	if result != nil {
		result = result.Clone()
	}
	return ok, result, reason, nil
}

func claim(t *Task, role, messageID string) {
	t.Status = constants.TaskInProgress
	t.ClaimedBy = role
	t.ClaimedAt = now()
	if strings.TrimSpace(messageID) != "" {
		t.ClaimMessageID = strings.TrimSpace(messageID)
	}
	t.UpdatedAt = now()
	t.appendHistory("claimed", role, strings.TrimSpace(messageID))
}

// ClaimNextTask scans pending tasks in deterministic order and claims the
// first whose owner is empty or equal to role and whose deps are satisfied.
func ClaimNextTask(sessionRoot, role, messageID string) (bool, *Task, Reason, error) {
	role = strings.TrimSpace(role)
	var ok bool
	var result *Task
	var reason Reason = ReasonNoneAvailable
	err := mutate(sessionRoot, func(b *Board) bool {
		for _, t := range sortTasks(b.Tasks) {
			if t.Status != constants.TaskPending {
				continue
			}
			if t.Owner != "" && t.Owner != role {
				continue
			}
			if satisfied, missing := depsSatisfied(b, t); !satisfied {
				reason = DepsBlocked(missing)
				continue
			}
			// t came from a sorted copy; mutate the board's own instance.
			real := b.Tasks[indexOf(b, t.ID)]
			claim(real, role, messageID)
			ok, result, reason = true, real, ReasonClaimed
			return true
		}
		return false
	})
	if err != nil {
		return false, nil, "", err
	}
	if result != nil {
		result = result.Clone()
	}
	return ok, result, reason, nil
}

// CompleteTask marks taskID completed. Allowed only from in_progress by the
// current claimant; idempotent when already completed.
func CompleteTask(sessionRoot, taskID, role, evidence, receiptFile string) (bool, *Task, Reason, error) {
	role = strings.TrimSpace(role)
	var ok bool
	var result *Task
	var reason Reason
	err := mutate(sessionRoot, func(b *Board) bool {
		idx := indexOf(b, taskID)
		if idx < 0 {
			ok, result, reason = false, nil, ReasonNotFound
			return false
		}
		t := b.Tasks[idx]
		if t.Status == constants.TaskCompleted {
			ok, result, reason = true, t, ReasonAlreadyCompleted
			return false
		}
		if t.Status != constants.TaskInProgress {
			ok, result, reason = false, t, ReasonNotInProgress
			return false
		}
		if t.ClaimedBy != "" && t.ClaimedBy != role {
			ok, result, reason = false, t, ReasonClaimedByOther
			return false
		}
		t.Status = constants.TaskCompleted
		t.CompletedBy = role
		t.CompletedAt = now()
		t.UpdatedAt = now()
		if e := strings.TrimSpace(evidence); e != "" {
			t.Evidence = append(t.Evidence, e)
		}
		if rf := strings.TrimSpace(receiptFile); rf != "" {
			t.ReceiptFile = rf
		}
		note := strings.TrimSpace(evidence)
		if note == "" {
			note = strings.TrimSpace(receiptFile)
		}
		t.appendHistory("completed", role, note)
		ok, result, reason = true, t, ReasonCompleted
		return true
	})
	if err != nil {
		return false, nil, "", err
	}
	if result != nil {
		result = result.Clone()
	}
	return ok, result, reason, nil
}

// MarkTaskFailed records an error against a task. terminal=false leaves
// status unchanged (a retry note); terminal=true sets status=failed.
func MarkTaskFailed(sessionRoot, taskID, role, errText string, terminal bool) (bool, *Task, Reason, error) {
	role = strings.TrimSpace(role)
	var ok bool
	var result *Task
	var reason Reason
	err := mutate(sessionRoot, func(b *Board) bool {
		idx := indexOf(b, taskID)
		if idx < 0 {
			ok, result, reason = false, nil, ReasonNotFound
			return false
		}
		t := b.Tasks[idx]
		if t.Status == constants.TaskCompleted {
			ok, result, reason = false, t, ReasonCompleted
			return false
		}
		action := "retry_error"
		if terminal {
			t.Status = constants.TaskFailed
			action = "failed"
		}
		t.LastError = strings.TrimSpace(errText)
		t.LastErrorBy = role
		t.LastErrorAt = now()
		t.UpdatedAt = now()
		t.appendHistory(action, role, strings.TrimSpace(errText))
		ok, result, reason = true, t, ReasonUpdated
		return true
	})
	if err != nil {
		return false, nil, "", err
	}
	if result != nil {
		result = result.Clone()
	}
	return ok, result, reason, nil
}

// FormatBrief renders a one-line human summary, grounded on the Python
// original's format_task_brief.
func FormatBrief(t *Task) string {
	owner := t.Owner
	if owner == "" {
		owner = "-"
	}
	claimed := t.ClaimedBy
	if claimed == "" {
		claimed = "-"
	}
	deps := "-"
	if len(t.DependsOn) > 0 {
		deps = strings.Join(t.DependsOn, ",")
	}
	return fmt.Sprintf("%s | %-11s | owner=%-9s | claimed=%-9s | deps=%s | %s",
		t.ID, t.Status, owner, claimed, deps, t.Title)
}
