package worker

import (
	"os"
	"path/filepath"

	"github.com/meshbus/meshbus/internal/envelope"
	"github.com/meshbus/meshbus/internal/session"
	"github.com/meshbus/meshbus/internal/taskboard"
)

// dispatchReady enqueues inbox messages for up to maxPerScan dispatchable
// tasks owned by any role (or, when ownerFilter is non-empty, only that
// role), binding each via taskboard.SetDispatch (spec.md §4.4 "Dispatch of
// ready tasks"). staleSeconds is forwarded to SetDispatch to govern
// redelivery of a binding whose prior message was never read (spec.md §4.3).
// It returns the number of messages actually enqueued.
func dispatchReady(sessionRoot string, p session.Paths, fromRole, ownerFilter, thread string, maxPerScan, staleSeconds int) (int, error) {
	candidates, err := taskboard.ListDispatchable(sessionRoot, ownerFilter)
	if err != nil {
		return 0, err
	}
	dispatched := 0
	for _, t := range candidates {
		if dispatched >= maxPerScan {
			break
		}
		intent := t.Intent
		if intent == "" {
			intent = "implement"
		}
		mid := NewMessageID()
		msg := envelope.Message{
			ID:         mid,
			From:       fromRole,
			To:         t.Owner,
			Intent:     intent,
			Thread:     thread,
			Risk:       t.Risk,
			TaskID:     t.ID,
			Acceptance: t.Acceptance,
			Body:       t.Title,
		}
		msgPath := filepath.Join(p.RoleInbox(t.Owner), msg.FileName())
		if err := os.MkdirAll(p.RoleInbox(t.Owner), 0o755); err != nil {
			return dispatched, err
		}
		if err := os.WriteFile(msgPath, []byte(msg.Render()), 0o644); err != nil {
			return dispatched, err
		}
		ok, _, reason, err := taskboard.SetDispatch(sessionRoot, t.ID, fromRole, t.Owner, intent, mid, staleSeconds)
		if err != nil {
			return dispatched, err
		}
		if !ok && reason == taskboard.ReasonAlreadyDispatched {
			// Another writer won the race; remove the message we just wrote
			// to avoid a duplicate (spec.md §4.4).
			_ = os.Remove(msgPath)
			continue
		}
		dispatched++
	}
	return dispatched, nil
}
