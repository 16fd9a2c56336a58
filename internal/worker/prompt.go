package worker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/meshbus/meshbus/internal/envelope"
	"github.com/meshbus/meshbus/internal/session"
	"github.com/meshbus/meshbus/internal/taskboard"
)

// assemblePrompt builds the single prompt handed to the external tool from
// (a) the role's prompt file, (b) the tail of role memory, (c) a task
// context snapshot, and (d) the raw message content (spec.md §4.4).
func assemblePrompt(sessionRoot string, p session.Paths, role string, promptLines int, msg envelope.Message, msgPath, rawMessage string, task *taskboard.Task, recentReceipts []envelope.Receipt) string {
	base := strings.TrimSpace(readRolePrompt(p, role))
	if base == "" {
		base = fmt.Sprintf("You are %s.", role)
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "You are running under the meshbus worker loop for session %s.\n", sessionRoot)
	fmt.Fprintf(&b, "Message file to process: %s\n\n", msgPath)

	if tail := memoryTail(p, role, promptLines); tail != "" {
		b.WriteString("Recent role memory:\n")
		b.WriteString(tail)
		b.WriteString("\n\n")
	}

	if task != nil {
		b.WriteString("Task context:\n")
		fmt.Fprintf(&b, "- id: %s\n- title: %s\n- status: %s\n- owner: %s\n",
			task.ID, task.Title, task.Status, task.Owner)
		if len(task.Acceptance) > 0 {
			b.WriteString("- acceptance:\n")
			for _, a := range task.Acceptance {
				fmt.Fprintf(&b, "  - %s\n", a)
			}
		}
		if len(recentReceipts) > 0 {
			b.WriteString("- recent receipts:\n")
			for _, r := range recentReceipts {
				fmt.Fprintf(&b, "  - %s status=%s codex_rc=%d\n", r.ID, r.Status, r.CodexRC)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("Rules:\n")
	b.WriteString("- Do not ask the human for input.\n")
	b.WriteString("- To hand off work, emit ::bus-send{to=\"...\" intent=\"...\" message=\"...\"} in your final message.\n")
	b.WriteString("- Do not process messages outside your role.\n\n")

	b.WriteString("Message content:\n```md\n")
	b.WriteString(strings.TrimSpace(rawMessage))
	b.WriteString("\n```\n")

	_ = msg // reserved for future per-field templating
	return b.String()
}

func readRolePrompt(p session.Paths, role string) string {
	data, err := os.ReadFile(p.RolePromptFile(role))
	if err != nil {
		return ""
	}
	return string(data)
}

// recentReceiptsForTask returns up to n receipts for taskID, most recent
// first (reverse file-name order), scanning the shared outbox only;
// best-effort only.
func recentReceiptsForTask(p session.Paths, taskID string, n int) []envelope.Receipt {
	if taskID == "" {
		return nil
	}
	entries, err := os.ReadDir(p.Outbox)
	if err != nil {
		return nil
	}
	var out []envelope.Receipt
	for i := len(entries) - 1; i >= 0 && len(out) < n; i-- {
		e := entries[i]
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(p.Outbox, e.Name()))
		if err != nil {
			continue
		}
		r := envelope.ParseReceipt(string(data))
		if r.TaskID == taskID {
			out = append(out, r)
		}
	}
	return out
}
