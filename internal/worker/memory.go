package worker

import (
	"fmt"
	"os"
	"strings"

	"github.com/meshbus/meshbus/internal/session"
)

// appendMemory appends a record to the role's memory file, then truncates
// the file to at most maxBytes (keeping the tail), per spec.md §6's
// AUTOPILOT_ROLE_MEMORY_MAX_BYTES.
func appendMemory(p session.Paths, role string, maxBytes int, record string) error {
	path := p.RoleMemoryFile(role)
	if err := os.MkdirAll(p.Memory, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(record); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return truncateToTail(path, maxBytes)
}

func truncateToTail(path string, maxBytes int) error {
	if maxBytes <= 0 {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(data) <= maxBytes {
		return nil
	}
	tail := data[len(data)-maxBytes:]
	if idx := strings.IndexByte(string(tail), '\n'); idx >= 0 {
		tail = tail[idx+1:]
	}
	return os.WriteFile(path, tail, 0o644)
}

// memoryTail reads the last n lines of the role's memory file. A missing
// file yields an empty string.
func memoryTail(p session.Paths, role string, lines int) string {
	data, err := os.ReadFile(p.RoleMemoryFile(role))
	if err != nil {
		return ""
	}
	all := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if all[0] == "" {
		return ""
	}
	if len(all) > lines {
		all = all[len(all)-lines:]
	}
	return strings.Join(all, "\n")
}

// memoryRecord formats one completed-message entry for the role memory log.
func memoryRecord(mid, status string, codexRC int, at string) string {
	return fmt.Sprintf("- %s message=%s status=%s codex_rc=%d\n", at, mid, status, codexRC)
}
