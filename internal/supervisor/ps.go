package supervisor

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// psDetail returns a one-line ps(1) snapshot for pid, used only to enrich
// the child_exit log line (supervisor.py's _proc_ps).
func psDetail(pid int) string {
	if pid <= 0 {
		return "<no pid>"
	}
	out, err := exec.Command("ps", "-o", "pid,ppid,pgid,stat,etime,command", "-p", strconv.Itoa(pid)).CombinedOutput()
	if err != nil {
		return fmt.Sprintf("<ps err=%v>", err)
	}
	var parts []string
	for _, ln := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if t := strings.TrimSpace(ln); t != "" {
			parts = append(parts, t)
		}
	}
	if len(parts) == 0 {
		return "<ps: no output>"
	}
	return strings.Join(parts, " | ")
}
