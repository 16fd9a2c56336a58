package worker

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/meshbus/meshbus/internal/config"
)

// Invocation describes one call into the external code-generation tool
// (out of scope per spec.md §1; consumed via a documented command contract).
type Invocation struct {
	Command     string   // explicit --tool-cmd flag override, "" if unset
	RoleDefault string   // role's configured default command (role.toml tool_command)
	WorkDir     string   // role worktree
	AddDirs     []string // extra --add-dir paths
	Model       string   // model override, "" lets the tool choose
	Prompt      string   // assembled prompt, piped on stdin
	OutputPath  string   // where the tool writes its final message
}

// resolveToolCommand applies the precedence chain SPEC_FULL.md §7 documents,
// generalizing autopilot.py's choose_model: an explicit flag wins outright,
// then the MESHBUS_TOOL_CMD environment variable, then the role's configured
// default, then the hardcoded fallback. A pure function, unit-testable
// without touching the environment.
func resolveToolCommand(flagValue, envValue, roleDefault string) string {
	for _, v := range []string{flagValue, envValue, roleDefault} {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return "codex"
}

// ToolInvoker runs the external tool and returns its exit code plus final
// message text.
type ToolInvoker interface {
	Invoke(inv Invocation) (rc int, lastMessage string, err error)
}

// ExecInvoker shells out via os/exec, stripping non-UTF-8 environment
// variables first (spec.md §4.4).
type ExecInvoker struct{}

// ResolveCommand returns the argv for inv, mirroring autopilot.py's
// codex_exec argument assembly: sandboxed workspace-write execution, an
// explicit model flag, --output-last-message capture, and one --add-dir
// per extra directory.
func (ExecInvoker) ResolveCommand(inv Invocation) []string {
	cmd := resolveToolCommand(inv.Command, os.Getenv("MESHBUS_TOOL_CMD"), inv.RoleDefault)
	args := []string{cmd, "-a", "never", "exec", "-s", "workspace-write"}
	if inv.Model != "" {
		args = append(args, "-m", inv.Model)
	}
	for _, d := range inv.AddDirs {
		args = append(args, "--add-dir", d)
	}
	args = append(args, "--cd", inv.WorkDir)
	if inv.OutputPath != "" {
		args = append(args, "--output-last-message", inv.OutputPath)
	}
	args = append(args, "-")
	return args
}

// Invoke runs the resolved command with inv.Prompt on stdin, then reads
// inv.OutputPath for the tool's final message (autopilot.py's codex_exec).
func (e ExecInvoker) Invoke(inv Invocation) (int, string, error) {
	if inv.OutputPath != "" {
		if err := os.MkdirAll(filepath.Dir(inv.OutputPath), 0o755); err != nil {
			return -1, "", err
		}
	}
	argv := e.ResolveCommand(inv)
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = inv.WorkDir
	cmd.Env = config.SanitizeEnv()
	cmd.Stdin = strings.NewReader(inv.Prompt)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Run()
	rc := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			rc = exitErr.ExitCode()
		} else {
			return -1, "", err
		}
	}

	msg := "(no last message captured)"
	if inv.OutputPath != "" {
		if data, rerr := os.ReadFile(inv.OutputPath); rerr == nil && strings.TrimSpace(string(data)) != "" {
			msg = string(data)
		}
	}
	return rc, msg, nil
}

// DryRunInvoker never runs the external tool; used by `--dry-run` and
// `once --dry-run` CLI modes.
type DryRunInvoker struct{}

func (DryRunInvoker) Invoke(Invocation) (int, string, error) {
	return 0, "DRY_RUN: skipped external tool invocation.", nil
}

var _ ToolInvoker = ExecInvoker{}
var _ ToolInvoker = DryRunInvoker{}

// hostHasCommand reports whether name resolves on PATH, used only for
// friendlier error messages (never to change control flow silently).
func hostHasCommand(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
