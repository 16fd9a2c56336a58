// Package supervisor implements spec.md §4.6 (C7): a foreground process
// that spawns one Router child and one Worker child per role discovered
// under roles/, restarts a child that exits while no stop signal has been
// received, and forwards SIGTERM/SIGINT as a graceful-then-forced shutdown
// of every child. Grounded on internal/daemon's signal/select loop (whose
// flock/PID part is reused by internal/worker and internal/router; the
// supervisor itself takes no flock and writes no pid lock file) and
// on original_source/scripts/supervisor.py's spawn/heartbeat/restart loop.
package supervisor

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/meshbus/meshbus/internal/config"
	"github.com/meshbus/meshbus/internal/session"
)

const (
	restartBackoff    = 500 * time.Millisecond
	shutdownGrace     = 2 * time.Second
	heartbeatInterval = 30 * time.Second
	pollInterval      = 1 * time.Second
)

// Supervisor launches and supervises one router child and one worker child
// per role.
type Supervisor struct {
	SessionRoot string
	Cfg         config.Config
	Logger      *log.Logger

	// Poll is passed through to each child's own --poll flag.
	Poll time.Duration
	// Model is passed through to worker children as --model, when set.
	Model string
	// DryRun is passed through to worker children as --dry-run.
	DryRun bool

	// SelfExe is the path to the meshbus binary re-invoked for each
	// child. Empty resolves os.Executable() lazily when a child is built.
	SelfExe string

	// BuildArgv, when set, overrides argv construction for one child
	// ("router" or a role name). Exists so tests can substitute a cheap
	// stand-in command instead of the real binary.
	BuildArgv func(name string) []string

	paths session.Paths
}

// New constructs a Supervisor, resolving session paths once.
func New(sessionRoot string, cfg config.Config, logger *log.Logger) *Supervisor {
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	return &Supervisor{
		SessionRoot: sessionRoot,
		Cfg:         cfg,
		Logger:      logger,
		Poll:        2 * time.Second,
		paths:       session.Resolve(sessionRoot),
	}
}

// Run spawns the router and every role's worker, then blocks until ctx is
// cancelled or a termination signal arrives, respawning any child that
// exits unexpectedly along the way.
func (s *Supervisor) Run(ctx context.Context) error {
	roles, err := session.ListRoles(s.SessionRoot)
	if err != nil {
		return err
	}
	if len(roles) == 0 {
		return fmt.Errorf("supervisor: no roles found under %s", s.paths.Roles)
	}

	specs := s.buildSpecs(roles)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	children := make(map[string]*child, len(specs))
	for _, spec := range specs {
		c, err := s.spawn(spec)
		if err != nil {
			s.stopAll(children)
			return fmt.Errorf("supervisor: spawning %s: %w", spec.name, err)
		}
		children[spec.name] = c
	}
	if err := s.writePids(children); err != nil {
		s.Logger.Printf("supervisor: writing pids file: %v", err)
	}
	s.Logger.Printf("supervisor daemon starting (pid %d)", os.Getpid())

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	poll := time.NewTicker(pollInterval)
	defer poll.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			s.Logger.Printf("supervisor: stopping: %v", ctx.Err())
			break loop
		case sig := <-sigChan:
			s.Logger.Printf("supervisor: signal received signum=%v", sig)
			break loop
		case <-heartbeat.C:
			s.Logger.Printf("supervisor: heartbeat session=%s procs=%s", s.SessionRoot, s.heartbeatLine(children))
		case <-poll.C:
			s.reapAndRespawn(children)
		}
	}

	s.Logger.Printf("supervisor: shutdown start")
	s.stopAll(children)
	s.Logger.Printf("supervisor: shutdown done")
	return nil
}

// reapAndRespawn checks every child for an exit and, for any that exited,
// logs the event (including a ps(1) snapshot) and respawns it after a
// short backoff to avoid a tight restart loop.
func (s *Supervisor) reapAndRespawn(children map[string]*child) {
	for name, c := range children {
		rc, exited := c.poll()
		if !exited {
			continue
		}
		pid := 0
		if c.cmd.Process != nil {
			pid = c.cmd.Process.Pid
		}
		s.Logger.Printf("supervisor: child_exit name=%s pid=%d rc=%d ps=%s", name, pid, rc, psDetail(pid))
		_ = c.logf.Close()

		time.Sleep(restartBackoff)
		nc, err := s.spawn(c.spec)
		if err != nil {
			s.Logger.Printf("supervisor: respawning %s: %v", name, err)
			continue
		}
		children[name] = nc
		if err := s.writePids(children); err != nil {
			s.Logger.Printf("supervisor: writing pids file: %v", err)
		}
	}
}

// heartbeatLine renders "name=pid,name=pid,..." in sorted name order.
func (s *Supervisor) heartbeatLine(children map[string]*child) string {
	names := make([]string, 0, len(children))
	for name := range children {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		pid := -1
		if c := children[name]; c.cmd.Process != nil {
			pid = c.cmd.Process.Pid
		}
		parts = append(parts, fmt.Sprintf("%s=%d", name, pid))
	}
	return strings.Join(parts, ",")
}

// buildSpecs returns one childSpec for the router plus one per role, in
// router-then-role-order (supervisor.py's spawn order).
func (s *Supervisor) buildSpecs(roles []string) []childSpec {
	artifactsDir := filepath.Join(s.paths.Root, "artifacts", "autopilot")
	env := config.WithOverrides(config.SanitizeEnv(), map[string]string{
		"AUTOPILOT_GLOBAL_LOCK": boolEnvValue(s.Cfg.GlobalLock),
		"PYTHONUNBUFFERED":      "1",
	})

	specs := make([]childSpec, 0, len(roles)+1)
	specs = append(specs, childSpec{
		name:    "router",
		logPath: filepath.Join(artifactsDir, "router.log"),
		argv:    s.argv("router"),
		env:     env,
	})
	for _, r := range roles {
		specs = append(specs, childSpec{
			name:    r,
			logPath: filepath.Join(artifactsDir, r+".log"),
			argv:    s.argv(r),
			env:     env,
		})
	}
	return specs
}

func boolEnvValue(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// argv builds the real `meshbus router daemon` / `meshbus worker daemon
// --role <name>` invocation, unless BuildArgv overrides it.
func (s *Supervisor) argv(name string) []string {
	if s.BuildArgv != nil {
		return s.BuildArgv(name)
	}
	exe := s.SelfExe
	if exe == "" {
		if resolved, err := os.Executable(); err == nil {
			exe = resolved
		} else {
			exe = "meshbus"
		}
	}
	poll := s.Poll
	if poll <= 0 {
		poll = 2 * time.Second
	}

	var argv []string
	if name == "router" {
		argv = []string{exe, "router", "daemon", "--session", s.SessionRoot, "--poll", poll.String()}
	} else {
		argv = []string{exe, "worker", "daemon", "--session", s.SessionRoot, "--role", name, "--poll", poll.String()}
		if s.Model != "" {
			argv = append(argv, "--model", s.Model)
		}
		if s.DryRun {
			argv = append(argv, "--dry-run")
		}
	}
	return argv
}
