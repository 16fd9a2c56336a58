package supervisor

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/meshbus/meshbus/internal/config"
	"github.com/meshbus/meshbus/internal/session"
)

func requireSh(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not on PATH")
	}
}

func setupSession(t *testing.T, roles ...string) string {
	t.Helper()
	root := t.TempDir()
	if err := session.EnsureDirs(root, roles); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	return root
}

func newTestSupervisor(root string) *Supervisor {
	return New(root, config.Default(), log.New(io.Discard, "", 0))
}

func TestArgvUsesRouterAndWorkerDaemonSubcommands(t *testing.T) {
	s := newTestSupervisor(t.TempDir())
	s.SelfExe = "/usr/local/bin/meshbus"
	s.Poll = 2 * time.Second

	routerArgv := s.argv("router")
	if routerArgv[0] != s.SelfExe || routerArgv[1] != "router" || routerArgv[2] != "daemon" {
		t.Fatalf("unexpected router argv: %v", routerArgv)
	}

	roleArgv := s.argv("lead")
	if roleArgv[1] != "worker" || roleArgv[2] != "daemon" {
		t.Fatalf("unexpected role argv: %v", roleArgv)
	}
	found := false
	for i, a := range roleArgv {
		if a == "--role" && i+1 < len(roleArgv) && roleArgv[i+1] == "lead" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected --role lead in argv, got %v", roleArgv)
	}
}

func TestRunSpawnsRouterAndOneChildPerRoleAndWritesPids(t *testing.T) {
	requireSh(t)
	root := setupSession(t, "lead", "builder-a")
	s := newTestSupervisor(root)
	s.Poll = 20 * time.Millisecond
	s.BuildArgv = func(name string) []string {
		return []string{"sh", "-c", "sleep 5"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, name := range []string{"router", "lead", "builder-a"} {
		logPath := filepath.Join(root, "artifacts", "autopilot", name+".log")
		if _, err := os.Stat(logPath); err != nil {
			t.Fatalf("expected log file for %s: %v", name, err)
		}
	}

	pidsPath := filepath.Join(root, "artifacts", "autopilot", "pids.txt")
	if _, err := os.Stat(pidsPath); err != nil {
		t.Fatalf("expected pids.txt to exist (emptied on shutdown): %v", err)
	}
}

func TestRunRespawnsChildThatExitsWithoutStopSignal(t *testing.T) {
	requireSh(t)
	root := setupSession(t, "lead")
	marker := filepath.Join(t.TempDir(), "spawn-count")

	s := newTestSupervisor(root)
	s.Poll = 20 * time.Millisecond
	s.BuildArgv = func(name string) []string {
		return []string{"sh", "-c", fmt.Sprintf("printf x >> %q", marker)}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	data, err := os.ReadFile(marker)
	if err != nil {
		t.Fatalf("reading marker: %v", err)
	}
	if len(data) < 2 {
		t.Fatalf("expected the exiting child to be respawned at least once, got %d spawns", len(data))
	}
}

func TestRunStopsPromptlyOnContextCancel(t *testing.T) {
	requireSh(t)
	root := setupSession(t, "lead")
	s := newTestSupervisor(root)
	s.Poll = 20 * time.Millisecond
	s.BuildArgv = func(name string) []string {
		return []string{"sh", "-c", "trap '' TERM; sleep 10"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 4*time.Second {
		t.Fatalf("expected shutdown within the grace window plus overhead, took %v", elapsed)
	}
}
