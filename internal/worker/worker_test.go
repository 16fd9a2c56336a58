package worker

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/meshbus/meshbus/internal/config"
	"github.com/meshbus/meshbus/internal/constants"
	"github.com/meshbus/meshbus/internal/envelope"
	"github.com/meshbus/meshbus/internal/session"
)

// initGitRepo makes dir a git worktree so boundary-enforcement tests can
// observe `git status --porcelain` changes; skips the test if git is
// unavailable on the host.
func initGitRepo(t *testing.T, dir string) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available on PATH")
	}
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(), "GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com")
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init", "-q")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
}

type fakeInvoker struct {
	rc      int
	lastMsg string
	err     error
	calls   int
	onCall  func(inv Invocation)
}

func (f *fakeInvoker) Invoke(inv Invocation) (int, string, error) {
	f.calls++
	if f.onCall != nil {
		f.onCall(inv)
	}
	return f.rc, f.lastMsg, f.err
}

func setupSession(t *testing.T, roles ...string) string {
	t.Helper()
	root := t.TempDir()
	if err := session.EnsureDirs(root, roles); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	return root
}

func writeInboxMessage(t *testing.T, root, role string, msg envelope.Message) string {
	t.Helper()
	p := session.Resolve(root)
	dir := p.RoleInbox(role)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir inbox: %v", err)
	}
	path := filepath.Join(dir, msg.FileName())
	if err := os.WriteFile(path, []byte(msg.Render()), 0o644); err != nil {
		t.Fatalf("write message: %v", err)
	}
	return path
}

func TestOnceProcessesAndArchivesMessage(t *testing.T) {
	root := setupSession(t, "builder-a")
	msg := envelope.Message{ID: "20260101-000000-aaaaaaaa", From: "lead", To: "builder-a", Intent: "implement", Thread: "t1", Body: "do the thing"}
	writeInboxMessage(t, root, "builder-a", msg)

	tool := &fakeInvoker{rc: 0, lastMsg: "done"}
	w := New(root, "builder-a", config.Default(), tool, nil)

	did, err := w.Once()
	if err != nil {
		t.Fatalf("Once: %v", err)
	}
	if !did {
		t.Fatal("expected Once to report work done")
	}
	if tool.calls != 1 {
		t.Fatalf("expected exactly one tool invocation, got %d", tool.calls)
	}

	p := session.Resolve(root)
	if _, err := os.Stat(filepath.Join(p.RoleArchive("builder-a"), msg.FileName())); err != nil {
		t.Fatalf("expected message archived: %v", err)
	}
	if _, err := os.Stat(doneSentinel(p, msg.ID, "builder-a")); err != nil {
		t.Fatalf("expected done sentinel written: %v", err)
	}

	entries, _ := os.ReadDir(p.Outbox)
	if len(entries) != 1 {
		t.Fatalf("expected one receipt in outbox, got %d", len(entries))
	}
}

func TestOnceIsAtMostOnceViaDoneSentinel(t *testing.T) {
	root := setupSession(t, "builder-a")
	msg := envelope.Message{ID: "20260101-000001-bbbbbbbb", From: "lead", To: "builder-a", Intent: "implement", Thread: "t1", Body: "work"}
	path := writeInboxMessage(t, root, "builder-a", msg)

	p := session.Resolve(root)
	if err := os.MkdirAll(p.Done, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(doneSentinel(p, msg.ID, "builder-a"), []byte("ok\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tool := &fakeInvoker{rc: 0, lastMsg: "done"}
	w := New(root, "builder-a", config.Default(), tool, nil)

	did, err := w.Once()
	if err != nil {
		t.Fatalf("Once: %v", err)
	}
	if !did {
		t.Fatal("expected archive-on-sentinel to report work done")
	}
	if tool.calls != 0 {
		t.Fatalf("expected no tool invocation when already done, got %d", tool.calls)
	}
	if _, err := os.Stat(path); err == nil {
		t.Fatal("expected original inbox file to be gone after archive")
	}
}

func TestRetryThenDeadletterAfterMaxAttempts(t *testing.T) {
	root := setupSession(t, "builder-a")
	msg := envelope.Message{ID: "20260101-000002-cccccccc", From: "lead", To: "builder-a", Intent: "implement", Thread: "t1", Body: "will fail"}
	writeInboxMessage(t, root, "builder-a", msg)

	tool := &fakeInvoker{rc: 1, lastMsg: "boom"}
	cfg := config.Default()
	p := session.Resolve(root)

	for i := 0; i < constants.MaxRetries; i++ {
		w := New(root, "builder-a", cfg, tool, nil)
		did, err := w.Once()
		if err != nil {
			t.Fatalf("Once attempt %d: %v", i, err)
		}
		if !did {
			t.Fatalf("expected attempt %d to report work done", i)
		}
		// Re-place the message for the next attempt unless it was just
		// dead-lettered (the inbox copy is moved, not archived, on retry
		// exhaustion; on a plain retry it stays processed-but-requeued).
		if i < constants.MaxRetries-1 {
			writeInboxMessage(t, root, "builder-a", msg)
		}
	}

	if _, err := os.Stat(deadletterFile(p, "builder-a", msg.FileName())); err != nil {
		t.Fatalf("expected message dead-lettered after max retries: %v", err)
	}
	if tool.calls != constants.MaxRetries {
		t.Fatalf("expected %d tool invocations, got %d", constants.MaxRetries, tool.calls)
	}
}

func TestBoundaryViolationDeadlettersNonBuilderRole(t *testing.T) {
	root := setupSession(t, "reviewer")
	p := session.Resolve(root)
	workDir := p.RoleWorktreeDefault("reviewer")
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		t.Fatal(err)
	}
	initGitRepo(t, workDir)

	msg := envelope.Message{ID: "20260101-000003-dddddddd", From: "lead", To: "reviewer", Intent: "review", Thread: "t1", Body: "check it"}
	writeInboxMessage(t, root, "reviewer", msg)

	tool := &fakeInvoker{rc: 0, lastMsg: "ok", onCall: func(inv Invocation) {
		_ = os.WriteFile(filepath.Join(inv.WorkDir, "unexpected.txt"), []byte("surprise"), 0o644)
	}}
	cfg := config.Default()
	cfg.RoleBoundaryMode = constants.BoundaryEnforce
	w := New(root, "reviewer", cfg, tool, nil)

	did, err := w.Once()
	if err != nil {
		t.Fatalf("Once: %v", err)
	}
	if !did {
		t.Fatal("expected Once to report work done")
	}
	if _, err := os.Stat(deadletterFile(p, "reviewer", msg.FileName())); err != nil {
		t.Fatalf("expected message dead-lettered on boundary violation: %v", err)
	}

	entries, _ := os.ReadDir(p.Outbox)
	if len(entries) != 1 {
		t.Fatalf("expected one receipt, got %d", len(entries))
	}
	data, _ := os.ReadFile(filepath.Join(p.Outbox, entries[0].Name()))
	r := envelope.ParseReceipt(string(data))
	if r.CodexRC != constants.RCRoleBoundary {
		t.Fatalf("expected codex_rc=%d, got %d", constants.RCRoleBoundary, r.CodexRC)
	}
}

func TestBuilderRoleExemptFromBoundaryEnforcement(t *testing.T) {
	root := setupSession(t, "builder-a")
	p := session.Resolve(root)
	workDir := p.RoleWorktreeDefault("builder-a")
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		t.Fatal(err)
	}

	msg := envelope.Message{ID: "20260101-000004-eeeeeeee", From: "lead", To: "builder-a", Intent: "implement", Thread: "t1", Body: "build it"}
	writeInboxMessage(t, root, "builder-a", msg)

	tool := &fakeInvoker{rc: 0, lastMsg: "ok", onCall: func(inv Invocation) {
		_ = os.WriteFile(filepath.Join(inv.WorkDir, "new_file.go"), []byte("package x"), 0o644)
	}}
	cfg := config.Default()
	cfg.RoleBoundaryMode = constants.BoundaryEnforce
	w := New(root, "builder-a", cfg, tool, nil)

	did, err := w.Once()
	if err != nil {
		t.Fatalf("Once: %v", err)
	}
	if !did {
		t.Fatal("expected Once to report work done")
	}
	if _, err := os.Stat(deadletterFile(p, "builder-a", msg.FileName())); err == nil {
		t.Fatal("builder role should not be dead-lettered for its own changed paths")
	}
	if _, err := os.Stat(filepath.Join(p.RoleArchive("builder-a"), msg.FileName())); err != nil {
		t.Fatalf("expected message archived, not dead-lettered: %v", err)
	}
}

func TestLeadBootstrapCreatesTaskTriadAndSkipsToolInvocation(t *testing.T) {
	root := setupSession(t, "lead", "builder-a", "reviewer", "tester")
	p := session.Resolve(root)
	if err := os.MkdirAll(p.Shared, 0o755); err != nil {
		t.Fatal(err)
	}
	taskMD := "Build the thing.\n\n- must compile\n- must pass tests\n"
	if err := os.WriteFile(p.TaskFile(), []byte(taskMD), 0o644); err != nil {
		t.Fatal(err)
	}

	msg := envelope.Message{ID: "20260101-000005-ffffffff", From: "operator", To: "lead", Intent: "bootstrap", Thread: "t1", Body: "start"}
	writeInboxMessage(t, root, "lead", msg)

	tool := &fakeInvoker{rc: 0, lastMsg: "should not be called"}
	w := New(root, "lead", config.Default(), tool, nil)

	did, err := w.Once()
	if err != nil {
		t.Fatalf("Once: %v", err)
	}
	if !did {
		t.Fatal("expected Once to report work done")
	}
	if tool.calls != 0 {
		t.Fatalf("bootstrap must not invoke the external tool, got %d calls", tool.calls)
	}

	entries, _ := os.ReadDir(p.Outbox)
	if len(entries) != 1 {
		t.Fatalf("expected one bootstrap receipt, got %d", len(entries))
	}
	data, _ := os.ReadFile(filepath.Join(p.Outbox, entries[0].Name()))
	if !strings.Contains(string(data), "Bootstrap created 3 task(s)") {
		t.Fatalf("expected bootstrap summary mentioning 3 tasks, got: %s", string(data))
	}
}
