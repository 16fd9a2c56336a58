package session

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseRoleWorktrees(t *testing.T) {
	dir := t.TempDir()
	md := filepath.Join(dir, "SESSION.md")
	content := "# Session s1\n\nsome intro text\n\n## Role worktrees\n" +
		"- lead: " + dir + "/main\n" +
		"- builder-a: " + dir + "/wt-a\n" +
		"not a worktree line\n" +
		"\n## Other section\n- lead: " + dir + "/should-not-be-seen\n"
	if err := os.WriteFile(md, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	got := ParseRoleWorktrees(md)
	if got["lead"] != dir+"/main" {
		t.Fatalf("lead = %q", got["lead"])
	}
	if got["builder-a"] != dir+"/wt-a" {
		t.Fatalf("builder-a = %q", got["builder-a"])
	}
	if len(got) != 2 {
		t.Fatalf("got = %v, want exactly 2 entries", got)
	}
}

func TestParseRoleWorktreesMissingFile(t *testing.T) {
	got := ParseRoleWorktrees(filepath.Join(t.TempDir(), "nope.md"))
	if len(got) != 0 {
		t.Fatalf("expected empty map, got %v", got)
	}
}

func TestRoleWorkingDirFallsBackToDefaultWorktree(t *testing.T) {
	root := t.TempDir()
	if err := EnsureDirs(root, []string{"builder-a"}); err != nil {
		t.Fatal(err)
	}
	got := RoleWorkingDir(root, "builder-a")
	want := Resolve(root).RoleWorktreeDefault("builder-a")
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRoleWorkingDirFallsBackToSessionRoot(t *testing.T) {
	root := t.TempDir()
	got := RoleWorkingDir(root, "reviewer")
	want := Resolve(root).Root
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
