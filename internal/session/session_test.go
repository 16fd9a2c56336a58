package session

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureDirsCreatesFullTree(t *testing.T) {
	root := filepath.Join(t.TempDir(), "sessions", "s1")
	if err := EnsureDirs(root, []string{"lead", "builder-a"}); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	p := Resolve(root)
	for _, d := range []string{
		p.RoleInbox("lead"), p.RoleInbox("builder-a"),
		p.RoleDeadletter("lead"), p.RoleArchive("builder-a"),
		p.Outbox, p.Processing, p.Done, p.Tasks,
		filepath.Join(p.Router, "processed"),
		p.Memory, p.Locks,
	} {
		info, err := os.Stat(d)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s to exist, err=%v", d, err)
		}
	}
}

func TestListRolesCanonicalOrder(t *testing.T) {
	root := t.TempDir()
	for _, r := range []string{"tester", "lead", "builder-b"} {
		if err := os.MkdirAll(filepath.Join(root, "roles", r), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	roles, err := ListRoles(root)
	if err != nil {
		t.Fatalf("ListRoles: %v", err)
	}
	want := []string{"lead", "builder-b", "tester"}
	if len(roles) != len(want) {
		t.Fatalf("roles = %v, want %v", roles, want)
	}
	for i := range want {
		if roles[i] != want[i] {
			t.Fatalf("roles = %v, want %v", roles, want)
		}
	}
}

func TestListRolesAppendsUndiscoveredRoleInDirectoryOrder(t *testing.T) {
	root := t.TempDir()
	for _, r := range []string{"tester", "lead", "builder-c", "builder-a"} {
		if err := os.MkdirAll(filepath.Join(root, "roles", r), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	roles, err := ListRoles(root)
	if err != nil {
		t.Fatalf("ListRoles: %v", err)
	}
	// Canonical-order roles first, then "builder-c" (not in RoleOrder)
	// appended in directory (lexicographic) iteration order.
	want := []string{"lead", "builder-a", "tester", "builder-c"}
	if len(roles) != len(want) {
		t.Fatalf("roles = %v, want %v", roles, want)
	}
	for i := range want {
		if roles[i] != want[i] {
			t.Fatalf("roles = %v, want %v", roles, want)
		}
	}
}

func TestListRolesMissingDirIsEmptyNotError(t *testing.T) {
	roles, err := ListRoles(t.TempDir())
	if err != nil || roles != nil {
		t.Fatalf("roles=%v err=%v, want nil,nil", roles, err)
	}
}

func TestExists(t *testing.T) {
	root := t.TempDir()
	if !Exists(root) {
		t.Fatalf("expected Exists(tempdir) to be true")
	}
	if Exists(filepath.Join(root, "missing")) {
		t.Fatalf("expected Exists(missing) to be false")
	}
}
