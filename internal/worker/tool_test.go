package worker

import "testing"

func TestResolveToolCommandPrecedence(t *testing.T) {
	cases := []struct {
		name                            string
		flagValue, envValue, roleDefault string
		want                            string
	}{
		{"flag wins over everything", "my-tool", "env-tool", "role-tool", "my-tool"},
		{"env wins over role default", "", "env-tool", "role-tool", "env-tool"},
		{"role default wins over fallback", "", "", "role-tool", "role-tool"},
		{"fallback when nothing set", "", "", "", "codex"},
		{"blank values treated as unset", "  ", "", "role-tool", "role-tool"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := resolveToolCommand(c.flagValue, c.envValue, c.roleDefault)
			if got != c.want {
				t.Fatalf("resolveToolCommand(%q,%q,%q) = %q, want %q",
					c.flagValue, c.envValue, c.roleDefault, got, c.want)
			}
		})
	}
}

func TestResolveCommandUsesEnvOverRoleDefault(t *testing.T) {
	t.Setenv("MESHBUS_TOOL_CMD", "env-tool")
	argv := ExecInvoker{}.ResolveCommand(Invocation{RoleDefault: "role-tool", WorkDir: "/tmp"})
	if argv[0] != "env-tool" {
		t.Fatalf("argv[0] = %q, want env-tool", argv[0])
	}
}

func TestResolveCommandExplicitFlagBeatsEnv(t *testing.T) {
	t.Setenv("MESHBUS_TOOL_CMD", "env-tool")
	argv := ExecInvoker{}.ResolveCommand(Invocation{Command: "flag-tool", RoleDefault: "role-tool", WorkDir: "/tmp"})
	if argv[0] != "flag-tool" {
		t.Fatalf("argv[0] = %q, want flag-tool", argv[0])
	}
}
