package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/meshbus/meshbus/internal/constants"
)

func TestDefaultMatchesSpecDefaults(t *testing.T) {
	d := Default()
	if d.LockStaleSeconds != 21600 || d.DispatchScanSeconds != 5 || d.DispatchMaxPerScan != 3 {
		t.Fatalf("unexpected defaults: %+v", d)
	}
	if d.RoleBoundaryMode != "enforce" || d.GlobalLock {
		t.Fatalf("unexpected defaults: %+v", d)
	}
	if d.RoleMemoryMaxBytes != 65536 || d.RoleMemoryPromptLines != 40 {
		t.Fatalf("unexpected defaults: %+v", d)
	}
}

func TestFromEnvOverridesAndIgnoresGarbage(t *testing.T) {
	t.Setenv("AUTOPILOT_DISPATCH_MAX_PER_SCAN", "7")
	t.Setenv("AUTOPILOT_ROLE_BOUNDARY_MODE", "warn")
	t.Setenv("AUTOPILOT_GLOBAL_LOCK", "1")
	t.Setenv("AUTOPILOT_LOCK_STALE_SECONDS", "not-a-number")

	cfg := FromEnv(Default())
	if cfg.DispatchMaxPerScan != 7 {
		t.Fatalf("DispatchMaxPerScan = %d", cfg.DispatchMaxPerScan)
	}
	if cfg.RoleBoundaryMode != "warn" {
		t.Fatalf("RoleBoundaryMode = %q", cfg.RoleBoundaryMode)
	}
	if !cfg.GlobalLock {
		t.Fatalf("GlobalLock = false, want true")
	}
	if cfg.LockStaleSeconds != 21600 {
		t.Fatalf("garbage env value should leave default: got %d", cfg.LockStaleSeconds)
	}
}

func TestFromEnvRejectsInvalidBoundaryMode(t *testing.T) {
	t.Setenv("AUTOPILOT_ROLE_BOUNDARY_MODE", "not-a-mode")
	cfg := FromEnv(Default())
	if cfg.RoleBoundaryMode != "enforce" {
		t.Fatalf("invalid mode should be ignored: got %q", cfg.RoleBoundaryMode)
	}
}

func TestApplyRoleOverridesOnlyNonZero(t *testing.T) {
	base := Default()
	rd := RoleDescriptor{BoundaryMode: "warn"}
	got := base.ApplyRole(rd)
	if got.RoleBoundaryMode != "warn" {
		t.Fatalf("RoleBoundaryMode = %q", got.RoleBoundaryMode)
	}
	if got.RoleMemoryMaxBytes != base.RoleMemoryMaxBytes {
		t.Fatalf("unset fields should be unchanged")
	}
}

func TestLoadMissingSessionTOMLUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg := Load(dir)
	if cfg.DispatchMaxPerScan != constants.DefaultDispatchMaxPerScan || cfg.GlobalLock {
		t.Fatalf("expected bare defaults, got %+v", cfg)
	}
}

func TestLoadAppliesSessionTOMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	doc := "[autopilot]\ndispatch_max_per_scan = 9\nrole_boundary_mode = \"warn\"\nserial = true\n"
	if err := os.WriteFile(filepath.Join(dir, "meshbus.toml"), []byte(doc), 0o644); err != nil {
		t.Fatalf("writing meshbus.toml: %v", err)
	}

	cfg := Load(dir)
	if cfg.DispatchMaxPerScan != 9 {
		t.Fatalf("DispatchMaxPerScan = %d, want 9 from TOML", cfg.DispatchMaxPerScan)
	}
	if cfg.RoleBoundaryMode != "warn" {
		t.Fatalf("RoleBoundaryMode = %q, want warn from TOML", cfg.RoleBoundaryMode)
	}
	if !cfg.GlobalLock {
		t.Fatalf("GlobalLock = false, want true from TOML serial=true")
	}

	// Environment still wins over the TOML layer.
	t.Setenv("AUTOPILOT_DISPATCH_MAX_PER_SCAN", "3")
	cfg = Load(dir)
	if cfg.DispatchMaxPerScan != 3 {
		t.Fatalf("DispatchMaxPerScan = %d, want env override 3", cfg.DispatchMaxPerScan)
	}
}

func TestLoadRoleDescriptorMissingFileIsZeroValue(t *testing.T) {
	rd, err := LoadRoleDescriptor(t.TempDir() + "/role.toml")
	if err != nil {
		t.Fatalf("LoadRoleDescriptor: %v", err)
	}
	if rd != (RoleDescriptor{}) {
		t.Fatalf("expected zero value, got %+v", rd)
	}
}
