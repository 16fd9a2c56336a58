// Package config loads the tunables of spec.md §6's environment-variable
// surface, layered over role descriptors decoded from TOML (the teacher's
// own config idiom, github.com/BurntSushi/toml).
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/meshbus/meshbus/internal/constants"
)

// Config holds every tunable named in spec.md §6, defaulted then overridden
// by environment variables of the same name.
type Config struct {
	LockStaleSeconds      int
	DispatchScanSeconds   int
	DispatchMaxPerScan    int
	DispatchStaleSeconds  int
	RoleBoundaryMode      string
	GlobalLock            bool
	RoleMemoryMaxBytes    int
	RoleMemoryPromptLines int
	TaskBoardLockStale    int
	ToolCommand           string
}

// Default returns the documented defaults (spec.md §6).
func Default() Config {
	return Config{
		LockStaleSeconds:      constants.DefaultLockStaleSeconds,
		DispatchScanSeconds:   constants.DefaultDispatchScanSeconds,
		DispatchMaxPerScan:    constants.DefaultDispatchMaxPerScan,
		DispatchStaleSeconds:  constants.DefaultDispatchStaleSeconds,
		RoleBoundaryMode:      constants.BoundaryEnforce,
		GlobalLock:            false,
		RoleMemoryMaxBytes:    constants.DefaultRoleMemoryMaxBytes,
		RoleMemoryPromptLines: constants.DefaultRoleMemoryPromptLines,
		TaskBoardLockStale:    constants.DefaultLockStaleSeconds,
	}
}

// FromEnv layers process environment variables over base, following
// spec.md §6's naming exactly. Malformed values are ignored (the default,
// or whatever base already held, is kept).
func FromEnv(base Config) Config {
	cfg := base
	if v, ok := envInt("AUTOPILOT_LOCK_STALE_SECONDS"); ok {
		cfg.LockStaleSeconds = v
	}
	if v, ok := envInt("AUTOPILOT_DISPATCH_SCAN_SECONDS"); ok {
		cfg.DispatchScanSeconds = v
	}
	if v, ok := envInt("AUTOPILOT_DISPATCH_MAX_PER_SCAN"); ok {
		cfg.DispatchMaxPerScan = v
	}
	if v, ok := os.LookupEnv("AUTOPILOT_ROLE_BOUNDARY_MODE"); ok {
		switch v {
		case constants.BoundaryEnforce, constants.BoundaryWarn, constants.BoundaryOff:
			cfg.RoleBoundaryMode = v
		}
	}
	if v, ok := os.LookupEnv("AUTOPILOT_GLOBAL_LOCK"); ok {
		cfg.GlobalLock = v == "1"
	}
	if v, ok := envInt("AUTOPILOT_ROLE_MEMORY_MAX_BYTES"); ok {
		cfg.RoleMemoryMaxBytes = v
	}
	if v, ok := envInt("AUTOPILOT_ROLE_MEMORY_PROMPT_LINES"); ok {
		cfg.RoleMemoryPromptLines = v
	}
	if v, ok := envInt("TASK_BOARD_LOCK_STALE_SECONDS"); ok {
		cfg.TaskBoardLockStale = v
	}
	if v, ok := envInt("TASK_BOARD_DISPATCH_STALE_SECONDS"); ok {
		cfg.DispatchStaleSeconds = v
	}
	return cfg
}

func envInt(name string) (int, bool) {
	raw, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Load builds a session's Config by layering, in order: hard-coded
// defaults, an optional meshbus.toml at the session root, then the process
// environment (spec.md §9 "Dynamic config via environment", generalized to
// also accept a version-controllable file per SPEC_FULL.md §5.3). A missing
// or unreadable meshbus.toml is not an error: the TOML layer is skipped and
// defaults carry through to the environment overlay unchanged.
func Load(sessionRoot string) Config {
	cfg := Default()
	sd, err := LoadSessionDescriptor(filepath.Join(sessionRoot, constants.FileConfigToml))
	if err == nil {
		cfg = cfg.ApplySession(sd)
	}
	return FromEnv(cfg)
}

// LockStale returns the configured lock staleness threshold as a duration.
func (c Config) LockStale() time.Duration {
	return time.Duration(c.LockStaleSeconds) * time.Second
}

// DispatchScanInterval returns DispatchScanSeconds as a duration. The
// worker daemon's dispatch timer follows --poll and falls back to
// DispatchScanSeconds only when --poll is not positive.
func (c Config) DispatchScanInterval() time.Duration {
	return time.Duration(c.DispatchScanSeconds) * time.Second
}

// TaskBoardLockStaleDuration returns the task-board-specific stale threshold.
func (c Config) TaskBoardLockStaleDuration() time.Duration {
	return time.Duration(c.TaskBoardLockStale) * time.Second
}
