package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/meshbus/meshbus/internal/constants"
)

// RoleDescriptor is the decoded form of roles/<role>/role.toml: optional
// per-role overrides layered on top of the session-wide defaults.
type RoleDescriptor struct {
	Name           string `toml:"name"`
	ToolCommand    string `toml:"tool_command"`
	BoundaryMode   string `toml:"boundary_mode"`
	MemoryMaxBytes int    `toml:"memory_max_bytes"`
	PromptLines    int    `toml:"prompt_lines"`
}

// LoadRoleDescriptor decodes a role.toml file. A missing file yields a zero
// RoleDescriptor and no error — descriptors are optional overlays.
func LoadRoleDescriptor(path string) (RoleDescriptor, error) {
	var rd RoleDescriptor
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return rd, nil
	}
	if err != nil {
		return rd, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if _, err := toml.Decode(string(data), &rd); err != nil {
		return rd, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return rd, nil
}

// ApplyRole overlays a non-zero RoleDescriptor's overrides onto cfg,
// returning a new Config. Zero-value fields leave cfg unchanged.
func (c Config) ApplyRole(rd RoleDescriptor) Config {
	out := c
	if rd.ToolCommand != "" {
		out.ToolCommand = rd.ToolCommand
	}
	if rd.BoundaryMode != "" {
		out.RoleBoundaryMode = rd.BoundaryMode
	}
	if rd.MemoryMaxBytes > 0 {
		out.RoleMemoryMaxBytes = rd.MemoryMaxBytes
	}
	if rd.PromptLines > 0 {
		out.RoleMemoryPromptLines = rd.PromptLines
	}
	return out
}

// SessionDescriptor is the decoded form of meshbus.toml: session-wide
// settings that predate environment-variable overrides (spec.md §9
// "Dynamic config via environment", layered per SPEC_FULL.md §5.3). Every
// [autopilot] field overlays the matching Config field in ApplySession; a
// zero value (or an absent `serial` key) leaves the prior layer's value
// untouched. The [session] id and model keys are decoded but not applied
// to Config.
type SessionDescriptor struct {
	Session struct {
		ID    string `toml:"id"`
		Model string `toml:"model"`
	} `toml:"session"`
	Autopilot struct {
		Serial                *bool  `toml:"serial"`
		LockStaleSeconds      int    `toml:"lock_stale_seconds"`
		DispatchScanSeconds   int    `toml:"dispatch_scan_seconds"`
		DispatchMaxPerScan    int    `toml:"dispatch_max_per_scan"`
		DispatchStaleSeconds  int    `toml:"dispatch_stale_seconds"`
		RoleBoundaryMode      string `toml:"role_boundary_mode"`
		RoleMemoryMaxBytes    int    `toml:"role_memory_max_bytes"`
		RoleMemoryPromptLines int    `toml:"role_memory_prompt_lines"`
		TaskBoardLockStale    int    `toml:"task_board_lock_stale_seconds"`
	} `toml:"autopilot"`
}

// ApplySession overlays a non-zero SessionDescriptor's fields onto cfg,
// returning a new Config. Mirrors ApplyRole's all-or-nothing-per-field
// overlay rule.
func (c Config) ApplySession(sd SessionDescriptor) Config {
	out := c
	a := sd.Autopilot
	if a.Serial != nil {
		out.GlobalLock = *a.Serial
	}
	if a.LockStaleSeconds > 0 {
		out.LockStaleSeconds = a.LockStaleSeconds
	}
	if a.DispatchScanSeconds > 0 {
		out.DispatchScanSeconds = a.DispatchScanSeconds
	}
	if a.DispatchMaxPerScan > 0 {
		out.DispatchMaxPerScan = a.DispatchMaxPerScan
	}
	if a.DispatchStaleSeconds > 0 {
		out.DispatchStaleSeconds = a.DispatchStaleSeconds
	}
	switch a.RoleBoundaryMode {
	case constants.BoundaryEnforce, constants.BoundaryWarn, constants.BoundaryOff:
		out.RoleBoundaryMode = a.RoleBoundaryMode
	}
	if a.RoleMemoryMaxBytes > 0 {
		out.RoleMemoryMaxBytes = a.RoleMemoryMaxBytes
	}
	if a.RoleMemoryPromptLines > 0 {
		out.RoleMemoryPromptLines = a.RoleMemoryPromptLines
	}
	if a.TaskBoardLockStale > 0 {
		out.TaskBoardLockStale = a.TaskBoardLockStale
	}
	return out
}

// LoadSessionDescriptor decodes meshbus.toml at the session root. A missing
// file yields a zero SessionDescriptor and no error.
func LoadSessionDescriptor(path string) (SessionDescriptor, error) {
	var sd SessionDescriptor
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return sd, nil
	}
	if err != nil {
		return sd, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if _, err := toml.Decode(string(data), &sd); err != nil {
		return sd, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return sd, nil
}
