package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/meshbus/meshbus/internal/session"
)

// resolveSession turns a --session flag value into an absolute session root
// and verifies it looks prepared (spec.md §6's on-disk layout).
func resolveSession(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("--session is required")
	}
	root, err := filepath.Abs(raw)
	if err != nil {
		return "", err
	}
	if !session.Exists(root) {
		return "", fmt.Errorf("session not found: %s", root)
	}
	return root, nil
}

// validRole reports whether role is present under the session's roles/
// directory.
func validRole(sessionRoot, role string) error {
	if role == "" {
		return fmt.Errorf("--role is required")
	}
	roles, err := session.ListRoles(sessionRoot)
	if err != nil {
		return err
	}
	for _, r := range roles {
		if r == role {
			return nil
		}
	}
	return fmt.Errorf("role %q not found under %s", role, filepath.Join(sessionRoot, "roles"))
}

// processLogger opens (or creates) artifacts/autopilot/<name>.log, mirroring
// every line to stderr as well when stderr is a terminal.
func processLogger(sessionRoot, name string) (*log.Logger, func(), error) {
	dir := filepath.Join(sessionRoot, "artifacts", "autopilot")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, name+".log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	var w io.Writer = f
	if isTerminal(os.Stderr) {
		w = io.MultiWriter(f, os.Stderr)
	}
	return log.New(w, "", log.LstdFlags), func() { _ = f.Close() }, nil
}
