package router

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/meshbus/meshbus/internal/constants"
	"github.com/meshbus/meshbus/internal/session"
)

// quarantineReceipt moves an unreadable or malformed receipt into
// state/router/bad-receipts/ with a sibling .error.txt (spec.md §4.5
// step 1).
func quarantineReceipt(p session.Paths, path string, cause error) error {
	dir := filepath.Join(p.Router, constants.DirRouterBadRecv)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	name := filepath.Base(path)
	dest := filepath.Join(dir, name)
	if err := os.Rename(path, dest); err != nil {
		return err
	}
	errText := fmt.Sprintf("quarantined at %s: %v\n", time.Now().Format(time.RFC3339), cause)
	return os.WriteFile(dest+".error.txt", []byte(errText), 0o644)
}

// quarantineGlobalLock moves the whole autopilot.global.lockdir into
// state/router/bad-locks/<ts>-<name> (falling back to copy-then-remove
// when the rename fails) so it stops poisoning every future lock attempt.
// It does not inspect any errno itself: callers decide that the lock is
// corrupt, via probeGlobalLockCorruption, before calling it.
func quarantineGlobalLock(p session.Paths, lockDir string, ops *opLog) error {
	destDir := filepath.Join(p.Router, constants.DirRouterBadLocks)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}
	ts := time.Now().Format("20060102-150405")
	dest := filepath.Join(destDir, ts+"-"+filepath.Base(lockDir))

	if err := os.Rename(lockDir, dest); err != nil {
		// Fallback: copy the directory's regular files then remove the
		// original, for cross-device or permission-constrained moves.
		if cerr := copyDirBestEffort(lockDir, dest); cerr != nil {
			return cerr
		}
		_ = os.RemoveAll(lockDir)
	}
	ops.record("quarantine-global-lock", lockDir)
	return nil
}

// probeGlobalLockCorruption reports whether the pid file at path inside an
// autopilot.global.lockdir looks corrupt: missing, not a regular file, or
// not a pure 1-20 digit numeric string.
func probeGlobalLockCorruption(path string) bool {
	if filepath.Base(path) != "pid" {
		return false
	}
	if filepath.Base(filepath.Dir(path)) != "autopilot.global.lockdir" {
		return false
	}
	fi, err := os.Lstat(path)
	if err != nil {
		return true
	}
	if !fi.Mode().IsRegular() {
		return true
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return true
	}
	s := strings.TrimSpace(string(data))
	if len(s) == 0 || len(s) > 20 {
		return true
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return true
		}
	}
	return false
}

func copyDirBestEffort(src, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		in, err := os.Open(filepath.Join(src, e.Name()))
		if err != nil {
			continue
		}
		out, err := os.Create(filepath.Join(dst, e.Name()))
		if err != nil {
			in.Close()
			continue
		}
		_, _ = io.Copy(out, in)
		in.Close()
		out.Close()
	}
	return nil
}

// opLog is a fixed-size ring buffer of recent filesystem operations, kept
// for the errno-22 post-mortem diagnostic (spec.md §4.5: "last N (~10)
// recent filesystem operations").
type opLog struct {
	max     int
	entries []string
}

func newOpLog(max int) *opLog { return &opLog{max: max} }

func (l *opLog) record(op, detail string) {
	l.entries = append(l.entries, fmt.Sprintf("%s %s: %s", time.Now().Format(time.RFC3339), op, detail))
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
}

func (l *opLog) dump() string {
	return strings.Join(l.entries, "\n")
}
