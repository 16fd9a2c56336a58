// Package dirlock implements the mkdir-based mutual-exclusion primitive
// used throughout meshbus: task-board mutation, per-message processing,
// and the optional global serial-invocation lock (spec.md §4.1).
package dirlock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// ErrTimeout is returned when a lock cannot be acquired within the
// requested timeout.
var ErrTimeout = errors.New("dirlock: timeout")

// timeNow is overridden in tests.
var timeNow = time.Now

// Lock is a held directory lock. Release must be called exactly once.
type Lock struct {
	dir     string
	released bool
}

// Dir returns the lock directory path.
func (l *Lock) Dir() string { return l.dir }

// Options configure Acquire.
type Options struct {
	// Timeout bounds how long Acquire waits for a contended lock.
	Timeout time.Duration
	// PollInterval is the retry interval while contended. Defaults to 100ms.
	PollInterval time.Duration
	// StaleAfter is the age past which a held lock is reclaimed regardless
	// of pid liveness. Defaults to 6 hours if zero.
	StaleAfter time.Duration
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 100 * time.Millisecond
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = 6 * time.Hour
	}
	return o
}

// Acquire attempts to atomically create dir as a lock directory containing
// a "pid" file with the caller's pid. On contention it probes the existing
// lock for staleness (dead pid, malformed pid file, or age past StaleAfter)
// and reclaims it; otherwise it polls until timeout.
func Acquire(dir string, opts Options) (*Lock, error) {
	opts = opts.withDefaults()
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return nil, fmt.Errorf("dirlock: creating parent of %s: %w", dir, err)
	}

	deadline := timeNow().Add(opts.Timeout)
	for {
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			if werr := os.WriteFile(filepath.Join(dir, "pid"), []byte(strconv.Itoa(os.Getpid())), 0o644); werr != nil {
				_ = os.RemoveAll(dir)
				return nil, fmt.Errorf("dirlock: writing pid file: %w", werr)
			}
			return &Lock{dir: dir}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("dirlock: mkdir %s: %w", dir, err)
		}

		if isStale(dir, opts.StaleAfter) {
			reclaim(dir)
			continue
		}

		if opts.Timeout > 0 && timeNow().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrTimeout, dir)
		}
		time.Sleep(opts.PollInterval)
	}
}

// Release removes the pid file and the lock directory. Safe to call once;
// a second call is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.released {
		return nil
	}
	l.released = true
	return reclaimErr(l.dir)
}

// isStale reports whether the lock directory at dir should be reclaimed:
// the pid file is missing/malformed, the owning process is gone, or the
// directory's age exceeds staleAfter.
func isStale(dir string, staleAfter time.Duration) bool {
	pid, ok := readPID(dir)
	if !ok || pid <= 0 || !pidAlive(pid) {
		return true
	}
	info, err := os.Stat(dir)
	if err != nil {
		// Directory vanished mid-probe; treat as reclaimable so the next
		// mkdir attempt proceeds cleanly.
		return true
	}
	return timeNow().Sub(info.ModTime()) >= staleAfter
}

func readPID(dir string) (int, bool) {
	fi, err := os.Lstat(filepath.Join(dir, "pid"))
	if err != nil || !fi.Mode().IsRegular() {
		return 0, false
	}
	raw, err := os.ReadFile(filepath.Join(dir, "pid"))
	if err != nil {
		return 0, false
	}
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// pidAlive probes a process with signal 0 (POSIX kill(pid, 0) liveness
// check) via os.FindProcess + Signal.
func pidAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	if errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH) {
		return false
	}
	// Permission errors mean the process exists but we can't signal it;
	// treat as alive so we never steal a live lock.
	return true
}

// reclaim removes a stale lock directory: pid file, then rmdir; on failure,
// quarantine by rename into _stale_lockdirs; on failure, recursive delete.
func reclaim(dir string) {
	_ = reclaimErr(dir)
}

func reclaimErr(dir string) error {
	_ = os.Remove(filepath.Join(dir, "pid"))
	if err := os.Remove(dir); err == nil {
		return nil
	}
	quarantineRoot := filepath.Join(filepath.Dir(dir), "_stale_lockdirs")
	if err := os.MkdirAll(quarantineRoot, 0o755); err == nil {
		target := filepath.Join(quarantineRoot, fmt.Sprintf("%s.%d.%d", filepath.Base(dir), timeNow().Unix(), os.Getpid()))
		if err := os.Rename(dir, target); err == nil {
			return nil
		}
	}
	return os.RemoveAll(dir)
}
