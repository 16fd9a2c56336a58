package router

import (
	"errors"
	"os"
	"path/filepath"
)

var errCorruptGlobalLock = errors.New("router: global lock pid file is corrupt")

// checkGlobalLock proactively probes the session's global serial-mode lock
// directory for the pid-file corruption described in spec.md §4.5 and
// quarantines it before it can poison every worker's lock attempt. This
// runs once per Once() cycle, independent of any write the router itself
// performs.
func (r *Router) checkGlobalLock() {
	lockDir := filepath.Join(r.paths.Locks, "autopilot.global.lockdir")
	pidPath := filepath.Join(lockDir, "pid")
	if _, err := os.Stat(lockDir); err != nil {
		return
	}
	if !probeGlobalLockCorruption(pidPath) {
		return
	}
	if err := quarantineGlobalLock(r.paths, lockDir, r.ops); err != nil {
		r.Logger.Printf("router: quarantining corrupt global lock: %v", err)
		return
	}
	r.alertLockCorruption("", pidPath, errCorruptGlobalLock)
}
