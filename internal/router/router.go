// Package router implements the outbox watcher of spec.md §4.5: it
// deduplicates receipts by content hash, forwards each to Lead and to its
// requester, executes capability-gated `::bus-send` directives embedded in
// a receipt's body, and quarantines unreadable receipts and a corrupt
// global lock directory.
package router

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/meshbus/meshbus/internal/config"
	"github.com/meshbus/meshbus/internal/session"
)

// leadRole is the role every receipt is unconditionally forwarded to.
const leadRole = "lead"

// Router watches one session's outbox.
type Router struct {
	SessionRoot string
	Cfg         config.Config
	Logger      *log.Logger

	paths session.Paths
	ops   *opLog
}

// New constructs a Router, resolving session paths once.
func New(sessionRoot string, cfg config.Config, logger *log.Logger) *Router {
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	return &Router{
		SessionRoot: sessionRoot,
		Cfg:         cfg,
		Logger:      logger,
		paths:       session.Resolve(sessionRoot),
		ops:         newOpLog(10),
	}
}

// Once processes every receipt currently in the outbox and returns whether
// any made progress (newly processed, as opposed to already-deduplicated).
func (r *Router) Once() (bool, error) {
	r.checkGlobalLock()

	roles, err := session.ListRoles(r.SessionRoot)
	if err != nil {
		return false, err
	}
	for _, role := range roles {
		if err := os.MkdirAll(r.paths.RoleInbox(role), 0o755); err != nil {
			return false, err
		}
	}

	entries, err := os.ReadDir(r.paths.Outbox)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	didAny := false
	for _, name := range names {
		path := filepath.Join(r.paths.Outbox, name)
		did, err := r.processReceipt(path, roles)
		if err != nil {
			r.Logger.Printf("router: processing %s: %v", name, err)
			continue
		}
		if did {
			didAny = true
		}
	}
	return didAny, nil
}

// Daemon runs the router loop until ctx is cancelled or a termination
// signal arrives, polling the outbox every pollInterval. Mirrors the
// worker package's single-instance flock/PID-file/signal daemon shape.
func (r *Router) Daemon(ctx context.Context, pollInterval time.Duration) error {
	if err := os.MkdirAll(r.paths.Locks, 0o755); err != nil {
		return err
	}
	lockFile := filepath.Join(r.paths.Locks, "router.flock")
	fileLock := flock.New(lockFile)
	locked, err := fileLock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring router lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("router already running (lock held)")
	}
	defer func() { _ = fileLock.Unlock() }()

	pidFile := filepath.Join(r.paths.Locks, "router.pid")
	if err := os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("writing pid file: %w", err)
	}
	defer func() { _ = os.Remove(pidFile) }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	timer := time.NewTimer(pollInterval)
	defer timer.Stop()

	r.Logger.Printf("router daemon starting (pid %d)", os.Getpid())
	for {
		select {
		case <-ctx.Done():
			r.Logger.Printf("router daemon stopping: %v", ctx.Err())
			return nil
		case sig := <-sigChan:
			r.Logger.Printf("router daemon stopping on signal %v", sig)
			return nil
		case <-timer.C:
			if _, err := r.Once(); err != nil {
				r.Logger.Printf("router: %v", err)
			}
			timer.Reset(pollInterval)
		}
	}
}
