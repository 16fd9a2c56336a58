package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/meshbus/meshbus/internal/config"
	"github.com/meshbus/meshbus/internal/worker"
)

var (
	workerSession string
	workerRole    string
	workerPoll    time.Duration
	workerDryRun  bool
	workerModel   string
	workerToolCmd string
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a single role's message-processing loop",
}

var workerDaemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the worker loop in the foreground until a termination signal arrives",
	RunE:  runWorkerDaemon,
}

var workerOnceCmd = &cobra.Command{
	Use:   "once",
	Short: "Process at most one inbox message and exit",
	RunE:  runWorkerOnce,
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.AddCommand(workerDaemonCmd, workerOnceCmd)

	for _, c := range []*cobra.Command{workerDaemonCmd, workerOnceCmd} {
		c.Flags().StringVar(&workerSession, "session", "", "session root directory")
		c.Flags().StringVar(&workerRole, "role", "", "role this worker processes messages for")
		c.Flags().BoolVar(&workerDryRun, "dry-run", false, "skip external tool invocation")
		c.Flags().StringVar(&workerModel, "model", "", "model override passed to the external tool")
		c.Flags().StringVar(&workerToolCmd, "tool-cmd", "", "external tool command override (beats MESHBUS_TOOL_CMD and the role's configured default)")
	}
	workerDaemonCmd.Flags().DurationVar(&workerPoll, "poll", 5*time.Second, "inbox poll interval")
}

func newWorker(sessionRoot string) (*worker.Worker, func(), error) {
	if err := validRole(sessionRoot, workerRole); err != nil {
		return nil, nil, withExitCode(2, err)
	}
	logger, closeFn, err := processLogger(sessionRoot, workerRole)
	if err != nil {
		return nil, nil, err
	}

	cfg := config.Load(sessionRoot)
	rd, _ := config.LoadRoleDescriptor(filepath.Join(sessionRoot, "roles", workerRole, "role.toml"))
	cfg = cfg.ApplyRole(rd)

	var tool worker.ToolInvoker
	if workerDryRun {
		tool = worker.DryRunInvoker{}
	}
	w := worker.New(sessionRoot, workerRole, cfg, tool, logger)
	w.Model = workerModel
	w.ToolCommand = workerToolCmd
	return w, closeFn, nil
}

func runWorkerDaemon(cmd *cobra.Command, args []string) error {
	root, err := resolveSession(workerSession)
	if err != nil {
		return withExitCode(2, err)
	}
	w, closeFn, err := newWorker(root)
	if err != nil {
		return err
	}
	defer closeFn()
	return w.Daemon(context.Background(), workerPoll)
}

func runWorkerOnce(cmd *cobra.Command, args []string) error {
	root, err := resolveSession(workerSession)
	if err != nil {
		return withExitCode(2, err)
	}
	w, closeFn, err := newWorker(root)
	if err != nil {
		return err
	}
	defer closeFn()

	did, err := w.Once()
	if err != nil {
		return err
	}
	if !did {
		return withExitCode(3, fmt.Errorf("nothing to do"))
	}
	return nil
}
