package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/meshbus/meshbus/internal/config"
	"github.com/meshbus/meshbus/internal/supervisor"
)

var (
	supervisorSession string
	supervisorPoll    time.Duration
	supervisorDryRun  bool
	supervisorModel   string
	supervisorSerial  bool
)

var supervisorCmd = &cobra.Command{
	Use:   "supervisor",
	Short: "Launch the router and one worker per role, restarting on unexpected exit",
	RunE:  runSupervisor,
}

func init() {
	rootCmd.AddCommand(supervisorCmd)
	supervisorCmd.Flags().StringVar(&supervisorSession, "session", "", "session root directory")
	supervisorCmd.Flags().DurationVar(&supervisorPoll, "poll", 2*time.Second, "poll interval passed to every child")
	supervisorCmd.Flags().BoolVar(&supervisorDryRun, "dry-run", false, "pass --dry-run to every worker child")
	supervisorCmd.Flags().StringVar(&supervisorModel, "model", "", "model override passed to worker children")
	supervisorCmd.Flags().BoolVar(&supervisorSerial, "serial", false, "enable the global external-tool lock across all workers")
}

func runSupervisor(cmd *cobra.Command, args []string) error {
	root, err := resolveSession(supervisorSession)
	if err != nil {
		return withExitCode(2, err)
	}
	logger, closeFn, err := processLogger(root, "supervisor")
	if err != nil {
		return err
	}
	defer closeFn()

	cfg := config.Load(root)
	if supervisorSerial {
		cfg.GlobalLock = true
	}

	s := supervisor.New(root, cfg, logger)
	s.Poll = supervisorPoll
	s.DryRun = supervisorDryRun
	s.Model = supervisorModel
	return s.Run(context.Background())
}
