package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/meshbus/meshbus/internal/config"
	"github.com/meshbus/meshbus/internal/router"
)

var (
	routerSession string
	routerPoll    time.Duration
)

var routerCmd = &cobra.Command{
	Use:   "router",
	Short: "Forward outbox receipts and dispatch their embedded directives",
}

var routerDaemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the router loop in the foreground until a termination signal arrives",
	RunE:  runRouterDaemon,
}

var routerOnceCmd = &cobra.Command{
	Use:   "once",
	Short: "Process the outbox once and exit",
	RunE:  runRouterOnce,
}

func init() {
	rootCmd.AddCommand(routerCmd)
	routerCmd.AddCommand(routerDaemonCmd, routerOnceCmd)

	for _, c := range []*cobra.Command{routerDaemonCmd, routerOnceCmd} {
		c.Flags().StringVar(&routerSession, "session", "", "session root directory")
	}
	routerDaemonCmd.Flags().DurationVar(&routerPoll, "poll", 2*time.Second, "outbox poll interval")
}

func newRouter(sessionRoot string) (*router.Router, func(), error) {
	logger, closeFn, err := processLogger(sessionRoot, "router")
	if err != nil {
		return nil, nil, err
	}
	cfg := config.Load(sessionRoot)
	return router.New(sessionRoot, cfg, logger), closeFn, nil
}

func runRouterDaemon(cmd *cobra.Command, args []string) error {
	root, err := resolveSession(routerSession)
	if err != nil {
		return withExitCode(2, err)
	}
	r, closeFn, err := newRouter(root)
	if err != nil {
		return err
	}
	defer closeFn()
	return r.Daemon(context.Background(), routerPoll)
}

func runRouterOnce(cmd *cobra.Command, args []string) error {
	root, err := resolveSession(routerSession)
	if err != nil {
		return withExitCode(2, err)
	}
	r, closeFn, err := newRouter(root)
	if err != nil {
		return err
	}
	defer closeFn()

	did, err := r.Once()
	if err != nil {
		return err
	}
	if !did {
		return withExitCode(3, fmt.Errorf("nothing to do"))
	}
	return nil
}
