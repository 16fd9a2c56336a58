// Package cmd implements the meshbus command-line surface: process control
// for the worker loop, router, and supervisor, task-board management, and
// two read-only monitors (watch, cat). One cobra.Command per file, mirroring
// the teacher's internal/cmd/root.go + per-command-file layout.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "meshbus",
	Short: "Coordinate multi-agent work over a filesystem-backed message bus",
	Long: `meshbus runs the coordination core for a multi-agent session: a durable
task board, per-role worker loops, an outbox router, and a supervising
foreground process that ties them together.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns a process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "meshbus:", err)
		if code, ok := exitCodeOf(err); ok {
			return code
		}
		return 1
	}
	return 0
}
