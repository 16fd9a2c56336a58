// Command meshbus coordinates multi-agent work over a filesystem-backed
// message bus: a durable task board, per-role worker loops, an outbox
// router, and a supervisor that runs them together.
package main

import (
	"os"

	"github.com/meshbus/meshbus/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
