package worker

import (
	"path/filepath"

	"github.com/meshbus/meshbus/internal/constants"
	"github.com/meshbus/meshbus/internal/session"
)

// doneSentinel returns state/done/<mid>.<role>.ok.
func doneSentinel(p session.Paths, mid, role string) string {
	return filepath.Join(p.Done, mid+"."+role+".ok")
}

// processingLockDir returns state/processing/<mid>.<role>.lockdir.
func processingLockDir(p session.Paths, mid, role string) string {
	return filepath.Join(p.Processing, mid+"."+role+".lockdir")
}

// retriesFile returns state/processing/<mid>.<role>.retries.json.
func retriesFile(p session.Paths, mid, role string) string {
	return filepath.Join(p.Processing, mid+"."+role+".retries.json")
}

// archiveFile returns state/archive/<role>/<name>.
func archiveFile(p session.Paths, role, name string) string {
	return filepath.Join(p.RoleArchive(role), name)
}

// deadletterFile returns bus/deadletter/<role>/<name>.
func deadletterFile(p session.Paths, role, name string) string {
	return filepath.Join(p.RoleDeadletter(role), name)
}

// lastOutputFile returns the path the tool invocation is asked to write its
// final message to.
func lastOutputFile(p session.Paths, role, mid string) string {
	return filepath.Join(p.Artifacts, constants.DirAutopilot, role+"."+mid+".last.txt")
}
