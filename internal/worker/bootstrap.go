package worker

import (
	"os"
	"strings"

	"github.com/meshbus/meshbus/internal/constants"
	"github.com/meshbus/meshbus/internal/session"
	"github.com/meshbus/meshbus/internal/taskboard"
)

// parsedObjective is shared/task.md split into its objective line and
// acceptance bullets.
type parsedObjective struct {
	Objective  string
	Acceptance []string
}

// parseTaskMD reads shared/task.md: the first non-empty, non-heading line
// is the objective; subsequent "- " bullets are acceptance criteria.
func parseTaskMD(p session.Paths) parsedObjective {
	data, err := os.ReadFile(p.TaskFile())
	if err != nil {
		return parsedObjective{}
	}
	var out parsedObjective
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "- ") {
			out.Acceptance = append(out.Acceptance, strings.TrimPrefix(line, "- "))
			continue
		}
		if out.Objective == "" {
			out.Objective = line
		}
	}
	return out
}

// firstBuilderRole returns the first builder role present in roles, per
// constants.RoleOrder, used to own the bootstrap's implement task.
func firstBuilderRole(roles []string) string {
	present := make(map[string]bool, len(roles))
	for _, r := range roles {
		present[r] = true
	}
	for _, r := range constants.RoleOrder {
		if constants.BuilderRoles[r] && present[r] {
			return r
		}
	}
	return "builder-a"
}

// runBootstrap implements the Lead bootstrap short-circuit (spec.md §4.4):
// reads shared/task.md and, if no task yet references sourceMessageID,
// creates an implement/review/test task graph. It never invokes the
// external tool.
func runBootstrap(sessionRoot string, roles []string, sourceMessageID, createdBy string) ([]*taskboard.Task, error) {
	existing, err := taskboard.List(sessionRoot)
	if err != nil {
		return nil, err
	}
	for _, t := range existing {
		if t.SourceMessageID == sourceMessageID {
			return nil, nil // already bootstrapped from this message
		}
	}

	obj := parseTaskMD(session.Resolve(sessionRoot))
	title := obj.Objective
	if title == "" {
		title = "Implement the requested objective"
	}
	builder := firstBuilderRole(roles)

	implementTask, err := taskboard.AddTask(sessionRoot, taskboard.AddTaskInput{
		Title:           title,
		Owner:           builder,
		WorkType:        "implement",
		Intent:          constants.IntentImplement,
		Acceptance:      obj.Acceptance,
		CreatedBy:       createdBy,
		SourceMessageID: sourceMessageID,
	})
	if err != nil {
		return nil, err
	}

	reviewTask, err := taskboard.AddTask(sessionRoot, taskboard.AddTaskInput{
		Title:           "Review: " + title,
		Owner:           "reviewer",
		WorkType:        "review",
		Intent:          constants.IntentReview,
		Acceptance:      obj.Acceptance,
		DependsOn:       []string{implementTask.ID},
		CreatedBy:       createdBy,
		SourceMessageID: sourceMessageID,
	})
	if err != nil {
		return nil, err
	}

	testTask, err := taskboard.AddTask(sessionRoot, taskboard.AddTaskInput{
		Title:           "Test: " + title,
		Owner:           "tester",
		WorkType:        "test",
		Intent:          constants.IntentTest,
		Acceptance:      obj.Acceptance,
		DependsOn:       []string{implementTask.ID},
		CreatedBy:       createdBy,
		SourceMessageID: sourceMessageID,
	})
	if err != nil {
		return nil, err
	}

	return []*taskboard.Task{implementTask, reviewTask, testTask}, nil
}
