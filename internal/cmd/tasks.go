package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/meshbus/meshbus/internal/config"
	"github.com/meshbus/meshbus/internal/taskboard"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect and mutate the durable task board",
}

func init() {
	rootCmd.AddCommand(tasksCmd)
	tasksCmd.AddCommand(
		tasksInitCmd, tasksListCmd, tasksAddCmd, tasksShowCmd,
		tasksDispatchableCmd, tasksClaimCmd, tasksCompleteCmd,
		tasksFailCmd, tasksDispatchCmd,
	)
}

// --- init ---------------------------------------------------------------

var tasksInitSession string

var tasksInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the task board file if it doesn't already exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveSession(tasksInitSession)
		if err != nil {
			return withExitCode(2, err)
		}
		return taskboard.Ensure(root)
	},
}

func init() {
	tasksInitCmd.Flags().StringVar(&tasksInitSession, "session", "", "session root directory")
}

// --- list -----------------------------------------------------------------

var (
	tasksListSession string
	tasksListStatus  []string
	tasksListJSON    bool
)

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks, optionally filtered by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveSession(tasksListSession)
		if err != nil {
			return withExitCode(2, err)
		}
		tasks, err := taskboard.List(root, tasksListStatus...)
		if err != nil {
			return err
		}
		if tasksListJSON {
			return printJSON(tasks)
		}
		for _, t := range tasks {
			fmt.Println(formatBriefColor(t))
		}
		return nil
	},
}

func init() {
	tasksListCmd.Flags().StringVar(&tasksListSession, "session", "", "session root directory")
	tasksListCmd.Flags().StringSliceVar(&tasksListStatus, "status", nil, "filter by status (repeatable)")
	tasksListCmd.Flags().BoolVar(&tasksListJSON, "json", false, "output as JSON")
}

func formatBriefColor(t *taskboard.Task) string {
	brief := taskboard.FormatBrief(t)
	// FormatBrief's first field is the id; recolor just the status word by
	// string-replacing its plain rendering with the styled one once.
	return strings.Replace(brief, "| "+t.Status, "| "+renderStatus(t.Status), 1)
}

// --- add --------------------------------------------------------------

var tasksAddIn struct {
	session         string
	title           string
	owner           string
	workType        string
	risk            string
	intent          string
	acceptance      []string
	dependsOn       []string
	createdBy       string
	sourceMessageID string
}

var tasksAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a new pending task",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveSession(tasksAddIn.session)
		if err != nil {
			return withExitCode(2, err)
		}
		t, err := taskboard.AddTask(root, taskboard.AddTaskInput{
			Title:           tasksAddIn.title,
			Owner:           tasksAddIn.owner,
			WorkType:        tasksAddIn.workType,
			Risk:            tasksAddIn.risk,
			Acceptance:      tasksAddIn.acceptance,
			DependsOn:       tasksAddIn.dependsOn,
			Intent:          tasksAddIn.intent,
			CreatedBy:       tasksAddIn.createdBy,
			SourceMessageID: tasksAddIn.sourceMessageID,
		})
		if err != nil {
			return err
		}
		fmt.Println(taskboard.FormatBrief(t))
		return nil
	},
}

func init() {
	f := tasksAddCmd.Flags()
	f.StringVar(&tasksAddIn.session, "session", "", "session root directory")
	f.StringVar(&tasksAddIn.title, "title", "", "task title (required)")
	f.StringVar(&tasksAddIn.owner, "owner", "", "role this task is reserved for, if any")
	f.StringVar(&tasksAddIn.workType, "work-type", "", "work type (default: implement)")
	f.StringVar(&tasksAddIn.risk, "risk", "", "risk level: low|medium|high (default: low)")
	f.StringVar(&tasksAddIn.intent, "intent", "", "dispatch intent (default: implement)")
	f.StringSliceVar(&tasksAddIn.acceptance, "acceptance", nil, "acceptance criterion line (repeatable)")
	f.StringSliceVar(&tasksAddIn.dependsOn, "depends-on", nil, "id of a task this one depends on (repeatable)")
	f.StringVar(&tasksAddIn.createdBy, "created-by", "", "who created this task (default: system)")
	f.StringVar(&tasksAddIn.sourceMessageID, "source-message-id", "", "message id that prompted this task, if any")
}

// --- show -----------------------------------------------------------------

var (
	tasksShowSession string
	tasksShowJSON    bool
)

var tasksShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show one task in full, including its history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveSession(tasksShowSession)
		if err != nil {
			return withExitCode(2, err)
		}
		t, err := taskboard.Get(root, args[0])
		if err != nil {
			return err
		}
		if t == nil {
			return withExitCode(3, fmt.Errorf("task not found: %s", args[0]))
		}
		if tasksShowJSON {
			return printJSON(t)
		}
		printTaskDetail(t)
		return nil
	},
}

func init() {
	tasksShowCmd.Flags().StringVar(&tasksShowSession, "session", "", "session root directory")
	tasksShowCmd.Flags().BoolVar(&tasksShowJSON, "json", false, "output as JSON")
}

func printTaskDetail(t *taskboard.Task) {
	fmt.Println(headerStyle.Render(t.ID) + "  " + t.Title)
	fmt.Printf("status:     %s\n", renderStatus(t.Status))
	fmt.Printf("owner:      %s\n", orDash(t.Owner))
	fmt.Printf("claimed_by: %s\n", orDash(t.ClaimedBy))
	fmt.Printf("work_type:  %s   risk: %s   intent: %s\n", t.WorkType, t.Risk, t.Intent)
	if len(t.DependsOn) > 0 {
		fmt.Printf("depends_on: %s\n", strings.Join(t.DependsOn, ", "))
	}
	if len(t.Acceptance) > 0 {
		fmt.Println("acceptance:")
		for _, a := range t.Acceptance {
			fmt.Printf("  - %s\n", a)
		}
	}
	if t.Dispatch != nil {
		fmt.Printf("dispatch:   %s -> %s (intent=%s, message=%s, at=%s)\n",
			t.Dispatch.From, t.Dispatch.To, t.Dispatch.Intent, t.Dispatch.MessageID, t.Dispatch.At)
	}
	if len(t.Evidence) > 0 {
		fmt.Println("evidence:")
		for _, e := range t.Evidence {
			fmt.Printf("  - %s\n", e)
		}
	}
	if t.LastError != "" {
		fmt.Printf("last_error: %s (by %s at %s)\n", t.LastError, t.LastErrorBy, t.LastErrorAt)
	}
	if len(t.History) > 0 {
		fmt.Println(dimStyle.Render("history:"))
		for _, h := range t.History {
			fmt.Printf("  %s  %-10s by=%-9s %s\n", h.At, h.Action, h.By, h.Note)
		}
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// --- dispatchable -----------------------------------------------------

var (
	tasksDispatchableSession string
	tasksDispatchableOwner   string
	tasksDispatchableJSON    bool
)

var tasksDispatchableCmd = &cobra.Command{
	Use:   "dispatchable",
	Short: "List pending tasks with satisfied dependencies and no active dispatch",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveSession(tasksDispatchableSession)
		if err != nil {
			return withExitCode(2, err)
		}
		tasks, err := taskboard.ListDispatchable(root, tasksDispatchableOwner)
		if err != nil {
			return err
		}
		if tasksDispatchableJSON {
			return printJSON(tasks)
		}
		for _, t := range tasks {
			fmt.Println(formatBriefColor(t))
		}
		return nil
	},
}

func init() {
	tasksDispatchableCmd.Flags().StringVar(&tasksDispatchableSession, "session", "", "session root directory")
	tasksDispatchableCmd.Flags().StringVar(&tasksDispatchableOwner, "owner", "", "restrict to this owner role")
	tasksDispatchableCmd.Flags().BoolVar(&tasksDispatchableJSON, "json", false, "output as JSON")
}

// --- claim ------------------------------------------------------------

var tasksClaimIn struct {
	session   string
	role      string
	messageID string
}

var tasksClaimCmd = &cobra.Command{
	Use:   "claim <task-id>",
	Short: "Claim a task for a role",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveSession(tasksClaimIn.session)
		if err != nil {
			return withExitCode(2, err)
		}
		ok, t, reason, err := taskboard.ClaimTask(root, args[0], tasksClaimIn.role, tasksClaimIn.messageID)
		if err != nil {
			return err
		}
		if !ok {
			return withExitCode(4, fmt.Errorf("claim failed: %s", reason))
		}
		fmt.Println(taskboard.FormatBrief(t))
		return nil
	},
}

func init() {
	f := tasksClaimCmd.Flags()
	f.StringVar(&tasksClaimIn.session, "session", "", "session root directory")
	f.StringVar(&tasksClaimIn.role, "role", "", "claiming role (required)")
	f.StringVar(&tasksClaimIn.messageID, "message-id", "", "message id recorded against the claim")
}

// --- complete -----------------------------------------------------------

var tasksCompleteIn struct {
	session     string
	role        string
	evidence    string
	receiptFile string
}

var tasksCompleteCmd = &cobra.Command{
	Use:   "complete <task-id>",
	Short: "Mark a claimed task completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveSession(tasksCompleteIn.session)
		if err != nil {
			return withExitCode(2, err)
		}
		ok, t, reason, err := taskboard.CompleteTask(root, args[0], tasksCompleteIn.role, tasksCompleteIn.evidence, tasksCompleteIn.receiptFile)
		if err != nil {
			return err
		}
		if !ok {
			return withExitCode(5, fmt.Errorf("complete failed: %s", reason))
		}
		fmt.Println(taskboard.FormatBrief(t))
		return nil
	},
}

func init() {
	f := tasksCompleteCmd.Flags()
	f.StringVar(&tasksCompleteIn.session, "session", "", "session root directory")
	f.StringVar(&tasksCompleteIn.role, "role", "", "completing role (required)")
	f.StringVar(&tasksCompleteIn.evidence, "evidence", "", "evidence note to append")
	f.StringVar(&tasksCompleteIn.receiptFile, "receipt-file", "", "receipt file name to record")
}

// --- fail -----------------------------------------------------------------

var tasksFailIn struct {
	session  string
	role     string
	errText  string
	terminal bool
}

var tasksFailCmd = &cobra.Command{
	Use:   "fail <task-id>",
	Short: "Record an error against a task, optionally marking it terminally failed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveSession(tasksFailIn.session)
		if err != nil {
			return withExitCode(2, err)
		}
		ok, t, reason, err := taskboard.MarkTaskFailed(root, args[0], tasksFailIn.role, tasksFailIn.errText, tasksFailIn.terminal)
		if err != nil {
			return err
		}
		if !ok {
			return withExitCode(6, fmt.Errorf("fail update rejected: %s", reason))
		}
		fmt.Println(taskboard.FormatBrief(t))
		return nil
	},
}

func init() {
	f := tasksFailCmd.Flags()
	f.StringVar(&tasksFailIn.session, "session", "", "session root directory")
	f.StringVar(&tasksFailIn.role, "role", "", "reporting role (required)")
	f.StringVar(&tasksFailIn.errText, "error", "", "error text")
	f.BoolVar(&tasksFailIn.terminal, "terminal", false, "mark the task status failed, not just annotate it")
}

// --- dispatch ---------------------------------------------------------

var tasksDispatchIn struct {
	session   string
	from      string
	to        string
	intent    string
	messageID string
}

var tasksDispatchCmd = &cobra.Command{
	Use:   "dispatch <task-id>",
	Short: "Bind a task to the message that carries it to its owner",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveSession(tasksDispatchIn.session)
		if err != nil {
			return withExitCode(2, err)
		}
		cfg := config.Load(root)
		ok, t, reason, err := taskboard.SetDispatch(root, args[0], tasksDispatchIn.from, tasksDispatchIn.to, tasksDispatchIn.intent, tasksDispatchIn.messageID, cfg.DispatchStaleSeconds)
		if err != nil {
			return err
		}
		if !ok {
			return withExitCode(7, fmt.Errorf("dispatch update rejected: %s", reason))
		}
		fmt.Println(taskboard.FormatBrief(t))
		return nil
	},
}

func init() {
	f := tasksDispatchCmd.Flags()
	f.StringVar(&tasksDispatchIn.session, "session", "", "session root directory")
	f.StringVar(&tasksDispatchIn.from, "from", "", "dispatching role")
	f.StringVar(&tasksDispatchIn.to, "to", "", "owning role")
	f.StringVar(&tasksDispatchIn.intent, "intent", "", "dispatch intent")
	f.StringVar(&tasksDispatchIn.messageID, "message-id", "", "message id that carries the task (required)")
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
