package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/meshbus/meshbus/internal/session"
	"github.com/meshbus/meshbus/internal/taskboard"
)

var watchSession string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live read-only dashboard of task board and bus depth",
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchSession, "session", "", "session root directory")
}

func runWatch(cmd *cobra.Command, args []string) error {
	root, err := resolveSession(watchSession)
	if err != nil {
		return withExitCode(2, err)
	}
	m := newWatchModel(root)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

// watchKeyMap is the dashboard's key binding set, grounded on the teacher's
// raid TUI KeyMap pattern.
type watchKeyMap struct {
	Quit key.Binding
	Up   key.Binding
	Down key.Binding
}

func defaultWatchKeyMap() watchKeyMap {
	return watchKeyMap{
		Quit: key.NewBinding(key.WithKeys("q", "ctrl+c", "esc")),
		Up:   key.NewBinding(key.WithKeys("up", "k")),
		Down: key.NewBinding(key.WithKeys("down", "j")),
	}
}

// busDepth counts the files waiting in one role's inbox and deadletter,
// plus the shared bus outbox (the same count for every role).
type busDepth struct {
	inbox, outbox, deadletter int
}

type watchModel struct {
	sessionRoot string
	paths       session.Paths
	keys        watchKeyMap
	viewport    viewport.Model
	ready       bool
	width       int
	height      int

	roles  []string
	depths map[string]busDepth
	tasks  []*taskboard.Task
	err    error
}

func newWatchModel(sessionRoot string) watchModel {
	return watchModel{
		sessionRoot: sessionRoot,
		paths:       session.Resolve(sessionRoot),
		keys:        defaultWatchKeyMap(),
		depths:      map[string]busDepth{},
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.refresh, tickEvery(2*time.Second))
}

type watchTickMsg time.Time

func tickEvery(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return watchTickMsg(t) })
}

type watchDataMsg struct {
	roles  []string
	depths map[string]busDepth
	tasks  []*taskboard.Task
	err    error
}

func (m watchModel) refresh() tea.Msg {
	roles, err := session.ListRoles(m.sessionRoot)
	if err != nil {
		return watchDataMsg{err: err}
	}
	sort.Strings(roles)

	depths := make(map[string]busDepth, len(roles))
	for _, r := range roles {
		depths[r] = busDepth{
			inbox:      countFiles(m.paths.RoleInbox(r)),
			outbox:     countFiles(m.paths.Outbox),
			deadletter: countFiles(m.paths.RoleDeadletter(r)),
		}
	}

	tasks, err := taskboard.List(m.sessionRoot)
	if err != nil {
		return watchDataMsg{roles: roles, depths: depths, err: err}
	}
	return watchDataMsg{roles: roles, depths: depths, tasks: tasks}
}

func countFiles(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() {
			n++
		}
	}
	return n
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		headerHeight := 2
		footerHeight := 2
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerHeight - footerHeight
		}
		m.width, m.height = msg.Width, msg.Height
		m.viewport.SetContent(m.renderBody())
		return m, nil

	case watchTickMsg:
		return m, tea.Batch(m.refresh, tickEvery(2*time.Second))

	case watchDataMsg:
		m.roles, m.depths, m.tasks, m.err = msg.roles, msg.depths, msg.tasks, msg.err
		if m.ready {
			m.viewport.SetContent(m.renderBody())
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m watchModel) View() string {
	if !m.ready {
		return "loading…"
	}
	header := headerStyle.Render(fmt.Sprintf("meshbus watch — %s", filepath.Base(m.sessionRoot)))
	footer := dimStyle.Render("q to quit · refreshes every 2s")
	return header + "\n" + m.viewport.View() + "\n" + footer
}

func (m watchModel) renderBody() string {
	var b strings.Builder
	if m.err != nil {
		fmt.Fprintf(&b, "error: %v\n\n", m.err)
	}

	fmt.Fprintln(&b, headerStyle.Render("roles"))
	for _, r := range m.roles {
		d := m.depths[r]
		fmt.Fprintf(&b, "  %-12s inbox=%-3d outbox=%-3d deadletter=%-3d\n", r, d.inbox, d.outbox, d.deadletter)
	}

	fmt.Fprintln(&b)
	fmt.Fprintln(&b, headerStyle.Render("tasks"))
	if len(m.tasks) == 0 {
		fmt.Fprintln(&b, dimStyle.Render("  (none)"))
	}
	for _, t := range m.tasks {
		fmt.Fprintf(&b, "  %s\n", formatBriefColor(t))
	}

	return b.String()
}
