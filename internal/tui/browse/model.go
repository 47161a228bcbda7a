package browse

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"flowparam/internal/graph"
	"flowparam/internal/runscript"
)

// stepItem is one step with its loaded parameters and run script status.
type stepItem struct {
	step   graph.Step
	params []graph.Parameter
	status runscript.Status
}

type loadedMsg []stepItem

type loadErrMsg struct{ err error }

// Model is the main BubbleTea model for the browse TUI.
type Model struct {
	graphRoot string

	width  int
	height int

	loading  bool
	items    []stepItem
	selected int
	loadErr  error

	spinner spinner.Model
	theme   Theme
}

// New creates a new browse TUI model over the metadata store at graphRoot.
func New(graphRoot string) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		graphRoot: graphRoot,
		loading:   true,
		spinner:   sp,
		theme:     NewDefaultTheme(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		loadSteps(m.graphRoot),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			if m.selected < len(m.items)-1 {
				m.selected++
			}
		case "g":
			m.selected = 0
		case "G":
			if len(m.items) > 0 {
				m.selected = len(m.items) - 1
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case loadedMsg:
		m.loading = false
		m.items = msg
		if m.selected >= len(m.items) {
			m.selected = 0
		}

	case loadErrMsg:
		m.loading = false
		m.loadErr = msg.err

	case spinner.TickMsg:
		if m.loading {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
	}

	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.theme.Title.Render(fmt.Sprintf("flowparam browse -- %s", m.graphRoot)))
	b.WriteString("\n\n")

	if m.loading {
		b.WriteString(fmt.Sprintf("%s loading graph...\n", m.spinner.View()))
		return b.String()
	}
	if m.loadErr != nil {
		b.WriteString(fmt.Sprintf("error: %v\n", m.loadErr))
		b.WriteString(m.theme.Dim.Render("press q to quit"))
		return b.String()
	}
	if len(m.items) == 0 {
		b.WriteString("no steps in graph\n")
		b.WriteString(m.theme.Dim.Render("press q to quit"))
		return b.String()
	}

	b.WriteString(m.theme.Header.Render("Steps"))
	b.WriteString("\n")
	for i, item := range m.items {
		line := fmt.Sprintf("  %d-%s %s", item.step.ID, item.step.Name, m.statusBadge(item.status))
		if i == m.selected {
			line = m.theme.Highlight.Render("> " + strings.TrimPrefix(line, "  "))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	current := m.items[m.selected]
	b.WriteString("\n")
	b.WriteString(m.theme.Header.Render(fmt.Sprintf("Parameters -- %d-%s", current.step.ID, current.step.Name)))
	b.WriteString("\n")
	if len(current.params) == 0 {
		b.WriteString(m.theme.Dim.Render("  (no parameters)"))
		b.WriteString("\n")
	}
	for _, p := range current.params {
		b.WriteString(fmt.Sprintf("  %s = %s\n", p.Key, p.Value))
	}

	b.WriteString("\n")
	b.WriteString(m.theme.Dim.Render("j/k navigate · q quit"))
	b.WriteString("\n")

	return b.String()
}

func (m Model) statusBadge(status runscript.Status) string {
	switch status {
	case runscript.StatusOK:
		return m.theme.StatusOK.Render("[ok]")
	case runscript.StatusStale:
		return m.theme.StatusStale.Render("[stale]")
	default:
		return m.theme.StatusMissing.Render("[no script]")
	}
}

func loadSteps(root string) tea.Cmd {
	return func() tea.Msg {
		g, err := graph.Open(root)
		if err != nil {
			return loadErrMsg{err: err}
		}

		items := make([]stepItem, 0, len(g.Steps()))
		for _, step := range g.Steps() {
			doc, err := graph.LoadDocument(step.ConfigPath())
			if err != nil {
				return loadErrMsg{err: err}
			}
			status, err := runscript.Verify(step)
			if err != nil {
				status = runscript.StatusMissing
			}
			items = append(items, stepItem{step: step, params: doc.Parameters(), status: status})
		}
		return loadedMsg(items)
	}
}
