package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"animewatch/internal/navigator"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6AC1"))

	episodeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#50FA7B")).
			Bold(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFB86C"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))
)

// MenuState is what the episode menu shows.
type MenuState struct {
	Title   string
	Episode int
	Start   int
	Max     int
	// Status is a one-line notice, e.g. that the last episode was reached.
	Status string
}

type menuKeys struct {
	next     key.Binding
	previous key.Binding
	change   key.Binding
	quit     key.Binding
}

func defaultMenuKeys() menuKeys {
	return menuKeys{
		next: key.NewBinding(
			key.WithKeys("n", "N", "right", "l"),
			key.WithHelp("n", "next"),
		),
		previous: key.NewBinding(
			key.WithKeys("p", "P", "left", "h"),
			key.WithHelp("p", "previous"),
		),
		change: key.NewBinding(
			key.WithKeys("c", "C"),
			key.WithHelp("c", "change title"),
		),
		quit: key.NewBinding(
			key.WithKeys("q", "Q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

type menuModel struct {
	state  MenuState
	keys   menuKeys
	choice navigator.Action
	done   bool
}

func newMenuModel(state MenuState) menuModel {
	return menuModel{state: state, keys: defaultMenuKeys(), choice: navigator.Unknown}
}

func (m menuModel) Init() tea.Cmd { return nil }

func (m menuModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(km, m.keys.next):
		m.choice = navigator.Next
	case key.Matches(km, m.keys.previous):
		m.choice = navigator.Previous
	case key.Matches(km, m.keys.change):
		m.choice = navigator.ChangeTitle
	case key.Matches(km, m.keys.quit):
		m.choice = navigator.Quit
	default:
		return m, nil
	}
	m.done = true
	return m, tea.Quit
}

func (m menuModel) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(m.state.Title))
	b.WriteString("\n")
	b.WriteString(episodeStyle.Render(fmt.Sprintf("  Episode %d (%d-%d)", m.state.Episode, m.state.Start, m.state.Max)))
	b.WriteString("\n")
	if m.state.Status != "" {
		b.WriteString(statusStyle.Render("  " + m.state.Status))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	bindings := []key.Binding{m.keys.next, m.keys.previous, m.keys.change, m.keys.quit}
	help := make([]string, 0, len(bindings))
	for _, kb := range bindings {
		h := kb.Help()
		help = append(help, fmt.Sprintf("[%s] %s", h.Key, h.Desc))
	}
	b.WriteString(helpStyle.Render("  " + strings.Join(help, "  ")))
	b.WriteString("\n")
	return b.String()
}

// runMenu shows the episode menu until one of its keys is pressed.
func runMenu(in io.Reader, out io.Writer, state MenuState) (navigator.Action, error) {
	p := tea.NewProgram(newMenuModel(state), tea.WithInput(in), tea.WithOutput(out))
	final, err := p.Run()
	if err != nil {
		return navigator.Unknown, fmt.Errorf("running menu: %w", err)
	}
	m, ok := final.(menuModel)
	if !ok || !m.done {
		return navigator.Quit, nil
	}
	return m.choice, nil
}
