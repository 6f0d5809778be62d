package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/wagi/route"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	routeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	moduleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	matchStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	missStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type inspectorState int

const (
	stateListRoutes inspectorState = iota
	stateShowDetail
	stateMatchPath
)

type inspectorModel struct {
	table    *route.Table
	input    textinput.Model
	result   string
	selected int
	state    inspectorState
}

func newInspectorModel(table *route.Table) *inspectorModel {
	ti := textinput.New()
	ti.Placeholder = "/path/to/match"
	ti.Prompt = "path: "
	ti.Width = 40
	return &inspectorModel{table: table, input: ti}
}

func (m *inspectorModel) Init() tea.Cmd { return nil }

func (m *inspectorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state == stateListRoutes {
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateListRoutes && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateListRoutes && m.selected < m.table.Len()-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateListRoutes:
				m.state = stateShowDetail
			case stateMatchPath:
				m.result = m.matchResult(m.input.Value())
			case stateShowDetail:
				m.state = stateListRoutes
			}

		case "/":
			if m.state == stateListRoutes {
				m.state = stateMatchPath
				m.result = ""
				m.input.SetValue("")
				m.input.Focus()
				return m, textinput.Blink
			}

		case "esc":
			m.state = stateListRoutes
			m.result = ""
			m.input.Blur()
		}
	}

	if m.state == stateMatchPath {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *inspectorModel) matchResult(path string) string {
	h, tail, ok := m.table.Match(path)
	if !ok {
		return missStyle.Render("no route matches " + path)
	}
	out := matchStyle.Render(h.Pattern.String()) + " -> " + h.Entrypoint
	if tail != "" {
		out += "  (relative path: " + tail + ")"
	}
	return out
}

func (m *inspectorModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("WAGI Routes"))
	b.WriteString("\n\n")

	entries := m.table.Entries()

	switch m.state {
	case stateListRoutes:
		for i, h := range entries {
			line := fmt.Sprintf("%-30s %s", h.Pattern.String(), moduleStyle.Render(h.Module.Name))
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + routeStyle.Render(line))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter details • / match a path • q quit"))

	case stateShowDetail:
		h := entries[m.selected]
		b.WriteString(routeStyle.Render(h.Pattern.String()))
		b.WriteString("\n\n")
		fmt.Fprintf(&b, "module:      %s\n", h.Module.Name)
		fmt.Fprintf(&b, "hash:        %s\n", h.Module.Hash[:12])
		fmt.Fprintf(&b, "entrypoint:  %s\n", h.Entrypoint)
		if len(h.Volumes) > 0 {
			b.WriteString("volumes:\n")
			for _, guest := range sortedKeys(h.Volumes) {
				fmt.Fprintf(&b, "  %s -> %s\n", guest, h.Volumes[guest])
			}
		}
		if len(h.AllowedHosts) > 0 {
			fmt.Fprintf(&b, "allowed hosts: %s\n", strings.Join(h.AllowedHosts, ", "))
		} else {
			b.WriteString("allowed hosts: (outbound http denied)\n")
		}
		if len(h.Environment) > 0 {
			b.WriteString("environment:\n")
			for _, k := range sortedKeys(h.Environment) {
				fmt.Fprintf(&b, "  %s=%s\n", k, h.Environment[k])
			}
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter/esc back • ctrl+c quit"))

	case stateMatchPath:
		b.WriteString("Match a request path against the table:\n\n")
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		if m.result != "" {
			b.WriteString(m.result)
			b.WriteString("\n\n")
		}
		b.WriteString(helpStyle.Render("enter match • esc back"))
	}

	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func runInteractive(table *route.Table) error {
	p := tea.NewProgram(newInspectorModel(table), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
