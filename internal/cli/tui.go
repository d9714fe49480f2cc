package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/matzehuels/stackpip/pkg/sitepackages"
)

var (
	listSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	listNormalStyle   = lipgloss.NewStyle().Foreground(colorWhite)
	listMarkedStyle   = lipgloss.NewStyle().Foreground(colorRed)
)

// PickerModel is the bubbletea model for choosing distributions to remove.
// Space toggles, enter confirms, q aborts.
type PickerModel struct {
	Dists     []*sitepackages.Distribution
	Cursor    int
	Marked    map[int]bool
	Confirmed bool
	Height    int
	Offset    int
}

// NewPickerModel creates a picker over dists.
func NewPickerModel(dists []*sitepackages.Distribution) PickerModel {
	return PickerModel{
		Dists:  dists,
		Marked: make(map[int]bool),
		Height: 15,
	}
}

func (m PickerModel) Init() tea.Cmd {
	return nil
}

func (m PickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.Marked = map[int]bool{}
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
				if m.Cursor < m.Offset {
					m.Offset = m.Cursor
				}
			}
		case "down", "j":
			if m.Cursor < len(m.Dists)-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		case " ", "x":
			if len(m.Dists) > 0 {
				if m.Marked[m.Cursor] {
					delete(m.Marked, m.Cursor)
				} else {
					m.Marked[m.Cursor] = true
				}
			}
		case "enter":
			m.Confirmed = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.Height = msg.Height - 6
		if m.Height < 5 {
			m.Height = 5
		}
	}
	return m, nil
}

func (m PickerModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Select distributions to uninstall"))
	b.WriteString("\n")
	b.WriteString(StyleDim.Render("↑/↓ navigate  space mark  ⏎ uninstall  q quit"))
	b.WriteString("\n\n")

	end := min(m.Offset+m.Height, len(m.Dists))
	for i := m.Offset; i < end; i++ {
		d := m.Dists[i]
		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}
		box := "[ ]"
		if m.Marked[i] {
			box = "[x]"
		}
		line := fmt.Sprintf("%s%s %-32s %s", cursor, box, d.Name, StyleDim.Render(d.Version))

		switch {
		case i == m.Cursor:
			b.WriteString(listSelectedStyle.Render(line))
		case m.Marked[i]:
			b.WriteString(listMarkedStyle.Render(line))
		default:
			b.WriteString(listNormalStyle.Render(line))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(StyleDim.Render(fmt.Sprintf("  %d marked  [%d/%d]", len(m.Marked), m.Cursor+1, len(m.Dists))))
	return b.String()
}

// Selection returns the marked distributions once the user confirmed.
func (m PickerModel) Selection() []*sitepackages.Distribution {
	if !m.Confirmed {
		return nil
	}
	var out []*sitepackages.Distribution
	for i, d := range m.Dists {
		if m.Marked[i] {
			out = append(out, d)
		}
	}
	return out
}
