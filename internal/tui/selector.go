package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/billmal071/archivedl/internal/db"
)

// RipItem wraps a Rip for the list component
type RipItem struct {
	Rip *db.Rip
}

func (r RipItem) Title() string {
	if r.Rip.Title != "" {
		return r.Rip.Title
	}
	return r.Rip.BookID
}

func (r RipItem) Description() string {
	return strings.Join(append([]string{string(r.Rip.Status)}, r.meta()...), " | ")
}

func (r RipItem) meta() []string {
	parts := []string{r.Rip.BookID}
	if r.Rip.PageCount > 0 {
		parts = append(parts, fmt.Sprintf("%d pages", r.Rip.PageCount))
	}
	return append(parts, r.Rip.UpdatedAt.Format("2006-01-02 15:04"))
}

func (r RipItem) FilterValue() string { return r.Title() + " " + r.Rip.BookID }

// RipDelegate handles rendering of rip items
type RipDelegate struct{}

func (d RipDelegate) Height() int                             { return 2 }
func (d RipDelegate) Spacing() int                            { return 1 }
func (d RipDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d RipDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	rip, ok := item.(RipItem)
	if !ok {
		return
	}

	title := Truncate(rip.Title(), 60)
	var str string
	if index == m.Index() {
		str = SelectedStyle.Render(fmt.Sprintf("  ➤ [%d] %s", rip.Rip.ID, title))
	} else {
		str = NormalStyle.Render(fmt.Sprintf("    [%d] %s", rip.Rip.ID, title))
	}
	str += "\n      " + StatusStyle(rip.Rip.Status).Render(string(rip.Rip.Status)) +
		DimStyle.Render(" | "+strings.Join(rip.meta(), " | "))

	fmt.Fprint(w, str)
}

// RipSelectorModel is the Bubble Tea model for picking a rip
type RipSelectorModel struct {
	list     list.Model
	selected *db.Rip
	quitting bool
}

// NewRipSelector creates a new rip selector TUI
func NewRipSelector(rips []*db.Rip, title string) RipSelectorModel {
	items := make([]list.Item, len(rips))
	for i, r := range rips {
		items[i] = RipItem{Rip: r}
	}

	height := 4 + len(rips)*3
	if height > 24 {
		height = 24
	}
	l := list.New(items, RipDelegate{}, 70, height)
	l.Title = title
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.SetShowHelp(true)
	l.Styles.Title = TitleStyle

	return RipSelectorModel{list: l}
}

func (m RipSelectorModel) Init() tea.Cmd {
	return nil
}

func (m RipSelectorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Let the filter input consume keys while it is open
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			if item, ok := m.list.SelectedItem().(RipItem); ok {
				m.selected = item.Rip
			}
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.list.SetWidth(msg.Width)
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m RipSelectorModel) View() string {
	if m.selected != nil {
		return SuccessStyle.Render(fmt.Sprintf("\n  ✓ Selected: %s\n", RipItem{m.selected}.Title()))
	}
	if m.quitting {
		return DimStyle.Render("\n  Cancelled.\n")
	}

	help := HelpStyle.Render("  " + strings.Join([]string{"↑/↓: navigate", "/: filter", "enter: select", "q/esc: cancel"}, " • "))
	return "\n" + m.list.View() + "\n" + help
}

// Selected returns the selected rip, or nil if cancelled
func (m RipSelectorModel) Selected() *db.Rip {
	return m.selected
}

// RunRipSelector displays the TUI and returns the selected rip
func RunRipSelector(rips []*db.Rip, title string) (*db.Rip, error) {
	if len(rips) == 0 {
		return nil, fmt.Errorf("no rips to select from")
	}

	p := tea.NewProgram(NewRipSelector(rips, title))
	finalModel, err := p.Run()
	if err != nil {
		return nil, err
	}
	return finalModel.(RipSelectorModel).Selected(), nil
}
