package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, refreshCmd(m.source)
		case "j", "down":
			if m.selectedRow < m.visibleRows()-1 {
				m.selectedRow++
			}
		case "k", "up":
			if m.selectedRow > 0 {
				m.selectedRow--
			}
		case "tab":
			m.activeTab = (m.activeTab + 1) % 3
			m.selectedRow = 0
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		return m, tea.Batch(refreshCmd(m.source), tickCmd())

	case RefreshMsg:
		m.err = msg.Err
		if msg.Err == nil {
			m.userTasks = msg.UserTasks
			m.systemTasks = msg.SystemTasks
			m.runs = msg.Runs
			m.lastRefresh = time.Now()
		}
	}

	return m, nil
}

func (m Model) visibleRows() int {
	switch m.activeTab {
	case 0:
		return len(m.runs)
	case 1:
		return len(m.userTasks)
	default:
		return len(m.systemTasks)
	}
}
