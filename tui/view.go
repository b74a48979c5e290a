package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/opsdeck/cos/internal/domain"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	runningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	blockedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	heldStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	tabActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Underline(true)

	tabInactiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("244"))

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255"))
)

var tabNames = []string{"Agents", "User queue", "System queue"}

// View renders the dashboard
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Chief of Staff"))
	b.WriteString("  ")
	for i, name := range tabNames {
		if i == m.activeTab {
			b.WriteString(tabActiveStyle.Render(name))
		} else {
			b.WriteString(tabInactiveStyle.Render(name))
		}
		b.WriteString("  ")
	}
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(blockedStyle.Render("error: " + m.err.Error()))
		b.WriteString("\n")
	}

	switch m.activeTab {
	case 0:
		b.WriteString(m.renderAgents())
	case 1:
		b.WriteString(m.renderQueue(m.userTasks))
	default:
		b.WriteString(m.renderQueue(m.systemTasks))
	}

	b.WriteString("\n")
	status := fmt.Sprintf(" autonomy: %s | agents: %d/%d | refreshed %s | q quit  r refresh  tab switch ",
		m.autonomyLevel, len(m.runs), m.maxAgents, humanize.Time(m.lastRefresh))
	b.WriteString(statusBarStyle.Render(status))

	return b.String()
}

func (m Model) renderAgents() string {
	if len(m.runs) == 0 {
		return sectionStyle.Render(pendingStyle.Render("no active agents"))
	}

	var rows []string
	now := time.Now()
	for i, run := range m.runs {
		line := fmt.Sprintf("%-10s %-38s %s", run.Status, run.TaskID,
			run.Duration(now).Round(time.Second))
		if i == m.selectedRow {
			line = "> " + line
		} else {
			line = "  " + line
		}
		rows = append(rows, runningStyle.Render(line))
	}
	return sectionStyle.Render(strings.Join(rows, "\n"))
}

func (m Model) renderQueue(tasks []*domain.Task) string {
	if len(tasks) == 0 {
		return sectionStyle.Render(pendingStyle.Render("queue is empty"))
	}

	var rows []string
	for i, t := range tasks {
		style := pendingStyle
		marker := " "
		switch {
		case t.Status == domain.StatusInProgress:
			style = runningStyle
		case t.Status == domain.StatusBlocked:
			style = blockedStyle
		case t.Status == domain.StatusPending && !t.Metadata.AutoApproved && !t.Metadata.Approved:
			style = heldStyle
			marker = "!"
		}

		desc := t.Description
		if len(desc) > 60 {
			desc = desc[:57] + "..."
		}
		line := fmt.Sprintf("%s %-8s %-12s %s", marker, t.Priority, t.Status, desc)
		if i == m.selectedRow {
			line = "> " + line
		} else {
			line = "  " + line
		}
		rows = append(rows, style.Render(line))
	}
	return sectionStyle.Render(strings.Join(rows, "\n"))
}
