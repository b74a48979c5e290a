// Package tui renders a read-only status dashboard over the task queues
// and active agents.
package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/opsdeck/cos/internal/domain"
	"github.com/opsdeck/cos/internal/taskstore"
)

// Source provides the data the dashboard refreshes from.
type Source interface {
	ListTasks(opts taskstore.ListOptions) ([]*domain.Task, error)
	ListActiveRuns() ([]*domain.AgentRun, error)
}

// Model is the TUI application model
type Model struct {
	source Source

	userTasks   []*domain.Task
	systemTasks []*domain.Task
	runs        []*domain.AgentRun

	autonomyLevel string
	maxAgents     int

	// UI state
	width       int
	height      int
	activeTab   int
	selectedRow int

	lastRefresh time.Time
	err         error
}

// ModelConfig holds initial settings for the TUI model
type ModelConfig struct {
	Source        Source
	AutonomyLevel string
	MaxAgents     int
}

// NewModel creates a new TUI model
func NewModel(cfg ModelConfig) Model {
	return Model{
		source:        cfg.Source,
		autonomyLevel: cfg.AutonomyLevel,
		maxAgents:     cfg.MaxAgents,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(refreshCmd(m.source), tickCmd())
}

// TickMsg triggers a refresh
type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// RefreshMsg carries freshly loaded queue and agent state.
type RefreshMsg struct {
	UserTasks   []*domain.Task
	SystemTasks []*domain.Task
	Runs        []*domain.AgentRun
	Err         error
}

func refreshCmd(source Source) tea.Cmd {
	return func() tea.Msg {
		var msg RefreshMsg
		msg.UserTasks, msg.Err = source.ListTasks(taskstore.ListOptions{Queue: domain.QueueUser})
		if msg.Err == nil {
			msg.SystemTasks, msg.Err = source.ListTasks(taskstore.ListOptions{Queue: domain.QueueSystem})
		}
		if msg.Err == nil {
			msg.Runs, msg.Err = source.ListActiveRuns()
		}
		return msg
	}
}
