package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/opsdeck/cos/internal/domain"
	"github.com/opsdeck/cos/internal/taskstore"
)

type fakeSource struct {
	user   []*domain.Task
	system []*domain.Task
	runs   []*domain.AgentRun
}

func (f *fakeSource) ListTasks(opts taskstore.ListOptions) ([]*domain.Task, error) {
	if opts.Queue == domain.QueueSystem {
		return f.system, nil
	}
	return f.user, nil
}

func (f *fakeSource) ListActiveRuns() ([]*domain.AgentRun, error) {
	return f.runs, nil
}

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModel_TabCycling(t *testing.T) {
	m := NewModel(ModelConfig{Source: &fakeSource{}})

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = next.(Model)
	if m.activeTab != 1 {
		t.Errorf("activeTab = %d, want 1", m.activeTab)
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = next.(Model)
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = next.(Model)
	if m.activeTab != 0 {
		t.Errorf("activeTab wrapped to %d, want 0", m.activeTab)
	}
}

func TestModel_SelectionBounds(t *testing.T) {
	m := NewModel(ModelConfig{Source: &fakeSource{}})
	m.activeTab = 1
	m.userTasks = []*domain.Task{
		{ID: "a", Description: "a"},
		{ID: "b", Description: "b"},
	}

	// Down moves, but never past the last row.
	for i := 0; i < 5; i++ {
		next, _ := m.Update(keyMsg("j"))
		m = next.(Model)
	}
	if m.selectedRow != 1 {
		t.Errorf("selectedRow = %d, want 1", m.selectedRow)
	}

	// Up never goes negative.
	for i := 0; i < 5; i++ {
		next, _ := m.Update(keyMsg("k"))
		m = next.(Model)
	}
	if m.selectedRow != 0 {
		t.Errorf("selectedRow = %d, want 0", m.selectedRow)
	}
}

func TestModel_RefreshAppliesState(t *testing.T) {
	m := NewModel(ModelConfig{Source: &fakeSource{}})

	next, _ := m.Update(RefreshMsg{
		UserTasks: []*domain.Task{{ID: "a", Description: "a"}},
		Runs:      []*domain.AgentRun{{ID: "r1", Status: domain.RunRunning}},
	})
	m = next.(Model)
	if len(m.userTasks) != 1 || len(m.runs) != 1 {
		t.Errorf("state not applied: %d tasks, %d runs", len(m.userTasks), len(m.runs))
	}
	if m.lastRefresh.IsZero() {
		t.Error("lastRefresh not stamped")
	}
}

func TestRefreshCmd(t *testing.T) {
	src := &fakeSource{
		user:   []*domain.Task{{ID: "u1", Description: "user work"}},
		system: []*domain.Task{{ID: "s1", Description: "system work"}},
	}

	msg := refreshCmd(src)()
	refresh, ok := msg.(RefreshMsg)
	if !ok {
		t.Fatalf("msg type %T", msg)
	}
	if refresh.Err != nil {
		t.Fatal(refresh.Err)
	}
	if len(refresh.UserTasks) != 1 || len(refresh.SystemTasks) != 1 {
		t.Errorf("refresh = %+v", refresh)
	}
}

func TestModel_ViewRenders(t *testing.T) {
	m := NewModel(ModelConfig{Source: &fakeSource{}, AutonomyLevel: "manager", MaxAgents: 2})
	m.userTasks = []*domain.Task{{ID: "a", Description: "visible task", Status: domain.StatusPending}}
	m.activeTab = 1

	out := m.View()
	if out == "" {
		t.Fatal("empty view")
	}
}
