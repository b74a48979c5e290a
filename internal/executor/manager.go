// Package executor spawns and tracks the external worker processes that
// execute tasks.
package executor

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/opsdeck/cos/internal/domain"
	"github.com/opsdeck/cos/internal/taskstore"
)

// Manager launches worker processes, tracks their runs, and settles task
// state when they exit. Completions are published on a channel consumed
// by the evaluator.
type Manager struct {
	store   *taskstore.Store
	command string
	logDir  string

	agents      map[string]*Agent // run id -> agent
	completions chan domain.Completion
	mu          sync.RWMutex

	logger *log.Logger
}

// NewManager creates a Manager spawning the given worker command.
func NewManager(store *taskstore.Store, command, logDir string, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(os.Stderr, "[executor] ", log.LstdFlags)
	}
	return &Manager{
		store:       store,
		command:     command,
		logDir:      logDir,
		agents:      make(map[string]*Agent),
		completions: make(chan domain.Completion, 64),
		logger:      logger,
	}
}

// Completions returns the channel on which terminal runs are published.
func (m *Manager) Completions() <-chan domain.Completion {
	return m.completions
}

// Reconcile settles runs a previous process left non-terminal. Without
// this, a run orphaned by a crash would hold a concurrency slot forever:
// it still counts as active, but no live agent exists to terminate.
// Orphaned runs become error, their tasks blocked. Returns how many runs
// were settled.
func (m *Manager) Reconcile() (int, error) {
	runs, err := m.store.ListActiveRuns()
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, run := range runs {
		m.mu.RLock()
		_, live := m.agents[run.ID]
		m.mu.RUnlock()
		if live {
			continue
		}

		result := domain.RunResult{Success: false, Error: "orphaned by daemon restart"}
		if err := m.store.FinishRun(run.ID, domain.RunError, result, run.Output, time.Now().UTC()); err != nil {
			m.logger.Printf("reconciling run %s: %v", run.ID, err)
			continue
		}
		if err := m.store.UpdateTaskStatus(run.TaskID, domain.StatusBlocked, result.Error); err != nil {
			m.logger.Printf("blocking task %s for orphaned run %s: %v", run.TaskID, run.ID, err)
		}
		settled++
	}
	return settled, nil
}

// Spawn launches a worker for the task and returns the new run without
// waiting for the process to finish. At most one active run may reference
// a task; a second spawn for the same task is rejected.
func (m *Manager) Spawn(ctx context.Context, task *domain.Task) (*domain.AgentRun, error) {
	active, err := m.store.ActiveRunForTask(task.ID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, &taskstore.ValidationError{Msg: fmt.Sprintf("task %s already has active run %s", task.ID, active.ID)}
	}

	if err := os.MkdirAll(m.logDir, 0o755); err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	agent := &Agent{
		ID:        runID,
		Task:      task,
		Status:    domain.RunSpawning,
		StartedAt: time.Now().UTC(),
		Command:   m.command,
		LogPath:   defaultLogPath(m.logDir, runID),
	}

	run := &domain.AgentRun{
		ID:        runID,
		TaskID:    task.ID,
		Queue:     task.Queue,
		Status:    domain.RunSpawning,
		StartedAt: agent.StartedAt,
	}
	if err := m.store.SaveRun(run); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.agents[runID] = agent
	m.mu.Unlock()

	if err := agent.start(ctx, m.onExit); err != nil {
		// The process never started: error run, blocked task, no retry.
		m.settle(agent, domain.RunError, domain.RunResult{Success: false, Error: err.Error()})
		return nil, fmt.Errorf("spawning worker for task %s: %w", task.ID, err)
	}

	run.PID = agent.PID
	run.Status = domain.RunRunning
	if err := m.store.UpdateRunStatus(runID, domain.RunRunning); err != nil {
		m.logger.Printf("updating run %s to running: %v", runID, err)
	}

	return run, nil
}

// onExit settles a run when its worker process exits.
func (m *Manager) onExit(agent *Agent, err error) {
	switch {
	case agent.wasCancelled():
		m.settle(agent, domain.RunCancelled, domain.RunResult{Success: false, Error: "cancelled"})
	case err != nil:
		m.settle(agent, domain.RunFailed, domain.RunResult{Success: false, Error: err.Error()})
	default:
		m.settle(agent, domain.RunCompleted, domain.RunResult{Success: true})
	}
}

// settle transitions the run to a terminal state, updates the owning
// task, and publishes the completion.
func (m *Manager) settle(agent *Agent, status domain.RunStatus, result domain.RunResult) {
	now := time.Now().UTC()

	agent.mu.Lock()
	agent.Status = status
	agent.mu.Unlock()

	output := agent.Output()
	if err := m.store.FinishRun(agent.ID, status, result, output, now); err != nil {
		m.logger.Printf("finishing run %s: %v", agent.ID, err)
	}

	// Cancelled tasks go back to pending so they can be retried;
	// failures block the task with the captured error.
	var taskStatus domain.TaskStatus
	var blocker string
	switch status {
	case domain.RunCompleted:
		taskStatus = domain.StatusCompleted
	case domain.RunCancelled:
		taskStatus = domain.StatusPending
	default:
		taskStatus = domain.StatusBlocked
		blocker = result.Error
	}
	if err := m.store.UpdateTaskStatus(agent.Task.ID, taskStatus, blocker); err != nil {
		m.logger.Printf("updating task %s after run %s: %v", agent.Task.ID, agent.ID, err)
	}

	m.mu.Lock()
	delete(m.agents, agent.ID)
	m.mu.Unlock()

	completion := domain.Completion{
		RunID:       agent.ID,
		TaskID:      agent.Task.ID,
		Queue:       agent.Task.Queue,
		TaskType:    agent.Task.Metadata.TaskType,
		Description: agent.Task.Description,
		Status:      status,
		DurationMs:  now.Sub(agent.StartedAt).Milliseconds(),
		Success:     result.Success,
		Error:       result.Error,
	}
	select {
	case m.completions <- completion:
	default:
		m.logger.Printf("completion channel full, dropping event for run %s", agent.ID)
	}
}

// Terminate stops a worker gracefully (SIGTERM). The run settles as
// cancelled and the task returns to pending.
func (m *Manager) Terminate(runID string) error {
	return m.stop(runID, syscall.SIGTERM)
}

// Kill forcibly stops a worker (SIGKILL).
func (m *Manager) Kill(runID string) error {
	return m.stop(runID, syscall.SIGKILL)
}

func (m *Manager) stop(runID string, sig syscall.Signal) error {
	m.mu.RLock()
	agent, ok := m.agents[runID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("agent run %s: %w", runID, taskstore.ErrNotFound)
	}
	agent.markCancelled()
	return agent.signal(sig)
}

// Get returns the live agent for a run id, or nil when the run is not
// active in this process.
func (m *Manager) Get(runID string) *Agent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.agents[runID]
}

// ActiveCount returns the number of live agents.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.agents)
}

// ActivePIDs returns the process ids of the live agents, keyed by run id.
func (m *Manager) ActivePIDs() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pids := make(map[string]int, len(m.agents))
	for id, a := range m.agents {
		if a.PID != 0 {
			pids[id] = a.PID
		}
	}
	return pids
}
