package taskstore

import (
	"errors"
	"testing"
	"time"

	"github.com/opsdeck/cos/internal/domain"
)

func addRun(t *testing.T, store *Store, id, taskID string, status domain.RunStatus) *domain.AgentRun {
	t.Helper()
	run := &domain.AgentRun{
		ID:        id,
		TaskID:    taskID,
		Queue:     domain.QueueUser,
		PID:       1234,
		Status:    status,
		StartedAt: time.Now().UTC(),
	}
	if err := store.SaveRun(run); err != nil {
		t.Fatal(err)
	}
	return run
}

func TestStore_RunLifecycle(t *testing.T) {
	store := newTestStore(t)
	addRun(t, store, "r1", "t1", domain.RunSpawning)

	if err := store.UpdateRunStatus("r1", domain.RunRunning); err != nil {
		t.Fatal(err)
	}

	done := time.Now().UTC()
	err := store.FinishRun("r1", domain.RunCompleted,
		domain.RunResult{Success: true}, []string{"line one", "line two"}, done)
	if err != nil {
		t.Fatal(err)
	}

	got, err := store.GetRun("r1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.RunCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
	if got.CompletedAt == nil {
		t.Fatal("CompletedAt not set")
	}
	if got.Result == nil || !got.Result.Success {
		t.Errorf("Result = %+v, want success", got.Result)
	}
	if len(got.Output) != 2 {
		t.Errorf("Output lines = %d, want 2", len(got.Output))
	}
}

func TestStore_TerminalRunsAreImmutable(t *testing.T) {
	store := newTestStore(t)
	addRun(t, store, "r1", "t1", domain.RunRunning)

	now := time.Now().UTC()
	if err := store.FinishRun("r1", domain.RunFailed,
		domain.RunResult{Success: false, Error: "exit 1"}, nil, now); err != nil {
		t.Fatal(err)
	}

	var verr *ValidationError
	if err := store.UpdateRunStatus("r1", domain.RunRunning); !errors.As(err, &verr) {
		t.Errorf("updating terminal run: err = %v, want ValidationError", err)
	}
	if err := store.FinishRun("r1", domain.RunCompleted, domain.RunResult{Success: true}, nil, now); !errors.As(err, &verr) {
		t.Errorf("re-finishing terminal run: err = %v, want ValidationError", err)
	}
}

func TestStore_FinishRun_RequiresTerminalStatus(t *testing.T) {
	store := newTestStore(t)
	addRun(t, store, "r1", "t1", domain.RunRunning)

	var verr *ValidationError
	err := store.FinishRun("r1", domain.RunRunning, domain.RunResult{}, nil, time.Now().UTC())
	if !errors.As(err, &verr) {
		t.Errorf("finishing with non-terminal status: err = %v, want ValidationError", err)
	}
}

func TestStore_ActiveRunAccounting(t *testing.T) {
	store := newTestStore(t)
	addRun(t, store, "r1", "t1", domain.RunSpawning)
	addRun(t, store, "r2", "t2", domain.RunRunning)
	addRun(t, store, "r3", "t3", domain.RunRunning)
	store.FinishRun("r3", domain.RunCompleted, domain.RunResult{Success: true}, nil, time.Now().UTC())

	n, err := store.CountActiveRuns()
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("CountActiveRuns = %d, want 2", n)
	}

	active, err := store.ListActiveRuns()
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 2 {
		t.Errorf("len(active) = %d, want 2", len(active))
	}

	run, err := store.ActiveRunForTask("t2")
	if err != nil {
		t.Fatal(err)
	}
	if run == nil || run.ID != "r2" {
		t.Errorf("ActiveRunForTask(t2) = %+v, want r2", run)
	}

	run, err = store.ActiveRunForTask("t3")
	if err != nil {
		t.Fatal(err)
	}
	if run != nil {
		t.Errorf("t3's run is terminal, got %+v", run)
	}
}

func TestStore_DeleteRun(t *testing.T) {
	store := newTestStore(t)
	addRun(t, store, "r1", "t1", domain.RunRunning)

	// Active runs cannot be deleted.
	var verr *ValidationError
	if err := store.DeleteRun("r1"); !errors.As(err, &verr) {
		t.Errorf("deleting active run: err = %v, want ValidationError", err)
	}

	store.FinishRun("r1", domain.RunCancelled, domain.RunResult{Error: "cancelled"}, nil, time.Now().UTC())
	if err := store.DeleteRun("r1"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetRun("r1"); !errors.Is(err, ErrNotFound) {
		t.Error("run still present after delete")
	}
}

func TestStore_ClearTerminalRuns(t *testing.T) {
	store := newTestStore(t)
	addRun(t, store, "r1", "t1", domain.RunRunning)
	addRun(t, store, "r2", "t2", domain.RunRunning)
	now := time.Now().UTC()
	store.FinishRun("r1", domain.RunCompleted, domain.RunResult{Success: true}, nil, now)

	n, err := store.ClearTerminalRuns()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("cleared = %d, want 1", n)
	}
	if _, err := store.GetRun("r2"); err != nil {
		t.Errorf("active run should survive the sweep: %v", err)
	}
}
