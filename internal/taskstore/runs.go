package taskstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opsdeck/cos/internal/domain"
)

const runColumns = `id, task_id, queue, pid, status, started_at, completed_at, output, success, error_message`

// SaveRun inserts a new agent run record.
func (s *Store) SaveRun(run *domain.AgentRun) error {
	_, err := s.db.Exec(`
		INSERT INTO agent_runs (id, task_id, queue, pid, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.ID, run.TaskID, string(run.Queue), run.PID, string(run.Status), run.StartedAt)
	return err
}

// UpdateRunStatus updates a run's status. Terminal runs are immutable;
// updating one is rejected.
func (s *Store) UpdateRunStatus(id string, status domain.RunStatus) error {
	run, err := s.GetRun(id)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return &ValidationError{Msg: fmt.Sprintf("run %s is already terminal (%s)", id, run.Status)}
	}
	_, err = s.db.Exec(`UPDATE agent_runs SET status = ? WHERE id = ?`, string(status), id)
	return err
}

// FinishRun transitions a run to a terminal status and records its result
// and captured output.
func (s *Store) FinishRun(id string, status domain.RunStatus, result domain.RunResult, output []string, completedAt time.Time) error {
	if !status.Terminal() {
		return &ValidationError{Msg: fmt.Sprintf("status %s is not terminal", status)}
	}
	run, err := s.GetRun(id)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return &ValidationError{Msg: fmt.Sprintf("run %s is already terminal (%s)", id, run.Status)}
	}

	outJSON, err := json.Marshal(output)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		UPDATE agent_runs SET status = ?, completed_at = ?, output = ?, success = ?, error_message = ?
		WHERE id = ?
	`, string(status), completedAt, string(outJSON), result.Success, result.Error, id)
	return err
}

// GetRun retrieves an agent run by id.
func (s *Store) GetRun(id string) (*domain.AgentRun, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM agent_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("agent run %s: %w", id, ErrNotFound)
	}
	return run, err
}

// ListActiveRuns returns runs that have not reached a terminal status.
func (s *Store) ListActiveRuns() ([]*domain.AgentRun, error) {
	return s.listRuns(`SELECT `+runColumns+` FROM agent_runs
		WHERE status IN (?, ?) ORDER BY started_at`,
		string(domain.RunSpawning), string(domain.RunRunning))
}

// ListRecentRuns returns the most recently started runs, newest first.
func (s *Store) ListRecentRuns(limit int) ([]*domain.AgentRun, error) {
	return s.listRuns(`SELECT `+runColumns+` FROM agent_runs
		ORDER BY started_at DESC LIMIT ?`, limit)
}

// ActiveRunForTask returns the non-terminal run referencing a task, or nil.
// At most one such run exists at any time.
func (s *Store) ActiveRunForTask(taskID string) (*domain.AgentRun, error) {
	runs, err := s.listRuns(`SELECT `+runColumns+` FROM agent_runs
		WHERE task_id = ? AND status IN (?, ?)`,
		taskID, string(domain.RunSpawning), string(domain.RunRunning))
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return runs[0], nil
}

// CountActiveRuns returns the number of non-terminal runs.
func (s *Store) CountActiveRuns() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM agent_runs WHERE status IN (?, ?)`,
		string(domain.RunSpawning), string(domain.RunRunning)).Scan(&n)
	return n, err
}

// DeleteRun removes a terminal run record.
func (s *Store) DeleteRun(id string) error {
	run, err := s.GetRun(id)
	if err != nil {
		return err
	}
	if !run.Status.Terminal() {
		return &ValidationError{Msg: fmt.Sprintf("run %s is still %s; terminate it first", id, run.Status)}
	}
	_, err = s.db.Exec(`DELETE FROM agent_runs WHERE id = ?`, id)
	return err
}

// ClearTerminalRuns deletes all terminal runs and returns how many were removed.
func (s *Store) ClearTerminalRuns() (int, error) {
	res, err := s.db.Exec(`DELETE FROM agent_runs WHERE status IN (?, ?, ?, ?)`,
		string(domain.RunCompleted), string(domain.RunFailed),
		string(domain.RunError), string(domain.RunCancelled))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) listRuns(query string, args ...interface{}) ([]*domain.AgentRun, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.AgentRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanRun(row scanner) (*domain.AgentRun, error) {
	var run domain.AgentRun
	var queue, status string
	var pid sql.NullInt64
	var completedAt sql.NullTime
	var output, errMsg sql.NullString
	var success sql.NullBool

	err := row.Scan(&run.ID, &run.TaskID, &queue, &pid, &status,
		&run.StartedAt, &completedAt, &output, &success, &errMsg)
	if err != nil {
		return nil, err
	}

	run.Queue = domain.Queue(queue)
	run.Status = domain.RunStatus(status)
	run.PID = int(pid.Int64)
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	if output.Valid && output.String != "" && output.String != "null" {
		if err := json.Unmarshal([]byte(output.String), &run.Output); err != nil {
			return nil, err
		}
	}
	if run.Status.Terminal() && success.Valid {
		run.Result = &domain.RunResult{Success: success.Bool, Error: errMsg.String}
	}

	return &run, nil
}
