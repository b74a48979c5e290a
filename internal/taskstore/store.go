package taskstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opsdeck/cos/internal/domain"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a task, run, or config id is unknown.
var ErrNotFound = errors.New("not found")

// ValidationError rejects an operation synchronously, leaving state unchanged.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Position controls where a new task enters its queue's pending order.
type Position string

const (
	PositionTop    Position = "top"
	PositionBottom Position = "bottom"
)

// Store provides SQLite-backed persistence for task queues, agent runs,
// schedule configuration, and learning statistics.
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// SQLite allows one writer at a time; a single connection keeps the
	// evaluator and API handlers from tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

const taskColumns = `id, queue, description, context, status, priority, ord, app_id, provider_id, model, task_type, attachments, blocker, auto_approved, approved, created_at, updated_at`

// AddTask inserts a task at the top or bottom of its queue's pending set.
// A missing id is filled with a fresh UUID.
func (s *Store) AddTask(task *domain.Task, pos Position) error {
	if task.Description == "" {
		return &ValidationError{Msg: "task description is required"}
	}
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.Queue == "" {
		task.Queue = domain.QueueUser
	}
	if task.Status == "" {
		task.Status = domain.StatusPending
	}
	if task.Priority == "" {
		task.Priority = domain.PriorityMedium
	}
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Only pending tasks participate in ordering.
	var ord sql.NullInt64
	var query string
	if pos == PositionTop {
		query = `SELECT MIN(ord) FROM tasks WHERE queue = ? AND status = ?`
	} else {
		query = `SELECT MAX(ord) FROM tasks WHERE queue = ? AND status = ?`
	}
	if err := tx.QueryRow(query, string(task.Queue), string(domain.StatusPending)).Scan(&ord); err != nil {
		return err
	}
	if ord.Valid {
		if pos == PositionTop {
			task.Order = int(ord.Int64) - 1
		} else {
			task.Order = int(ord.Int64) + 1
		}
	} else {
		task.Order = 0
	}

	attachments, err := json.Marshal(task.Metadata.Attachments)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		task.ID,
		string(task.Queue),
		task.Description,
		task.Context,
		string(task.Status),
		string(task.Priority),
		task.Order,
		task.Metadata.AppID,
		task.Metadata.ProviderID,
		task.Metadata.Model,
		task.Metadata.TaskType,
		string(attachments),
		task.Metadata.Blocker,
		task.Metadata.AutoApproved,
		task.Metadata.Approved,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// GetTask retrieves a task by ID
func (s *Store) GetTask(id string) (*domain.Task, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return task, err
}

// UpdateTask applies a patch to a task. Nil patch fields are left unchanged.
func (s *Store) UpdateTask(id string, patch domain.TaskPatch) (*domain.Task, error) {
	task, err := s.GetTask(id)
	if err != nil {
		return nil, err
	}

	if patch.Description != nil {
		task.Description = *patch.Description
	}
	if patch.Context != nil {
		task.Context = *patch.Context
	}
	if patch.Status != nil {
		task.Status = *patch.Status
		// Leaving blocked clears the blocker reason.
		if *patch.Status != domain.StatusBlocked && patch.Metadata == nil {
			task.Metadata.Blocker = ""
		}
	}
	if patch.Priority != nil {
		task.Priority = *patch.Priority
	}
	if patch.Metadata != nil {
		task.Metadata = *patch.Metadata
	}
	task.UpdatedAt = time.Now().UTC()

	attachments, err := json.Marshal(task.Metadata.Attachments)
	if err != nil {
		return nil, err
	}

	_, err = s.db.Exec(`
		UPDATE tasks SET description = ?, context = ?, status = ?, priority = ?,
			app_id = ?, provider_id = ?, model = ?, task_type = ?, attachments = ?,
			blocker = ?, auto_approved = ?, approved = ?, updated_at = ?
		WHERE id = ?
	`,
		task.Description,
		task.Context,
		string(task.Status),
		string(task.Priority),
		task.Metadata.AppID,
		task.Metadata.ProviderID,
		task.Metadata.Model,
		task.Metadata.TaskType,
		string(attachments),
		task.Metadata.Blocker,
		task.Metadata.AutoApproved,
		task.Metadata.Approved,
		task.UpdatedAt,
		id,
	)
	if err != nil {
		return nil, err
	}
	return task, nil
}

// UpdateTaskStatus updates a task's status, setting the blocker reason when
// the task is being blocked.
func (s *Store) UpdateTaskStatus(id string, status domain.TaskStatus, blocker string) error {
	res, err := s.db.Exec(`UPDATE tasks SET status = ?, blocker = ?, updated_at = ? WHERE id = ?`,
		string(status), blocker, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteTask removes a task from the given queue.
func (s *Store) DeleteTask(id string, queue domain.Queue) error {
	res, err := s.db.Exec(`DELETE FROM tasks WHERE id = ? AND queue = ?`, id, string(queue))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("task %s in queue %s: %w", id, queue, ErrNotFound)
	}
	return nil
}

// Reorder replaces the ordering of a queue's pending subset. The ordered id
// list must be a permutation of the queue's pending task ids; otherwise the
// reorder is rejected in full and no order value changes.
func (s *Store) Reorder(queue domain.Queue, orderedIDs []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rows, err := tx.Query(`SELECT id FROM tasks WHERE queue = ? AND status = ?`,
		string(queue), string(domain.StatusPending))
	if err != nil {
		return err
	}
	pending := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		pending[id] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	if len(orderedIDs) != len(pending) {
		return &ValidationError{Msg: fmt.Sprintf("reorder list has %d ids, queue %s has %d pending tasks", len(orderedIDs), queue, len(pending))}
	}
	seen := make(map[string]bool, len(orderedIDs))
	for _, id := range orderedIDs {
		if !pending[id] {
			return &ValidationError{Msg: fmt.Sprintf("task %s is not pending in queue %s", id, queue)}
		}
		if seen[id] {
			return &ValidationError{Msg: fmt.Sprintf("duplicate task id %s in reorder list", id)}
		}
		seen[id] = true
	}

	now := time.Now().UTC()
	for i, id := range orderedIDs {
		if _, err := tx.Exec(`UPDATE tasks SET ord = ?, updated_at = ? WHERE id = ?`, i, now, id); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ApproveTask marks a task as approved, making it visible to the evaluator.
func (s *Store) ApproveTask(id string) error {
	res, err := s.db.Exec(`UPDATE tasks SET approved = TRUE, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListOptions specifies filters for listing tasks
type ListOptions struct {
	Queue  domain.Queue
	Status domain.TaskStatus
}

// ListTasks returns tasks matching the given options, ordered by position.
func (s *Store) ListTasks(opts ListOptions) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	var args []interface{}

	if opts.Queue != "" {
		query += " AND queue = ?"
		args = append(args, string(opts.Queue))
	}
	if opts.Status != "" {
		query += " AND status = ?"
		args = append(args, string(opts.Status))
	}

	query += " ORDER BY ord, created_at"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	return tasks, rows.Err()
}

// scanner abstracts over *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row scanner) (*domain.Task, error) {
	var task domain.Task
	var queue, status, priority string
	var context, appID, providerID, model, taskType, attachments, blocker sql.NullString

	err := row.Scan(
		&task.ID, &queue, &task.Description, &context, &status, &priority, &task.Order,
		&appID, &providerID, &model, &taskType, &attachments, &blocker,
		&task.Metadata.AutoApproved, &task.Metadata.Approved,
		&task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Queue = domain.Queue(queue)
	task.Status = domain.TaskStatus(status)
	task.Priority = domain.Priority(priority)
	task.Context = context.String
	task.Metadata.AppID = appID.String
	task.Metadata.ProviderID = providerID.String
	task.Metadata.Model = model.String
	task.Metadata.TaskType = taskType.String
	task.Metadata.Blocker = blocker.String

	if attachments.Valid && attachments.String != "" && attachments.String != "null" {
		if err := json.Unmarshal([]byte(attachments.String), &task.Metadata.Attachments); err != nil {
			return nil, err
		}
	}

	return &task, nil
}
