package taskstore

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opsdeck/cos/internal/domain"
)

const configColumns = `task_type, category, enabled, interval_type, interval_ms, cron_expr, scheduled_time, provider_id, model, prompt, last_run, run_count`

// UpsertTaskTypeConfig inserts or updates a task type's scheduling policy.
// LastRun and RunCount are preserved on update.
func (s *Store) UpsertTaskTypeConfig(cfg *domain.TaskTypeConfig) error {
	if cfg.TaskType == "" {
		return &ValidationError{Msg: "task type is required"}
	}
	_, err := s.db.Exec(`
		INSERT INTO task_type_configs (`+configColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_type) DO UPDATE SET
			category = excluded.category,
			enabled = excluded.enabled,
			interval_type = excluded.interval_type,
			interval_ms = excluded.interval_ms,
			cron_expr = excluded.cron_expr,
			scheduled_time = excluded.scheduled_time,
			provider_id = excluded.provider_id,
			model = excluded.model,
			prompt = excluded.prompt
	`,
		cfg.TaskType,
		string(cfg.Category),
		cfg.Enabled,
		string(cfg.IntervalType),
		cfg.IntervalMs,
		cfg.CronExpr,
		cfg.ScheduledTime,
		cfg.ProviderID,
		cfg.Model,
		cfg.Prompt,
		cfg.LastRun,
		cfg.RunCount,
	)
	return err
}

// GetTaskTypeConfig retrieves a task type's scheduling policy.
func (s *Store) GetTaskTypeConfig(taskType string) (*domain.TaskTypeConfig, error) {
	row := s.db.QueryRow(`SELECT `+configColumns+` FROM task_type_configs WHERE task_type = ?`, taskType)
	cfg, err := scanConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task type %s: %w", taskType, ErrNotFound)
	}
	return cfg, err
}

// ListTaskTypeConfigs returns all task type policies.
func (s *Store) ListTaskTypeConfigs() ([]*domain.TaskTypeConfig, error) {
	rows, err := s.db.Query(`SELECT ` + configColumns + ` FROM task_type_configs ORDER BY task_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.TaskTypeConfig
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// MarkTaskTypeRun stamps last_run and increments run_count.
func (s *Store) MarkTaskTypeRun(taskType string, at time.Time) error {
	res, err := s.db.Exec(`UPDATE task_type_configs SET last_run = ?, run_count = run_count + 1 WHERE task_type = ?`,
		at, taskType)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("task type %s: %w", taskType, ErrNotFound)
	}
	return nil
}

// ResetTaskType clears last_run and run_count so a once task becomes
// eligible again.
func (s *Store) ResetTaskType(taskType string) error {
	res, err := s.db.Exec(`UPDATE task_type_configs SET last_run = NULL, run_count = 0 WHERE task_type = ?`, taskType)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("task type %s: %w", taskType, ErrNotFound)
	}
	return nil
}

// SetAppOverride inserts or replaces a per-app policy override.
func (s *Store) SetAppOverride(ov *domain.AppOverride) error {
	if ov.TaskType == "" || ov.AppID == "" {
		return &ValidationError{Msg: "task type and app id are required"}
	}
	_, err := s.db.Exec(`
		INSERT INTO app_overrides (task_type, app_id, enabled, interval_ms)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(task_type, app_id) DO UPDATE SET
			enabled = excluded.enabled,
			interval_ms = excluded.interval_ms
	`, ov.TaskType, ov.AppID, ov.Enabled, ov.IntervalMs)
	return err
}

// GetAppOverride returns the override for (taskType, appID), or nil when
// none is set.
func (s *Store) GetAppOverride(taskType, appID string) (*domain.AppOverride, error) {
	row := s.db.QueryRow(`SELECT task_type, app_id, enabled, interval_ms FROM app_overrides
		WHERE task_type = ? AND app_id = ?`, taskType, appID)
	ov, err := scanOverride(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return ov, err
}

// ListAppOverrides returns all overrides for a task type.
func (s *Store) ListAppOverrides(taskType string) ([]*domain.AppOverride, error) {
	rows, err := s.db.Query(`SELECT task_type, app_id, enabled, interval_ms FROM app_overrides
		WHERE task_type = ? ORDER BY app_id`, taskType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overrides []*domain.AppOverride
	for rows.Next() {
		ov, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		overrides = append(overrides, ov)
	}
	return overrides, rows.Err()
}

// DeleteAppOverride removes a per-app override, restoring the global policy.
func (s *Store) DeleteAppOverride(taskType, appID string) error {
	_, err := s.db.Exec(`DELETE FROM app_overrides WHERE task_type = ? AND app_id = ?`, taskType, appID)
	return err
}

// AddOnDemandRequest queues an on-demand trigger. An empty appID makes the
// request global to the task type.
func (s *Store) AddOnDemandRequest(taskType, appID string) error {
	if taskType == "" {
		return &ValidationError{Msg: "task type is required"}
	}
	_, err := s.db.Exec(`
		INSERT INTO on_demand_requests (task_type, app_id, requested_at)
		VALUES (?, ?, ?)
		ON CONFLICT(task_type, app_id) DO UPDATE SET requested_at = excluded.requested_at
	`, taskType, appID, time.Now().UTC())
	return err
}

// HasOnDemandRequest reports whether a pending trigger matches
// (taskType, appID). A global request (empty app id) matches any app.
func (s *Store) HasOnDemandRequest(taskType, appID string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM on_demand_requests
		WHERE task_type = ? AND (app_id = ? OR app_id = '')`, taskType, appID).Scan(&n)
	return n > 0, err
}

// ConsumeOnDemandRequest removes the trigger satisfied by a spawn for
// (taskType, appID). An app-specific request is consumed in preference to
// a global one.
func (s *Store) ConsumeOnDemandRequest(taskType, appID string) error {
	res, err := s.db.Exec(`DELETE FROM on_demand_requests WHERE task_type = ? AND app_id = ?`, taskType, appID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	_, err = s.db.Exec(`DELETE FROM on_demand_requests WHERE task_type = ? AND app_id = ''`, taskType)
	return err
}

func scanConfig(row scanner) (*domain.TaskTypeConfig, error) {
	var cfg domain.TaskTypeConfig
	var category, intervalType string
	var cronExpr, scheduledTime, providerID, model, prompt sql.NullString
	var lastRun sql.NullTime

	err := row.Scan(&cfg.TaskType, &category, &cfg.Enabled, &intervalType, &cfg.IntervalMs,
		&cronExpr, &scheduledTime, &providerID, &model, &prompt, &lastRun, &cfg.RunCount)
	if err != nil {
		return nil, err
	}

	cfg.Category = domain.Category(category)
	cfg.IntervalType = domain.IntervalType(intervalType)
	cfg.CronExpr = cronExpr.String
	cfg.ScheduledTime = scheduledTime.String
	cfg.ProviderID = providerID.String
	cfg.Model = model.String
	cfg.Prompt = prompt.String
	if lastRun.Valid {
		t := lastRun.Time
		cfg.LastRun = &t
	}

	return &cfg, nil
}

func scanOverride(row scanner) (*domain.AppOverride, error) {
	var ov domain.AppOverride
	var enabled sql.NullBool
	var intervalMs sql.NullInt64

	if err := row.Scan(&ov.TaskType, &ov.AppID, &enabled, &intervalMs); err != nil {
		return nil, err
	}
	if enabled.Valid {
		v := enabled.Bool
		ov.Enabled = &v
	}
	if intervalMs.Valid {
		v := intervalMs.Int64
		ov.IntervalMs = &v
	}
	return &ov, nil
}
