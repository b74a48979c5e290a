// Package schedule implements the per-task-type interval scheduler with
// per-app overrides.
package schedule

import (
	"fmt"
	"time"

	"github.com/opsdeck/cos/internal/domain"
	"github.com/opsdeck/cos/internal/taskstore"
)

// Registry resolves scheduling decisions against persisted task type
// configuration and on-demand trigger state.
type Registry struct {
	store *taskstore.Store
}

// NewRegistry creates a Registry backed by the given store.
func NewRegistry(store *taskstore.Store) *Registry {
	return &Registry{store: store}
}

// Get returns a task type's configuration.
func (r *Registry) Get(taskType string) (*domain.TaskTypeConfig, error) {
	return r.store.GetTaskTypeConfig(taskType)
}

// List returns all task type configurations.
func (r *Registry) List() ([]*domain.TaskTypeConfig, error) {
	return r.store.ListTaskTypeConfigs()
}

// Update validates and persists a task type's configuration.
func (r *Registry) Update(cfg *domain.TaskTypeConfig) error {
	switch cfg.IntervalType {
	case domain.IntervalRotation, domain.IntervalDaily, domain.IntervalWeekly,
		domain.IntervalOnce, domain.IntervalOnDemand, domain.IntervalCustom:
	default:
		return &taskstore.ValidationError{Msg: fmt.Sprintf("unknown interval type %q", cfg.IntervalType)}
	}
	switch cfg.Category {
	case domain.CategorySelfImprovement, domain.CategoryAppImprovement:
	default:
		return &taskstore.ValidationError{Msg: fmt.Sprintf("unknown category %q", cfg.Category)}
	}
	if cfg.IntervalType == domain.IntervalCustom && cfg.CronExpr != "" {
		if _, err := cronParser.Parse(cfg.CronExpr); err != nil {
			return &taskstore.ValidationError{Msg: fmt.Sprintf("invalid cron expression %q: %v", cfg.CronExpr, err)}
		}
	}
	return r.store.UpsertTaskTypeConfig(cfg)
}

// SetOverride persists a per-app policy override.
func (r *Registry) SetOverride(ov *domain.AppOverride) error {
	if _, err := r.store.GetTaskTypeConfig(ov.TaskType); err != nil {
		return err
	}
	return r.store.SetAppOverride(ov)
}

// GetOverride returns the override for (taskType, appID), or nil.
func (r *Registry) GetOverride(taskType, appID string) (*domain.AppOverride, error) {
	return r.store.GetAppOverride(taskType, appID)
}

// ListOverrides returns all per-app overrides of a task type.
func (r *Registry) ListOverrides(taskType string) ([]*domain.AppOverride, error) {
	return r.store.ListAppOverrides(taskType)
}

// ClearOverride removes a per-app override.
func (r *Registry) ClearOverride(taskType, appID string) error {
	return r.store.DeleteAppOverride(taskType, appID)
}

// Trigger queues an on-demand request for a task type. An empty appID
// makes the request global to the type. selfImprovement types are never
// evaluated per app, so an app-scoped trigger for one could never fire
// and is rejected.
func (r *Registry) Trigger(taskType, appID string) error {
	cfg, err := r.store.GetTaskTypeConfig(taskType)
	if err != nil {
		return err
	}
	if cfg.IntervalType != domain.IntervalOnDemand {
		return &taskstore.ValidationError{Msg: fmt.Sprintf("task type %s is not on-demand", taskType)}
	}
	if appID != "" && cfg.Category == domain.CategorySelfImprovement {
		return &taskstore.ValidationError{Msg: fmt.Sprintf("task type %s is %s; it cannot be triggered for an app", taskType, cfg.Category)}
	}
	return r.store.AddOnDemandRequest(taskType, appID)
}

// Reset clears a task type's run history so a once task becomes eligible
// again.
func (r *Registry) Reset(taskType string) error {
	return r.store.ResetTaskType(taskType)
}

// Decide evaluates whether (taskType, appID) is due at now. appID may be
// empty for selfImprovement types.
func (r *Registry) Decide(cfg *domain.TaskTypeConfig, appID string, now time.Time) (Decision, error) {
	var ov *domain.AppOverride
	if appID != "" {
		var err error
		ov, err = r.store.GetAppOverride(cfg.TaskType, appID)
		if err != nil {
			return Decision{}, err
		}
	}

	pending := false
	if cfg.IntervalType == domain.IntervalOnDemand {
		var err error
		pending, err = r.store.HasOnDemandRequest(cfg.TaskType, appID)
		if err != nil {
			return Decision{}, err
		}
	}

	return ShouldRun(cfg, ov, pending, now), nil
}

// MarkSpawned records that a scheduled task type was handed to the spawner:
// last_run is stamped, run_count incremented, and any satisfied on-demand
// request consumed.
func (r *Registry) MarkSpawned(taskType, appID string, at time.Time) error {
	if err := r.store.MarkTaskTypeRun(taskType, at); err != nil {
		return err
	}
	return r.store.ConsumeOnDemandRequest(taskType, appID)
}
