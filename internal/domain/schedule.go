package domain

import "time"

// TaskTypeConfig is the scheduling policy for one named task type.
type TaskTypeConfig struct {
	TaskType      string
	Category      Category
	Enabled       bool
	IntervalType  IntervalType
	IntervalMs    int64
	CronExpr      string // custom intervals may use a cron expression instead of a fixed period
	ScheduledTime string // optional "HH:MM" time-of-day anchor
	ProviderID    string
	Model         string
	Prompt        string
	LastRun       *time.Time
	RunCount      int
}

// AppOverride overrides the global policy of a task type for one app.
// Nil fields inherit the global value.
type AppOverride struct {
	TaskType   string
	AppID      string
	Enabled    *bool
	IntervalMs *int64
}

// EffectivePolicy is a TaskTypeConfig with an app override merged over it.
type EffectivePolicy struct {
	Enabled    bool
	IntervalMs int64
}

// Resolve merges an app override over the config. The override wins only
// where it is explicitly set.
func (c *TaskTypeConfig) Resolve(ov *AppOverride) EffectivePolicy {
	p := EffectivePolicy{Enabled: c.Enabled, IntervalMs: c.IntervalMs}
	if ov == nil {
		return p
	}
	if ov.Enabled != nil {
		p.Enabled = *ov.Enabled
	}
	if ov.IntervalMs != nil {
		p.IntervalMs = *ov.IntervalMs
	}
	return p
}

// OnDemandRequest is a queued request to run an on-demand task type.
// An empty AppID means the request is global to the task type.
type OnDemandRequest struct {
	TaskType    string
	AppID       string
	RequestedAt time.Time
}
