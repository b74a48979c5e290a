package schedule

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/opsdeck/cos/internal/domain"
)

// Reason explains a scheduling decision.
type Reason string

const (
	ReasonDisabled      Reason = "disabled"
	ReasonOnDemandOnly  Reason = "on-demand-only"
	ReasonOnceCompleted Reason = "once-completed"
	ReasonRotation      Reason = "rotation"
	ReasonReady         Reason = "ready"
	ReasonNotDue        Reason = "not-due"
)

// Decision is the result of evaluating a task type's schedule.
type Decision struct {
	ShouldRun bool
	Reason    Reason
}

// Default periods for interval types that carry no explicit interval.
const (
	dayMs  = int64(24 * time.Hour / time.Millisecond)
	weekMs = int64(7 * 24 * time.Hour / time.Millisecond)
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ShouldRun decides whether a task type is due. It is a pure function of
// (cfg, override, hasPendingTrigger, now): identical inputs always yield
// the identical decision.
func ShouldRun(cfg *domain.TaskTypeConfig, ov *domain.AppOverride, hasPendingTrigger bool, now time.Time) Decision {
	policy := cfg.Resolve(ov)

	if !policy.Enabled {
		return Decision{false, ReasonDisabled}
	}

	switch cfg.IntervalType {
	case domain.IntervalOnDemand:
		if !hasPendingTrigger {
			return Decision{false, ReasonOnDemandOnly}
		}
		return Decision{true, ReasonReady}

	case domain.IntervalOnce:
		if cfg.RunCount > 0 {
			return Decision{false, ReasonOnceCompleted}
		}
		return Decision{true, ReasonReady}

	case domain.IntervalRotation:
		// Eligibility is deferred to the evaluator's queue rotation.
		return Decision{true, ReasonRotation}
	}

	if cfg.LastRun == nil {
		return Decision{true, ReasonReady}
	}

	nextDue := nextDueAt(cfg, policy, *cfg.LastRun)
	if !now.Before(nextDue) {
		return Decision{true, ReasonReady}
	}
	return Decision{false, ReasonNotDue}
}

// nextDueAt computes when a periodic task type next becomes eligible after
// lastRun, honoring cron expressions for custom intervals and snapping
// forward to the configured time-of-day when one is set.
func nextDueAt(cfg *domain.TaskTypeConfig, policy domain.EffectivePolicy, lastRun time.Time) time.Time {
	var due time.Time

	if cfg.IntervalType == domain.IntervalCustom && cfg.CronExpr != "" {
		if sched, err := cronParser.Parse(cfg.CronExpr); err == nil {
			return sched.Next(lastRun)
		}
	}

	intervalMs := policy.IntervalMs
	if intervalMs <= 0 {
		switch cfg.IntervalType {
		case domain.IntervalWeekly:
			intervalMs = weekMs
		default:
			intervalMs = dayMs
		}
	}
	due = lastRun.Add(time.Duration(intervalMs) * time.Millisecond)

	if cfg.ScheduledTime != "" {
		due = snapToTimeOfDay(due, cfg.ScheduledTime)
	}
	return due
}

// snapToTimeOfDay moves t forward to the next occurrence of the "HH:MM"
// time-of-day at or after t. A malformed spec leaves t unchanged.
func snapToTimeOfDay(t time.Time, hhmm string) time.Time {
	parsed, err := time.Parse("15:04", hhmm)
	if err != nil {
		return t
	}
	snapped := time.Date(t.Year(), t.Month(), t.Day(), parsed.Hour(), parsed.Minute(), 0, 0, t.Location())
	if snapped.Before(t) {
		snapped = snapped.AddDate(0, 0, 1)
	}
	return snapped
}
