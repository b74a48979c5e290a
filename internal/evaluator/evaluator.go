// Package evaluator implements the scheduling loop: on each tick it
// merges due-task detection, queue state, autonomy policy, and the
// concurrency budget to decide what to spawn next.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/opsdeck/cos/internal/autonomy"
	"github.com/opsdeck/cos/internal/domain"
	"github.com/opsdeck/cos/internal/gate"
	"github.com/opsdeck/cos/internal/learning"
	"github.com/opsdeck/cos/internal/schedule"
	"github.com/opsdeck/cos/internal/taskstore"
)

// Spawner launches worker processes. Satisfied by executor.Manager.
type Spawner interface {
	Spawn(ctx context.Context, task *domain.Task) (*domain.AgentRun, error)
	Completions() <-chan domain.Completion
}

// Notifier receives completion and failure notices. Satisfied by
// notify.Notifier implementations via a small adapter in cmd.
type Notifier interface {
	TaskCompleted(task string, success bool, errMsg string)
}

// Evaluator runs the periodic scheduling tick.
type Evaluator struct {
	store    *taskstore.Store
	registry *schedule.Registry
	gate     *gate.Gate
	spawner  Spawner
	learning *learning.Engine
	policy   *autonomy.Controller
	clock    Clock
	apps     []string
	logger   *log.Logger

	// OnIdle, when set, is invoked on ticks where nothing is eligible
	// and the policy enables idle review. It is an external task
	// producer; the evaluator only calls it.
	OnIdle func(ctx context.Context)

	// Notify, when set, receives completion notices.
	Notify Notifier

	lastServed map[string]time.Time // app id -> last time a scheduled task served it
}

// New creates an Evaluator. apps lists the managed application ids that
// appImprovement task types rotate through.
func New(store *taskstore.Store, registry *schedule.Registry, g *gate.Gate, spawner Spawner,
	eng *learning.Engine, policy *autonomy.Controller, clock Clock, apps []string, logger *log.Logger) *Evaluator {
	if clock == nil {
		clock = RealClock{}
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[evaluator] ", log.LstdFlags)
	}
	return &Evaluator{
		store:      store,
		registry:   registry,
		gate:       g,
		spawner:    spawner,
		learning:   eng,
		policy:     policy,
		clock:      clock,
		apps:       apps,
		logger:     logger,
		lastServed: make(map[string]time.Time),
	}
}

// Run executes the evaluation loop until ctx is cancelled. A failing
// tick is logged and the loop continues on its normal cadence.
func (e *Evaluator) Run(ctx context.Context) error {
	interval := time.Duration(e.policy.Get().EvaluationIntervalMs) * time.Millisecond
	ticker := e.clock.NewTicker(interval)
	defer func() { ticker.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			e.safeTick(ctx)

			// The interval may have changed with the autonomy level.
			if next := time.Duration(e.policy.Get().EvaluationIntervalMs) * time.Millisecond; next != interval {
				ticker.Stop()
				interval = next
				ticker = e.clock.NewTicker(interval)
			}
		case c := <-e.spawner.Completions():
			e.handleCompletion(c)
		}
	}
}

// safeTick runs one tick, converting panics and errors into log lines.
// A tick failure is never fatal to the loop.
func (e *Evaluator) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Printf("tick panic recovered: %v", r)
		}
	}()
	if err := e.Tick(ctx); err != nil {
		e.logger.Printf("tick: %v", err)
	}
}

// Tick performs a single evaluation pass.
func (e *Evaluator) Tick(ctx context.Context) error {
	policy := e.policy.Get()

	// Standby creates tasks elsewhere but never spawns.
	if !policy.EvaluationEnabled() {
		return nil
	}

	active, err := e.store.CountActiveRuns()
	if err != nil {
		return fmt.Errorf("counting active runs: %w", err)
	}
	if active >= policy.MaxConcurrentAgents {
		return nil
	}

	candidate, err := e.pickCandidate(policy)
	if err != nil {
		return err
	}
	if candidate == nil {
		if policy.IdleReviewEnabled && e.OnIdle != nil {
			e.OnIdle(ctx)
		}
		return nil
	}

	return e.dispatch(ctx, candidate)
}

// candidate is a spawnable unit: either an existing queue task or a
// scheduled task type expanded for one app.
type candidate struct {
	task      *domain.Task           // set for queue tasks
	scheduled *domain.TaskTypeConfig // set for scheduled types
	appID     string
	priority  domain.Priority
	order     int
	createdAt time.Time
	queueRank int // user=0, system=1, scheduled=2
}

// pickCandidate builds the candidate set and returns the
// highest-priority, oldest-ordered entry, or nil when nothing is
// eligible.
func (e *Evaluator) pickCandidate(policy domain.AutonomyConfig) (*candidate, error) {
	var candidates []candidate

	for rank, queue := range []domain.Queue{domain.QueueUser, domain.QueueSystem} {
		pending, err := e.store.ListTasks(taskstore.ListOptions{Queue: queue, Status: domain.StatusPending})
		if err != nil {
			return nil, err
		}
		for _, t := range e.gate.Filter(pending, policy.ImmediateExecution) {
			candidates = append(candidates, candidate{
				task:      t,
				priority:  t.Priority,
				order:     t.Order,
				createdAt: t.CreatedAt,
				queueRank: rank,
			})
		}
	}

	scheduled, err := e.scheduledCandidates(policy)
	if err != nil {
		return nil, err
	}
	candidates = append(candidates, scheduled...)

	if len(candidates) == 0 {
		return nil, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		ci, cj := candidates[i], candidates[j]
		if ci.priority.Rank() != cj.priority.Rank() {
			return ci.priority.Rank() > cj.priority.Rank()
		}
		if ci.queueRank != cj.queueRank {
			return ci.queueRank < cj.queueRank
		}
		if ci.order != cj.order {
			return ci.order < cj.order
		}
		return ci.createdAt.Before(cj.createdAt)
	})

	return &candidates[0], nil
}

// scheduledCandidates expands due task types, per app for the
// appImprovement category. Apps are visited least-recently-served first
// so no app starves the others.
func (e *Evaluator) scheduledCandidates(policy domain.AutonomyConfig) ([]candidate, error) {
	configs, err := e.registry.List()
	if err != nil {
		return nil, err
	}
	now := e.clock.Now()

	var out []candidate
	for _, cfg := range configs {
		switch cfg.Category {
		case domain.CategorySelfImprovement:
			if !policy.SelfImprovementEnabled {
				continue
			}
			decision, err := e.registry.Decide(cfg, "", now)
			if err != nil {
				return nil, err
			}
			if decision.ShouldRun {
				out = append(out, candidate{scheduled: cfg, priority: domain.PriorityMedium, createdAt: now, queueRank: 2})
			}

		case domain.CategoryAppImprovement:
			if !policy.AppImprovementEnabled {
				continue
			}
			for i, app := range e.rotatedApps() {
				decision, err := e.registry.Decide(cfg, app, now)
				if err != nil {
					return nil, err
				}
				if decision.ShouldRun {
					out = append(out, candidate{scheduled: cfg, appID: app, priority: domain.PriorityMedium, order: i, createdAt: now, queueRank: 2})
					if !policy.ComprehensiveAppImprovement {
						break
					}
				}
			}
		}
	}
	return out, nil
}

// rotatedApps returns the managed apps ordered least-recently-served
// first.
func (e *Evaluator) rotatedApps() []string {
	apps := make([]string, len(e.apps))
	copy(apps, e.apps)
	sort.SliceStable(apps, func(i, j int) bool {
		return e.lastServed[apps[i]].Before(e.lastServed[apps[j]])
	})
	return apps
}

// dispatch hands the chosen candidate to the spawner, materializing a
// system task first for scheduled types.
func (e *Evaluator) dispatch(ctx context.Context, c *candidate) error {
	task := c.task

	if c.scheduled != nil {
		task = e.materialize(c.scheduled, c.appID)
		if err := e.store.AddTask(task, taskstore.PositionBottom); err != nil {
			return fmt.Errorf("creating scheduled task %s: %w", c.scheduled.TaskType, err)
		}
		if err := e.registry.MarkSpawned(c.scheduled.TaskType, c.appID, e.clock.Now()); err != nil {
			e.logger.Printf("stamping task type %s: %v", c.scheduled.TaskType, err)
		}
		e.lastServed[c.appID] = e.clock.Now()
	} else if task.Metadata.TaskType != "" {
		if err := e.registry.MarkSpawned(task.Metadata.TaskType, task.Metadata.AppID, e.clock.Now()); err != nil && !isNotFound(err) {
			e.logger.Printf("stamping task type %s: %v", task.Metadata.TaskType, err)
		}
	}

	if err := e.store.UpdateTaskStatus(task.ID, domain.StatusInProgress, ""); err != nil {
		return err
	}
	task.Status = domain.StatusInProgress

	if _, err := e.spawner.Spawn(ctx, task); err != nil {
		// The spawner already settled the run and blocked the task.
		return fmt.Errorf("spawning task %s: %w", task.ID, err)
	}
	return nil
}

// materialize builds a system-queue task from a scheduled task type.
// Schedule-synthesized tasks are auto-approved: the configured schedule
// is the sign-off.
func (e *Evaluator) materialize(cfg *domain.TaskTypeConfig, appID string) *domain.Task {
	description := cfg.Prompt
	if description == "" {
		description = fmt.Sprintf("Run %s routine", cfg.TaskType)
	}
	if appID != "" {
		description = fmt.Sprintf("[%s] %s", appID, description)
	}
	return &domain.Task{
		Queue:       domain.QueueSystem,
		Description: description,
		Status:      domain.StatusPending,
		Priority:    domain.PriorityMedium,
		Metadata: domain.TaskMetadata{
			AppID:        appID,
			ProviderID:   cfg.ProviderID,
			Model:        cfg.Model,
			TaskType:     cfg.TaskType,
			AutoApproved: true,
		},
	}
}

// handleCompletion feeds a terminal run into the learning engine and
// notifies. Task state was already settled by the spawner.
func (e *Evaluator) handleCompletion(c domain.Completion) {
	if c.Status == domain.RunCancelled {
		return
	}
	if err := e.learning.RecordCompletion(c.Description, c.DurationMs, c.Success); err != nil {
		e.logger.Printf("recording completion for run %s: %v", c.RunID, err)
	}
	if e.Notify != nil {
		e.Notify.TaskCompleted(c.Description, c.Success, c.Error)
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, taskstore.ErrNotFound)
}
