package domain

// Queue identifies which task queue a task belongs to.
// Queue membership is fixed at creation time.
type Queue string

const (
	QueueUser   Queue = "user"
	QueueSystem Queue = "system"
)

// TaskStatus represents the lifecycle state of a task
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusBlocked    TaskStatus = "blocked"
)

// RunStatus represents the execution state of an agent run
type RunStatus string

const (
	RunSpawning  RunStatus = "spawning"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunError     RunStatus = "error"
	RunCancelled RunStatus = "cancelled"
)

// Terminal reports whether a run status is final. Terminal runs are
// immutable and do not count against the concurrency cap.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunError, RunCancelled:
		return true
	}
	return false
}

// Priority represents task priority
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// Rank returns a sortable weight for a priority; higher runs first.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityLow:
		return 0
	default:
		return 1
	}
}

// Category classifies a task type's purpose
type Category string

const (
	CategorySelfImprovement Category = "selfImprovement"
	CategoryAppImprovement  Category = "appImprovement"
)

// IntervalType is the recurrence policy for a task type
type IntervalType string

const (
	IntervalRotation IntervalType = "rotation"
	IntervalDaily    IntervalType = "daily"
	IntervalWeekly   IntervalType = "weekly"
	IntervalOnce     IntervalType = "once"
	IntervalOnDemand IntervalType = "on-demand"
	IntervalCustom   IntervalType = "custom"
)
