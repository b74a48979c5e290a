package domain

import "time"

// TaskMetadata carries routing and gating details for a task.
type TaskMetadata struct {
	AppID        string   `json:"appId,omitempty"`
	ProviderID   string   `json:"providerId,omitempty"`
	Model        string   `json:"model,omitempty"`
	TaskType     string   `json:"taskType,omitempty"`
	Attachments  []string `json:"attachments,omitempty"`
	Blocker      string   `json:"blocker,omitempty"`
	AutoApproved bool     `json:"autoApproved"`
	Approved     bool     `json:"approved"`
}

// Task represents a unit of work in one of the two queues.
type Task struct {
	ID          string
	Queue       Queue
	Description string
	Context     string
	Status      TaskStatus
	Priority    Priority
	Order       int
	Metadata    TaskMetadata
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SpawnEligible reports whether the task can be handed to the spawner:
// it must be pending and either auto-approved, explicitly approved, or the
// gate must be bypassed by the active autonomy level.
func (t *Task) SpawnEligible(gateBypassed bool) bool {
	if t.Status != StatusPending {
		return false
	}
	if gateBypassed {
		return true
	}
	return t.Metadata.AutoApproved || t.Metadata.Approved
}

// Active reports whether the task participates in concurrency accounting.
func (t *Task) Active() bool {
	return t.Status == StatusPending || t.Status == StatusInProgress
}

// TaskPatch holds optional field updates for a task. Nil fields are
// left unchanged.
type TaskPatch struct {
	Description *string
	Context     *string
	Status      *TaskStatus
	Priority    *Priority
	Metadata    *TaskMetadata
}
