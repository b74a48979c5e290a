package executor

import (
	"fmt"
	"strings"

	"github.com/opsdeck/cos/internal/domain"
)

// ResumeContext is the continuation bundle assembled from a prior run so
// a follow-up task can carry its context forward.
type ResumeContext struct {
	OriginalTaskID string   `json:"originalTaskId"`
	RunID          string   `json:"runId"`
	Description    string   `json:"description"`
	Result         string   `json:"result"`
	OutputTail     []string `json:"outputTail"`
}

// BuildResumeContext assembles a continuation bundle from a terminal run:
// original description, prior result, and the last n output lines. The
// prior run is not mutated.
func BuildResumeContext(run *domain.AgentRun, task *domain.Task, n int) (*ResumeContext, error) {
	if !run.Status.Terminal() {
		return nil, fmt.Errorf("run %s is still %s; only terminal runs can be resumed", run.ID, run.Status)
	}

	result := "unknown"
	if run.Result != nil {
		if run.Result.Success {
			result = "succeeded"
		} else {
			result = fmt.Sprintf("failed: %s", run.Result.Error)
		}
	}

	tail := run.Output
	if len(tail) > n {
		tail = tail[len(tail)-n:]
	}

	return &ResumeContext{
		OriginalTaskID: task.ID,
		RunID:          run.ID,
		Description:    task.Description,
		Result:         result,
		OutputTail:     tail,
	}, nil
}

// FollowUpTask produces a new task carrying the resume context. It is
// queued like any other task; the prior run and task are untouched.
func (rc *ResumeContext) FollowUpTask(original *domain.Task) *domain.Task {
	var b strings.Builder
	fmt.Fprintf(&b, "Previous attempt %s.\n", rc.Result)
	if len(rc.OutputTail) > 0 {
		b.WriteString("Last output:\n")
		b.WriteString(strings.Join(rc.OutputTail, "\n"))
	}

	return &domain.Task{
		Queue:       original.Queue,
		Description: "Resume: " + rc.Description,
		Context:     b.String(),
		Status:      domain.StatusPending,
		Priority:    original.Priority,
		Metadata: domain.TaskMetadata{
			AppID:        original.Metadata.AppID,
			ProviderID:   original.Metadata.ProviderID,
			Model:        original.Metadata.Model,
			TaskType:     original.Metadata.TaskType,
			AutoApproved: original.Metadata.AutoApproved,
			Approved:     original.Metadata.Approved,
		},
	}
}
