// Package gate implements the approval gate: tasks requiring explicit
// sign-off are held invisible to the evaluator until approved.
package gate

import (
	"github.com/opsdeck/cos/internal/domain"
	"github.com/opsdeck/cos/internal/taskstore"
)

// Gate filters spawn candidates by approval state.
type Gate struct {
	store *taskstore.Store
}

// New creates a Gate over the given store.
func New(store *taskstore.Store) *Gate {
	return &Gate{store: store}
}

// Filter returns the tasks eligible to pass the gate. When bypass is set
// (autonomy with immediate execution) every task passes.
func (g *Gate) Filter(tasks []*domain.Task, bypass bool) []*domain.Task {
	var eligible []*domain.Task
	for _, t := range tasks {
		if t.SpawnEligible(bypass) {
			eligible = append(eligible, t)
		}
	}
	return eligible
}

// AwaitingApproval returns the pending tasks currently held by the gate.
func (g *Gate) AwaitingApproval(queue domain.Queue) ([]*domain.Task, error) {
	pending, err := g.store.ListTasks(taskstore.ListOptions{Queue: queue, Status: domain.StatusPending})
	if err != nil {
		return nil, err
	}
	var held []*domain.Task
	for _, t := range pending {
		if !t.Metadata.AutoApproved && !t.Metadata.Approved {
			held = append(held, t)
		}
	}
	return held, nil
}

// Approve releases a held task into the ordinary pending candidate set.
func (g *Gate) Approve(id string) error {
	return g.store.ApproveTask(id)
}

// Reject removes a held task. Rejection is modeled as deletion.
func (g *Gate) Reject(id string, queue domain.Queue) error {
	return g.store.DeleteTask(id, queue)
}
