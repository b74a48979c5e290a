package domain

import "testing"

func TestTask_SpawnEligible(t *testing.T) {
	tests := []struct {
		name     string
		task     Task
		bypass   bool
		eligible bool
	}{
		{"pending unapproved", Task{Status: StatusPending}, false, false},
		{"pending approved", Task{Status: StatusPending, Metadata: TaskMetadata{Approved: true}}, false, true},
		{"pending auto-approved", Task{Status: StatusPending, Metadata: TaskMetadata{AutoApproved: true}}, false, true},
		{"pending with bypass", Task{Status: StatusPending}, true, true},
		{"in progress with bypass", Task{Status: StatusInProgress}, true, false},
		{"blocked approved", Task{Status: StatusBlocked, Metadata: TaskMetadata{Approved: true}}, false, false},
		{"completed", Task{Status: StatusCompleted, Metadata: TaskMetadata{Approved: true}}, false, false},
	}

	for _, tt := range tests {
		if got := tt.task.SpawnEligible(tt.bypass); got != tt.eligible {
			t.Errorf("%s: SpawnEligible(%v) = %v, want %v", tt.name, tt.bypass, got, tt.eligible)
		}
	}
}

func TestPriority_Rank(t *testing.T) {
	if PriorityCritical.Rank() <= PriorityHigh.Rank() {
		t.Errorf("CRITICAL rank %d should exceed HIGH rank %d", PriorityCritical.Rank(), PriorityHigh.Rank())
	}
	if PriorityHigh.Rank() <= PriorityMedium.Rank() {
		t.Errorf("HIGH rank %d should exceed MEDIUM rank %d", PriorityHigh.Rank(), PriorityMedium.Rank())
	}
	if PriorityMedium.Rank() <= PriorityLow.Rank() {
		t.Errorf("MEDIUM rank %d should exceed LOW rank %d", PriorityMedium.Rank(), PriorityLow.Rank())
	}

	// Unknown priorities are treated as MEDIUM.
	if got := Priority("BOGUS").Rank(); got != PriorityMedium.Rank() {
		t.Errorf("unknown priority rank = %d, want %d", got, PriorityMedium.Rank())
	}
}

func TestRunStatus_Terminal(t *testing.T) {
	terminal := []RunStatus{RunCompleted, RunFailed, RunError, RunCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []RunStatus{RunSpawning, RunRunning} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
