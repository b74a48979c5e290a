package domain

import "testing"

func TestAutonomyPreset(t *testing.T) {
	standby, ok := AutonomyPreset(LevelStandby)
	if !ok {
		t.Fatal("standby preset missing")
	}
	if standby.MaxConcurrentAgents != 0 {
		t.Errorf("standby MaxConcurrentAgents = %d, want 0", standby.MaxConcurrentAgents)
	}
	if standby.EvaluationEnabled() {
		t.Error("standby should not enable evaluation")
	}

	yolo, _ := AutonomyPreset(LevelYolo)
	if !yolo.ImmediateExecution {
		t.Error("yolo should bypass the approval gate")
	}
	if !yolo.ComprehensiveAppImprovement {
		t.Error("yolo should enable comprehensive app improvement")
	}

	if _, ok := AutonomyPreset("turbo"); ok {
		t.Error("unknown level should not resolve")
	}
}

func TestLevelFor(t *testing.T) {
	for _, name := range AutonomyLevels() {
		cfg, _ := AutonomyPreset(name)
		if got := LevelFor(cfg); got != name {
			t.Errorf("LevelFor(%s preset) = %q", name, got)
		}
	}

	custom, _ := AutonomyPreset(LevelManager)
	custom.MaxConcurrentAgents = 7
	if got := LevelFor(custom); got != LevelCustom {
		t.Errorf("LevelFor(modified config) = %q, want custom", got)
	}
}

func TestAutonomyIntervalsTighten(t *testing.T) {
	levels := AutonomyLevels()
	for i := 1; i < len(levels); i++ {
		prev, _ := AutonomyPreset(levels[i-1])
		cur, _ := AutonomyPreset(levels[i])
		if cur.EvaluationIntervalMs >= prev.EvaluationIntervalMs {
			t.Errorf("%s interval %dms should be shorter than %s interval %dms",
				levels[i], cur.EvaluationIntervalMs, levels[i-1], prev.EvaluationIntervalMs)
		}
		if cur.MaxConcurrentAgents <= prev.MaxConcurrentAgents {
			t.Errorf("%s should allow more agents than %s", levels[i], levels[i-1])
		}
	}
}
