package domain

// AutonomyConfig bundles the policy parameters that govern how much
// scheduling and spawning happens without human approval.
type AutonomyConfig struct {
	EvaluationIntervalMs        int64 `json:"evaluationIntervalMs"`
	MaxConcurrentAgents         int   `json:"maxConcurrentAgents"`
	SelfImprovementEnabled      bool  `json:"selfImprovementEnabled"`
	AppImprovementEnabled       bool  `json:"appImprovementEnabled"`
	ProactiveMode               bool  `json:"proactiveMode"`
	IdleReviewEnabled           bool  `json:"idleReviewEnabled"`
	ImmediateExecution          bool  `json:"immediateExecution"`
	ComprehensiveAppImprovement bool  `json:"comprehensiveAppImprovement"`
}

// Canonical autonomy levels, ordered from most restrictive to least.
const (
	LevelStandby   = "standby"
	LevelAssistant = "assistant"
	LevelManager   = "manager"
	LevelYolo      = "yolo"
	LevelCustom    = "custom"
)

var autonomyPresets = map[string]AutonomyConfig{
	LevelStandby: {
		EvaluationIntervalMs: 60_000,
		MaxConcurrentAgents:  0,
	},
	LevelAssistant: {
		EvaluationIntervalMs:   30_000,
		MaxConcurrentAgents:    1,
		SelfImprovementEnabled: true,
	},
	LevelManager: {
		EvaluationIntervalMs:   15_000,
		MaxConcurrentAgents:    2,
		SelfImprovementEnabled: true,
		AppImprovementEnabled:  true,
		ProactiveMode:          true,
		IdleReviewEnabled:      true,
	},
	LevelYolo: {
		EvaluationIntervalMs:        5_000,
		MaxConcurrentAgents:         4,
		SelfImprovementEnabled:      true,
		AppImprovementEnabled:       true,
		ProactiveMode:               true,
		IdleReviewEnabled:           true,
		ImmediateExecution:          true,
		ComprehensiveAppImprovement: true,
	},
}

// AutonomyPreset returns the canonical config for a level name.
func AutonomyPreset(level string) (AutonomyConfig, bool) {
	cfg, ok := autonomyPresets[level]
	return cfg, ok
}

// AutonomyLevels returns the canonical level names in spectrum order.
func AutonomyLevels() []string {
	return []string{LevelStandby, LevelAssistant, LevelManager, LevelYolo}
}

// LevelFor returns the canonical level a config matches, or "custom" when
// the config diverges from every preset.
func LevelFor(cfg AutonomyConfig) string {
	for _, name := range AutonomyLevels() {
		if autonomyPresets[name] == cfg {
			return name
		}
	}
	return LevelCustom
}

// EvaluationEnabled reports whether the evaluator may spawn at all under
// this config. Standby still creates tasks elsewhere but never spawns.
func (c AutonomyConfig) EvaluationEnabled() bool {
	return c.MaxConcurrentAgents > 0
}
