package domain

// OverallBucket aggregates every completion regardless of classification.
const OverallBucket = "_overall"

// DurationStat holds derived duration/success statistics for one
// task-type bucket. Recomputed whenever a run reaches a terminal state.
type DurationStat struct {
	Bucket         string  `json:"bucket"`
	Completed      int     `json:"completed"`
	AvgDurationMin float64 `json:"avgDurationMin"`
	P80DurationMs  int64   `json:"p80DurationMs"`
	SuccessRate    float64 `json:"successRate"`
}

// Estimate is a user-facing duration prediction for a task description.
type Estimate struct {
	EstimatedMin float64 `json:"estimatedMin"`
	AvgMin       float64 `json:"avgMin"`
	BasedOnCount int     `json:"basedOnCount"`
	SuccessRate  float64 `json:"successRate"`
	Bucket       string  `json:"bucket"`
}
