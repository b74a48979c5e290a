package domain

import "testing"

func boolPtr(b bool) *bool    { return &b }
func int64Ptr(n int64) *int64 { return &n }

func TestTaskTypeConfig_Resolve(t *testing.T) {
	cfg := &TaskTypeConfig{Enabled: true, IntervalMs: 60_000}

	// No override inherits everything.
	p := cfg.Resolve(nil)
	if !p.Enabled || p.IntervalMs != 60_000 {
		t.Errorf("Resolve(nil) = %+v, want enabled with 60000ms", p)
	}

	// Partial override: only the set field wins.
	p = cfg.Resolve(&AppOverride{IntervalMs: int64Ptr(5_000)})
	if !p.Enabled {
		t.Error("override without Enabled should inherit enabled=true")
	}
	if p.IntervalMs != 5_000 {
		t.Errorf("IntervalMs = %d, want 5000", p.IntervalMs)
	}

	// Disabling override.
	p = cfg.Resolve(&AppOverride{Enabled: boolPtr(false)})
	if p.Enabled {
		t.Error("override Enabled=false should win")
	}
	if p.IntervalMs != 60_000 {
		t.Errorf("IntervalMs = %d, want inherited 60000", p.IntervalMs)
	}
}
