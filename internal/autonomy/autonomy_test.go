package autonomy

import (
	"testing"

	"github.com/opsdeck/cos/internal/domain"
)

func TestNewController(t *testing.T) {
	c, err := NewController("")
	if err != nil {
		t.Fatal(err)
	}
	if c.Level() != domain.LevelStandby {
		t.Errorf("default level = %q, want standby", c.Level())
	}

	if _, err := NewController("turbo"); err == nil {
		t.Error("unknown level should be rejected")
	}
}

func TestController_SetLevel(t *testing.T) {
	c, _ := NewController(domain.LevelStandby)

	if err := c.SetLevel(domain.LevelYolo); err != nil {
		t.Fatal(err)
	}
	if c.Level() != domain.LevelYolo {
		t.Errorf("level = %q, want yolo", c.Level())
	}
	if !c.Get().ImmediateExecution {
		t.Error("yolo config should set ImmediateExecution")
	}

	if err := c.SetLevel("turbo"); err == nil {
		t.Error("unknown level should be rejected")
	}
	if c.Level() != domain.LevelYolo {
		t.Error("failed SetLevel must not change the config")
	}
}

func TestController_CustomConfig(t *testing.T) {
	c, _ := NewController(domain.LevelManager)

	cfg := c.Get()
	cfg.MaxConcurrentAgents = 9
	c.Set(cfg)

	if c.Level() != domain.LevelCustom {
		t.Errorf("level = %q, want custom", c.Level())
	}
	if c.Get().MaxConcurrentAgents != 9 {
		t.Errorf("MaxConcurrentAgents = %d, want 9", c.Get().MaxConcurrentAgents)
	}
}
