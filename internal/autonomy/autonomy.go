// Package autonomy holds the active autonomy policy shared by the
// evaluator, the approval gate, and the API surface.
package autonomy

import (
	"fmt"
	"sync"

	"github.com/opsdeck/cos/internal/domain"
)

// Controller owns the mutable autonomy configuration. All readers take a
// consistent snapshot; the evaluator reads once per tick.
type Controller struct {
	mu  sync.RWMutex
	cfg domain.AutonomyConfig
}

// NewController starts at the given level (default standby).
func NewController(level string) (*Controller, error) {
	if level == "" {
		level = domain.LevelStandby
	}
	cfg, ok := domain.AutonomyPreset(level)
	if !ok {
		return nil, fmt.Errorf("unknown autonomy level %q", level)
	}
	return &Controller{cfg: cfg}, nil
}

// Get returns the active configuration.
func (c *Controller) Get() domain.AutonomyConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// Level returns the canonical level name matching the active
// configuration, or "custom".
func (c *Controller) Level() string {
	return domain.LevelFor(c.Get())
}

// Set replaces the active configuration with an arbitrary bundle.
func (c *Controller) Set(cfg domain.AutonomyConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
}

// SetLevel switches to a canonical level.
func (c *Controller) SetLevel(level string) error {
	cfg, ok := domain.AutonomyPreset(level)
	if !ok {
		return fmt.Errorf("unknown autonomy level %q", level)
	}
	c.Set(cfg)
	return nil
}
