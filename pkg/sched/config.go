package sched

import (
	"fmt"
	"time"
)

// Config controls the playback tick and smoothing.
type Config struct {
	TickInterval   time.Duration `mapstructure:"tick_interval"`
	Smoothing      float64       `mapstructure:"smoothing"`
	InterPhraseGap time.Duration `mapstructure:"inter_phrase_gap"`
	MaxHistory     int           `mapstructure:"max_history"`
}

// DefaultConfig ticks at 30 Hz with moderate smoothing.
func DefaultConfig() Config {
	return Config{
		TickInterval:   33 * time.Millisecond,
		Smoothing:      0.3,
		InterPhraseGap: 150 * time.Millisecond,
		MaxHistory:     10,
	}
}

// Validate rejects invalid values outright; nothing is clamped.
func (c Config) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive, got %v", c.TickInterval)
	}
	if c.Smoothing <= 0 || c.Smoothing > 1 {
		return fmt.Errorf("smoothing must be in (0,1], got %v", c.Smoothing)
	}
	if c.InterPhraseGap < 0 {
		return fmt.Errorf("inter_phrase_gap must not be negative, got %v", c.InterPhraseGap)
	}
	return nil
}
