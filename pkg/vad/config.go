package vad

import (
	"fmt"
	"time"
)

// Config controls the energy threshold and debounce windows. Immutable
// after construction except via Detector.Reconfigure.
type Config struct {
	Threshold          float64       `mapstructure:"threshold"`
	MinSpeechDuration  time.Duration `mapstructure:"min_speech_duration"`
	MinSilenceDuration time.Duration `mapstructure:"min_silence_duration"`
	FrameInterval      time.Duration `mapstructure:"frame_interval"`
}

// DefaultConfig returns thresholds suitable for a normalized 0..1 energy
// signal at 50 Hz frame cadence.
func DefaultConfig() Config {
	return Config{
		Threshold:          0.10,
		MinSpeechDuration:  200 * time.Millisecond,
		MinSilenceDuration: 300 * time.Millisecond,
		FrameInterval:      20 * time.Millisecond,
	}
}

// Validate rejects invalid parameters outright; nothing is clamped.
func (c Config) Validate() error {
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("threshold must be in [0,1], got %v", c.Threshold)
	}
	if c.MinSpeechDuration <= 0 {
		return fmt.Errorf("min_speech_duration must be positive, got %v", c.MinSpeechDuration)
	}
	if c.MinSilenceDuration <= 0 {
		return fmt.Errorf("min_silence_duration must be positive, got %v", c.MinSilenceDuration)
	}
	if c.FrameInterval <= 0 {
		return fmt.Errorf("frame_interval must be positive, got %v", c.FrameInterval)
	}
	return nil
}
