package avatar

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/harunnryd/kuchi/pkg/errorsx"
	"github.com/harunnryd/kuchi/pkg/phrase"
	"github.com/harunnryd/kuchi/pkg/sched"
	"github.com/harunnryd/kuchi/pkg/transports/ws"
	"github.com/harunnryd/kuchi/pkg/vad"
	"github.com/harunnryd/kuchi/pkg/viseme"
)

// Config is the full engine configuration. Durations arrive from the file
// as millisecond integers and are converted once in LoadConfig.
type Config struct {
	VAD       vad.Config
	Timeline  viseme.Config
	Buffer    phrase.BufferConfig
	Scheduler sched.Config
	Engine    EngineConfig
	Vendors   VendorsConfig
	Feed      ws.Config

	Environment string
	LogLevel    string
}

// EngineConfig carries the state machine's own knobs.
type EngineConfig struct {
	ListenTimeout time.Duration
	Linger        time.Duration
	ErrorReset    time.Duration
	AutoListen    bool
	HighCapacity  int
	LowCapacity   int
	FairnessRatio int
	EventBuffer   int
	FeedEnabled   bool
}

type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type VendorsConfig struct {
	STT VendorConfig `mapstructure:"stt"`
	TTS VendorConfig `mapstructure:"tts"`
}

// LoadConfig reads a config file, applies defaults, expands ${ENV}
// references in vendor settings, and validates fail-fast.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("vad.threshold", 0.10)
	v.SetDefault("vad.min_speech_ms", 200)
	v.SetDefault("vad.min_silence_ms", 300)
	v.SetDefault("vad.frame_interval_ms", 20)
	v.SetDefault("timeline.base_phoneme_ms", 80)
	v.SetDefault("timeline.word_gap_ms", 100)
	v.SetDefault("buffer.boundaries", ".,!?;:")
	v.SetDefault("buffer.min_phrase_len", 10)
	v.SetDefault("scheduler.tick_ms", 33)
	v.SetDefault("scheduler.smoothing", 0.3)
	v.SetDefault("scheduler.inter_phrase_gap_ms", 150)
	v.SetDefault("scheduler.max_history", 10)
	v.SetDefault("engine.listen_timeout_ms", 10000)
	v.SetDefault("engine.linger_ms", 250)
	v.SetDefault("engine.error_reset_ms", 2000)
	v.SetDefault("engine.auto_listen", false)
	v.SetDefault("engine.high_capacity", 64)
	v.SetDefault("engine.low_capacity", 512)
	v.SetDefault("engine.fairness_ratio", 3)
	v.SetDefault("engine.event_buffer", 64)
	v.SetDefault("engine.feed_enabled", false)
	v.SetDefault("feed.server_addr", ":8080")
	v.SetDefault("feed.feed_path", "/feed")
	v.SetDefault("feed.allow_any_origin", true)
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		VAD struct {
			Threshold       float64 `mapstructure:"threshold"`
			MinSpeechMS     int     `mapstructure:"min_speech_ms"`
			MinSilenceMS    int     `mapstructure:"min_silence_ms"`
			FrameIntervalMS int     `mapstructure:"frame_interval_ms"`
		} `mapstructure:"vad"`
		Timeline viseme.Config       `mapstructure:"timeline"`
		Buffer   phrase.BufferConfig `mapstructure:"buffer"`
		Sched    struct {
			TickMS           int     `mapstructure:"tick_ms"`
			Smoothing        float64 `mapstructure:"smoothing"`
			InterPhraseGapMS int     `mapstructure:"inter_phrase_gap_ms"`
			MaxHistory       int     `mapstructure:"max_history"`
		} `mapstructure:"scheduler"`
		Engine struct {
			ListenTimeoutMS int  `mapstructure:"listen_timeout_ms"`
			LingerMS        int  `mapstructure:"linger_ms"`
			ErrorResetMS    int  `mapstructure:"error_reset_ms"`
			AutoListen      bool `mapstructure:"auto_listen"`
			HighCapacity    int  `mapstructure:"high_capacity"`
			LowCapacity     int  `mapstructure:"low_capacity"`
			FairnessRatio   int  `mapstructure:"fairness_ratio"`
			EventBuffer     int  `mapstructure:"event_buffer"`
			FeedEnabled     bool `mapstructure:"feed_enabled"`
		} `mapstructure:"engine"`
		Vendors     VendorsConfig `mapstructure:"vendors"`
		Feed        ws.Config     `mapstructure:"feed"`
		Environment string        `mapstructure:"environment"`
		LogLevel    string        `mapstructure:"log_level"`
	}
	if err := v.Unmarshal(&raw); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	cfg := Config{
		VAD: vad.Config{
			Threshold:          raw.VAD.Threshold,
			MinSpeechDuration:  time.Duration(raw.VAD.MinSpeechMS) * time.Millisecond,
			MinSilenceDuration: time.Duration(raw.VAD.MinSilenceMS) * time.Millisecond,
			FrameInterval:      time.Duration(raw.VAD.FrameIntervalMS) * time.Millisecond,
		},
		Timeline: raw.Timeline,
		Buffer:   raw.Buffer,
		Scheduler: sched.Config{
			TickInterval:   time.Duration(raw.Sched.TickMS) * time.Millisecond,
			Smoothing:      raw.Sched.Smoothing,
			InterPhraseGap: time.Duration(raw.Sched.InterPhraseGapMS) * time.Millisecond,
			MaxHistory:     raw.Sched.MaxHistory,
		},
		Engine: EngineConfig{
			ListenTimeout: time.Duration(raw.Engine.ListenTimeoutMS) * time.Millisecond,
			Linger:        time.Duration(raw.Engine.LingerMS) * time.Millisecond,
			ErrorReset:    time.Duration(raw.Engine.ErrorResetMS) * time.Millisecond,
			AutoListen:    raw.Engine.AutoListen,
			HighCapacity:  raw.Engine.HighCapacity,
			LowCapacity:   raw.Engine.LowCapacity,
			FairnessRatio: raw.Engine.FairnessRatio,
			EventBuffer:   raw.Engine.EventBuffer,
			FeedEnabled:   raw.Engine.FeedEnabled,
		},
		Vendors:     raw.Vendors,
		Feed:        raw.Feed,
		Environment: raw.Environment,
		LogLevel:    raw.LogLevel,
	}

	cfg.Vendors.STT.Settings = expandSettings(cfg.Vendors.STT.Settings)
	cfg.Vendors.TTS.Settings = expandSettings(cfg.Vendors.TTS.Settings)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate rejects invalid values outright; nothing is clamped.
func (c Config) Validate() error {
	if err := c.VAD.Validate(); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonConfigInvalid)
	}
	if err := c.Timeline.Validate(); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonConfigInvalid)
	}
	if err := c.Buffer.Validate(); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonConfigInvalid)
	}
	if err := c.Scheduler.Validate(); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonConfigInvalid)
	}
	if err := c.Engine.Validate(); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonConfigInvalid)
	}
	return nil
}

func (c EngineConfig) Validate() error {
	if c.ListenTimeout <= 0 {
		return fmt.Errorf("listen_timeout must be positive, got %v", c.ListenTimeout)
	}
	if c.Linger < 0 {
		return fmt.Errorf("linger must not be negative, got %v", c.Linger)
	}
	if c.ErrorReset <= 0 {
		return fmt.Errorf("error_reset must be positive, got %v", c.ErrorReset)
	}
	return nil
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	default:
		return v
	}
}

// RequireVendor verifies a vendor entry names a provider.
func RequireVendor(name string, vc VendorConfig) error {
	if strings.TrimSpace(vc.Provider) == "" {
		return fmt.Errorf("vendors.%s.provider is required", name)
	}
	return nil
}
