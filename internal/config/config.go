// ABOUTME: Client configuration loaded from defaults, a YAML file and env
// ABOUTME: Wraps viper and validates the typed result
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Resonate-Protocol/livetalk-go/internal/logging"
	"github.com/Resonate-Protocol/livetalk-go/pkg/audio"
	"github.com/Resonate-Protocol/livetalk-go/pkg/level"
	"github.com/Resonate-Protocol/livetalk-go/pkg/live"
	"github.com/Resonate-Protocol/livetalk-go/pkg/playback"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override
const EnvPrefix = "LIVETALK"

// Config is the full client configuration
type Config struct {
	Endpoint         string        `mapstructure:"endpoint"`
	APIKey           string        `mapstructure:"api_key"`
	Model            string        `mapstructure:"model"`
	Voice            string        `mapstructure:"voice"`
	Instructions     string        `mapstructure:"instructions"`
	Transcribe       bool          `mapstructure:"transcribe"`
	Discover         bool          `mapstructure:"discover"`
	DiscoveryTimeout time.Duration `mapstructure:"discovery_timeout"`

	Audio    AudioConfig    `mapstructure:"audio"`
	Playback PlaybackConfig `mapstructure:"playback"`
	Sampler  SamplerConfig  `mapstructure:"sampler"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
	UI       UIConfig       `mapstructure:"ui"`
}

type AudioConfig struct {
	InputRate  int    `mapstructure:"input_rate"`
	OutputRate int    `mapstructure:"output_rate"`
	FrameSize  int    `mapstructure:"frame_size"`
	Backend    string `mapstructure:"backend"`
}

type PlaybackConfig struct {
	StartDelay    time.Duration `mapstructure:"start_delay"`
	UnderrunDelay time.Duration `mapstructure:"underrun_delay"`

	// Fade is the edge ramp on each chunk; 0 turns fades off
	Fade time.Duration `mapstructure:"fade"`

	MinPoll       time.Duration `mapstructure:"min_poll"`
}

type SamplerConfig struct {
	Bands int     `mapstructure:"bands"`
	Decay float64 `mapstructure:"decay"`
	FPS   int     `mapstructure:"fps"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

type UIConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func setDefaults(v *viper.Viper) {
	// Empty means the public Gemini endpoint, or mDNS when discover is set
	v.SetDefault("endpoint", "")
	v.SetDefault("api_key", "")
	v.SetDefault("model", live.DefaultModel)
	v.SetDefault("voice", "")
	v.SetDefault("instructions", "")
	v.SetDefault("transcribe", true)
	v.SetDefault("discover", false)
	v.SetDefault("discovery_timeout", 3*time.Second)

	v.SetDefault("audio.input_rate", audio.InputSampleRate)
	v.SetDefault("audio.output_rate", audio.OutputSampleRate)
	v.SetDefault("audio.frame_size", audio.CaptureFrameSize)
	v.SetDefault("audio.backend", "oto")

	v.SetDefault("playback.start_delay", playback.DefaultStartDelay)
	v.SetDefault("playback.underrun_delay", playback.DefaultUnderrunDelay)
	v.SetDefault("playback.fade", playback.DefaultFade)
	v.SetDefault("playback.min_poll", playback.DefaultMinPoll)

	v.SetDefault("sampler.bands", level.DefaultBands)
	v.SetDefault("sampler.decay", level.DefaultDecay)
	v.SetDefault("sampler.fps", level.DefaultFPS)

	v.SetDefault("metrics.addr", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "livetalk.log")

	v.SetDefault("ui.enabled", true)
}

// Load reads configuration. An empty path skips the file and uses
// defaults plus environment overrides.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The conventional Gemini variable works too
	if err := v.BindEnv("api_key", EnvPrefix+"_API_KEY", "GEMINI_API_KEY"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate reports every invalid field at once
func (c *Config) Validate() error {
	var errs []error

	if c.Discover && c.DiscoveryTimeout <= 0 {
		errs = append(errs, errors.New("discovery_timeout must be positive"))
	}

	if c.Audio.InputRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.input_rate must be positive, got %d", c.Audio.InputRate))
	}
	if c.Audio.OutputRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.output_rate must be positive, got %d", c.Audio.OutputRate))
	}
	if c.Audio.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size must be positive, got %d", c.Audio.FrameSize))
	}
	switch c.Audio.Backend {
	case "oto", "malgo":
	default:
		errs = append(errs, fmt.Errorf("audio.backend must be oto or malgo, got %q", c.Audio.Backend))
	}

	if c.Playback.StartDelay < 0 || c.Playback.UnderrunDelay < 0 || c.Playback.Fade < 0 {
		errs = append(errs, errors.New("playback delays must not be negative"))
	}
	if c.Playback.MinPoll <= 0 {
		errs = append(errs, errors.New("playback.min_poll must be positive"))
	}

	if c.Sampler.Bands <= 0 {
		errs = append(errs, fmt.Errorf("sampler.bands must be positive, got %d", c.Sampler.Bands))
	}
	if c.Sampler.Decay < 0 || c.Sampler.Decay >= 1 {
		errs = append(errs, fmt.Errorf("sampler.decay must be in [0,1), got %v", c.Sampler.Decay))
	}
	if c.Sampler.FPS <= 0 {
		errs = append(errs, fmt.Errorf("sampler.fps must be positive, got %d", c.Sampler.FPS))
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json", "":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// NeedsDiscovery reports whether the endpoint comes from mDNS. An endpoint
// set in the file, the environment or a flag wins over discover.
func (c *Config) NeedsDiscovery() bool {
	return c.Discover && strings.TrimSpace(c.Endpoint) == ""
}

// ResolvedEndpoint returns the configured endpoint or the public default
func (c *Config) ResolvedEndpoint() string {
	if e := strings.TrimSpace(c.Endpoint); e != "" {
		return e
	}
	return live.DefaultEndpoint
}

// PlaybackOptions maps the playback section onto scheduler options
func (c *Config) PlaybackOptions() playback.Options {
	fade := c.Playback.Fade
	if fade == 0 {
		// The scheduler reads zero as "use the default" and negative as off
		fade = -1
	}
	return playback.Options{
		StartDelay:    c.Playback.StartDelay,
		UnderrunDelay: c.Playback.UnderrunDelay,
		Fade:          fade,
		MinPoll:       c.Playback.MinPoll,
	}
}

// LiveConfig maps channel settings onto the Gemini client config
func (c *Config) LiveConfig() live.Config {
	return live.Config{
		Endpoint:     c.ResolvedEndpoint(),
		APIKey:       c.APIKey,
		Model:        c.Model,
		Voice:        c.Voice,
		Instructions: c.Instructions,
		Transcribe:   c.Transcribe,
	}
}
