package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Raikerian/go-loopback/pkg/loopback"
)

// Duration is a time.Duration that reads from YAML as "100ms", "2s" etc.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// CaptureConfig stores loopback capture settings.
type CaptureConfig struct {
	DeviceID         string   `yaml:"device_id"`
	ApplicationName  string   `yaml:"application_name"`
	RingCapacity     int      `yaml:"ring_capacity"`
	BufferDuration   Duration `yaml:"buffer_duration"`
	FragmentDuration Duration `yaml:"fragment_duration"`
	WaitTimeout      Duration `yaml:"wait_timeout"`
}

// RecorderConfig stores settings for the WAV recorder.
type RecorderConfig struct {
	OutputDir        string   `yaml:"output_dir"`
	MaxDuration      Duration `yaml:"max_duration"`
	SilenceTimeout   Duration `yaml:"silence_timeout"`
	SilenceThreshold float64  `yaml:"silence_threshold"`
}

// Config stores the application configuration.
type Config struct {
	LogLevel string         `yaml:"log_level"`
	Capture  CaptureConfig  `yaml:"capture"`
	Recorder RecorderConfig `yaml:"recorder"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Capture: CaptureConfig{
			ApplicationName:  loopback.DefaultApplicationName,
			RingCapacity:     loopback.DefaultRingCapacity,
			BufferDuration:   Duration(loopback.DefaultBufferDuration),
			FragmentDuration: Duration(loopback.DefaultFragmentDuration),
			WaitTimeout:      Duration(loopback.DefaultWaitTimeout),
		},
		Recorder: RecorderConfig{
			OutputDir:        "recordings",
			SilenceThreshold: 0.01,
		},
	}
}

// LoadConfig loads the configuration from the given file path. A missing
// file yields the defaults; keys absent from the file keep their defaults.
func LoadConfig(filePath string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", filePath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", filePath, err)
	}

	return cfg, nil
}

// Validate reports the first setting that is out of range.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}

	if c.Capture.RingCapacity < 0 {
		return fmt.Errorf("capture.ring_capacity must not be negative, got %d", c.Capture.RingCapacity)
	}
	for name, d := range map[string]Duration{
		"capture.buffer_duration":   c.Capture.BufferDuration,
		"capture.fragment_duration": c.Capture.FragmentDuration,
		"capture.wait_timeout":      c.Capture.WaitTimeout,
		"recorder.max_duration":     c.Recorder.MaxDuration,
		"recorder.silence_timeout":  c.Recorder.SilenceTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %s", name, d.Std())
		}
	}

	if c.Recorder.SilenceThreshold < 0 || c.Recorder.SilenceThreshold > 1 {
		return fmt.Errorf("recorder.silence_threshold must be within [0, 1], got %g", c.Recorder.SilenceThreshold)
	}
	if c.Recorder.OutputDir == "" {
		return errors.New("recorder.output_dir is required")
	}

	return nil
}

// CaptureOptions maps the capture section onto loopback.Options. Zero values
// fall back to the library defaults.
func (c *Config) CaptureOptions() loopback.Options {
	return loopback.Options{
		ApplicationName:  c.Capture.ApplicationName,
		RingCapacity:     c.Capture.RingCapacity,
		BufferDuration:   c.Capture.BufferDuration.Std(),
		FragmentDuration: c.Capture.FragmentDuration.Std(),
		WaitTimeout:      c.Capture.WaitTimeout.Std(),
	}
}
