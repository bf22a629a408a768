package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/fkcurrie/matricks-golang/internal/types"
	"github.com/fkcurrie/matricks-golang/pkg/strip"
)

// Config represents the application configuration
type Config struct {
	Matrix MatrixConfig `toml:"matrix"`
	Plugin PluginConfig `toml:"plugin"`
	Driver DriverConfig `toml:"driver"`
	Log    LogConfig    `toml:"log"`
}

// MatrixConfig describes the LED matrix and how it is wired
type MatrixConfig struct {
	Width            int     `toml:"width"`
	Height           int     `toml:"height"`
	FPS              float64 `toml:"fps"`
	Serpentine       bool    `toml:"serpentine"`
	Vertical         bool    `toml:"vertical"`
	MirrorHorizontal bool    `toml:"mirror_horizontal"`
	MirrorVertical   bool    `toml:"mirror_vertical"`
	Brightness       int     `toml:"brightness"`
	GPIOPin          int     `toml:"gpio_pin"`
	DMAChannel       int     `toml:"dma_channel"`
	Frequency        int     `toml:"frequency"`
	Magnification    float64 `toml:"magnification"`
}

// PluginConfig controls which plugins run and what they may access
type PluginConfig struct {
	Path string `toml:"path"`
	Loop bool   `toml:"loop"`
	// TimeLimit is in seconds; zero lets each plugin run until it is done
	TimeLimit      int      `toml:"time_limit"`
	AllowHost      []string `toml:"allow_host"`
	MapPath        []string `toml:"map_path"`
	Protocol       string   `toml:"protocol"`
	ConfigDelivery string   `toml:"config_delivery"`
	CallTimeoutMS  int      `toml:"call_timeout_ms"`
}

// DriverConfig selects the strip driver
type DriverConfig struct {
	Kind      string `toml:"kind"`
	Output    string `toml:"output"`
	PowerChip string `toml:"power_chip"`
	PowerLine int    `toml:"power_line"`
	// StopTimeoutMS bounds the wait for the matrix to clear on exit;
	// zero waits until it is done
	StopTimeoutMS int `toml:"stop_timeout_ms"`
}

// LogConfig controls log output
type LogConfig struct {
	Level string `toml:"level"`
	Dir   string `toml:"dir"`
}

// Load loads the configuration from a file. Settings missing from the
// file keep their defaults; keys it does not know are an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
	}

	config := Default()
	meta, err := toml.Decode(string(data), config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %q: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, key := range undecoded {
			keys[i] = key.String()
		}
		return nil, fmt.Errorf("unknown keys in config file %q: %s", path, strings.Join(keys, ", "))
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %q: %w", path, err)
	}
	return config, nil
}

// Save writes the configuration to a file
func Save(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to serialize configuration: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write config file %q: %w", path, err)
	}
	return nil
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Matrix: MatrixConfig{
			Width:         32,
			Height:        8,
			FPS:           30,
			Serpentine:    true,
			Brightness:    255,
			GPIOPin:       types.DefaultGPIOPin,
			DMAChannel:    types.DefaultDMAChannel,
			Frequency:     types.DefaultSignalFrequency,
			Magnification: 10,
		},
		Plugin: PluginConfig{
			Path:           "plugins",
			Protocol:       "auto",
			ConfigDelivery: "both",
		},
		Driver: DriverConfig{
			Kind:      "ws281x",
			PowerLine: -1,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks the configuration for values that cannot work
func (c *Config) Validate() error {
	if c.Matrix.Width <= 0 || c.Matrix.Height <= 0 {
		return fmt.Errorf("invalid matrix dimensions: %dx%d", c.Matrix.Width, c.Matrix.Height)
	}
	if c.Matrix.FPS <= 0 {
		return fmt.Errorf("fps must be positive, got %v", c.Matrix.FPS)
	}
	if c.Matrix.Brightness < 0 || c.Matrix.Brightness > 255 {
		return fmt.Errorf("brightness must be between 0 and 255, got %d", c.Matrix.Brightness)
	}
	if c.Plugin.TimeLimit < 0 {
		return fmt.Errorf("time limit must not be negative, got %d", c.Plugin.TimeLimit)
	}
	if c.Plugin.CallTimeoutMS < 0 {
		return fmt.Errorf("call timeout must not be negative, got %d", c.Plugin.CallTimeoutMS)
	}
	if c.Driver.StopTimeoutMS < 0 {
		return fmt.Errorf("stop timeout must not be negative, got %d", c.Driver.StopTimeoutMS)
	}

	switch c.Plugin.Protocol {
	case "", "auto", "frame", "update":
	default:
		return fmt.Errorf("unknown plugin protocol %q", c.Plugin.Protocol)
	}
	switch c.Plugin.ConfigDelivery {
	case "", "json", "keyvalue", "both":
	default:
		return fmt.Errorf("unknown config delivery %q", c.Plugin.ConfigDelivery)
	}

	if !knownDriver(c.Driver.Kind) {
		return fmt.Errorf("unknown driver %q, expected one of %v", c.Driver.Kind, strip.Kinds())
	}
	return nil
}

func knownDriver(kind string) bool {
	for _, k := range strip.Kinds() {
		if k == kind {
			return true
		}
	}
	return false
}

// MatrixConfiguration returns the matrix settings handed to the
// controller and to plugins
func (c *Config) MatrixConfiguration() types.MatrixConfiguration {
	return types.MatrixConfiguration{
		Width:            c.Matrix.Width,
		Height:           c.Matrix.Height,
		TargetFPS:        c.Matrix.FPS,
		Serpentine:       c.Matrix.Serpentine,
		Vertical:         c.Matrix.Vertical,
		MirrorHorizontal: c.Matrix.MirrorHorizontal,
		MirrorVertical:   c.Matrix.MirrorVertical,
		Brightness:       uint8(c.Matrix.Brightness),
		Magnification:    c.Matrix.Magnification,
		GPIOPin:          c.Matrix.GPIOPin,
		DMAChannel:       c.Matrix.DMAChannel,
		SignalFrequency:  c.Matrix.Frequency,
	}
}

// TimeLimit returns the per-plugin time limit
func (c *Config) TimeLimit() time.Duration {
	return time.Duration(c.Plugin.TimeLimit) * time.Second
}

// CallTimeout returns the limit on a single plugin call
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Plugin.CallTimeoutMS) * time.Millisecond
}

// StopTimeout returns the limit on waiting for the matrix to stop
func (c *Config) StopTimeout() time.Duration {
	return time.Duration(c.Driver.StopTimeoutMS) * time.Millisecond
}
