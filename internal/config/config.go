// Package config loads and validates the application configuration
// from YAML, environment overrides and CLI flags.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"melscope/internal/colormap"
	"melscope/internal/dsp"
	"melscope/pkg/bitint"
)

// Config represents the main application configuration, loaded from
// YAML with optional environment overrides.
type Config struct {
	Debug       bool              `yaml:"debug"`     // Verbose diagnostics.
	LogLevel    string            `yaml:"log_level"` // "debug", "info", "warn", "error".
	Audio       AudioConfig       `yaml:"audio"`
	Spectrogram SpectrogramConfig `yaml:"spectrogram"`
	Display     DisplayConfig     `yaml:"display"`
	Transport   TransportConfig   `yaml:"transport"`
	Recording   RecordingConfig   `yaml:"recording"`
}

// AudioConfig holds input settings: where frames come from and how
// they are shaped.
type AudioConfig struct {
	InputDevice   int     `yaml:"input_device"`   // PortAudio device index (-1 for default).
	SampleRate    float64 `yaml:"sample_rate"`    // Hz.
	FrameSize     int     `yaml:"frame_size"`     // Samples per frame; must be a power of 2.
	HopSize       int     `yaml:"hop_size"`       // Informational; the capture layer decides cadence.
	InputChannels int     `yaml:"input_channels"` // Captured channels; the pipeline consumes channel 0.
	LowLatency    bool    `yaml:"low_latency"`    // Request low latency from the device.
	InputFile     string  `yaml:"input_file"`     // WAV file to stream instead of a device.
}

// SpectrogramConfig holds the numeric pipeline settings.
type SpectrogramConfig struct {
	NumBands int     `yaml:"num_bands"` // Mel bands per column.
	MinFreq  float64 `yaml:"min_freq"`  // Hz, low edge of the analyzed range.
	MaxFreq  float64 `yaml:"max_freq"`  // Hz, high edge; at most sampleRate/2.
	Window   string  `yaml:"window"`    // Analysis window name (e.g. "hann").
	ColorMap string  `yaml:"color_map"` // "viridis", "inferno" or "plasma".
}

// DisplayConfig holds the waterfall raster settings.
type DisplayConfig struct {
	Width    int     `yaml:"width"`     // Raster columns (history length).
	Height   int     `yaml:"height"`    // Raster rows.
	MinValue float64 `yaml:"min_value"` // Display range floor for band values.
	MaxValue float64 `yaml:"max_value"` // Display range ceiling.
}

// TransportConfig holds settings for publishing columns and rasters.
type TransportConfig struct {
	WSEnabled        bool          `yaml:"ws_enabled"`         // Serve rasters over WebSocket.
	WSAddress        string        `yaml:"ws_address"`         // Listen address, e.g. ":8080".
	WSSendInterval   time.Duration `yaml:"ws_send_interval"`   // Minimum time between raster broadcasts.
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Send color columns over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // e.g. "127.0.0.1:9090".
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`  // Minimum time between UDP packets.
}

// RecordingConfig holds settings for pass-through recording of the
// captured input.
type RecordingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	OutputFile string `yaml:"output_file"` // Empty for a timestamped name.
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Debug:    false,
		LogLevel: "info",
		Audio: AudioConfig{
			InputDevice:   -1,
			SampleRate:    32000,
			FrameSize:     1024,
			HopSize:       512,
			InputChannels: 1,
			LowLatency:    false,
		},
		Spectrogram: SpectrogramConfig{
			NumBands: 64,
			MinFreq:  20,
			MaxFreq:  8000,
			Window:   "hann",
			ColorMap: "viridis",
		},
		Display: DisplayConfig{
			Width:    512,
			Height:   256,
			MinValue: 0,
			MaxValue: 1,
		},
		Transport: TransportConfig{
			WSEnabled:        false,
			WSAddress:        ":8080",
			WSSendInterval:   33 * time.Millisecond, // ~30Hz
			UDPEnabled:       false,
			UDPTargetAddress: "127.0.0.1:9090",
			UDPSendInterval:  16 * time.Millisecond, // ~60Hz
		},
		Recording: RecordingConfig{
			Enabled:    false,
			OutputFile: "",
		},
	}
}

// Load reads configuration from the YAML file at path. If path is
// empty it searches default locations ("config.yaml") and falls back
// to the built-in defaults when no file is found. Environment
// overrides apply after loading, and the result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		candidates := []string{"config.yaml"}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks every construction invariant the pipeline and
// waterfall enforce, so a bad value fails here instead of at the
// first frame.
func (c *Config) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive, got %g", c.Audio.SampleRate)
	}
	if !bitint.IsPowerOfTwo(c.Audio.FrameSize) {
		return fmt.Errorf("audio.frame_size must be a power of 2, got %d", c.Audio.FrameSize)
	}
	if c.Audio.HopSize < 0 {
		return fmt.Errorf("audio.hop_size must not be negative, got %d", c.Audio.HopSize)
	}
	if c.Audio.InputChannels <= 0 {
		return fmt.Errorf("audio.input_channels must be positive, got %d", c.Audio.InputChannels)
	}
	if c.Spectrogram.NumBands <= 0 {
		return fmt.Errorf("spectrogram.num_bands must be positive, got %d", c.Spectrogram.NumBands)
	}
	if c.Spectrogram.MinFreq < 0 || c.Spectrogram.MinFreq >= c.Spectrogram.MaxFreq {
		return fmt.Errorf("spectrogram frequency range [%g, %g] is invalid",
			c.Spectrogram.MinFreq, c.Spectrogram.MaxFreq)
	}
	if c.Spectrogram.MaxFreq > c.Audio.SampleRate/2 {
		return fmt.Errorf("spectrogram.max_freq %g exceeds the Nyquist frequency %g",
			c.Spectrogram.MaxFreq, c.Audio.SampleRate/2)
	}
	if _, err := dsp.ParseWindowFunc(c.Spectrogram.Window); err != nil {
		return err
	}
	if _, err := colormap.Parse(c.Spectrogram.ColorMap); err != nil {
		return err
	}
	if c.Display.Width <= 0 || c.Display.Height <= 0 {
		return fmt.Errorf("display dimensions %dx%d must be positive", c.Display.Width, c.Display.Height)
	}
	if c.Display.MinValue >= c.Display.MaxValue {
		return fmt.Errorf("display range [%g, %g] is empty", c.Display.MinValue, c.Display.MaxValue)
	}
	if c.Transport.UDPEnabled && c.Transport.UDPTargetAddress == "" {
		return fmt.Errorf("transport.udp_target_address must be set when UDP is enabled")
	}
	if c.Transport.WSEnabled && c.Transport.WSAddress == "" {
		return fmt.Errorf("transport.ws_address must be set when WebSocket is enabled")
	}
	return nil
}

// applyEnvOverrides applies MELSCOPE_* environment variables on top of
// whatever the file (or defaults) provided.
func (c *Config) applyEnvOverrides() {
	if val, ok := os.LookupEnv("MELSCOPE_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Debug = bVal
		}
	}
	if val, ok := os.LookupEnv("MELSCOPE_LOG_LEVEL"); ok {
		c.LogLevel = val
	}
	if val, ok := os.LookupEnv("MELSCOPE_WS_ADDRESS"); ok {
		c.Transport.WSAddress = val
		c.Transport.WSEnabled = true
	}
	if val, ok := os.LookupEnv("MELSCOPE_UDP_TARGET_ADDRESS"); ok {
		c.Transport.UDPTargetAddress = val
		c.Transport.UDPEnabled = true
	}
	if val, ok := os.LookupEnv("MELSCOPE_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			c.Transport.UDPSendInterval = dur
		}
	}
}
