// Package config loads daemon settings from defaults and an optional TOML
// file.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/sweeney/parking-barrier/internal/gpio"
	"github.com/sweeney/parking-barrier/internal/presence"
	"github.com/sweeney/parking-barrier/internal/servo"
)

// Config holds every tunable. Field names map to snake_case TOML keys.
type Config struct {
	DistanceThresholdCm       float64 `toml:"distance_threshold_cm"`
	DebounceSampleCount       int     `toml:"debounce_sample_count"`
	DebounceQuorum            int     `toml:"debounce_quorum"`
	InterSampleDelayMs        int     `toml:"inter_sample_delay_ms"`
	SensorPollIntervalMs      int     `toml:"sensor_poll_interval_ms"`
	PendingTransitionTimeoutS float64 `toml:"pending_transition_timeout_s"`
	ManualAutoCloseTimeoutS   float64 `toml:"manual_auto_close_timeout_s"`
	EchoTimeoutMs             int     `toml:"echo_timeout_ms"`

	HeartbeatS int    `toml:"heartbeat_s"`
	Broker     string `toml:"broker"`
	HTTPAddr   string `toml:"http_addr"`

	Hardware Hardware `toml:"hardware"`
}

// Hardware describes sensor and servo wiring.
type Hardware struct {
	GPIOChip       string `toml:"gpio_chip"`
	InsideTrigPin  int    `toml:"inside_trig_pin"`
	InsideEchoPin  int    `toml:"inside_echo_pin"`
	OutsideTrigPin int    `toml:"outside_trig_pin"`
	OutsideEchoPin int    `toml:"outside_echo_pin"`
	I2CBus         string `toml:"i2c_bus"`
	ServoAddress   uint16 `toml:"servo_address"`
	ServoChannel   int    `toml:"servo_channel"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		DistanceThresholdCm:       presence.DefaultThresholdCm,
		DebounceSampleCount:       presence.DefaultSamples,
		DebounceQuorum:            presence.DefaultQuorum,
		InterSampleDelayMs:        int(presence.DefaultSampleDelay / time.Millisecond),
		SensorPollIntervalMs:      int(presence.DefaultPollInterval / time.Millisecond),
		PendingTransitionTimeoutS: 3,
		ManualAutoCloseTimeoutS:   5,
		EchoTimeoutMs:             int(gpio.DefaultEchoTimeout / time.Millisecond),
		HeartbeatS:                900,
		Broker:                    "tcp://localhost:1883",
		HTTPAddr:                  ":5000",
		Hardware: Hardware{
			GPIOChip:       gpio.DefaultChip,
			InsideTrigPin:  gpio.DefaultInsideTrig,
			InsideEchoPin:  gpio.DefaultInsideEcho,
			OutsideTrigPin: gpio.DefaultOutsideTrig,
			OutsideEchoPin: gpio.DefaultOutsideEcho,
			I2CBus:         "",
			ServoAddress:   servo.DefaultAddress,
			ServoChannel:   servo.DefaultChannel,
		},
	}
}

// Load returns the defaults overlaid with the TOML file at path, if path is
// not empty. Keys missing from the file keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config %s: unknown keys %v", path, undecoded)
	}
	return cfg, nil
}

// Validate reports every setting that cannot work.
func (c Config) Validate() error {
	var errs []error
	if c.DistanceThresholdCm <= 0 {
		errs = append(errs, fmt.Errorf("distance_threshold_cm must be positive, got %v", c.DistanceThresholdCm))
	}
	if c.DebounceSampleCount < 1 {
		errs = append(errs, fmt.Errorf("debounce_sample_count must be at least 1, got %d", c.DebounceSampleCount))
	}
	if c.DebounceQuorum < 1 || c.DebounceQuorum > c.DebounceSampleCount {
		errs = append(errs, fmt.Errorf("debounce_quorum must be between 1 and %d, got %d", c.DebounceSampleCount, c.DebounceQuorum))
	}
	if c.InterSampleDelayMs < 0 {
		errs = append(errs, fmt.Errorf("inter_sample_delay_ms must not be negative, got %d", c.InterSampleDelayMs))
	}
	if c.SensorPollIntervalMs < 0 {
		errs = append(errs, fmt.Errorf("sensor_poll_interval_ms must not be negative, got %d", c.SensorPollIntervalMs))
	}
	if c.PendingTransitionTimeoutS <= 0 {
		errs = append(errs, fmt.Errorf("pending_transition_timeout_s must be positive, got %v", c.PendingTransitionTimeoutS))
	}
	if c.ManualAutoCloseTimeoutS <= 0 {
		errs = append(errs, fmt.Errorf("manual_auto_close_timeout_s must be positive, got %v", c.ManualAutoCloseTimeoutS))
	}
	if c.EchoTimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("echo_timeout_ms must be positive, got %d", c.EchoTimeoutMs))
	}
	if c.HeartbeatS < 0 {
		errs = append(errs, fmt.Errorf("heartbeat_s must not be negative, got %d", c.HeartbeatS))
	}
	return errors.Join(errs...)
}

// Presence returns the debounce settings for both detectors.
func (c Config) Presence() presence.Config {
	return presence.Config{
		ThresholdCm:  c.DistanceThresholdCm,
		Samples:      c.DebounceSampleCount,
		Quorum:       c.DebounceQuorum,
		SampleDelay:  time.Duration(c.InterSampleDelayMs) * time.Millisecond,
		PollInterval: time.Duration(c.SensorPollIntervalMs) * time.Millisecond,
	}
}

// PendingTimeout returns the entry/exit confirmation window.
func (c Config) PendingTimeout() time.Duration {
	return seconds(c.PendingTransitionTimeoutS)
}

// ManualCloseTimeout returns the auto-close delay after a manual open.
func (c Config) ManualCloseTimeout() time.Duration {
	return seconds(c.ManualAutoCloseTimeoutS)
}

// EchoTimeout returns the bound on each echo wait.
func (c Config) EchoTimeout() time.Duration {
	return time.Duration(c.EchoTimeoutMs) * time.Millisecond
}

// Heartbeat returns the heartbeat interval; zero disables it.
func (c Config) Heartbeat() time.Duration {
	return time.Duration(c.HeartbeatS) * time.Second
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
