// Package config loads run tunables from PACE_ environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"pacedetect/constants"
	"pacedetect/debug"
	"pacedetect/generator"
)

// Prefix is prepended to every variable name.
const Prefix = "PACE"

// LogPrefix scopes the logging variables.
const LogPrefix = Prefix + "_LOG"

// Config holds all run configuration.
type Config struct {
	Run     RunConfig
	Logging LogConfig
}

// RunConfig tunes the detector run. Keys are PACE_<FIELD>, split on word
// boundaries.
type RunConfig struct {
	Threads    int           `split_words:"true" default:"5"`
	Duration   time.Duration `split_words:"true" default:"1s"`
	Multiplier time.Duration `split_words:"true" default:"20us"`
	Grace      time.Duration `split_words:"true" default:"500us"`
	Ack        bool          `split_words:"true" default:"true"`
	Pin        bool          `split_words:"true" default:"false"`
	Seed       uint64        `split_words:"true" default:"0"`
	RingSize   int           `split_words:"true" default:"65536"`
	Report     bool          `split_words:"true" default:"false"`
	Audit      bool          `split_words:"true" default:"false"`
}

// LogConfig holds logging configuration under PACE_LOG_.
type LogConfig struct {
	Level string `default:"info"`
	Dev   bool   `default:"false"`
}

// Load reads the configuration from the environment and validates it.
// Sections are processed separately so keys stay flat: PACE_THREADS,
// PACE_LOG_LEVEL.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg.Run); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := envconfig.Process(LogPrefix, &cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Run: RunConfig{
			Threads:    constants.Threads,
			Duration:   constants.ExecutionTime,
			Multiplier: constants.SleepMultiplier,
			Grace:      constants.GracePeriod,
			Ack:        true,
			RingSize:   constants.EventRingSize,
		},
		Logging: LogConfig{
			Level: "info",
		},
	}
}

// Validate rejects values the run cannot honour. The ring must hold one
// slot per producer (every detector plus the generator) with room to spare.
func (c *Config) Validate() error {
	r := c.Run
	switch {
	case r.Threads < 1:
		return fmt.Errorf("config: PACE_THREADS must be at least 1, got %d", r.Threads)
	case r.Duration <= 0:
		return fmt.Errorf("config: PACE_DURATION must be positive, got %s", r.Duration)
	case r.Multiplier < 0:
		return fmt.Errorf("config: PACE_MULTIPLIER must not be negative, got %s", r.Multiplier)
	case r.Grace < 0:
		return fmt.Errorf("config: PACE_GRACE must not be negative, got %s", r.Grace)
	case r.RingSize < 2 || r.RingSize&(r.RingSize-1) != 0:
		return fmt.Errorf("config: PACE_RING_SIZE must be a power of two, got %d", r.RingSize)
	case r.RingSize <= r.Threads+1:
		return fmt.Errorf("config: PACE_RING_SIZE must exceed PACE_THREADS+1 (%d), got %d", r.Threads+1, r.RingSize)
	}
	return nil
}

// Generator derives the generator tunables.
func (c *Config) Generator() generator.Config {
	return generator.Config{
		Multiplier: c.Run.Multiplier,
		Steps:      constants.SleepSteps,
		Ack:        c.Run.Ack,
		Seed:       c.Run.Seed,
	}
}

// Logger derives the logger configuration. Output always goes to stderr.
func (c *Config) Logger() debug.Config {
	return debug.Config{
		Level:       c.Logging.Level,
		Development: c.Logging.Dev,
		OutputPaths: []string{"stderr"},
	}
}
