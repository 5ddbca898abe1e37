package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration, loaded from an optional yaml file
// with environment overrides on top.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Broadcast struct {
		// Driver selects the Broadcaster implementation: "nats" or "log".
		Driver  string `yaml:"driver"`
		NATSURL string `yaml:"nats_url"`
	} `yaml:"broadcast"`

	Clock struct {
		TickIntervalMS      int `yaml:"tick_interval_ms"`
		DefaultRoundSeconds int `yaml:"default_round_seconds"`
	} `yaml:"clock"`
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.Server.Port = "8080"
	cfg.Broadcast.Driver = "nats"
	cfg.Broadcast.NATSURL = "nats://localhost:4222"
	cfg.Clock.TickIntervalMS = 1000
	cfg.Clock.DefaultRoundSeconds = 60
	return cfg
}

func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Broadcast.Driver = getEnv("BROADCAST_DRIVER", cfg.Broadcast.Driver)
	cfg.Broadcast.NATSURL = getEnv("NATS_URL", cfg.Broadcast.NATSURL)
	cfg.Clock.TickIntervalMS = getEnvAsInt("CLOCK_TICK_INTERVAL_MS", cfg.Clock.TickIntervalMS)
	cfg.Clock.DefaultRoundSeconds = getEnvAsInt("CLOCK_DEFAULT_ROUND_SECONDS", cfg.Clock.DefaultRoundSeconds)

	return cfg, nil
}

func (c *Config) tickInterval() time.Duration {
	return time.Duration(c.Clock.TickIntervalMS) * time.Millisecond
}

func (c *Config) defaultRoundDuration() time.Duration {
	return time.Duration(c.Clock.DefaultRoundSeconds) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
