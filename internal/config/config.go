package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Chat   ChatConfig   `yaml:"chat"`
	Log    LogConfig    `yaml:"log"`
}

type ServerConfig struct {
	Port int    `yaml:"port" env:"CHAT_PORT"`
	Host string `yaml:"host" env:"CHAT_HOST"`
	// Env selects the environment mode; anything other than
	// "production" echoes logs to stdout.
	Env string `yaml:"env" env:"CHAT_ENV"`
}

type ChatConfig struct {
	// InactivityTimeout is the maximum idle duration before a named
	// session is force-disconnected. Zero disables eviction entirely.
	InactivityTimeout time.Duration `yaml:"inactivity_timeout" env:"CHAT_INACTIVITY_TIMEOUT"`
	// ProbeInterval bounds how often the monitor re-checks an idle
	// session. Zero derives it as half the inactivity timeout.
	ProbeInterval time.Duration `yaml:"probe_interval" env:"CHAT_PROBE_INTERVAL"`
}

type LogConfig struct {
	File string `yaml:"file" env:"CHAT_LOG_FILE"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 3000,
			Host: "0.0.0.0",
			Env:  "development",
		},
		Chat: ChatConfig{
			InactivityTimeout: 180 * time.Second,
		},
		Log: LogConfig{
			File: "combined.log",
		},
	}
}

// Load builds the configuration from defaults, then the yaml file at
// path (skipped when absent so the server runs without one), then
// environment variables, which win over everything.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.Chat.InactivityTimeout < 0 {
		cfg.Chat.InactivityTimeout = 0
	}
	return cfg, nil
}

// Production reports whether the server runs in production mode.
func (c *Config) Production() bool {
	return c.Server.Env == "production"
}

// ProbeInterval returns the effective monitor probe interval.
func (c *Config) ProbeInterval() time.Duration {
	if c.Chat.ProbeInterval > 0 {
		return c.Chat.ProbeInterval
	}
	return c.Chat.InactivityTimeout / 2
}
