package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mcdev12/warboard/go/internal/gateway"
	"gopkg.in/yaml.v3"
)

// Config is the gateway process configuration. Values come from code
// defaults, then the YAML file named by WARBOARD_CONFIG, then env vars.
type Config struct {
	Port      string `yaml:"port"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Store struct {
		Backend    string `yaml:"backend"`
		BadgerDir  string `yaml:"badger_dir"`
		NATSBucket string `yaml:"nats_bucket"`
		SeedFile   string `yaml:"seed_file"`
	} `yaml:"store"`

	NATS struct {
		URL           string `yaml:"url"`
		UpdateSubject string `yaml:"update_subject"`
	} `yaml:"nats"`

	Gateway struct {
		RefreshInterval   time.Duration `yaml:"refresh_interval"`
		HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
		LivenessTimeout   time.Duration `yaml:"liveness_timeout"`
		FetchTimeout      time.Duration `yaml:"fetch_timeout"`
		WriteTimeout      time.Duration `yaml:"write_timeout"`
		APIRateLimit      float64       `yaml:"api_rate_limit"`
		APIRateBurst      int           `yaml:"api_rate_burst"`
	} `yaml:"gateway"`
}

func defaultConfig() *Config {
	gw := gateway.DefaultConfig()

	var cfg Config
	cfg.Port = "25991"
	cfg.LogLevel = "info"
	cfg.LogFormat = "console"
	cfg.Store.Backend = "memory"
	cfg.Store.NATSBucket = "wars"
	cfg.NATS.UpdateSubject = gw.UpdateSubject
	cfg.Gateway.RefreshInterval = gw.ConnectionConfig.RefreshInterval
	cfg.Gateway.HeartbeatInterval = gw.ConnectionConfig.HeartbeatInterval
	cfg.Gateway.LivenessTimeout = gw.ConnectionConfig.LivenessTimeout
	cfg.Gateway.FetchTimeout = gw.ConnectionConfig.FetchTimeout
	cfg.Gateway.WriteTimeout = gw.ConnectionConfig.WriteTimeout
	cfg.Gateway.APIRateLimit = gw.APIRateLimit
	cfg.Gateway.APIRateBurst = gw.APIRateBurst
	return &cfg
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

	cfg.Port = getEnv("GATEWAY_PORT", cfg.Port)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)
	cfg.Store.Backend = getEnv("STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.BadgerDir = getEnv("BADGER_DIR", cfg.Store.BadgerDir)
	cfg.Store.NATSBucket = getEnv("NATS_KV_BUCKET", cfg.Store.NATSBucket)
	cfg.Store.SeedFile = getEnv("SEED_FILE", cfg.Store.SeedFile)
	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)
	cfg.NATS.UpdateSubject = getEnv("NATS_UPDATE_SUBJECT", cfg.NATS.UpdateSubject)
	cfg.Gateway.RefreshInterval = getEnvAsDuration("REFRESH_INTERVAL", cfg.Gateway.RefreshInterval)
	cfg.Gateway.HeartbeatInterval = getEnvAsDuration("HEARTBEAT_INTERVAL", cfg.Gateway.HeartbeatInterval)
	cfg.Gateway.LivenessTimeout = getEnvAsDuration("LIVENESS_TIMEOUT", cfg.Gateway.LivenessTimeout)
	cfg.Gateway.FetchTimeout = getEnvAsDuration("FETCH_TIMEOUT", cfg.Gateway.FetchTimeout)
	cfg.Gateway.WriteTimeout = getEnvAsDuration("WRITE_TIMEOUT", cfg.Gateway.WriteTimeout)
	cfg.Gateway.APIRateLimit = getEnvAsFloat("API_RATE_LIMIT", cfg.Gateway.APIRateLimit)
	cfg.Gateway.APIRateBurst = getEnvAsInt("API_RATE_BURST", cfg.Gateway.APIRateBurst)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case "memory", "postgres", "nats", "badger":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Gateway.RefreshInterval <= 0 || c.Gateway.HeartbeatInterval <= 0 {
		return fmt.Errorf("refresh and heartbeat intervals must be positive")
	}
	if c.Gateway.LivenessTimeout < c.Gateway.HeartbeatInterval {
		return fmt.Errorf("liveness timeout %s is shorter than heartbeat interval %s",
			c.Gateway.LivenessTimeout, c.Gateway.HeartbeatInterval)
	}
	return nil
}

// gatewayConfig maps the process config onto the gateway package config
func (c *Config) gatewayConfig() gateway.Config {
	gw := gateway.DefaultConfig()
	gw.ConnectionConfig.RefreshInterval = c.Gateway.RefreshInterval
	gw.ConnectionConfig.HeartbeatInterval = c.Gateway.HeartbeatInterval
	gw.ConnectionConfig.LivenessTimeout = c.Gateway.LivenessTimeout
	gw.ConnectionConfig.FetchTimeout = c.Gateway.FetchTimeout
	gw.ConnectionConfig.WriteTimeout = c.Gateway.WriteTimeout
	gw.APIRateLimit = c.Gateway.APIRateLimit
	gw.APIRateBurst = c.Gateway.APIRateBurst
	gw.UpdateSubject = c.NATS.UpdateSubject
	return gw
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
