package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures everything required to boot the analytics aggregator.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Backend BackendConfig `yaml:"backend"`
	Refresh RefreshConfig `yaml:"refresh"`
	Logging LoggingConfig `yaml:"logging"`
	Cache   CacheConfig   `yaml:"cache"`
	History HistoryConfig `yaml:"history"`
	Tracing TracingConfig `yaml:"tracing"`
}

// ServerConfig controls the HTTP, gRPC health and metrics listeners.
type ServerConfig struct {
	HTTPAddress     string        `yaml:"httpAddress"`
	GRPCAddress     string        `yaml:"grpcAddress"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// BackendConfig configures access to the TRIDENT backend REST API.
type BackendConfig struct {
	BaseURL          string        `yaml:"baseURL"`
	MetricsPath      string        `yaml:"metricsPath"`
	ModelMetricsPath string        `yaml:"modelMetricsPath"`
	BaselinesPath    string        `yaml:"baselinesPath"`
	AlertsPath       string        `yaml:"alertsPath"`
	AlertLimit       int           `yaml:"alertLimit"`
	Timeout          time.Duration `yaml:"timeout"`
	Token            string        `yaml:"token"`
	TokenFile        string        `yaml:"tokenFile"`
}

// RefreshConfig controls the periodic refresh scheduler.
type RefreshConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// CacheConfig controls Redis-backed caching of backend responses.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	ResponseTTL  time.Duration `yaml:"responseTTL"`
}

// HistoryConfig controls the SQLite cycle history.
type HistoryConfig struct {
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

// TracingConfig toggles OpenTelemetry tracing.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"serviceName"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("TRIDENT_ANALYTICS_CONFIG")
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			HTTPAddress:     ":8090",
			GRPCAddress:     ":50061",
			MetricsAddress:  ":2113",
			GracefulTimeout: 10 * time.Second,
		},
		Backend: BackendConfig{
			BaseURL:          "http://localhost:8000",
			MetricsPath:      "/api/v1/metrics",
			ModelMetricsPath: "/api/v1/metrics/model",
			BaselinesPath:    "/api/v1/baseline",
			AlertsPath:       "/api/v1/alerts",
			AlertLimit:       1000,
			Timeout:          10 * time.Second,
		},
		Refresh: RefreshConfig{Enabled: true, Interval: 30 * time.Second},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Cache: CacheConfig{
			Enabled:      false,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
			ResponseTTL:  10 * time.Second,
		},
		History: HistoryConfig{Retention: 7 * 24 * time.Hour},
		Tracing: TracingConfig{ServiceName: "trident-analytics"},
	}
}

// Validate rejects configurations the aggregator cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		return fmt.Errorf("backend.baseURL is required")
	}
	if c.Backend.AlertLimit <= 0 {
		return fmt.Errorf("backend.alertLimit must be positive, got %d", c.Backend.AlertLimit)
	}
	if c.Refresh.Enabled && c.Refresh.Interval <= 0 {
		return fmt.Errorf("refresh.interval must be positive when refresh is enabled")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRIDENT_ANALYTICS_HTTP_ADDRESS"); v != "" {
		cfg.Server.HTTPAddress = v
	}
	if v := os.Getenv("TRIDENT_ANALYTICS_GRPC_ADDRESS"); v != "" {
		cfg.Server.GRPCAddress = v
	}
	if v := os.Getenv("TRIDENT_ANALYTICS_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("TRIDENT_API_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("TRIDENT_API_TOKEN"); v != "" {
		cfg.Backend.Token = v
	}
	if v := os.Getenv("TRIDENT_API_TOKEN_FILE"); v != "" {
		cfg.Backend.TokenFile = v
	}
	if v := os.Getenv("TRIDENT_API_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Backend.Timeout = d
		}
	}
	if v := os.Getenv("TRIDENT_ANALYTICS_ALERT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Backend.AlertLimit = n
		}
	}
	if v := os.Getenv("TRIDENT_ANALYTICS_AUTO_REFRESH"); v != "" {
		cfg.Refresh.Enabled = parseBool(v)
	}
	if v := os.Getenv("TRIDENT_ANALYTICS_REFRESH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Refresh.Interval = d
		}
	}
	if v := os.Getenv("TRIDENT_ANALYTICS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TRIDENT_ANALYTICS_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("TRIDENT_ANALYTICS_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = parseBool(v)
	}
	if v := os.Getenv("TRIDENT_ANALYTICS_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("TRIDENT_ANALYTICS_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("TRIDENT_ANALYTICS_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("TRIDENT_ANALYTICS_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("TRIDENT_ANALYTICS_CACHE_TLS"); parseBool(v) {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("TRIDENT_ANALYTICS_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.ResponseTTL = d
		}
	}
	if v := os.Getenv("TRIDENT_ANALYTICS_HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}
	if v := os.Getenv("TRIDENT_ANALYTICS_TRACING"); v != "" {
		cfg.Tracing.Enabled = parseBool(v)
	}
}

func parseBool(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}
