package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Vendor     VendorConfig     `yaml:"vendor"`
	Locations  string           `yaml:"locations"`
	Sites      []SiteConfig     `yaml:"sites"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RequestIPHeader string  `yaml:"request_ip_header"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// VendorConfig holds everything needed to talk to the vendor machine API.
type VendorConfig struct {
	BaseURL                  string        `yaml:"base_url"`
	RealtimeURL              string        `yaml:"realtime_url"`
	APIKey                   string        `yaml:"api_key"`
	HTTPProxy                string        `yaml:"http_proxy"`
	RequestTimeoutSeconds    int           `yaml:"request_timeout_seconds"`
	RetryMax                 int           `yaml:"retry_max"`
	RetryBackoffMillis       int           `yaml:"retry_backoff_millis"`
	PollIntervalSeconds      int           `yaml:"poll_interval_seconds"`
	PollInterval             time.Duration `yaml:"-"`
	FreshnessSeconds         int           `yaml:"freshness_seconds"`
	Freshness                time.Duration `yaml:"-"`
	PendingCommandTTLSeconds int           `yaml:"pending_command_ttl_seconds"`
	PendingCommandTTL        time.Duration `yaml:"-"`
	ReconnectDelaySeconds    int           `yaml:"reconnect_delay_seconds"`
	ReconnectDelay           time.Duration `yaml:"-"`
}

// SiteConfig declares one vendor location and the machines installed there.
type SiteConfig struct {
	ID       string          `yaml:"id"`
	Agent    string          `yaml:"agent"`
	Machines []MachineConfig `yaml:"machines"`
}

// MachineConfig declares one machine's identity within a site.
type MachineConfig struct {
	VendorID string `yaml:"vendor_id"`
	LocalID  string `yaml:"local_id"`
	Label    string `yaml:"label"`
	Type     string `yaml:"type"` // washer or dryer
	Model    string `yaml:"model"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // "postgres" (default) or "sqlite"
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.Vendor.RequestTimeoutSeconds <= 0 {
		cfg.Vendor.RequestTimeoutSeconds = 15
	}
	if cfg.Vendor.RetryMax <= 0 {
		cfg.Vendor.RetryMax = 3
	}
	if cfg.Vendor.RetryBackoffMillis <= 0 {
		cfg.Vendor.RetryBackoffMillis = 500
	}
	if cfg.Vendor.PollIntervalSeconds <= 0 {
		cfg.Vendor.PollIntervalSeconds = 60
	}
	cfg.Vendor.PollInterval = time.Duration(cfg.Vendor.PollIntervalSeconds) * time.Second

	if cfg.Vendor.FreshnessSeconds <= 0 {
		cfg.Vendor.FreshnessSeconds = 30
	}
	cfg.Vendor.Freshness = time.Duration(cfg.Vendor.FreshnessSeconds) * time.Second

	if cfg.Vendor.PendingCommandTTLSeconds <= 0 {
		cfg.Vendor.PendingCommandTTLSeconds = 300
	}
	cfg.Vendor.PendingCommandTTL = time.Duration(cfg.Vendor.PendingCommandTTLSeconds) * time.Second

	if cfg.Vendor.ReconnectDelaySeconds <= 0 {
		cfg.Vendor.ReconnectDelaySeconds = 10
	}
	cfg.Vendor.ReconnectDelay = time.Duration(cfg.Vendor.ReconnectDelaySeconds) * time.Second

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	return &cfg, nil
}
