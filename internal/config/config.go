package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Rcon     RconConfig     `yaml:"rcon"`
	Bounty   BountyConfig   `yaml:"bounty"`
	NATS     NATSConfig     `yaml:"nats"`
	Redis    RedisConfig    `yaml:"redis"`
	Webhook  WebhookConfig  `yaml:"webhook"`
}

// AuthConfig holds authentication settings
type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	TokenDuration time.Duration `yaml:"token_duration"`
	// AdminIDs are player IDs allowed to call admin endpoints.
	AdminIDs []string `yaml:"admin_ids"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	HTTPPort   int    `yaml:"http_port"`
}

// DatabaseConfig holds SQLite settings
type DatabaseConfig struct {
	// Path is the bounty ledger database, owned by this process.
	Path string `yaml:"path"`
	// KillFeedPath is the kill log database written by the kill-feed bot. Opened read-only.
	KillFeedPath string `yaml:"kill_feed_path"`
	// AggregateStatsPath is the kill_stats.json used for the one-time import.
	AggregateStatsPath string `yaml:"aggregate_stats_path"`
}

// RconConfig holds the game server RCON endpoint and connection tuning
type RconConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`

	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	QuietWindow     time.Duration `yaml:"quiet_window"`
	MaxAttempts     int           `yaml:"max_attempts"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	ConnectWait     time.Duration `yaml:"connect_wait"`
	HealthInterval  time.Duration `yaml:"health_interval"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
}

// Address returns host:port for dialing
func (c RconConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// BountyConfig holds processor and contract settings
type BountyConfig struct {
	Enabled             bool          `yaml:"enabled"`
	PollInterval        time.Duration `yaml:"poll_interval"`
	BatchSize           int           `yaml:"batch_size"`
	MaintenanceInterval time.Duration `yaml:"maintenance_interval"`
	Retention           time.Duration `yaml:"retention"`
	MinContractReward   int64         `yaml:"min_contract_reward"`
	ContractTTL         time.Duration `yaml:"contract_ttl"`
}

// NATSConfig holds the kill feed / notification bus settings
type NATSConfig struct {
	URL string `yaml:"url"`
	// Embedded starts an in-process server on EmbeddedPort instead of dialing URL.
	Embedded     bool   `yaml:"embedded"`
	EmbeddedPort int    `yaml:"embedded_port"`
	KillSubject  string `yaml:"kill_subject"`
	EventPrefix  string `yaml:"event_prefix"`
}

// RedisConfig holds the optional leaderboard mirror settings
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// WebhookConfig holds the kill push endpoint settings
type WebhookConfig struct {
	// SecretHash is a bcrypt hash produced by `isle hash-secret`.
	SecretHash string  `yaml:"secret_hash"`
	RatePerSec float64 `yaml:"rate_per_sec"`
	Burst      int     `yaml:"burst"`
}

// Load reads configuration from a YAML file. ${VAR} references are
// expanded from the environment before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = "127.0.0.1"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "/var/lib/isle/bounty.db"
	}

	if cfg.Auth.TokenDuration == 0 {
		cfg.Auth.TokenDuration = 24 * time.Hour
	}

	// RCON defaults
	if cfg.Rcon.Host == "" {
		cfg.Rcon.Host = "127.0.0.1"
	}
	if cfg.Rcon.Port == 0 {
		cfg.Rcon.Port = 8888
	}
	if cfg.Rcon.ConnectTimeout == 0 {
		cfg.Rcon.ConnectTimeout = 10 * time.Second
	}
	if cfg.Rcon.QuietWindow == 0 {
		cfg.Rcon.QuietWindow = 500 * time.Millisecond
	}
	if cfg.Rcon.MaxAttempts == 0 {
		cfg.Rcon.MaxAttempts = 3
	}
	if cfg.Rcon.RetryDelay == 0 {
		cfg.Rcon.RetryDelay = 5 * time.Second
	}
	if cfg.Rcon.ConnectWait == 0 {
		cfg.Rcon.ConnectWait = 10 * time.Second
	}
	if cfg.Rcon.HealthInterval == 0 {
		cfg.Rcon.HealthInterval = 2 * time.Minute
	}
	if cfg.Rcon.RefreshInterval == 0 {
		cfg.Rcon.RefreshInterval = 30 * time.Second
	}
	if cfg.Rcon.CacheTTL == 0 {
		cfg.Rcon.CacheTTL = 2 * time.Minute
	}

	// Bounty defaults
	if cfg.Bounty.PollInterval == 0 {
		cfg.Bounty.PollInterval = 2 * time.Minute
	}
	if cfg.Bounty.BatchSize == 0 {
		cfg.Bounty.BatchSize = 100
	}
	if cfg.Bounty.MaintenanceInterval == 0 {
		cfg.Bounty.MaintenanceInterval = time.Hour
	}
	if cfg.Bounty.Retention == 0 {
		cfg.Bounty.Retention = 30 * 24 * time.Hour
	}
	if cfg.Bounty.MinContractReward == 0 {
		cfg.Bounty.MinContractReward = 100
	}
	if cfg.Bounty.ContractTTL == 0 {
		cfg.Bounty.ContractTTL = 7 * 24 * time.Hour
	}

	if cfg.NATS.EmbeddedPort == 0 {
		cfg.NATS.EmbeddedPort = 4222
	}
	if cfg.NATS.KillSubject == "" {
		cfg.NATS.KillSubject = "isle.kills"
	}
	if cfg.NATS.EventPrefix == "" {
		cfg.NATS.EventPrefix = "isle.bounty"
	}

	if cfg.Redis.Key == "" {
		cfg.Redis.Key = "isle:bounty:balances"
	}

	if cfg.Webhook.RatePerSec == 0 {
		cfg.Webhook.RatePerSec = 5
	}
	if cfg.Webhook.Burst == 0 {
		cfg.Webhook.Burst = 20
	}
}
