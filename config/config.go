// Package config loads and validates the daemon configuration.
package config

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/ammarfaizi2/green-tea-bot/errors"
)

// Config represents the complete application configuration.
type Config struct {
	Version  string         `json:"version"`
	Telegram TelegramConfig `json:"telegram"`
	MySQL    MySQLConfig    `json:"mysql"`
	Queue    QueueConfig    `json:"queue"`
	Scraper  ScraperConfig  `json:"scraper"`
	Metrics  MetricsConfig  `json:"metrics"`
	LogLevel string         `json:"log_level,omitempty"`
}

// TelegramConfig identifies the Telegram application and session.
type TelegramConfig struct {
	APIID    int32  `json:"api_id"`
	APIHash  string `json:"api_hash"`
	DataPath string `json:"data_path"`
}

// MySQLConfig defines the database connection settings.
type MySQLConfig struct {
	Host     string `json:"host"`
	Port     uint16 `json:"port,omitempty"`
	User     string `json:"user"`
	Password string `json:"password,omitempty"`
	Database string `json:"database"`
	PoolSize int    `json:"pool_size,omitempty"`
}

// QueueConfig tunes the shared work queue.
type QueueConfig struct {
	MaxWorkers   uint32 `json:"max_workers,omitempty"`
	MaxJobs      uint32 `json:"max_jobs,omitempty"`
	IdleBaseline uint32 `json:"idle_baseline,omitempty"`
	StopTimeout  int    `json:"stop_timeout_seconds,omitempty"`
}

// ScraperConfig tunes the history backfill loop.
type ScraperConfig struct {
	Enabled       bool  `json:"enabled"`
	SweepInterval int   `json:"sweep_interval_seconds,omitempty"`
	ChatListLimit int32 `json:"chat_list_limit,omitempty"`
	HistoryLimit  int32 `json:"history_limit,omitempty"`
}

// MetricsConfig defines the Prometheus listener.
type MetricsConfig struct {
	Enabled    bool   `json:"enabled"`
	ListenAddr string `json:"listen_addr,omitempty"`
}

// Default tuning applied where the environment and config file are
// silent.
const (
	DefaultMySQLPort     = 3306
	DefaultMySQLPoolSize = 128
	DefaultMaxWorkers    = 32
	DefaultMaxJobs       = 512
	DefaultStopTimeout   = 30
	DefaultMetricsAddr   = ":9115"
)

// SafeConfig provides thread-safe access to configuration
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = &Config{}
	}
	return &SafeConfig{
		config: cfg,
	}
}

// Get returns a deep copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically updates the configuration after validation
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "SafeConfig", "Update", "nil config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}

	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}

	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// Validate checks required fields and fills defaults.
func (c *Config) Validate() error {
	var missing []string
	if c.Telegram.APIID == 0 {
		missing = append(missing, "TGVISD_API_ID")
	}
	if c.Telegram.APIHash == "" {
		missing = append(missing, "TGVISD_API_HASH")
	}
	if c.Telegram.DataPath == "" {
		missing = append(missing, "TGVISD_DATA_PATH")
	}
	if c.MySQL.Host == "" {
		missing = append(missing, "TGVISD_MYSQL_HOST")
	}
	if c.MySQL.User == "" {
		missing = append(missing, "TGVISD_MYSQL_USER")
	}
	if c.MySQL.Database == "" {
		missing = append(missing, "TGVISD_MYSQL_DBNAME")
	}
	if len(missing) > 0 {
		return errors.WrapFatal(errors.ErrMissingConfig, "Config", "Validate",
			"missing "+strings.Join(missing, ", "))
	}

	if c.MySQL.Port == 0 {
		c.MySQL.Port = DefaultMySQLPort
	}
	if c.MySQL.PoolSize <= 0 {
		c.MySQL.PoolSize = DefaultMySQLPoolSize
	}
	if c.Queue.MaxWorkers == 0 {
		c.Queue.MaxWorkers = DefaultMaxWorkers
	}
	if c.Queue.MaxJobs == 0 {
		c.Queue.MaxJobs = DefaultMaxJobs
	}
	if c.Queue.IdleBaseline > c.Queue.MaxWorkers {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"idle_baseline exceeds max_workers")
	}
	if c.Queue.StopTimeout <= 0 {
		c.Queue.StopTimeout = DefaultStopTimeout
	}
	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = DefaultMetricsAddr
	}
	return nil
}
