package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config is the top-level server configuration (focusflow.yml)
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Store       StoreConfig       `yaml:"store"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Limits      LimitsConfig      `yaml:"limits"`
	Log         LogConfig         `yaml:"log"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StoreConfig selects and configures the durable document store
type StoreConfig struct {
	Backend       string `yaml:"backend"` // "sqlite" (default) or "redis"
	SQLitePath    string `yaml:"sqlite_path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`
}

// PersistenceConfig controls write-behind flushing
type PersistenceConfig struct {
	FlushInterval time.Duration `yaml:"flush_interval"`
	FlushTimeout  time.Duration `yaml:"flush_timeout"`
	LoadTimeout   time.Duration `yaml:"load_timeout"`
}

// LimitsConfig bounds what a single connection may do
type LimitsConfig struct {
	MessagesPerSecond float64 `yaml:"messages_per_second"`
	MessageBurst      int     `yaml:"message_burst"`
	MaxMessageSize    int64   `yaml:"max_message_size"`
	SendBuffer        int     `yaml:"send_buffer"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":5000",
			ShutdownTimeout: 15 * time.Second,
		},
		Store: StoreConfig{
			Backend:     BackendSQLite,
			SQLitePath:  "./data/focusflow.db",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "focusflow",
		},
		Persistence: PersistenceConfig{
			FlushInterval: 30 * time.Second,
			FlushTimeout:  10 * time.Second,
			LoadTimeout:   10 * time.Second,
		},
		Limits: LimitsConfig{
			MessagesPerSecond: 100,
			MessageBurst:      200,
			MaxMessageSize:    1024 * 1024,
			SendBuffer:        512,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Addr = ":" + port
	}
	if v := os.Getenv("FOCUSFLOW_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("FOCUSFLOW_STORE"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("FOCUSFLOW_DB_PATH"); v != "" {
		c.Store.SQLitePath = v
	}
	if v := os.Getenv("FOCUSFLOW_REDIS_ADDR"); v != "" {
		c.Store.RedisAddr = v
	}
	if v := os.Getenv("FOCUSFLOW_REDIS_PASSWORD"); v != "" {
		c.Store.RedisPassword = v
	}
	if v := os.Getenv("FOCUSFLOW_REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid FOCUSFLOW_REDIS_DB %q: %w", v, err)
		}
		c.Store.RedisDB = db
	}
	if v := os.Getenv("FOCUSFLOW_FLUSH_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid FOCUSFLOW_FLUSH_INTERVAL %q: %w", v, err)
		}
		c.Persistence.FlushInterval = d
	}
	return nil
}

// Validate checks that the configuration can start a server
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	switch c.Store.Backend {
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite backend")
		}
	case BackendRedis:
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("store.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown store.backend %q (expected %q or %q)", c.Store.Backend, BackendSQLite, BackendRedis)
	}

	if c.Persistence.FlushInterval <= 0 {
		return fmt.Errorf("persistence.flush_interval must be positive")
	}
	if c.Persistence.FlushTimeout <= 0 {
		return fmt.Errorf("persistence.flush_timeout must be positive")
	}
	if c.Persistence.LoadTimeout <= 0 {
		return fmt.Errorf("persistence.load_timeout must be positive")
	}
	if c.Limits.MessagesPerSecond <= 0 || c.Limits.MessageBurst <= 0 {
		return fmt.Errorf("limits.messages_per_second and limits.message_burst must be positive")
	}
	if c.Limits.SendBuffer <= 0 {
		return fmt.Errorf("limits.send_buffer must be positive")
	}
	if c.Limits.MaxMessageSize <= 0 {
		return fmt.Errorf("limits.max_message_size must be positive")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive")
	}
	return nil
}
