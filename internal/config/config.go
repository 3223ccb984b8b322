// Package config provides configuration management for mietcheck.
package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultListenAddr  = ":8480"
	DefaultBaseURL     = "http://localhost:8480"
	DefaultStore       = "memory"
	DefaultRedisAddr   = "localhost:6379"
	DefaultArchivePath = "mietcheck.db"
	DefaultMaxTokens   = 4096
	DefaultLogLevel    = "info"
)

// AzureConfig holds the Azure OpenAI connection settings.
type AzureConfig struct {
	Endpoint   string `yaml:"endpoint"`
	APIKey     string `yaml:"api_key"`
	Deployment string `yaml:"deployment"`
	MaxTokens  int    `yaml:"max_tokens"`
}

// SMTPSettings mirrors the mailer transport configuration.
type SMTPSettings struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Sender   string `yaml:"sender"`
}

// Config is the full service configuration.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	BaseURL    string `yaml:"base_url"`
	LogLevel   string `yaml:"log_level"`

	// Store selects the session store backend: "memory" or "redis".
	Store         string `yaml:"store"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// ArchivePath is the SQLite file for the settled-job trail. Empty
	// disables archiving.
	ArchivePath string `yaml:"archive_path"`

	Azure AzureConfig  `yaml:"azure"`
	SMTP  SMTPSettings `yaml:"smtp"`

	// StripeAPIKey enables the real payment gateway; empty falls back
	// to the built-in fake for local development.
	StripeAPIKey string `yaml:"stripe_api_key"`

	// Prices maps plan identifiers to checkout amounts in cents.
	Prices map[string]int64 `yaml:"prices"`

	// MessagesPath points to an optional YAML file overriding the
	// built-in customer message templates.
	MessagesPath string `yaml:"messages_path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ListenAddr:  DefaultListenAddr,
		BaseURL:     DefaultBaseURL,
		LogLevel:    DefaultLogLevel,
		Store:       DefaultStore,
		RedisAddr:   DefaultRedisAddr,
		ArchivePath: DefaultArchivePath,
		Azure:       AzureConfig{MaxTokens: DefaultMaxTokens},
		Prices:      map[string]int64{"basic": 1490, "pro": 2490},
	}
}

// Load builds the configuration from defaults, an optional YAML file
// and environment overrides, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.ListenAddr, "MIETCHECK_LISTEN_ADDR")
	setString(&c.BaseURL, "MIETCHECK_BASE_URL")
	setString(&c.LogLevel, "MIETCHECK_LOG_LEVEL")
	setString(&c.Store, "MIETCHECK_STORE")
	setString(&c.RedisAddr, "MIETCHECK_REDIS_ADDR")
	setString(&c.RedisPassword, "MIETCHECK_REDIS_PASSWORD")
	setInt(&c.RedisDB, "MIETCHECK_REDIS_DB")
	setString(&c.ArchivePath, "MIETCHECK_ARCHIVE_PATH")
	setString(&c.MessagesPath, "MIETCHECK_MESSAGES_PATH")

	setString(&c.Azure.Endpoint, "AZURE_OPENAI_ENDPOINT")
	setString(&c.Azure.APIKey, "AZURE_OPENAI_API_KEY")
	setString(&c.Azure.Deployment, "AZURE_OPENAI_DEPLOYMENT")
	setInt(&c.Azure.MaxTokens, "AZURE_OPENAI_MAX_TOKENS")

	setString(&c.StripeAPIKey, "STRIPE_API_KEY")

	setString(&c.SMTP.Host, "SMTP_HOST")
	setInt(&c.SMTP.Port, "SMTP_PORT")
	setString(&c.SMTP.Username, "SMTP_USERNAME")
	setString(&c.SMTP.Password, "SMTP_PASSWORD")
	setString(&c.SMTP.Sender, "SMTP_SENDER")
}

func (c *Config) validate() error {
	switch c.Store {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store)
	}
	if len(c.Prices) == 0 {
		return fmt.Errorf("no plan prices configured")
	}
	for plan, cents := range c.Prices {
		if cents <= 0 {
			return fmt.Errorf("invalid price for plan %q", plan)
		}
	}
	return nil
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setInt(dst *int, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

var (
	mu      sync.RWMutex
	current = Default()
)

// Get returns the process-wide configuration.
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Set replaces the process-wide configuration.
func Set(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	current = cfg
}
