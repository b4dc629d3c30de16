// Package config loads and validates the service configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the config file leaves a field unset.
const (
	DefaultProcessInterval   = 5 * time.Minute
	DefaultSendInterval      = 5 * time.Minute
	DefaultPendingBatchSize  = 10
	DefaultClaimBatchSize    = 5
	DefaultMaxAttempts       = 3
	DefaultMaxChecks         = 30
	DefaultPollInterval      = 50 * time.Second
	DefaultSettleDelay       = 5 * time.Second
	DefaultResolverTimeout   = 30 * time.Second
	DefaultTransportTimeout  = 30 * time.Second
	DefaultEnhancerTimeout   = 20 * time.Second
	DefaultInterLinkPause    = 10 * time.Second
	DefaultInterSendPause    = 5 * time.Second
	DefaultTemporaryCooldown = time.Hour
	DefaultTemporaryMaxAge   = 24 * time.Hour
	DefaultPromoteBatchSize  = 1
	DefaultStaleClaimAge     = 5 * time.Minute
	DefaultSeenCacheTTL      = 7 * 24 * time.Hour
	DefaultRateLimitRPS      = 1
	DefaultEnhancerModel     = "gpt-4o-mini"
)

type Config struct {
	Debug     bool            `yaml:"debug"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Resolver  ResolverConfig  `yaml:"resolver"`
	Enhancer  EnhancerConfig  `yaml:"enhancer"`
	Transport TransportConfig `yaml:"transport"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Composer  ComposerConfig  `yaml:"composer"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ResolverConfig drives the asynchronous affiliate-resolution job.
type ResolverConfig struct {
	URL          string        `yaml:"url"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxAttempts  int           `yaml:"max_attempts"`
	SettleDelay  time.Duration `yaml:"settle_delay"`  // pause between submit and first poll
	PollInterval time.Duration `yaml:"poll_interval"` // pause between polls
	MaxChecks    int           `yaml:"max_checks"`    // polling ceiling per attempt
}

// EnhancerConfig configures the optional AI description service. Absence
// or failure degrades gracefully to no enhancement.
type EnhancerConfig struct {
	Enabled bool          `yaml:"enabled"`
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// TransportConfig points at the message gateway that delivers composed
// payloads to destination groups.
type TransportConfig struct {
	URL          string        `yaml:"url"`
	Token        string        `yaml:"token"`
	Timeout      time.Duration `yaml:"timeout"`
	RateLimitRPS int           `yaml:"rate_limit_rps"`
}

type SchedulerConfig struct {
	ProcessInterval   time.Duration `yaml:"process_interval"`
	SendInterval      time.Duration `yaml:"send_interval"`
	PendingBatchSize  int           `yaml:"pending_batch_size"`
	ClaimBatchSize    int           `yaml:"claim_batch_size"`
	InterLinkPause    time.Duration `yaml:"inter_link_pause"`
	InterSendPause    time.Duration `yaml:"inter_send_pause"`
	TemporaryCooldown time.Duration `yaml:"temporary_cooldown"`
	TemporaryMaxAge   time.Duration `yaml:"temporary_max_age"`
	PromoteBatchSize  int           `yaml:"promote_batch_size"`
	StaleClaimAge     time.Duration `yaml:"stale_claim_age"`
}

type IngestConfig struct {
	NoiseDomains []string      `yaml:"noise_domains"`
	SeenCacheTTL time.Duration `yaml:"seen_cache_ttl"`
}

type ComposerConfig struct {
	IncludeDescription bool `yaml:"include_description"`
}

// Load reads, defaults, env-overrides and validates the configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	setDefaults(&cfg)
	overrideWithEnvVars(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Database.DBName == "" {
		return errors.New("database.dbname is required")
	}
	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if c.Resolver.URL == "" {
		return errors.New("resolver.url is required")
	}
	if c.Transport.URL == "" {
		return errors.New("transport.url is required")
	}
	if c.Enhancer.Enabled && c.Enhancer.APIKey == "" {
		return errors.New("enhancer.api_key is required when enhancer.enabled is true")
	}
	if c.Scheduler.ProcessInterval <= 0 {
		return fmt.Errorf("scheduler.process_interval must be positive, got %v", c.Scheduler.ProcessInterval)
	}
	if c.Scheduler.SendInterval <= 0 {
		return fmt.Errorf("scheduler.send_interval must be positive, got %v", c.Scheduler.SendInterval)
	}
	if c.Resolver.MaxAttempts <= 0 {
		return fmt.Errorf("resolver.max_attempts must be positive, got %d", c.Resolver.MaxAttempts)
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Database.Port == "" {
		cfg.Database.Port = "5432"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Resolver.Timeout == 0 {
		cfg.Resolver.Timeout = DefaultResolverTimeout
	}
	if cfg.Resolver.MaxAttempts == 0 {
		cfg.Resolver.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Resolver.SettleDelay == 0 {
		cfg.Resolver.SettleDelay = DefaultSettleDelay
	}
	if cfg.Resolver.PollInterval == 0 {
		cfg.Resolver.PollInterval = DefaultPollInterval
	}
	if cfg.Resolver.MaxChecks == 0 {
		cfg.Resolver.MaxChecks = DefaultMaxChecks
	}
	if cfg.Enhancer.Timeout == 0 {
		cfg.Enhancer.Timeout = DefaultEnhancerTimeout
	}
	if cfg.Enhancer.Model == "" {
		cfg.Enhancer.Model = DefaultEnhancerModel
	}
	if cfg.Transport.Timeout == 0 {
		cfg.Transport.Timeout = DefaultTransportTimeout
	}
	if cfg.Transport.RateLimitRPS == 0 {
		cfg.Transport.RateLimitRPS = DefaultRateLimitRPS
	}
	if cfg.Scheduler.ProcessInterval == 0 {
		cfg.Scheduler.ProcessInterval = DefaultProcessInterval
	}
	if cfg.Scheduler.SendInterval == 0 {
		cfg.Scheduler.SendInterval = DefaultSendInterval
	}
	if cfg.Scheduler.PendingBatchSize == 0 {
		cfg.Scheduler.PendingBatchSize = DefaultPendingBatchSize
	}
	if cfg.Scheduler.ClaimBatchSize == 0 {
		cfg.Scheduler.ClaimBatchSize = DefaultClaimBatchSize
	}
	if cfg.Scheduler.InterLinkPause == 0 {
		cfg.Scheduler.InterLinkPause = DefaultInterLinkPause
	}
	if cfg.Scheduler.InterSendPause == 0 {
		cfg.Scheduler.InterSendPause = DefaultInterSendPause
	}
	if cfg.Scheduler.TemporaryCooldown == 0 {
		cfg.Scheduler.TemporaryCooldown = DefaultTemporaryCooldown
	}
	if cfg.Scheduler.TemporaryMaxAge == 0 {
		cfg.Scheduler.TemporaryMaxAge = DefaultTemporaryMaxAge
	}
	if cfg.Scheduler.PromoteBatchSize == 0 {
		cfg.Scheduler.PromoteBatchSize = DefaultPromoteBatchSize
	}
	if cfg.Scheduler.StaleClaimAge == 0 {
		cfg.Scheduler.StaleClaimAge = DefaultStaleClaimAge
	}
	if cfg.Ingest.SeenCacheTTL == 0 {
		cfg.Ingest.SeenCacheTTL = DefaultSeenCacheTTL
	}
	if len(cfg.Ingest.NoiseDomains) == 0 {
		cfg.Ingest.NoiseDomains = defaultNoiseDomains()
	}
}

// defaultNoiseDomains lists generic social/media hosts that never carry
// affiliate product links. Cheap substring pre-filter before URL parsing.
func defaultNoiseDomains() []string {
	return []string{
		"facebook.com",
		"instagram.com",
		"youtube.com",
		"youtu.be",
		"tiktok.com",
		"twitter.com",
		"x.com",
		"t.me",
		"chat.whatsapp.com",
	}
}

func overrideWithEnvVars(cfg *Config) {
	if v := os.Getenv("DATABASE_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DATABASE_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("RESOLVER_API_URL"); v != "" {
		cfg.Resolver.URL = v
	}
	if v := os.Getenv("TRANSPORT_API_URL"); v != "" {
		cfg.Transport.URL = v
	}
	if v := os.Getenv("ENHANCER_API_KEY"); v != "" {
		cfg.Enhancer.APIKey = v
	}
	if v := os.Getenv("APP_DEBUG"); v != "" {
		cfg.Debug = parseBool(v)
	}
}

// parseBool accepts the common truthy spellings; anything else is false.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}
