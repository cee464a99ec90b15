// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment ("development", "production").
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is the zap level name (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// LogFormat is "json" or "console".
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// Timezone is the IANA location used for weekend, after-hours and week boundaries.
	Timezone string `mapstructure:"TIMEZONE"`
	// OrgEmailDomainFallback is the internal email domain for organizations that have none stored.
	OrgEmailDomainFallback string `mapstructure:"ORG_EMAIL_DOMAIN_FALLBACK"`

	// ClassifierURL is the base URL of the inference service. Empty disables scoring.
	ClassifierURL string `mapstructure:"CLASSIFIER_URL"`
	// ClassifierModel is the model name served by the inference service.
	ClassifierModel string `mapstructure:"CLASSIFIER_MODEL"`
	// ClassifierTimeout bounds a single inference request (e.g. "30s").
	ClassifierTimeout string `mapstructure:"CLASSIFIER_TIMEOUT"`

	// RedisAddr enables the Redis detection cache when set (host:port).
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	// DetectionCacheTTL is how long cached detection results live (e.g. "24h").
	DetectionCacheTTL string `mapstructure:"DETECTION_CACHE_TTL"`
	// DetectionInterval schedules periodic scoring of the previous week; "0" disables it.
	DetectionInterval string `mapstructure:"DETECTION_INTERVAL"`

	// SSH settings for gateway containment commands.
	SSHUser       string `mapstructure:"SSH_USER"`
	SSHPassword   string `mapstructure:"SSH_PASSWORD"`
	SSHPort       int    `mapstructure:"SSH_PORT"`
	SSHTimeout    string `mapstructure:"SSH_TIMEOUT"`
	SSHKnownHosts string `mapstructure:"SSH_KNOWN_HOSTS"`

	// ContainmentPolicyFile is an optional Rego file replacing the built-in containment policy.
	ContainmentPolicyFile string `mapstructure:"CONTAINMENT_POLICY_FILE"`

	// SMTP settings for security-manager alert email. Empty SMTPUsername disables email.
	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`

	// LogonWorkers and LogonQueueSize size the logon response pool.
	LogonWorkers   int `mapstructure:"LOGON_WORKERS"`
	LogonQueueSize int `mapstructure:"LOGON_QUEUE_SIZE"`

	// CORSAllowedOrigins is a comma-separated origin list for the dashboard.
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`

	// Telemetry (optional). When Kafka brokers are set, the server emits telemetry to Kafka.
	TelemetryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	TelemetryKafkaTopic   string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`
	// Worker-only: Loki URL for the telemetry worker (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the telemetry worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	// OTel exporter settings; empty endpoint yields no-op providers.
	OTelEndpoint    string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelInsecure    bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	OTelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
	v.SetDefault("TIMEZONE", "UTC")
	v.SetDefault("ORG_EMAIL_DOMAIN_FALLBACK", "dtaa.com")
	v.SetDefault("CLASSIFIER_URL", "")
	v.SetDefault("CLASSIFIER_MODEL", "rf_insider_week")
	v.SetDefault("CLASSIFIER_TIMEOUT", "30s")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("DETECTION_CACHE_TTL", "24h")
	v.SetDefault("DETECTION_INTERVAL", "0")
	v.SetDefault("SSH_USER", "root")
	v.SetDefault("SSH_PASSWORD", "")
	v.SetDefault("SSH_PORT", 22)
	v.SetDefault("SSH_TIMEOUT", "8s")
	v.SetDefault("SSH_KNOWN_HOSTS", "")
	v.SetDefault("CONTAINMENT_POLICY_FILE", "")
	v.SetDefault("SMTP_HOST", "smtp.gmail.com")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "")
	v.SetDefault("LOGON_WORKERS", 4)
	v.SetDefault("LOGON_QUEUE_SIZE", 256)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "insiderwatch-telemetry")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "insiderwatch-telemetry-worker")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "insiderwatch")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.LogonWorkers <= 0 {
		cfg.LogonWorkers = 4
	}
	if cfg.LogonQueueSize <= 0 {
		cfg.LogonQueueSize = 256
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: TIMEZONE %q is invalid: %w", c.Timezone, err)
	}
	if c.SSHPort <= 0 || c.SSHPort > 65535 {
		return errors.New("config: SSH_PORT must be between 1 and 65535")
	}
	return nil
}

// Location returns the configured time location, or UTC if it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ClassifierTimeoutDuration parses ClassifierTimeout. Returns 30s if unset or invalid.
func (c *Config) ClassifierTimeoutDuration() time.Duration {
	return parseDuration(c.ClassifierTimeout, 30*time.Second)
}

// DetectionCacheTTLDuration parses DetectionCacheTTL. Returns 24h if unset or invalid.
func (c *Config) DetectionCacheTTLDuration() time.Duration {
	return parseDuration(c.DetectionCacheTTL, 24*time.Hour)
}

// DetectionIntervalDuration parses DetectionInterval. Returns 0 (disabled) if unset or invalid.
func (c *Config) DetectionIntervalDuration() time.Duration {
	return parseDuration(c.DetectionInterval, 0)
}

// SSHTimeoutDuration parses SSHTimeout. Returns 8s if unset or invalid.
func (c *Config) SSHTimeoutDuration() time.Duration {
	return parseDuration(c.SSHTimeout, 8*time.Second)
}

// TelemetryKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if telemetry is enabled (non-empty list) and to create the producer.
func (c *Config) TelemetryKafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.TelemetryKafkaBrokers)
}

// CORSOriginsList returns the allowed CORS origins.
func (c *Config) CORSOriginsList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.CORSAllowedOrigins)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	if d == 0 && fallback > 0 {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
