package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds runtime configuration for the alert service.
type Config struct {
	// Log level (trace, debug, info, warn, error)
	LogLevel string

	// Redis address of the primary alert store
	RedisAddr string

	// Kafka brokers and topic for alert submissions
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	// Optional YAML rule file merged over the built-in defaults
	RulesPath string

	// Interval between reconciliation sweeps
	SweepInterval time.Duration

	// Minimum elapsed time after an escalation before another is allowed
	EscalationCooldown time.Duration

	// Active alerts older than this are expired by the sweep
	RetentionDays int

	// Address for the metrics/health HTTP listener
	MetricsAddr string
}

// Default returns a sensible default config for local dev.
func Default() *Config {
	return &Config{
		LogLevel:           "info",
		RedisAddr:          "localhost:6379",
		KafkaBrokers:       []string{"localhost:9092"},
		KafkaTopic:         "fleet-alerts",
		KafkaGroupID:       "fleetalert",
		SweepInterval:      time.Minute,
		EscalationCooldown: 30 * time.Minute,
		RetentionDays:      30,
		MetricsAddr:        ":9090",
	}
}

// FromEnv returns the default config with environment overrides applied.
func FromEnv() *Config {
	cfg := Default()
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		cfg.KafkaTopic = v
	}
	if v := os.Getenv("KAFKA_GROUP_ID"); v != "" {
		cfg.KafkaGroupID = v
	}
	if v := os.Getenv("RULES_PATH"); v != "" {
		cfg.RulesPath = v
	}
	if d := envDuration("SWEEP_INTERVAL"); d > 0 {
		cfg.SweepInterval = d
	}
	if d := envDuration("ESCALATION_COOLDOWN"); d > 0 {
		cfg.EscalationCooldown = d
	}
	if n := envInt("RETENTION_DAYS"); n > 0 {
		cfg.RetentionDays = n
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	return cfg
}

func envDuration(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
