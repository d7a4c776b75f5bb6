package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultNATSURL          = "nats://localhost:4222"
	defaultRedisURL         = "redis://localhost:6379"
	defaultStagingDir       = "var/zipmark"
	defaultHTTPAddr         = ":9090"
	defaultGRPCAddr         = ":9091"
	defaultCleanupInterval  = 24 * time.Hour
	defaultStagingRetention = time.Duration(0)
	defaultLockTTL          = 30 * time.Second

	envNATSURL          = "NATS_URL"
	envRedisURL         = "REDIS_URL"
	envUseJetStream     = "NATS_USE_JETSTREAM"
	envStagingDir       = "ZIPMARK_STAGING_DIR"
	envRulesPath        = "ZIPMARK_RULES_PATH"
	envHTTPAddr         = "ZIPMARK_HTTP_ADDR"
	envGRPCAddr         = "ZIPMARK_GRPC_ADDR"
	envCleanupInterval  = "ZIPMARK_CLEANUP_INTERVAL"
	envStagingRetention = "ZIPMARK_STAGING_RETENTION"
	envLockTTL          = "ZIPMARK_LOCK_TTL"
)

// Config holds runtime configuration for the worker and CLI.
type Config struct {
	NatsURL      string
	RedisURL     string
	UseJetStream bool
	// StagingDir is the root under which temp/<customer>/ copies are made.
	StagingDir string
	// RulesPath points at a static rule file. Empty means rules come from Redis.
	RulesPath        string
	HTTPAddr         string
	GRPCAddr         string
	CleanupInterval  time.Duration
	StagingRetention time.Duration
	LockTTL          time.Duration
}

// Load returns configuration using environment variables with sane defaults.
func Load() *Config {
	return &Config{
		NatsURL:          envOr(envNATSURL, defaultNATSURL),
		RedisURL:         envOr(envRedisURL, defaultRedisURL),
		UseJetStream:     envBool(envUseJetStream),
		StagingDir:       envOr(envStagingDir, defaultStagingDir),
		RulesPath:        strings.TrimSpace(os.Getenv(envRulesPath)),
		HTTPAddr:         envOr(envHTTPAddr, defaultHTTPAddr),
		GRPCAddr:         envOr(envGRPCAddr, defaultGRPCAddr),
		CleanupInterval:  envDuration(envCleanupInterval, defaultCleanupInterval),
		StagingRetention: envDuration(envStagingRetention, defaultStagingRetention),
		LockTTL:          envDuration(envLockTTL, defaultLockTTL),
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	ok, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return err == nil && ok
}

// envDuration accepts Go durations ("90s") or a bare number of seconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil && d >= 0 {
		return d
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
