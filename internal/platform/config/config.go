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

	"tally/internal/anomaly"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr     string
	InputDir string
	// AdminKey signs the bearer tokens accepted by the rebuild endpoint.
	AdminKey string
	Workers  int

	LogLevel  string
	LogFormat string

	ThresholdsPath string

	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Bolt     BoltConfig
}

// PostgresConfig selects the Postgres snapshot and registry stores.
type PostgresConfig struct {
	URL      string
	MaxConns int32
}

// RedisConfig selects the Redis snapshot cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	TTL          time.Duration
}

// KafkaConfig selects where "snapshot published" events go.
type KafkaConfig struct {
	Brokers    []string
	Topic      string
	Partitions int32
}

// BoltConfig selects the local bbolt snapshot store.
type BoltConfig struct {
	Path string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("TALLY_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	adminKey := os.Getenv("TALLY_ADMIN_KEY")
	if adminKey == "" {
		// Use a default for development - should be overridden in production
		adminKey = "dev-admin-key-change-in-production"
	}

	return Server{
		Addr:           addr,
		InputDir:       envOr("TALLY_INPUT_DIR", "data"),
		AdminKey:       adminKey,
		Workers:        envInt("TALLY_WORKERS", 0),
		LogLevel:       envOr("LOG_LEVEL", "info"),
		LogFormat:      envOr("LOG_FORMAT", "json"),
		ThresholdsPath: envOr("TALLY_THRESHOLDS", "thresholds.yaml"),
		Postgres: PostgresConfig{
			URL:      os.Getenv("DATABASE_URL"),
			MaxConns: int32(envInt("DATABASE_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			TTL:          envDuration("REDIS_SNAPSHOT_TTL", 10*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers:    splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:      envOr("KAFKA_TOPIC", "tally.snapshots"),
			Partitions: int32(envInt("KAFKA_PARTITIONS", 1)),
		},
		Bolt: BoltConfig{
			Path: os.Getenv("SNAPSHOT_BOLT_PATH"),
		},
	}
}

// LoadThresholds reads anomaly thresholds from a YAML file. Keys missing
// from the file keep their defaults; a missing file yields the defaults.
func LoadThresholds(path string) (anomaly.Thresholds, error) {
	th := anomaly.DefaultThresholds()
	if path == "" {
		return th, nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return th, nil
	}
	if err != nil {
		return th, fmt.Errorf("read thresholds: %w", err)
	}
	if err := yaml.Unmarshal(raw, &th); err != nil {
		return th, fmt.Errorf("parse thresholds %s: %w", path, err)
	}
	if err := th.Validate(); err != nil {
		return th, fmt.Errorf("thresholds %s: %w", path, err)
	}
	return th, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
