package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	liststrings "terraguard/pkg/platform/strings"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Server captures process level configuration.
type Server struct {
	Addr     string
	LogLevel string
	Storage  string
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Tracking TrackingConfig
	Dispatch DispatchConfig
	// ZonesFile optionally points at a JSON array of zones loaded after the
	// default mining zone is seeded.
	ZonesFile string
}

// DatabaseConfig selects the Postgres DSN and database/sql driver.
type DatabaseConfig struct {
	URL    string
	Driver string // "postgres" (lib/pq) or "pgx"
}

// RedisConfig configures the Redis alert channel. An empty URL disables it.
type RedisConfig struct {
	URL          string
	Channel      string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the Kafka alert topic. No brokers disables it.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// TrackingConfig configures simulated position feeds.
type TrackingConfig struct {
	SampleInterval time.Duration
	FreezeOnBreach bool
}

// DispatchConfig sizes the breach dispatcher.
type DispatchConfig struct {
	Shards    int
	QueueSize int
	MaxRetry  int
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr:     envString("TERRAGUARD_ADDR", ":8080"),
		LogLevel: envString("LOG_LEVEL", "info"),
		Storage:  strings.ToLower(envString("STORAGE", StorageMemory)),
		Database: DatabaseConfig{
			URL:    os.Getenv("DATABASE_URL"),
			Driver: strings.ToLower(envString("DATABASE_DRIVER", "postgres")),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			Channel:      envString("REDIS_ALERT_CHANNEL", "terraguard.alerts"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: envList("KAFKA_BROKERS"),
			Topic:   envString("KAFKA_ALERT_TOPIC", "terraguard.violations"),
		},
		Tracking: TrackingConfig{
			SampleInterval: envDuration("TRACKING_SAMPLE_INTERVAL", time.Second),
			FreezeOnBreach: envBool("TRACKING_FREEZE_ON_BREACH", false),
		},
		Dispatch: DispatchConfig{
			Shards:    envInt("DISPATCH_SHARDS", 8),
			QueueSize: envInt("DISPATCH_QUEUE_SIZE", 64),
			MaxRetry:  envInt("DISPATCH_MAX_RETRY", 5),
		},
		ZonesFile: os.Getenv("ZONES_FILE"),
	}
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func envBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func envList(key string) []string {
	return liststrings.SplitList(os.Getenv(key), ",")
}
