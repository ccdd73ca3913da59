package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers []string
	KafkaGroupID string

	// Import jobs
	ImportJobsTopic    string
	ImportJobsDLQTopic string
	ImportMaxRetries   int
	ImportRetryBackoff time.Duration
	ImportRetryMax     time.Duration

	// Ingestion pipeline
	IngestBatchSize    int
	ProgressFlushEvery int
	DetectionRulesPath string
	RunStateTTL        time.Duration
	ExtractScratchDir  string
	NestedArchiveDepth int
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 4*1024*1024)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "mosaic"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "mosaic123"),
		PostgresDB:       getEnv("POSTGRES_DB", "mosaic"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers: getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID: getEnv("KAFKA_GROUP_ID", "mosaic-platform"),

		ImportJobsTopic:    getEnv("IMPORT_JOBS_TOPIC", "import-jobs"),
		ImportJobsDLQTopic: getEnv("IMPORT_JOBS_DLQ_TOPIC", "import-jobs-dlq"),
		ImportMaxRetries:   getIntEnv("IMPORT_MAX_RETRIES", 3),
		ImportRetryBackoff: getDuration("IMPORT_RETRY_BACKOFF", 60*time.Second),
		ImportRetryMax:     getDuration("IMPORT_RETRY_BACKOFF_MAX", 10*time.Minute),

		IngestBatchSize:    getIntEnv("INGEST_BATCH_SIZE", 100),
		ProgressFlushEvery: getIntEnv("PROGRESS_FLUSH_EVERY", 100),
		DetectionRulesPath: getEnv("DETECTION_RULES_PATH", ""),
		RunStateTTL:        getDuration("RUN_STATE_TTL", 24*time.Hour),
		ExtractScratchDir:  getEnv("EXTRACT_SCRATCH_DIR", ""),
		NestedArchiveDepth: getIntEnv("NESTED_ARCHIVE_DEPTH", 2),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
