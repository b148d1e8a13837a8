package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Dataset limits
	MaxRows    int
	MaxColumns int

	// Session store
	MaxSessions int
	SessionTTL  time.Duration

	// Training
	DefaultCVFolds int

	// Built-in dataset registry (optional YAML file)
	DatasetRegistryPath string
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8090"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 60*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 10*1024*1024)),

		MaxRows:    getIntEnv("DATASET_MAX_ROWS", 100000),
		MaxColumns: getIntEnv("DATASET_MAX_COLUMNS", 200),

		MaxSessions: getIntEnv("SESSION_MAX_ACTIVE", 64),
		SessionTTL:  getDuration("SESSION_TTL", 30*time.Minute),

		DefaultCVFolds: getIntEnv("TRAIN_CV_FOLDS", 3),

		DatasetRegistryPath: getEnv("DATASET_REGISTRY_PATH", ""),
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

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
