// Package config reads environment configuration and wires logging.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Solver
	SolveBudget time.Duration
	MaxPasses   int
	Seed        int64
	Workers     int
	CacheTTL    time.Duration

	// Calendar
	QuantumMinutes int
	CalendarPolicy string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "shopworks"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "sched"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		SolveBudget: getDuration("SCHED_SOLVE_BUDGET", 10*time.Second),
		MaxPasses:   getInt("SCHED_MAX_PASSES", 48),
		Seed:        int64(getInt("SCHED_SEED", 1)),
		Workers:     getInt("SCHED_WORKERS", 2),
		CacheTTL:    getDuration("SCHED_CACHE_TTL", 5*time.Minute),

		QuantumMinutes: getInt("SCHED_QUANTUM_MINUTES", 15),
		CalendarPolicy: getEnv("SCHED_CALENDAR_POLICY", "pause"),

		LogFile:  getEnv("SCHED_LOG_FILE", "/tmp/sched.log"),
		LogLevel: parseLogLevel(getEnv("SCHED_LOG_LEVEL", "INFO")),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
