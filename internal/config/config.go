package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"confidential_rps/internal/game"
	"confidential_rps/internal/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort       string
	DatabaseURL   string // empty disables persistence
	RedisAddr     string // empty falls back to in-memory rate limiting
	RedisPassword string
	RedisDB       int
	JWTSecret     string
	AllowedOrigin string

	// Oracle
	OracleDelay   time.Duration
	OracleWorkers int
	RandomPolicy  game.RandomPolicy

	// API limits
	APIRateLimit  int
	APIRateWindow int

	LogLevel string
	LogJSON  bool
}

// Load reads the environment (and .env if present) and exits on invalid
// configuration.
func Load() *Config {
	_ = godotenv.Load()

	cfg, err := FromEnv(os.Getenv)
	if err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}
	return cfg
}

// FromEnv builds a Config from getenv.
func FromEnv(getenv func(string) string) (*Config, error) {
	jwtSecret := getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET is not set")
	}

	port := getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	policy, err := game.ParseRandomPolicy(getenv("RANDOM_POLICY"))
	if err != nil {
		return nil, fmt.Errorf("RANDOM_POLICY: %w", err)
	}

	return &Config{
		AppPort:       port,
		DatabaseURL:   getenv("DATABASE_URL"),
		RedisAddr:     getenv("REDIS_ADDR"),
		RedisPassword: getenv("REDIS_PASSWORD"),
		RedisDB:       intOr(getenv("REDIS_DB"), 0),
		JWTSecret:     jwtSecret,
		AllowedOrigin: getenv("ALLOWED_ORIGIN"),

		OracleDelay:   time.Duration(intOr(getenv("ORACLE_DELAY_MS"), 1500)) * time.Millisecond,
		OracleWorkers: positiveOr(getenv("ORACLE_WORKERS"), 2),
		RandomPolicy:  policy,

		APIRateLimit:  positiveOr(getenv("API_RATE_LIMIT"), 60), // requests per window
		APIRateWindow: positiveOr(getenv("API_RATE_WINDOW_SECONDS"), 60),

		LogLevel: getenv("LOG_LEVEL"),
		LogJSON:  getenv("LOG_JSON") == "true",
	}, nil
}

func intOr(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func positiveOr(v string, def int) int {
	if n := intOr(v, def); n > 0 {
		return n
	}
	return def
}
