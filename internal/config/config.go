package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	AnchorModeLocal   = "local"
	AnchorModeNumbers = "numbers"
)

type Config struct {
	HTTPAddr    string
	PostgresDSN string
	AutoMigrate bool
	LogLevel    string
	LogFormat   string
	Env         string

	SigningPrivateKeyPEM  string
	SigningPrivateKeyPath string
	SigningAlgorithm      string
	GeneratorID           string

	AnchorMode           string
	NumbersAPIBase       string
	NumbersAPIKey        string
	ExplorerAssetBase    string
	AnchorTimeoutSeconds int

	PolicyPath   string
	JobListLimit int

	RateLimitRequests      int
	RateLimitWindowSeconds int
	RateLimitFailClosed    bool
	RateLimitMaxKeys       int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

func FromEnv() Config {
	return Config{
		HTTPAddr:               envDefault("HTTP_ADDR", ":8080"),
		PostgresDSN:            os.Getenv("POSTGRES_DSN"),
		AutoMigrate:            envBoolDefault("DB_AUTO_MIGRATE", true),
		LogLevel:               envDefault("LOG_LEVEL", "info"),
		LogFormat:              envDefault("LOG_FORMAT", "text"),
		Env:                    envDefault("PROOFSY_ENV", "development"),
		SigningPrivateKeyPEM:   os.Getenv("SIGNING_PRIVATE_KEY_PEM"),
		SigningPrivateKeyPath:  os.Getenv("SIGNING_PRIVATE_KEY_PATH"),
		SigningAlgorithm:       strings.ToLower(envDefault("SIGNING_ALGORITHM", "es256")),
		GeneratorID:            envDefault("GENERATOR_ID", "ProofsyGPU/1.0"),
		AnchorMode:             strings.ToLower(envDefault("ANCHOR_MODE", AnchorModeLocal)),
		NumbersAPIBase:         envDefault("NUMBERS_API_BASE", "https://api.numbersprotocol.io/api/v3"),
		NumbersAPIKey:          os.Getenv("NUMBERS_API_KEY"),
		ExplorerAssetBase:      envDefault("EXPLORER_ASSET_BASE", "https://verify.numbersprotocol.io/asset-profile/"),
		AnchorTimeoutSeconds:   envIntDefault("ANCHOR_TIMEOUT_SECONDS", 10),
		PolicyPath:             os.Getenv("POLICY_PATH"),
		JobListLimit:           envIntDefault("JOB_LIST_LIMIT", 50),
		RateLimitRequests:      envIntDefault("RATE_LIMIT_REQUESTS", 0),
		RateLimitWindowSeconds: envIntDefault("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitFailClosed:    envBoolDefault("RATE_LIMIT_FAIL_CLOSED", false),
		RateLimitMaxKeys:       envIntDefault("RATE_LIMIT_MAX_KEYS", 10000),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                envIntDefault("REDIS_DB", 0),
	}
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "Yes":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "No":
		return false
	default:
		return def
	}
}

func (c Config) AnchorTimeout() time.Duration {
	if c.AnchorTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.AnchorTimeoutSeconds) * time.Second
}

func (c Config) RateLimitWindow() time.Duration {
	if c.RateLimitWindowSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}
