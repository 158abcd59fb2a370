package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Dispatch DispatchConfig
	Outbound OutboundConfig
	Sources  SourcesConfig
}

type AppConfig struct {
	AppName     string
	Environment string
	HTTPPort    string
	LogLevel    string
}

type DatabaseConfig struct {
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	ConnectTimeout        time.Duration
	PoolMaxConns          int32
	PoolMinConns          int32
	PoolMaxConnLifetime   time.Duration
	PoolMaxConnIdleTime   time.Duration
	PoolHealthCheckPeriod time.Duration

	// StatementTimeout caps every statement on a pooled connection. Zero
	// leaves the server default.
	StatementTimeout time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	StatsTTL time.Duration
}

type JWTConfig struct {
	AccessSecret string
}

// DispatchConfig tunes the per-run orchestrator. Thresholds are match scores
// (0..100); the auto-send threshold comes from each user's settings.
type DispatchConfig struct {
	VisibilityThreshold int
	DraftThreshold      int
	RunBudget           time.Duration
	Workers             int
	MediumReviewDelay   time.Duration
	DefaultTimezone     string
	StuckAfter          time.Duration
	MaxRetries          int
	RequeueDelay        time.Duration
	DuplicateWindow     time.Duration
}

type OutboundConfig struct {
	GeneratorURL     string
	ResolverURL      string
	RelayURL         string
	RelayToken       string
	GeneratorTimeout time.Duration
	ResolverTimeout  time.Duration
	TransportTimeout time.Duration
	RelayRatePerSec  float64
	RetryBaseDelay   time.Duration
}

type SourcesConfig struct {
	File    string
	Queries []string
	Workers int
}

var errMissingRequiredEnv = errors.New("missing required environment variables")

func Load() (Config, error) {
	// .env is optional; real deployments inject the environment directly.
	_ = godotenv.Load()

	cfg := Config{}

	var missing []string
	req := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}
	opt := func(key string) string {
		return strings.TrimSpace(os.Getenv(key))
	}

	cfg.App = AppConfig{
		AppName:     req("APP_NAME"),
		Environment: req("APP_ENV"),
		HTTPPort:    optString(opt("HTTP_PORT"), "8080"),
		LogLevel:    optString(opt("LOG_LEVEL"), "info"),
	}

	cfg.Database = DatabaseConfig{
		DBHost:                req("DB_HOST"),
		DBPort:                optString(opt("DB_PORT"), "5432"),
		DBName:                req("DB_NAME"),
		DBUser:                req("DB_USER"),
		DBPassword:            opt("DB_PASSWORD"),
		DBSSLMode:             optString(opt("DB_SSL_MODE"), "disable"),
		ConnectTimeout:        optDuration(opt("DB_CONNECT_TIMEOUT"), 5*time.Second),
		PoolMaxConns:          int32(optInt(opt("DB_POOL_MAX_CONNS"), 10)),
		PoolMinConns:          int32(optInt(opt("DB_POOL_MIN_CONNS"), 0)),
		PoolMaxConnLifetime:   optDuration(opt("DB_POOL_MAX_CONN_LIFETIME"), time.Hour),
		PoolMaxConnIdleTime:   optDuration(opt("DB_POOL_MAX_CONN_IDLE_TIME"), 30*time.Minute),
		PoolHealthCheckPeriod: optDuration(opt("DB_POOL_HEALTH_CHECK_PERIOD"), time.Minute),
		StatementTimeout:      optDuration(opt("DB_STATEMENT_TIMEOUT"), 30*time.Second),
	}

	cfg.Redis = RedisConfig{
		Host:     optString(opt("REDIS_HOST"), "localhost"),
		Port:     optString(opt("REDIS_PORT"), "6379"),
		Password: opt("REDIS_PASSWORD"),
		StatsTTL: optDuration(opt("REDIS_STATS_TTL"), 30*time.Second),
	}

	cfg.JWT = JWTConfig{
		AccessSecret: opt("JWT_ACCESS_SECRET"),
	}

	cfg.Dispatch = DispatchConfig{
		VisibilityThreshold: optInt(opt("MATCH_VISIBILITY_THRESHOLD"), 30),
		DraftThreshold:      optInt(opt("MATCH_DRAFT_THRESHOLD"), 50),
		RunBudget:           optDuration(opt("DISPATCH_RUN_BUDGET"), 10*time.Minute),
		Workers:             optInt(opt("DISPATCH_WORKERS"), 8),
		MediumReviewDelay:   optDuration(opt("DISPATCH_MEDIUM_REVIEW_DELAY"), 2*time.Hour),
		DefaultTimezone:     optString(opt("DISPATCH_DEFAULT_TIMEZONE"), "UTC"),
		StuckAfter:          optDuration(opt("DISPATCH_STUCK_AFTER"), 10*time.Minute),
		MaxRetries:          optInt(opt("DISPATCH_MAX_RETRIES"), 3),
		RequeueDelay:        optDuration(opt("DISPATCH_REQUEUE_DELAY"), 15*time.Minute),
		DuplicateWindow:     optDuration(opt("DISPATCH_DUPLICATE_WINDOW"), 7*24*time.Hour),
	}

	cfg.Outbound = OutboundConfig{
		GeneratorURL:     opt("GENERATOR_BASE_URL"),
		ResolverURL:      opt("RESOLVER_BASE_URL"),
		RelayURL:         opt("MAIL_RELAY_BASE_URL"),
		RelayToken:       opt("MAIL_RELAY_TOKEN"),
		GeneratorTimeout: optDuration(opt("GENERATOR_TIMEOUT"), 60*time.Second),
		ResolverTimeout:  optDuration(opt("RESOLVER_TIMEOUT"), 10*time.Second),
		TransportTimeout: optDuration(opt("TRANSPORT_TIMEOUT"), 15*time.Second),
		RelayRatePerSec:  optFloat(opt("MAIL_RELAY_RATE_PER_SEC"), 2),
		RetryBaseDelay:   optDuration(opt("TRANSPORT_RETRY_BASE_DELAY"), 2*time.Second),
	}

	cfg.Sources = SourcesConfig{
		File:    optString(opt("SOURCES_FILE"), "sources.yaml"),
		Queries: splitList(opt("SOURCE_QUERIES")),
		Workers: optInt(opt("SOURCE_WORKERS"), 4),
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("%w: %s", errMissingRequiredEnv, strings.Join(missing, ", "))
	}

	if cfg.Dispatch.DraftThreshold < cfg.Dispatch.VisibilityThreshold {
		return Config{}, fmt.Errorf("MATCH_DRAFT_THRESHOLD (%d) must not be below MATCH_VISIBILITY_THRESHOLD (%d)",
			cfg.Dispatch.DraftThreshold, cfg.Dispatch.VisibilityThreshold)
	}
	if _, err := time.LoadLocation(cfg.Dispatch.DefaultTimezone); err != nil {
		return Config{}, fmt.Errorf("invalid DISPATCH_DEFAULT_TIMEZONE: %w", err)
	}

	return cfg, nil
}

func optString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func optInt(v string, def int) int {
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func optFloat(v string, def float64) float64 {
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return def
	}
	return f
}

func optDuration(v string, def time.Duration) time.Duration {
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	out := make([]string, 0)
	for _, p := range strings.Split(v, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
