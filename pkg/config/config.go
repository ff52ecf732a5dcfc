package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Lock backends understood by LOCK_BACKEND.
const (
	LockBackendMemory   = "memory"
	LockBackendRedis    = "redis"
	LockBackendPostgres = "postgres"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Lock       LockConfig
	Enrollment EnrollmentConfig
	Audit      AuditConfig
	Notifier   NotifierConfig
	Telemetry  TelemetryConfig
	Cache      CacheConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int

	// ConnMaxLifetime and ConnMaxIdleTime bound pooled connections.
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	// ConnectTimeout caps the startup ping including retries.
	ConnectTimeout time.Duration
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig carries the secret used to validate access tokens issued elsewhere.
type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// LockConfig selects and tunes the per-enrollment operation lock.
type LockConfig struct {
	Backend string
	Timeout time.Duration
	TTL     time.Duration
}

// EnrollmentConfig tunes the retrying enroll path used by payment events.
type EnrollmentConfig struct {
	RetryMaxElapsed time.Duration
}

// AuditConfig controls the periodic consistency audit.
type AuditConfig struct {
	Enabled    bool
	Interval   time.Duration
	AutoRepair bool
}

// NotifierConfig sizes the asynchronous sync notifier.
type NotifierConfig struct {
	Workers      int
	BufferSize   int
	MaxRetries   int
	RetryDelay   time.Duration
	RedisEnabled bool
	RedisChannel string
}

// CacheConfig controls the Redis-backed course catalog cache. Zero TTL disables it.
type CacheConfig struct {
	CourseTTL time.Duration
}

// TelemetryConfig configures OpenTelemetry exporting.
type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	Endpoint     string
	SamplerRatio float64
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),

		ConnMaxLifetime: parseDuration(v.GetString("DB_CONN_MAX_LIFETIME"), time.Hour),
		ConnMaxIdleTime: parseDuration(v.GetString("DB_CONN_MAX_IDLE_TIME"), 30*time.Minute),
		ConnectTimeout:  parseDuration(v.GetString("DB_CONNECT_TIMEOUT"), 10*time.Second),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Lock = LockConfig{
		Backend: strings.ToLower(strings.TrimSpace(v.GetString("LOCK_BACKEND"))),
		Timeout: parseDuration(v.GetString("ENROLL_LOCK_TIMEOUT"), 5*time.Second),
		TTL:     parseDuration(v.GetString("LOCK_TTL"), 30*time.Second),
	}

	cfg.Enrollment = EnrollmentConfig{
		RetryMaxElapsed: parseDuration(v.GetString("ENROLL_RETRY_MAX_ELAPSED"), 15*time.Second),
	}

	cfg.Audit = AuditConfig{
		Enabled:    v.GetBool("ENABLE_AUDIT_SCHEDULER"),
		Interval:   parseDuration(v.GetString("AUDIT_INTERVAL"), 10*time.Minute),
		AutoRepair: v.GetBool("AUDIT_AUTO_REPAIR"),
	}

	cfg.Notifier = NotifierConfig{
		Workers:      v.GetInt("NOTIFIER_WORKERS"),
		BufferSize:   v.GetInt("NOTIFIER_BUFFER"),
		MaxRetries:   v.GetInt("NOTIFIER_RETRIES"),
		RetryDelay:   parseDuration(v.GetString("NOTIFIER_RETRY_DELAY"), time.Second),
		RedisEnabled: v.GetBool("ENABLE_REDIS_NOTIFIER"),
		RedisChannel: v.GetString("NOTIFIER_REDIS_CHANNEL"),
	}

	cfg.Cache = CacheConfig{CourseTTL: parseOptionalDuration(v.GetString("COURSE_CACHE_TTL"))}

	cfg.Telemetry = TelemetryConfig{
		Enabled:      v.GetBool("OTEL_ENABLED"),
		ServiceName:  v.GetString("OTEL_SERVICE_NAME"),
		Endpoint:     v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
		SamplerRatio: v.GetFloat64("OTEL_SAMPLER_RATIO"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Lock.Backend {
	case LockBackendMemory, LockBackendPostgres:
	case LockBackendRedis:
		if !c.Redis.Enabled {
			return errors.New("LOCK_BACKEND=redis requires REDIS_ENABLED=true")
		}
	default:
		return errors.New("LOCK_BACKEND must be one of memory, redis, postgres")
	}
	if c.Notifier.RedisEnabled && !c.Redis.Enabled {
		return errors.New("ENABLE_REDIS_NOTIFIER requires REDIS_ENABLED=true")
	}
	if c.Cache.CourseTTL > 0 && !c.Redis.Enabled {
		return errors.New("COURSE_CACHE_TTL requires REDIS_ENABLED=true")
	}
	if c.Telemetry.SamplerRatio < 0 || c.Telemetry.SamplerRatio > 1 {
		return errors.New("OTEL_SAMPLER_RATIO must be between 0 and 1")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "nursepor")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 20)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("LOCK_BACKEND", LockBackendMemory)
	v.SetDefault("ENROLL_LOCK_TIMEOUT", "5s")
	v.SetDefault("LOCK_TTL", "30s")
	v.SetDefault("ENROLL_RETRY_MAX_ELAPSED", "15s")

	v.SetDefault("ENABLE_AUDIT_SCHEDULER", false)
	v.SetDefault("AUDIT_INTERVAL", "10m")
	v.SetDefault("AUDIT_AUTO_REPAIR", false)

	v.SetDefault("NOTIFIER_WORKERS", 2)
	v.SetDefault("NOTIFIER_BUFFER", 256)
	v.SetDefault("NOTIFIER_RETRIES", 3)
	v.SetDefault("NOTIFIER_RETRY_DELAY", "1s")
	v.SetDefault("ENABLE_REDIS_NOTIFIER", false)
	v.SetDefault("NOTIFIER_REDIS_CHANNEL", "enrollment-sync")

	v.SetDefault("COURSE_CACHE_TTL", "0s")

	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SERVICE_NAME", "enrollment-api")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318")
	v.SetDefault("OTEL_SAMPLER_RATIO", 1.0)
}

// isMissingFile covers viper reporting an absent .env as a path error instead of ConfigFileNotFoundError.
func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}

	return d
}

// parseOptionalDuration returns zero for empty, invalid or negative input.
func parseOptionalDuration(raw string) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
