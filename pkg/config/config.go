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

// Session store backends.
const (
	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"
)

type Config struct {
	Env  string
	Port int

	Upstream      UpstreamConfig
	Session       SessionConfig
	Query         QueryConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	CORS          CORSConfig
	Log           LogConfig
	ImportHistory ImportHistoryConfig
	Monitor       MonitorConfig
}

// UpstreamConfig points at the supercurriculum backend REST API.
type UpstreamConfig struct {
	BaseURL string
	Timeout time.Duration
}

// SessionConfig governs the session gate and the session cookie.
type SessionConfig struct {
	Secret         string
	TTL            time.Duration
	CookieName     string
	CookieSecure   bool
	Store          string
	PermittedRoles []string
	LoginPath      string

	// CleanupInterval paces the sweep of expired in-memory session state.
	CleanupInterval time.Duration
}

// QueryConfig tunes the list query cache.
type QueryConfig struct {
	StaleTime time.Duration
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
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ImportHistoryConfig toggles persistence of import reports.
type ImportHistoryConfig struct {
	Enabled bool
	Workers int
	Retries int
}

// MonitorConfig configures the resource monitor probes.
type MonitorConfig struct {
	DiskPath     string
	SampleWindow time.Duration
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
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")

	cfg.Upstream = UpstreamConfig{
		BaseURL: strings.TrimRight(v.GetString("UPSTREAM_BASE_URL"), "/"),
		Timeout: parseDuration(v.GetString("UPSTREAM_TIMEOUT"), 20*time.Second),
	}

	store := strings.ToLower(strings.TrimSpace(v.GetString("SESSION_STORE")))
	if store != SessionStoreRedis {
		store = SessionStoreMemory
	}
	cfg.Session = SessionConfig{
		Secret:         v.GetString("SESSION_SECRET"),
		TTL:            parseDuration(v.GetString("SESSION_TTL"), 12*time.Hour),
		CookieName:     v.GetString("SESSION_COOKIE"),
		CookieSecure:   v.GetBool("SESSION_COOKIE_SECURE"),
		Store:          store,
		PermittedRoles: upperAll(splitAndTrim(v.GetString("PERMITTED_ROLES"))),
		LoginPath:      v.GetString("LOGIN_PATH"),

		CleanupInterval: parseDuration(v.GetString("SESSION_CLEANUP_INTERVAL"), 5*time.Minute),
	}

	cfg.Query = QueryConfig{
		StaleTime: parseDuration(v.GetString("QUERY_STALE_TIME"), 30*time.Second),
	}

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.ImportHistory = ImportHistoryConfig{
		Enabled: v.GetBool("ENABLE_IMPORT_HISTORY"),
		Workers: v.GetInt("IMPORT_HISTORY_WORKERS"),
		Retries: v.GetInt("IMPORT_HISTORY_RETRIES"),
	}

	cfg.Monitor = MonitorConfig{
		DiskPath:     v.GetString("MONITOR_DISK_PATH"),
		SampleWindow: parseDuration(v.GetString("MONITOR_SAMPLE_WINDOW"), 200*time.Millisecond),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8081)

	v.SetDefault("UPSTREAM_BASE_URL", "http://localhost:8000/api")
	v.SetDefault("UPSTREAM_TIMEOUT", "20s")

	v.SetDefault("SESSION_SECRET", "dev_session_secret")
	v.SetDefault("SESSION_TTL", "12h")
	v.SetDefault("SESSION_COOKIE", "sc_admin_session")
	v.SetDefault("SESSION_COOKIE_SECURE", false)
	v.SetDefault("SESSION_STORE", SessionStoreMemory)
	v.SetDefault("PERMITTED_ROLES", "SUPERADMIN,ADMIN")
	v.SetDefault("LOGIN_PATH", "/login")
	v.SetDefault("SESSION_CLEANUP_INTERVAL", "5m")

	v.SetDefault("QUERY_STALE_TIME", "30s")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "supercurriculum_admin")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 5)
	v.SetDefault("DB_MAX_IDLE_CONNS", 2)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_IMPORT_HISTORY", false)
	v.SetDefault("IMPORT_HISTORY_WORKERS", 1)
	v.SetDefault("IMPORT_HISTORY_RETRIES", 3)

	v.SetDefault("MONITOR_DISK_PATH", "/")
	v.SetDefault("MONITOR_SAMPLE_WINDOW", "200ms")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
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

func upperAll(values []string) []string {
	for i, value := range values {
		values[i] = strings.ToUpper(value)
	}
	return values
}
