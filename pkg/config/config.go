package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Storage drivers understood by StorageConfig.Driver.
const (
	StorageDriverLocal = "local"
	StorageDriverMinio = "minio"
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
	Storage    StorageConfig
	Extraction ExtractionConfig
	Tracker    TrackerConfig
	Reports    ReportsConfig
	Seed       SeedConfig
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
	AutoMigrate  bool
	PingTimeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Issuer            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// StorageConfig selects where uploaded documents live and how they are served back.
type StorageConfig struct {
	Driver            string
	LocalDir          string
	MinioEndpoint     string
	MinioAccessKey    string
	MinioSecretKey    string
	MinioBucket       string
	MinioUseSSL       bool
	MaxFileSizeBytes  int64
	AllowedExtensions []string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
}

// ExtractionConfig points at the external extraction service and sizes the ingest workers.
type ExtractionConfig struct {
	BaseURL    string
	Timeout    time.Duration
	Workers    int
	BufferSize int
}

// TrackerConfig tunes department progress aggregation.
type TrackerConfig struct {
	Target       int
	CacheEnabled bool
	CacheTTL     time.Duration
}

// ReportsConfig controls report rendering.
type ReportsConfig struct {
	Institution string
}

// SeedConfig toggles default account bootstrap on startup.
type SeedConfig struct {
	Enabled         bool
	DefaultPassword string
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
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
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
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
		PingTimeout:  parseDuration(v.GetString("DB_PING_TIMEOUT"), 5*time.Second),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Issuer:            v.GetString("JWT_ISSUER"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 8*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	maxUpload := v.GetInt64("STORAGE_MAX_FILE_SIZE")
	if maxUpload <= 0 {
		maxUpload = 16 * 1024 * 1024
	}
	cfg.Storage = StorageConfig{
		Driver:            strings.ToLower(v.GetString("STORAGE_DRIVER")),
		LocalDir:          v.GetString("STORAGE_LOCAL_DIR"),
		MinioEndpoint:     v.GetString("MINIO_ENDPOINT"),
		MinioAccessKey:    v.GetString("MINIO_ACCESS_KEY"),
		MinioSecretKey:    v.GetString("MINIO_SECRET_KEY"),
		MinioBucket:       v.GetString("MINIO_BUCKET"),
		MinioUseSSL:       v.GetBool("MINIO_USE_SSL"),
		MaxFileSizeBytes:  maxUpload,
		AllowedExtensions: splitAndTrim(strings.ToLower(v.GetString("STORAGE_ALLOWED_EXTENSIONS"))),
		SignedURLSecret:   v.GetString("STORAGE_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("STORAGE_SIGNED_URL_TTL"), 15*time.Minute),
	}

	cfg.Extraction = ExtractionConfig{
		BaseURL:    strings.TrimRight(v.GetString("EXTRACTION_URL"), "/"),
		Timeout:    parseDuration(v.GetString("EXTRACTION_TIMEOUT"), 2*time.Minute),
		Workers:    v.GetInt("EXTRACTION_WORKERS"),
		BufferSize: v.GetInt("EXTRACTION_QUEUE_BUFFER"),
	}

	target := v.GetInt("TRACKER_TARGET")
	if target <= 0 {
		target = 10
	}
	cfg.Tracker = TrackerConfig{
		Target:       target,
		CacheEnabled: v.GetBool("TRACKER_CACHE_ENABLED"),
		CacheTTL:     parseDuration(v.GetString("TRACKER_CACHE_TTL"), 30*time.Second),
	}

	cfg.Reports = ReportsConfig{
		Institution: v.GetString("REPORTS_INSTITUTION"),
	}

	cfg.Seed = SeedConfig{
		Enabled:         v.GetBool("SEED_DEFAULT_USERS"),
		DefaultPassword: v.GetString("SEED_DEFAULT_PASSWORD"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "iqc_intake")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)
	v.SetDefault("DB_PING_TIMEOUT", "5s")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "iqc-intake-api")
	v.SetDefault("JWT_EXPIRATION", "8h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("STORAGE_DRIVER", StorageDriverLocal)
	v.SetDefault("STORAGE_LOCAL_DIR", "./uploads")
	v.SetDefault("MINIO_ENDPOINT", "localhost:9000")
	v.SetDefault("MINIO_ACCESS_KEY", "minioadmin")
	v.SetDefault("MINIO_SECRET_KEY", "minioadmin")
	v.SetDefault("MINIO_BUCKET", "iqc-documents")
	v.SetDefault("MINIO_USE_SSL", false)
	v.SetDefault("STORAGE_MAX_FILE_SIZE", 16*1024*1024)
	v.SetDefault("STORAGE_ALLOWED_EXTENSIONS", "pdf,png,jpg,jpeg,tiff")
	v.SetDefault("STORAGE_SIGNED_URL_SECRET", "dev_documents_secret")
	v.SetDefault("STORAGE_SIGNED_URL_TTL", "15m")

	v.SetDefault("EXTRACTION_URL", "http://localhost:8000")
	v.SetDefault("EXTRACTION_TIMEOUT", "2m")
	v.SetDefault("EXTRACTION_WORKERS", 2)
	v.SetDefault("EXTRACTION_QUEUE_BUFFER", 64)

	v.SetDefault("TRACKER_TARGET", 10)
	v.SetDefault("TRACKER_CACHE_ENABLED", true)
	v.SetDefault("TRACKER_CACHE_TTL", "30s")

	v.SetDefault("REPORTS_INSTITUTION", "Internal Quality Cell")

	v.SetDefault("SEED_DEFAULT_USERS", false)
	v.SetDefault("SEED_DEFAULT_PASSWORD", "password123")
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
