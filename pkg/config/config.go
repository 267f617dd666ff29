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

const (
	StorageDriverLocal = "local"
	StorageDriverMinio = "minio"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Storage  StorageConfig
	Catalog  CatalogConfig
	Mail     MailConfig
	Invoices InvoiceConfig
	Cleanup  CleanupConfig
	Metrics  MetricsConfig
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

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// StorageConfig selects where uploaded bytes live.
type StorageConfig struct {
	Driver          string
	BaseDir         string
	PublicURLPrefix string
	MaxUploadBytes  int64
	Minio           MinioConfig
}

// MinioConfig is only read when Storage.Driver is "minio".
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// CatalogConfig governs product/gallery read caching.
type CatalogConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// MailConfig configures outbound customer notifications.
type MailConfig struct {
	Enabled     bool
	FromAddress string
	BrandName   string
}

// InvoiceConfig controls proforma invoice download links.
type InvoiceConfig struct {
	SignedURLSecret string
	SignedURLTTL    time.Duration
	Currency        string
}

// CleanupConfig tunes the background file cleanup queue.
type CleanupConfig struct {
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

type MetricsConfig struct {
	Enabled bool
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
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 7*24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	maxUpload := v.GetInt64("STORAGE_MAX_UPLOAD_BYTES")
	if maxUpload <= 0 {
		maxUpload = 100 * 1024 * 1024
	}
	cfg.Storage = StorageConfig{
		Driver:          strings.ToLower(v.GetString("STORAGE_DRIVER")),
		BaseDir:         v.GetString("STORAGE_BASE_DIR"),
		PublicURLPrefix: v.GetString("STORAGE_PUBLIC_URL_PREFIX"),
		MaxUploadBytes:  maxUpload,
		Minio: MinioConfig{
			Endpoint:  v.GetString("MINIO_ENDPOINT"),
			AccessKey: v.GetString("MINIO_ACCESS_KEY"),
			SecretKey: v.GetString("MINIO_SECRET_KEY"),
			Bucket:    v.GetString("MINIO_BUCKET"),
			UseSSL:    v.GetBool("MINIO_USE_SSL"),
		},
	}

	cfg.Catalog = CatalogConfig{
		CacheEnabled: v.GetBool("ENABLE_CATALOG_CACHE"),
		CacheTTL:     parseDuration(v.GetString("CATALOG_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Mail = MailConfig{
		Enabled:     v.GetBool("MAIL_ENABLED"),
		FromAddress: v.GetString("MAIL_FROM"),
		BrandName:   v.GetString("MAIL_BRAND_NAME"),
	}

	cfg.Invoices = InvoiceConfig{
		SignedURLSecret: v.GetString("INVOICE_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("INVOICE_SIGNED_URL_TTL"), 14*24*time.Hour),
		Currency:        v.GetString("INVOICE_CURRENCY"),
	}

	cfg.Cleanup = CleanupConfig{
		Workers:    v.GetInt("CLEANUP_WORKERS"),
		MaxRetries: v.GetInt("CLEANUP_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("CLEANUP_RETRY_DELAY"), 5*time.Second),
	}

	cfg.Metrics = MetricsConfig{Enabled: v.GetBool("ENABLE_METRICS")}

	if cfg.Env == EnvProduction && cfg.JWT.Secret == defaultJWTSecret {
		return nil, errors.New("JWT_SECRET must be changed from the default value in production")
	}

	return cfg, nil
}

const defaultJWTSecret = "dev_secret"

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "fabnest")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", defaultJWTSecret)
	v.SetDefault("JWT_EXPIRATION", "168h")
	v.SetDefault("JWT_ISSUER", "fabnest-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("STORAGE_DRIVER", StorageDriverLocal)
	v.SetDefault("STORAGE_BASE_DIR", "./public")
	v.SetDefault("STORAGE_PUBLIC_URL_PREFIX", "")
	v.SetDefault("STORAGE_MAX_UPLOAD_BYTES", 100*1024*1024)
	v.SetDefault("MINIO_ENDPOINT", "localhost:9000")
	v.SetDefault("MINIO_ACCESS_KEY", "")
	v.SetDefault("MINIO_SECRET_KEY", "")
	v.SetDefault("MINIO_BUCKET", "fabnest")
	v.SetDefault("MINIO_USE_SSL", false)

	v.SetDefault("ENABLE_CATALOG_CACHE", false)
	v.SetDefault("CATALOG_CACHE_TTL", "5m")

	v.SetDefault("MAIL_ENABLED", false)
	v.SetDefault("MAIL_FROM", "noreply@fabnest3d.com")
	v.SetDefault("MAIL_BRAND_NAME", "FABNEST 3D Printing Service")

	v.SetDefault("INVOICE_SIGNED_URL_SECRET", "dev_invoice_secret")
	v.SetDefault("INVOICE_SIGNED_URL_TTL", "336h")
	v.SetDefault("INVOICE_CURRENCY", "LKR")

	v.SetDefault("CLEANUP_WORKERS", 1)
	v.SetDefault("CLEANUP_MAX_RETRIES", 3)
	v.SetDefault("CLEANUP_RETRY_DELAY", "5s")

	v.SetDefault("ENABLE_METRICS", true)
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
