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

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	App        AppConfig
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Experiment ExperimentConfig
	Metrics    MetricsConfig
}

type AppConfig struct {
	Name        string
	Version     string
	Environment string
	LogLevel    string
}

type ServerConfig struct {
	Port             string
	RequestTimeout   time.Duration
	CORSAllowOrigins []string
	ShutdownTimeout  time.Duration
}

type DatabaseConfig struct {
	Driver       string
	Host         string
	Port         string
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Enabled         bool
	RedisHost       string
	RedisPort       string
	RedisPassword   string
	RedisDB         int
	VariantCacheTTL time.Duration
}

type ExperimentConfig struct {
	DefaultUserType string
}

type MetricsConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	requestTimeout, err := getDuration("REQUEST_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	shutdownTimeout, err := getDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	maxOpen, err := getInt("DB_MAX_OPEN_CONNS", 25)
	if err != nil {
		return nil, err
	}

	maxIdle, err := getInt("DB_MAX_IDLE_CONNS", 5)
	if err != nil {
		return nil, err
	}

	autoMigrate, err := getBool("DB_AUTO_MIGRATE", true)
	if err != nil {
		return nil, err
	}

	redisEnabled, err := getBool("REDIS_ENABLED", false)
	if err != nil {
		return nil, err
	}

	redisDB, err := getInt("REDIS_DB", 0)
	if err != nil {
		return nil, errors.New("invalid redis database")
	}

	cacheTTL, err := getDuration("VARIANT_CACHE_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	metricsEnabled, err := getBool("METRICS_ENABLED", true)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "abExperiments"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
			Environment: getEnv("APP_ENV", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Server: ServerConfig{
			Port:             getEnv("PORT", "8080"),
			RequestTimeout:   requestTimeout,
			CORSAllowOrigins: splitList(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000")),
			ShutdownTimeout:  shutdownTimeout,
		},
		Database: DatabaseConfig{
			Driver:       strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Name:         getEnv("DB_NAME", "ab_experiments"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: maxOpen,
			MaxIdleConns: maxIdle,
			AutoMigrate:  autoMigrate,
		},
		Redis: RedisConfig{
			Enabled:         redisEnabled,
			RedisHost:       getEnv("REDIS_HOST", "localhost"),
			RedisPort:       getEnv("REDIS_PORT", "6379"),
			RedisPassword:   getEnv("REDIS_PASSWORD", ""),
			RedisDB:         redisDB,
			VariantCacheTTL: cacheTTL,
		},
		Experiment: ExperimentConfig{
			DefaultUserType: getEnv("DEFAULT_USER_TYPE", "contractor"),
		},
		Metrics: MetricsConfig{
			Enabled: metricsEnabled,
		},
	}

	switch cfg.Database.Driver {
	case StoreDriverPostgres:
		if cfg.Database.Password == "" {
			return nil, errors.New("missing database password")
		}
	case StoreDriverMemory:
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Database.Driver)
	}

	return cfg, nil
}

// DSN builds the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return defaultVal
}

func getInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}

	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return n, nil
}

func getBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}

	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}

	return b, nil
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}

	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return d, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
