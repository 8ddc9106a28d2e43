package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig      `yaml:"app"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Logger   LoggerConfig   `yaml:"logger"`
	Auth     AuthConfig     `yaml:"auth"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	SLA      SLAConfig      `yaml:"sla"`
	Presence PresenceConfig `yaml:"presence"`
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string `yaml:"name"`
	Env                   string `yaml:"env"`
	Host                  string `yaml:"host"`
	Port                  string `yaml:"port"`
	Version               string `yaml:"version"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	MaxConns       int32  `yaml:"max_conns"`
	MinConns       int32  `yaml:"min_conns"`
	RunMigrations  bool   `yaml:"run_migrations"`
	MigrationsDir  string `yaml:"migrations_dir"`
	ConnMaxIdleSec int32  `yaml:"conn_max_idle_seconds"`
	ConnMaxLifeSec int32  `yaml:"conn_max_life_seconds"`
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string `yaml:"level"`
}

// AuthConfig defines authentication parameters.
// The bootstrap admin is created at startup when its email is set and the tenant has no staff.
type AuthConfig struct {
	JWTSecret              string `yaml:"jwt_secret"`
	AccessTokenTTLMinutes  int    `yaml:"access_token_ttl_minutes"`
	BcryptCost             int    `yaml:"bcrypt_cost"`
	BootstrapAdminEmail    string `yaml:"bootstrap_admin_email"`
	BootstrapAdminPassword string `yaml:"bootstrap_admin_password"`
	BootstrapTenant        string `yaml:"bootstrap_tenant"`
}

// BootstrapEnabled reports whether a bootstrap admin is configured.
func (a AuthConfig) BootstrapEnabled() bool {
	return a.BootstrapAdminEmail != ""
}

// KafkaConfig configures the lifecycle event sink.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// SLAConfig tunes the violation scanner and its follow-up policy.
type SLAConfig struct {
	ScanInterval   time.Duration `yaml:"scan_interval"`
	RiskWindow     time.Duration `yaml:"risk_window"`
	PageSize       int           `yaml:"page_size"`
	MaxPages       int           `yaml:"max_pages"`
	AutoEscalate   bool          `yaml:"auto_escalate"`
	AutoAssign     bool          `yaml:"auto_assign"`
	LeaseTTL       time.Duration `yaml:"lease_ttl"`
	PolicySeedFile string        `yaml:"policy_seed_file"`
}

// PresenceConfig controls typing indicator retention.
type PresenceConfig struct {
	TypingTTL time.Duration `yaml:"typing_ttl"`
}

// Load reads configuration from an optional YAML file and environment variables.
// Environment variables take precedence over the file, which takes precedence over defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	path := getEnv("CONFIG_FILE", "config.yaml")
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:                  "ticket-lifecycle",
			Env:                   "development",
			Host:                  "0.0.0.0",
			Port:                  "8080",
			Version:               "dev",
			RequestTimeoutSeconds: 30,
		},
		Postgres: PostgresConfig{
			MaxConns:       10,
			MinConns:       2,
			RunMigrations:  true,
			MigrationsDir:  "migrations",
			ConnMaxIdleSec: 30,
			ConnMaxLifeSec: 300,
		},
		Redis: RedisConfig{
			Addr: "127.0.0.1:6379",
		},
		Logger: LoggerConfig{
			Level: "info",
		},
		Auth: AuthConfig{
			JWTSecret:             "dev-secret",
			AccessTokenTTLMinutes: 60,
			BcryptCost:            12,
			BootstrapTenant:       "default",
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "ticket-lifecycle-events",
		},
		SLA: SLAConfig{
			ScanInterval: time.Minute,
			RiskWindow:   2 * time.Hour,
			PageSize:     200,
			MaxPages:     50,
			LeaseTTL:     30 * time.Second,
		},
		Presence: PresenceConfig{
			TypingTTL: 10 * time.Second,
		},
	}
}

func applyEnv(cfg *Config) error {
	cfg.App.Name = getEnv("APP_NAME", cfg.App.Name)
	cfg.App.Env = getEnv("APP_ENV", cfg.App.Env)
	cfg.App.Host = getEnv("APP_HOST", cfg.App.Host)
	cfg.App.Port = getEnv("APP_PORT", cfg.App.Port)
	cfg.App.Version = getEnv("APP_VERSION", cfg.App.Version)
	cfg.App.RequestTimeoutSeconds = getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", cfg.App.RequestTimeoutSeconds)

	cfg.Postgres.DSN = getEnv("POSTGRES_DSN", cfg.Postgres.DSN)
	cfg.Postgres.MaxConns = int32(getEnvAsInt("POSTGRES_MAX_CONNS", int(cfg.Postgres.MaxConns)))
	cfg.Postgres.MinConns = int32(getEnvAsInt("POSTGRES_MIN_CONNS", int(cfg.Postgres.MinConns)))
	cfg.Postgres.RunMigrations = getEnvAsBool("POSTGRES_RUN_MIGRATIONS", cfg.Postgres.RunMigrations)
	cfg.Postgres.MigrationsDir = getEnv("POSTGRES_MIGRATIONS_DIR", cfg.Postgres.MigrationsDir)
	cfg.Postgres.ConnMaxIdleSec = int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", int(cfg.Postgres.ConnMaxIdleSec)))
	cfg.Postgres.ConnMaxLifeSec = int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", int(cfg.Postgres.ConnMaxLifeSec)))

	if raw := os.Getenv("REDIS_DB"); raw != "" {
		db, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.Redis.DB = db
	}
	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)

	cfg.Logger.Level = getEnv("LOG_LEVEL", cfg.Logger.Level)

	cfg.Auth.JWTSecret = getEnv("AUTH_JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.AccessTokenTTLMinutes = getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", cfg.Auth.AccessTokenTTLMinutes)
	cfg.Auth.BcryptCost = getEnvAsInt("AUTH_BCRYPT_COST", cfg.Auth.BcryptCost)
	cfg.Auth.BootstrapAdminEmail = getEnv("AUTH_BOOTSTRAP_ADMIN_EMAIL", cfg.Auth.BootstrapAdminEmail)
	cfg.Auth.BootstrapAdminPassword = getEnv("AUTH_BOOTSTRAP_ADMIN_PASSWORD", cfg.Auth.BootstrapAdminPassword)
	cfg.Auth.BootstrapTenant = getEnv("AUTH_BOOTSTRAP_TENANT", cfg.Auth.BootstrapTenant)

	cfg.Kafka.Enabled = getEnvAsBool("KAFKA_ENABLED", cfg.Kafka.Enabled)
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	cfg.Kafka.Topic = getEnv("KAFKA_TOPIC", cfg.Kafka.Topic)

	cfg.SLA.ScanInterval = getEnvAsDuration("SLA_SCAN_INTERVAL", cfg.SLA.ScanInterval)
	cfg.SLA.RiskWindow = getEnvAsDuration("SLA_RISK_WINDOW", cfg.SLA.RiskWindow)
	cfg.SLA.PageSize = getEnvAsInt("SLA_SCAN_PAGE_SIZE", cfg.SLA.PageSize)
	cfg.SLA.MaxPages = getEnvAsInt("SLA_SCAN_MAX_PAGES", cfg.SLA.MaxPages)
	cfg.SLA.AutoEscalate = getEnvAsBool("SLA_AUTO_ESCALATE", cfg.SLA.AutoEscalate)
	cfg.SLA.AutoAssign = getEnvAsBool("SLA_AUTO_ASSIGN", cfg.SLA.AutoAssign)
	cfg.SLA.LeaseTTL = getEnvAsDuration("SLA_SCAN_LEASE_TTL", cfg.SLA.LeaseTTL)
	cfg.SLA.PolicySeedFile = getEnv("SLA_POLICY_SEED_FILE", cfg.SLA.PolicySeedFile)

	cfg.Presence.TypingTTL = getEnvAsDuration("PRESENCE_TYPING_TTL", cfg.Presence.TypingTTL)
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
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
