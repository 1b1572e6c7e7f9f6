package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"github.com/segyhp/amortization-engine/internal/amortization"
	"github.com/spf13/viper"
)

// Config holds all configuration for our application
type Config struct {
	Server    ServerConfig    `mapstructure:",squash"`
	Database  DatabaseConfig  `mapstructure:",squash"`
	Redis     RedisConfig     `mapstructure:",squash"`
	Scheduler SchedulerConfig `mapstructure:",squash"`
	Logging   LoggingConfig   `mapstructure:",squash"`
	Engine    EngineConfig    `mapstructure:",squash"`
	Health    HealthConfig    `mapstructure:",squash"`
	Metrics   MetricsConfig   `mapstructure:",squash"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"SERVER_PORT"`
	Host         string        `mapstructure:"SERVER_HOST"`
	Env          string        `mapstructure:"ENV"`
	ReadTimeout  time.Duration `mapstructure:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"SERVER_WRITE_TIMEOUT"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"DATABASE_URL"`
	Host            string        `mapstructure:"DATABASE_HOST"`
	Port            string        `mapstructure:"DATABASE_PORT"`
	Name            string        `mapstructure:"DATABASE_NAME"`
	User            string        `mapstructure:"DATABASE_USER"`
	Password        string        `mapstructure:"DATABASE_PASSWORD"`
	SSLMode         string        `mapstructure:"DATABASE_SSLMODE"`
	MaxOpenConns    int           `mapstructure:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `mapstructure:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `mapstructure:"DATABASE_CONN_MAX_LIFETIME"`
	MigrationsPath  string        `mapstructure:"MIGRATIONS_PATH"`
}

type RedisConfig struct {
	URL      string        `mapstructure:"REDIS_URL"`
	Host     string        `mapstructure:"REDIS_HOST"`
	Port     string        `mapstructure:"REDIS_PORT"`
	Password string        `mapstructure:"REDIS_PASSWORD"`
	DB       int           `mapstructure:"REDIS_DB"`
	CacheTTL time.Duration `mapstructure:"SCHEDULE_CACHE_TTL"`
}

type SchedulerConfig struct {
	OverdueSweepCron string `mapstructure:"OVERDUE_SWEEP_CRON"`
	Timezone         string `mapstructure:"SCHEDULER_TIMEZONE"`
	MetricsPort      string `mapstructure:"SCHEDULER_METRICS_PORT"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"LOG_LEVEL"`
	Format string `mapstructure:"LOG_FORMAT"`
}

// EngineConfig carries the amortization policy knobs
type EngineConfig struct {
	SettlementMode          string        `mapstructure:"SETTLEMENT_MODE"`
	RefinanceNumbering      string        `mapstructure:"REFINANCE_NUMBERING"`
	MaxReamortizationMonths int           `mapstructure:"MAX_REAMORTIZATION_MONTHS"`
	LoanLockTTL             time.Duration `mapstructure:"LOAN_LOCK_TTL"`
}

type HealthConfig struct {
	Timeout string `mapstructure:"HEALTH_CHECK_TIMEOUT"`
}

type MetricsConfig struct {
	Path string `mapstructure:"METRICS_PATH"`
}

// Load reads configuration from environment variables and files
func Load() (*Config, error) {
	// A plain .env file is exported into the process environment first;
	// variables that are already set win.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./deployments")

	// Don't fail if .env file doesn't exist
	_ = v.ReadInConfig()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	defaults := map[string]interface{}{
		"SERVER_PORT":                "8080",
		"SERVER_HOST":                "0.0.0.0",
		"SERVER_READ_TIMEOUT":        "15s",
		"SERVER_WRITE_TIMEOUT":       "15s",
		"ENV":                        "development",
		"DATABASE_URL":               "",
		"DATABASE_HOST":              "localhost",
		"DATABASE_PORT":              "5432",
		"DATABASE_NAME":              "amortization_engine",
		"DATABASE_USER":              "postgres",
		"DATABASE_PASSWORD":          "",
		"DATABASE_SSLMODE":           "disable",
		"DATABASE_MAX_OPEN_CONNS":    25,
		"DATABASE_MAX_IDLE_CONNS":    5,
		"DATABASE_CONN_MAX_LIFETIME": "5m",
		"MIGRATIONS_PATH":            "file://migrations",
		"REDIS_URL":                  "",
		"REDIS_HOST":                 "localhost",
		"REDIS_PORT":                 "6379",
		"REDIS_PASSWORD":             "",
		"REDIS_DB":                   0,
		"SCHEDULE_CACHE_TTL":         "10m",
		"OVERDUE_SWEEP_CRON":         "0 0 1 * * *",
		"SCHEDULER_TIMEZONE":         "UTC",
		"SCHEDULER_METRICS_PORT":     "9091",
		"LOG_LEVEL":                  "info",
		"LOG_FORMAT":                 "json",
		"SETTLEMENT_MODE":            string(amortization.SettlementRelaxed),
		"REFINANCE_NUMBERING":        string(amortization.NumberingContinue),
		"MAX_REAMORTIZATION_MONTHS":  amortization.DefaultMaxReamortizationMonths,
		"LOAN_LOCK_TTL":              "10s",
		"HEALTH_CHECK_TIMEOUT":       "5s",
		"METRICS_PATH":               "/metrics",
	}
	// SetDefault also makes the keys visible to Unmarshal when only AutomaticEnv is used
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}

	if c.Database.URL == "" && c.Database.Host == "" {
		return fmt.Errorf("DATABASE_URL or DATABASE_HOST is required")
	}

	switch amortization.SettlementMode(c.Engine.SettlementMode) {
	case amortization.SettlementRelaxed, amortization.SettlementStrict:
	default:
		return fmt.Errorf("SETTLEMENT_MODE must be relaxed or strict, got %q", c.Engine.SettlementMode)
	}

	switch amortization.NumberingPolicy(c.Engine.RefinanceNumbering) {
	case amortization.NumberingContinue, amortization.NumberingRestart:
	default:
		return fmt.Errorf("REFINANCE_NUMBERING must be continue or restart, got %q", c.Engine.RefinanceNumbering)
	}

	if c.Engine.MaxReamortizationMonths <= 0 {
		return fmt.Errorf("MAX_REAMORTIZATION_MONTHS must be greater than 0")
	}

	if c.Engine.LoanLockTTL <= 0 {
		return fmt.Errorf("LOAN_LOCK_TTL must be a positive duration")
	}

	if c.Scheduler.OverdueSweepCron == "" {
		return fmt.Errorf("OVERDUE_SWEEP_CRON is required")
	}

	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("SCHEDULER_TIMEZONE must be a valid location: %w", err)
	}

	if _, err := time.ParseDuration(c.Health.Timeout); err != nil {
		return fmt.Errorf("HEALTH_CHECK_TIMEOUT must be a valid duration: %w", err)
	}

	if c.Metrics.Path == "" || c.Metrics.Path[0] != '/' {
		return fmt.Errorf("METRICS_PATH must start with /")
	}

	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development" || c.Server.Env == "dev"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production" || c.Server.Env == "prod"
}

// DSN returns the postgres connection string, preferring DATABASE_URL
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + d.Port,
		Path:     d.Name,
		RawQuery: "sslmode=" + d.SSLMode,
	}
	return u.String()
}

// Addr returns the redis host:port
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

// EngineOptions converts the engine settings into amortization options
func (c *Config) EngineOptions() amortization.Options {
	return amortization.Options{
		Settlement:              amortization.SettlementMode(c.Engine.SettlementMode),
		Numbering:               amortization.NumberingPolicy(c.Engine.RefinanceNumbering),
		MaxReamortizationMonths: c.Engine.MaxReamortizationMonths,
	}
}

// GetHealthTimeout returns the health check timeout as duration
func (c *Config) GetHealthTimeout() time.Duration {
	timeout, _ := time.ParseDuration(c.Health.Timeout)
	return timeout
}

// GetSchedulerLocation returns the timezone the scheduler runs in
func (c *Config) GetSchedulerLocation() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
