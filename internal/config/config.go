package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Supported values for DATABASE_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds application configuration values loaded from environment variables.
type Config struct {
	HTTPPort           string
	DatabaseDriver     string
	DatabaseURL        string
	JWTSecret          string
	TokenExpiration    time.Duration
	AskBackendURL      string
	AskTimeout         time.Duration
	AskHistoryLimit    int
	CORSAllowedOrigins []string
}

// LoadConfig loads configuration from environment variables.
// It looks for a .env file first, then checks actual environment variables.
func LoadConfig(log *zap.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file loaded, using environment only", zap.Error(err))
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("DATABASE_DRIVER", DriverPostgres)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_SECRET", "default-super-secret-key") // CHANGE THIS IN PRODUCTION!
	v.SetDefault("JWT_EXPIRATION_HOURS", 24)
	v.SetDefault("ASK_BACKEND_URL", "http://localhost:8000")
	v.SetDefault("ASK_TIMEOUT", "60s")
	v.SetDefault("ASK_HISTORY_LIMIT", 10)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:8501")

	cfg := &Config{
		HTTPPort:        v.GetString("HTTP_PORT"),
		DatabaseDriver:  strings.ToLower(strings.TrimSpace(v.GetString("DATABASE_DRIVER"))),
		DatabaseURL:     v.GetString("DATABASE_URL"),
		JWTSecret:       v.GetString("JWT_SECRET"),
		TokenExpiration: time.Hour * time.Duration(v.GetInt("JWT_EXPIRATION_HOURS")),
		AskBackendURL:   v.GetString("ASK_BACKEND_URL"),
		AskTimeout:      v.GetDuration("ASK_TIMEOUT"),
		AskHistoryLimit: v.GetInt("ASK_HISTORY_LIMIT"),
	}
	for _, origin := range strings.Split(v.GetString("CORS_ALLOWED_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, origin)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	log.Info("loaded config",
		zap.String("port", cfg.HTTPPort),
		zap.String("db_driver", cfg.DatabaseDriver),
		zap.Duration("token_expiration", cfg.TokenExpiration),
		zap.String("ask_backend_url", cfg.AskBackendURL),
		zap.Duration("ask_timeout", cfg.AskTimeout),
		zap.Int("ask_history_limit", cfg.AskHistoryLimit),
	)
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL environment variable is not set"))
	}
	if c.DatabaseDriver != DriverPostgres && c.DatabaseDriver != DriverSQLite {
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.DatabaseDriver))
	}
	if c.TokenExpiration <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRATION_HOURS must be positive"))
	}
	if c.AskTimeout <= 0 {
		errs = append(errs, errors.New("ASK_TIMEOUT must be a positive duration"))
	}
	if c.AskHistoryLimit < 0 {
		errs = append(errs, errors.New("ASK_HISTORY_LIMIT must not be negative"))
	}
	return errors.Join(errs...)
}
