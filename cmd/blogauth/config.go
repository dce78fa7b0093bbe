package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/blogauth/internal/logger"
)

const (
	defaultListenAddr    = "localhost:8000"
	defaultLoggingLevel  = logger.LevelInfo
	defaultEnvironment   = logger.EnvProduction
	defaultAccessTTL     = 30 * time.Minute
	defaultRefreshTTL    = 7 * 24 * time.Hour
	defaultAdminUsername = "admin"
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Hex encoded key JWT tokens are signed with, at least 32 bytes
	SecretKey string

	// Environment
	Environment string

	// Token lifetimes
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Redis to keep exchange codes in. Codes are kept in memory if empty
	RedisURL string

	// Key the upstream OAuth server sends in X-API-KEY header
	InternalAPIKey string

	// Admin account created on startup if email and password are set
	AdminUsername string
	AdminEmail    string
	AdminPassword string

	// Login and code exchange requests per minute per client IP, 0 disables limiting
	LoginRateLimit int
}

func NewConfig() *Config {
	return &Config{
		LogLevel:      defaultLoggingLevel,
		ListenAddr:    defaultListenAddr,
		Environment:   defaultEnvironment,
		AccessTTL:     defaultAccessTTL,
		RefreshTTL:    defaultRefreshTTL,
		AdminUsername: defaultAdminUsername,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}
	setInt := func(o *int) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			n, err := strconv.Atoi(value)
			if err != nil {
				return err
			}
			*o = n
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":       setString(&c.ListenAddr),
		"DATABASE_URI":      setString(&c.DatabaseDSN),
		"SECRET_KEY":        setString(&c.SecretKey),
		"LOG_LEVEL":         setString(&c.LogLevel),
		"ENVIRONMENT":       setString(&c.Environment),
		"ACCESS_TOKEN_TTL":  setDuration(&c.AccessTTL),
		"REFRESH_TOKEN_TTL": setDuration(&c.RefreshTTL),
		"REDIS_URL":         setString(&c.RedisURL),
		"INTERNAL_API_KEY":  setString(&c.InternalAPIKey),
		"ADMIN_USERNAME":    setString(&c.AdminUsername),
		"ADMIN_EMAIL":       setString(&c.AdminEmail),
		"ADMIN_PASSWORD":    setString(&c.AdminPassword),
		"LOGIN_RATE_LIMIT":  setInt(&c.LoginRateLimit),
	}

	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			return fmt.Errorf("invalid %s value. Err: %w", key, err)
		}
	}

	return nil
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("blogauth", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Hex encoded secret key, see 'gensecret'")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.DurationVar(&c.AccessTTL, "access-ttl", c.AccessTTL, "Access token lifetime")
	fs.DurationVar(&c.RefreshTTL, "refresh-ttl", c.RefreshTTL, "Refresh token lifetime")
	fs.StringVarP(&c.RedisURL, "redis", "r", c.RedisURL, "Redis url to keep exchange codes in")
	fs.StringVar(&c.InternalAPIKey, "api-key", c.InternalAPIKey, "Key of internal endpoints")
	fs.IntVar(&c.LoginRateLimit, "login-rate-limit", c.LoginRateLimit, "Login requests per minute per IP (0 is unlimited)")

	return fs.Parse(args)
}
