package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/gopherauth/internal/logger"
)

const (
	defaultListenAddr    = "localhost:8000"
	defaultLoggingLevel  = logger.LevelInfo
	defaultEnvironment   = logger.EnvProduction
	defaultAccessTTL     = 15 * time.Minute
	defaultRefreshTTL    = 7 * 24 * time.Hour
	defaultStorageBucket = "avatars"
)

// Options are set in order: defaults, '.env' file, environment, flags
// Every next source overrides the previous one
type Config struct {
	// Default logging level
	LogLevel string `env:"LOG_LEVEL"`

	// Address on which the gopherauth service will be run
	ListenAddr string `env:"RUN_ADDRESS"`

	// Database to connect to
	DatabaseDSN string `env:"DATABASE_URI"`

	// Secret key to sign tokens with
	SecretKey string `env:"SECRET_KEY"`

	// Environment. Logs are human readable and cookies are not secure-only in development
	Environment string `env:"ENVIRONMENT"`

	AccessTTL     time.Duration `env:"ACCESS_TOKEN_TTL"`
	RefreshTTL    time.Duration `env:"REFRESH_TOKEN_TTL"`
	RotateRefresh bool          `env:"ROTATE_REFRESH_TOKEN"`

	// Max number of passwords hashed at the same time. Number of CPUs if zero
	HashWorkers int `env:"HASH_WORKERS"`
	BcryptCost  int `env:"BCRYPT_COST"`

	// Object storage for profile photos. Photos are disabled if url is empty
	StorageURL        string `env:"SUPABASE_URL"`
	StorageServiceKey string `env:"SUPABASE_SERVICE_KEY"`
	StorageBucket     string `env:"SUPABASE_BUCKET"`
}

func NewConfig() *Config {
	return &Config{
		LogLevel:      defaultLoggingLevel,
		ListenAddr:    defaultListenAddr,
		Environment:   defaultEnvironment,
		AccessTTL:     defaultAccessTTL,
		RefreshTTL:    defaultRefreshTTL,
		StorageBucket: defaultStorageBucket,
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == logger.EnvDevelopment || c.Environment == "dev"
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
		return c.loadMap(envMap)
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

// Load variables from environment in 'key=value' form, like os.Environ() returns
func (c *Config) LoadEnv(environ []string) error {
	return c.loadMap(env.ToMap(environ))
}

// Empty values do not override already set options
func (c *Config) loadMap(envMap map[string]string) error {
	if err := env.ParseWithOptions(c, env.Options{Environment: envMap}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("gopherauth", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key to sign tokens")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (development, production)")
	fs.DurationVar(&c.AccessTTL, "access-ttl", c.AccessTTL, "Access token lifetime")
	fs.DurationVar(&c.RefreshTTL, "refresh-ttl", c.RefreshTTL, "Refresh token and session lifetime")
	fs.BoolVar(&c.RotateRefresh, "rotate-refresh", c.RotateRefresh, "Issue new refresh token on every refresh")
	fs.IntVar(&c.HashWorkers, "hash-workers", c.HashWorkers, "Max passwords hashed concurrently (0 means number of CPUs)")
	fs.IntVar(&c.BcryptCost, "bcrypt-cost", c.BcryptCost, "Bcrypt cost (0 means library default)")
	fs.StringVar(&c.StorageURL, "storage-url", c.StorageURL, "Photo storage url")
	fs.StringVar(&c.StorageServiceKey, "storage-key", c.StorageServiceKey, "Photo storage service key")
	fs.StringVar(&c.StorageBucket, "storage-bucket", c.StorageBucket, "Photo storage bucket")

	return fs.Parse(args)
}
