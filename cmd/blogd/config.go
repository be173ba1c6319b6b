package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rbaliyan/blog/store/sqldb"
)

// Config holds the server configuration. Flags override environment variables.
type Config struct {
	Addr          string
	AppName       string
	DatabaseURL   string
	Driver        string
	MongoURI      string
	MongoDatabase string
	RedisAddr     string
	LogLevel      slog.Level
	DrainInterval time.Duration
	SyncIndexing  bool
}

const defaultSQLiteDSN = "file:blog.db?_foreign_keys=on"

// Parse reads the configuration from args and the environment.
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("blogd", flag.ContinueOnError)

	var (
		addr     = fs.String("addr", getEnv("ADDR", ":8080"), "HTTP listen address")
		appName  = fs.String("app-name", getEnv("APP_NAME", "blogApp"), "Application name used in alert headers")
		dbURL    = fs.String("database-url", getEnv("DATABASE_URL", defaultSQLiteDSN), "PostgreSQL URL or SQLite DSN")
		mongoURI = fs.String("mongo-uri", getEnv("MONGO_URI", ""), "MongoDB URI for the search index; empty uses an in-process index")
		mongoDB  = fs.String("mongo-database", getEnv("MONGO_DATABASE", "blog"), "MongoDB database")
		redis    = fs.String("redis-addr", getEnv("REDIS_ADDR", ""), "Redis address for entity events; empty disables events")
		level    = fs.String("log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
		drain    = fs.String("drain-interval", getEnv("OUTBOX_DRAIN_INTERVAL", "30s"), "Interval between outbox drains; 0 disables")
		syncIdx  = fs.Bool("sync-indexing", getEnv("SYNC_INDEXING", "") == "true", "Sync the search index before responding")
	)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := &Config{
		Addr:          *addr,
		AppName:       *appName,
		DatabaseURL:   *dbURL,
		Driver:        driverFor(*dbURL),
		MongoURI:      *mongoURI,
		MongoDatabase: *mongoDB,
		RedisAddr:     *redis,
		SyncIndexing:  *syncIdx,
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(*level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", *level, err)
	}
	d, err := time.ParseDuration(*drain)
	if err != nil || d < 0 {
		return nil, fmt.Errorf("invalid drain interval %q", *drain)
	}
	cfg.DrainInterval = d

	return cfg, nil
}

// loadEnvFile loads variables from a dotenv file without overriding the
// environment. A missing file is not an error.
func loadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// driverFor picks the SQL driver from the database URL.
func driverFor(url string) string {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return sqldb.DriverPostgres
	}
	return sqldb.DriverSQLite
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
