package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/luis-arellano/simple-google-docs/pkg/logger"
)

// Config collects everything read from the environment. Every field has a
// usable default so the server and the terminal client run with no .env at
// all.
type Config struct {
	ListenAddr    string // server bind address
	AllowedOrigin string // CORS origin, "*" allows everything
	ServerURL     string // websocket URL the client dials
	StoreFile     string // path of the JSON document store
	GistAPIBase   string // GitHub API base, overridable for tests

	// Postgres pieces for the optional database-backed document store.
	// The store is only constructed when DBHost is set.
	DBUser string
	DBPass string
	DBHost string
	DBPort string
	DBName string
}

// Load reads .env if present, then the process environment.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		logger.Sugar.Info("No .env file found, using environment variables from OS")
	}

	return Config{
		ListenAddr:    getenv("LISTEN_ADDR", ":8080"),
		AllowedOrigin: getenv("ALLOWED_ORIGIN", "*"),
		ServerURL:     getenv("SERVER_URL", "ws://localhost:8080/ws"),
		StoreFile:     getenv("STORE_FILE", defaultStoreFile()),
		GistAPIBase:   getenv("GIST_API_BASE", "https://api.github.com"),
		DBUser:        getenv("user", ""),
		DBPass:        getenv("password", ""),
		DBHost:        getenv("host", ""),
		DBPort:        getenv("port", "5432"),
		DBName:        getenv("dbname", "postgres"),
	}
}

// PostgresDSN assembles the connection string for the database-backed
// document store.
func (c Config) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=require",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName)
}

func defaultStoreFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "documents.json"
	}
	return filepath.Join(home, ".collab-documents.json")
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
