// Package config loads markpilot configuration from the environment.
package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration values.
type Config struct {
	// Remote services
	APIURL    string
	UploadURL string
	SocketURL string

	// Local state
	StateDir string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		APIURL:    getEnv("MARKPILOT_API_URL", ""),
		UploadURL: getEnv("MARKPILOT_UPLOAD_URL", ""),
		SocketURL: getEnv("MARKPILOT_SOCKET_URL", ""),

		StateDir: getEnv("MARKPILOT_STATE_DIR", defaultStateDir()),

		LogFile:  getEnv("MARKPILOT_LOG_FILE", filepath.Join(os.TempDir(), "markpilot.log")),
		LogLevel: parseLogLevel(getEnv("MARKPILOT_LOG_LEVEL", "INFO")),
	}
}

// Validate checks the required service endpoints. The API and upload URLs are
// fatal when absent; a missing socket URL only disables realtime features and
// is surfaced through RealtimeEnabled instead.
func (c Config) Validate() error {
	if c.APIURL == "" {
		return errors.New("MARKPILOT_API_URL is not set")
	}
	if c.UploadURL == "" {
		return errors.New("MARKPILOT_UPLOAD_URL is not set")
	}
	return nil
}

// RealtimeEnabled reports whether a socket endpoint is configured.
func (c Config) RealtimeEnabled() bool {
	return c.SocketURL != ""
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".markpilot"
	}
	return filepath.Join(home, ".markpilot")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
