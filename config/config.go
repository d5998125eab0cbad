/*
Package config loads runtime configuration from the environment.

PURPOSE:
  One place that knows every knob the server reads: listen address, database
  path, upload directory and limits, static API keys, CORS origins, and log
  level. A .env file in the working directory is loaded first if present, so
  local development needs no exported variables.

CONVENTIONS:
  - Every variable has a sane default; the server boots with none set.
  - Comma-separated lists (REQPATH_STATIC_API_KEYS, REQPATH_CORS_ORIGINS,
    REQPATH_ALLOWED_EXTENSIONS) are split and trimmed here, never downstream.
*/
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config carries every setting the server reads at boot.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// DBPath is the SQLite database file. ":memory:" works for throwaways.
	DBPath string

	// UploadDir is the root directory for stored attachment files.
	UploadDir string

	// MaxUploadBytes caps a single attachment upload.
	MaxUploadBytes int64

	// AllowedExtensions is the attachment extension allowlist, lowercase
	// with leading dots, e.g. [".pdf", ".png"].
	AllowedExtensions []string

	// StaticAPIKeys authenticate as the built-in system admin. Intended for
	// service-to-service callers and bootstrap.
	StaticAPIKeys []string

	// CORSOrigins is the allowed origin list for browser clients.
	CORSOrigins []string

	// LogLevel is a logrus level name: debug, info, warn, error.
	LogLevel string
}

var defaultExtensions = []string{
	".pdf", ".png", ".jpg", ".jpeg", ".gif",
	".doc", ".docx", ".xls", ".xlsx", ".csv", ".txt",
}

// Load reads configuration from the environment, consulting a .env file
// first when one exists.
func Load() Config {
	// Missing .env is the normal production case, not an error.
	_ = godotenv.Load()

	return Config{
		Addr:              envStr("REQPATH_ADDR", ":8080"),
		DBPath:            envStr("REQPATH_DB_PATH", "./data/reqpath.db"),
		UploadDir:         envStr("REQPATH_UPLOAD_DIR", "./uploads"),
		MaxUploadBytes:    envInt64("REQPATH_MAX_UPLOAD_MB", 10) * 1024 * 1024,
		AllowedExtensions: envList("REQPATH_ALLOWED_EXTENSIONS", defaultExtensions),
		StaticAPIKeys:     envList("REQPATH_STATIC_API_KEYS", nil),
		CORSOrigins:       envList("REQPATH_CORS_ORIGINS", []string{"*"}),
		LogLevel:          envStr("REQPATH_LOG_LEVEL", "info"),
	}
}

// NewLogger builds the process logger at the configured level. Unknown
// level names fall back to info.
func NewLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.JSONFormatter{})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
