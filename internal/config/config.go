// ABOUTME: Environment-driven configuration for the console server and CLI.
// ABOUTME: Loads .env files with godotenv, then reads CONSOLE_* variables.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds runtime settings. CLI flags override individual fields.
type Config struct {
	Port        string
	DBPath      string // empty means the platform default
	APIURL      string // empty serves the embedded mock API
	APIKey      string
	SecretKey   string
	APITimeout  time.Duration
	Metrics     bool
	Permissions []string // allow-list applied to listApis; empty allows all
	Descriptors string   // glob of YAML descriptor files
	LogLevel    string
	LogEncoding string
	OpenAIKey   string
	OpenAIModel string
}

var loadEnvOnce sync.Once

// LoadEnvFiles loads .env from the current dir, parent dirs, or the home directory.
// Existing environment variables are never overridden.
func LoadEnvFiles() {
	loadEnvOnce.Do(func() {
		envPaths := []string{".env", "../.env", "../../.env"}
		for _, p := range envPaths {
			if err := godotenv.Load(p); err == nil {
				break
			}
		}
		if home, err := os.UserHomeDir(); err == nil {
			godotenv.Load(filepath.Join(home, ".env"))
		}
	})
}

// Load reads configuration from the environment after loading .env files.
func Load() (*Config, error) {
	LoadEnvFiles()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}

	cfg := &Config{
		Port:        get("CONSOLE_PORT", "9000"),
		DBPath:      get("CONSOLE_DB_PATH", ""),
		APIURL:      get("CONSOLE_API_URL", ""),
		APIKey:      get("CONSOLE_API_KEY", ""),
		SecretKey:   get("CONSOLE_SECRET_KEY", ""),
		Descriptors: get("CONSOLE_DESCRIPTORS", ""),
		LogLevel:    get("LOG_LEVEL", "info"),
		LogEncoding: get("LOG_ENCODING", "console"),
		OpenAIKey:   get("OPENAI_API_KEY", ""),
		OpenAIModel: get("OPENAI_MODEL", "gpt-5-mini"),
		APITimeout:  30 * time.Second,
	}

	if v := get("CONSOLE_API_TIMEOUT", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid CONSOLE_API_TIMEOUT %q: want a positive duration like 30s", v)
		}
		cfg.APITimeout = d
	}

	if v := get("CONSOLE_METRICS", ""); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid CONSOLE_METRICS %q: %w", v, err)
		}
		cfg.Metrics = b
	}

	for _, p := range strings.Split(get("CONSOLE_PERMISSIONS", ""), ",") {
		if p = strings.TrimSpace(p); p != "" {
			cfg.Permissions = append(cfg.Permissions, p)
		}
	}

	if (cfg.APIKey == "") != (cfg.SecretKey == "") {
		return nil, fmt.Errorf("CONSOLE_API_KEY and CONSOLE_SECRET_KEY must be set together")
	}

	return cfg, nil
}
