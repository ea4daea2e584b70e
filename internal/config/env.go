package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads .env files into the process environment. Missing files
// are not an error.
func LoadDotEnv(paths ...string) {
	_ = godotenv.Load(paths...)
}

// ApplyEnv overrides file values with SCHEDITOR_* environment variables.
// Empty or malformed variables leave the file value in place.
func (c *Config) ApplyEnv() {
	c.Listen = getenvDefault("SCHEDITOR_LISTEN", c.Listen)
	c.Timezone = getenvDefault("SCHEDITOR_TIMEZONE", c.Timezone)
	c.LogLevel = getenvDefault("SCHEDITOR_LOG_LEVEL", c.LogLevel)
	c.SchemaPath = getenvDefault("SCHEDITOR_SCHEMA", c.SchemaPath)
	c.DataPath = getenvDefault("SCHEDITOR_DATA", c.DataPath)
	c.Remote.BaseURL = getenvDefault("SCHEDITOR_REMOTE_URL", c.Remote.BaseURL)
	c.Remote.Token = getenvDefault("SCHEDITOR_REMOTE_TOKEN", c.Remote.Token)
	c.Remote.Timeout = getenvDuration("SCHEDITOR_REMOTE_TIMEOUT", c.Remote.Timeout)
	c.DefaultDuration = getenvDuration("SCHEDITOR_DEFAULT_DURATION", c.DefaultDuration)

	user := getenvDefault("SCHEDITOR_BASIC_AUTH_USER", "")
	pass := getenvDefault("SCHEDITOR_BASIC_AUTH_PASSWORD", "")
	if user != "" && pass != "" {
		c.BasicAuth = &BasicAuthConfig{Username: user, Password: pass}
	}

	c.Normalize()
}

func getenvDefault(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
