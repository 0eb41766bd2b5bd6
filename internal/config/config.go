// Package config loads the storefront configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/Sternrassler/storefront-client/pkg/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrMissingAPIURL is returned when API_URL is not set. It is fatal at startup.
var ErrMissingAPIURL = errors.New("API_URL is required")

type Config struct {
	APIURL      string        `mapstructure:"API_URL"`
	PageSize    int           `mapstructure:"PAGE_SIZE"`
	RedisURL    string        `mapstructure:"REDIS_URL"`
	Port        string        `mapstructure:"PORT"`
	LogLevel    string        `mapstructure:"LOG_LEVEL"`
	LogPretty   bool          `mapstructure:"LOG_PRETTY"`
	HTTPTimeout time.Duration `mapstructure:"HTTP_TIMEOUT"`
	UserAgent   string        `mapstructure:"USER_AGENT"`

	// --- Session ---
	SessionName string `mapstructure:"SESSION_NAME"`
	APIEmail    string `mapstructure:"API_EMAIL"`
	APIPassword string `mapstructure:"API_PASSWORD"`

	// --- Checkout ---
	WhatsAppPhone string `mapstructure:"WHATSAPP_PHONE"`
}

var keys = []string{
	"API_URL", "PAGE_SIZE", "REDIS_URL", "PORT",
	"LOG_LEVEL", "LOG_PRETTY", "HTTP_TIMEOUT", "USER_AGENT",
	"SESSION_NAME", "API_EMAIL", "API_PASSWORD",
	"WHATSAPP_PHONE",
}

// String implements fmt.Stringer. Secrets are masked.
func (c *Config) String() string {
	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("  APIURL: %s\n", c.APIURL))
	sb.WriteString(fmt.Sprintf("  PageSize: %d\n", c.PageSize))
	sb.WriteString(fmt.Sprintf("  RedisURL: %s\n", maskURL(c.RedisURL)))
	sb.WriteString(fmt.Sprintf("  Port: %s\n", c.Port))
	sb.WriteString(fmt.Sprintf("  LogLevel: %s\n", c.LogLevel))
	sb.WriteString(fmt.Sprintf("  LogPretty: %v\n", c.LogPretty))
	sb.WriteString(fmt.Sprintf("  HTTPTimeout: %s\n", c.HTTPTimeout))
	sb.WriteString(fmt.Sprintf("  UserAgent: %s\n", c.UserAgent))
	sb.WriteString(fmt.Sprintf("  SessionName: %s\n", c.SessionName))
	sb.WriteString(fmt.Sprintf("  APIEmail: %s\n", c.APIEmail))

	if c.APIPassword != "" {
		sb.WriteString("  APIPassword: ********\n")
	} else {
		sb.WriteString("  APIPassword: (empty)\n")
	}

	sb.WriteString(fmt.Sprintf("  WhatsAppPhone: %s\n", c.WhatsAppPhone))
	return sb.String()
}

// maskURL hides the password of a redis:// URL.
func maskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "********")
	}
	return u.String()
}

// LoadFromEnv loads the configuration from the environment, reading .env
// first when it exists.
func LoadFromEnv() (*Config, error) {
	return Load(".env")
}

// Load reads envFile (if present, without overriding variables that are
// already set) and then the environment.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
			}
		}
	}

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PAGE_SIZE", 5)
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)
	v.SetDefault("HTTP_TIMEOUT", "15s")
	v.SetDefault("USER_AGENT", "storefront-client/0.1.0")
	v.SetDefault("SESSION_NAME", "default")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required values and ranges.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIURL) == "" {
		return ErrMissingAPIURL
	}
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("API_URL must be an absolute URL (got %q)", c.APIURL)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("PAGE_SIZE must be > 0 (got %d)", c.PageSize)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be > 0 (got %s)", c.HTTPTimeout)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if (c.APIEmail == "") != (c.APIPassword == "") {
		return errors.New("API_EMAIL and API_PASSWORD must be set together")
	}
	return nil
}

// Logging returns the logger configuration.
func (c *Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level, _ = logging.ParseLevel(c.LogLevel)
	cfg.Pretty = c.LogPretty
	return cfg
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}
